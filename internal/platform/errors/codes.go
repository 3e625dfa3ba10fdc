// Package errors provides structured error handling for the snapshot
// pipeline and its collaborators.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// Content errors
	CodeUnresolvedEntity Code = "UNRESOLVED_ENTITY"
	CodeNotFound         Code = "NOT_FOUND"

	// Render errors
	CodeRecursiveRender Code = "RECURSIVE_RENDER"
	CodeRenderEngine    Code = "RENDER_ENGINE"

	// Output errors
	CodeAssetSync  Code = "ASSET_SYNC"
	CodeFilesystem Code = "FILESYSTEM"
)

// HTTPStatus maps the code to the HTTP status used by the admin surface.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeUnresolvedEntity, CodeNotFound:
		return http.StatusNotFound
	case CodeRecursiveRender:
		return http.StatusLoopDetected
	case CodeRenderEngine:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
