package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown          = "UNKNOWN"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeUnresolvedEntity = "UNRESOLVED_ENTITY"
	CodeNotFound         = "NOT_FOUND"
	CodeRecursiveRender  = "RECURSIVE_RENDER"
	CodeRenderEngine     = "RENDER_ENGINE"
	CodeAssetSync        = "ASSET_SYNC"
	CodeFilesystem       = "FILESYSTEM"
)

var enUS = map[Code]string{
	CodeUnknown:          "Something went wrong.",
	CodeInvalidRequest:   "The snapshot request is invalid: {{.reason}}.",
	CodeUnresolvedEntity: "{{if .id}}Page {{.id}} could not be found.{{else}}The requested content could not be loaded.{{end}}",
	CodeNotFound:         "Not found.",
	CodeRecursiveRender:  "Page {{.id}} renders itself and was skipped.",
	CodeRenderEngine:     "Page {{.id}} failed to render.",
	CodeAssetSync:        "Assets in {{.category}} could not be copied.",
	CodeFilesystem:       "{{if .id}}Page {{.id}} could not be written to disk.{{else}}The directory {{.directory}} could not be prepared.{{end}}",
}
