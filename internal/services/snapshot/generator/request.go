package generator

import (
	"strings"
	"time"

	apperrors "github.com/louisbranch/pagesnap/internal/platform/errors"
)

// IndexFile is the file name the front-page entity is written to.
const IndexFile = "index.html"

// Request selects the entities to snapshot and the bundle directory name
// under the public files root.
type Request struct {
	EntityIDs []string
	Directory string
}

// Failure is one entity that resolved but could not be written.
type Failure struct {
	ID      string
	Code    apperrors.Code
	Message string
}

// AssetFailure is one asset category, or file, that could not be mirrored.
type AssetFailure struct {
	Category string
	File     string
	Message  string
}

// Report summarizes one run. Succeeded and Failed keep request order.
type Report struct {
	RunID             string
	Directory         string
	BundlePath        string
	Succeeded         []string
	Failed            []Failure
	SkippedUnresolved []string
	AssetFailures     []AssetFailure
	AssetsCopied      int
	StartedAt         time.Time
	FinishedAt        time.Time
}

// OK reports whether every requested entity resolved and was written and
// every asset category synced.
func (r Report) OK() bool {
	return len(r.Failed) == 0 && len(r.SkippedUnresolved) == 0 && len(r.AssetFailures) == 0
}

// Validate checks the request before any side effect.
func (r Request) Validate() error {
	if len(r.EntityIDs) == 0 {
		return invalid("at least one entity is required", "")
	}
	seen := make(map[string]struct{}, len(r.EntityIDs))
	for _, id := range r.EntityIDs {
		if !safeSegment(id) {
			return invalid("entity id is not a safe file name", id)
		}
		if _, ok := seen[id]; ok {
			return invalid("entity id is duplicated", id)
		}
		seen[id] = struct{}{}
	}
	if strings.TrimSpace(r.Directory) == "" {
		return invalid("directory name is required", "")
	}
	if !safeSegment(r.Directory) {
		return invalid("directory name must be a single path segment", r.Directory)
	}
	return nil
}

func invalid(reason, value string) error {
	meta := map[string]string{"reason": reason}
	if value != "" {
		meta["value"] = value
	}
	return apperrors.WithMetadata(apperrors.CodeInvalidRequest, "invalid snapshot request: "+reason, meta)
}

// safeSegment accepts a non-blank single path segment that cannot escape
// its parent directory.
func safeSegment(value string) bool {
	if strings.TrimSpace(value) != value || value == "" {
		return false
	}
	if value == "." || value == ".." {
		return false
	}
	return !strings.ContainsAny(value, "/\\\x00:")
}
