package site

import (
	"context"
	"strings"

	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage"
)

// FrontPage resolves the front-page entity: a configured override wins over
// the stored site setting.
type FrontPage struct {
	Override string
	Settings storage.SettingsStore
}

// FrontPageID reports the front-page entity id, if any.
func (f FrontPage) FrontPageID(ctx context.Context) (string, bool, error) {
	if id := strings.TrimSpace(f.Override); id != "" {
		return id, true, nil
	}
	if f.Settings == nil {
		return "", false, nil
	}
	return f.Settings.FrontPageID(ctx)
}
