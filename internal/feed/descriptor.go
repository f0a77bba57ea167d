package feed

import (
	"context"
	"time"

	"dash/internal/store"
)

// SetupItem is one selectable source presented on a service's setup page.
type SetupItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Thumbnail   string `json:"thumbnail"`
	Description string `json:"description"`
	Verified    bool   `json:"verified"`
	Link        string `json:"link,omitempty"`
	Checked     bool   `json:"checked"`
}

// sourceKind describes one class of sources within a service: Facebook
// pages, Facebook groups, or YouTube subscriptions.
type sourceKind struct {
	name   string // singular, used as the postType tag: "page"
	plural string // selection key and route segment: "pages"

	sources    func(c *store.Connection) []store.Source
	setSources func(c *store.Connection, srcs []store.Source)

	// feedRequest builds the first-page URL and the page parser for pulling
	// new posts from one selected source since the given watermark.
	feedRequest func(c *store.Connection, src store.Source, since time.Time) (string, parsePage[store.Post])

	// setupRequest builds the first-page URL and parser for listing the
	// sources available for selection.
	setupRequest func(c *store.Connection) (string, parsePage[SetupItem])
}

// descriptor ties one service's endpoints, normalizers, and error
// signatures together, so the engine stays service-agnostic. Adding a
// service means adding a descriptor, not engine code.
type descriptor struct {
	service     store.Service
	kinds       []sourceKind
	deauthorize func(ctx context.Context, f *Fetcher, c *store.Connection) error
}

func (d descriptor) kind(plural string) (sourceKind, bool) {
	for _, k := range d.kinds {
		if k.plural == plural {
			return k, true
		}
	}
	return sourceKind{}, false
}
