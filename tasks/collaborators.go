package tasks

import (
	"context"
	"time"
)

// Item is one unit of tracked content: an issue-tracker item or a wiki
// page, normalized for the cache and the search index.
type Item struct {
	Key     string            `json:"key"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Fields  map[string]string `json:"fields,omitempty"`
	Updated time.Time         `json:"updated"`
}

// Tracker is the issue tracker client collaborator.
type Tracker interface {
	// FetchProjectItems returns every item in a project.
	FetchProjectItems(ctx context.Context, projectKey string) ([]Item, error)
	// FetchItem returns a single item by key.
	FetchItem(ctx context.Context, itemKey string) (*Item, error)
	// FetchBoards returns the board names configured for a project.
	FetchBoards(ctx context.Context, projectKey string) ([]string, error)
}

// Wiki is the wiki client collaborator.
type Wiki interface {
	// FetchSpacePages returns every page in a space.
	FetchSpacePages(ctx context.Context, spaceKey string) ([]Item, error)
}

// Cache is the local content cache collaborator.
type Cache interface {
	// Upsert inserts or replaces cached items.
	Upsert(ctx context.Context, items []Item) error
	// Get returns a cached item, or nil if absent.
	Get(ctx context.Context, key string) (*Item, error)
	// Purge removes entries not updated since the cutoff and returns
	// the number removed.
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}

// Index is the search index collaborator.
type Index interface {
	// IndexItem (re-)indexes a single item.
	IndexItem(ctx context.Context, item *Item) error
	// Refresh rebuilds or refreshes the index. When force is false the
	// implementation may skip work it considers current.
	Refresh(ctx context.Context, force bool) error
}

// Deps bundles the collaborators the built-in handlers delegate to.
// A handler whose collaborator is nil fails with a configuration error.
type Deps struct {
	Tracker Tracker
	Wiki    Wiki
	Cache   Cache
	Index   Index
}
