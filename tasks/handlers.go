package tasks

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relicore/toil/job"
)

// The closed set of built-in job types.
const (
	TypeSyncProject   = "sync-issue-tracker-project"
	TypeSyncSpace     = "sync-wiki-space"
	TypeRefreshItem   = "refresh-item"
	TypeIndexContent  = "index-content"
	TypeCleanupCache  = "cleanup-cache"
	TypeRefreshBoards = "refresh-boards"
	TypeUpdateIndex   = "update-search-index"
)

// indexParallelism bounds concurrent IndexItem calls in an index-content
// batch.
const indexParallelism = 4

// Payload types, one per job type.
type (
	SyncProjectInput struct {
		ProjectKey string `json:"project_key"`
	}
	SyncSpaceInput struct {
		SpaceKey string `json:"space_key"`
	}
	RefreshItemInput struct {
		ItemKey string `json:"item_key"`
	}
	IndexContentInput struct {
		ContentKeys []string `json:"content_keys"`
	}
	CleanupCacheInput struct {
		OlderThanDays int `json:"older_than_days"`
	}
	RefreshBoardsInput struct {
		ProjectKey string `json:"project_key"`
	}
	UpdateIndexInput struct {
		Force bool `json:"force"`
	}
)

// syncResult is the handler output shared by the sync job types.
type syncResult struct {
	Upserted int `json:"upserted"`
}

// RegisterAll registers every built-in handler on the registry.
func RegisterAll(reg *job.Registry, deps Deps) {
	job.RegisterDefinition(reg, job.NewDefinition(TypeSyncProject, deps.syncProject))
	job.RegisterDefinition(reg, job.NewDefinition(TypeSyncSpace, deps.syncSpace))
	job.RegisterDefinition(reg, job.NewDefinition(TypeRefreshItem, deps.refreshItem))
	job.RegisterDefinition(reg, job.NewDefinition(TypeIndexContent, deps.indexContent))
	job.RegisterDefinition(reg, job.NewDefinition(TypeCleanupCache, deps.cleanupCache))
	job.RegisterDefinition(reg, job.NewDefinition(TypeRefreshBoards, deps.refreshBoards))
	job.RegisterDefinition(reg, job.NewDefinition(TypeUpdateIndex, deps.updateIndex))
}

// syncProject fetches all items for a project and upserts them into the
// cache.
func (d Deps) syncProject(ctx context.Context, in SyncProjectInput) (any, error) {
	if d.Tracker == nil || d.Cache == nil {
		return nil, fmt.Errorf("tasks: %s requires Tracker and Cache", TypeSyncProject)
	}

	items, err := d.Tracker.FetchProjectItems(ctx, in.ProjectKey)
	if err != nil {
		return nil, fmt.Errorf("fetch project %q: %w", in.ProjectKey, err)
	}
	if err := d.Cache.Upsert(ctx, items); err != nil {
		return nil, fmt.Errorf("upsert project %q items: %w", in.ProjectKey, err)
	}
	return syncResult{Upserted: len(items)}, nil
}

// syncSpace fetches all pages for a wiki space and upserts them into the
// cache.
func (d Deps) syncSpace(ctx context.Context, in SyncSpaceInput) (any, error) {
	if d.Wiki == nil || d.Cache == nil {
		return nil, fmt.Errorf("tasks: %s requires Wiki and Cache", TypeSyncSpace)
	}

	pages, err := d.Wiki.FetchSpacePages(ctx, in.SpaceKey)
	if err != nil {
		return nil, fmt.Errorf("fetch space %q: %w", in.SpaceKey, err)
	}
	if err := d.Cache.Upsert(ctx, pages); err != nil {
		return nil, fmt.Errorf("upsert space %q pages: %w", in.SpaceKey, err)
	}
	return syncResult{Upserted: len(pages)}, nil
}

// refreshItem re-fetches a single item and upserts it.
func (d Deps) refreshItem(ctx context.Context, in RefreshItemInput) (any, error) {
	if d.Tracker == nil || d.Cache == nil {
		return nil, fmt.Errorf("tasks: %s requires Tracker and Cache", TypeRefreshItem)
	}

	item, err := d.Tracker.FetchItem(ctx, in.ItemKey)
	if err != nil {
		return nil, fmt.Errorf("fetch item %q: %w", in.ItemKey, err)
	}
	if err := d.Cache.Upsert(ctx, []Item{*item}); err != nil {
		return nil, fmt.Errorf("upsert item %q: %w", in.ItemKey, err)
	}
	return syncResult{Upserted: 1}, nil
}

// indexContent (re-)indexes a batch of cached items into the search
// layer, a bounded number at a time. A missing cache entry fails the
// whole batch so the retry re-covers every key.
func (d Deps) indexContent(ctx context.Context, in IndexContentInput) (any, error) {
	if d.Cache == nil || d.Index == nil {
		return nil, fmt.Errorf("tasks: %s requires Cache and Index", TypeIndexContent)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(indexParallelism)

	for _, key := range in.ContentKeys {
		g.Go(func() error {
			item, err := d.Cache.Get(ctx, key)
			if err != nil {
				return fmt.Errorf("get cached %q: %w", key, err)
			}
			if item == nil {
				return fmt.Errorf("content %q not in cache", key)
			}
			if err := d.Index.IndexItem(ctx, item); err != nil {
				return fmt.Errorf("index %q: %w", key, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return map[string]int{"indexed": len(in.ContentKeys)}, nil
}

// cleanupCache purges cache entries older than the threshold.
func (d Deps) cleanupCache(ctx context.Context, in CleanupCacheInput) (any, error) {
	if d.Cache == nil {
		return nil, fmt.Errorf("tasks: %s requires Cache", TypeCleanupCache)
	}

	days := in.OlderThanDays
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	purged, err := d.Cache.Purge(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("purge cache: %w", err)
	}
	return map[string]int{"purged": purged}, nil
}

// refreshBoards re-reads a project's board list. Light maintenance: the
// result is informational only.
func (d Deps) refreshBoards(ctx context.Context, in RefreshBoardsInput) (any, error) {
	if d.Tracker == nil {
		return nil, fmt.Errorf("tasks: %s requires Tracker", TypeRefreshBoards)
	}

	boards, err := d.Tracker.FetchBoards(ctx, in.ProjectKey)
	if err != nil {
		return nil, fmt.Errorf("fetch boards for %q: %w", in.ProjectKey, err)
	}
	return map[string]any{"boards": boards}, nil
}

// updateIndex asks the search layer to refresh itself.
func (d Deps) updateIndex(ctx context.Context, in UpdateIndexInput) (any, error) {
	if d.Index == nil {
		return nil, fmt.Errorf("tasks: %s requires Index", TypeUpdateIndex)
	}

	if err := d.Index.Refresh(ctx, in.Force); err != nil {
		return nil, fmt.Errorf("refresh index: %w", err)
	}
	return map[string]bool{"refreshed": true}, nil
}
