package scheduler

import (
	"context"

	"github.com/kasuganosora/questengine/resource"
	"go.uber.org/zap"
)

// ContentStore is the persistence side of a content reload;
// *quest.TemplateStore implements it.
type ContentStore interface {
	resource.Importer
	ActiveIDs(ctx context.Context) ([]string, error)
	Deactivate(ctx context.Context, id string) error
}

// ContentReloader re-reads the quest content directory and imports changed
// templates. A directory that fails to load leaves the stored content as is.
type ContentReloader struct {
	Dir   string
	Store ContentStore
	// Prune deactivates stored templates that no longer exist on disk.
	Prune  bool
	Logger *zap.Logger
}

// Run performs one reload. It matches TaskFn so it can be scheduled directly.
func (r *ContentReloader) Run(ctx context.Context) error {
	rl := resource.NewLoader(r.Dir)
	if err := rl.Load(); err != nil {
		return err
	}
	for _, w := range rl.Warnings {
		r.Logger.Warn("quest content", zap.String("warning", w))
	}
	changed, err := rl.Sync(ctx, r.Store)
	if err != nil {
		return err
	}

	pruned := 0
	if r.Prune {
		ids, err := r.Store.ActiveIDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, ok := rl.Documents[id]; ok {
				continue
			}
			if err := r.Store.Deactivate(ctx, id); err != nil {
				return err
			}
			pruned++
		}
	}
	if changed > 0 || pruned > 0 {
		r.Logger.Info("quest content reloaded",
			zap.String("dir", r.Dir),
			zap.Int("templates", len(rl.Documents)),
			zap.Int("changed", changed),
			zap.Int("pruned", pruned))
	}
	return nil
}
