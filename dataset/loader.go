package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pivolan/textile_dashboard/core"
	"github.com/pivolan/textile_dashboard/domain/models"
	"golang.org/x/sync/errgroup"
)

// Loader resolves dataset names through its sources and memoizes results in
// the cache it was given.
type Loader struct {
	cache   *Cache
	sources []Source
}

func NewLoader(cache *Cache, sources ...Source) *Loader {
	if cache == nil {
		cache = NewCache()
	}
	return &Loader{cache: cache, sources: sources}
}

func (l *Loader) Cache() *Cache { return l.cache }

// Load returns the table for name. When the dataset cannot be loaded it
// returns an empty table together with the error; errors.Is(err,
// models.ErrNotFound) tells a missing dataset from a broken one.
func (l *Loader) Load(ctx context.Context, name string) (*models.Table, error) {
	key := NormalizeName(name)
	if key == "" {
		return models.EmptyTable(name), fmt.Errorf("load %q: %w", name, models.ErrNotFound)
	}

	// the load is shared with other callers waiting on key
	shared := context.WithoutCancel(ctx)
	t, err := l.cache.GetOrLoad(key, func() (*models.Table, error) {
		return l.resolve(shared, key)
	})
	if err != nil {
		return models.EmptyTable(key), fmt.Errorf("load %q: %w", name, err)
	}
	return t, nil
}

func (l *Loader) resolve(ctx context.Context, key string) (*models.Table, error) {
	for _, src := range l.sources {
		t, err := src.Load(ctx, key)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			core.Errorf(ctx, "dataset %s: %s source failed: %v", key, src.Name(), err)
			return nil, fmt.Errorf("%s source: %w", src.Name(), err)
		}
		core.Infof(ctx, "dataset %s loaded from %s: %d rows, %d columns", key, src.Name(), t.Len(), len(t.Columns))
		return t, nil
	}
	return nil, models.ErrNotFound
}

// Preload warms the cache. Missing datasets are reported, not treated as
// failures; the first other load error is returned.
func (l *Loader) Preload(ctx context.Context, names ...string) ([]string, error) {
	var (
		mu      sync.Mutex
		missing []string
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range names {
		name := name
		g.Go(func() error {
			_, err := l.Load(ctx, name)
			if errors.Is(err, models.ErrNotFound) {
				mu.Lock()
				missing = append(missing, name)
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	err := g.Wait()
	return missing, err
}
