package dataset

import (
	"sort"
	"sync"

	"github.com/pivolan/textile_dashboard/domain/models"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes loaded tables by logical name for the life of the process.
// Entries are populated on first successful load and never evicted.
type Cache struct {
	mu     sync.RWMutex
	tables map[string]*models.Table
	group  singleflight.Group
}

func NewCache() *Cache {
	return &Cache{tables: make(map[string]*models.Table)}
}

func (c *Cache) Get(key string) (*models.Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[key]
	return t, ok
}

// GetOrLoad returns the cached table for key, calling load on a miss.
// Concurrent misses for the same key share one load call. Failed loads
// are not cached.
func (c *Cache) GetOrLoad(key string, load func() (*models.Table, error)) (*models.Table, error) {
	if t, ok := c.Get(key); ok {
		return t, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if t, ok := c.Get(key); ok {
			return t, nil
		}
		t, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.tables[key] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Table), nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}

// Keys returns the cached names in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.tables))
	for k := range c.tables {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
