package catalog

import (
	"fmt"
	"sync"

	"github.com/hitoshi/reginald/internal/model"
)

// sectionKey はセクションキャッシュの複合キー。
type sectionKey struct {
	Term    int
	Course  model.Course
	Section int
}

func (k sectionKey) String() string {
	return fmt.Sprintf("section:%d:%s:%d", k.Term, k.Course, k.Section)
}

// courseKey はコース説明キャッシュの複合キー。
type courseKey struct {
	Term   int
	Course model.Course
}

func (k courseKey) String() string {
	return fmt.Sprintf("description:%d:%s", k.Term, k.Course)
}

// cache はプロセス内で共有するフラットなキャッシュ。
// 値がnilのエントリは「存在しない」ことをキャッシュしたもの（ネガティブキャッシュ）。
// TTLや退避は持たない。
type cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

func newCache[K comparable, V any]() *cache[K, V] {
	return &cache[K, V]{entries: make(map[K]V)}
}

func (c *cache[K, V]) get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *cache[K, V]) set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *cache[K, V]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
