package cas

import (
	"container/list"
	"sync"
)

// LRU caches values derived from stored blobs, keyed by the blob hash, with
// least-recently-used eviction.
type LRU[V any] struct {
	mu        sync.Mutex
	cache     map[Hash]*list.Element
	evictList *list.List
	maxSize   int
	hits      int
	misses    int
}

type cacheEntry[V any] struct {
	hash  Hash
	value V
}

// NewLRU creates a cache holding at most maxSize entries (0 or negative
// means the default of 1000).
func NewLRU[V any](maxSize int) *LRU[V] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &LRU[V]{
		cache:     make(map[Hash]*list.Element),
		evictList: list.New(),
		maxSize:   maxSize,
	}
}

func (l *LRU[V]) Get(h Hash) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if elem, ok := l.cache[h]; ok {
		l.evictList.MoveToFront(elem)
		l.hits++
		return elem.Value.(*cacheEntry[V]).value, true
	}
	l.misses++
	var zero V
	return zero, false
}

func (l *LRU[V]) Add(h Hash, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if elem, ok := l.cache[h]; ok {
		l.evictList.MoveToFront(elem)
		elem.Value.(*cacheEntry[V]).value = value
		return
	}
	elem := l.evictList.PushFront(&cacheEntry[V]{hash: h, value: value})
	l.cache[h] = elem
	if l.evictList.Len() > l.maxSize {
		l.evictOldest()
	}
}

func (l *LRU[V]) evictOldest() {
	elem := l.evictList.Back()
	if elem != nil {
		l.evictList.Remove(elem)
		delete(l.cache, elem.Value.(*cacheEntry[V]).hash)
	}
}

type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int
	Misses  int
}

func (l *LRU[V]) Stats() CacheStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return CacheStats{
		Size:    len(l.cache),
		MaxSize: l.maxSize,
		Hits:    l.hits,
		Misses:  l.misses,
	}
}
