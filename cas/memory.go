package cas

import (
	"sort"
	"sync"
)

type MemoryCAS struct {
	mu   sync.RWMutex
	data map[Hash][]byte
}

func NewMemoryCAS() *MemoryCAS {
	return &MemoryCAS{
		data: make(map[Hash][]byte),
	}
}

func (m *MemoryCAS) Put(data []byte) (Hash, error) {
	h := HashBytes(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[h]; !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		m.data[h] = cp
	}
	return h, nil
}

func (m *MemoryCAS) Get(h Hash) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[h]
	return v, ok
}

func (m *MemoryCAS) Has(h Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[h]
	return ok
}

func (m *MemoryCAS) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Entries returns every stored blob keyed by hash, in hash order.
func (m *MemoryCAS) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.data))
	for h, d := range m.data {
		out = append(out, Entry{Hash: h, Data: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

type Entry struct {
	Hash Hash   `msgpack:"h"`
	Data []byte `msgpack:"d"`
}
