package vm

import "sync"

// StringTable is the append-only interning table. Ids never change once
// handed out; a fresh table starts with "" at id 0.
type StringTable struct {
	mu    sync.RWMutex
	ids   map[string]uint32
	texts []string
}

func NewStringTable() *StringTable {
	return NewStringTableFrom(nil)
}

// NewStringTableFrom seeds a table with the strings of a program image. Every
// string keeps its position as its id; a string listed twice resolves to its
// first id.
func NewStringTableFrom(texts []string) *StringTable {
	st := &StringTable{
		ids:   make(map[string]uint32, len(texts)+1),
		texts: append([]string(nil), texts...),
	}
	if len(st.texts) == 0 {
		st.texts = append(st.texts, "")
	}
	for i, s := range st.texts {
		if _, ok := st.ids[s]; !ok {
			st.ids[s] = uint32(i)
		}
	}
	return st
}

func (st *StringTable) Intern(s string) uint32 {
	st.mu.RLock()
	id, ok := st.ids[s]
	st.mu.RUnlock()
	if ok {
		return id
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if id, ok := st.ids[s]; ok {
		return id
	}
	id = uint32(len(st.texts))
	st.texts = append(st.texts, s)
	st.ids[s] = id
	return id
}

func (st *StringTable) Lookup(id uint32) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if int(id) >= len(st.texts) {
		return "", false
	}
	return st.texts[id], true
}

// Text returns the string for id, or "" for an unknown id.
func (st *StringTable) Text(id uint32) string {
	s, _ := st.Lookup(id)
	return s
}

func (st *StringTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.texts)
}

// Snapshot copies the table contents in id order, for writing an image.
func (st *StringTable) Snapshot() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]string, len(st.texts))
	copy(out, st.texts)
	return out
}

// InterpolationMarker stands in for each embedded expression in a
// FormatString template.
const InterpolationMarker = '\uE000'
