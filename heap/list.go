package heap

import (
	"fmt"

	"github.com/timewinder-dev/dreamvm/vm"
)

// List is an ordered, 1-indexed sequence. Items doubling as keys of an
// associative list carry their value in assoc.
type List struct {
	items []vm.Value
	assoc map[vm.Value]vm.Value
}

func (l *List) Len() int {
	return len(l.items)
}

// Items returns a copy of the item sequence.
func (l *List) Items() []vm.Value {
	out := make([]vm.Value, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List) IsAssoc() bool {
	return len(l.assoc) > 0
}

func outOfBounds(i, n int) error {
	return &vm.RuntimeFault{Kind: vm.IndexOutOfBounds, Message: fmt.Sprintf("index %d out of bounds for list of %d", i, n)}
}

// At reads a 1-based index.
func (l *List) At(i int) (vm.Value, error) {
	if i < 1 || i > len(l.items) {
		return vm.Null, outOfBounds(i, len(l.items))
	}
	return l.items[i-1], nil
}

func (l *List) SetAt(i int, v vm.Value) error {
	if i < 1 || i > len(l.items) {
		return outOfBounds(i, len(l.items))
	}
	l.items[i-1] = v
	return nil
}

// Index reads l[key]: numbers index by position, anything else is an
// associative lookup that yields null for a missing key.
func (l *List) Index(key vm.Value) (vm.Value, error) {
	if key.Kind == vm.KindNumber {
		return l.At(int(key.Num))
	}
	return l.assoc[key], nil
}

// SetIndex writes l[key]. A new associative key is appended to the items.
func (l *List) SetIndex(key, v vm.Value) error {
	if key.Kind == vm.KindNumber {
		return l.SetAt(int(key.Num), v)
	}
	if l.assoc == nil {
		l.assoc = make(map[vm.Value]vm.Value)
	}
	if !l.Contains(key) {
		l.items = append(l.items, key)
	}
	l.assoc[key] = v
	return nil
}

func (l *List) Append(v ...vm.Value) {
	l.items = append(l.items, v...)
}

func (l *List) Contains(v vm.Value) bool {
	for _, it := range l.items {
		if it == v {
			return true
		}
	}
	return false
}

// Remove drops the first occurrence of v and its associated value.
func (l *List) Remove(v vm.Value) bool {
	for i, it := range l.items {
		if it == v {
			l.items = append(l.items[:i], l.items[i+1:]...)
			delete(l.assoc, v)
			return true
		}
	}
	return false
}

// Assoc returns the value bound to key, if any.
func (l *List) Assoc(key vm.Value) (vm.Value, bool) {
	v, ok := l.assoc[key]
	return v, ok
}

// Resize truncates the list or pads it with nulls.
func (l *List) Resize(n int) {
	if n < 0 {
		n = 0
	}
	for _, k := range l.items[min(n, len(l.items)):] {
		delete(l.assoc, k)
	}
	if n <= len(l.items) {
		l.items = l.items[:n]
		return
	}
	l.items = append(l.items, make([]vm.Value, n-len(l.items))...)
}

// span converts a 1-based start and exclusive end into slice bounds. An end
// of 0 means the end of the list.
func (l *List) span(start, end int) (int, int, error) {
	n := len(l.items)
	if end == 0 {
		end = n + 1
	}
	if start < 1 || end > n+1 || start > end {
		return 0, 0, &vm.RuntimeFault{Kind: vm.IndexOutOfBounds, Message: fmt.Sprintf("range %d to %d out of bounds for list of %d", start, end, n)}
	}
	return start - 1, end - 1, nil
}

// Find returns the 1-based index of the first v between start and end, or 0.
func (l *List) Find(v vm.Value, start, end int) (int, error) {
	lo, hi, err := l.span(start, end)
	if err != nil {
		return 0, err
	}
	for i := lo; i < hi; i++ {
		if l.items[i] == v {
			return i + 1, nil
		}
	}
	return 0, nil
}

// Slice copies the items between start and end.
func (l *List) Slice(start, end int) ([]vm.Value, error) {
	lo, hi, err := l.span(start, end)
	if err != nil {
		return nil, err
	}
	return append([]vm.Value(nil), l.items[lo:hi]...), nil
}

// Cut removes the items between start and end.
func (l *List) Cut(start, end int) error {
	lo, hi, err := l.span(start, end)
	if err != nil {
		return err
	}
	cut := append([]vm.Value(nil), l.items[lo:hi]...)
	l.items = append(l.items[:lo], l.items[hi:]...)
	for _, k := range cut {
		if !l.Contains(k) {
			delete(l.assoc, k)
		}
	}
	return nil
}

// Insert places vals before the 1-based index i; len+1 appends.
func (l *List) Insert(i int, vals ...vm.Value) error {
	if i < 1 || i > len(l.items)+1 {
		return outOfBounds(i, len(l.items))
	}
	tail := append([]vm.Value(nil), l.items[i-1:]...)
	l.items = append(append(l.items[:i-1], vals...), tail...)
	return nil
}

func (l *List) Swap(i, j int) error {
	n := len(l.items)
	if i < 1 || i > n {
		return outOfBounds(i, n)
	}
	if j < 1 || j > n {
		return outOfBounds(j, n)
	}
	l.items[i-1], l.items[j-1] = l.items[j-1], l.items[i-1]
	return nil
}
