package churro

import (
	"fmt"
	"reflect"
	"sort"
)

// accept normalizes v for storage in a container of owner and makes owner
// responsible for it. It panics with ErrInvalidValue when v holds owner or
// one of its ancestors.
func accept(owner *Object, v any) any {
	v = normalize(v)
	if owner != nil && holds(v, owner.lineage()) {
		panic(fmt.Errorf("%w: container cannot hold an ancestor of its owner", ErrInvalidValue))
	}
	adopt(owner, v)
	return v
}

// Map is a string-keyed mapping stored as a property value. Every mutating
// method marks the owning record dirty; readers do not.
type Map struct {
	owner *Object
	data  map[string]any
}

// NewMap returns a Map holding a copy of m.
func NewMap(m map[string]any) *Map {
	w := &Map{data: make(map[string]any, len(m))}
	for k, v := range m {
		w.data[k] = normalize(v)
	}
	return w
}

func (m *Map) mutated() {
	if m.owner != nil {
		m.owner.SetDirty()
	}
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.data[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.data[key]
	return ok
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.data)
}

// Keys returns the keys in sorted order.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Range calls fn for each entry in key order until fn returns false.
func (m *Map) Range(fn func(key string, value any) bool) {
	for _, k := range m.Keys() {
		if !fn(k, m.data[k]) {
			return
		}
	}
}

// Set stores value under key.
func (m *Map) Set(key string, value any) {
	m.mutated()
	value = accept(m.owner, value)
	m.data[key] = value
}

// Delete removes key and reports whether it was present.
func (m *Map) Delete(key string) bool {
	m.mutated()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok
}

// Pop removes key and returns its value.
func (m *Map) Pop(key string) (any, bool) {
	m.mutated()
	v, ok := m.data[key]
	delete(m.data, key)
	return v, ok
}

// PopItem removes and returns the entry with the greatest key. ok is false
// when the map is empty.
func (m *Map) PopItem() (key string, value any, ok bool) {
	m.mutated()
	keys := m.Keys()
	if len(keys) == 0 {
		return "", nil, false
	}
	key = keys[len(keys)-1]
	value = m.data[key]
	delete(m.data, key)
	return key, value, true
}

// SetDefault returns the value under key, storing value first if key is
// absent.
func (m *Map) SetDefault(key string, value any) any {
	m.mutated()
	if v, ok := m.data[key]; ok {
		return v
	}
	value = accept(m.owner, value)
	m.data[key] = value
	return value
}

// Update stores every entry of other.
func (m *Map) Update(other map[string]any) {
	m.mutated()
	for k, v := range other {
		v = accept(m.owner, v)
		m.data[k] = v
	}
}

// Clear removes every entry.
func (m *Map) Clear() {
	m.mutated()
	clear(m.data)
}

// Copy returns a detached shallow copy.
func (m *Map) Copy() *Map {
	return NewMap(m.data)
}

// Equal reports whether other holds the same entries. other may be a *Map
// or a map[string]any.
func (m *Map) Equal(other any) bool {
	switch o := other.(type) {
	case *Map:
		return valuesEqual(m, o)
	case map[string]any:
		return valuesEqual(m, NewMap(o))
	}
	return false
}

// List is a sequence stored as a property value. Every mutating method
// marks the owning record dirty; readers do not.
type List struct {
	owner *Object
	data  []any
}

// NewList returns a List holding values.
func NewList(values ...any) *List {
	l := &List{data: make([]any, len(values))}
	for i, v := range values {
		l.data[i] = normalize(v)
	}
	return l
}

func (l *List) mutated() {
	if l.owner != nil {
		l.owner.SetDirty()
	}
}

// Len returns the number of items.
func (l *List) Len() int {
	return len(l.data)
}

// Get returns the item at index i. It panics if i is out of range.
func (l *List) Get(i int) any {
	return l.data[i]
}

// Values returns a copy of the items.
func (l *List) Values() []any {
	vs := make([]any, len(l.data))
	copy(vs, l.data)
	return vs
}

// Index returns the index of the first item equal to v, or -1.
func (l *List) Index(v any) int {
	for i, item := range l.data {
		if valuesEqual(item, normalize(v)) {
			return i
		}
	}
	return -1
}

// Contains reports whether an item equal to v is present.
func (l *List) Contains(v any) bool {
	return l.Index(v) >= 0
}

// Count returns the number of items equal to v.
func (l *List) Count(v any) int {
	n := 0
	v = normalize(v)
	for _, item := range l.data {
		if valuesEqual(item, v) {
			n++
		}
	}
	return n
}

// Set replaces the item at index i. It panics if i is out of range.
func (l *List) Set(i int, v any) {
	l.mutated()
	v = accept(l.owner, v)
	l.data[i] = v
}

// Append adds items to the end.
func (l *List) Append(values ...any) {
	l.mutated()
	for _, v := range values {
		v = accept(l.owner, v)
		l.data = append(l.data, v)
	}
}

// Extend appends every item of other.
func (l *List) Extend(other *List) {
	l.Append(other.Values()...)
}

// Insert places v before index i. An index at or past the end appends.
func (l *List) Insert(i int, v any) {
	l.mutated()
	v = accept(l.owner, v)
	if i < 0 {
		i = 0
	}
	if i >= len(l.data) {
		l.data = append(l.data, v)
		return
	}
	l.data = append(l.data, nil)
	copy(l.data[i+1:], l.data[i:])
	l.data[i] = v
}

// Delete removes the item at index i. It panics if i is out of range.
func (l *List) Delete(i int) {
	l.mutated()
	l.data = append(l.data[:i], l.data[i+1:]...)
}

// bounds clamps the slice bounds i and j to the list, counting negative
// values from the end.
func (l *List) bounds(i, j int) (int, int) {
	n := len(l.data)
	clamp := func(x int) int {
		if x < 0 {
			x += n
		}
		return min(max(x, 0), n)
	}
	i, j = clamp(i), clamp(j)
	if j < i {
		j = i
	}
	return i, j
}

// SetSlice replaces the items in [i, j) with values. Out of range bounds
// are clamped.
func (l *List) SetSlice(i, j int, values ...any) {
	l.mutated()
	i, j = l.bounds(i, j)
	repl := make([]any, len(values))
	for k, v := range values {
		repl[k] = accept(l.owner, v)
	}
	tail := append(repl, l.data[j:]...)
	l.data = append(l.data[:i], tail...)
}

// DeleteSlice removes the items in [i, j). Out of range bounds are clamped.
func (l *List) DeleteSlice(i, j int) {
	l.mutated()
	i, j = l.bounds(i, j)
	l.data = append(l.data[:i], l.data[j:]...)
}

// Repeat replaces the items with n copies of themselves, in order. A count
// of zero or less empties the list.
func (l *List) Repeat(n int) {
	l.mutated()
	if n <= 0 {
		l.data = l.data[:0]
		return
	}
	items := l.data
	out := make([]any, 0, len(items)*n)
	for range n {
		out = append(out, items...)
	}
	l.data = out
}

// Pop removes and returns the item at index i. It panics if i is out of
// range.
func (l *List) Pop(i int) any {
	l.mutated()
	v := l.data[i]
	l.data = append(l.data[:i], l.data[i+1:]...)
	return v
}

// Remove deletes the first item equal to v and reports whether one was
// found.
func (l *List) Remove(v any) bool {
	l.mutated()
	i := l.Index(v)
	if i < 0 {
		return false
	}
	l.data = append(l.data[:i], l.data[i+1:]...)
	return true
}

// Reverse reverses the items in place.
func (l *List) Reverse() {
	l.mutated()
	for i, j := 0, len(l.data)-1; i < j; i, j = i+1, j-1 {
		l.data[i], l.data[j] = l.data[j], l.data[i]
	}
}

// Sort orders the items with less, keeping equal items in their original
// order.
func (l *List) Sort(less func(a, b any) bool) {
	l.mutated()
	sort.SliceStable(l.data, func(i, j int) bool {
		return less(l.data[i], l.data[j])
	})
}

// Clear removes every item.
func (l *List) Clear() {
	l.mutated()
	l.data = l.data[:0]
}

// Equal reports whether other holds equal items in the same order. other
// may be a *List or a []any.
func (l *List) Equal(other any) bool {
	switch o := other.(type) {
	case *List:
		return valuesEqual(l, o)
	case []any:
		return valuesEqual(l, NewList(o...))
	}
	return false
}

// valuesEqual compares stored values, descending into wrappers and nested
// records.
func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case *Map:
		y, ok := b.(*Map)
		if !ok || len(x.data) != len(y.data) {
			return false
		}
		for k, v := range x.data {
			w, ok := y.data[k]
			if !ok || !valuesEqual(v, w) {
				return false
			}
		}
		return true
	case *List:
		y, ok := b.(*List)
		if !ok || len(x.data) != len(y.data) {
			return false
		}
		for i := range x.data {
			if !valuesEqual(x.data[i], y.data[i]) {
				return false
			}
		}
		return true
	case Entity:
		y, ok := b.(Entity)
		if !ok {
			return false
		}
		xo, yo := x.object(), y.object()
		if xo == yo {
			return true
		}
		if xo.typ != yo.typ || len(xo.values) != len(yo.values) {
			return false
		}
		for k, v := range xo.values {
			w, ok := yo.values[k]
			if !ok || !valuesEqual(v, w) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}
