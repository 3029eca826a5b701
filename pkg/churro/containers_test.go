package churro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// heldMap returns a clean record holding a Map under propOne.
func heldMap(t *testing.T, m map[string]any) (Entity, *Map) {
	t.Helper()
	obj := testClassType.New()
	require.NoError(t, propOne.Set(obj, m))
	obj.object().clean = true
	return obj, propOne.Get(obj).(*Map)
}

func heldList(t *testing.T, values ...any) (Entity, *List) {
	t.Helper()
	obj := testClassType.New()
	require.NoError(t, propOne.Set(obj, NewList(values...)))
	obj.object().clean = true
	return obj, propOne.Get(obj).(*List)
}

func TestMapReadersKeepRecordClean(t *testing.T) {
	obj, m := heldMap(t, map[string]any{"b": 2, "a": 1})

	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)
	assert.True(t, m.Has("b"))
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"a", "b"}, m.Keys())
	var seen []string
	m.Range(func(k string, _ any) bool {
		seen = append(seen, k)
		return false
	})
	assert.Equal(t, []string{"a"}, seen)
	assert.True(t, m.Equal(map[string]any{"a": 1, "b": 2}))
	assert.False(t, m.Equal(map[string]any{"a": 1}))
	assert.False(t, m.Equal("nope"))

	assert.False(t, obj.object().IsDirty())
}

func TestMapMutatorsDirtyRecord(t *testing.T) {
	mutations := map[string]func(m *Map){
		"Set":        func(m *Map) { m.Set("c", 3) },
		"Delete":     func(m *Map) { m.Delete("a") },
		"Pop":        func(m *Map) { m.Pop("a") },
		"SetDefault": func(m *Map) { m.SetDefault("a", 9) },
		"Update":     func(m *Map) { m.Update(map[string]any{"d": 4}) },
		"Clear":      func(m *Map) { m.Clear() },
		"PopItem":    func(m *Map) { m.PopItem() },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			obj, m := heldMap(t, map[string]any{"a": 1})
			mutate(m)
			assert.True(t, obj.object().IsDirty())
		})
	}
}

func TestMapOperations(t *testing.T) {
	_, m := heldMap(t, map[string]any{"a": 1})

	assert.Equal(t, int64(1), m.SetDefault("a", 9))
	assert.Equal(t, int64(9), m.SetDefault("z", 9))
	v, ok := m.Pop("z")
	assert.True(t, ok)
	assert.Equal(t, int64(9), v)
	_, ok = m.Pop("z")
	assert.False(t, ok)
	assert.False(t, m.Delete("z"))

	m.Set("b", 2)
	k, v, ok := m.PopItem()
	assert.True(t, ok)
	assert.Equal(t, "b", k)
	assert.Equal(t, int64(2), v)

	cp := m.Copy()
	cp.Set("x", 1)
	assert.False(t, m.Has("x"), "copies are detached")

	m.Clear()
	assert.Zero(t, m.Len())
}

func TestMapAdoptsNestedRecords(t *testing.T) {
	obj, m := heldMap(t, nil)
	nested := newTestClass(1, 2)
	m.Set("n", nested)
	obj.object().clean = true

	require.NoError(t, propOne.Set(nested, "changed"))
	assert.True(t, obj.object().IsDirty())
}

func TestListOperations(t *testing.T) {
	_, l := heldList(t, 3, 1, 2)

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, int64(3), l.Get(0))
	assert.Equal(t, 1, l.Index(1))
	assert.Equal(t, -1, l.Index(7))
	assert.True(t, l.Contains(2))

	l.Append(1)
	assert.Equal(t, 2, l.Count(1))
	l.Insert(0, "first")
	l.Insert(99, "last")
	assert.Equal(t, []any{"first", int64(3), int64(1), int64(2), int64(1), "last"}, l.Values())

	assert.Equal(t, "last", l.Pop(5))
	l.Delete(0)
	assert.True(t, l.Remove(1))
	assert.False(t, l.Remove(42))
	assert.Equal(t, []any{int64(3), int64(2), int64(1)}, l.Values())

	l.Sort(func(a, b any) bool { return a.(int64) < b.(int64) })
	assert.True(t, l.Equal([]any{1, 2, 3}))
	l.Reverse()
	assert.True(t, l.Equal(NewList(3, 2, 1)))

	l.Set(0, "x")
	l.Extend(NewList("y"))
	assert.Equal(t, []any{"x", int64(2), int64(1), "y"}, l.Values())

	l.Clear()
	assert.Zero(t, l.Len())
}

func TestListSlices(t *testing.T) {
	_, l := heldList(t, 0, 1, 2, 3, 4)

	l.SetSlice(1, 3, "a", "b", "c")
	assert.Equal(t, []any{int64(0), "a", "b", "c", int64(3), int64(4)}, l.Values())

	l.DeleteSlice(-2, 99)
	assert.Equal(t, []any{int64(0), "a", "b", "c"}, l.Values())

	l.SetSlice(3, 1)
	assert.Equal(t, []any{int64(0), "a", "b", "c"}, l.Values(), "an empty range inserts nothing")

	l.DeleteSlice(1, 3)
	assert.Equal(t, []any{int64(0), "c"}, l.Values())

	l.SetSlice(0, 0, "x")
	l.Repeat(2)
	assert.Equal(t, []any{"x", int64(0), "c", "x", int64(0), "c"}, l.Values())

	l.Repeat(0)
	assert.Zero(t, l.Len())
}

func TestContainersRejectAncestors(t *testing.T) {
	obj, l := heldList(t)
	assert.Panics(t, func() { l.Append(obj) })
	assert.Panics(t, func() { l.SetSlice(0, 0, obj) })
	assert.Zero(t, l.Len())

	parent, m := heldMap(t, nil)
	child := newTestClass(1, nil)
	m.Set("child", child)
	grand := newTestClass(2, nil)
	require.NoError(t, propTwo.Set(child, grand))
	require.NoError(t, propOne.Set(grand, map[string]any{}))
	inner := propOne.Get(grand).(*Map)
	assert.Panics(t, func() { inner.Set("up", parent) })
}

func TestListMutatorsDirtyRecord(t *testing.T) {
	mutations := map[string]func(l *List){
		"Set":     func(l *List) { l.Set(0, 5) },
		"Append":  func(l *List) { l.Append(5) },
		"Extend":  func(l *List) { l.Extend(NewList(5)) },
		"Insert":  func(l *List) { l.Insert(0, 5) },
		"Delete":  func(l *List) { l.Delete(0) },
		"Pop":     func(l *List) { l.Pop(0) },
		"Remove":  func(l *List) { l.Remove(1) },
		"Reverse": func(l *List) { l.Reverse() },
		"Sort":    func(l *List) { l.Sort(func(a, b any) bool { return false }) },
		"Clear":   func(l *List) { l.Clear() },

		"SetSlice":    func(l *List) { l.SetSlice(0, 1, 5) },
		"DeleteSlice": func(l *List) { l.DeleteSlice(0, 1) },
		"Repeat":      func(l *List) { l.Repeat(2) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			obj, l := heldList(t, 1, 2)
			mutate(l)
			assert.True(t, obj.object().IsDirty())
		})
	}
}

func TestListReadersKeepRecordClean(t *testing.T) {
	obj, l := heldList(t, 1, 2)
	_ = l.Len()
	_ = l.Get(1)
	_ = l.Values()
	_ = l.Index(2)
	_ = l.Count(2)
	_ = l.Contains(2)
	_ = l.Equal([]any{1, 2})
	assert.False(t, obj.object().IsDirty())
}
