package churro

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyUnsetReadsNil(t *testing.T) {
	obj := testClassType.New()
	assert.Nil(t, propOne.Get(obj))
	assert.True(t, obj.object().IsDirty(), "new records are dirty")
}

func TestPropertySetNormalizes(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int", 7, int64(7)},
		{"int32", int32(-3), int64(-3)},
		{"uint16", uint16(9), int64(9)},
		{"float32", float32(1.5), float64(1.5)},
		{"string", "s", "s"},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := testClassType.New()
			require.NoError(t, propOne.Set(obj, tt.in))
			assert.Equal(t, tt.want, propOne.Get(obj))
		})
	}

	obj := testClassType.New()
	require.NoError(t, propOne.Set(obj, map[string]any{"k": 1}))
	m, ok := propOne.Get(obj).(*Map)
	require.True(t, ok)
	v, _ := m.Get("k")
	assert.Equal(t, int64(1), v)

	require.NoError(t, propTwo.Set(obj, []string{"a", "b"}))
	l, ok := propTwo.Get(obj).(*List)
	require.True(t, ok)
	assert.True(t, l.Equal([]any{"a", "b"}))
}

func TestPropertySetErrors(t *testing.T) {
	assert.ErrorIs(t, propOne.Set(new(testClass), 1), ErrUnbound)

	other := NewProperty("other")
	assert.ErrorIs(t, other.Set(testClassType.New(), 1), ErrUndeclared)

	obj := testClassType.New()
	assert.ErrorIs(t, propOne.Set(obj, obj), ErrInvalidValue)
	assert.Panics(t, func() { other.MustSet(obj, 1) })
}

func TestPropertyRejectsOwnershipCycles(t *testing.T) {
	a := newTestClass(1, nil)
	b := newTestClass(2, nil)
	require.NoError(t, propTwo.Set(a, b))

	assert.ErrorIs(t, propTwo.Set(b, a), ErrInvalidValue)
	assert.ErrorIs(t, propOne.Set(b, []any{map[string]any{"up": a}}), ErrInvalidValue)
	assert.Nil(t, propTwo.Get(b))

	c := newTestClass(3, nil)
	require.NoError(t, propTwo.Set(b, c))
	assert.ErrorIs(t, propOne.Set(c, a), ErrInvalidValue, "grandparent")

	held := newTestClass(4, nil)
	require.NoError(t, propOne.Set(held, []any{b}))
	assert.ErrorIs(t, propOne.Set(c, held), ErrInvalidValue, "ancestor nested in a list")

	// Unrelated records can be shared freely.
	require.NoError(t, propOne.Set(c, newTestClass(5, nil)))
}

func TestPropertyValidator(t *testing.T) {
	r := NewRegistry()
	positive := NewProperty("n", WithValidator(func(v any) (any, error) {
		n, ok := v.(int64)
		if !ok || n <= 0 {
			return nil, errors.New("want a positive integer")
		}
		return n, nil
	}))
	typ := r.MustDefine(TypeDef{
		Name:       "validated",
		Properties: []*Property{positive},
		New:        func() Entity { return new(testClass) },
	})

	obj := typ.New()
	require.NoError(t, positive.Set(obj, 3))
	assert.Equal(t, int64(3), positive.Get(obj))

	err := positive.Set(obj, -1)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), "want a positive integer")
	assert.Equal(t, int64(3), positive.Get(obj), "rejected values are not stored")
}

func TestSetMarksAncestorsDirty(t *testing.T) {
	root := NewFolder()
	sub := newTestFolder(1, 2)
	obj := newTestClass(1, 2)
	require.NoError(t, root.Set("sub", sub))
	require.NoError(t, sub.Set("obj", obj))
	for _, o := range []*Object{&root.Object, &sub.Object, &obj.Object} {
		o.clean = true
	}

	require.NoError(t, propOne.Set(obj, "changed"))
	assert.True(t, obj.IsDirty())
	assert.True(t, sub.IsDirty())
	assert.True(t, root.IsDirty())
}

func TestDateProperty(t *testing.T) {
	obj := testDatesType.New()
	in := time.Date(1975, 7, 7, 15, 4, 5, 0, time.FixedZone("X", 3600))
	require.NoError(t, propThree.Set(obj, in))
	assert.Equal(t, time.Date(1975, 7, 7, 0, 0, 0, 0, time.UTC), propThree.Get(obj))

	assert.ErrorIs(t, propThree.Set(obj, "1975-07-07"), ErrInvalidValue)
	require.NoError(t, propThree.Set(obj, nil))
	assert.Nil(t, propThree.Get(obj))

	enc, err := propThree.encode(time.Date(2001, 2, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2001-02-03", enc)

	_, err = propThree.decode("not a date")
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = propThree.decode(int64(5))
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestDatetimeProperty(t *testing.T) {
	obj := testDatesType.New()
	in := time.Date(2010, 5, 12, 4, 42, 0, 500, time.FixedZone("X", 2*3600))
	require.NoError(t, propFour.Set(obj, in))
	got := propFour.Get(obj).(time.Time)
	assert.True(t, in.Equal(got))
	assert.Equal(t, time.UTC, got.Location())

	enc, err := propFour.encode(got)
	require.NoError(t, err)
	assert.Equal(t, "2010-05-12T02:42:00.0000005Z", enc)

	assert.ErrorIs(t, propFour.Set(obj, 12), ErrInvalidValue)
}
