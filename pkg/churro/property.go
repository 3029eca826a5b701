package churro

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Property is a named, validated, change-tracked attribute of a record type.
type Property struct {
	name     string
	validate func(any) (any, error)
	encode   func(any) (any, error)
	decode   func(any) (any, error)
}

// PropertyOption customizes a Property.
type PropertyOption func(*Property)

// WithValidator sets the function checking candidate values. It returns the
// value to store, which lets it canonicalize input, or an error rejecting
// it. It must not modify shared state.
func WithValidator(fn func(any) (any, error)) PropertyOption {
	return func(p *Property) {
		p.validate = fn
	}
}

// WithCodec sets the conversions between stored values and their encoded
// form. Both default to the identity.
func WithCodec(encode, decode func(any) (any, error)) PropertyOption {
	return func(p *Property) {
		if encode != nil {
			p.encode = encode
		}
		if decode != nil {
			p.decode = decode
		}
	}
}

func identity(v any) (any, error) { return v, nil }

// NewProperty creates a property holding any encodable value.
func NewProperty(name string, opts ...PropertyOption) *Property {
	p := &Property{
		name:     name,
		validate: identity,
		encode:   identity,
		decode:   identity,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the property name.
func (p *Property) Name() string {
	return p.name
}

// Get returns the value of the property on e, or nil when unset.
func (p *Property) Get(e Entity) any {
	return e.object().values[p.name]
}

// Set validates v and stores it on e, marking e and its ancestors dirty.
// Records and container wrappers stored this way become owned by e.
// Returns ErrInvalidValue if validation rejects v.
func (p *Property) Set(e Entity, v any) error {
	return p.set(e.object(), v, true)
}

// MustSet is like Set but panics on error.
func (p *Property) MustSet(e Entity, v any) {
	if err := p.Set(e, v); err != nil {
		panic(err)
	}
}

func (p *Property) set(o *Object, v any, markDirty bool) error {
	if o.typ == nil {
		return ErrUnbound
	}
	if o.typ.Property(p.name) != p {
		return fmt.Errorf("%w: %s.%s", ErrUndeclared, o.typ.name, p.name)
	}
	v, err := p.validate(normalize(v))
	if err != nil {
		if errors.Is(err, ErrInvalidValue) {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, p.name, err)
	}

	if holds(v, o.lineage()) {
		return fmt.Errorf("%w: %s: record cannot hold itself or an ancestor", ErrInvalidValue, p.name)
	}

	o.values[p.name] = v
	adopt(o, v)
	if markDirty {
		o.SetDirty()
	}
	return nil
}

// normalize converts Go values to the canonical kinds the codec reads back:
// int64 for integers, float64 for floats and wrappers for plain maps and
// slices.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x)
		}
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
	case float32:
		return float64(x)
	case map[string]any:
		return NewMap(x)
	case []any:
		return NewList(x...)
	case []string:
		items := make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
		return NewList(items...)
	}
	return v
}

const dateLayout = "2006-01-02"

// NewDateProperty creates a property holding a calendar date as a
// time.Time, or nil. Values are truncated to midnight UTC and encoded as
// YYYY-MM-DD.
func NewDateProperty(name string) *Property {
	return NewProperty(name,
		WithValidator(func(v any) (any, error) {
			switch t := v.(type) {
			case nil:
				return nil, nil
			case time.Time:
				y, m, d := t.Date()
				return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
			}
			return nil, fmt.Errorf("%w: want date, got %T", ErrInvalidValue, v)
		}),
		WithCodec(
			func(v any) (any, error) {
				if t, ok := v.(time.Time); ok {
					return t.Format(dateLayout), nil
				}
				return v, nil
			},
			func(v any) (any, error) {
				return parseTime(v, dateLayout)
			},
		),
	)
}

// NewDatetimeProperty creates a property holding an instant as a time.Time,
// or nil. Values are stored in UTC and encoded as RFC 3339 with
// nanoseconds.
func NewDatetimeProperty(name string) *Property {
	return NewProperty(name,
		WithValidator(func(v any) (any, error) {
			switch t := v.(type) {
			case nil:
				return nil, nil
			case time.Time:
				return t.UTC().Round(0), nil
			}
			return nil, fmt.Errorf("%w: want datetime, got %T", ErrInvalidValue, v)
		}),
		WithCodec(
			func(v any) (any, error) {
				if t, ok := v.(time.Time); ok {
					return t.Format(time.RFC3339Nano), nil
				}
				return v, nil
			},
			func(v any) (any, error) {
				return parseTime(v, time.RFC3339Nano)
			},
		),
	)
}

func parseTime(v any, layout string) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		t, err := time.Parse(layout, s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: want encoded time, got %T", ErrInvalidValue, v)
}
