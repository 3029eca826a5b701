package churro

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Unit naming.
const (
	// Ext is the file extension of every stored unit.
	Ext = ".churro"

	// FolderMarker is the unit holding a folder's own attributes. A
	// directory is a persisted folder only if it contains one.
	FolderMarker = "__folder__" + Ext
)

// Keys of the self-describing unit layout.
const (
	typeKey = "__churro_type__"
	dataKey = "__churro_data__"
)

// Codec converts records to and from their self-describing JSON form:
//
//	{"__churro_type__": "<type>", "__churro_data__": {"<property>": <value>}}
//
// Nested records use the same layout; *Map and *List encode as JSON objects
// and arrays.
type Codec struct {
	registry *Registry
}

// NewCodec returns a Codec resolving types through r. A nil r selects
// DefaultRegistry.
func NewCodec(r *Registry) *Codec {
	if r == nil {
		r = DefaultRegistry
	}
	return &Codec{registry: r}
}

// Registry returns the registry the codec resolves types through.
func (c *Codec) Registry() *Registry {
	return c.registry
}

// Marshal returns the encoded form of e.
// Returns ErrUnencodable if a property value has no encoding.
func (c *Codec) Marshal(e Entity) ([]byte, error) {
	doc, err := c.encodeEntity(e)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnencodable, err)
	}
	return buf.Bytes(), nil
}

// Encode writes the encoded form of e to w. Nothing is written when
// encoding fails.
func (c *Codec) Encode(w io.Writer, e Entity) error {
	data, err := c.Marshal(e)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (c *Codec) encodeEntity(e Entity) (map[string]any, error) {
	o := e.object()
	if o.typ == nil {
		return nil, fmt.Errorf("%w: %w: %T", ErrUnencodable, ErrUnbound, e)
	}
	data := make(map[string]any, len(o.values))
	for _, p := range o.typ.props {
		v, ok := o.values[p.name]
		if !ok {
			continue
		}
		enc, err := p.encode(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %w", ErrUnencodable, o.typ.name, p.name, err)
		}
		out, err := c.encodeValue(enc)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", o.typ.name, p.name, err)
		}
		data[p.name] = out
	}
	return map[string]any{
		typeKey: o.typ.name,
		dataKey: data,
	}, nil
}

// floatNumber renders x so that it always decodes back as a float: integral
// values keep a ".0" fraction.
func floatNumber(x float64) json.Number {
	s := strconv.FormatFloat(x, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s)
}

func (c *Codec) encodeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int64, json.Number:
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: non-finite number %v", ErrUnencodable, x)
		}
		return floatNumber(x), nil
	case Entity:
		return c.encodeEntity(x)
	case *Map:
		out := make(map[string]any, len(x.data))
		for k, item := range x.data {
			enc, err := c.encodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = enc
		}
		return out, nil
	case *List:
		out := make([]any, len(x.data))
		for i, item := range x.data {
			enc, err := c.encodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = enc
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unsupported type %T", ErrUnencodable, v)
}

// Unmarshal reconstructs the record encoded in data. The record and every
// record nested in it are clean.
// Returns ErrUnknownType if a type identifier is not registered.
func (c *Codec) Unmarshal(data []byte) (Entity, error) {
	return c.Decode(bytes.NewReader(data))
}

// Decode reads one encoded record from r.
func (c *Codec) Decode(r io.Reader) (Entity, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode unit: %w", err)
	}
	v, err := c.decodeValue(raw)
	if err != nil {
		return nil, err
	}
	e, ok := v.(Entity)
	if !ok {
		return nil, fmt.Errorf("%w: unit does not hold a record", ErrUnknownType)
	}
	return e, nil
}

func (c *Codec) decodeValue(raw any) (any, error) {
	switch x := raw.(type) {
	case map[string]any:
		if _, ok := x[typeKey]; ok {
			return c.decodeEntity(x)
		}
		m := &Map{data: make(map[string]any, len(x))}
		for k, item := range x {
			v, err := c.decodeValue(item)
			if err != nil {
				return nil, err
			}
			m.data[k] = v
		}
		return m, nil
	case []any:
		l := &List{data: make([]any, len(x))}
		for i, item := range x {
			v, err := c.decodeValue(item)
			if err != nil {
				return nil, err
			}
			l.data[i] = v
		}
		return l, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("decode number %s: %w", x, err)
		}
		return f, nil
	}
	return raw, nil
}

func (c *Codec) decodeEntity(doc map[string]any) (Entity, error) {
	name, ok := doc[typeKey].(string)
	if !ok {
		return nil, fmt.Errorf("%w: malformed type identifier %v", ErrUnknownType, doc[typeKey])
	}
	t, err := c.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	e := t.New()
	o := e.object()
	data, _ := doc[dataKey].(map[string]any)
	for k, raw := range data {
		p := t.Property(k)
		if p == nil {
			// Attributes the type no longer declares are dropped.
			continue
		}
		v, err := c.decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, k, err)
		}
		v, err = p.decode(v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, k, err)
		}
		if err := p.set(o, v, false); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	o.clean = true
	return e, nil
}
