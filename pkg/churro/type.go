package churro

import (
	"fmt"
	"sync"
)

// TypeDef declares a record type.
type TypeDef struct {
	// Name identifies the type in stored units. It must be stable across
	// releases; renaming a type orphans every unit written under the old
	// name.
	Name string

	// Bases are the types whose properties this type inherits, in priority
	// order.
	Bases []*Type

	// Properties are the properties this type declares. A property with the
	// same name as an inherited one replaces it.
	Properties []*Property

	// New allocates a zero instance. It must not run construction logic:
	// the codec calls it before restoring stored attributes.
	New func() Entity
}

// Type is a registered record type.
type Type struct {
	name   string
	bases  []*Type
	own    []*Property
	newFn  func() Entity
	props  []*Property
	byName map[string]*Property
}

func newType(def TypeDef) (*Type, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("type name must not be empty")
	}
	if def.New == nil {
		return nil, fmt.Errorf("type %s: constructor must not be nil", def.Name)
	}
	seen := make(map[string]bool, len(def.Properties))
	for _, p := range def.Properties {
		if p == nil || p.name == "" {
			return nil, fmt.Errorf("type %s: property without a name", def.Name)
		}
		if seen[p.name] {
			return nil, fmt.Errorf("type %s: property %q declared twice", def.Name, p.name)
		}
		seen[p.name] = true
	}

	t := &Type{
		name:  def.Name,
		bases: def.Bases,
		own:   def.Properties,
		newFn: def.New,
	}
	t.resolve()
	return t, nil
}

// resolve flattens the property lists of t and its bases. The walk visits t
// first, then each base depth-first, so the most derived declaration of a
// name wins.
func (t *Type) resolve() {
	t.byName = make(map[string]*Property)
	visited := make(map[*Type]bool)
	var walk func(*Type)
	walk = func(cur *Type) {
		if cur == nil || visited[cur] {
			return
		}
		visited[cur] = true
		for _, p := range cur.own {
			if _, ok := t.byName[p.name]; ok {
				continue
			}
			t.byName[p.name] = p
			t.props = append(t.props, p)
		}
		for _, b := range cur.bases {
			walk(b)
		}
	}
	walk(t)
}

// Name returns the stable identifier of the type.
func (t *Type) Name() string {
	return t.name
}

// Properties returns every property of the type, inherited ones included.
func (t *Type) Properties() []*Property {
	ps := make([]*Property, len(t.props))
	copy(ps, t.props)
	return ps
}

// Property returns the property with the given name, or nil.
func (t *Type) Property(name string) *Property {
	return t.byName[name]
}

// IsA reports whether t is other or derives from it.
func (t *Type) IsA(other *Type) bool {
	if t == other {
		return true
	}
	for _, b := range t.bases {
		if b.IsA(other) {
			return true
		}
	}
	return false
}

// New allocates a new, dirty instance of the type.
func (t *Type) New() Entity {
	e := t.newFn()
	o := e.object()
	o.typ = t
	o.self = e
	o.values = make(map[string]any, len(t.props))
	return e
}

// Registry maps stable type identifiers to record types. The codec resolves
// stored units through it.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry returns a registry holding the built-in FolderType.
func NewRegistry() *Registry {
	return &Registry{
		types: map[string]*Type{FolderType.name: FolderType},
	}
}

// DefaultRegistry is the registry used when none is configured.
var DefaultRegistry = NewRegistry()

// Define registers a new record type.
// Returns ErrDuplicateType if the name is already registered.
func (r *Registry) Define(def TypeDef) (*Type, error) {
	t, err := newType(def)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.types[t.name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateType, t.name)
	}
	r.types[t.name] = t
	return t, nil
}

// MustDefine is like Define but panics on error. It is meant for
// package-level type declarations.
func (r *Registry) MustDefine(def TypeDef) *Type {
	t, err := r.Define(def)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the type registered under name.
// Returns ErrUnknownType if there is none.
func (r *Registry) Lookup(name string) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// Names returns the registered type identifiers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}
