package churro

import (
	log "github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/churro/pkg/types"
)

// Entity is a persistent record. Types satisfy it by embedding Object or
// Folder and are created through Type.New.
type Entity interface {
	object() *Object
}

// handle is the storage connection a record tree is attached to.
type handle struct {
	storage types.Storage
	codec   *Codec
	log     log.FieldLogger
}

// Object is the base of every persistent record. The zero value is dirty:
// records that have never been saved always need writing.
type Object struct {
	typ    *Type
	self   Entity
	values map[string]any

	name   string
	parent *Object // containing folder, nil for the root
	owner  *Object // record holding this one as a property value
	handle *handle
	clean  bool
}

func (o *Object) object() *Object { return o }

// Type returns the record's type, or nil when the record was not created
// through Type.New.
func (o *Object) Type() *Type {
	return o.typ
}

// Name returns the record's name within its folder. The root and records
// held as property values have no name.
func (o *Object) Name() string {
	return o.name
}

// Parent returns the folder containing the record, or nil.
func (o *Object) Parent() Entity {
	if o.parent == nil {
		return nil
	}
	return o.parent.self
}

// IsDirty reports whether the record has unsaved changes.
func (o *Object) IsDirty() bool {
	return !o.clean
}

// SetDirty marks the record dirty, then the record owning it (for nested
// records) and every folder up to the root.
func (o *Object) SetDirty() {
	for n := o; n != nil; {
		n.clean = false
		if n.owner != nil {
			n = n.owner
		} else {
			n = n.parent
		}
	}
}

// lineage returns the record and everything SetDirty reaches from it.
func (o *Object) lineage() map[*Object]bool {
	seen := make(map[*Object]bool)
	for n := o; n != nil && !seen[n]; {
		seen[n] = true
		if n.owner != nil {
			n = n.owner
		} else {
			n = n.parent
		}
	}
	return seen
}

// holds reports whether v contains, at any depth, a record in set.
func holds(v any, set map[*Object]bool) bool {
	switch x := v.(type) {
	case Entity:
		o := x.object()
		if set[o] {
			return true
		}
		for _, item := range o.values {
			if holds(item, set) {
				return true
			}
		}
	case *Map:
		for _, item := range x.data {
			if holds(item, set) {
				return true
			}
		}
	case *List:
		for _, item := range x.data {
			if holds(item, set) {
				return true
			}
		}
	}
	return false
}

// bind attaches the record and everything it holds to h.
func (o *Object) bind(h *handle) {
	o.handle = h
	for _, v := range o.values {
		bindValue(v, h)
	}
	if f, ok := asFolder(o.self); ok {
		for _, ent := range f.contents {
			if ent.record != nil {
				ent.record.object().bind(h)
			}
		}
	}
}

func bindValue(v any, h *handle) {
	switch x := v.(type) {
	case Entity:
		x.object().bind(h)
	case *Map:
		for _, item := range x.data {
			bindValue(item, h)
		}
	case *List:
		for _, item := range x.data {
			bindValue(item, h)
		}
	}
}

// adopt makes owner responsible for v: nested records and container
// wrappers propagate their mutations to owner.
func adopt(owner *Object, v any) {
	switch x := v.(type) {
	case Entity:
		o := x.object()
		o.owner = owner
		if owner != nil && owner.handle != nil {
			o.bind(owner.handle)
		}
	case *Map:
		x.owner = owner
		for _, item := range x.data {
			adopt(owner, item)
		}
	case *List:
		x.owner = owner
		for _, item := range x.data {
			adopt(owner, item)
		}
	}
}
