package churro

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/churro/pkg/types"
)

// Kind tells how a folder child is stored.
type Kind int

// Child kinds.
const (
	KindObject Kind = iota
	KindFolder
)

func (k Kind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "object"
}

type entryState int

const (
	// unloaded: listed in storage, not materialized yet.
	unloaded entryState = iota
	// loaded: record is in memory.
	loaded
	// tombstoned: deleted in this session, removed from storage on save.
	tombstoned
)

type entry struct {
	kind   Kind
	state  entryState
	record Entity

	// replaced is set when the entry overwrote another record, so save
	// clears whatever was stored under the name before writing.
	replaced bool
}

// Folder is a record that owns named children. Children are listed from
// storage on first access and materialized one at a time as they are
// retrieved; each name maps to a single in-memory instance for the life of
// the session.
type Folder struct {
	Object

	contents map[string]*entry
	order    []string
	listed   bool

	// origin is the directory the folder was last loaded from or saved to;
	// empty for folders never stored.
	origin string
}

func (f *Folder) folder() *Folder { return f }

// FolderType is the built-in type of plain folders. Folder types declared
// by clients list it among their bases.
var FolderType = mustType(TypeDef{
	Name: "churro.Folder",
	New:  func() Entity { return new(Folder) },
})

func mustType(def TypeDef) *Type {
	t, err := newType(def)
	if err != nil {
		panic(err)
	}
	return t
}

// NewFolder returns an empty plain folder.
func NewFolder() *Folder {
	return FolderType.New().(*Folder)
}

// AsFolder returns the Folder embedded in e, if e is folder capable.
func AsFolder(e Entity) (*Folder, bool) {
	return asFolder(e)
}

func asFolder(e Entity) (*Folder, bool) {
	c, ok := e.(interface{ folder() *Folder })
	if !ok {
		return nil, false
	}
	return c.folder(), true
}

// Child is a named folder entry.
type Child struct {
	Name   string
	Record Entity
}

func validName(name string) error {
	switch {
	case name == "", name == ".", name == "..",
		strings.ContainsAny(name, "/\\"),
		name+Ext == FolderMarker:
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// entries returns the raw contents, tombstones included, listing storage on
// first use.
func (f *Folder) entries() (map[string]*entry, error) {
	if f.listed {
		return f.contents, nil
	}
	if f.contents == nil {
		f.contents = make(map[string]*entry)
	}
	if f.origin == "" || f.handle == nil {
		f.listed = true
		return f.contents, nil
	}

	stored, err := ListStored(f.handle.storage, f.origin)
	if err != nil {
		return nil, err
	}
	for _, c := range stored {
		f.listEntry(c.Name, c.Kind)
	}
	f.listed = true
	return f.contents, nil
}

// StoredChild is a child found in a stored folder directory.
type StoredChild struct {
	Name string
	Kind Kind
}

// ListStored returns the children stored in the folder directory dir, in
// listing order. Subdirectories without a folder marker and files without
// the unit extension are skipped. A missing directory has no children.
func ListStored(s types.Storage, dir string) ([]StoredChild, error) {
	isDir, err := s.IsDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	if !isDir {
		return nil, nil
	}
	var children []StoredChild
	err = s.Cd(dir, func() error {
		names, err := s.List(".")
		if err != nil {
			return err
		}
		for _, name := range names {
			if name == FolderMarker {
				continue
			}
			sub, err := s.IsDir(name)
			if err != nil {
				return err
			}
			if sub {
				marked, err := s.Exists(name + "/" + FolderMarker)
				if err != nil {
					return err
				}
				if marked {
					children = append(children, StoredChild{Name: name, Kind: KindFolder})
				}
			} else if base, ok := strings.CutSuffix(name, Ext); ok && base != "" {
				children = append(children, StoredChild{Name: base, Kind: KindObject})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return children, nil
}

func (f *Folder) listEntry(name string, kind Kind) {
	if _, ok := f.contents[name]; !ok {
		f.order = append(f.order, name)
	}
	f.contents[name] = &entry{kind: kind, state: unloaded}
}

// lookup resolves name, loading it from storage when needed.
func (f *Folder) lookup(name string) (Entity, bool, error) {
	contents, err := f.entries()
	if err != nil {
		return nil, false, err
	}
	ent, ok := contents[name]
	if !ok || ent.state == tombstoned {
		return nil, false, nil
	}
	if ent.state == unloaded {
		rec, err := f.load(name, ent.kind)
		if err != nil {
			return nil, false, err
		}
		ent.record = rec
		ent.state = loaded
	}
	return ent.record, true, nil
}

// load materializes the stored child name from the folder's origin.
func (f *Folder) load(name string, kind Kind) (Entity, error) {
	h := f.handle
	p := unitPath(f.origin, name, kind)
	r, err := h.storage.Open(p)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", p, err)
	}
	defer r.Close()

	rec, err := h.codec.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", p, err)
	}
	sub, isFolder := asFolder(rec)
	if kind == KindFolder && !isFolder {
		return nil, fmt.Errorf("load %s: %w: %s", p, ErrNotFolder, rec.object().typ.name)
	}

	o := rec.object()
	o.parent = &f.Object
	o.name = name
	o.bind(h)
	o.clean = true
	if isFolder {
		sub.origin = joinPath(f.origin, name)
	}
	h.log.WithField("path", p).Debug("loaded record")
	return rec, nil
}

// Get returns the child named name.
// Returns ErrNotFound if there is no such child.
func (f *Folder) Get(name string) (Entity, error) {
	rec, ok, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return rec, nil
}

// GetDefault returns the child named name, or def when there is none.
func (f *Folder) GetDefault(name string, def Entity) (Entity, error) {
	rec, ok, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return def, nil
	}
	return rec, nil
}

// GetFolder returns the child named name as a folder.
// Returns ErrNotFound if there is no such child and ErrNotFolder if the
// child is not folder capable.
func (f *Folder) GetFolder(name string) (*Folder, error) {
	rec, err := f.Get(name)
	if err != nil {
		return nil, err
	}
	sub, ok := asFolder(rec)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFolder, name)
	}
	return sub, nil
}

// Set stores e as the child named name, replacing any existing child. The
// child is attached to this folder and marked dirty together with its
// ancestors.
func (f *Folder) Set(name string, e Entity) error {
	if err := validName(name); err != nil {
		return err
	}
	o := e.object()
	if o.typ == nil {
		return ErrUnbound
	}
	for p := &f.Object; p != nil; p = p.parent {
		if p == o {
			return fmt.Errorf("%w: folder cannot contain itself", ErrInvalidValue)
		}
	}
	contents, err := f.entries()
	if err != nil {
		return err
	}

	sub, isFolder := asFolder(e)
	kind := KindObject
	if isFolder {
		kind = KindFolder
		if sub.origin != "" && sub.origin != ResourcePath(f, name) {
			if err := sub.materialize(); err != nil {
				return err
			}
		}
	}
	ent := &entry{kind: kind, state: loaded, record: e}
	if prev, ok := contents[name]; ok {
		ent.replaced = prev.replaced || prev.record != e
	} else {
		f.order = append(f.order, name)
	}
	contents[name] = ent

	o.parent = &f.Object
	o.name = name
	o.owner = nil
	if f.handle != nil {
		o.bind(f.handle)
	}
	o.SetDirty()
	return nil
}

// Delete removes the child named name. The child stays in storage until the
// folder is saved.
// Returns ErrNotFound if there is no such child.
func (f *Folder) Delete(name string) error {
	ok, err := f.tombstone(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// Remove is Delete.
func (f *Folder) Remove(name string) error {
	return f.Delete(name)
}

// Pop removes the child named name and returns it.
// Returns ErrNotFound if there is no such child.
func (f *Folder) Pop(name string) (Entity, error) {
	rec, ok, err := f.pop(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return rec, nil
}

// PopDefault removes the child named name and returns it, or returns def
// when there is none.
func (f *Folder) PopDefault(name string, def Entity) (Entity, error) {
	rec, ok, err := f.pop(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return def, nil
	}
	return rec, nil
}

func (f *Folder) pop(name string) (Entity, bool, error) {
	rec, ok, err := f.lookup(name)
	if err != nil || !ok {
		return nil, ok, err
	}
	if _, err := f.tombstone(name); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (f *Folder) tombstone(name string) (bool, error) {
	contents, err := f.entries()
	if err != nil {
		return false, err
	}
	ent, ok := contents[name]
	if !ok || ent.state == tombstoned {
		return false, nil
	}
	ent.state = tombstoned
	f.SetDirty()
	return true, nil
}

// Keys returns the names of the children.
func (f *Folder) Keys() ([]string, error) {
	contents, err := f.entries()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(f.order))
	for _, name := range f.order {
		if contents[name].state != tombstoned {
			keys = append(keys, name)
		}
	}
	return keys, nil
}

// Items returns the children, materializing every one of them.
func (f *Folder) Items() ([]Child, error) {
	keys, err := f.Keys()
	if err != nil {
		return nil, err
	}
	items := make([]Child, 0, len(keys))
	for _, name := range keys {
		rec, _, err := f.lookup(name)
		if err != nil {
			return nil, err
		}
		items = append(items, Child{Name: name, Record: rec})
	}
	return items, nil
}

// Values returns the child records.
func (f *Folder) Values() ([]Entity, error) {
	items, err := f.Items()
	if err != nil {
		return nil, err
	}
	values := make([]Entity, len(items))
	for i, it := range items {
		values[i] = it.Record
	}
	return values, nil
}

// Len returns the number of children.
func (f *Folder) Len() (int, error) {
	keys, err := f.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Empty reports whether the folder has no children.
func (f *Folder) Empty() (bool, error) {
	n, err := f.Len()
	return n == 0, err
}

// Contains reports whether a child named name exists.
func (f *Folder) Contains(name string) (bool, error) {
	contents, err := f.entries()
	if err != nil {
		return false, err
	}
	ent, ok := contents[name]
	return ok && ent.state != tombstoned, nil
}

// materialize loads every stored descendant into memory and marks it dirty,
// detaching the subtree from the location it was loaded from. Folders moved
// to a new path are materialized so that save can write them in full.
func (f *Folder) materialize() error {
	contents, err := f.entries()
	if err != nil {
		return err
	}
	for _, name := range f.order {
		ent := contents[name]
		if ent.state == tombstoned {
			continue
		}
		if ent.state == unloaded {
			rec, err := f.load(name, ent.kind)
			if err != nil {
				return err
			}
			ent.record = rec
			ent.state = loaded
		}
		if sub, ok := asFolder(ent.record); ok {
			if err := sub.materialize(); err != nil {
				return err
			}
		}
		ent.record.object().clean = false
	}
	f.origin = ""
	f.clean = false
	return nil
}

// save writes the dirty part of the subtree rooted at f: tombstoned children
// are removed, dirty children are written and clean or never loaded
// children are left alone. The folder's own unit is written last.
func (f *Folder) save() error {
	h := f.handle
	if h == nil {
		return fmt.Errorf("save %s: %w", ResourcePath(f), ErrUnbound)
	}
	if _, err := f.entries(); err != nil {
		return err
	}
	s := h.storage
	dir := ResourcePath(f)

	isDir, err := s.IsDir(dir)
	if err != nil {
		return fmt.Errorf("save %s: %w", dir, err)
	}
	if !isDir {
		if err := s.Mkdir(dir); err != nil {
			return fmt.Errorf("save %s: %w", dir, err)
		}
	}

	var removed []string
	for _, name := range f.order {
		ent := f.contents[name]
		if ent.replaced {
			if err := clearStored(s, dir, name); err != nil {
				return err
			}
			ent.replaced = false
		}

		switch {
		case ent.state == unloaded:
			continue
		case ent.state == tombstoned:
			if err := removeStored(s, childPath(dir, name, ent.kind), ent.kind); err != nil {
				return err
			}
			h.log.WithField("path", childPath(dir, name, ent.kind)).Debug("removed tombstoned child")
			removed = append(removed, name)
		case ent.kind == KindFolder:
			sub, _ := asFolder(ent.record)
			if !sub.IsDirty() {
				continue
			}
			if err := sub.save(); err != nil {
				return err
			}
		default:
			o := ent.record.object()
			if !o.IsDirty() {
				continue
			}
			if err := writeUnit(h, unitPath(dir, name, KindObject), ent.record); err != nil {
				return err
			}
			o.clean = true
		}
	}

	if err := writeUnit(h, joinPath(dir, FolderMarker), f.self); err != nil {
		return err
	}
	for _, name := range removed {
		delete(f.contents, name)
	}
	if len(removed) > 0 {
		order := f.order[:0]
		for _, name := range f.order {
			if _, ok := f.contents[name]; ok {
				order = append(order, name)
			}
		}
		f.order = order
	}
	f.clean = true
	f.origin = dir
	return nil
}

// writeUnit encodes e and stores it at p. Nothing is stored when encoding
// fails.
func writeUnit(h *handle, p string, e Entity) error {
	data, err := h.codec.Marshal(e)
	if err != nil {
		return fmt.Errorf("save %s: %w", p, err)
	}
	w, err := h.storage.Create(p)
	if err != nil {
		return fmt.Errorf("save %s: %w", p, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("save %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("save %s: %w", p, err)
	}
	h.log.WithField("path", p).Debug("saved record")
	return nil
}

// removeStored deletes the stored form of a child if it exists.
func removeStored(s types.Storage, p string, kind Kind) error {
	ok, err := s.Exists(p)
	if err != nil || !ok {
		return err
	}
	if kind == KindFolder {
		err = s.RemoveAll(p)
	} else {
		err = s.Remove(p)
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

// clearStored deletes both stored forms of a child name.
func clearStored(s types.Storage, dir, name string) error {
	if err := removeStored(s, childPath(dir, name, KindFolder), KindFolder); err != nil {
		return err
	}
	return removeStored(s, childPath(dir, name, KindObject), KindObject)
}
