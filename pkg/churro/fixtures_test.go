package churro

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/churro/internal/acidfs"
	"github.com/mesh-intelligence/churro/pkg/txn"
	"github.com/mesh-intelligence/churro/pkg/types"
)

var (
	testRegistry = NewRegistry()

	propOne   = NewProperty("one")
	propTwo   = NewProperty("two")
	propThree = NewDateProperty("three")
	propFour  = NewDatetimeProperty("four")

	testClassType = testRegistry.MustDefine(TypeDef{
		Name:       "churro_test.TestClass",
		Properties: []*Property{propOne, propTwo},
		New:        func() Entity { return new(testClass) },
	})

	testDatesType = testRegistry.MustDefine(TypeDef{
		Name:       "churro_test.TestClassWithDates",
		Bases:      []*Type{testClassType},
		Properties: []*Property{propThree, propFour},
		New:        func() Entity { return new(testDates) },
	})

	testFolderType = testRegistry.MustDefine(TypeDef{
		Name:  "churro_test.TestFolder",
		Bases: []*Type{FolderType, testClassType},
		New:   func() Entity { return new(testFolder) },
	})
)

type testClass struct{ Object }

func newTestClass(one, two any) *testClass {
	obj := testClassType.New().(*testClass)
	propOne.MustSet(obj, one)
	propTwo.MustSet(obj, two)
	return obj
}

type testDates struct{ Object }

type testFolder struct{ Folder }

func newTestFolder(one, two any) *testFolder {
	f := testFolderType.New().(*testFolder)
	propOne.MustSet(f, one)
	propTwo.MustSet(f, two)
	return f
}

// harness shares one in-memory repository between successive Churro
// instances, each of which starts from the committed state.
type harness struct {
	t     *testing.T
	store *acidfs.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := acidfs.Open(types.DefaultConfig("/repo"), acidfs.WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &harness{t: t, store: store}
}

func (h *harness) open() *Churro {
	c := New(h.store, WithRegistry(testRegistry))
	h.t.Cleanup(func() { c.Abort(context.Background()) })
	return c
}

func (h *harness) root(c *Churro) *Folder {
	h.t.Helper()
	root, err := c.Root()
	require.NoError(h.t, err)
	return root
}

func (h *harness) commit(c *Churro) {
	h.t.Helper()
	require.NoError(h.t, c.Commit(context.Background()))
}

// stored reports whether p exists at the branch head.
func (h *harness) stored(p string) bool {
	h.t.Helper()
	m := txn.NewManager(nil)
	defer m.Abort(context.Background())
	st, err := h.store.Join(m.Get())
	require.NoError(h.t, err)
	ok, err := st.Exists(p)
	require.NoError(h.t, err)
	return ok
}

func (h *harness) commits() int {
	h.t.Helper()
	log, err := h.store.Log(0)
	require.NoError(h.t, err)
	return len(log)
}

func mustGet(t *testing.T, f *Folder, name string) Entity {
	t.Helper()
	e, err := f.Get(name)
	require.NoError(t, err)
	return e
}
