package acidfs

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/churro/pkg/txn"
	"github.com/mesh-intelligence/churro/pkg/types"
)

func openMem(t *testing.T, fs afero.Fs) *Store {
	t.Helper()
	cfg := types.DefaultConfig("/repo")
	cfg.Create = true
	s, err := Open(cfg, WithFs(fs))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, st types.Storage, p, content string) {
	t.Helper()
	w, err := st.Create(p)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readFile(t *testing.T, st types.Storage, p string) string {
	t.Helper()
	r, err := st.Open(p)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestOpenMissingRepository(t *testing.T) {
	cfg := types.DefaultConfig("/nowhere")
	cfg.Create = false
	_, err := Open(cfg, WithFs(afero.NewMemMapFs()))
	assert.ErrorIs(t, err, types.ErrRepoNotFound)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(types.Config{}, WithFs(afero.NewMemMapFs()))
	assert.Error(t, err)
}

func TestCommitMakesWritesVisible(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := openMem(t, fs)
	m := txn.NewManager(nil)
	ctx := context.Background()

	head, err := s.Head()
	require.NoError(t, err)
	assert.Empty(t, head)

	st, err := s.Join(m.Get())
	require.NoError(t, err)
	writeFile(t, st, "/a/b.txt", "hello")
	assert.Equal(t, "hello", readFile(t, st, "/a/b.txt"), "own writes are visible")
	require.NoError(t, m.Commit(ctx))

	head, err = s.Head()
	require.NoError(t, err)
	require.NotEmpty(t, head)
	ok, err := afero.DirExists(fs, filepath.Join("/repo", ".churro", "trees", head))
	require.NoError(t, err)
	assert.True(t, ok)

	st, err = s.Join(m.Get())
	require.NoError(t, err)
	assert.Equal(t, "hello", readFile(t, st, "/a/b.txt"))
	require.NoError(t, m.Abort(ctx))

	commits, err := s.Log(0)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, head, commits[0].ID)
	assert.Equal(t, DefaultBranch, commits[0].Branch)
	assert.Empty(t, commits[0].Parent)
	assert.Positive(t, commits[0].Changes)
}

func TestJoinReturnsSameView(t *testing.T) {
	s := openMem(t, afero.NewMemMapFs())
	tx := txn.NewManager(nil).Get()

	a, err := s.Join(tx)
	require.NoError(t, err)
	b, err := s.Join(tx)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Len(t, tx.Participants(), 1)
}

func TestAbortDiscardsStagingTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := openMem(t, fs)
	m := txn.NewManager(nil)
	ctx := context.Background()

	st, err := s.Join(m.Get())
	require.NoError(t, err)
	writeFile(t, st, "/x.txt", "x")
	stage := st.(*Tx).stageID
	require.NotEmpty(t, stage)
	require.NoError(t, m.Abort(ctx))

	ok, err := afero.DirExists(fs, filepath.Join("/repo", ".churro", "trees", stage))
	require.NoError(t, err)
	assert.False(t, ok)

	head, err := s.Head()
	require.NoError(t, err)
	assert.Empty(t, head)

	st, err = s.Join(m.Get())
	require.NoError(t, err)
	exists, err := st.Exists("/x.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestReadOnlyTransactionRecordsNothing(t *testing.T) {
	s := openMem(t, afero.NewMemMapFs())
	m := txn.NewManager(nil)

	st, err := s.Join(m.Get())
	require.NoError(t, err)
	_, err = st.Exists("/anything")
	require.NoError(t, err)
	require.NoError(t, m.Commit(context.Background()))

	commits, err := s.Log(0)
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestConcurrentCommitConflicts(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := openMem(t, fs)
	ctx := context.Background()
	m1, m2 := txn.NewManager(nil), txn.NewManager(nil)

	st1, err := s.Join(m1.Get())
	require.NoError(t, err)
	st2, err := s.Join(m2.Get())
	require.NoError(t, err)

	writeFile(t, st1, "/f.txt", "one")
	writeFile(t, st2, "/f.txt", "two")
	stage2 := st2.(*Tx).stageID

	require.NoError(t, m1.Commit(ctx))
	err = m2.Commit(ctx)
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.ErrorIs(t, err, txn.ErrPrepareFailed)

	ok, err := afero.DirExists(fs, filepath.Join("/repo", ".churro", "trees", stage2))
	require.NoError(t, err)
	assert.False(t, ok, "losing staging tree is removed")

	st, err := s.Join(m1.Get())
	require.NoError(t, err)
	assert.Equal(t, "one", readFile(t, st, "/f.txt"))
}

func TestHistoryFollowsParents(t *testing.T) {
	s := openMem(t, afero.NewMemMapFs())
	m := txn.NewManager(nil)
	ctx := context.Background()

	for _, content := range []string{"v1", "v2", "v3"} {
		st, err := s.Join(m.Get())
		require.NoError(t, err)
		writeFile(t, st, "/f.txt", content)
		require.NoError(t, m.Commit(ctx))
	}

	commits, err := s.Log(0)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, commits[1].ID, commits[0].Parent)
	assert.Equal(t, commits[2].ID, commits[1].Parent)
	assert.Empty(t, commits[2].Parent)

	limited, err := s.Log(2)
	require.NoError(t, err)
	assert.Equal(t, commits[:2], limited)

	snap, err := s.Snapshot(commits[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", readFile(t, snap, "/f.txt"))
	_, err = snap.Create("/g.txt")
	assert.ErrorIs(t, err, ErrReadOnly)

	_, err = s.Snapshot("missing")
	assert.Error(t, err)
}

func TestStorageSemantics(t *testing.T) {
	s := openMem(t, afero.NewMemMapFs())
	m := txn.NewManager(nil)
	defer m.Abort(context.Background())

	st, err := s.Join(m.Get())
	require.NoError(t, err)

	writeFile(t, st, "/d/b.txt", "b")
	writeFile(t, st, "/d/a.txt", "a")
	require.NoError(t, st.Mkdir("/d/sub"))

	names, err := st.List("/d")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "sub"}, names)

	_, err = st.List("/nope")
	assert.ErrorIs(t, err, types.ErrNotExist)

	dir, err := st.IsDir("/d/sub")
	require.NoError(t, err)
	assert.True(t, dir)
	dir, err = st.IsDir("/missing")
	require.NoError(t, err)
	assert.False(t, dir)

	_, err = st.Open("/d/sub")
	assert.ErrorIs(t, err, types.ErrIsDir)
	_, err = st.Open("/d/none.txt")
	assert.ErrorIs(t, err, types.ErrNotExist)
	assert.ErrorIs(t, st.Remove("/d/none.txt"), types.ErrNotExist)

	err = st.Cd("/d", func() error {
		assert.Equal(t, "a", readFile(t, st, "a.txt"))
		return st.Cd("sub", func() error {
			writeFile(t, st, "c.txt", "c")
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, "c", readFile(t, st, "/d/sub/c.txt"))

	require.NoError(t, st.Remove("/d/a.txt"))
	require.NoError(t, st.RemoveAll("/d/sub"))
	names, err = st.List("/d")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, names)
}

func TestWritesAfterFinishFail(t *testing.T) {
	s := openMem(t, afero.NewMemMapFs())
	m := txn.NewManager(nil)

	st, err := s.Join(m.Get())
	require.NoError(t, err)
	require.NoError(t, m.Abort(context.Background()))

	_, err = st.Create("/late.txt")
	assert.ErrorIs(t, err, types.ErrSessionClosed)
}

func TestBranchesOnDisk(t *testing.T) {
	if testing.Short() {
		t.Skip("creates a repository on disk")
	}
	dir := t.TempDir()
	ctx := context.Background()

	cfg := types.DefaultConfig(dir)
	cfg.Create = true
	mainStore, err := Open(cfg)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, ".churro", "repo.yaml"))
	assert.Equal(t, DefaultBranch, mainStore.Branch())
	assert.False(t, mainStore.Bare())

	m := txn.NewManager(nil)
	st, err := mainStore.Join(m.Get())
	require.NoError(t, err)
	writeFile(t, st, "/f.txt", "main")
	require.NoError(t, m.Commit(ctx))
	mainHead, err := mainStore.Head()
	require.NoError(t, err)
	require.NoError(t, mainStore.Close())

	devCfg := types.DefaultConfig(dir)
	devCfg.Head = "dev"
	dev, err := Open(devCfg)
	require.NoError(t, err)
	defer dev.Close()

	devHead, err := dev.Head()
	require.NoError(t, err)
	assert.Equal(t, mainHead, devHead, "new branch starts at the default head")

	st, err = dev.Join(m.Get())
	require.NoError(t, err)
	assert.Equal(t, "main", readFile(t, st, "/f.txt"))
	writeFile(t, st, "/f.txt", "dev")
	require.NoError(t, m.Commit(ctx))

	branches, err := dev.Branches()
	require.NoError(t, err)
	require.Len(t, branches, 2)
	assert.Equal(t, "dev", branches[0].Name)
	assert.NotEqual(t, mainHead, branches[0].Head)
	assert.Equal(t, Branch{Name: DefaultBranch, Head: mainHead}, branches[1])
}

func TestBareRepository(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := types.DefaultConfig("/bare")
	cfg.Create = true
	cfg.Bare = true
	s, err := Open(cfg, WithFs(fs))
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.Bare())
	ok, err := afero.Exists(fs, "/bare/repo.yaml")
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := Open(types.DefaultConfig("/bare"), WithFs(fs))
	require.NoError(t, err)
	defer again.Close()
	assert.True(t, again.Bare())
}
