package acidfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/mesh-intelligence/churro/pkg/txn"
	"github.com/mesh-intelligence/churro/pkg/types"
)

// ErrReadOnly is returned by writes to a snapshot.
var ErrReadOnly = errors.New("storage view is read-only")

// view implements the read side of types.Storage over an afero.Fs.
type view struct {
	cwd string
}

func (v *view) resolve(p string) string {
	if !path.IsAbs(p) {
		p = path.Join(v.cwd, p)
	}
	return path.Clean(p)
}

func exists(fs afero.Fs, p string) (bool, error) {
	_, err := fs.Stat(p)
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, err
}

func isDir(fs afero.Fs, p string) (bool, error) {
	fi, err := fs.Stat(p)
	if err == nil {
		return fi.IsDir(), nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, err
}

func list(fs afero.Fs, p string) ([]string, error) {
	infos, err := afero.ReadDir(fs, p)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotExist, p)
		}
		return nil, err
	}
	names := make([]string, len(infos))
	for i, fi := range infos {
		names[i] = fi.Name()
	}
	sort.Strings(names)
	return names, nil
}

func open(fs afero.Fs, p string) (io.ReadCloser, error) {
	fi, err := fs.Stat(p)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotExist, p)
		}
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", types.ErrIsDir, p)
	}
	return fs.Open(p)
}

// Tx is the storage view of one transaction. Reads see the branch head as
// of the first access in the transaction plus the transaction's own writes.
// The first write copies the head tree into a new staging tree that becomes
// the next commit.
type Tx struct {
	view

	store *Store
	tx    *txn.Transaction
	base  string
	read  afero.Fs

	stageID string
	stage   afero.Fs
	changes int

	db   *sql.Tx
	done bool
}

var _ types.Storage = (*Tx)(nil)

func (t *Tx) fs() afero.Fs {
	if t.stage != nil {
		return t.stage
	}
	return t.read
}

// Base returns the commit the transaction started from.
func (t *Tx) Base() string {
	return t.base
}

// Exists implements types.Storage.
func (t *Tx) Exists(p string) (bool, error) {
	return exists(t.fs(), t.resolve(p))
}

// IsDir implements types.Storage.
func (t *Tx) IsDir(p string) (bool, error) {
	return isDir(t.fs(), t.resolve(p))
}

// List implements types.Storage.
func (t *Tx) List(p string) ([]string, error) {
	return list(t.fs(), t.resolve(p))
}

// Open implements types.Storage.
func (t *Tx) Open(p string) (io.ReadCloser, error) {
	return open(t.fs(), t.resolve(p))
}

// Cd implements types.Storage.
func (t *Tx) Cd(p string, fn func() error) error {
	prev := t.cwd
	t.cwd = t.resolve(p)
	defer func() { t.cwd = prev }()
	return fn()
}

// Mkdir implements types.Storage.
func (t *Tx) Mkdir(p string) error {
	fs, err := t.writable()
	if err != nil {
		return err
	}
	t.changes++
	return fs.MkdirAll(t.resolve(p), 0o755)
}

// RemoveAll implements types.Storage.
func (t *Tx) RemoveAll(p string) error {
	fs, err := t.writable()
	if err != nil {
		return err
	}
	t.changes++
	return fs.RemoveAll(t.resolve(p))
}

// Remove implements types.Storage.
func (t *Tx) Remove(p string) error {
	fs, err := t.writable()
	if err != nil {
		return err
	}
	p = t.resolve(p)
	ok, err := isDir(fs, p)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", types.ErrIsDir, p)
	}
	if err := fs.Remove(p); err != nil {
		if isNotExist(err) {
			return fmt.Errorf("%w: %s", types.ErrNotExist, p)
		}
		return err
	}
	t.changes++
	return nil
}

// Create implements types.Storage. Missing parent directories are created.
func (t *Tx) Create(p string) (io.WriteCloser, error) {
	fs, err := t.writable()
	if err != nil {
		return nil, err
	}
	p = t.resolve(p)
	if err := fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return nil, err
	}
	t.changes++
	return fs.Create(p)
}

// writable returns the staging tree, creating it from the base tree on
// first use.
func (t *Tx) writable() (afero.Fs, error) {
	if t.done {
		return nil, types.ErrSessionClosed
	}
	if t.stage != nil {
		return t.stage, nil
	}
	id := newCommitID()
	dir := t.store.treeDir(id)
	if err := t.store.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging tree: %w", err)
	}
	stage := afero.NewBasePathFs(t.store.fs, dir)
	if t.base != "" {
		if err := copyTree(t.read, stage); err != nil {
			_ = t.store.fs.RemoveAll(dir)
			return nil, fmt.Errorf("copy tree %s: %w", t.base, err)
		}
	}
	t.stageID = id
	t.stage = stage
	t.store.log.WithField("commit", id).Debug("staging tree created")
	return stage, nil
}

func copyTree(src, dst afero.Fs) error {
	return afero.Walk(src, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return dst.MkdirAll(p, 0o755)
		}
		in, err := src.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := dst.Create(p)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}

// SortKey implements txn.Participant.
func (t *Tx) SortKey() string {
	return SortKey
}

// Prepare implements txn.Participant. It moves the branch head to the
// staging tree inside a SQLite transaction that Commit completes.
// Returns ErrConflict if the head moved since the transaction started.
func (t *Tx) Prepare(ctx context.Context, _ *txn.Transaction) error {
	if t.stage == nil {
		return nil
	}
	dbtx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}

	var head sql.NullString
	err = dbtx.QueryRowContext(ctx, `SELECT head FROM branches WHERE name = ?`, t.store.branch).Scan(&head)
	if err != nil {
		dbtx.Rollback()
		return fmt.Errorf("read head: %w", err)
	}
	if head.String != t.base {
		dbtx.Rollback()
		return fmt.Errorf("%w: %s is at %q, transaction started at %q", types.ErrConflict, t.store.branch, head.String, t.base)
	}

	var parent any
	if t.base != "" {
		parent = t.base
	}
	_, err = dbtx.ExecContext(ctx,
		`INSERT INTO commits (commit_id, branch, parent, created_at, changes) VALUES (?, ?, ?, ?, ?)`,
		t.stageID, t.store.branch, parent, time.Now().UTC().Format(time.RFC3339Nano), t.changes,
	)
	if err != nil {
		dbtx.Rollback()
		return fmt.Errorf("record commit: %w", err)
	}
	_, err = dbtx.ExecContext(ctx, `UPDATE branches SET head = ? WHERE name = ?`, t.stageID, t.store.branch)
	if err != nil {
		dbtx.Rollback()
		return fmt.Errorf("move head: %w", err)
	}
	t.db = dbtx
	return nil
}

// Commit implements txn.Participant.
func (t *Tx) Commit(_ context.Context, tx *txn.Transaction) error {
	defer t.finish(tx)
	if t.db == nil {
		return nil
	}
	if err := t.db.Commit(); err != nil {
		t.discardStage()
		return fmt.Errorf("commit history: %w", err)
	}
	t.db = nil
	t.store.log.WithFields(map[string]any{
		"commit":  t.stageID,
		"parent":  t.base,
		"changes": t.changes,
	}).Info("commit recorded")
	return nil
}

// Abort implements txn.Participant. The staging tree is deleted.
func (t *Tx) Abort(_ context.Context, tx *txn.Transaction) error {
	defer t.finish(tx)
	if t.db != nil {
		t.db.Rollback()
		t.db = nil
	}
	t.discardStage()
	return nil
}

func (t *Tx) discardStage() {
	if t.stage == nil {
		return
	}
	if err := t.store.fs.RemoveAll(t.store.treeDir(t.stageID)); err != nil {
		t.store.log.WithError(err).WithField("commit", t.stageID).Warn("remove staging tree")
	}
	t.stage = nil
}

func (t *Tx) finish(tx *txn.Transaction) {
	t.done = true
	t.store.forget(tx)
}

// snapshot is a read-only view of one commit.
type snapshot struct {
	view
	fs afero.Fs
}

func newSnapshot(fs afero.Fs) *snapshot {
	return &snapshot{view: view{cwd: "/"}, fs: fs}
}

var _ types.Storage = (*snapshot)(nil)

func (s *snapshot) Exists(p string) (bool, error) { return exists(s.fs, s.resolve(p)) }
func (s *snapshot) IsDir(p string) (bool, error) { return isDir(s.fs, s.resolve(p)) }
func (s *snapshot) List(p string) ([]string, error) { return list(s.fs, s.resolve(p)) }
func (s *snapshot) Open(p string) (io.ReadCloser, error) { return open(s.fs, s.resolve(p)) }
func (s *snapshot) Mkdir(string) error { return ErrReadOnly }
func (s *snapshot) RemoveAll(string) error { return ErrReadOnly }
func (s *snapshot) Remove(string) error { return ErrReadOnly }
func (s *snapshot) Create(string) (io.WriteCloser, error) { return nil, ErrReadOnly }

func (s *snapshot) Cd(p string, fn func() error) error {
	prev := s.cwd
	s.cwd = s.resolve(p)
	defer func() { s.cwd = prev }()
	return fn()
}
