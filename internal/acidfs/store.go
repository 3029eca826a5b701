// Package acidfs implements a versioned filesystem with transactional
// writes on top of an afero.Fs.
//
// Every commit is a complete directory tree stored under trees/<commit-id>.
// A branch names its head commit in a SQLite history database; moving the
// head inside one SQLite transaction is the single step that makes a commit
// visible, so a transaction is either fully written or not at all.
//
// Repository layout (non-bare; a bare repository keeps the same entries
// directly in the repository directory):
//
//	<repo>/.churro/repo.yaml    repository metadata
//	<repo>/.churro/history.db   branches and commits
//	<repo>/.churro/trees/<id>/  one tree per commit
package acidfs

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/churro/pkg/txn"
	"github.com/mesh-intelligence/churro/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// Layout names.
const (
	metaDirName  = ".churro"
	metaFileName = "repo.yaml"
	historyName  = "history.db"
	treesDirName = "trees"

	// DefaultBranch is the branch a new repository starts on.
	DefaultBranch = "main"

	// SortKey orders the store after the churro session so that it prepares
	// the writes the session made.
	SortKey = "churro.acidfs"

	formatVersion = 1
)

// repoMeta is the content of repo.yaml.
type repoMeta struct {
	Format        int    `yaml:"format"`
	Bare          bool   `yaml:"bare"`
	DefaultBranch string `yaml:"default_branch"`
}

// Commit is one entry of a branch history.
type Commit struct {
	ID        string    `json:"id"`
	Branch    string    `json:"branch"`
	Parent    string    `json:"parent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Changes   int       `json:"changes"`
}

// Branch is a named head.
type Branch struct {
	Name string `json:"name"`
	Head string `json:"head,omitempty"`
}

// Store is an open repository bound to one branch.
type Store struct {
	fs      afero.Fs
	metaDir string
	meta    repoMeta
	branch  string
	db      *sql.DB
	log     log.FieldLogger

	mu    sync.Mutex
	views map[*txn.Transaction]*Tx
}

type options struct {
	fs     afero.Fs
	dsn    string
	logger log.FieldLogger
}

// Option configures Open.
type Option func(*options)

// WithFs stores the repository on fs instead of the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithHistoryDSN sets the SQLite data source of the history database. The
// default is history.db in the metadata directory on the OS filesystem and
// a private in-memory database on any other filesystem.
func WithHistoryDSN(dsn string) Option {
	return func(o *options) {
		o.dsn = dsn
	}
}

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Open opens the repository described by cfg, creating it when it does not
// exist and cfg.Create is set.
// Returns ErrRepoNotFound if there is no repository and cfg.Create is false.
func Open(cfg types.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{fs: afero.NewOsFs(), logger: log.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	_, onDisk := o.fs.(*afero.OsFs)

	repo := cfg.Repo
	if onDisk {
		abs, err := filepath.Abs(repo)
		if err != nil {
			return nil, err
		}
		repo = abs
	}

	metaDir, found, err := locate(o.fs, repo)
	if err != nil {
		return nil, err
	}
	if !found {
		if !cfg.Create {
			return nil, fmt.Errorf("%w: %s", types.ErrRepoNotFound, repo)
		}
		if metaDir, err = create(o.fs, repo, cfg); err != nil {
			return nil, fmt.Errorf("create repository: %w", err)
		}
		o.logger.WithField("repo", repo).Info("created repository")
	}

	meta, err := readMeta(o.fs, metaDir)
	if err != nil {
		return nil, err
	}

	dsn := o.dsn
	if dsn == "" {
		if onDisk {
			dsn = filepath.Join(metaDir, historyName)
		} else {
			dsn = ":memory:"
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// One connection: it serializes writers and keeps in-memory
	// databases alive.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history: %w", err)
	}

	branch := cfg.HeadName()
	if branch == types.HeadCurrent {
		branch = meta.DefaultBranch
	}
	s := &Store{
		fs:      o.fs,
		metaDir: metaDir,
		meta:    meta,
		branch:  branch,
		db:      db,
		log:     o.logger.WithField("branch", branch),
		views:   make(map[*txn.Transaction]*Tx),
	}
	if err := s.ensureBranch(branch); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// locate finds the metadata directory of the repository at repo.
func locate(fs afero.Fs, repo string) (string, bool, error) {
	for _, dir := range []string{filepath.Join(repo, metaDirName), repo} {
		ok, err := afero.Exists(fs, filepath.Join(dir, metaFileName))
		if err != nil {
			return "", false, err
		}
		if ok {
			return dir, true, nil
		}
	}
	return "", false, nil
}

func create(fs afero.Fs, repo string, cfg types.Config) (string, error) {
	metaDir := filepath.Join(repo, metaDirName)
	if cfg.Bare {
		metaDir = repo
	}
	if err := fs.MkdirAll(filepath.Join(metaDir, treesDirName), 0o755); err != nil {
		return "", err
	}

	branch := cfg.HeadName()
	if branch == types.HeadCurrent {
		branch = DefaultBranch
	}
	data, err := yaml.Marshal(repoMeta{
		Format:        formatVersion,
		Bare:          cfg.Bare,
		DefaultBranch: branch,
	})
	if err != nil {
		return "", err
	}
	if err := afero.WriteFile(fs, filepath.Join(metaDir, metaFileName), data, 0o644); err != nil {
		return "", err
	}
	return metaDir, nil
}

func readMeta(fs afero.Fs, metaDir string) (repoMeta, error) {
	var meta repoMeta
	data, err := afero.ReadFile(fs, filepath.Join(metaDir, metaFileName))
	if err != nil {
		return meta, fmt.Errorf("read %s: %w", metaFileName, err)
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse %s: %w", metaFileName, err)
	}
	if meta.DefaultBranch == "" {
		meta.DefaultBranch = DefaultBranch
	}
	return meta, nil
}

// ensureBranch creates branch, starting at the default branch's head, if it
// does not exist yet.
func (s *Store) ensureBranch(branch string) error {
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO branches (name, head) VALUES (?, NULL)`, s.meta.DefaultBranch); err != nil {
		return fmt.Errorf("init branch %s: %w", s.meta.DefaultBranch, err)
	}
	if branch == s.meta.DefaultBranch {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO branches (name, head) SELECT ?, head FROM branches WHERE name = ?`,
		branch, s.meta.DefaultBranch,
	)
	if err != nil {
		return fmt.Errorf("init branch %s: %w", branch, err)
	}
	return nil
}

// Branch returns the branch the store reads and commits to.
func (s *Store) Branch() string {
	return s.branch
}

// Bare reports whether the repository is bare.
func (s *Store) Bare() bool {
	return s.meta.Bare
}

// Head returns the head commit of the store's branch, or "" for a branch
// without commits.
func (s *Store) Head() (string, error) {
	var head sql.NullString
	err := s.db.QueryRow(`SELECT head FROM branches WHERE name = ?`, s.branch).Scan(&head)
	if err != nil {
		return "", fmt.Errorf("read head: %w", err)
	}
	return head.String, nil
}

// Branches lists every branch of the repository by name.
func (s *Store) Branches() ([]Branch, error) {
	rows, err := s.db.Query(`SELECT name, head FROM branches ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var branches []Branch
	for rows.Next() {
		var b Branch
		var head sql.NullString
		if err := rows.Scan(&b.Name, &head); err != nil {
			return nil, err
		}
		b.Head = head.String
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// Log returns up to limit commits of the store's branch, newest first,
// following parent links from the head. A limit of zero or less returns the
// whole history.
func (s *Store) Log(limit int) ([]Commit, error) {
	id, err := s.Head()
	if err != nil {
		return nil, err
	}
	var commits []Commit
	for id != "" && (limit <= 0 || len(commits) < limit) {
		c, err := s.commit(id)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
		id = c.Parent
	}
	return commits, nil
}

func (s *Store) commit(id string) (Commit, error) {
	var c Commit
	var parent sql.NullString
	var created string
	err := s.db.QueryRow(
		`SELECT commit_id, branch, parent, created_at, changes FROM commits WHERE commit_id = ?`, id,
	).Scan(&c.ID, &c.Branch, &parent, &created, &c.Changes)
	if err != nil {
		return c, fmt.Errorf("read commit %s: %w", id, err)
	}
	c.Parent = parent.String
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return c, fmt.Errorf("read commit %s: %w", id, err)
	}
	return c, nil
}

// Snapshot returns a read-only view of the tree of commit id.
func (s *Store) Snapshot(id string) (types.Storage, error) {
	if _, err := s.commit(id); err != nil {
		return nil, err
	}
	return newSnapshot(afero.NewReadOnlyFs(afero.NewBasePathFs(s.fs, s.treeDir(id)))), nil
}

// Join returns the storage view of tx, creating it and joining tx on first
// use.
func (s *Store) Join(tx *txn.Transaction) (types.Storage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.views[tx]; ok && !v.done {
		return v, nil
	}
	head, err := s.Head()
	if err != nil {
		return nil, err
	}
	v := &Tx{
		store: s,
		base:  head,
		read:  s.treeFs(head),
		view:  view{cwd: "/"},
	}
	if err := tx.Join(v); err != nil {
		return nil, fmt.Errorf("join transaction: %w", err)
	}
	s.views[tx] = v
	v.tx = tx
	return v, nil
}

func (s *Store) forget(tx *txn.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, tx)
}

// Close closes the history database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) treeDir(id string) string {
	return filepath.Join(s.metaDir, treesDirName, id)
}

// treeFs returns a read-only view of the tree of commit id. A branch without
// commits reads as an empty tree.
func (s *Store) treeFs(id string) afero.Fs {
	if id == "" {
		return afero.NewReadOnlyFs(afero.NewMemMapFs())
	}
	return afero.NewReadOnlyFs(afero.NewBasePathFs(s.fs, s.treeDir(id)))
}

func newCommitID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
