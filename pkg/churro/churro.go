package churro

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/churro/internal/acidfs"
	"github.com/mesh-intelligence/churro/pkg/txn"
	"github.com/mesh-intelligence/churro/pkg/types"
)

// Provider hands out storage views bound to a transaction. The view joins
// the transaction itself and makes the writes of the session durable when
// the transaction commits.
type Provider interface {
	Join(tx *txn.Transaction) (types.Storage, error)
}

// Churro is the entry point of a repository. It opens a session per
// transaction and hands out the session's root folder.
//
// Churro is not safe for concurrent use.
type Churro struct {
	provider Provider
	manager  *txn.Manager
	factory  func() Entity
	codec    *Codec
	log      log.FieldLogger
	session  *Session
}

// Option configures a Churro.
type Option func(*Churro)

// WithManager sets the transaction manager. Clients sharing one manager
// across repositories commit them together.
func WithManager(m *txn.Manager) Option {
	return func(c *Churro) {
		c.manager = m
	}
}

// WithFactory sets the function creating the root of a new repository. The
// default creates a plain Folder. It has no effect once the repository has
// a root.
func WithFactory(factory func() Entity) Option {
	return func(c *Churro) {
		c.factory = factory
	}
}

// WithRegistry sets the registry stored records are resolved through.
func WithRegistry(r *Registry) Option {
	return func(c *Churro) {
		c.codec = NewCodec(r)
	}
}

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(c *Churro) {
		c.log = l
	}
}

// New creates a Churro over provider.
func New(provider Provider, opts ...Option) *Churro {
	c := &Churro{
		provider: provider,
		factory:  func() Entity { return NewFolder() },
		log:      log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.manager == nil {
		c.manager = txn.NewManager(c.log)
	}
	if c.codec == nil {
		c.codec = NewCodec(nil)
	}
	return c
}

// Open opens the repository described by cfg, creating it when cfg.Create
// is set.
func Open(cfg types.Config, opts ...Option) (*Churro, error) {
	c := New(nil, opts...)
	store, err := acidfs.Open(cfg, acidfs.WithLogger(c.log))
	if err != nil {
		return nil, err
	}
	c.provider = store
	return c, nil
}

// Manager returns the transaction manager.
func (c *Churro) Manager() *txn.Manager {
	return c.manager
}

// Session returns the session of the current transaction, opening a new one
// bound to a fresh storage view when there is none or the previous one is
// closed.
func (c *Churro) Session() (*Session, error) {
	if c.session != nil && !c.session.Closed() {
		return c.session, nil
	}
	tx := c.manager.Get()
	storage, err := c.provider.Join(tx)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	s, err := NewSession(tx, storage, c.codec, c.log)
	if err != nil {
		return nil, err
	}
	c.session = s
	return s, nil
}

// Root returns the root folder of the current session.
func (c *Churro) Root() (*Folder, error) {
	s, err := c.Session()
	if err != nil {
		return nil, err
	}
	return s.Root(c.factory)
}

// Commit commits the current transaction.
func (c *Churro) Commit(ctx context.Context) error {
	return c.manager.Commit(ctx)
}

// Abort aborts the current transaction, discarding every change made since
// it began.
func (c *Churro) Abort(ctx context.Context) error {
	return c.manager.Abort(ctx)
}

// Close aborts the current transaction and releases the provider.
func (c *Churro) Close() error {
	if err := c.manager.Abort(context.Background()); err != nil {
		return err
	}
	if closer, ok := c.provider.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
