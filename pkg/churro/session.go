package churro

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/churro/pkg/txn"
	"github.com/mesh-intelligence/churro/pkg/types"
)

// SortKey orders the session among the participants of a transaction. The
// storage provider sorts after it so that it commits what the session
// wrote.
const SortKey = "churro"

type sessionState int

const (
	sessionOpen sessionState = iota
	sessionVoted
	sessionClosed
)

func (s sessionState) String() string {
	switch s {
	case sessionOpen:
		return "open"
	case sessionVoted:
		return "voted"
	}
	return "closed"
}

// Session binds one root folder to one storage view for the lifetime of a
// transaction. It is a txn.Participant: preparing the transaction writes
// the dirty subtree, finishing or aborting it closes the session. A closed
// session is never reused.
type Session struct {
	state  sessionState
	handle *handle
	root   Entity
	log    log.FieldLogger
}

// NewSession creates a session over storage and joins tx.
func NewSession(tx *txn.Transaction, storage types.Storage, codec *Codec, logger log.FieldLogger) (*Session, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if codec == nil {
		codec = NewCodec(nil)
	}
	s := &Session{
		handle: &handle{storage: storage, codec: codec, log: logger},
		log:    logger,
	}
	if err := tx.Join(s); err != nil {
		return nil, fmt.Errorf("join transaction: %w", err)
	}
	logger.Debug("session opened")
	return s, nil
}

// SortKey implements txn.Participant.
func (s *Session) SortKey() string {
	return SortKey
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	return s.state == sessionClosed
}

// Root returns the root folder, loading it from storage on first use. When
// the store holds no root, factory creates one; it must return a folder
// capable record created through its Type.
// Returns ErrSessionClosed once the session has ended.
func (s *Session) Root(factory func() Entity) (*Folder, error) {
	if s.state == sessionClosed {
		return nil, ErrSessionClosed
	}
	if s.root != nil {
		f, _ := asFolder(s.root)
		return f, nil
	}

	p := joinPath("/", FolderMarker)
	exists, err := s.handle.storage.Exists(p)
	if err != nil {
		return nil, fmt.Errorf("load root: %w", err)
	}

	var root Entity
	if exists {
		r, err := s.handle.storage.Open(p)
		if err != nil {
			return nil, fmt.Errorf("load root: %w", err)
		}
		root, err = s.handle.codec.Decode(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("load root: %w", err)
		}
	} else {
		if factory == nil {
			factory = func() Entity { return NewFolder() }
		}
		root = factory()
		if root.object().typ == nil {
			return nil, fmt.Errorf("new root: %w", ErrUnbound)
		}
	}

	f, ok := asFolder(root)
	if !ok {
		return nil, fmt.Errorf("root: %w: %s", ErrNotFolder, root.object().typ.name)
	}
	o := root.object()
	o.name = ""
	o.parent = nil
	o.bind(s.handle)
	if exists {
		o.clean = true
		f.origin = "/"
	}
	s.root = root
	return f, nil
}

// Prepare implements txn.Participant. It writes the dirty subtree; a clean
// or never loaded root writes nothing.
func (s *Session) Prepare(_ context.Context, _ *txn.Transaction) error {
	if s.state == sessionClosed {
		return ErrSessionClosed
	}
	s.state = sessionVoted
	if s.root == nil || !s.root.object().IsDirty() {
		s.log.Debug("session clean, nothing to save")
		return nil
	}
	f, _ := asFolder(s.root)
	if err := f.save(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Commit implements txn.Participant. The storage provider makes the
// writes durable; the session only closes.
func (s *Session) Commit(_ context.Context, _ *txn.Transaction) error {
	s.close()
	return nil
}

// Abort implements txn.Participant. In-memory state is discarded.
func (s *Session) Abort(_ context.Context, _ *txn.Transaction) error {
	s.close()
	return nil
}

func (s *Session) close() {
	if s.state == sessionClosed {
		return
	}
	s.log.WithField("state", s.state.String()).Debug("session closed")
	s.state = sessionClosed
	s.root = nil
}
