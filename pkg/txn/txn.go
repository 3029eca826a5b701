// Package txn coordinates participants through a two-phase commit.
//
// A Transaction collects participants while client code runs. Commit asks
// every participant to prepare, in SortKey order, and commits them only when
// all of them prepared successfully. Any prepare failure aborts every
// participant. A Transaction is used by one goroutine at a time.
package txn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Participant is a resource manager taking part in a transaction.
type Participant interface {
	// SortKey orders participants within a transaction. Participants are
	// prepared and committed in ascending SortKey order.
	SortKey() string

	// Prepare stages every change and reports whether the participant can
	// commit. An error vetoes the transaction.
	Prepare(ctx context.Context, tx *Transaction) error

	// Commit makes staged changes durable. It runs only after every
	// participant prepared successfully.
	Commit(ctx context.Context, tx *Transaction) error

	// Abort discards staged changes. It may be called in any phase.
	Abort(ctx context.Context, tx *Transaction) error
}

// Status is the lifecycle state of a transaction.
type Status string

// Transaction states.
const (
	StatusActive    Status = "active"
	StatusPreparing Status = "preparing"
	StatusCommitted Status = "committed"
	StatusAborted   Status = "aborted"
)

// Transaction errors.
var (
	ErrFinished      = errors.New("transaction already finished")
	ErrPrepareFailed = errors.New("transaction prepare failed")
	ErrCommitFailed  = errors.New("transaction commit failed")
)

// Transaction is one unit of work spanning any number of participants.
type Transaction struct {
	status       Status
	participants []Participant
	log          log.FieldLogger
}

func newTransaction(logger log.FieldLogger) *Transaction {
	return &Transaction{
		status: StatusActive,
		log:    logger,
	}
}

// Status returns the current state of the transaction.
func (t *Transaction) Status() Status {
	return t.status
}

// Join registers p with the transaction. Joining the same participant twice
// has no effect. Returns ErrFinished once the transaction committed or
// aborted.
func (t *Transaction) Join(p Participant) error {
	if t.status == StatusCommitted || t.status == StatusAborted {
		return ErrFinished
	}
	for _, q := range t.participants {
		if q == p {
			return nil
		}
	}
	t.participants = append(t.participants, p)
	return nil
}

// Participants returns the joined participants in SortKey order.
func (t *Transaction) Participants() []Participant {
	ps := make([]Participant, len(t.participants))
	copy(ps, t.participants)
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].SortKey() < ps[j].SortKey()
	})
	return ps
}

// Commit runs the two-phase commit. When a participant fails to prepare,
// every participant is aborted and the returned error wraps both
// ErrPrepareFailed and the participant's error. Participants that joined
// during prepare are included in the same pass.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.status != StatusActive {
		return ErrFinished
	}
	t.status = StatusPreparing

	prepared := make(map[Participant]bool)
	for {
		pending := t.unprepared(prepared)
		if len(pending) == 0 {
			break
		}
		for _, p := range pending {
			if err := p.Prepare(ctx, t); err != nil {
				t.log.WithError(err).WithField("participant", p.SortKey()).Debug("prepare failed, aborting")
				t.abortAll(ctx)
				return fmt.Errorf("%w: %s: %w", ErrPrepareFailed, p.SortKey(), err)
			}
			prepared[p] = true
		}
	}

	var errs []error
	for _, p := range t.Participants() {
		if err := p.Commit(ctx, t); err != nil {
			t.log.WithError(err).WithField("participant", p.SortKey()).Warn("commit failed after successful prepare")
			errs = append(errs, fmt.Errorf("%s: %w", p.SortKey(), err))
		}
	}
	t.status = StatusCommitted
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrCommitFailed, errors.Join(errs...))
	}
	return nil
}

// unprepared returns the participants not yet prepared, in SortKey order.
func (t *Transaction) unprepared(prepared map[Participant]bool) []Participant {
	var ps []Participant
	for _, p := range t.Participants() {
		if !prepared[p] {
			ps = append(ps, p)
		}
	}
	return ps
}

// Abort discards the work of every participant. Aborting a finished
// transaction returns ErrFinished.
func (t *Transaction) Abort(ctx context.Context) error {
	if t.status == StatusCommitted || t.status == StatusAborted {
		return ErrFinished
	}
	return t.abortAll(ctx)
}

func (t *Transaction) abortAll(ctx context.Context) error {
	var errs []error
	for _, p := range t.Participants() {
		if err := p.Abort(ctx, t); err != nil {
			t.log.WithError(err).WithField("participant", p.SortKey()).Warn("abort failed")
			errs = append(errs, err)
		}
	}
	t.status = StatusAborted
	return errors.Join(errs...)
}

// Manager tracks the current transaction for a client. Like the thread-local
// manager of classic transaction packages, it begins a transaction lazily on
// first use and forgets it once it finishes.
type Manager struct {
	mu      sync.Mutex
	current *Transaction
	log     log.FieldLogger
}

// NewManager creates a Manager. A nil logger selects the standard logger.
func NewManager(logger log.FieldLogger) *Manager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Manager{log: logger}
}

// Get returns the current transaction, beginning one when none is active.
func (m *Manager) Get() *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.status != StatusActive {
		m.current = newTransaction(m.log)
	}
	return m.current
}

// Begin abandons the current transaction, aborting it if still active, and
// starts a new one.
func (m *Manager) Begin(ctx context.Context) *Transaction {
	m.mu.Lock()
	prev := m.current
	m.current = newTransaction(m.log)
	tx := m.current
	m.mu.Unlock()

	if prev != nil && prev.status == StatusActive {
		if err := prev.Abort(ctx); err != nil {
			m.log.WithError(err).Warn("abort of abandoned transaction failed")
		}
	}
	return tx
}

// Commit commits the current transaction. Committing with no active
// transaction is a no-op.
func (m *Manager) Commit(ctx context.Context) error {
	tx := m.take()
	if tx == nil {
		return nil
	}
	return tx.Commit(ctx)
}

// Abort aborts the current transaction. Aborting with no active transaction
// is a no-op.
func (m *Manager) Abort(ctx context.Context) error {
	tx := m.take()
	if tx == nil {
		return nil
	}
	return tx.Abort(ctx)
}

func (m *Manager) take() *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.current
	m.current = nil
	if tx == nil || tx.status != StatusActive {
		return nil
	}
	return tx
}
