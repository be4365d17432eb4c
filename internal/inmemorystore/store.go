package inmemorystore

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/unloadcopy/internal/node"
	"github.com/specialistvlad/unloadcopy/internal/nodestore"
)

type entry struct {
	status node.Status
	err    error
	timing nodestore.Timing
}

// Store is an in-memory implementation of nodestore.Store.
//
// A single mutex guards every entry. Status changes are rare compared to task
// runtimes, and one lock makes every transition atomic with respect to
// Snapshot, which the ready-set computation relies on.
type Store struct {
	mu      sync.Mutex
	entries map[node.Handle]*entry
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for execution timings.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a new, empty in-memory node state store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[node.Handle]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init drops any previous state and tracks the given handles as Pending.
func (s *Store) Init(_ context.Context, handles []node.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[node.Handle]*entry, len(handles))
	for _, h := range handles {
		s.entries[h] = &entry{status: node.StatusPending}
	}
	return nil
}

// Transition applies a compare-and-set status change.
func (s *Store) Transition(_ context.Context, h node.Handle, from, to node.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[h]
	if !ok {
		return nodestore.ErrUnknownNode
	}
	if e.status != from || !node.CanTransition(from, to) {
		return &nodestore.TransitionError{Handle: h, From: from, To: to, Actual: e.status}
	}

	e.status = to
	switch {
	case to == node.StatusRunning:
		e.timing.Started = s.now()
	case to.IsTerminal():
		e.timing.Finished = s.now()
	}
	return nil
}

// GetStatus retrieves the execution status of a node.
func (s *Store) GetStatus(_ context.Context, h node.Handle) (node.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[h]
	if !ok {
		return node.StatusPending, nodestore.ErrUnknownNode
	}
	return e.status, nil
}

// SetError records the failure diagnostic of a node.
func (s *Store) SetError(_ context.Context, h node.Handle, nodeErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[h]
	if !ok {
		return nodestore.ErrUnknownNode
	}
	e.err = nodeErr
	return nil
}

// GetError retrieves the recorded diagnostic of a node.
func (s *Store) GetError(_ context.Context, h node.Handle) (error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[h]
	if !ok {
		return nil, nodestore.ErrUnknownNode
	}
	return e.err, nil
}

// GetTiming retrieves the execution bounds of a node.
func (s *Store) GetTiming(_ context.Context, h node.Handle) (nodestore.Timing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[h]
	if !ok {
		return nodestore.Timing{}, nodestore.ErrUnknownNode
	}
	return e.timing, nil
}

// Snapshot copies every status under the lock.
func (s *Store) Snapshot(_ context.Context) nodestore.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := make(nodestore.Snapshot, len(s.entries))
	for h, e := range s.entries {
		snap[h] = e.status
	}
	return snap
}

var _ nodestore.Store = (*Store)(nil)
