package transcript

import (
	"sync"
	"sync/atomic"
)

// View is read-only access to the current transcript.
type View interface {
	Snapshot() Transcript
}

// Store owns the current transcript of one conversation. Readers take
// lock-free snapshots; writers are serialized.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Transcript]
}

var _ View = (*Store)(nil)

// NewStore returns a Store seeded with msgs.
func NewStore(msgs ...Message) *Store {
	s := &Store{}
	t := New(msgs...)
	s.current.Store(&t)
	return s
}

// Snapshot returns the transcript as of the last commit.
func (s *Store) Snapshot() Transcript {
	if t := s.current.Load(); t != nil {
		return *t
	}
	return Transcript{}
}

// Commit replaces the current transcript.
func (s *Store) Commit(t Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(&t)
}

// Update applies fn to the current transcript and commits the result unless
// fn fails. The read and the commit are atomic with respect to other writers.
func (s *Store) Update(fn func(Transcript) (Transcript, error)) (Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.Snapshot())
	if err != nil {
		return s.Snapshot(), err
	}
	s.current.Store(&next)
	return next, nil
}
