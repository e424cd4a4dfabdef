// Package convo holds the bounded, ordered turn history of each conversation.
package convo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type entry struct {
	mu      sync.Mutex
	session Session
}

// Store keeps at most WindowSize turns per session in memory and optionally
// writes finalized turns through to a TurnStore.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	persist  TurnStore
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Store.
type Option func(*Store)

// WithTurnStore writes committed turns through to ts and lets Resume rehydrate from it.
func WithTurnStore(ts TurnStore) Option { return func(s *Store) { s.persist = ts } }

// WithLogger sets the logger used for persistence failures.
func WithLogger(l zerolog.Logger) Option { return func(s *Store) { s.log = l } }

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*entry),
		log:      zerolog.Nop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create registers a new empty session owned by userID and returns its id.
func (s *Store) Create(userID string) string {
	id := s.newID()
	ts := s.now()
	s.mu.Lock()
	s.sessions[id] = &entry{session: Session{ID: id, UserID: userID, CreatedAt: ts, LastActive: ts}}
	s.mu.Unlock()
	return id
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e := s.sessions[id]
	s.mu.RUnlock()
	if e == nil {
		return nil, sessionNotFoundError{id: id}
	}
	return e, nil
}

// Append adds t as the most recent turn, dropping the oldest turn first when
// the window is full.
func (s *Store) Append(id string, t Turn) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if t.At.IsZero() {
		t.At = s.now()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	turns := e.session.Turns
	if len(turns) >= WindowSize {
		// shift in place so the backing array never grows past WindowSize
		copy(turns, turns[len(turns)-WindowSize+1:])
		turns = turns[:WindowSize-1]
	}
	e.session.Turns = append(turns, t)
	e.session.LastActive = t.At
	return nil
}

// Window returns a copy of the retained turns, most recent last.
func (s *Store) Window(id string) ([]Turn, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Turn, len(e.session.Turns))
	copy(out, e.session.Turns)
	return out, nil
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.session
	snap.Turns = append([]Turn(nil), e.session.Turns...)
	return snap, nil
}

// Len reports the number of sessions held in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Commit appends turns in order and writes each through to the TurnStore.
// Persistence failures are logged and do not fail the commit.
func (s *Store) Commit(ctx context.Context, id string, turns ...Turn) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	for i := range turns {
		if turns[i].At.IsZero() {
			turns[i].At = s.now()
		}
		if err := s.Append(id, turns[i]); err != nil {
			return err
		}
	}
	if s.persist == nil {
		return nil
	}
	e.mu.Lock()
	userID := e.session.UserID
	e.mu.Unlock()
	for _, t := range turns {
		if err := s.persist.AppendTurn(ctx, id, userID, t); err != nil {
			s.log.Error().Err(err).Str("session_id", id).Str("role", string(t.Role)).Msg("persist turn failed")
		}
	}
	return nil
}

// Resume makes sure session id exists in memory. Unknown ids are rehydrated
// from the TurnStore's most recent turns, keeping the persisted owner.
// ErrSessionNotFound is returned without a TurnStore, when the store has no
// turns for id, or when the turns belong to a user other than userID.
func (s *Store) Resume(ctx context.Context, id, userID string) error {
	if _, err := s.lookup(id); err == nil {
		return nil
	}
	if s.persist == nil {
		return sessionNotFoundError{id: id}
	}
	owner, err := s.persist.SessionOwner(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", id).Msg("load session owner failed")
		return sessionNotFoundError{id: id}
	}
	if owner == "" || owner != userID {
		return sessionNotFoundError{id: id}
	}
	turns, err := s.persist.LoadRecentTurns(ctx, id, WindowSize)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", id).Msg("load recent turns failed")
		return sessionNotFoundError{id: id}
	}
	if len(turns) == 0 {
		return sessionNotFoundError{id: id}
	}
	if len(turns) > WindowSize {
		turns = turns[len(turns)-WindowSize:]
	}
	ts := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return nil
	}
	s.sessions[id] = &entry{session: Session{
		ID:         id,
		UserID:     owner,
		Turns:      turns,
		CreatedAt:  turns[0].At,
		LastActive: ts,
	}}
	return nil
}
