package convo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTurns struct {
	mu      sync.Mutex
	turns   map[string][]Turn
	owners  map[string]string
	failOn  error
	loadErr error
}

func (m *memTurns) AppendTurn(_ context.Context, sessionID, userID string, t Turn) error {
	if m.failOn != nil {
		return m.failOn
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.turns == nil {
		m.turns = map[string][]Turn{}
		m.owners = map[string]string{}
	}
	m.turns[sessionID] = append(m.turns[sessionID], t)
	if _, ok := m.owners[sessionID]; !ok {
		m.owners[sessionID] = userID
	}
	return nil
}

func (m *memTurns) SessionOwner(_ context.Context, sessionID string) (string, error) {
	if m.loadErr != nil {
		return "", m.loadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[sessionID], nil
}

func (m *memTurns) LoadRecentTurns(_ context.Context, sessionID string, limit int) ([]Turn, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.turns[sessionID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Turn(nil), all...), nil
}

func TestAppendElevenKeepsLastTen(t *testing.T) {
	t.Parallel()

	s := NewStore()
	id := s.Create("u1")
	for i := 0; i < 11; i++ {
		require.NoError(t, s.Append(id, Turn{Role: RoleUser, Text: fmt.Sprintf("t%d", i)}))
	}

	w, err := s.Window(id)
	require.NoError(t, err)
	require.Len(t, w, WindowSize)
	assert.Equal(t, "t1", w[0].Text)
	assert.Equal(t, "t10", w[len(w)-1].Text)
}

func TestWindowNeverExceedsBoundAndLastIsMostRecent(t *testing.T) {
	t.Parallel()

	s := NewStore()
	id := s.Create("u1")
	for i := 0; i < 37; i++ {
		text := fmt.Sprintf("m%d", i)
		require.NoError(t, s.Append(id, Turn{Role: RoleAssistant, Text: text}))
		w, err := s.Window(id)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(w), WindowSize)
		assert.Equal(t, text, w[len(w)-1].Text)
	}
}

func TestWindowReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewStore()
	id := s.Create("u1")
	require.NoError(t, s.Append(id, Turn{Role: RoleUser, Text: "hello"}))
	w, _ := s.Window(id)
	w[0].Text = "mutated"

	w2, _ := s.Window(id)
	assert.Equal(t, "hello", w2[0].Text)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	t.Parallel()

	s := NewStore()
	err := s.Append("nope", Turn{Text: "x"})
	assert.True(t, IsSessionNotFound(err))
	_, err = s.Window("nope")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestCreateStampsOwnerAndTimes(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return fixed }))
	id := s.Create("u9")

	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "u9", sess.UserID)
	assert.Equal(t, fixed, sess.CreatedAt)
	assert.Empty(t, sess.Turns)
}

func TestCommitWritesThrough(t *testing.T) {
	t.Parallel()

	ts := &memTurns{}
	s := NewStore(WithTurnStore(ts))
	id := s.Create("u1")
	require.NoError(t, s.Commit(context.Background(), id,
		Turn{Role: RoleUser, Text: "hi"},
		Turn{Role: RoleAssistant, Text: "hey"},
	))

	w, _ := s.Window(id)
	require.Len(t, w, 2)
	require.Len(t, ts.turns[id], 2)
	assert.Equal(t, RoleAssistant, ts.turns[id][1].Role)
}

func TestCommitIgnoresPersistFailure(t *testing.T) {
	t.Parallel()

	s := NewStore(WithTurnStore(&memTurns{failOn: errors.New("down")}))
	id := s.Create("u1")
	require.NoError(t, s.Commit(context.Background(), id, Turn{Role: RoleUser, Text: "hi"}))
	w, _ := s.Window(id)
	assert.Len(t, w, 1)
}

func TestResumeRehydratesFromTurnStore(t *testing.T) {
	t.Parallel()

	ts := &memTurns{}
	for i := 0; i < 14; i++ {
		_ = ts.AppendTurn(context.Background(), "old", "u1", Turn{Role: RoleUser, Text: fmt.Sprintf("p%d", i), At: time.Unix(int64(i), 0)})
	}
	s := NewStore(WithTurnStore(ts))
	require.NoError(t, s.Resume(context.Background(), "old", "u1"))

	sess, err := s.Get("old")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)
	require.Len(t, sess.Turns, WindowSize)
	assert.Equal(t, "p13", sess.Turns[WindowSize-1].Text)
}

func TestResumeRejectsOtherUsersSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := &memTurns{}
	first := NewStore(WithTurnStore(ts))
	id := first.Create("alice")
	require.NoError(t, first.Commit(ctx, id, Turn{Role: RoleUser, Text: "my secret diary"}))

	restarted := NewStore(WithTurnStore(ts))
	assert.True(t, IsSessionNotFound(restarted.Resume(ctx, id, "mallory")))
	_, err := restarted.Get(id)
	assert.True(t, IsSessionNotFound(err))

	require.NoError(t, restarted.Resume(ctx, id, "alice"))
	sess, err := restarted.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.UserID)
	require.Len(t, sess.Turns, 1)
}

func TestResumeUnknownWithoutHistory(t *testing.T) {
	t.Parallel()

	s := NewStore(WithTurnStore(&memTurns{}))
	assert.True(t, IsSessionNotFound(s.Resume(context.Background(), "ghost", "u1")))

	s2 := NewStore()
	assert.True(t, IsSessionNotFound(s2.Resume(context.Background(), "ghost", "u1")))
}

func TestConcurrentAppendsStayBounded(t *testing.T) {
	t.Parallel()

	s := NewStore()
	id := s.Create("u1")
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = s.Append(id, Turn{Role: RoleUser, Text: fmt.Sprintf("%d-%d", g, i)})
			}
		}(g)
	}
	wg.Wait()
	w, _ := s.Window(id)
	assert.Len(t, w, WindowSize)
}
