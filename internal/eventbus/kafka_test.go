package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replyd/internal/manager"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	gate   chan struct{}
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, msgs...)
	f.mu.Unlock()
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishWritesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, Config{})
	p.Publish(manager.Event{Name: "handle_ready", UserID: "u1", Fields: map[string]any{"version": "v1"}})
	p.Publish(manager.Event{Name: "handle_evicted", UserID: "u2"})
	require.NoError(t, p.Close())

	require.Len(t, w.msgs, 2)
	assert.True(t, w.closed)
	assert.Equal(t, "u1", string(w.msgs[0].Key))
	var ev wireEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "handle_ready", ev.Name)
	assert.Equal(t, "v1", ev.Fields["version"])
	assert.False(t, ev.At.IsZero())
}

func TestPublishNeverBlocks(t *testing.T) {
	w := &fakeWriter{gate: make(chan struct{})}
	p := newPublisher(w, Config{Buffer: 1})
	for i := 0; i < 50; i++ {
		p.Publish(manager.Event{Name: "e", UserID: "u"})
	}
	close(w.gate)
	require.NoError(t, p.Close())
	assert.LessOrEqual(t, len(w.msgs), 2)
	assert.GreaterOrEqual(t, len(w.msgs), 1)
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, Config{})
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	p.Publish(manager.Event{Name: "late"})
	assert.Empty(t, w.msgs)
}

func TestManagerPublishesThroughKafka(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, Config{})
	m := manager.New(manager.Config{Publisher: p})
	h, err := m.Acquire(context.Background(), "u1")
	require.NoError(t, err)
	m.Release(h, true)
	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, p.Close())
	assert.NotEmpty(t, w.msgs)
}
