// Package eventbus ships pool lifecycle events to Kafka.
package eventbus

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"replyd/internal/manager"
)

var _ manager.EventPublisher = (*KafkaPublisher)(nil)

const defaultBuffer = 256

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures NewKafkaPublisher.
type Config struct {
	// Brokers is a comma-separated list of host:port.
	Brokers string
	Topic   string
	// Buffer is the number of events held before new ones are dropped.
	Buffer int
	Logger *zerolog.Logger
}

// KafkaPublisher implements manager.EventPublisher. Publish enqueues and
// returns; a background goroutine writes to Kafka. Events are dropped when
// the buffer is full.
type KafkaPublisher struct {
	w    messageWriter
	ch   chan wireEvent
	log  zerolog.Logger
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

type wireEvent struct {
	Name   string         `json:"name"`
	UserID string         `json:"user_id"`
	At     time.Time      `json:"at"`
	Fields map[string]any `json:"fields,omitempty"`
}

// NewKafkaPublisher builds a publisher over a kafka.Writer.
func NewKafkaPublisher(cfg Config) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
		Async:    false,
	}
	return newPublisher(w, cfg)
}

func newPublisher(w messageWriter, cfg Config) *KafkaPublisher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "eventbus").Logger()
	}
	p := &KafkaPublisher{w: w, ch: make(chan wireEvent, cfg.Buffer), log: log, done: make(chan struct{})}
	go p.loop()
	return p
}

func (p *KafkaPublisher) Publish(e manager.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- wireEvent{Name: e.Name, UserID: e.UserID, At: time.Now().UTC(), Fields: e.Fields}:
	default:
		p.log.Warn().Str("event", e.Name).Msg("event buffer full, dropping")
	}
}

func (p *KafkaPublisher) loop() {
	defer close(p.done)
	for ev := range p.ch {
		b, err := json.Marshal(ev)
		if err != nil {
			p.log.Error().Err(err).Str("event", ev.Name).Msg("marshal event")
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = p.w.WriteMessages(ctx, kafka.Message{Key: []byte(ev.UserID), Value: b})
		cancel()
		if err != nil {
			p.log.Warn().Err(err).Str("event", ev.Name).Msg("publish event")
		}
	}
}

// Close flushes buffered events and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()
	<-p.done
	return p.w.Close()
}
