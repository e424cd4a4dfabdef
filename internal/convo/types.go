package convo

import (
	"context"
	"time"
)

// WindowSize is the maximum number of turns retained per session.
const WindowSize = 10

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
	// Tone is an optional emotional-tone tag.
	Tone string `json:"tone,omitempty"`
}

// Session is a read-only snapshot of a conversation.
type Session struct {
	ID         string
	UserID     string
	Turns      []Turn
	CreatedAt  time.Time
	LastActive time.Time
}

// TurnStore is the persistence collaborator for finalized turns.
// The core owns no schema; implementations decide how turns are kept.
type TurnStore interface {
	AppendTurn(ctx context.Context, sessionID, userID string, t Turn) error
	LoadRecentTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	// SessionOwner returns the user a session's turns were written for, or ""
	// when nothing is stored for sessionID.
	SessionOwner(ctx context.Context, sessionID string) (string, error)
}
