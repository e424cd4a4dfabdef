package manager

import "errors"

var (
	// ErrPoolExhausted is returned when no slot frees up before the acquire deadline.
	ErrPoolExhausted = errors.New("model pool exhausted")
	// ErrModelLoadTimeout is returned when a load does not finish in time.
	ErrModelLoadTimeout = errors.New("model load timeout")
	// ErrModelCrash is returned when the loader or the freshly loaded runtime fails.
	ErrModelCrash = errors.New("model crashed")
	// ErrShuttingDown is returned by Acquire after Shutdown.
	ErrShuttingDown = errors.New("model pool shutting down")
)

// IsPoolExhausted reports whether err indicates pool exhaustion.
func IsPoolExhausted(err error) bool { return errors.Is(err, ErrPoolExhausted) }

// IsModelLoadTimeout reports whether err indicates a load timeout.
func IsModelLoadTimeout(err error) bool { return errors.Is(err, ErrModelLoadTimeout) }

// IsModelCrash reports whether err indicates a crashed model.
func IsModelCrash(err error) bool { return errors.Is(err, ErrModelCrash) }

// handleNotFoundError is returned by Evict for users without a handle.
type handleNotFoundError struct{ userID string }

func (e handleNotFoundError) Error() string { return "no model loaded for user: " + e.userID }

// IsHandleNotFound reports whether err indicates a user without a pooled handle.
func IsHandleNotFound(err error) bool {
	var e handleNotFoundError
	return errors.As(err, &e)
}
