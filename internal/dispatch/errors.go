package dispatch

import "errors"

var (
	// ErrSessionBusy is returned when the session already has an active stream.
	ErrSessionBusy = errors.New("session busy")
	// ErrLowConfidence marks model output rejected by the quality scorer.
	// It is routed to fallback and never returned to callers.
	ErrLowConfidence = errors.New("low confidence output")
	// ErrDiscarded is returned when the client went away before the stream
	// completed. Nothing from the cycle is kept.
	ErrDiscarded = errors.New("stream discarded")
	// ErrInvalidRequest is returned for a request without a session id or message.
	ErrInvalidRequest = errors.New("invalid chat request")
)

// IsSessionBusy reports whether err indicates a concurrent stream on the same session (return 409).
func IsSessionBusy(err error) bool { return errors.Is(err, ErrSessionBusy) }

// IsDiscarded reports whether err indicates a stream abandoned by its client.
func IsDiscarded(err error) bool { return errors.Is(err, ErrDiscarded) }

// IsInvalidRequest reports whether err indicates a malformed request (return 400).
func IsInvalidRequest(err error) bool { return errors.Is(err, ErrInvalidRequest) }
