package convo

import "errors"

// ErrSessionNotFound matches any error returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

type sessionNotFoundError struct{ id string }

func (e sessionNotFoundError) Error() string { return "session not found: " + e.id }

func (e sessionNotFoundError) Is(target error) bool { return target == ErrSessionNotFound }

// IsSessionNotFound reports whether err indicates an unknown session id (return 404).
func IsSessionNotFound(err error) bool { return errors.Is(err, ErrSessionNotFound) }
