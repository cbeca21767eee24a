package store

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrContention is returned after bounded retries exhaust on a
	// conflicting concurrent mutation.
	ErrContention = errors.New("store contention: retries exhausted")
)
