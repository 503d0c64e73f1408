package loaf

import "errors"

// Public sentinel errors. Internal errors are translated at the facade
// boundary so callers never match against internal/ sentinels.
var (
	// ErrNotFound is returned when an id resolves to nothing.
	ErrNotFound = errors.New("loaf: not found")

	// ErrDenied is returned when governance refuses an operation.
	ErrDenied = errors.New("loaf: denied")

	// ErrValidation is returned when a payload fails shape validation.
	ErrValidation = errors.New("loaf: validation failed")

	// ErrBudgetExceeded is returned when the actor's admission budget for
	// the current window is spent.
	ErrBudgetExceeded = errors.New("loaf: budget exceeded")

	// ErrNoPersistence is returned by snapshot operations when no
	// persistence store is configured.
	ErrNoPersistence = errors.New("loaf: no persistence store configured")
)
