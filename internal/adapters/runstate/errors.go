package runstate

import "errors"

// Run-state errors.
var (
	// ErrStore reports that the backing store could not be read or written.
	ErrStore = errors.New("run state store failure")
	// ErrCorruptValue reports a stored flag that is not a boolean.
	ErrCorruptValue = errors.New("run state value is not a boolean")
)
