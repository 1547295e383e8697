package roster

import "errors"

// Roster errors.
var (
	// ErrUnavailable reports that the profile store could not be reached.
	ErrUnavailable = errors.New("roster store unavailable")
	// ErrQuery reports a failed roster query.
	ErrQuery = errors.New("roster query failed")
	// ErrDecode reports a stored subject that could not be decoded.
	ErrDecode = errors.New("roster decode failed")
)
