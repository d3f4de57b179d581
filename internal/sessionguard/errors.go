package sessionguard

import "errors"

var (
	// ErrLockedOut is returned by Login while the brute-force lock is active.
	ErrLockedOut = errors.New("sessionguard: too many failed attempts")

	// ErrNotAuthenticated is returned when an operation needs a live session.
	ErrNotAuthenticated = errors.New("sessionguard: not authenticated")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sessionguard: guard closed")
)
