package entity

import "errors"

var (
	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrRunFinalized is returned when finalizing a run that already reached a terminal status.
	ErrRunFinalized = errors.New("search run already finalized")
)
