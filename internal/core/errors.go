package core

import "errors"

// Storage and lookup errors shared by every backend.
var (
	ErrNotFound     = errors.New("not found")
	ErrUserNotFound = errors.New("user not found")
	ErrConflict     = errors.New("concurrent modification")
	ErrPersistence  = errors.New("persistence failure")
)
