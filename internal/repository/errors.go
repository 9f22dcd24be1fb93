package repository

import "errors"

var (
	// ErrRunNotFound indicates no run with the given id exists
	ErrRunNotFound = errors.New("run not found")

	// ErrRunCompleted indicates a write to a run that was already closed
	ErrRunCompleted = errors.New("run already completed")

	// ErrRepositoryUnavailable indicates the store is closed or unopened
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
