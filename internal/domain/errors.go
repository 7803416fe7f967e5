package domain

import "errors"

var (
	ErrDuplicateRun      = errors.New("run already in progress")
	ErrPersistence       = errors.New("persistence failure")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrInvalidChannel    = errors.New("invalid channel")
	ErrRunNotFound       = errors.New("run not found")
	ErrReplayNotFound    = errors.New("replay not found")
)
