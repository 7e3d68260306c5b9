package ratelimiter

import "errors"

var (
	ErrInvalidConfig  = errors.New("ratelimiter: invalid configuration")
	ErrAlreadyStarted = errors.New("ratelimiter: cleanup already started")
	ErrNotStarted     = errors.New("ratelimiter: cleanup not started")
	ErrCleanupStopped = errors.New("ratelimiter: cleanup configured but not running")
)
