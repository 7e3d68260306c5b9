package config

import "errors"

var (
	ErrNilConfig   = errors.New("config: destination must not be nil")
	ErrParseConfig = errors.New("config: failed to parse environment")
)
