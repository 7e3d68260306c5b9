package server

import "errors"

var (
	// ErrBind means the listening socket could not be acquired. Fatal.
	ErrBind = errors.New("failed to bind listener")

	// ErrAccept means the listener failed in a way retrying cannot fix. Fatal.
	ErrAccept = errors.New("listener accept failed")

	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrShutdownTimeout      = errors.New("shutdown timeout exceeded")
)
