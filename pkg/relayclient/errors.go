package relayclient

import "errors"

var (
	ErrDial   = errors.New("relayclient: dial failed")
	ErrClosed = errors.New("relayclient: client closed")
)
