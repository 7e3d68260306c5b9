package gateway

import "errors"

var (
	ErrMissingAddress        = errors.New("gateway: address is required")
	ErrBind                  = errors.New("gateway: failed to bind address")
	ErrGatewayAlreadyRunning = errors.New("gateway: already running")
)
