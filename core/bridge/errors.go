package bridge

import "errors"

var (
	ErrBridgeAlreadyRunning = errors.New("bridge: already running")
	ErrMissingChannel       = errors.New("bridge: channel is required")
	ErrSubscribe            = errors.New("bridge: subscribe failed")
	ErrJoin                 = errors.New("bridge: failed to join hub")
	ErrInject               = errors.New("bridge: failed to inject message")

	// ErrMalformedEnvelope marks a message too short to carry an instance id.
	ErrMalformedEnvelope = errors.New("bridge: envelope shorter than instance id")

	// ErrSubscriptionClosed is returned when the broker ends the subscription
	// while the bridge is still running.
	ErrSubscriptionClosed = errors.New("bridge: subscription closed")
)
