package frame

import "errors"

var (
	// ErrTruncatedFrame means the stream ended inside a header or payload.
	ErrTruncatedFrame = errors.New("frame: truncated frame")

	// ErrFrameTooLarge means a length header exceeds the configured maximum.
	ErrFrameTooLarge = errors.New("frame: frame too large")
)
