package mixer

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Use errors.Is to test for them.
var (
	ErrIncompatibleFormat = errors.New("mixer: incompatible format")
	ErrUnsupportedFormat  = errors.New("mixer: unsupported pixel format")
	ErrMissingTimestamp   = errors.New("mixer: buffer without timestamp")
	ErrReverseRate        = errors.New("mixer: reverse playback is not supported")
	ErrAllocation         = errors.New("mixer: output buffer allocation failed")
	ErrFlushing           = errors.New("mixer: flushing")
	ErrUnknownChannel     = errors.New("mixer: unknown channel")
	ErrInvalidAlpha       = errors.New("mixer: alpha out of range")
	ErrNotRunning         = errors.New("mixer: engine not running")
	ErrNotNegotiated      = errors.New("mixer: channel format not negotiated")
	ErrEOS                = errors.New("mixer: end of stream")
	ErrFrameTooLarge      = errors.New("mixer: frame too large")
)

// ChannelError attributes a failure to one input channel.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("mixer: channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
