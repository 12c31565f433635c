package device

import "errors"

// Device is a duplex sound card. The callback receives one buffer of
// captured samples and fills one buffer of samples to play; both hold
// BufferSize mono samples unless the backend says otherwise.
type Device interface {
	Start(callback func(in, out []int32)) error
	Stop() error
}

const BufferSize = 512

var (
	ErrAlreadyStarted = errors.New("device already started")
	ErrNotStarted     = errors.New("device not started")
	ErrUnsupported    = errors.New("device backend not supported on this platform")
)
