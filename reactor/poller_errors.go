package reactor

import "errors"

// Poller registration errors, adapted from eventloop/poller_linux.go and
// eventloop/poller_darwin.go's identically-named sentinels.
var (
	ErrFDOutOfRange        = errors.New("reactor: fd out of range")
	ErrFDAlreadyRegistered = errors.New("reactor: fd already registered")
	ErrFDNotRegistered     = errors.New("reactor: fd not registered")
	ErrPollerClosed        = errors.New("reactor: poller closed")
)
