// Package reactor implements the single-threaded reactor/executor,
// I/O object + completion-token model, timers, and signal source of
// spec.md §4.4-§4.6, §4.11-§4.12.
package reactor

// IOEvent is the type of I/O readiness a watcher can be notified of
// (spec.md §4.6's "fd readiness" watcher callback).
type IOEvent uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvent = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// IOCallback is invoked with the readiness events observed for a
// registered file descriptor.
type IOCallback func(IOEvent)

// poller is the platform-native readiness multiplexer a Reactor drives
// (epoll on Linux, kqueue on Darwin/BSD — see poller_linux.go and
// poller_darwin.go, both adapted from eventloop/poller_linux.go and
// eventloop/poller_darwin.go, generalized from a JS-task-loop's I/O
// registration to the reactor's IoObject watcher list of spec.md §4.6).
type poller interface {
	Init() error
	Close() error
	RegisterFD(fd int, events IOEvent, cb IOCallback) error
	UnregisterFD(fd int) error
	ModifyFD(fd int, events IOEvent) error
	// PollIO blocks for at most timeoutMs (or indefinitely if negative)
	// for I/O events, dispatching any it observes, and returns how many
	// were processed.
	PollIO(timeoutMs int) (int, error)
}
