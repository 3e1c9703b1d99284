package reactor

// Options configures a Reactor at construction time (spec.md §4.7's
// bounded read-batching and §4.8's TLS write coalescing are both sized
// from here so netio channels can read them back off the owning
// reactor, mirroring the teacher's functional-options config layer).
type Options struct {
	// ReadBatchLimit bounds how many read iterations a socket/pipe
	// channel performs per readiness event before yielding back to the
	// reactor (spec.md §4.7: "bounded count (12 iterations)").
	ReadBatchLimit int
	// TLSCoalesceSize is the minimum size, in bytes, up to which small
	// TLS writes are coalesced before flushing (spec.md §4.8, default
	// 1500).
	TLSCoalesceSize int
	// PollBatchSize is recorded here but not read by the pollers: a
	// single PollIO call drains at most 256 events, the size of each
	// poller's fixed event buffer.
	PollBatchSize int
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		ReadBatchLimit:  12,
		TLSCoalesceSize: 1500,
		PollBatchSize:   256,
	}
}

// WithReadBatchLimit overrides the per-readiness read iteration bound.
func WithReadBatchLimit(n int) Option {
	return func(o *Options) { o.ReadBatchLimit = n }
}

// WithTLSCoalesceSize overrides the TLS write-coalescing threshold.
func WithTLSCoalesceSize(n int) Option {
	return func(o *Options) { o.TLSCoalesceSize = n }
}

// WithPollBatchSize sets Options.PollBatchSize; the pollers do not read
// it (see Options.PollBatchSize).
func WithPollBatchSize(n int) Option {
	return func(o *Options) { o.PollBatchSize = n }
}
