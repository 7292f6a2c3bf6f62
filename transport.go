package nxdt

// Result is the outcome of a posted endpoint transfer: the number of
// bytes actually moved and the error, if any. A cancelled transfer
// completes with a non-nil error.
type Result struct {
	N   int
	Err error
}

// Endpoint models one direction of the bulk link. Transfers are
// asynchronous: Post queues the buffer, and exactly one Result is later
// delivered on the Completion channel, including after a Cancel. An
// endpoint must never be reused while a posted transfer might still
// complete; the engine always drains the completion before moving on.
//
// Buffers handed to Post satisfy TransferAlignment.
type Endpoint interface {
	Post(buf []byte) error
	Completion() <-chan Result
	Cancel() error
}

// Transport is the bulk-transport device driver consumed by the
// engine. In carries device-to-host data, Out carries host-to-device
// data (status blocks).
type Transport interface {
	// In returns the device-to-host endpoint.
	In() Endpoint
	// Out returns the host-to-device endpoint.
	Out() Endpoint
	// HostAttached reports whether a host is currently attached.
	HostAttached() bool
	// Notify returns a channel signalled on every host attach/detach
	// state change. Signals may be coalesced.
	Notify() <-chan struct{}
	// Close releases the transport. Pending completions are allowed
	// to fire with an error.
	Close() error
}
