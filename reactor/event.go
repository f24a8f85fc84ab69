package reactor

// EventKind identifies what kind of interest to register, modify, or
// remove for a connection's file descriptor.
type EventKind int

const (
	// EventRead expresses interest in readability only.
	EventRead EventKind = iota
	// EventReadWrite expresses interest in both readability and
	// writability — used while a write is pending.
	EventReadWrite
	// EventDelete removes all interest for the fd.
	EventDelete
)

// Pollable is anything a Reactor can multiplex readiness for. conn.Connection
// implements this; the reactor package never imports conn to avoid a cycle —
// it only depends on this narrow interface.
type Pollable interface {
	// FD returns the underlying non-blocking file descriptor.
	FD() int
	// OnReadable is invoked on the reactor goroutine when the fd is ready
	// for reading, or the peer has closed / hung up.
	OnReadable(hangup bool)
	// OnWritable is invoked on the reactor goroutine when the fd is ready
	// for writing.
	OnWritable()
}
