package client

// Status is the Connection's observable state (spec.md §4.5).
type Status int

const (
	// Disconnected is the initial state and the state reached after a
	// graceful or forced teardown.
	Disconnected Status = iota
	// Connecting is entered by Connect and left for Connected or Error.
	Connecting
	// Connected is entered once the transport handshake and any
	// AUTH/SELECT bootstrap succeed.
	Connected
	// Error is a terminal observable state reached when Connect fails
	// (dial/handshake or AUTH/SELECT); a fresh Connect call resets it
	// to Connecting. A liveness failure leads to Disconnected instead.
	Error
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}
