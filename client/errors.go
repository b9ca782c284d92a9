package client

import "github.com/pkg/errors"

// Sentinel errors for the taxonomy of spec.md §7.
var (
	// errTimeout is delivered to a waiter whose per-command deadline
	// fired before a reply arrived.
	errTimeout = errors.New("client: command timed out")

	// errDisconnecting is delivered to every pending waiter when
	// Disconnect is called.
	errDisconnecting = errors.New("client: disconnecting")

	// errDestroyed is delivered to every pending waiter when Destroy is
	// called.
	errDestroyed = errors.New("client: destroyed")

	// errConnectionClosed is delivered to every pending waiter when the
	// transport fails or closes unexpectedly.
	errConnectionClosed = errors.New("client: connection closed")

	// errNotConnected is a usage error: Send/Pipeline called while not
	// in the Connected state (spec.md §7 "Usage error").
	errNotConnected = errors.New("client: not connected")

	// errUnterminatedQuote is returned by SplitCommandLine when a quoted
	// segment never closes.
	errUnterminatedQuote = errors.New("client: unterminated quote in command line")

	// errEmptyCommandLine is returned by ExecuteLine when the line
	// contains no arguments.
	errEmptyCommandLine = errors.New("client: empty command line")
)

// ErrTimeout is returned by Send/Execute/Pipeline when a command's
// deadline elapses before a reply arrives. It is the same value as
// errTimeout, so errors.Is(err, ErrTimeout) distinguishes a timeout from
// other failures.
var ErrTimeout = errTimeout

// ErrNotConnected is returned by Send/Pipeline when the connection is not
// in the Connected state.
var ErrNotConnected = errNotConnected

// ErrConnectionClosed is returned to pending commands when the transport
// fails or is closed out from under them.
var ErrConnectionClosed = errConnectionClosed
