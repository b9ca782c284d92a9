package client

import (
	"context"
	"strconv"

	"github.com/damianoneill/respwire/resp"
)

// This file supplies a representative, non-exhaustive set of
// command-shortcut helpers built over Execute (SPEC_FULL.md §12).
// Grounded on netconf/ops/session.go's thin-method-over-Execute pattern
// (GetSubtree, EditConfig, Lock, ... each build a request and delegate).

// Ping checks liveness and round-trip latency.
func (c *Connection) Ping(ctx context.Context) Result {
	return c.Execute(ctx, resp.ArgStrings("PING"))
}

// Echo asks the server to return message unchanged.
func (c *Connection) Echo(ctx context.Context, message string) Result {
	return c.Execute(ctx, resp.ArgStrings("ECHO", message))
}

// Get retrieves the value stored at key.
func (c *Connection) Get(ctx context.Context, key string) Result {
	return c.Execute(ctx, resp.ArgStrings("GET", key))
}

// Set stores value at key.
func (c *Connection) Set(ctx context.Context, key, value string) Result {
	return c.Execute(ctx, resp.ArgStrings("SET", key, value))
}

// Del removes one or more keys.
func (c *Connection) Del(ctx context.Context, keys ...string) Result {
	return c.Execute(ctx, resp.ArgStrings(append([]string{"DEL"}, keys...)...))
}

// Exists reports how many of the given keys are present.
func (c *Connection) Exists(ctx context.Context, keys ...string) Result {
	return c.Execute(ctx, resp.ArgStrings(append([]string{"EXISTS"}, keys...)...))
}

// Expire sets a time-to-live, in seconds, on key.
func (c *Connection) Expire(ctx context.Context, key string, seconds int64) Result {
	return c.Execute(ctx, resp.ArgStrings("EXPIRE", key, strconv.FormatInt(seconds, 10)))
}

// Incr atomically increments the integer value stored at key.
func (c *Connection) Incr(ctx context.Context, key string) Result {
	return c.Execute(ctx, resp.ArgStrings("INCR", key))
}

// Auth authenticates an already-connected session outside the
// Connect-time bootstrap path (for servers that allow re-authentication
// mid-session).
func (c *Connection) Auth(ctx context.Context, password string) Result {
	return c.Execute(ctx, resp.ArgStrings("AUTH", password))
}

// Select switches the active database outside the Connect-time
// bootstrap path.
func (c *Connection) Select(ctx context.Context, db int) Result {
	return c.Execute(ctx, resp.ArgStrings("SELECT", strconv.Itoa(db)))
}

// ExecuteLine parses a human-typed command line with the quoting rules
// of quote.go and executes it (spec.md §6).
func (c *Connection) ExecuteLine(ctx context.Context, line string) Result {
	parts, err := SplitCommandLine(line)
	if err != nil {
		return Result{Success: false, Err: err}
	}
	if len(parts) == 0 {
		return Result{Success: false, Err: errEmptyCommandLine}
	}
	return c.Execute(ctx, resp.ArgStrings(parts...))
}
