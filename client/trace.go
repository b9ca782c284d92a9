package client

import (
	"context"
	"log"
	"time"

	"github.com/imdario/mergo"
)

// unique type to prevent assignment.
type clientTraceContextKey struct{}

// ContextClientTrace returns the Trace associated with the provided
// context. If none, it returns NoOpLoggingHooks. If one is present, any
// hook left unset on it is filled from NoOpLoggingHooks so a caller that
// only cares about one event can supply a trace with a single field set.
func ContextClientTrace(ctx context.Context) *ClientTrace {
	trace, _ := ctx.Value(clientTraceContextKey{}).(*ClientTrace)
	if trace == nil {
		trace = NoOpLoggingHooks
	} else {
		_ = mergo.Merge(trace, NoOpLoggingHooks)
	}
	return trace
}

// WithClientTrace returns a new context based on the provided parent
// ctx. Connections created with the returned context will report events
// through the provided trace hooks.
func WithClientTrace(ctx context.Context, trace *ClientTrace) context.Context {
	return context.WithValue(ctx, clientTraceContextKey{}, trace)
}

// ClientTrace defines a structure for handling trace events emitted by a
// Connection, as named in spec.md §6 ("An event channel emitting:
// status(new_state), close(had_error), error(err), message(frame)"). It
// is richer than the minimal event channel so a caller can observe
// transport-level timing as well.
//
//nolint: golint
type ClientTrace struct {
	// StatusChanged is called on every connection state transition
	// (spec.md §4.5).
	StatusChanged func(connID string, from, to Status)

	// ConnectStart is called when Connect begins dialing.
	ConnectStart func(connID, addr string)
	// ConnectDone is called when Connect completes, successfully or not.
	ConnectDone func(connID, addr string, err error, d time.Duration)

	// ReadStart/ReadDone bracket a single transport read.
	ReadStart func(connID string, bufLen int)
	ReadDone  func(connID string, n int, err error, d time.Duration)

	// WriteStart/WriteDone bracket a single transport write.
	WriteStart func(connID string, bufLen int)
	WriteDone  func(connID string, n int, err error, d time.Duration)

	// Error is called whenever an error condition is detected, with
	// context naming where.
	Error func(connID, context string, err error)

	// MessageReceived is called for every unsolicited frame delivered
	// to the event sink (spec.md §4.4 "Otherwise, the frame is
	// unsolicited").
	MessageReceived func(connID string, frame interface{})

	// CommandStart/CommandDone bracket a single Send/Execute.
	CommandStart func(connID string, args int)
	CommandDone  func(connID string, args int, err error, d time.Duration)

	// PingDone is called after each liveness ping (spec.md §4.4
	// "Liveness").
	PingDone func(connID string, err error, d time.Duration)
}

// DefaultLoggingHooks logs only errors.
var DefaultLoggingHooks = &ClientTrace{
	Error: func(connID, context string, err error) {
		log.Printf("client[%s] error context:%s err:%v\n", connID, context, err)
	},
}

// MetricLoggingHooks logs connection and command latency.
var MetricLoggingHooks = &ClientTrace{
	ConnectDone: func(connID, addr string, err error, d time.Duration) {
		log.Printf("client[%s] connect addr:%s err:%v took:%s\n", connID, addr, err, d)
	},
	CommandDone: func(connID string, args int, err error, d time.Duration) {
		log.Printf("client[%s] command args:%d err:%v took:%s\n", connID, args, err, d)
	},
	PingDone: func(connID string, err error, d time.Duration) {
		log.Printf("client[%s] ping err:%v took:%s\n", connID, err, d)
	},
	Error: DefaultLoggingHooks.Error,
}

// DiagnosticLoggingHooks logs every trace event.
var DiagnosticLoggingHooks = &ClientTrace{
	StatusChanged: func(connID string, from, to Status) {
		log.Printf("client[%s] status %s -> %s\n", connID, from, to)
	},
	ConnectStart: func(connID, addr string) {
		log.Printf("client[%s] connect start addr:%s\n", connID, addr)
	},
	ConnectDone: MetricLoggingHooks.ConnectDone,
	ReadStart: func(connID string, bufLen int) {
		log.Printf("client[%s] read start cap:%d\n", connID, bufLen)
	},
	ReadDone: func(connID string, n int, err error, d time.Duration) {
		log.Printf("client[%s] read done n:%d err:%v took:%s\n", connID, n, err, d)
	},
	WriteStart: func(connID string, bufLen int) {
		log.Printf("client[%s] write start len:%d\n", connID, bufLen)
	},
	WriteDone: func(connID string, n int, err error, d time.Duration) {
		log.Printf("client[%s] write done n:%d err:%v took:%s\n", connID, n, err, d)
	},
	Error: DefaultLoggingHooks.Error,
	MessageReceived: func(connID string, frame interface{}) {
		log.Printf("client[%s] unsolicited frame:%v\n", connID, frame)
	},
	CommandStart: func(connID string, args int) {
		log.Printf("client[%s] command start args:%d\n", connID, args)
	},
	CommandDone: MetricLoggingHooks.CommandDone,
	PingDone:    MetricLoggingHooks.PingDone,
}

// NoOpLoggingHooks does nothing; it is the baseline every other hook set
// (and every caller-supplied trace) is merged over, so every field is
// always callable without a nil check.
var NoOpLoggingHooks = &ClientTrace{
	StatusChanged:   func(connID string, from, to Status) {},
	ConnectStart:    func(connID, addr string) {},
	ConnectDone:     func(connID, addr string, err error, d time.Duration) {},
	ReadStart:       func(connID string, bufLen int) {},
	ReadDone:        func(connID string, n int, err error, d time.Duration) {},
	WriteStart:      func(connID string, bufLen int) {},
	WriteDone:       func(connID string, n int, err error, d time.Duration) {},
	Error:           func(connID, context string, err error) {},
	MessageReceived: func(connID string, frame interface{}) {},
	CommandStart:    func(connID string, args int) {},
	CommandDone:     func(connID string, args int, err error, d time.Duration) {},
	PingDone:        func(connID string, err error, d time.Duration) {},
}
