// Package testserver is a real in-process fake wire-protocol server,
// used by client package tests that need an actual net.Conn rather than
// a mocked Transport (reconnect, liveness, teardown-under-load).
// Grounded on v2/netconf/testserver/test_server.go's
// NewSSHServerHandler/acceptConnections pattern (listen on
// "localhost:0", hand each accepted connection to a per-test Handler on
// its own goroutine, expose Port/Close), replacing the SSH transport and
// line-echo Handler with a plain TCP listener and a Handler over decoded
// command frames.
package testserver

import (
	"net"
	"strconv"
	"sync"

	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/respwire/resp"
)

// Handler reacts to one decoded command (its argument vector, decoded
// from the bulk-bytes elements of the command array a client sent) and
// returns the reply frame to write back.
type Handler interface {
	Handle(t assert.TestingT, args []string) resp.Frame
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(t assert.TestingT, args []string) resp.Frame

func (f HandlerFunc) Handle(t assert.TestingT, args []string) resp.Frame { return f(t, args) }

// HandlerFactory builds a fresh Handler per accepted connection, mirroring
// the teacher's per-channel SSHHandler factory.
type HandlerFactory func(t assert.TestingT) Handler

// Server is a fake wire-protocol server listening on an OS-assigned
// loopback port.
type Server struct {
	listener net.Listener

	mu    sync.Mutex
	conns []net.Conn
}

// NewServer starts a Server whose connections are each served by a fresh
// Handler from factory.
func NewServer(t assert.TestingT, factory HandlerFactory) *Server {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err, "listen failed")

	s := &Server{listener: listener}
	go s.acceptConnections(t, factory)
	return s
}

// NewEchoServer starts a Server whose Handler replies OK to SET, the
// stored value (or a null bulk) to GET, and PONG to PING; good enough for
// exercising the connection state machine without per-test wiring.
func NewEchoServer(t assert.TestingT) *Server {
	return NewServer(t, func(t assert.TestingT) Handler {
		return &keyValueHandler{store: map[string]string{}}
	})
}

// Addr returns the "host:port" string a client.Connection can dial.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Close stops accepting new connections and aborts every connection
// accepted so far, so that a client blocked reading from this server
// observes an immediate transport failure.
func (s *Server) Close() {
	_ = s.listener.Close()

	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) acceptConnections(t assert.TestingT, factory HandlerFactory) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		go serveConn(t, conn, factory(t))
	}
}

func serveConn(t assert.TestingT, conn net.Conn, handler Handler) {
	defer conn.Close()

	parser := resp.NewParser()
	readBuf := make([]byte, 4096)

	for {
		n, err := conn.Read(readBuf)
		if n > 0 {
			parser.Append(readBuf[:n])
			if !drainAndReply(t, conn, parser, handler) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func drainAndReply(t assert.TestingT, conn net.Conn, parser *resp.Parser, handler Handler) bool {
	for {
		frame, ok, err := parser.TryParse()
		if err != nil {
			return false
		}
		if !ok {
			return true
		}

		args, err := commandArgs(frame)
		if err != nil {
			return false
		}

		reply := handler.Handle(t, args)
		buf, err := resp.EncodeFrame(reply)
		assert.NoError(t, err, "encode reply")
		if _, err := conn.Write(buf); err != nil {
			return false
		}
	}
}

// commandArgs decodes a client-sent command array (spec.md §4.2: an
// array of bulk-bytes arguments) into a plain string vector.
func commandArgs(f resp.Frame) ([]string, error) {
	if f.Kind != resp.Array {
		return nil, errNotACommand
	}
	args := make([]string, len(f.Items))
	for i, item := range f.Items {
		if item.Kind != resp.Bulk || item.Null {
			return nil, errNotACommand
		}
		args[i] = string(item.Bytes)
	}
	return args, nil
}

type keyValueHandler struct {
	store map[string]string
}

func (h *keyValueHandler) Handle(t assert.TestingT, args []string) resp.Frame {
	if len(args) == 0 {
		return resp.NewError("ERR empty command")
	}
	switch args[0] {
	case "PING":
		return resp.NewSimpleString("PONG")
	case "ECHO":
		if len(args) != 2 {
			return resp.NewError("ERR wrong number of arguments")
		}
		return resp.NewBulk([]byte(args[1]))
	case "SET":
		if len(args) != 3 {
			return resp.NewError("ERR wrong number of arguments")
		}
		h.store[args[1]] = args[2]
		return resp.NewSimpleString("OK")
	case "GET":
		if len(args) != 2 {
			return resp.NewError("ERR wrong number of arguments")
		}
		v, ok := h.store[args[1]]
		if !ok {
			return resp.NewNullBulk()
		}
		return resp.NewBulk([]byte(v))
	case "DEL":
		count := int64(0)
		for _, k := range args[1:] {
			if _, ok := h.store[k]; ok {
				delete(h.store, k)
				count++
			}
		}
		return resp.NewInteger(count)
	case "EXISTS":
		count := int64(0)
		for _, k := range args[1:] {
			if _, ok := h.store[k]; ok {
				count++
			}
		}
		return resp.NewInteger(count)
	case "EXPIRE":
		if len(args) != 3 {
			return resp.NewError("ERR wrong number of arguments")
		}
		if _, ok := h.store[args[1]]; !ok {
			return resp.NewInteger(0)
		}
		return resp.NewInteger(1)
	case "INCR":
		if len(args) != 2 {
			return resp.NewError("ERR wrong number of arguments")
		}
		n, _ := strconv.ParseInt(h.store[args[1]], 10, 64)
		n++
		h.store[args[1]] = strconv.FormatInt(n, 10)
		return resp.NewInteger(n)
	case "AUTH", "SELECT":
		return resp.NewSimpleString("OK")
	default:
		return resp.NewError("ERR unknown command")
	}
}
