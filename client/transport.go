package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Transport is the duplex byte stream a Connection frames commands and
// replies over (spec.md §6 "An ordered, reliable byte-stream socket").
// Connection reads from its receive loop while commands are written
// (one at a time, under its write lock) and teardown closes from other
// goroutines, so implementations must allow Read concurrently with
// Write and Close, as net.Conn does.
type Transport interface {
	io.ReadWriteCloser
}

// keepAliver is implemented by transports that sit directly on a TCP
// socket, letting dialTransport enable keep-alive and no-delay per
// spec.md §4.4 "Liveness". A TLS-wrapped transport does not implement it
// directly; dialTransport configures the underlying *net.TCPConn before
// the TLS handshake runs.
type keepAliver interface {
	SetKeepAlive(bool) error
	SetKeepAlivePeriod(time.Duration) error
	SetNoDelay(bool) error
}

// dialTransport opens a plain or TLS-wrapped TCP connection to addr,
// applying keep-alive and no-delay to the underlying socket either way
// (spec.md §4.4).
func dialTransport(ctx context.Context, addr string, timeout time.Duration, tlsCfg *TLSConfig) (Transport, error) {
	dialer := &net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	if tcpConn, ok := conn.(keepAliver); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(time.Minute)
		_ = tcpConn.SetNoDelay(true)
	}

	if tlsCfg == nil || !tlsCfg.Enabled {
		return conn, nil
	}

	cfg, err := buildTLSConfig(tlsCfg, addr)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = tlsConn.Close()
		return nil, errors.Wrapf(err, "tls handshake with %s", addr)
	}
	return tlsConn, nil
}

func buildTLSConfig(cfg *TLSConfig, addr string) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint: gosec
	}

	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		tlsCfg.ServerName = host
	}

	if len(cfg.CACert) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(cfg.CACert) {
			return nil, errors.New("client: failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}

	if len(cfg.ClientCert) > 0 || len(cfg.ClientKey) > 0 {
		cert, err := tls.X509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, errors.Wrap(err, "parse client certificate/key")
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return tlsCfg, nil
}

// traceReader and traceWriter wrap a Transport's Read/Write with trace
// hook calls, grounded on the teacher's traceReader/traceWriter in
// netconf/client/transport.go.
type traceReader struct {
	r      io.Reader
	connID string
	trace  *ClientTrace
}

func (tr *traceReader) Read(p []byte) (int, error) {
	tr.trace.ReadStart(tr.connID, len(p))
	begin := time.Now()
	n, err := tr.r.Read(p)
	tr.trace.ReadDone(tr.connID, n, err, time.Since(begin))
	return n, err
}

type traceWriter struct {
	w      io.Writer
	connID string
	trace  *ClientTrace
}

func (tw *traceWriter) Write(p []byte) (int, error) {
	tw.trace.WriteStart(tw.connID, len(p))
	begin := time.Now()
	n, err := tw.w.Write(p)
	tw.trace.WriteDone(tw.connID, n, err, time.Since(begin))
	return n, err
}
