package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/respwire/client/mocks"
	"github.com/damianoneill/respwire/internal/testserver"
	"github.com/damianoneill/respwire/resp"
)

func dialEcho(t *testing.T, cfg *Config) (*Connection, *testserver.Server) {
	t.Helper()
	srv := testserver.NewEchoServer(t)
	conn, err := DialWithConfig(context.Background(), srv.Addr(), cfg)
	assert.NoError(t, err)
	return conn, srv
}

// newMockedConnection builds a Connection already in the Connected
// generation (transport, parser, queue, torndown all set, as Connect
// would leave them) but backed by a MockTransport instead of a real
// socket, so a test can inject a Write failure a fake server cannot
// reliably trigger on demand.
func newMockedConnection(t *testing.T, transport Transport) *Connection {
	t.Helper()
	c := New("mock:0", nil)
	c.status = Connected
	c.transport = transport
	c.parser = resp.NewParser()
	c.queue = newPendingQueue(0)
	c.stopPing = make(chan struct{})
	c.torndown = &sync.Once{}
	return c
}

func TestConnectReachesConnected(t *testing.T) {
	conn, srv := dialEcho(t, nil)
	defer srv.Close()
	defer conn.Destroy()

	assert.Equal(t, Connected, conn.Status())
}

func TestConnectIsIdempotentWhenAlreadyConnected(t *testing.T) {
	conn, srv := dialEcho(t, nil)
	defer srv.Close()
	defer conn.Destroy()

	assert.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, Connected, conn.Status())
}

func TestSetThenGetRoundTrips(t *testing.T) {
	conn, srv := dialEcho(t, nil)
	defer srv.Close()
	defer conn.Destroy()

	ctx := context.Background()
	setResult := conn.Set(ctx, "k", "v")
	assert.True(t, setResult.Success)
	assert.Equal(t, "OK", setResult.Data)

	getResult := conn.Get(ctx, "k")
	assert.True(t, getResult.Success)
	assert.Equal(t, "v", getResult.Data)
}

func TestGetMissingKeyReturnsNilData(t *testing.T) {
	conn, srv := dialEcho(t, nil)
	defer srv.Close()
	defer conn.Destroy()

	result := conn.Get(context.Background(), "no-such-key")
	assert.True(t, result.Success)
	assert.Nil(t, result.Data)
}

func TestServerErrorSurfacesAsResultFailure(t *testing.T) {
	conn, srv := dialEcho(t, nil)
	defer srv.Close()
	defer conn.Destroy()

	result := conn.Execute(context.Background(), resp.ArgStrings("NOSUCHCOMMAND"))
	assert.False(t, result.Success)
	var serverErr *resp.ServerError
	assert.ErrorAs(t, result.Err, &serverErr)
}

func TestPipelineDeliversOneResultPerCommandInOrder(t *testing.T) {
	conn, srv := dialEcho(t, nil)
	defer srv.Close()
	defer conn.Destroy()

	results, err := conn.Pipeline(context.Background(), [][]resp.Argument{
		resp.ArgStrings("SET", "a", "1"),
		resp.ArgStrings("SET", "b", "2"),
		resp.ArgStrings("GET", "a"),
		resp.ArgStrings("GET", "b"),
	})
	assert.NoError(t, err)
	assert.Len(t, results, 4)
	assert.Equal(t, "OK", results[0].Data)
	assert.Equal(t, "OK", results[1].Data)
	assert.Equal(t, "1", results[2].Data)
	assert.Equal(t, "2", results[3].Data)
}

func TestSendRollsBackQueueAndTearsDownOnWriteFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	conn := newMockedConnection(t, transport)

	writeErr := errors.New("mock: broken pipe")
	transport.EXPECT().Write(gomock.Any()).Return(0, writeErr)
	transport.EXPECT().Close().Return(nil).AnyTimes()

	_, err := conn.Send(context.Background(), resp.ArgStrings("PING"))
	assert.ErrorIs(t, err, writeErr)

	// The waiter's queue slot must be rolled back, not left dangling:
	// sendInternal's queue.popBack() undoes the push a failed write
	// never put on the wire.
	assert.Equal(t, 0, conn.queue.len())
	assert.Equal(t, Disconnected, conn.Status())
}

func TestPipelineRollsBackAllWaitersOnWriteFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	conn := newMockedConnection(t, transport)

	writeErr := errors.New("mock: broken pipe")
	transport.EXPECT().Write(gomock.Any()).Return(0, writeErr)
	transport.EXPECT().Close().Return(nil).AnyTimes()

	_, err := conn.Pipeline(context.Background(), [][]resp.Argument{
		resp.ArgStrings("SET", "a", "1"),
		resp.ArgStrings("SET", "b", "2"),
	})
	assert.ErrorIs(t, err, writeErr)
	assert.Equal(t, 0, conn.queue.len())
	assert.Equal(t, Disconnected, conn.Status())
}

func TestSendTimesOutWithoutTearingDownConnection(t *testing.T) {
	srv := testserver.NewServer(t, func(t assert.TestingT) testserver.Handler {
		return testserver.HandlerFunc(func(t assert.TestingT, args []string) resp.Frame {
			if len(args) > 0 && args[0] == "SLOW" {
				time.Sleep(100 * time.Millisecond)
			}
			return resp.NewSimpleString("OK")
		})
	})
	defer srv.Close()

	cfg := &Config{CommandTimeout: 15 * time.Millisecond}
	conn, err := DialWithConfig(context.Background(), srv.Addr(), cfg)
	assert.NoError(t, err)
	defer conn.Destroy()

	_, err = conn.Send(context.Background(), resp.ArgStrings("SLOW"))
	assert.ErrorIs(t, err, ErrTimeout)

	// The connection must survive a single command timeout and still
	// serve the next command correctly once the slow reply has drained.
	time.Sleep(150 * time.Millisecond)
	result := conn.Ping(context.Background())
	assert.True(t, result.Success)
	assert.Equal(t, Connected, conn.Status())
}

func TestDisconnectMovesToDisconnectedAndRejectsLaterSends(t *testing.T) {
	conn, srv := dialEcho(t, nil)
	defer srv.Close()

	assert.NoError(t, conn.Disconnect())
	assert.Equal(t, Disconnected, conn.Status())

	_, err := conn.Send(context.Background(), resp.ArgStrings("PING"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDestroyIsIdempotentWithDisconnect(t *testing.T) {
	conn, srv := dialEcho(t, nil)
	defer srv.Close()

	conn.Destroy()
	conn.Destroy()
	assert.NoError(t, conn.Disconnect())
	assert.Equal(t, Disconnected, conn.Status())
}

func TestServerCloseMovesConnectionToDisconnected(t *testing.T) {
	conn, srv := dialEcho(t, &Config{CommandTimeout: 100 * time.Millisecond})
	defer conn.Destroy()

	srv.Close()
	_, err := conn.Send(context.Background(), resp.ArgStrings("PING"))
	assert.Error(t, err)

	deadline := time.After(time.Second)
	for conn.Status() != Disconnected {
		select {
		case <-deadline:
			t.Fatal("connection never observed transport close")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestUnsolicitedFrameSurfacesAsMessageEvent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()

		buf, _ := resp.EncodeFrame(resp.NewSimpleString("UNSOLICITED"))
		_, _ = c.Write(buf)

		parser := resp.NewParser()
		readBuf := make([]byte, 1024)
		for {
			n, rerr := c.Read(readBuf)
			if n > 0 {
				parser.Append(readBuf[:n])
				for {
					_, ok, perr := parser.TryParse()
					if perr != nil || !ok {
						break
					}
					reply, _ := resp.EncodeFrame(resp.NewSimpleString("PONG"))
					_, _ = c.Write(reply)
				}
			}
			if rerr != nil {
				return
			}
		}
	}()

	conn, err := Dial(context.Background(), ln.Addr().String())
	assert.NoError(t, err)
	defer conn.Destroy()

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-conn.Events():
			if ev.Kind != EventMessage {
				continue
			}
			assert.True(t, ev.Frame.Equal(resp.NewSimpleString("UNSOLICITED")))
			result := conn.Ping(context.Background())
			assert.True(t, result.Success)
			return
		case <-deadline:
			t.Fatal("expected unsolicited message event")
		}
	}
}
