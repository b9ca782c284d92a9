package client

import (
	"context"
	"testing"

	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/respwire/internal/testserver"
)

func TestCommandShortcutsEndToEnd(t *testing.T) {
	srv := testserver.NewEchoServer(t)
	defer srv.Close()

	conn, err := Dial(context.Background(), srv.Addr())
	assert.NoError(t, err)
	defer conn.Destroy()

	ctx := context.Background()

	ping := conn.Ping(ctx)
	assert.True(t, ping.Success)
	assert.Equal(t, "PONG", ping.Data)

	echo := conn.Echo(ctx, "hello")
	assert.True(t, echo.Success)
	assert.Equal(t, "hello", echo.Data)

	set := conn.Set(ctx, "counter", "0")
	assert.True(t, set.Success)

	incr := conn.Incr(ctx, "counter")
	assert.True(t, incr.Success)
	assert.Equal(t, int64(1), incr.Data)

	exists := conn.Exists(ctx, "counter", "missing")
	assert.True(t, exists.Success)
	assert.Equal(t, int64(1), exists.Data)

	expire := conn.Expire(ctx, "counter", 30)
	assert.True(t, expire.Success)
	assert.Equal(t, int64(1), expire.Data)

	del := conn.Del(ctx, "counter")
	assert.True(t, del.Success)
	assert.Equal(t, int64(1), del.Data)

	auth := conn.Auth(ctx, "whatever")
	assert.True(t, auth.Success)

	sel := conn.Select(ctx, 3)
	assert.True(t, sel.Success)
}

func TestExecuteLineParsesAndRuns(t *testing.T) {
	srv := testserver.NewEchoServer(t)
	defer srv.Close()

	conn, err := Dial(context.Background(), srv.Addr())
	assert.NoError(t, err)
	defer conn.Destroy()

	result := conn.ExecuteLine(context.Background(), `SET "my key" "hello world"`)
	assert.True(t, result.Success)
	assert.Equal(t, "OK", result.Data)

	result = conn.ExecuteLine(context.Background(), `GET "my key"`)
	assert.True(t, result.Success)
	assert.Equal(t, "hello world", result.Data)
}

func TestExecuteLineRejectsEmptyLine(t *testing.T) {
	srv := testserver.NewEchoServer(t)
	defer srv.Close()

	conn, err := Dial(context.Background(), srv.Addr())
	assert.NoError(t, err)
	defer conn.Destroy()

	result := conn.ExecuteLine(context.Background(), "   ")
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, errEmptyCommandLine)
}

func TestDialWithConfigPerformsAuthAndSelectDuringConnect(t *testing.T) {
	srv := testserver.NewEchoServer(t)
	defer srv.Close()

	db := 2
	conn, err := DialWithConfig(context.Background(), srv.Addr(), &Config{
		Password: "secret",
		Database: &db,
	})
	assert.NoError(t, err)
	defer conn.Destroy()

	assert.Equal(t, Connected, conn.Status())
}
