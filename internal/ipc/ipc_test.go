package ipc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T, h Handler) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mirror.sock")
	srv, err := Listen(path, h)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return path
}

func TestSendAndReply(t *testing.T) {
	said := make(chan string, 1)
	path := startServer(t, func(_ context.Context, req Request) Response {
		switch req.Cmd {
		case CmdSay:
			said <- req.Text
			return Response{OK: true}
		case CmdStatus:
			return Response{OK: true, Emotion: "happy", Response: "hi", Paused: true}
		default:
			return Response{Error: "unknown command " + req.Cmd}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := Send(ctx, path, Request{Cmd: CmdSay, Text: "show my outfit"})
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "show my outfit", <-said)

	resp, err = Send(ctx, path, Request{Cmd: CmdStatus})
	require.NoError(t, err)
	require.Equal(t, Response{OK: true, Emotion: "happy", Response: "hi", Paused: true}, resp)

	resp, err = Send(ctx, path, Request{Cmd: "dance"})
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "dance")
}

func TestBadRequest(t *testing.T) {
	path := startServer(t, func(context.Context, Request) Response { return Response{OK: true} })

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "bad request")
}

func TestSend_NoDaemon(t *testing.T) {
	_, err := Send(context.Background(), filepath.Join(t.TempDir(), "none.sock"), Request{Cmd: CmdStatus})
	require.Error(t, err)
}

func TestListen_ReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.sock")
	first, err := Listen(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Listen(path, nil)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
