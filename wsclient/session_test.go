package wsclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/wsconsole/log"
	"github.com/grafana/wsconsole/wsclient/wstest"
)

const waitFor = 2 * time.Second

func newSessionTest(t *testing.T, serverHandler func(conn *websocket.Conn)) *Session {
	t.Helper()

	srv := wstest.NewServer(t, serverHandler)
	s, err := Connect(context.Background(), srv.URL+"/ws/", log.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("closing session: %v", err)
		}
	})

	return s
}

func nextEvent(t *testing.T, s *Session) Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	ev, err := s.NextEvent(ctx)
	require.NoError(t, err)
	return ev
}

func TestWebsocketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "http", in: "http://127.0.0.1:8080/ws/", want: "ws://127.0.0.1:8080/ws/"},
		{name: "https", in: "https://example.com:9000/ws/", want: "wss://example.com:9000/ws/"},
		{name: "ws", in: "ws://example.com/ws/", want: "ws://example.com/ws/"},
		{name: "wss", in: "wss://example.com/ws/", want: "wss://example.com/ws/"},
		{name: "ftp", in: "ftp://example.com/ws/", wantErr: true},
		{name: "malformed", in: "http://[::1", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := websocketURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnectErrors(t *testing.T) {
	t.Parallel()

	t.Run("scheme", func(t *testing.T) {
		t.Parallel()

		_, err := Connect(context.Background(), "ftp://127.0.0.1/ws/", log.NewNullLogger())
		var cerr *ConnectionError
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, "ftp://127.0.0.1/ws/", cerr.URL)
	})

	t.Run("refused", func(t *testing.T) {
		t.Parallel()

		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := l.Addr().String()
		require.NoError(t, l.Close())

		_, err = Connect(context.Background(), "http://"+addr+"/ws/", log.NewNullLogger())
		var cerr *ConnectionError
		require.True(t, errors.As(err, &cerr))
		assert.Contains(t, err.Error(), addr)
	})
}

func TestSessionSend(t *testing.T) {
	t.Parallel()

	frames := make(chan wstest.Frame, 16)
	s := newSessionTest(t, func(conn *websocket.Conn) {
		wstest.Record(conn, frames)
	})

	require.NoError(t, s.SendText("/quit\n"))
	require.NoError(t, s.PingText("hello\n"))
	require.NoError(t, s.SendPing())
	require.NoError(t, s.SendPong([]byte("abc")))

	want := []string{"text:/quit\n", "ping", "text:hello\n", "ping", "pong"}
	for _, w := range want {
		assert.Equal(t, w, wstest.NextFrame(t, frames, waitFor).String())
	}
}

func TestSessionReceive(t *testing.T) {
	t.Parallel()

	s := newSessionTest(t, func(conn *websocket.Conn) {
		deadline := time.Now().Add(time.Second)
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("echo: hello")))
		assert.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
		assert.NoError(t, conn.WriteControl(websocket.PingMessage, []byte("hb"), deadline))
		assert.NoError(t, conn.WriteControl(websocket.PongMessage, []byte("pp"), deadline))
		wstest.Record(conn, make(chan wstest.Frame, 16))
	})

	ev := nextEvent(t, s)
	assert.Equal(t, EventText, ev.Type)
	assert.Equal(t, "echo: hello", string(ev.Data))

	ev = nextEvent(t, s)
	assert.Equal(t, EventBinary, ev.Type)
	assert.Equal(t, []byte{0x01, 0x02}, ev.Data)

	ev = nextEvent(t, s)
	assert.Equal(t, EventPing, ev.Type)
	assert.Equal(t, "hb", string(ev.Data))

	ev = nextEvent(t, s)
	assert.Equal(t, EventPong, ev.Type)
	assert.Equal(t, "pp", string(ev.Data))
}

func TestSessionPingIsNotAnswered(t *testing.T) {
	t.Parallel()

	frames := make(chan wstest.Frame, 16)
	s := newSessionTest(t, func(conn *websocket.Conn) {
		assert.NoError(t, conn.WriteControl(websocket.PingMessage, []byte("hb"), time.Now().Add(time.Second)))
		wstest.Record(conn, frames)
	})

	ev := nextEvent(t, s)
	require.Equal(t, EventPing, ev.Type)

	// Only the explicit reply must reach the server.
	require.NoError(t, s.SendText("after"))
	assert.Equal(t, "text:after", wstest.NextFrame(t, frames, waitFor).String())

	require.NoError(t, s.SendPong(ev.Data))
	f := wstest.NextFrame(t, frames, waitFor)
	assert.Equal(t, "pong", f.String())
	assert.Equal(t, "hb", f.Data)
}

func TestSessionServerClose(t *testing.T) {
	t.Parallel()

	frames := make(chan wstest.Frame, 16)
	s := newSessionTest(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye")
		assert.NoError(t, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
		wstest.Record(conn, frames)
	})

	ev := nextEvent(t, s)
	require.Equal(t, EventClose, ev.Type)
	assert.Equal(t, websocket.CloseGoingAway, ev.Code)
	assert.Equal(t, "bye", string(ev.Data))

	// The close frame is only answered by Close.
	assert.False(t, s.Closed())
	assert.NoError(t, s.Close())
	assert.True(t, s.Closed())
	assert.Equal(t, "close", wstest.NextFrame(t, frames, waitFor).String())
	assert.NoError(t, s.Close())

	assert.Equal(t, EventClosed, nextEvent(t, s).Type)
	assert.Equal(t, EventClosed, nextEvent(t, s).Type)
}

func TestSessionSendAfterClose(t *testing.T) {
	t.Parallel()

	s := newSessionTest(t, func(conn *websocket.Conn) {
		wstest.Record(conn, make(chan wstest.Frame, 16))
	})
	require.NoError(t, s.Close())

	ops := map[string]func() error{
		"text":      func() error { return s.SendText("x") },
		"ping":      s.SendPing,
		"pong":      func() error { return s.SendPong(nil) },
		"ping+text": func() error { return s.PingText("x") },
	}
	for name, op := range ops {
		err := op()
		var terr *TransportError
		require.True(t, errors.As(err, &terr), name)
		assert.True(t, errors.Is(err, ErrClosed), name)
	}
}

func TestSessionAbruptDisconnect(t *testing.T) {
	t.Parallel()

	s := newSessionTest(t, func(conn *websocket.Conn) {
		_ = conn.UnderlyingConn().Close()
	})

	ev := nextEvent(t, s)
	require.Equal(t, EventError, ev.Type)
	var terr *TransportError
	require.True(t, errors.As(ev.Err, &terr))
	assert.Equal(t, "receive", terr.Op)

	assert.Equal(t, EventClosed, nextEvent(t, s).Type)
}

func TestSessionNextEventCancel(t *testing.T) {
	t.Parallel()

	s := newSessionTest(t, func(conn *websocket.Conn) {
		wstest.Record(conn, make(chan wstest.Frame, 16))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.NextEvent(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEventTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "text", EventText.String())
	assert.Equal(t, "closed", EventClosed.String())
	assert.Equal(t, "EventType(42)", EventType(42).String())
}
