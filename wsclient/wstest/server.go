// Package wstest provides an in-process websocket server for tests.
package wstest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is a frame the server received from the client.
type Frame struct {
	Type int
	Data string
}

func (f Frame) String() string {
	switch f.Type {
	case websocket.PingMessage:
		return "ping"
	case websocket.PongMessage:
		return "pong"
	case websocket.CloseMessage:
		return "close"
	case websocket.BinaryMessage:
		return "binary:" + f.Data
	}
	return "text:" + f.Data
}

// Server is an httptest server that upgrades every request to a websocket
// and hands the connection to a handler.
type Server struct {
	*httptest.Server
}

// NewServer starts a server running handler for each connection. The
// connection is closed once handler returns and the server once t is done.
func NewServer(t *testing.T, handler func(conn *websocket.Conn)) *Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var upgrader websocket.Upgrader
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrading websocket connection: %v", err)
			return
		}
		defer func() {
			if err := conn.Close(); err != nil {
				t.Logf("closing websocket connection: %v", err)
			}
		}()
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	return &Server{Server: srv}
}

// HostPort returns the host and port the server listens on.
func (s *Server) HostPort() string {
	return strings.TrimPrefix(s.URL, "http://")
}

// Record reads from conn until it fails, sending every frame it sees,
// control frames included, to frames. Pings are not answered.
func Record(conn *websocket.Conn, frames chan<- Frame) {
	conn.SetPingHandler(func(appData string) error {
		frames <- Frame{Type: websocket.PingMessage, Data: appData}
		return nil
	})
	conn.SetPongHandler(func(appData string) error {
		frames <- Frame{Type: websocket.PongMessage, Data: appData}
		return nil
	})
	conn.SetCloseHandler(func(code int, text string) error {
		frames <- Frame{Type: websocket.CloseMessage, Data: text}
		return nil
	})
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames <- Frame{Type: typ, Data: string(data)}
	}
}

// Echo answers every text frame with "echo: " and the trimmed text, and
// answers pings with pongs.
func Echo(conn *websocket.Conn) {
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		reply := "echo: " + strings.TrimSpace(string(data))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
}

// NextFrame waits up to timeout for the next recorded frame.
func NextFrame(t *testing.T, frames <-chan Frame, timeout time.Duration) Frame {
	t.Helper()

	select {
	case f := <-frames:
		return f
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for a frame from the client")
	}
	return Frame{}
}
