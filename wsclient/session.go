// Package wsclient holds a single websocket connection whose control frames
// are handed to the caller instead of being answered by the library.
package wsclient

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oxtoacart/bpool"
	"github.com/pkg/errors"

	"github.com/grafana/wsconsole/log"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	closeWait        = time.Second

	readBufferPoolSize = 4
)

// Session owns one open websocket connection.
//
// All reads happen on a goroutine owned by the session, which turns every
// frame into an Event. Nothing is answered automatically: the caller replies
// to pings with SendPong and to close frames with Close.
type Session struct {
	url    string
	conn   *websocket.Conn
	logger *log.Logger
	bufs   *bpool.BufferPool

	writeMu sync.Mutex

	events    chan Event
	done      chan struct{}
	closed    int32 // atomic, 1 once Close was called
	closeOnce sync.Once
}

// Connect performs the websocket handshake with the server at rawURL.
// http and https URLs are dialed as ws and wss.
func Connect(ctx context.Context, rawURL string, logger *log.Logger) (*Session, error) {
	wsURL, err := websocketURL(rawURL)
	if err != nil {
		return nil, &ConnectionError{URL: rawURL, Err: err}
	}

	wd := &websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := wd.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, &ConnectionError{URL: rawURL, Err: errors.Wrap(err, "dialing")}
	}
	logger.Debugf("wsclient:Connect", "connected to %q", wsURL)

	return newSession(rawURL, conn, logger), nil
}

func newSession(rawURL string, conn *websocket.Conn, logger *log.Logger) *Session {
	s := &Session{
		url:    rawURL,
		conn:   conn,
		logger: logger,
		bufs:   bpool.NewBufferPool(readBufferPoolSize),
		events: make(chan Event),
		done:   make(chan struct{}),
	}

	// The default handlers reply to pings and close frames on their own.
	conn.SetPingHandler(func(appData string) error {
		s.push(Event{Type: EventPing, Data: []byte(appData)})
		return nil
	})
	conn.SetPongHandler(func(appData string) error {
		s.push(Event{Type: EventPong, Data: []byte(appData)})
		return nil
	})
	conn.SetCloseHandler(func(code int, text string) error {
		s.push(Event{Type: EventClose, Code: code, Data: []byte(text)})
		return nil
	})

	go s.readLoop()

	return s
}

func websocketURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "parsing websocket server URL")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// NextEvent blocks until the next inbound event or until ctx is done, in
// which case it returns ctx.Err(). Once the inbound stream has ended every
// call returns an EventClosed.
func (s *Session) NextEvent(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return Event{Type: EventClosed}, nil
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// SendText sends line as one text frame, exactly as given.
func (s *Session) SendText(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.writeText(line)
}

// SendPing sends a ping frame with no payload.
func (s *Session) SendPing() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.writeControl("send ping", websocket.PingMessage, nil)
}

// SendPong answers a ping, echoing its application data.
func (s *Session) SendPong(appData []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.writeControl("send pong", websocket.PongMessage, appData)
}

// PingText sends a ping immediately followed by line as a text frame. No
// other frame is written between the two.
func (s *Session) PingText(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.writeControl("send ping", websocket.PingMessage, nil); err != nil {
		return err
	}
	return s.writeText(line)
}

func (s *Session) writeText(line string) error {
	const op = "send text"
	if s.isClosed() {
		return &TransportError{Op: op, Err: ErrClosed}
	}
	s.logger.Debugf("wsclient:send", "-> text %q", line)
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return &TransportError{Op: op, Err: errors.Wrap(err, "writing text frame")}
	}
	return nil
}

func (s *Session) writeControl(op string, messageType int, data []byte) error {
	if s.isClosed() {
		return &TransportError{Op: op, Err: ErrClosed}
	}
	s.logger.Debugf("wsclient:send", "-> %s %q", op, data)
	if err := s.conn.WriteControl(messageType, data, time.Now().Add(writeWait)); err != nil {
		return &TransportError{Op: op, Err: errors.Wrap(err, "writing control frame")}
	}
	return nil
}

// Close sends a normal closure frame and closes the connection. Only the
// first call does anything; later calls return nil.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		atomic.StoreInt32(&s.closed, 1)
		s.logger.Debugf("wsclient:Close", "closing connection to %q", s.url)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		werr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) && !errors.Is(werr, net.ErrClosed) {
			err = &TransportError{Op: "close", Err: errors.Wrap(werr, "sending close frame")}
		}
		if cerr := s.conn.Close(); cerr != nil && err == nil && !errors.Is(cerr, net.ErrClosed) {
			err = &TransportError{Op: "close", Err: errors.Wrap(cerr, "closing connection")}
		}
		close(s.done)
	})
	return err
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool { return s.isClosed() }

func (s *Session) isClosed() bool { return atomic.LoadInt32(&s.closed) == 1 }

func (s *Session) readLoop() {
	defer close(s.events)

	for {
		typ, r, err := s.conn.NextReader()
		if err != nil {
			s.push(s.readFailure(err))
			return
		}
		data, err := s.readPayload(r)
		if err != nil {
			s.push(s.readFailure(err))
			return
		}

		ev := Event{Data: data}
		switch typ {
		case websocket.TextMessage:
			ev.Type = EventText
		case websocket.BinaryMessage:
			ev.Type = EventBinary
		default:
			continue
		}
		s.logger.Debugf("wsclient:read", "<- %s %d bytes", ev.Type, len(data))
		if !s.push(ev) {
			return
		}
	}
}

func (s *Session) readPayload(r io.Reader) ([]byte, error) {
	buf := s.bufs.Get()
	defer s.bufs.Put(buf)

	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

// readFailure turns the error that ended the read loop into the last event.
func (s *Session) readFailure(err error) Event {
	var ce *websocket.CloseError
	switch {
	case s.isClosed(), errors.Is(err, net.ErrClosed):
		return Event{Type: EventClosed}
	case errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure:
		return Event{Type: EventClosed}
	}
	s.logger.Debugf("wsclient:read", "read failed: %v", err)
	return Event{Type: EventError, Err: &TransportError{Op: "receive", Err: err}}
}

// push hands ev to NextEvent. It gives up once the session is closed.
func (s *Session) push(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}
