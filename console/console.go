// Package console relays lines typed on standard input to a websocket
// server and prints what the server sends back.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/grafana/wsconsole/log"
	"github.com/grafana/wsconsole/wsclient"
)

// Lines starting with commandPrefix are commands for the server and are sent
// without a ping.
const commandPrefix = "/"

// Session is the connection the console talks through.
type Session interface {
	SendText(line string) error
	PingText(line string) error
	SendPong(appData []byte) error
	NextEvent(ctx context.Context) (wsclient.Event, error)
	Close() error
}

// Console reads lines from in and prints server messages to out.
type Console struct {
	in       io.Reader
	out      io.Writer
	logger   *log.Logger
	errColor *color.Color
}

// New returns a console. Receive errors are printed in red when out is a
// terminal.
func New(in io.Reader, out io.Writer, logger *log.Logger) *Console {
	errColor := color.New(color.FgRed)
	if f, ok := out.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		errColor.DisableColor()
	}
	return &Console{
		in:       in,
		out:      out,
		logger:   logger,
		errColor: errColor,
	}
}

// Run relays input to sess until the input ends or ctx is done, while
// printing inbound messages. It closes sess before returning.
//
// Run returns nil at the end of input and ctx.Err() if ctx was done first.
func (c *Console) Run(ctx context.Context, sess Session) error {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dispatched := make(chan error, 1)
	go func() {
		dispatched <- c.dispatch(dctx, sess)
	}()

	err := c.relay(ctx, sess)

	cancel()
	if derr := <-dispatched; derr != nil && !errors.Is(derr, context.Canceled) {
		c.logger.Errorf("console:Run", "dispatching server messages: %v", derr)
	}
	if cerr := sess.Close(); cerr != nil {
		c.logger.Debugf("console:Run", "closing session: %v", cerr)
	}

	return err
}

// dispatch handles inbound events until the server closes the connection,
// the connection fails, or ctx is done.
func (c *Console) dispatch(ctx context.Context, sess Session) error {
	for {
		ev, err := sess.NextEvent(ctx)
		if err != nil {
			return err
		}

		switch ev.Type {
		case wsclient.EventText:
			fmt.Fprintf(c.out, "Received Text:  %s\n", strings.TrimRightFunc(string(ev.Data), unicode.IsSpace))
		case wsclient.EventBinary:
			fmt.Fprintf(c.out, "Received Binary:  %s\n", ev.Data)
		case wsclient.EventPing:
			if err := sess.SendPong(ev.Data); err != nil {
				return errors.Wrap(err, "answering ping")
			}
		case wsclient.EventPong:
		case wsclient.EventClose:
			c.logger.Debugf("console:dispatch", "server closed the connection with code %d", ev.Code)
			if err := sess.Close(); err != nil {
				c.logger.Debugf("console:dispatch", "closing session: %v", err)
			}
			return nil
		case wsclient.EventError:
			c.errColor.Fprintf(c.out, "Received Error during receive %v\n", receiveCause(ev.Err))
			return nil
		case wsclient.EventClosed:
			return nil
		default:
			c.logger.Warnf("console:dispatch", "ignoring unknown event %s", ev.Type)
		}
	}
}

// receiveCause strips the operation name the session puts in front of read
// errors.
func receiveCause(err error) error {
	var terr *wsclient.TransportError
	if errors.As(err, &terr) {
		return terr.Err
	}
	return err
}

// relay sends every input line to sess. It returns nil once the input ends.
func (c *Console) relay(ctx context.Context, sess Session) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go readLines(ctx, c.in, lines, readErr)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return errors.Wrap(err, "reading input")
				default:
					return nil
				}
			}
			c.send(sess, line)
		}
	}
}

// send passes commands through untouched and precedes anything else with a
// ping. A failed send is logged and the next line is still read.
func (c *Console) send(sess Session, line string) {
	var err error
	if strings.HasPrefix(line, commandPrefix) {
		err = sess.SendText(line)
	} else {
		err = sess.PingText(line)
	}
	if err != nil {
		c.logger.Errorf("console:send", "sending %q: %v", line, err)
	}
}

// readLines sends each line of r, newline included, to lines and closes it
// at the end of r. Read errors other than io.EOF go to errc first.
func readLines(ctx context.Context, r io.Reader, lines chan<- string, errc chan<- error) {
	defer close(lines)

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				errc <- err
			}
			return
		}
	}
}
