package console

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8080
)

// Config is where the chat server listens.
type Config struct {
	Host string
	Port int
}

// DefaultConfig returns the address of a locally running server.
func DefaultConfig() Config {
	return Config{
		Host: DefaultHost,
		Port: DefaultPort,
	}
}

// Resolve applies a port given as part of Host, as in "example.com:9000".
// The port in Host takes precedence over Port.
func (c Config) Resolve() (Config, error) {
	i := strings.Index(c.Host, ":")
	if i < 0 {
		return c, nil
	}
	host, port := c.Host[:i], c.Host[i+1:]
	p, err := strconv.Atoi(port)
	if err != nil {
		return c, errors.Wrapf(err, "parsing port of host %q", c.Host)
	}
	return Config{Host: host, Port: p}, nil
}

// URL returns the websocket endpoint of the server.
func (c Config) URL() string {
	return fmt.Sprintf("http://%s:%d/ws/", c.Host, c.Port)
}
