// Command wsconsole is a console client for the websocket chat server.
//
// Every line typed is sent to the server: lines starting with "/" as they
// are, anything else preceded by a ping. Messages from the server are
// printed as they arrive. Exit with Ctrl+D.
//
// Besides -host and -port, -debug logs every frame to stderr and
// -log-filter limits logging to categories matching a regexp, such as
// "^wsclient".
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grafana/wsconsole/console"
	"github.com/grafana/wsconsole/log"
	"github.com/grafana/wsconsole/wsclient"
)

const (
	exitFailure   = 1
	exitInterrupt = 130
)

func main() {
	cfg := console.DefaultConfig()
	flag.StringVar(&cfg.Host, "host", cfg.Host, "Host name")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Port number")
	debug := flag.Bool("debug", false, "Log every frame sent and received to stderr")
	logFilter := flag.String("log-filter", "", "Only log categories matching this regexp")
	flag.Parse()

	logger, err := newLogger(*debug, *logFilter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}

	os.Exit(run(cfg, logger))
}

func newLogger(debug bool, categoryFilter string) (*log.Logger, error) {
	logger := log.NewDefault()
	if debug {
		if err := logger.SetLevel("debug"); err != nil {
			return nil, err
		}
	}
	if categoryFilter != "" {
		if err := logger.SetCategoryFilter(categoryFilter); err != nil {
			return nil, fmt.Errorf("invalid -log-filter %q: %w", categoryFilter, err)
		}
	}
	return logger, nil
}

func run(cfg console.Config, logger *log.Logger) int {
	cfg, err := cfg.Resolve()
	if err != nil {
		logger.Errorf("wsconsole", "invalid address: %v", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := cfg.URL()
	logger.Debugf("wsconsole", "connecting to %q", url)
	sess, err := wsclient.Connect(ctx, url, logger)
	if err != nil {
		logger.Errorf("wsconsole", "%v", err)
		return exitFailure
	}

	err = console.New(os.Stdin, os.Stdout, logger).Run(ctx, sess)
	switch {
	case errors.Is(err, context.Canceled):
		return exitInterrupt
	case err != nil:
		logger.Errorf("wsconsole", "%v", err)
		return exitFailure
	}
	return 0
}
