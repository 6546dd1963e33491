// Command ssecall posts one request to an event-stream endpoint and prints
// the payload of the first success envelope.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/wheakerd/sse-client/client"
	"github.com/wheakerd/sse-client/config"
	"github.com/wheakerd/sse-client/errors"
	"golang.org/x/sync/errgroup"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// headerFlags collects repeated -H "Name: Value" flags in order.
type headerFlags []string

func (h *headerFlags) String() string {
	return strings.Join(*h, ", ")
}

func (h *headerFlags) Set(value string) error {
	if _, _, err := splitHeader(value); err != nil {
		return err
	}
	*h = append(*h, value)
	return nil
}

func splitHeader(line string) (string, string, error) {
	name, value, ok := strings.Cut(line, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("header %q is not in Name: Value form", line)
	}
	return name, strings.TrimSpace(value), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one call. Cancelling ctx closes the connection and aborts the
// wait for a verdict.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ssecall", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configFile  = fs.String("config", "", "config file (.json, .yaml, .yml or .toml)")
		url         = fs.String("url", "", "endpoint URL")
		timeout     = fs.Float64("timeout", config.DefaultTimeout, "connect timeout in seconds")
		data        = fs.String("data", "", "request body")
		dataFile    = fs.String("data-file", "", "read the request body from a file")
		backend     = fs.String("backend", "", "plaintext transport: std, iouring or iouring-v2")
		fingerprint = fs.String("fingerprint", "", "uTLS ClientHello to present on https")
		insecure    = fs.Bool("insecure", false, "skip TLS certificate verification")
		requestID   = fs.Bool("request-id", false, "send a random X-Request-Id header")
		verbose     = fs.Bool("v", false, "log to stderr")
		headers     headerFlags
	)
	fs.Var(&headers, "H", "extra header, repeatable (\"Name: Value\")")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return exitUsage
	}

	cfg := &config.Config{}
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
		cfg = loaded
	}

	// Flags given on the command line override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.URL = *url
		case "timeout":
			cfg.Timeout = timeout
		case "backend":
			cfg.Backend = *backend
		case "fingerprint":
			cfg.Fingerprint = *fingerprint
		case "insecure":
			cfg.InsecureSkipVerify = *insecure
		}
	})
	if cfg.URL == "" {
		fmt.Fprintln(stderr, "missing -url")
		return exitUsage
	}

	body := *data
	if *dataFile != "" {
		if *data != "" {
			fmt.Fprintln(stderr, "-data and -data-file are mutually exclusive")
			return exitUsage
		}
		raw, err := os.ReadFile(*dataFile)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
		body = string(raw)
	}

	opts, err := cfg.Options()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	opts = append(opts, client.WithLogger(logger))

	c, err := client.New(cfg.URL, opts...)
	if err != nil {
		fmt.Fprintln(stderr, err)
		if errors.IsMalformedUri(err) {
			return exitUsage
		}
		return exitFailure
	}
	defer c.Close()

	if !c.IsConnected() {
		fmt.Fprintf(stderr, "connect to %s failed: %v\n", c.Endpoint().HostHeader(), c.LastError())
		return exitFailure
	}

	cfg.ApplyHeaders(c)
	for _, line := range headers {
		name, value, _ := splitHeader(line)
		c.SetHeader(name, value)
	}
	if *requestID {
		id := uuid.NewString()
		c.SetHeader("X-Request-Id", id)
		logger.Debug("request id", slog.String("id", id))
	}

	start := time.Now()
	if _, err := c.Send(body); err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	payload, err := await(ctx, c)
	logger.Debug("stream finished", slog.Duration("elapsed", time.Since(start)))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	fmt.Fprintln(stdout, payload)
	return exitOK
}

func await(ctx context.Context, c *client.Client) (string, error) {
	var payload string
	finished := make(chan struct{})

	var errg errgroup.Group
	errg.Go(func() error {
		defer close(finished)
		var err error
		payload, err = c.Await()
		return err
	})
	errg.Go(func() error {
		select {
		case <-ctx.Done():
			c.Close()
			return ctx.Err()
		case <-finished:
			return nil
		}
	})

	if err := errg.Wait(); err != nil {
		return "", err
	}
	return payload, nil
}
