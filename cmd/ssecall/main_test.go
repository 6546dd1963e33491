package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func eventServer(t *testing.T, events ...string) (*httptest.Server, chan *http.Request) {
	t.Helper()
	seen := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		seen <- r
		w.Header().Set("Connection", "close")
		for _, event := range events {
			fmt.Fprintf(w, "data:%s\r\n", event)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestRunPrintsSuccessPayload(t *testing.T) {
	srv, seen := eventServer(t, `{"code":1,"data":"working"}`, `{"code":3,"data":"hello"}`)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-url", srv.URL, "-data", `{"q":1}`, "-H", "X-Token: abc", "-request-id"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if got := stdout.String(); got != "hello\n" {
		t.Fatalf("unexpected stdout: %q", got)
	}

	r := <-seen
	if r.Header.Get("X-Token") != "abc" {
		t.Fatalf("X-Token not sent: %v", r.Header)
	}
	if len(r.Header.Get("X-Request-Id")) != 36 {
		t.Fatalf("X-Request-Id not a uuid: %q", r.Header.Get("X-Request-Id"))
	}
}

func TestRunServerFailureExitsOne(t *testing.T) {
	srv, _ := eventServer(t, `{"code":0,"data":"denied"}`)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-url", srv.URL}, &stdout, &stderr); code != exitFailure {
		t.Fatalf("expected exit %d, got %d", exitFailure, code)
	}
	if !strings.Contains(stderr.String(), "denied") {
		t.Fatalf("stderr missing failure payload: %q", stderr.String())
	}
}

func TestRunConfigFileWithFlagOverride(t *testing.T) {
	srv, seen := eventServer(t, `{"code":3,"data":"from config"}`)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "client.yaml")
	cfg := "url: http://127.0.0.1:1/unused\nheaders:\n  X-From: file\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	bodyPath := filepath.Join(dir, "body.json")
	if err := os.WriteFile(bodyPath, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatalf("write body: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfgPath, "-url", srv.URL, "-data-file", bodyPath}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if r := <-seen; r.Header.Get("X-From") != "file" {
		t.Fatalf("config header not sent: %v", r.Header)
	}
}

func TestRunUsageErrors(t *testing.T) {
	cases := map[string][]string{
		"no url":         {},
		"malformed url":  {"-url", "ftp://example.com"},
		"bad header":     {"-url", "http://127.0.0.1:1", "-H", "no-colon"},
		"bad backend":    {"-url", "http://127.0.0.1:1", "-backend", "kqueue"},
		"both bodies":    {"-url", "http://127.0.0.1:1", "-data", "x", "-data-file", "y"},
		"stray argument": {"-url", "http://127.0.0.1:1", "extra"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), args, &stdout, &stderr); code != exitUsage {
				t.Fatalf("expected exit %d, got %d (stderr %q)", exitUsage, code, stderr.String())
			}
		})
	}
}

func TestRunConnectFailureExitsOne(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-url", url, "-timeout", "0.2"}, &stdout, &stderr); code != exitFailure {
		t.Fatalf("expected exit %d, got %d", exitFailure, code)
	}
}

func TestRunCancelAbortsWait(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data:{\"code\":1,\"data\":\"waiting\"}\r\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan int, 1)
	go func() {
		var stdout, stderr bytes.Buffer
		done <- run(ctx, []string{"-url", srv.URL}, &stdout, &stderr)
	}()

	select {
	case code := <-done:
		if code != exitFailure {
			t.Fatalf("expected exit %d, got %d", exitFailure, code)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
