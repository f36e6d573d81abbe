package main

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// env is an isolated data directory, config file and upstream web server.
type env struct {
	dataDir      string
	downloadsDir string
	configPath   string
	apiAddr      string
	torPort      int
	upstream     *httptest.Server
}

// freeAddr returns a loopback address nothing listens on.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

func newEnv(t *testing.T) *env {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><head><title>page %s</title></head><body>ok</body></html>", r.URL.Path)
	})
	mux.HandleFunc("/ip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"192.0.2.44"}`))
	})
	mux.HandleFunc("/tor", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Sorry. You are not using Tor."))
	})
	mux.HandleFunc("/file.bin", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="file.bin"`)
		_, _ = w.Write(bytes.Repeat([]byte{1}, 1024))
	})
	upstream := httptest.NewServer(mux)
	t.Cleanup(upstream.Close)

	_, torPortStr, err := net.SplitHostPort(freeAddr(t))
	if err != nil {
		t.Fatal(err)
	}
	var torPort int
	if _, err := fmt.Sscan(torPortStr, &torPort); err != nil {
		t.Fatal(err)
	}

	e := &env{
		dataDir:      t.TempDir(),
		downloadsDir: t.TempDir(),
		apiAddr:      freeAddr(t),
		torPort:      torPort,
		upstream:     upstream,
	}
	e.configPath = filepath.Join(t.TempDir(), "unseen.yaml")
	content := fmt.Sprintf(`downloadsDir: %s
tor:
  port: %d
  binary: %s
probe:
  ipURL: %s/ip
  torURL: %s/tor
browser:
  startURL: %s/start
api:
  listen: %s
`, e.downloadsDir, e.torPort, filepath.Join(t.TempDir(), "no-tor"), upstream.URL, upstream.URL, upstream.URL, e.apiAddr)
	if err := os.WriteFile(e.configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return e
}

// run executes the CLI with the environment's config and data directory.
func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append([]string{"--config", e.configPath, "--data-dir", e.dataDir}, args...)...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}
