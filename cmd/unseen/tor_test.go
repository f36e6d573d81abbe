package main

import (
	"net"
	"strings"
	"testing"
)

func TestTorCheck(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	t.Run("nothing listening", func(t *testing.T) {
		t.Parallel()
		if _, err := e.run(t, "tor", "check"); err == nil {
			t.Error("expected error without a listener")
		}
	})

	t.Run("not a SOCKS proxy", func(t *testing.T) {
		t.Parallel()
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = ln.Close() })
		go func() {
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
				_ = conn.Close()
			}
		}()

		out, err := e.run(t, "tor", "check", ln.Addr().String())
		if err == nil {
			t.Error("expected error for a non-SOCKS listener")
		}
		if !strings.HasPrefix(out, ln.Addr().String()+": ") {
			t.Errorf("unexpected output %q", out)
		}
	})
}

func TestTorOffline(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	out, err := e.run(t, "tor", "status")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"no instance is running on " + e.apiAddr, "backend:  spawn", "listener: "} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	if _, err := e.run(t, "tor", "stop"); err == nil || !strings.Contains(err.Error(), "no instance") {
		t.Errorf("expected no instance error, got %v", err)
	}
}
