package api

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/tor"
)

func TestClient(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	srv := httptest.NewServer(f.server.Handler())
	t.Cleanup(srv.Close)
	addr := strings.TrimPrefix(srv.URL, "http://")
	c := NewClient(addr, WithAuthToken(f.server.Token()))

	var se *StatusError
	if _, err := NewClient(addr).TorStatus(t.Context()); !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("TorStatus() without token = %v, want StatusError 401", err)
	}

	st, err := c.TorStatus(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if st.State != tor.StateStopped || st.Port != 1 {
		t.Errorf("status = %+v", st)
	}

	if _, err := c.StopTor(t.Context()); err != nil {
		t.Errorf("StopTor() = %v", err)
	}

	_, err = c.StartTor(t.Context())
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway || se.Message == "" {
		t.Errorf("StartTor() = %v, want StatusError 502", err)
	}

	res, err := c.SetContainerTor(t.Context(), "Side Project", true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Container != "Side Project" || res.Mode != model.RouteDirect {
		t.Errorf("routing = %+v", res)
	}

	added, err := c.AddContainer(t.Context(), "Temp", false)
	if err != nil || added.PartitionID != "c-Temp" {
		t.Errorf("AddContainer() = %+v, %v", added, err)
	}

	list, err := c.Containers(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 5 || !list[3].AnonymityEnabled {
		t.Errorf("containers = %+v", list)
	}
}

func TestClientUnavailable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	if _, err := NewClient(addr).TorStatus(t.Context()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("TorStatus() = %v, want ErrUnavailable", err)
	}
}
