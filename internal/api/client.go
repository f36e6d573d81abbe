package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/tor"
)

// ErrUnavailable is returned by Client when no server answers.
var ErrUnavailable = errors.New("control API is not running")

// defaultClientTimeout bounds requests that do not wait for Tor.
const defaultClientTimeout = 10 * time.Second

// Client talks to a running control API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAuthToken sets the bearer token sent with every request.
func WithAuthToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// NewClient returns a client for the API listening on addr ("host:port").
func NewClient(addr string, opts ...ClientOption) *Client {
	c := &Client{
		base: "http://" + addr,
		// Requests go to loopback; environment proxies must not apply.
		http: &http.Client{Transport: &http.Transport{Proxy: nil}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("control API returned %d: %s", e.Code, e.Message)
}

// TorStatus returns the supervisor status of the running instance.
func (c *Client) TorStatus(ctx context.Context) (tor.Status, error) {
	var st tor.Status
	err := c.do(ctx, http.MethodGet, "/tor/status", nil, &st)
	return st, err
}

// StartTor starts Tor in the running instance and waits until it is ready.
func (c *Client) StartTor(ctx context.Context) (tor.Status, error) {
	var st tor.Status
	err := c.do(ctx, http.MethodPost, "/tor/start", nil, &st)
	return st, err
}

// StopTor stops Tor in the running instance.
func (c *Client) StopTor(ctx context.Context) (tor.Status, error) {
	var st tor.Status
	err := c.do(ctx, http.MethodPost, "/tor/stop", nil, &st)
	return st, err
}

// SetContainerTor toggles Tor for a container of the running instance.
func (c *Client) SetContainerTor(ctx context.Context, name string, enabled bool) (model.RoutingResult, error) {
	var res model.RoutingResult
	err := c.do(ctx, http.MethodPut, "/containers/"+url.PathEscape(name)+"/tor", torRequest{Enabled: &enabled}, &res)
	return res, err
}

// AddContainer creates a container in the running instance.
func (c *Client) AddContainer(ctx context.Context, name string, persistent bool) (model.Container, error) {
	var out model.Container
	err := c.do(ctx, http.MethodPost, "/containers", addContainerRequest{Name: name, Persistent: persistent}, &out)
	return out, err
}

// Containers lists the containers of the running instance.
func (c *Client) Containers(ctx context.Context) ([]model.Container, error) {
	var out []model.Container
	err := c.do(ctx, http.MethodGet, "/containers", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	if _, ok := ctx.Deadline(); !ok && method == http.MethodGet {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultClientTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s: %w", ErrUnavailable, c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e) //nolint:errcheck // message is best effort
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
