package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout is the timeout of the SOCKS handshake check.
const checkProxyTimeout = 2 * time.Second

// Client talks to a Tor SOCKS5 listener.
type Client struct {
	proxyAddress string
}

// NewClient creates a client for the SOCKS listener at proxyAddress
// ("host:port"). It does not connect; call CheckConnection for that.
func NewClient(proxyAddress string) (*Client, error) {
	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}
	return &Client{proxyAddress: proxyAddress}, nil
}

func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// ProxyAddress returns the configured proxy address.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// Dialer returns a dialer whose connections go through Tor on a circuit
// reserved for isolationKey. See IsolatedDialer.
func (c *Client) Dialer(isolationKey string) (proxy.ContextDialer, error) {
	return IsolatedDialer(c.proxyAddress, isolationKey, nil)
}

// IsolatedDialer returns a SOCKS5 dialer for socksAddr. A non-empty
// isolationKey is sent as both user name and password; tor started with
// IsolateSOCKSAuth never shares a circuit between different credentials,
// so each partition gets its own exit. forward is the dialer used to reach
// the proxy itself and defaults to a plain net.Dialer.
func IsolatedDialer(socksAddr, isolationKey string, forward proxy.Dialer) (proxy.ContextDialer, error) {
	if !isValidProxyAddress(socksAddr) {
		return nil, ErrInvalidProxyAddress
	}
	var auth *proxy.Auth
	if isolationKey != "" {
		auth = &proxy.Auth{User: isolationKey, Password: isolationKey}
	}
	if forward == nil {
		forward = &net.Dialer{Timeout: 30 * time.Second}
	}
	d, err := proxy.SOCKS5("tcp", socksAddr, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("SOCKS5 dialer does not support contexts")
	}
	return cd, nil
}

// SOCKS5 protocol constants.
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// socks5TestOnion is a syntactically valid but unassigned address. Only
	// the proxy's answer to CONNECT matters, not whether it succeeds.
	socks5TestOnion = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.onion"
)

// CheckConnection performs a SOCKS5 handshake and a CONNECT to an onion
// address. A plain open port is not enough to pass: the listener must
// negotiate SOCKS5 without authentication and answer the CONNECT.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		return readFailure(err)
	}
	if authResp[0] != socks5Version || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	connectReq := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeDomID, byte(len(socks5TestOnion))}
	connectReq = append(connectReq, socks5TestOnion...)
	connectReq = append(connectReq, 0x00, 80)
	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	// Any reply code counts; tor answers 0x04 or 0x01 for this address.
	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		return readFailure(err)
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

func readFailure(err error) ProxyStatus {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}
