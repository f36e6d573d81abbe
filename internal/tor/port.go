package tor

import (
	"context"
	"net"
	"time"
)

// adoptCheckTimeout bounds the probe for an already running listener.
const adoptCheckTimeout = 500 * time.Millisecond

// isPortOpen reports whether addr accepts a TCP connection within timeout.
func isPortOpen(ctx context.Context, addr string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close() //nolint:errcheck // probe connection
	return true
}
