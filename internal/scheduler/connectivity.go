package scheduler

import (
	"context"
	"net"
	"net/url"
	"time"
)

// Connectivity answers whether the network precondition for a sync pass
// holds right now.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// AlwaysOnline satisfies Connectivity unconditionally. Used in tests and
// when the agent runs on a wired host.
type AlwaysOnline struct{}

// Online always reports true.
func (AlwaysOnline) Online(context.Context) bool { return true }

// DialChecker probes connectivity by opening a TCP connection to the
// configured server. The server address is read per probe so settings
// changes take effect without restarting the scheduler.
type DialChecker struct {
	// ServerURL returns the current server base URL.
	ServerURL func() string
	// Timeout bounds the probe. Defaults to 3 seconds.
	Timeout time.Duration
}

// Online reports whether the configured server is reachable. An empty or
// unparsable server URL counts as offline; the pass would refuse to run
// anyway.
func (d DialChecker) Online(ctx context.Context) bool {
	raw := d.ServerURL()
	if raw == "" {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host = net.JoinHostPort(u.Hostname(), "443")
		default:
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
