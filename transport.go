package outbound

import (
	"net"
	"net/http"
	"time"
)

// Pool sizing defaults, tuned for a handful of upstream providers rather
// than fan-out to arbitrary hosts.
const (
	defaultMaxConnections          = 100
	defaultMaxKeepaliveConnections = 20
	defaultKeepaliveExpiry         = 90 * time.Second

	defaultConnectTimeout = 5 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second
)

// newTransport builds the pooled transport shared by every call through one
// client. Phase deadlines map onto the standard transport: Connect bounds
// the dial, Read bounds the wait for response headers, and the overall
// request deadline (applied by the http.Client) bounds body write/read and
// any wait for a pooled connection slot.
func newTransport(pool PoolConfig, timeouts TimeoutConfig) *http.Transport {
	if pool.MaxConnections <= 0 {
		pool.MaxConnections = defaultMaxConnections
	}
	if pool.MaxKeepaliveConnections <= 0 {
		pool.MaxKeepaliveConnections = defaultMaxKeepaliveConnections
	}
	if pool.KeepaliveExpiry <= 0 {
		pool.KeepaliveExpiry = defaultKeepaliveExpiry
	}
	if timeouts.Connect <= 0 {
		timeouts.Connect = defaultConnectTimeout
	}
	if timeouts.Read <= 0 {
		timeouts.Read = defaultReadTimeout
	}

	dialer := &net.Dialer{
		Timeout:   timeouts.Connect,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		DialContext:           dialer.DialContext,
		MaxConnsPerHost:       pool.MaxConnections,
		MaxIdleConns:          pool.MaxConnections,
		MaxIdleConnsPerHost:   pool.MaxKeepaliveConnections,
		IdleConnTimeout:       pool.KeepaliveExpiry,
		ResponseHeaderTimeout: timeouts.Read,
		TLSHandshakeTimeout:   timeouts.Connect,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}
