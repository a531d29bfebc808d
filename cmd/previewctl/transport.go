package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
)

// newHTTPClient builds the client shared by the prober, resolver and status
// poller. Lookups go through resolver so a flapping link does not turn into a
// burst of DNS timeouts on every retry.
func newHTTPClient(resolver *dnscache.Resolver) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	trans := http.DefaultTransport.(*http.Transport).Clone()
	trans.DialContext = func(ctx context.Context, network string, addr string) (conn net.Conn, err error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		ips, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}

		for _, ip := range ips {
			conn, err = dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				break
			}
		}
		return conn, err
	}
	return &http.Client{Transport: trans}
}
