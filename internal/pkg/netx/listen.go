// Package netx binds the relay's listening socket.
package netx

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"chatrelay/internal/pkg/logx"
)

// Listen binds a TCP listener on host:port. When the port is already in use it tries the next
// port, up to retries additional attempts, and returns the listener with the port actually bound.
// Any error other than "address in use" is returned immediately.
func Listen(host string, port, retries int) (net.Listener, int, error) {
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		candidate := port + attempt
		if candidate > 65535 {
			break
		}

		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(candidate)))
		if err == nil {
			if attempt > 0 {
				logx.Warn("Configured port in use, bound fallback port",
					"configured_port", port,
					"port", candidate,
				)
			}
			return ln, candidate, nil
		}

		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, 0, fmt.Errorf("listen on port %d: %w", candidate, err)
		}

		logx.Warn("Port already in use", "port", candidate, "attempt", attempt+1)
		lastErr = err
	}

	return nil, 0, fmt.Errorf("no free port in %d-%d: %w", port, port+retries, lastErr)
}
