package stratum

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// DialTCP is the production Dialer: it resolves and connects over TCP,
// classifying any failure into the ConnectError taxonomy the supervisor
// uses to decide whether a reconnect is a hard failure.
func DialTCP(timeout time.Duration) Dialer {
	return func(cfg PoolConfig) (Transport, ConnectError, error) {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return nil, classifyDialError(err), err
		}
		return conn, 0, nil
	}
}

func classifyDialError(err error) ConnectError {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ConnectFailedResolve
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) || errors.Is(opErr.Err, syscall.ETIMEDOUT) {
			return ConnectFailedConnect
		}
		if errors.Is(opErr.Err, syscall.ENETUNREACH) || errors.Is(opErr.Err, syscall.EHOSTUNREACH) {
			return ConnectNoRoutes
		}
		if opErr.Op == "dial" {
			return ConnectBadSocket
		}
	}
	return ConnectFailedConnect
}
