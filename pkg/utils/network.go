package utils

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Loopback is the IPv4 loopback host used for local test servers.
const Loopback = "127.0.0.1"

// NewListener opens a TCP listener on addr. A port of 0 asks the kernel for
// a free port; read it back with PortOf(l.Addr().String()).
func NewListener(addr string) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return listener, nil
}

func JoinHostPort(host string, port int) string {
	portStr := strconv.Itoa(port)
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host + ":" + portStr
	}
	return net.JoinHostPort(host, portStr)
}

// PortOf returns the numeric port of a host:port address.
func PortOf(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

// ValidateEndpoint checks that addr is a host:port pair with a usable port.
func ValidateEndpoint(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", addr)
	}
	port, err := PortOf(addr)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", addr, err)
	}
	if port == 0 {
		return fmt.Errorf("invalid endpoint %q: port 0", addr)
	}
	return nil
}
