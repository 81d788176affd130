package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
)

// PortSearchRange 是端口被占用时向后尝试的数量。
const PortSearchRange = 100

// Listen 绑定 host:port；端口被占用时依次尝试后续端口，最多 PortSearchRange 个。
func Listen(host string, port int) (net.Listener, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid listen port: %d", port)
	}

	var lastErr error
	for candidate := port; candidate <= port+PortSearchRange && candidate <= 65535; candidate++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(candidate)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no free port in %d-%d: %w", port, port+PortSearchRange, lastErr)
}

// ListenPort 返回监听器实际使用的端口。
func ListenPort(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
