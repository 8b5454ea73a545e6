//go:build !windows

package api

import (
	"fmt"
	"net"
)

// listenPipe заглушка: на unix-платформах канал управления
// использует unix сокет или tcp, см. listenGRPC.
func listenPipe(addr string) (net.Listener, error) {
	return nil, fmt.Errorf("npipe endpoint %s requires Windows; use a unix socket instead", addr)
}
