//go:build windows

package api

import (
	"net"

	"github.com/Microsoft/go-winio"
)

// listenPipe открывает именованный канал для gRPC управления
// (адрес вида \\.\pipe\voiceid-grpc)
func listenPipe(addr string) (net.Listener, error) {
	return winio.ListenPipe(addr, nil)
}
