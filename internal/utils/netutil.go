package utils

import (
	"context"
	"fmt"
	"net"
	"syscall"
)

// CheckPortListenable 检查本机端口能否被监听，SO_REUSEADDR 关闭以免误判
func CheckPortListenable(port int) bool {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(disableReuseAddr)
		},
	}
	l, err := lc.Listen(context.Background(), "tcp4", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
