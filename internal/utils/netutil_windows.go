//go:build windows

package utils

import "syscall"

func disableReuseAddr(fd uintptr) {
	syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 0)
}
