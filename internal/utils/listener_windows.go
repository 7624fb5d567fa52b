//go:build windows

package utils

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
)

func hiddenCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	return cmd
}

func findListeners(ctx context.Context, proto NetProtocol, addr string, port int, image string) ([]int, error) {
	p := "TCP"
	if proto == ProtoTCP6 {
		p = "TCPv6"
	}
	out, err := hiddenCommand(ctx, "netstat", "-ano", "-p", p).Output()
	if err != nil {
		return []int{}, err
	}
	pids := parseNetstat(string(out), addr, port)
	if image == "" || len(pids) == 0 {
		return pids, nil
	}

	out, err = hiddenCommand(ctx, "tasklist", "/FI", fmt.Sprintf("IMAGENAME eq %s", image), "/FO", "CSV", "/NH").Output()
	if err != nil {
		return []int{}, err
	}
	return filterPIDs(pids, parseTasklist(string(out), image)), nil
}
