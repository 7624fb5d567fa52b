//go:build !darwin && !windows

package utils

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v4/net"
)

func findListeners(ctx context.Context, proto NetProtocol, addr string, port int, image string) ([]int, error) {
	conns, err := net.ConnectionsWithContext(ctx, string(proto))
	if err != nil {
		return []int{}, err
	}
	pids := []int{}
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.IP != addr || int(c.Laddr.Port) != port || c.Pid <= 0 {
			continue
		}
		if image != "" {
			name, err := GetProcessName(int(c.Pid))
			if err != nil || !strings.EqualFold(name, image) {
				continue
			}
		}
		pids = appendUnique(pids, int(c.Pid))
	}
	return pids, nil
}
