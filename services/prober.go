package services

import (
	"context"
	"time"

	"tunnel-keeper/internal/logger"
	"tunnel-keeper/internal/utils"
)

// LoopbackAddr 所有隧道端口都只监听本地回环地址
const LoopbackAddr = "127.0.0.1"

// Prober looks up port owners and process liveness
type Prober interface {
	FindListener(ctx context.Context, proto utils.NetProtocol, addr string, port int, image string) []int
	IsAlive(pid int) bool
	Kill(pid int) error
}

/**
 * OSProber queries the operating system for listeners and processes
 * @description
 * - A failing probe command is reported as "not found", logged and counted
 * - Each lookup is bounded by Timeout so a hung lsof/netstat cannot stall a tunnel
 */
type OSProber struct {
	Timeout time.Duration
}

func NewOSProber() *OSProber {
	return &OSProber{Timeout: 10 * time.Second}
}

func (p *OSProber) FindListener(ctx context.Context, proto utils.NetProtocol, addr string, port int, image string) []int {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	pids, err := utils.FindListeners(ctx, proto, addr, port, image)
	if err != nil {
		logger.Warnf("Listener probe for %s:%d (%s) failed, treated as not found: %v", addr, port, image, err)
		probeErrors.WithLabelValues("listener").Inc()
		return []int{}
	}
	return pids
}

func (p *OSProber) IsAlive(pid int) bool {
	return utils.IsProcessRunning(pid)
}

func (p *OSProber) Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := utils.KillProcessByPID(pid); err != nil {
		probeErrors.WithLabelValues("kill").Inc()
		return err
	}
	return nil
}
