package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// IsProcessRunning 检查进程是否正在运行
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExistsWithContext(context.Background(), int32(pid))
	return err == nil && ok
}

// GetProcessName 根据PID获取进程名
func GetProcessName(pid int) (string, error) {
	p, err := process.NewProcessWithContext(context.Background(), int32(pid))
	if err != nil {
		return "", fmt.Errorf("failed to find process with PID %d: %w", pid, err)
	}
	name, err := p.NameWithContext(context.Background())
	if err != nil {
		return "", fmt.Errorf("failed to get process name for PID %d: %w", pid, err)
	}
	return name, nil
}

/**
 * Kill process gracefully, terminate first and kill if it lingers
 * @param {int} pid - Process ID to kill
 * @returns {error} Returns error if the process exists but cannot be stopped
 * @description
 * - A process that is already gone is not an error
 * - Waits up to one second between terminate and kill
 */
func KillProcessByPID(pid int) error {
	if pid <= 0 {
		return nil
	}
	ctx := context.Background()
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil
		}
		return fmt.Errorf("failed to find process with PID %d: %w", pid, err)
	}

	if err := p.TerminateWithContext(ctx); err == nil {
		// 等待进程退出
		for i := 0; i < 10; i++ {
			if !IsProcessRunning(pid) {
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
	if !IsProcessRunning(pid) {
		return nil
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("failed to kill process with PID %d: %w", pid, err)
	}
	return nil
}
