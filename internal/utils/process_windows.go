//go:build windows

package utils

import (
	"os/exec"
	"syscall"
)

// DETACHED_PROCESS 子进程不继承控制台
const DETACHED_PROCESS = 0x00000008

// SetNewPG 设置进程属性，使子进程在父进程退出后继续运行
// Windows系统实现
func SetNewPG(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | DETACHED_PROCESS,
		HideWindow:    true,
	}
}
