package services

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tunnel-keeper/internal/config"
	"tunnel-keeper/internal/env"
	"tunnel-keeper/internal/logger"
	"tunnel-keeper/internal/models"
	"tunnel-keeper/internal/utils"
)

// 堡垒机脚本标准错误中的特征串
const (
	signatureForbidden = "SecurityError"
	signatureReady     = "Tunnel is ready"
)

// Launcher starts the two external stages of a tunnel
type Launcher interface {
	LaunchBastion(ctx context.Context, t models.Tunnel, login string, onFailure func(error)) (*ProcessInstance, error)
	LaunchSSH(ctx context.Context, t models.Tunnel, login string, onExit func()) (*ProcessInstance, error)
}

// BastionArgs 堡垒机命令模板可用的字段
type BastionArgs struct {
	ScriptDir   string
	SandboxID   string
	Login       string
	BastionPort int
	SSHPort     int
}

/**
 * ProcessLauncher spawns the bastion helper and the ssh client
 * @description
 * - Command lines come from the tunnel section of the configuration
 * - Both stages run detached from the keeper's process group
 */
type ProcessLauncher struct {
	goos   string
	config func() config.TunnelConfig
}

func NewProcessLauncher(cfg func() config.TunnelConfig) *ProcessLauncher {
	return &ProcessLauncher{goos: runtime.GOOS, config: cfg}
}

/**
 * Launch the bastion helper for one tunnel
 * @param {context.Context} ctx - Bounds the spawn only
 * @param {models.Tunnel} t - Tunnel snapshot, sandbox and bastion port are used
 * @param {string} login - Remote login "{domain}.{alias}"
 * @param {func(error)} onFailure - Called at most once, from another goroutine, when the helper fails
 * @returns {(*ProcessInstance, error)} Handle of the helper, or an error when it could not be spawned
 * @description
 * - stderr "SecurityError" kills the helper and fails with ErrScriptForbidden
 * - stderr "Tunnel is ready" kills the helper, the bastion listener lives on in its descendant
 * - exit codes 2/3/4 map to missing CLI, ssh extension and key path, other non-zero codes to ExitCodeError
 * - the wall-clock timeout kills the helper and fails with ErrLaunchTimeout, unless the helper reported ready
 */
func (l *ProcessLauncher) LaunchBastion(ctx context.Context, t models.Tunnel, login string, onFailure func(error)) (*ProcessInstance, error) {
	if !PlatformSupported(l.goos) {
		return nil, ErrPlatformUnsupported
	}
	cfg := l.config()
	data := BastionArgs{
		ScriptDir:   cfg.ScriptDir,
		SandboxID:   fmt.Sprintf("%04d", t.SandboxID),
		Login:       login,
		BastionPort: t.BastionPort,
		SSHPort:     t.SSHPort,
	}
	command, args, err := utils.GetCommandLine(cfg.Bastion.Command, cfg.Bastion.Args, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	proc := NewProcessInstance("bastion "+t.HostName(), cfg.Image.Bastion, command, args)
	proc.Detached = true

	var (
		once    sync.Once
		failed  atomic.Bool
		ready   atomic.Bool
		timeout *time.Timer
	)
	fail := func(err error) {
		once.Do(func() {
			failed.Store(true)
			if timeout != nil {
				timeout.Stop()
			}
			launchFailures.WithLabelValues("bastion", failureReason(err)).Inc()
			onFailure(err)
		})
	}

	proc.OnOutput(func(line string) {
		logger.Infof("[CMD OUT] %s", line)
	}, func(line string) {
		logger.Warnf("[CMD ERR] %s", line)
		switch {
		case strings.Contains(line, signatureForbidden):
			// 先记录失败再终止，退出回调看到的已是失败状态
			fail(ErrScriptForbidden)
			proc.StopProcess()
		case strings.Contains(line, signatureReady):
			ready.Store(true)
			timeout.Stop()
			proc.StopProcess()
		}
	})
	proc.OnExited(func(p *ProcessInstance) {
		if ready.Load() || failed.Load() {
			return
		}
		if err := bastionExitError(p.GetDetail()); err != nil {
			fail(err)
		}
	})

	// 就绪或失败时解除；脚本正常退出但没有就绪时仍然有效，避免隧道停在 bastion_opening
	timeout = time.AfterFunc(cfg.BastionTimeout, func() {
		if failed.Load() || ready.Load() {
			return
		}
		fail(ErrLaunchTimeout)
		proc.StopProcess()
	})
	if err := proc.StartProcess(ctx); err != nil {
		timeout.Stop()
		launchFailures.WithLabelValues("bastion", failureReason(err)).Inc()
		return nil, err
	}
	return proc, nil
}

// bastionExitError 把脚本退出映射为启动错误；被 keeper 终止的进程的退出码不代表脚本结果
func bastionExitError(detail models.ProcessDetail) error {
	if detail.Status == models.StatusStopped || detail.ExitCode <= 0 {
		return nil
	}
	return exitCodeError(detail.ExitCode)
}

/**
 * Launch the detached ssh tunnel
 * @param {context.Context} ctx - Bounds the spawn only
 * @param {models.Tunnel} t - Tunnel snapshot
 * @param {string} login - Remote login "{domain}.{alias}"
 * @param {func()} onExit - Called from another goroutine when ssh exits
 * @returns {(*ProcessInstance, error)} Handle of the ssh process
 * @description
 * - ssh -N -L {sshPort}:127.0.0.1:22 {login}@127.0.0.1 -p {bastionPort}
 * - host key checking is disabled, known hosts go to the null device
 */
func (l *ProcessLauncher) LaunchSSH(ctx context.Context, t models.Tunnel, login string, onExit func()) (*ProcessInstance, error) {
	if !PlatformSupported(l.goos) {
		return nil, ErrPlatformUnsupported
	}
	cfg := l.config()
	args := SSHArgs(t, login)
	if len(cfg.SSH.Args) > 0 {
		_, extra, err := utils.GetCommandLine(cfg.SSH.Command, cfg.SSH.Args, BastionArgs{
			ScriptDir:   cfg.ScriptDir,
			SandboxID:   fmt.Sprintf("%04d", t.SandboxID),
			Login:       login,
			BastionPort: t.BastionPort,
			SSHPort:     t.SSHPort,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
		}
		args = append(args, extra...)
	}

	proc := NewProcessInstance("ssh "+t.HostName(), cfg.Image.SSH, cfg.SSH.Command, args)
	proc.Detached = true
	proc.OnExited(func(*ProcessInstance) {
		onExit()
	})
	if err := proc.StartProcess(ctx); err != nil {
		launchFailures.WithLabelValues("ssh", failureReason(err)).Inc()
		return nil, err
	}
	return proc, nil
}

// SSHArgs 构造 ssh 隧道参数
func SSHArgs(t models.Tunnel, login string) []string {
	return []string{
		"-N",
		"-L", fmt.Sprintf("%d:%s:22", t.SSHPort, LoopbackAddr),
		fmt.Sprintf("%s@%s", login, LoopbackAddr),
		"-p", strconv.Itoa(t.BastionPort),
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=" + env.NullDevice(),
	}
}
