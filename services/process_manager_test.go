package services

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"tunnel-keeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests use /bin/sh")
	}
}

func waitDone(t *testing.T, pi *ProcessInstance) {
	t.Helper()
	select {
	case <-pi.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("process '%s' did not exit", pi.Title)
	}
}

/**
 * TestProcessExitCallback 进程退出后回调被调用
 * @description
 * - 回调收到的实例已记录退出码与状态
 * - 输出行在回调之前全部送达
 */
func TestProcessExitCallback(t *testing.T) {
	skipOnWindows(t)
	pi := NewProcessInstance("test-process", "sh", "/bin/sh", []string{"-c", "echo out; echo err >&2; exit 3"})

	var mu sync.Mutex
	var stdout, stderr []string
	pi.OnOutput(func(line string) {
		mu.Lock()
		stdout = append(stdout, line)
		mu.Unlock()
	}, func(line string) {
		mu.Lock()
		stderr = append(stderr, line)
		mu.Unlock()
	})
	exited := make(chan models.ProcessDetail, 1)
	pi.OnExited(func(p *ProcessInstance) {
		exited <- p.GetDetail()
	})

	require.NoError(t, pi.StartProcess(context.Background()))
	assert.Greater(t, pi.Pid(), 0)

	select {
	case detail := <-exited:
		assert.Equal(t, 3, detail.ExitCode)
		assert.Equal(t, models.StatusError, detail.Status)
		assert.False(t, detail.LastExitTime.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("exit callback was not called")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"out"}, stdout)
	assert.Equal(t, []string{"err"}, stderr)
}

func TestProcessNormalExit(t *testing.T) {
	skipOnWindows(t)
	pi := NewProcessInstance("true", "sh", "/bin/sh", []string{"-c", "exit 0"})
	require.NoError(t, pi.StartProcess(context.Background()))
	waitDone(t, pi)

	detail := pi.GetDetail()
	assert.Equal(t, models.StatusExited, detail.Status)
	assert.Equal(t, 0, detail.ExitCode)
	assert.Equal(t, "exited normally", detail.LastExitReason)
}

func TestProcessStop(t *testing.T) {
	skipOnWindows(t)
	pi := NewProcessInstance("sleeper", "sleep", "/bin/sh", []string{"-c", "sleep 5"})
	pi.Detached = true
	require.NoError(t, pi.StartProcess(context.Background()))
	// 重复启动不会产生新进程
	pid := pi.Pid()
	require.NoError(t, pi.StartProcess(context.Background()))
	assert.Equal(t, pid, pi.Pid())

	require.NoError(t, pi.StopProcess())
	waitDone(t, pi)
	detail := pi.GetDetail()
	assert.Equal(t, models.StatusStopped, detail.Status)
	assert.Equal(t, "stopped", detail.LastExitReason)

	// 已退出的进程再次停止不报错
	assert.NoError(t, pi.StopProcess())
}

func TestProcessStartFailure(t *testing.T) {
	pi := NewProcessInstance("missing", "missing", "/nonexistent/command", nil)
	err := pi.StartProcess(context.Background())
	assert.ErrorIs(t, err, ErrSpawnFailed)
	assert.Equal(t, models.StatusError, pi.GetDetail().Status)
	assert.Zero(t, pi.Pid())
}

func TestProcessStartCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pi := NewProcessInstance("cancelled", "sh", "/bin/sh", []string{"-c", "exit 0"})
	assert.ErrorIs(t, pi.StartProcess(ctx), context.Canceled)
	assert.Zero(t, pi.Pid())
}
