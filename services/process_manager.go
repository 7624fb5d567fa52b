package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"tunnel-keeper/internal/logger"
	"tunnel-keeper/internal/models"
	"tunnel-keeper/internal/utils"
)

type processWatcher struct {
	onStdout func(string)           //标准输出的行回调
	onStderr func(string)           //标准错误的行回调
	onExited func(*ProcessInstance) //监测到进程退出时的回调函数
}

/**
 * ProcessInstance 外部进程实例
 * @property {string} Title - 进程标题，用于显示
 * @property {string} ProcessName - 期望监听端口的进程映像名
 * @property {string} Command - 执行命令
 * @property {[]string} Args - 命令参数
 * @property {bool} Detached - 是否脱离当前进程组运行
 * @property {models.RunStatus} Status - 进程状态: running/exited/stopped/error
 * @property {int} ExitCode - 退出码，被信号终止时为 -1
 * @description
 * - 进程句柄只保存在内存中，不参与持久化
 * - watcher 协程负责 Wait()，回收进程并触发退出回调
 */
type ProcessInstance struct {
	Title          string           //显示用的名字
	ProcessName    string           //进程名，用于查找进程
	Command        string           //进程启动命令
	Args           []string         //进程参数
	WorkDir        string           //工作目录
	Detached       bool             //脱离父进程的进程组
	Status         models.RunStatus //状态
	ExitCode       int              //退出码
	StartTime      time.Time        //启动时间
	LastExitTime   time.Time        //最后一次退出的时间
	LastExitReason string           //最后一次退出的原因
	watcher        processWatcher   //监测协程的设置
	process        *os.Process      //统一的进程对象，用于Wait()
	done           chan struct{}    //进程退出后关闭
	mutex          sync.Mutex       //保护实例数据一致性的读写锁
}

/**
 * NewProcessInstance 创建新的进程实例
 * @param {string} title - 进程标题
 * @param {string} procName - 进程名
 * @param {string} command - 执行命令
 * @param {[]string} args - 命令参数
 * @returns {*ProcessInstance} 返回创建的进程实例
 */
func NewProcessInstance(title, procName, command string, args []string) *ProcessInstance {
	return &ProcessInstance{
		Title:       title,
		ProcessName: procName,
		Command:     command,
		Args:        args,
		Status:      models.StatusExited,
		done:        make(chan struct{}),
	}
}

// OnOutput 设置标准输出/标准错误的行回调，必须在 StartProcess 之前调用
func (pi *ProcessInstance) OnOutput(stdout, stderr func(string)) {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()
	pi.watcher.onStdout = stdout
	pi.watcher.onStderr = stderr
}

// OnExited 设置进程退出回调，必须在 StartProcess 之前调用
func (pi *ProcessInstance) OnExited(fn func(*ProcessInstance)) {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()
	pi.watcher.onExited = fn
}

func (pi *ProcessInstance) Pid() int {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()
	return pi.pid()
}

func (pi *ProcessInstance) pid() int {
	if pi.process == nil {
		return 0
	}
	return pi.process.Pid
}

// Done 在进程退出并被回收后关闭
func (pi *ProcessInstance) Done() <-chan struct{} {
	return pi.done
}

func (pi *ProcessInstance) GetDetail() models.ProcessDetail {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()
	return models.ProcessDetail{
		Title:          pi.Title,
		ProcessName:    pi.ProcessName,
		Command:        pi.Command,
		Args:           pi.Args,
		WorkDir:        pi.WorkDir,
		Detached:       pi.Detached,
		Status:         pi.Status,
		Pid:            pi.pid(),
		ExitCode:       pi.ExitCode,
		StartTime:      pi.StartTime,
		LastExitTime:   pi.LastExitTime,
		LastExitReason: pi.LastExitReason,
	}
}

/**
 * StartProcess 启动进程
 * @param {context.Context} ctx - 仅约束启动过程，进程生命周期不受其取消影响
 * @returns {error} 返回错误信息，启动失败时包装 ErrSpawnFailed
 * @description
 * - 设置了行回调时通过管道读取输出，否则丢弃输出
 * - Detached 进程放入新的进程组，keeper 退出后继续运行
 * - 启动协程等待进程退出
 */
func (pi *ProcessInstance) StartProcess(ctx context.Context) error {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	if pi.Status == models.StatusRunning {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Infof("[CMD] > %s", utils.FormatCommandLine(pi.Command, pi.Args))

	cmd := exec.Command(pi.Command, pi.Args...)
	if pi.WorkDir != "" {
		cmd.Dir = pi.WorkDir
	}
	if pi.Detached {
		// 设置进程属性，使子进程在父进程退出后继续运行
		utils.SetNewPG(cmd)
	}

	var readers []*os.File
	var writers []*os.File
	var handlers []func(string)
	if pi.watcher.onStdout != nil {
		r, w, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
		}
		cmd.Stdout = w
		readers, writers, handlers = append(readers, r), append(writers, w), append(handlers, pi.watcher.onStdout)
	}
	if pi.watcher.onStderr != nil {
		r, w, err := os.Pipe()
		if err != nil {
			closeFiles(readers, writers)
			return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
		}
		cmd.Stderr = w
		readers, writers, handlers = append(readers, r), append(writers, w), append(handlers, pi.watcher.onStderr)
	}

	if err := cmd.Start(); err != nil {
		closeFiles(readers, writers)
		pi.Status = models.StatusError
		pi.LastExitReason = fmt.Sprintf("start failed: %v", err)
		logger.Errorf("Failed to start process '%s', error: %v", pi.Title, err)
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	// 子进程已持有写端，关闭本进程的副本以便读到 EOF
	closeFiles(nil, writers)
	pi.process = cmd.Process
	pi.Status = models.StatusRunning
	pi.StartTime = time.Now()
	logger.Infof("Process '%s' started (PID: %d)", pi.Title, pi.pid())

	readersDone := make(chan struct{})
	var wg sync.WaitGroup
	for i := range readers {
		wg.Add(1)
		go func(r *os.File, fn func(string)) {
			defer wg.Done()
			defer r.Close()
			scanLines(r, fn)
		}(readers[i], handlers[i])
	}
	go func() {
		wg.Wait()
		close(readersDone)
	}()
	go pi.watchProcess(cmd, readersDone)
	return nil
}

func scanLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fn(scanner.Text())
	}
}

func closeFiles(groups ...[]*os.File) {
	for _, files := range groups {
		for _, f := range files {
			f.Close()
		}
	}
}

// outputGrace bounds how long an exit waits for trailing output; descendants may keep the pipes open
const outputGrace = 200 * time.Millisecond

/**
 * StopProcess 停止进程
 * @returns {error} 返回错误信息
 * @description
 * - 只向进程发送终止信号，回收由监测协程完成
 * - 标记为 stopped，退出回调仍会被调用
 */
func (pi *ProcessInstance) StopProcess() error {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	if pi.Status != models.StatusRunning || pi.process == nil {
		return nil
	}
	pi.Status = models.StatusStopped
	pi.LastExitReason = "stopped"
	if err := pi.process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Errorf("Failed to kill process '%s' (PID: %d, NAME: %s)", pi.Title, pi.pid(), pi.ProcessName)
		return err
	}
	logger.Infof("Process '%s' (PID: %d) stopped", pi.Title, pi.pid())
	return nil
}

/**
 * watchProcess 监控进程状态的协程
 * @description
 * - 统一使用 Wait() 等待进程退出，记录退出码与原因
 * - 退出回调前等待输出读完，后代进程仍持有管道时最多等待 outputGrace
 */
func (pi *ProcessInstance) watchProcess(cmd *exec.Cmd, readersDone <-chan struct{}) {
	err := cmd.Wait()
	select {
	case <-readersDone:
	case <-time.After(outputGrace):
	}

	pi.mutex.Lock()
	pi.LastExitTime = time.Now()
	pi.ExitCode = cmd.ProcessState.ExitCode()
	switch {
	case pi.Status == models.StatusStopped:
		logger.Infof("Process '%s' (PID: %d) exited after stop", pi.Title, pi.pid())
	case err != nil:
		logger.Warnf("Process '%s' (PID: %d) exited with error: %v", pi.Title, pi.pid(), err)
		pi.LastExitReason = fmt.Sprintf("exited with error: %v", err)
		pi.Status = models.StatusError
	default:
		logger.Infof("Process '%s' (PID: %d) exited normally", pi.Title, pi.pid())
		pi.LastExitReason = "exited normally"
		pi.Status = models.StatusExited
	}
	onExited := pi.watcher.onExited
	pi.mutex.Unlock()

	close(pi.done)
	if onExited != nil {
		onExited(pi)
	}
}
