package services

import (
	"context"
	"fmt"
	"sync"

	"tunnel-keeper/internal/config"
	"tunnel-keeper/internal/logger"
	"tunnel-keeper/internal/models"
	"tunnel-keeper/internal/utils"
)

// outbox 在持锁期间收集的通知，释放锁后按顺序发送
type outbox []func(Notifier)

func (o *outbox) changed(index int, t models.Tunnel) {
	*o = append(*o, func(n Notifier) { n.TunnelChanged(index, t) })
}

func (o *outbox) message(level models.MessageLevel, index int, text, action string) {
	*o = append(*o, func(n Notifier) { n.Message(level, index, text, action) })
}

/**
 * Engine drives every tunnel through its lifecycle
 * @description
 * - State inspection and mutation happen under the registry lock, probes and subprocess work do not
 * - At most one probe per tunnel is outstanding; a result is dropped if the state moved while probing
 * - Asynchronous launch outcomes carry the launch sequence they belong to and are dropped when stale
 */
type Engine struct {
	reg      *Registry
	prober   Prober
	launcher Launcher
	notifier Notifier
	login    func() (string, bool)
	config   func() config.TunnelConfig
	wg       sync.WaitGroup
}

func NewEngine(reg *Registry, prober Prober, launcher Launcher, notifier Notifier,
	login func() (string, bool), cfg func() config.TunnelConfig) *Engine {
	return &Engine{
		reg:      reg,
		prober:   prober,
		launcher: launcher,
		notifier: notifier,
		login:    login,
		config:   cfg,
	}
}

func (e *Engine) flush(out outbox) {
	for _, fn := range out {
		fn(e.notifier)
	}
}

// setStateLocked 修改状态并记录一次快照，调用方持有 reg.mu
func (e *Engine) setStateLocked(ti *TunnelInstance, index int, state models.TunnelState, out *outbox) {
	from := ti.State
	ti.State = state
	switch state {
	case models.StateClosed:
		ti.BastionProcID = 0
		ti.SSHProcID = 0
	case models.StateBastionOpening, models.StateSSHOpening:
		ti.launchSeq++
	}
	observeTransition(from, state)
	out.changed(index, ti.Tunnel)
}

/**
 * Tick visits every tunnel once
 * @param {context.Context} ctx - Passed to probes and launches started by this tick
 * @description
 * - Tunnels are visited in list order; closed tunnels and tunnels with a probe in flight are skipped
 * - Each visit runs in its own goroutine, Wait() joins them
 */
func (e *Engine) Tick(ctx context.Context) {
	r := e.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ti := range r.tunnels {
		if ti.State == models.StateClosed || ti.inflight {
			continue
		}
		ti.inflight = true
		e.wg.Add(1)
		go e.visit(ctx, ti, ti.Tunnel)
	}
	observeStates(r.listLocked())
}

// Wait 等待所有在途的探测与状态处理结束
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) observe(ctx context.Context, snap models.Tunnel) observation {
	var obs observation
	images := e.config().Image
	switch probeFor(snap.State) {
	case probeLiveness:
		obs.sshAlive = e.prober.IsAlive(snap.SSHProcID)
		obs.bastionAlive = e.prober.IsAlive(snap.BastionProcID)
	case probeBoth:
		obs.bastionPIDs = e.prober.FindListener(ctx, utils.ProtoTCP4, LoopbackAddr, snap.BastionPort, images.Bastion)
		obs.sshPIDs = e.prober.FindListener(ctx, utils.ProtoTCP4, LoopbackAddr, snap.SSHPort, images.SSH)
	case probeBastion:
		obs.bastionPIDs = e.prober.FindListener(ctx, utils.ProtoTCP4, LoopbackAddr, snap.BastionPort, images.Bastion)
	case probeSSH:
		obs.sshPIDs = e.prober.FindListener(ctx, utils.ProtoTCP4, LoopbackAddr, snap.SSHPort, images.SSH)
	}
	return obs
}

func (e *Engine) visit(ctx context.Context, ti *TunnelInstance, snap models.Tunnel) {
	defer e.wg.Done()
	obs := e.observe(ctx, snap)
	cfg := e.config()

	r := e.reg
	r.mu.Lock()
	ti.inflight = false
	index := r.indexOfLocked(ti)
	if index < 0 || ti.State != snap.State {
		r.mu.Unlock()
		logger.Debugf("Tunnel %s moved from %s while probing, result dropped", snap.Title(), snap.State)
		return
	}
	d, err := decide(snap.State, obs, ti.RetryCount, cfg.AutoReconnect.Enabled, ti.BastionProcID)
	if err != nil {
		r.mu.Unlock()
		logger.Errorf("Tunnel%d: %v", index, err)
		return
	}

	switch probeFor(snap.State) {
	case probeBoth:
		ti.BastionProcID = first(obs.bastionPIDs)
		ti.SSHProcID = first(obs.sshPIDs)
	case probeBastion:
		if obs.bastionPresent() {
			ti.BastionProcID = first(obs.bastionPIDs)
		}
	case probeSSH:
		if obs.sshPresent() {
			ti.SSHProcID = first(obs.sshPIDs)
		}
	}
	if d.resetRetry {
		ti.RetryCount = 0
	}

	var out outbox
	for _, st := range d.states {
		e.setStateLocked(ti, index, st, &out)
	}

	var kills []int
	launchBastion, launchSSH := false, false
	for _, ef := range d.effects {
		switch ef.kind {
		case effectKillBastion, effectKillSSH:
			kills = append(kills, ef.pid)
		case effectLaunchBastion:
			launchBastion = true
		case effectLaunchSSH:
			launchSSH = true
		case effectNotifyOpened:
			out.message(models.LevelInfo, index, fmt.Sprintf("GCR tunnel%d opened.", index), "")
		case effectNotifyClosed:
			out.message(models.LevelInfo, index, fmt.Sprintf("GCR tunnel%d closed.", index), "")
		case effectNotifyAccidental:
			out.message(models.LevelInfo, index, fmt.Sprintf("GCR tunnel%d accidentally closed. Reconnecting...", index), "")
		case effectPromptReopen:
			out.message(models.LevelPrompt, index, fmt.Sprintf("GCR tunnel%d accidentally closed. Reopen?", index), "open")
			out.message(models.LevelInfo, index, "GCR tunnel auto reconnection can be enabled in settings.", "")
		}
	}
	if d.reconnect {
		e.reconnectLocked(ti, index, cfg.AutoReconnect.MaxTrials, &out)
	}
	seq, launchSnap := ti.launchSeq, ti.Tunnel
	r.mu.Unlock()

	e.flush(out)
	for _, pid := range kills {
		if err := e.prober.Kill(pid); err != nil {
			logger.Warnf("Failed to kill process %d of %s: %v", pid, snap.Title(), err)
		}
	}
	if launchBastion {
		e.launchBastion(ctx, ti, seq, launchSnap)
	}
	if launchSSH {
		e.launchSSH(ctx, ti, seq, launchSnap)
	}
}

// reconnectLocked 执行重连策略，调用方持有 reg.mu 且隧道刚进入 closed
func (e *Engine) reconnectLocked(ti *TunnelInstance, index, maxTrials int, out *outbox) {
	retry, again := reconnectPolicy(ti.RetryCount, maxTrials)
	ti.RetryCount = retry
	if again {
		reconnectAttempts.WithLabelValues("retry").Inc()
		logger.Infof("Tunnel%d reconnecting (%d/%d)", index, retry, maxTrials)
		e.setStateLocked(ti, index, models.StatePreopenCheck, out)
		return
	}
	reconnectAttempts.WithLabelValues("exhausted").Inc()
	out.message(models.LevelError, index,
		fmt.Sprintf("Unable to reconnect GCR tunnel%d. Check your network and try again.", index), "")
}

func (e *Engine) launchBastion(ctx context.Context, ti *TunnelInstance, seq uint64, snap models.Tunnel) {
	login, ok := e.login()
	if !ok {
		e.bastionFailed(ti, seq, ErrNotAuthenticated)
		return
	}
	proc, err := e.launcher.LaunchBastion(ctx, snap, login, func(err error) {
		e.bastionFailed(ti, seq, err)
	})
	if err != nil {
		e.bastionFailed(ti, seq, err)
		return
	}
	e.reg.mu.Lock()
	if ti.launchSeq == seq {
		ti.bastion = proc
	}
	e.reg.mu.Unlock()
}

/**
 * bastionFailed 处理堡垒机阶段的失败
 * @description
 * - 只在隧道仍处于同一次启动的 bastion_opening 时生效
 * - 进入 bastion_opening_failed，下一个 tick 收敛到 closed
 */
func (e *Engine) bastionFailed(ti *TunnelInstance, seq uint64, cause error) {
	r := e.reg
	r.mu.Lock()
	index := r.indexOfLocked(ti)
	if index < 0 || ti.launchSeq != seq || ti.State != models.StateBastionOpening {
		r.mu.Unlock()
		logger.Debugf("Stale bastion failure of %s ignored: %v", ti.Title(), cause)
		return
	}
	var out outbox
	e.setStateLocked(ti, index, models.StateBastionOpeningFailed, &out)
	out.message(models.LevelError, index, fmt.Sprintf("Failed to open GCR tunnel%d. %s", index, failureText(cause)), "")
	r.mu.Unlock()
	e.flush(out)
}

func (e *Engine) launchSSH(ctx context.Context, ti *TunnelInstance, seq uint64, snap models.Tunnel) {
	login, ok := e.login()
	if !ok {
		e.sshFailed(ti, seq, ErrNotAuthenticated)
		return
	}
	proc, err := e.launcher.LaunchSSH(ctx, snap, login, func() {
		e.sshFailed(ti, seq, ErrSSHExited)
	})
	if err != nil {
		e.sshFailed(ti, seq, err)
		return
	}
	e.reg.mu.Lock()
	if ti.launchSeq == seq {
		ti.ssh = proc
	}
	e.reg.mu.Unlock()
}

/**
 * sshFailed 处理 ssh 阶段的失败或 ssh 进程退出
 * @description
 * - 只在隧道仍处于同一次启动的 ssh_opening 时生效，之后的退出由 opened 的存活检查处理
 * - 失效的堡垒机进程被终止
 */
func (e *Engine) sshFailed(ti *TunnelInstance, seq uint64, cause error) {
	r := e.reg
	r.mu.Lock()
	index := r.indexOfLocked(ti)
	if index < 0 || ti.launchSeq != seq || ti.State != models.StateSSHOpening {
		r.mu.Unlock()
		return
	}
	bastionPID := ti.BastionProcID
	var out outbox
	e.setStateLocked(ti, index, models.StateSSHOpeningFailed, &out)
	out.message(models.LevelError, index, fmt.Sprintf("Failed to open GCR tunnel%d. %s", index, failureText(cause)), "")
	r.mu.Unlock()

	e.flush(out)
	if bastionPID > 0 {
		if err := e.prober.Kill(bastionPID); err != nil {
			logger.Warnf("Failed to kill bastion process %d of %s: %v", bastionPID, ti.Title(), err)
		}
	}
}

/**
 * Open a closed tunnel
 * @param {int} index - Tunnel index
 * @returns {error} ErrIndexOutOfRange, or ErrNotClosed when the tunnel is not closed
 * @description
 * - Resets the reconnect count and sets preopen_check, the next tick drives it forward
 */
func (e *Engine) Open(index int) error {
	r := e.reg
	r.mu.Lock()
	ti, err := r.getLocked(index)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if ti.State != models.StateClosed {
		r.mu.Unlock()
		return fmt.Errorf("%w: tunnel%d is %s", ErrNotClosed, index, ti.State)
	}
	var out outbox
	ti.RetryCount = 0
	e.setStateLocked(ti, index, models.StatePreopenCheck, &out)
	r.mu.Unlock()
	e.flush(out)
	return nil
}

/**
 * Close an opened tunnel
 * @param {int} index - Tunnel index
 * @returns {error} ErrIndexOutOfRange, or ErrNotOpened when the tunnel is not opened
 * @description
 * - Terminates the ssh and bastion processes and sets closing
 * - A second call finds the tunnel closing and kills nothing
 */
func (e *Engine) Close(index int) error {
	r := e.reg
	r.mu.Lock()
	ti, err := r.getLocked(index)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if ti.State != models.StateOpened {
		r.mu.Unlock()
		return fmt.Errorf("%w: tunnel%d is %s", ErrNotOpened, index, ti.State)
	}
	pids := []int{ti.SSHProcID, ti.BastionProcID}
	var out outbox
	ti.RetryCount = 0
	e.setStateLocked(ti, index, models.StateClosing, &out)
	r.mu.Unlock()

	for _, pid := range pids {
		if pid <= 0 {
			continue
		}
		if err := e.prober.Kill(pid); err != nil {
			logger.Warnf("Failed to kill process %d of tunnel%d: %v", pid, index, err)
		}
	}
	e.flush(out)
	return nil
}
