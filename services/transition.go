package services

import (
	"fmt"

	"tunnel-keeper/internal/models"
)

// probeKind 每个状态在一次 tick 中需要的探测
type probeKind int

const (
	probeNone     probeKind = iota
	probeLiveness           // 已知 pid 是否存活
	probeBoth               // 两个本地端口的监听进程
	probeBastion            // 堡垒机端口的监听进程
	probeSSH                // ssh 端口的监听进程
)

func probeFor(state models.TunnelState) probeKind {
	switch state {
	case models.StateOpened:
		return probeLiveness
	case models.StateUnknown, models.StatePreopenCheck:
		return probeBoth
	case models.StateBastionOpening:
		return probeBastion
	case models.StateSSHOpening:
		return probeSSH
	default:
		return probeNone
	}
}

// observation 探测结果
type observation struct {
	bastionPIDs  []int
	sshPIDs      []int
	bastionAlive bool
	sshAlive     bool
}

func (o observation) bastionPresent() bool { return len(o.bastionPIDs) > 0 }
func (o observation) sshPresent() bool     { return len(o.sshPIDs) > 0 }

type effectKind int

const (
	effectKillBastion effectKind = iota
	effectKillSSH
	effectLaunchBastion
	effectLaunchSSH
	effectNotifyOpened
	effectNotifyClosed
	effectNotifyAccidental
	effectPromptReopen
)

type effect struct {
	kind effectKind
	pid  int
}

/**
 * decision 一次状态处理的结果
 * @property {[]models.TunnelState} states - 依次进入的状态，每个都会推送一次快照
 * @property {bool} resetRetry - 重连计数清零
 * @property {bool} reconnect - 落到 closed 后执行重连策略
 * @property {[]effect} effects - 释放锁之后执行的副作用，按顺序
 */
type decision struct {
	states     []models.TunnelState
	resetRetry bool
	reconnect  bool
	effects    []effect
}

func (d decision) final(current models.TunnelState) models.TunnelState {
	if len(d.states) == 0 {
		return current
	}
	return d.states[len(d.states)-1]
}

func first(pids []int) int {
	if len(pids) == 0 {
		return 0
	}
	return pids[0]
}

/**
 * Decide the transition of one tunnel for one tick
 * @param {models.TunnelState} state - State the probe was started in
 * @param {observation} obs - Probe result for probeFor(state)
 * @param {int} retry - Current reconnect count
 * @param {bool} autoReconnect - Whether accidental closes reconnect automatically
 * @param {int} bastionPID - Known bastion pid, killed when an opened tunnel loses ssh
 * @returns {(decision, error)} Next states and side effects, error for states outside the lifecycle
 */
func decide(state models.TunnelState, obs observation, retry int, autoReconnect bool, bastionPID int) (decision, error) {
	var d decision
	switch state {
	case models.StateClosed:
	case models.StateOpened:
		if obs.sshAlive {
			break
		}
		if obs.bastionAlive {
			d.effects = append(d.effects, effect{kind: effectKillBastion, pid: bastionPID})
		}
		d.states = []models.TunnelState{models.StateClosed}
		if autoReconnect {
			d.effects = append(d.effects, effect{kind: effectNotifyAccidental})
			d.reconnect = true
		} else {
			d.effects = append(d.effects, effect{kind: effectPromptReopen})
		}
	case models.StateUnknown:
		switch {
		case obs.bastionPresent() && obs.sshPresent():
			d.states = []models.TunnelState{models.StateOpened}
			d.resetRetry = true
			d.effects = append(d.effects, effect{kind: effectNotifyOpened})
		case obs.bastionPresent():
			d.effects = append(d.effects, effect{kind: effectKillBastion, pid: first(obs.bastionPIDs)})
			d.states = []models.TunnelState{models.StateClosed}
		case obs.sshPresent():
			// ssh 没有可用的第一跳，无法继续使用
			d.effects = append(d.effects, effect{kind: effectKillSSH, pid: first(obs.sshPIDs)})
			d.states = []models.TunnelState{models.StateClosed}
		default:
			d.states = []models.TunnelState{models.StateClosed}
		}
	case models.StatePreopenCheck:
		switch {
		case obs.bastionPresent() && obs.sshPresent():
			d.states = []models.TunnelState{models.StateOpened}
			d.resetRetry = true
			d.effects = append(d.effects, effect{kind: effectNotifyOpened})
		case obs.bastionPresent():
			d.effects = append(d.effects, effect{kind: effectKillBastion, pid: first(obs.bastionPIDs)})
			d.states = []models.TunnelState{models.StateBastionOpening}
			d.effects = append(d.effects, effect{kind: effectLaunchBastion})
		case obs.sshPresent():
			// 残留的 ssh 会占用端口，先清理再重新建立
			d.effects = append(d.effects, effect{kind: effectKillSSH, pid: first(obs.sshPIDs)})
			d.states = []models.TunnelState{models.StateBastionOpening}
			d.effects = append(d.effects, effect{kind: effectLaunchBastion})
		default:
			d.states = []models.TunnelState{models.StateBastionOpening}
			d.effects = append(d.effects, effect{kind: effectLaunchBastion})
		}
	case models.StateBastionOpening:
		if obs.bastionPresent() {
			d.states = []models.TunnelState{models.StateBastionOpened, models.StateSSHOpening}
			d.effects = append(d.effects, effect{kind: effectLaunchSSH})
		}
	case models.StateBastionOpened:
		d.states = []models.TunnelState{models.StateSSHOpening}
		d.effects = append(d.effects, effect{kind: effectLaunchSSH})
	case models.StateBastionOpeningFailed, models.StateSSHOpeningFailed:
		d.states = []models.TunnelState{models.StateClosed}
		d.reconnect = retry > 0
	case models.StateSSHOpening:
		if obs.sshPresent() {
			d.states = []models.TunnelState{models.StateOpened}
			d.resetRetry = true
			d.effects = append(d.effects, effect{kind: effectNotifyOpened})
		}
	case models.StateClosing:
		d.states = []models.TunnelState{models.StateClosed}
		d.effects = append(d.effects, effect{kind: effectNotifyClosed})
	default:
		return d, fmt.Errorf("unexpected tunnel state %q", state)
	}
	return d, nil
}

/**
 * Apply the reconnect policy to a tunnel that just reached "closed"
 * @param {int} retry - Current reconnect count
 * @param {int} maxTrials - Configured bound
 * @returns {(int, bool)} New reconnect count, and whether the tunnel is reopened
 * @description
 * - Below the bound the count is incremented and the tunnel goes back to preopen_check
 * - At the bound the count is reset and the failure becomes terminal
 */
func reconnectPolicy(retry, maxTrials int) (int, bool) {
	if retry < maxTrials {
		return retry + 1, true
	}
	return 0, false
}
