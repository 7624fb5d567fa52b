package services

import (
	"testing"

	"tunnel-keeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(effects []effect) []effectKind {
	var out []effectKind
	for _, e := range effects {
		out = append(out, e.kind)
	}
	return out
}

func TestDecide(t *testing.T) {
	both := observation{bastionPIDs: []int{11}, sshPIDs: []int{22}}
	bastionOnly := observation{bastionPIDs: []int{11}}
	sshOnly := observation{sshPIDs: []int{22}}
	none := observation{}

	tests := []struct {
		name       string
		state      models.TunnelState
		obs        observation
		retry      int
		auto       bool
		states     []models.TunnelState
		effects    []effectKind
		resetRetry bool
		reconnect  bool
	}{
		{name: "closed is idle", state: models.StateClosed, obs: none},
		{name: "opened healthy", state: models.StateOpened, obs: observation{sshAlive: true, bastionAlive: true}},
		{name: "opened ssh lost prompts", state: models.StateOpened, obs: observation{bastionAlive: true},
			states: []models.TunnelState{models.StateClosed}, effects: []effectKind{effectKillBastion, effectPromptReopen}},
		{name: "opened both lost reconnects", state: models.StateOpened, obs: none, auto: true,
			states: []models.TunnelState{models.StateClosed}, effects: []effectKind{effectNotifyAccidental}, reconnect: true},
		{name: "unknown both", state: models.StateUnknown, obs: both,
			states: []models.TunnelState{models.StateOpened}, effects: []effectKind{effectNotifyOpened}, resetRetry: true},
		{name: "unknown bastion only", state: models.StateUnknown, obs: bastionOnly,
			states: []models.TunnelState{models.StateClosed}, effects: []effectKind{effectKillBastion}},
		{name: "unknown ssh only", state: models.StateUnknown, obs: sshOnly,
			states: []models.TunnelState{models.StateClosed}, effects: []effectKind{effectKillSSH}},
		{name: "unknown none", state: models.StateUnknown, obs: none,
			states: []models.TunnelState{models.StateClosed}},
		{name: "preopen both", state: models.StatePreopenCheck, obs: both, retry: 2,
			states: []models.TunnelState{models.StateOpened}, effects: []effectKind{effectNotifyOpened}, resetRetry: true},
		{name: "preopen bastion only", state: models.StatePreopenCheck, obs: bastionOnly,
			states: []models.TunnelState{models.StateBastionOpening}, effects: []effectKind{effectKillBastion, effectLaunchBastion}},
		{name: "preopen ssh only", state: models.StatePreopenCheck, obs: sshOnly,
			states: []models.TunnelState{models.StateBastionOpening}, effects: []effectKind{effectKillSSH, effectLaunchBastion}},
		{name: "preopen none", state: models.StatePreopenCheck, obs: none,
			states: []models.TunnelState{models.StateBastionOpening}, effects: []effectKind{effectLaunchBastion}},
		{name: "bastion opening waits", state: models.StateBastionOpening, obs: none},
		{name: "bastion opening ready", state: models.StateBastionOpening, obs: bastionOnly,
			states: []models.TunnelState{models.StateBastionOpened, models.StateSSHOpening}, effects: []effectKind{effectLaunchSSH}},
		{name: "bastion opened", state: models.StateBastionOpened, obs: none,
			states: []models.TunnelState{models.StateSSHOpening}, effects: []effectKind{effectLaunchSSH}},
		{name: "ssh opening waits", state: models.StateSSHOpening, obs: none},
		{name: "ssh opening ready", state: models.StateSSHOpening, obs: sshOnly,
			states: []models.TunnelState{models.StateOpened}, effects: []effectKind{effectNotifyOpened}, resetRetry: true},
		{name: "bastion failed manual", state: models.StateBastionOpeningFailed, obs: none,
			states: []models.TunnelState{models.StateClosed}},
		{name: "bastion failed during reconnect", state: models.StateBastionOpeningFailed, obs: none, retry: 1,
			states: []models.TunnelState{models.StateClosed}, reconnect: true},
		{name: "ssh failed during reconnect", state: models.StateSSHOpeningFailed, obs: none, retry: 2,
			states: []models.TunnelState{models.StateClosed}, reconnect: true},
		{name: "closing", state: models.StateClosing, obs: none,
			states: []models.TunnelState{models.StateClosed}, effects: []effectKind{effectNotifyClosed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := decide(tt.state, tt.obs, tt.retry, tt.auto, 11)
			require.NoError(t, err)
			assert.Equal(t, tt.states, d.states)
			assert.Equal(t, tt.effects, kinds(d.effects))
			assert.Equal(t, tt.resetRetry, d.resetRetry)
			assert.Equal(t, tt.reconnect, d.reconnect)
		})
	}
}

func TestDecideKillsObservedPID(t *testing.T) {
	d, err := decide(models.StateUnknown, observation{bastionPIDs: []int{31, 32}}, 0, false, 0)
	require.NoError(t, err)
	require.Len(t, d.effects, 1)
	assert.Equal(t, 31, d.effects[0].pid)

	d, err = decide(models.StateOpened, observation{bastionAlive: true}, 0, false, 77)
	require.NoError(t, err)
	assert.Equal(t, 77, d.effects[0].pid)
}

func TestDecideRejectsUnknownState(t *testing.T) {
	_, err := decide(models.TunnelState("bogus"), observation{}, 0, false, 0)
	assert.Error(t, err)
}

func TestReconnectPolicy(t *testing.T) {
	retry, again := reconnectPolicy(0, 3)
	assert.Equal(t, 1, retry)
	assert.True(t, again)

	retry, again = reconnectPolicy(3, 3)
	assert.Equal(t, 0, retry)
	assert.False(t, again)

	retry, again = reconnectPolicy(0, 0)
	assert.Equal(t, 0, retry)
	assert.False(t, again)
}

func TestProbeFor(t *testing.T) {
	assert.Equal(t, probeLiveness, probeFor(models.StateOpened))
	assert.Equal(t, probeBoth, probeFor(models.StateUnknown))
	assert.Equal(t, probeBoth, probeFor(models.StatePreopenCheck))
	assert.Equal(t, probeBastion, probeFor(models.StateBastionOpening))
	assert.Equal(t, probeSSH, probeFor(models.StateSSHOpening))
	assert.Equal(t, probeNone, probeFor(models.StateClosing))
	assert.Equal(t, probeNone, probeFor(models.StateBastionOpeningFailed))
}
