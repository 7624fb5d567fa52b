package models

import (
	"encoding/json"
	"fmt"
)

// TunnelState is the lifecycle state of a sandbox tunnel
type TunnelState string

const (
	StateUnknown              TunnelState = "unknown"
	StateClosed               TunnelState = "closed"
	StatePreopenCheck         TunnelState = "preopen_check"
	StateBastionOpening       TunnelState = "bastion_opening"
	StateBastionOpeningFailed TunnelState = "bastion_opening_failed"
	StateBastionOpened        TunnelState = "bastion_opened"
	StateSSHOpening           TunnelState = "ssh_opening"
	StateSSHOpeningFailed     TunnelState = "ssh_opening_failed"
	StateOpened               TunnelState = "opened"
	StateClosing              TunnelState = "closing"
)

// AllStates lists every state in lifecycle order
var AllStates = []TunnelState{
	StateUnknown,
	StateClosed,
	StatePreopenCheck,
	StateBastionOpening,
	StateBastionOpeningFailed,
	StateBastionOpened,
	StateSSHOpening,
	StateSSHOpeningFailed,
	StateOpened,
	StateClosing,
}

// Settled states need no driving from the engine
func (s TunnelState) Settled() bool {
	return s == StateClosed || s == StateOpened
}

func (s TunnelState) Valid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

func (s *TunnelState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	st := TunnelState(str)
	if !st.Valid() {
		return fmt.Errorf("invalid tunnel state %q", str)
	}
	*s = st
	return nil
}

// BastionPortOffset separates the ssh port from the first-hop port
const BastionPortOffset = 20000

/**
 * Persisted tunnel definition
 * @property {int} sandboxId - Sandbox number (GCRAZGDL####)
 * @property {int} port - Local port of the final ssh tunnel
 */
type TunnelSetting struct {
	SandboxID int `json:"sandboxID"`
	Port      int `json:"port"`
}

/**
 * Runtime view of one sandbox tunnel
 * @property {int} sandboxId - Remote sandbox number, immutable
 * @property {int} bastionPort - Local port of the bastion hop, always sshPort-20000
 * @property {int} sshPort - Local port the ssh tunnel listens on
 * @property {TunnelState} state - Lifecycle state
 * @property {int} bastionProcId - Pid owning the bastion port, 0 when unknown
 * @property {int} sshProcId - Pid owning the ssh port, 0 when unknown
 * @property {int} retryCount - Automatic reconnect attempts since the last success or manual action
 */
type Tunnel struct {
	SandboxID     int         `json:"sandboxId"`
	BastionPort   int         `json:"bastionPort"`
	SSHPort       int         `json:"sshPort"`
	State         TunnelState `json:"state"`
	BastionProcID int         `json:"bastionProcId,omitempty"`
	SSHProcID     int         `json:"sshProcId,omitempty"`
	RetryCount    int         `json:"retryCount"`
}

// NewTunnel regenerates a runtime tunnel from its persisted setting
func NewTunnel(setting TunnelSetting, state TunnelState) Tunnel {
	return Tunnel{
		SandboxID:   setting.SandboxID,
		BastionPort: setting.Port - BastionPortOffset,
		SSHPort:     setting.Port,
		State:       state,
	}
}

func (t Tunnel) Setting() TunnelSetting {
	return TunnelSetting{SandboxID: t.SandboxID, Port: t.SSHPort}
}

// HostName is the sandbox host the tunnel reaches
func (t Tunnel) HostName() string {
	return fmt.Sprintf("GCRAZGDL%04d", t.SandboxID)
}

// Title formats the tunnel for selection lists: "GCRAZGDL1234 | 127.0.0.1:22345"
func (t Tunnel) Title() string {
	return fmt.Sprintf("%s | 127.0.0.1:%d", t.HostName(), t.SSHPort)
}

// CreateTunnelRequest adds a tunnel; both fields are digit strings so leading zeros survive validation
type CreateTunnelRequest struct {
	SandboxID string `json:"sandboxId" binding:"required"`
	Port      string `json:"port" binding:"required"`
}

// ErrorResponse defines API error response format
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// TunnelResponse defines tunnel operation success response format
type TunnelResponse struct {
	Index   int    `json:"index"`
	Tunnel  Tunnel `json:"tunnel"`
	Message string `json:"message"`
}

// PortSuggestion is the first free ssh port counting up from 22222
type PortSuggestion struct {
	Port int `json:"port"`
}
