package models

import (
	"time"
)

type EnvConfig struct {
	Daemon    bool   `json:"daemon"`
	Version   string `json:"version"`
	KeeperDir string `json:"keeperDir"`
	Platform  string `json:"platform"`
}

type IdentityState struct {
	LoggedIn bool   `json:"loggedIn"`
	Login    string `json:"login,omitempty"`
}

// ServerState 后台服务的运行状态，供 state 命令查看
type ServerState struct {
	StartTime time.Time     `json:"startTime"`
	Supported bool          `json:"supported"`
	Identity  IdentityState `json:"identity"`
	Tunnels   []Tunnel      `json:"tunnels"`
	Env       EnvConfig     `json:"env"`
	Config    string        `json:"config"`
}
