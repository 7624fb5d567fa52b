package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tunnel-keeper/internal/env"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectConfigDefaults(t *testing.T) {
	cfg := collectConfig(&AppConfig{Tunnel: TunnelConfig{AutoReconnect: ReconnectConfig{MaxTrials: -1}}}, "darwin")

	assert.Equal(t, "127.0.0.1:38222", cfg.Server.Address)
	assert.Equal(t, "tunnel-keeper.sock", cfg.Server.Socket)
	assert.Equal(t, 50, cfg.Log.MaxSize)
	assert.Equal(t, time.Second, cfg.Tunnel.TickInterval)
	assert.Equal(t, 60*time.Second, cfg.Tunnel.BastionTimeout)
	assert.Equal(t, 0, cfg.Tunnel.AutoReconnect.MaxTrials)
	assert.Equal(t, env.ScriptDir(), cfg.Tunnel.ScriptDir)
	assert.Equal(t, "bash", cfg.Tunnel.Bastion.Command)
	assert.Equal(t, "{{.ScriptDir}}/gdl.sh", cfg.Tunnel.Bastion.Args[0])
	assert.Equal(t, "ssh", cfg.Tunnel.SSH.Command)
	assert.Equal(t, ImageConfig{Bastion: "Python", SSH: "ssh"}, cfg.Tunnel.Image)
}

func TestCollectConfigWindows(t *testing.T) {
	cfg := collectConfig(&AppConfig{}, "windows")
	assert.Equal(t, "pwsh.exe", cfg.Tunnel.Bastion.Command)
	assert.Contains(t, cfg.Tunnel.Bastion.Args, "-tunnel")
	assert.Equal(t, ImageConfig{Bastion: "python.exe", SSH: "ssh.exe"}, cfg.Tunnel.Image)
}

func TestCollectConfigKeepsExplicitValues(t *testing.T) {
	cfg := collectConfig(&AppConfig{
		Server: ServerConfig{Address: "127.0.0.1:9000"},
		Tunnel: TunnelConfig{
			TickInterval: 250 * time.Millisecond,
			Bastion:      CommandConfig{Command: "/opt/gdl", Args: []string{"{{.SandboxID}}"}},
			Image:        ImageConfig{Bastion: "gdl"},
		},
	}, "darwin")

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	assert.Equal(t, 250*time.Millisecond, cfg.Tunnel.TickInterval)
	assert.Equal(t, CommandConfig{Command: "/opt/gdl", Args: []string{"{{.SandboxID}}"}}, cfg.Tunnel.Bastion)
	// 只补齐缺失的镜像名
	assert.Equal(t, ImageConfig{Bastion: "gdl", SSH: "ssh"}, cfg.Tunnel.Image)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  mode: debug
tunnel:
  tick_interval: 2s
  auto_reconnect:
    enabled: true
    max_trials: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	old := env.KeeperDir
	env.KeeperDir = dir
	defer func() { env.KeeperDir = old }()

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, 2*time.Second, cfg.Tunnel.TickInterval)
	assert.True(t, cfg.Tunnel.AutoReconnect.Enabled)
	assert.Equal(t, 5, cfg.Tunnel.AutoReconnect.MaxTrials)
	assert.Equal(t, 60*time.Second, cfg.Tunnel.BastionTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}
