package config

import (
	"errors"
	"strings"
	"sync"
	"time"

	"tunnel-keeper/internal/env"

	"github.com/spf13/viper"
)

/**
 * Server configuration parameters
 * @property {string} address - TCP listening address of the control API (used where unix sockets are unavailable)
 * @property {string} socket - Unix socket file name, relative to the data directory
 * @property {string} mode - gin mode (debug/release/test)
 */
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Socket  string `mapstructure:"socket"`
	Mode    string `mapstructure:"mode"`
}

/**
 * Logging configuration
 * @property {string} level - Log level (debug/info/warn/error)
 * @property {string} path - Log file path, "console" writes to stdout only
 * @property {int} max_size - Megabytes before the log file is rotated
 */
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type ReconnectConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	MaxTrials int  `mapstructure:"max_trials"`
}

// CommandConfig is a command line whose arguments are text/template strings
type CommandConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// ImageConfig names the executables expected to own the tunnel ports
type ImageConfig struct {
	Bastion string `mapstructure:"bastion"`
	SSH     string `mapstructure:"ssh"`
}

type TunnelConfig struct {
	TickInterval   time.Duration   `mapstructure:"tick_interval"`
	BastionTimeout time.Duration   `mapstructure:"bastion_timeout"`
	AutoReconnect  ReconnectConfig `mapstructure:"auto_reconnect"`
	ScriptDir      string          `mapstructure:"script_dir"`
	Bastion        CommandConfig   `mapstructure:"bastion"`
	SSH            CommandConfig   `mapstructure:"ssh"`
	Image          ImageConfig     `mapstructure:"image"`
}

type AppConfig struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Tunnel TunnelConfig `mapstructure:"tunnel"`
}

var ErrConfigNotFound = errors.New("config file not found")

var (
	Config     AppConfig
	configLock sync.RWMutex
)

/**
 * Load application configuration from YAML file
 * @returns {(*AppConfig, error)} Parsed configuration, defaults applied
 * @description
 * - Searches config.yaml in the data directory, then the working directory
 * - Environment variables prefixed with TUNNEL_KEEPER_ override file values
 * - A missing file is not an error, defaults are used instead
 */
func LoadConfig() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(env.KeeperDir)
	v.AddConfigPath(".")
	v.SetEnvPrefix("TUNNEL_KEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return collectConfig(&cfg, currentGOOS), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("tunnel.tick_interval", time.Second)
	v.SetDefault("tunnel.bastion_timeout", 60*time.Second)
	v.SetDefault("tunnel.auto_reconnect.enabled", false)
	v.SetDefault("tunnel.auto_reconnect.max_trials", 3)
}

// collectConfig fills everything the file left empty with per-platform defaults
func collectConfig(cfg *AppConfig, goos string) *AppConfig {
	if cfg.Server.Address == "" {
		cfg.Server.Address = "127.0.0.1:38222"
	}
	if cfg.Server.Socket == "" {
		cfg.Server.Socket = "tunnel-keeper.sock"
	}
	if cfg.Log.MaxSize == 0 {
		cfg.Log.MaxSize = 50
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAge == 0 {
		cfg.Log.MaxAge = 30
	}
	if cfg.Tunnel.TickInterval <= 0 {
		cfg.Tunnel.TickInterval = time.Second
	}
	if cfg.Tunnel.BastionTimeout <= 0 {
		cfg.Tunnel.BastionTimeout = 60 * time.Second
	}
	if cfg.Tunnel.AutoReconnect.MaxTrials < 0 {
		cfg.Tunnel.AutoReconnect.MaxTrials = 0
	}
	if cfg.Tunnel.ScriptDir == "" {
		cfg.Tunnel.ScriptDir = env.ScriptDir()
	}
	if cfg.Tunnel.Bastion.Command == "" {
		cfg.Tunnel.Bastion = defaultBastionCommand(goos)
	}
	if cfg.Tunnel.SSH.Command == "" {
		cfg.Tunnel.SSH.Command = "ssh"
	}
	if cfg.Tunnel.Image.Bastion == "" || cfg.Tunnel.Image.SSH == "" {
		bastion, ssh := defaultImageNames(goos)
		if cfg.Tunnel.Image.Bastion == "" {
			cfg.Tunnel.Image.Bastion = bastion
		}
		if cfg.Tunnel.Image.SSH == "" {
			cfg.Tunnel.Image.SSH = ssh
		}
	}
	return cfg
}

func defaultBastionCommand(goos string) CommandConfig {
	if goos == "windows" {
		return CommandConfig{
			Command: "pwsh.exe",
			Args: []string{"{{.ScriptDir}}\\gdl.ps1", "-tunnel",
				"-num", "{{.SandboxID}}", "-alias", "{{.Login}}", "-port", "{{.BastionPort}}"},
		}
	}
	return CommandConfig{
		Command: "bash",
		Args: []string{"{{.ScriptDir}}/gdl.sh", "-t",
			"-n", "{{.SandboxID}}", "-a", "{{.Login}}", "-p", "{{.BastionPort}}"},
	}
}

func defaultImageNames(goos string) (string, string) {
	switch goos {
	case "windows":
		return "python.exe", "ssh.exe"
	case "darwin":
		return "Python", "ssh"
	default:
		return "python3", "ssh"
	}
}

// App returns a copy of the active configuration
func App() AppConfig {
	configLock.RLock()
	defer configLock.RUnlock()
	return Config
}

/**
 * Reload configuration from disk
 * @returns {error} Returns error if the config file exists but cannot be parsed
 * @description
 * - Replaces the active configuration atomically
 * - Running tunnels pick up new reconnect settings on the next tick
 */
func ReloadConfig() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	configLock.Lock()
	Config = *cfg
	configLock.Unlock()
	return nil
}

func init() {
	cfg, err := LoadConfig()
	if err == nil {
		Config = *cfg
	} else {
		collectConfig(&Config, currentGOOS)
	}
}
