package env

import (
	"os"
	"path/filepath"
	"runtime"
)

// Daemon is set when the process runs as the background tunnel server
var Daemon bool = false

// (default: %USERPROFILE%/.tunnel-keeper on Windows, $HOME/.tunnel-keeper elsewhere)
var KeeperDir string = GetKeeperDir()

/**
 * Get tunnel-keeper data directory path
 * @returns {string} Returns the data directory path
 * @description
 * - TUNNEL_KEEPER_HOME overrides the default location under the user's home
 */
func GetKeeperDir() string {
	if dir := os.Getenv("TUNNEL_KEEPER_HOME"); dir != "" {
		return dir
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".tunnel-keeper")
}

// UserDataDir is the root of per-identity tunnel settings
func UserDataDir() string {
	return filepath.Join(KeeperDir, "userdata")
}

// ScriptDir holds the bastion helper scripts (gdl.ps1 / gdl.sh)
func ScriptDir() string {
	return filepath.Join(KeeperDir, "script", "gcr_tunnel")
}

// NullDevice is the path handed to ssh as known-hosts file
func NullDevice() string {
	if runtime.GOOS == "windows" {
		return `\\.\NUL`
	}
	return "/dev/null"
}

// Version 由构建参数 -X tunnel-keeper/internal/env.Version 注入
var Version = "dev"
