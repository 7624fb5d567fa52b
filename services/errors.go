package services

import (
	"errors"
	"fmt"
)

// 注册表校验错误
var (
	ErrInvalidSandboxID = errors.New("invalid_sandbox_id")
	ErrInvalidPort      = errors.New("invalid_port")
	ErrPortOccupied     = errors.New("port_occupied")
	ErrNotClosed        = errors.New("not_closed")
	ErrIndexOutOfRange  = errors.New("index_out_of_range")
)

// 引擎命令错误
var (
	ErrNotOpened        = errors.New("not_opened")
	ErrNotAuthenticated = errors.New("not_authenticated")
)

// 启动失败原因
var (
	ErrScriptForbidden     = errors.New("script_forbidden")
	ErrLaunchTimeout       = errors.New("timeout")
	ErrCLIMissing          = errors.New("cli_missing")
	ErrSSHExtensionMissing = errors.New("ssh_extension_missing")
	ErrKeyPathMissing      = errors.New("key_path_missing")
	ErrSpawnFailed         = errors.New("spawn_failed")
	ErrSSHExited           = errors.New("ssh_exited")
	ErrPlatformUnsupported = errors.New("platform_unsupported")
)

// ExitCodeError is a bastion helper exit code outside the known taxonomy
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit_code_%d", e.Code)
}

// exitCodeError maps helper exit codes to launch errors
func exitCodeError(code int) error {
	switch code {
	case 2:
		return ErrCLIMissing
	case 3:
		return ErrSSHExtensionMissing
	case 4:
		return ErrKeyPathMissing
	default:
		return &ExitCodeError{Code: code}
	}
}

// failureText is the user facing reason of a launch failure
func failureText(err error) string {
	var exitErr *ExitCodeError
	switch {
	case errors.Is(err, ErrLaunchTimeout):
		return "Command timeout."
	case errors.Is(err, ErrScriptForbidden):
		return "Powershell script forbidden."
	case errors.Is(err, ErrSpawnFailed):
		return "Powershell spawning failed."
	case errors.Is(err, ErrCLIMissing):
		return "Azure CLI not installed."
	case errors.Is(err, ErrSSHExtensionMissing):
		return "az ssh extension not installed."
	case errors.Is(err, ErrKeyPathMissing):
		return "Keypath not found."
	case errors.Is(err, ErrPlatformUnsupported):
		return "Platform not supported."
	case errors.Is(err, ErrNotAuthenticated):
		return "Not logged in."
	case errors.Is(err, ErrSSHExited):
		return "SSH tunnel failed."
	case errors.As(err, &exitErr):
		return fmt.Sprintf("code %d", exitErr.Code)
	default:
		return err.Error()
	}
}

// failureReason is the metric label of a launch failure
func failureReason(err error) string {
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return "exit_code"
	}
	for _, known := range []error{ErrLaunchTimeout, ErrScriptForbidden, ErrSpawnFailed, ErrCLIMissing,
		ErrSSHExtensionMissing, ErrKeyPathMissing, ErrPlatformUnsupported, ErrNotAuthenticated, ErrSSHExited} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "other"
}
