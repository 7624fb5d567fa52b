//go:build darwin

package utils

import (
	"context"
	"errors"
	"os/exec"
)

func findListeners(ctx context.Context, proto NetProtocol, addr string, port int, image string) ([]int, error) {
	family := "-i4TCP"
	if proto == ProtoTCP6 {
		family = "-i6TCP"
	}
	args := []string{"-anP", family, "-sTCP:LISTEN"}
	if image != "" {
		args = append(args, "-c"+image)
	}
	out, err := exec.CommandContext(ctx, "lsof", args...).Output()
	if err != nil {
		// lsof 未找到任何匹配时退出码为1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && len(out) == 0 {
			return []int{}, nil
		}
		return []int{}, err
	}
	return parseLsof(string(out), addr, port), nil
}
