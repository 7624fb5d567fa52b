package tunnel

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"tunnel-keeper/internal/models"
	"tunnel-keeper/internal/rpc"
)

var (
	stdin  = bufio.NewReader(os.Stdin)
	stdout io.Writer = os.Stdout
)

// errNoCandidate 没有可供选择的隧道
type errNoCandidate struct {
	action string
}

func (e errNoCandidate) Error() string {
	return fmt.Sprintf("no tunnel can be %s", e.action)
}

/**
 * Resolve the tunnel index a command applies to
 * @param {rpc.HTTPClient} client - Server client
 * @param {string} action - open, close or delete; decides which tunnels are offered
 * @param {[]string} args - Command arguments, the first one is an explicit index
 * @returns {(int, error)} Selected index
 * @description
 * - An explicit index is passed to the server as is, the server validates it
 * - Otherwise the eligible tunnels are listed and the user picks one
 */
func resolveIndex(client rpc.HTTPClient, action string, args []string) (int, error) {
	if len(args) > 0 {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return -1, fmt.Errorf("invalid tunnel index %q", args[0])
		}
		return index, nil
	}
	tunnels, err := fetchTunnels(client)
	if err != nil {
		return -1, err
	}
	indexes, err := fetchEligible(client, action)
	if err != nil {
		return -1, err
	}
	return promptSelect(stdin, stdout, tunnels, indexes, action)
}

/**
 * Let the user pick one tunnel
 * @param {*bufio.Reader} in - User input, shared by all prompts of one command
 * @param {io.Writer} out - Prompt output
 * @param {[]models.Tunnel} tunnels - Full list, used for titles
 * @param {[]int} indexes - Indexes that may be picked
 * @param {string} action - Verb shown in the prompt
 * @returns {(int, error)} Tunnel index chosen, error on empty input or when nothing is eligible
 */
func promptSelect(in *bufio.Reader, out io.Writer, tunnels []models.Tunnel, indexes []int, action string) (int, error) {
	var candidates []int
	for _, i := range indexes {
		if i >= 0 && i < len(tunnels) {
			candidates = append(candidates, i)
		}
	}
	switch action {
	case "open":
		action = "opened"
	case "close":
		action = "closed"
	default:
		action = "deleted"
	}
	if len(candidates) == 0 {
		return -1, errNoCandidate{action: action}
	}

	allowed := make(map[int]bool, len(candidates))
	fmt.Fprintln(out, "Select tunnel index:")
	for _, i := range candidates {
		allowed[i] = true
		fmt.Fprintf(out, "  %d(%s)\n", i, tunnels[i].Title())
	}
	for {
		fmt.Fprint(out, "Index: ")
		line, err := in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" && err != nil {
			return -1, fmt.Errorf("selection cancelled")
		}
		i, convErr := strconv.Atoi(line)
		if convErr == nil && allowed[i] {
			return i, nil
		}
		if err != nil {
			return -1, fmt.Errorf("invalid choice %q", line)
		}
		fmt.Fprintf(out, "Invalid choice %q\n", line)
	}
}

// confirm 询问 yes/no，默认 no
func confirm(in *bufio.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, _ := in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
