package misc

import (
	"fmt"
	"io"
	"os"
	"time"

	"tunnel-keeper/cmd/root"
	"tunnel-keeper/internal/models"
	"tunnel-keeper/internal/rpc"
	"tunnel-keeper/internal/utils"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cobra"
)

var showConfig bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Displays tunnel-keeper server states",
	Long:  `Displays start time, login identity, tunnels and environment of the running server`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := rpc.NewHTTPClient(nil)
		defer client.Close()
		state, err := fetchServerState(client)
		if err != nil {
			return err
		}
		displayStates(os.Stdout, state, showConfig)
		return nil
	},
}

const stateExample = `  # Display server states
  tunnel-keeper state
  # Include the active configuration
  tunnel-keeper state --config`

func fetchServerState(client rpc.HTTPClient) (models.ServerState, error) {
	var state models.ServerState
	resp, err := client.Get("/api/v1/state", nil)
	if err != nil {
		return state, err
	}
	if err := resp.Err(); err != nil {
		return state, err
	}
	if err := resp.Decode(&state); err != nil {
		return state, fmt.Errorf("failed to unmarshal state response: %w", err)
	}
	return state, nil
}

func displayStates(w io.Writer, state models.ServerState, withConfig bool) {
	fmt.Fprintln(w, "=== Tunnel Keeper Server States ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "启动时间: %s\n", state.StartTime.Format(time.RFC3339))
	if !state.Supported {
		fmt.Fprintf(w, "平台: %s (GCR tunnel is not supported)\n", state.Env.Platform)
	}
	if state.Identity.LoggedIn {
		fmt.Fprintf(w, "登录身份: %s\n", state.Identity.Login)
	} else {
		fmt.Fprintln(w, "登录身份: 未登录")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "=== 隧道(%d) ===\n", len(state.Tunnels))
	var rows []*orderedmap.OrderedMap
	for i, t := range state.Tunnels {
		row := orderedmap.New()
		row.Set("index", i)
		row.Set("host", t.HostName())
		row.Set("ssh_port", t.SSHPort)
		row.Set("state", string(t.State))
		row.Set("retry", t.RetryCount)
		rows = append(rows, row)
	}
	utils.FprintFormat(w, rows)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== 环境信息 ===")
	fmt.Fprintf(w, "KeeperDir: %v\n", state.Env.KeeperDir)
	fmt.Fprintf(w, "Version: %v\n", state.Env.Version)
	fmt.Fprintf(w, "Daemon: %v\n", state.Env.Daemon)

	if withConfig {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== 配置 ===")
		fmt.Fprintln(w, state.Config)
	}
}

func init() {
	stateCmd.Flags().SortFlags = false
	stateCmd.Flags().BoolVarP(&showConfig, "config", "c", false, "Also print the active configuration")
	stateCmd.Example = stateExample
	root.RootCmd.AddCommand(stateCmd)
}
