package tunnel

import (
	"fmt"
	"runtime"

	"tunnel-keeper/cmd/root"
	"tunnel-keeper/internal/models"
	"tunnel-keeper/internal/rpc"
	"tunnel-keeper/services"

	"github.com/spf13/cobra"
)

var tunnelCmd = &cobra.Command{
	Use:   "tunnel",
	Short: "Tunnel operations (list, add/delete, open/close)",
	Long:  `Manage the GCR sandbox tunnels of the logged-in identity through the running tunnel-keeper server`,
}

const tunnelExample = `  # add a tunnel to sandbox 1234 on local port 22345
  tunnel-keeper tunnel add 1234 22345
  # open it, choosing interactively
  tunnel-keeper tunnel open`

// newClient 连接本机的 tunnel-keeper 服务
var newClient = func() rpc.HTTPClient {
	return rpc.NewHTTPClient(nil)
}

/**
 * Fetch all tunnels from the server
 * @param {rpc.HTTPClient} client - Server client
 * @returns {([]models.Tunnel, error)} Tunnels in list order
 */
func fetchTunnels(client rpc.HTTPClient) ([]models.Tunnel, error) {
	resp, err := client.Get("/api/v1/tunnels", nil)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var tunnels []models.Tunnel
	if err := resp.Decode(&tunnels); err != nil {
		return nil, fmt.Errorf("invalid tunnel list: %w", err)
	}
	return tunnels, nil
}

// fetchEligible 返回可以执行 action 的隧道下标
func fetchEligible(client rpc.HTTPClient, action string) ([]int, error) {
	resp, err := client.Get("/api/v1/tunnels/eligible", map[string]interface{}{"action": action})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var indexes []int
	if err := resp.Decode(&indexes); err != nil {
		return nil, fmt.Errorf("invalid eligible list: %w", err)
	}
	return indexes, nil
}

/**
 * Print the outcome of a tunnel command
 * @param {*rpc.HTTPResponse} resp - Server response
 * @returns {error} Server error, nil on success
 */
func printTunnelResponse(resp *rpc.HTTPResponse) error {
	if err := resp.Err(); err != nil {
		return err
	}
	var result models.TunnelResponse
	if err := resp.Decode(&result); err != nil {
		return err
	}
	fmt.Printf("%s: tunnel%d %s (%s)\n", result.Message, result.Index, result.Tunnel.Title(), result.Tunnel.State)
	return nil
}

func init() {
	// 不支持的平台不提供隧道命令
	if !services.PlatformSupported(runtime.GOOS) {
		return
	}
	root.RootCmd.AddCommand(tunnelCmd)

	tunnelCmd.Example = tunnelExample
}
