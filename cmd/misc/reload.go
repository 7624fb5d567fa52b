package misc

import (
	"fmt"

	"tunnel-keeper/cmd/root"
	"tunnel-keeper/internal/rpc"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload server configuration",
	Long:  `Ask the running tunnel-keeper server to re-read config.yaml and the login identity`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reloadServerConfig(rpc.NewHTTPClient(nil))
	},
}

/**
 * Reload server configuration
 * @param {rpc.HTTPClient} client - Server client
 * @returns {error} Returns error if the server is unreachable or rejects the reload
 * @description
 * - New reconnect and timeout settings apply from the next tick
 */
func reloadServerConfig(client rpc.HTTPClient) error {
	defer client.Close()

	resp, err := client.Post("/api/v1/reload", nil)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	fmt.Printf("Successfully reloaded server configuration, status code: %d\n", resp.StatusCode)
	return nil
}

func init() {
	root.RootCmd.AddCommand(reloadCmd)
}
