package tunnel

import (
	"fmt"

	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open [index]",
	Short: "Open a closed tunnel",
	Long:  `Open a closed tunnel. The server keeps opening it in the background, watch progress with 'tunnel list'`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand("open", args)
	},
}

var closeCmd = &cobra.Command{
	Use:   "close [index]",
	Short: "Close an opened tunnel",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand("close", args)
	},
}

// runCommand 对选中的隧道执行 open/close
func runCommand(action string, args []string) error {
	client := newClient()
	defer client.Close()

	index, err := resolveIndex(client, action, args)
	if err != nil {
		return err
	}
	resp, err := client.Post(fmt.Sprintf("/api/v1/tunnels/%d/%s", index, action), nil)
	if err != nil {
		return err
	}
	return printTunnelResponse(resp)
}

func init() {
	tunnelCmd.AddCommand(openCmd)
	tunnelCmd.AddCommand(closeCmd)
}
