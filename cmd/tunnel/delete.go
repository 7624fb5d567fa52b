package tunnel

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:     "delete [index]",
	Aliases: []string{"rm"},
	Short:   "Delete a closed tunnel",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deleteTunnel(args)
	},
}

func deleteTunnel(args []string) error {
	client := newClient()
	defer client.Close()

	index, err := resolveIndex(client, "delete", args)
	if err != nil {
		return err
	}
	if !deleteYes {
		title := fmt.Sprintf("tunnel%d", index)
		if tunnels, err := fetchTunnels(client); err == nil && index >= 0 && index < len(tunnels) {
			title = fmt.Sprintf("tunnel%d(%s)", index, tunnels[index].Title())
		}
		if !confirm(stdin, stdout, fmt.Sprintf("Deleting GCR %s, confirm?", title)) {
			return nil
		}
	}
	resp, err := client.Delete(fmt.Sprintf("/api/v1/tunnels/%d", index), nil)
	if err != nil {
		return err
	}
	return printTunnelResponse(resp)
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Do not ask for confirmation")
	tunnelCmd.AddCommand(deleteCmd)
}
