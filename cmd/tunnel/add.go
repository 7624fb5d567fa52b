package tunnel

import (
	"fmt"
	"strconv"
	"strings"

	"tunnel-keeper/internal/models"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add [sandboxID] [port]",
	Short: "Add a tunnel to a GCR sandbox",
	Long: `Add a closed tunnel. Sandbox ID is the last 4 digits of the GCRAZGDL#### host you wish to connect to.
Port is the local port of the tunnel, 5 digits starting with 2; it defaults to the first free port from 22222.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return addTunnel(args)
	},
}

/**
 * Add a tunnel through the server
 * @param {[]string} args - Optional sandbox id and port, prompted for when missing
 * @returns {error} Server or input error
 * @description
 * - Validation happens on the server, the input is sent as typed so leading zeros are kept
 */
func addTunnel(args []string) error {
	client := newClient()
	defer client.Close()

	var sandboxID, port string
	if len(args) > 0 {
		sandboxID = args[0]
	} else {
		fmt.Fprint(stdout, "Sandbox ID (last 4 digits of GCRAZGDL####): ")
		line, _ := stdin.ReadString('\n')
		sandboxID = strings.TrimSpace(line)
	}
	if len(args) > 1 {
		port = args[1]
	} else {
		suggested, err := suggestPort()
		if err != nil {
			return err
		}
		port = strconv.Itoa(suggested)
		if len(args) == 0 {
			fmt.Fprintf(stdout, "Local port [%s]: ", port)
			line, _ := stdin.ReadString('\n')
			if line = strings.TrimSpace(line); line != "" {
				port = line
			}
		}
	}

	resp, err := client.Post("/api/v1/tunnels", &models.CreateTunnelRequest{SandboxID: sandboxID, Port: port})
	if err != nil {
		return err
	}
	return printTunnelResponse(resp)
}

func suggestPort() (int, error) {
	client := newClient()
	defer client.Close()
	resp, err := client.Get("/api/v1/tunnels/suggest-port", nil)
	if err != nil {
		return 0, err
	}
	if err := resp.Err(); err != nil {
		return 0, err
	}
	var suggestion models.PortSuggestion
	if err := resp.Decode(&suggestion); err != nil {
		return 0, err
	}
	return suggestion.Port, nil
}

func init() {
	addCmd.Example = `  tunnel-keeper tunnel add 1234 22345
  tunnel-keeper tunnel add 1234
  tunnel-keeper tunnel add`
	tunnelCmd.AddCommand(addCmd)
}
