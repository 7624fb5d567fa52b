package tunnel

import (
	"fmt"

	"tunnel-keeper/internal/models"
	"tunnel-keeper/internal/utils"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cobra"
)

var listState string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tunnels of the logged-in identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listTunnels()
	},
}

/**
 *	Fields displayed in list format
 */
type Tunnel_Columns struct {
	Index       int    `json:"index"`
	Host        string `json:"host"`
	SSHPort     int    `json:"ssh_port"`
	BastionPort int    `json:"bastion_port"`
	State       string `json:"state"`
	BastionPid  int    `json:"bastion_pid"`
	SSHPid      int    `json:"ssh_pid"`
	Retry       int    `json:"retry"`
}

/**
 * List tunnels with optional state filter
 * @returns {error} Returns error if listing fails, nil on success
 * @description
 * - Index column is the index accepted by open/close/delete
 * - Uses utils.PrintFormat for formatted output
 */
func listTunnels() error {
	client := newClient()
	defer client.Close()

	tunnels, err := fetchTunnels(client)
	if err != nil {
		return err
	}
	if listState != "" && !models.TunnelState(listState).Valid() {
		return fmt.Errorf("unknown state %q", listState)
	}

	var dataList []*orderedmap.OrderedMap
	for i, t := range tunnels {
		if listState != "" && string(t.State) != listState {
			continue
		}
		row := Tunnel_Columns{
			Index:       i,
			Host:        t.HostName(),
			SSHPort:     t.SSHPort,
			BastionPort: t.BastionPort,
			State:       string(t.State),
			BastionPid:  t.BastionProcID,
			SSHPid:      t.SSHProcID,
			Retry:       t.RetryCount,
		}
		recordMap, _ := utils.StructToOrderedMap(row)
		dataList = append(dataList, recordMap)
	}
	if len(dataList) == 0 {
		fmt.Fprintln(stdout, "No tunnels")
		return nil
	}
	utils.FprintFormat(stdout, dataList)
	return nil
}

func init() {
	listCmd.Flags().SortFlags = false
	listCmd.Flags().StringVarP(&listState, "state", "s", "", "Only show tunnels in this state")
	tunnelCmd.AddCommand(listCmd)
}
