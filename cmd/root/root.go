package root

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "tunnel-keeper",
	Short: "GCR sandbox ssh tunnel manager",
	Long: `tunnel-keeper opens ssh tunnels to GCR sandboxes through the Azure bastion,
keeps them alive in the background and reconnects them when they drop`,
	SilenceUsage: true,
}
