package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"tunnel-keeper/cmd/root"
	"tunnel-keeper/internal/identity"

	"github.com/spf13/cobra"
)

var logoutYes bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored identity",
	Long:  `Remove the stored identity. Tunnel settings stay on disk and come back on the next login.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !logoutYes {
			fmt.Print("Are you sure you want to logout? [y/N]: ")
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
				return nil
			}
		}
		if err := identity.Remove(identity.FilePath()); err != nil {
			return err
		}
		fmt.Println("Logged out")
		notifyServer()
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.Load(identity.FilePath())
		if err != nil {
			return err
		}
		fmt.Println(id.Login())
		return nil
	},
}

func init() {
	logoutCmd.Flags().BoolVarP(&logoutYes, "yes", "y", false, "Do not ask for confirmation")
	root.RootCmd.AddCommand(logoutCmd)
	root.RootCmd.AddCommand(whoamiCmd)
}
