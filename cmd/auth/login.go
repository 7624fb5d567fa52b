package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"tunnel-keeper/cmd/root"
	"tunnel-keeper/internal/identity"
	"tunnel-keeper/internal/logger"
	"tunnel-keeper/internal/rpc"

	"github.com/spf13/cobra"
)

var (
	loginDomain string
	loginAlias  string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Set the identity used to reach GCR sandboxes",
	Long: `Store the account domain and alias; tunnels are kept per identity and the remote
login name is {domain}.{alias}. A running server switches to the new identity automatically.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return login()
	},
}

func login() error {
	reader := bufio.NewReader(os.Stdin)
	if loginDomain == "" {
		fmt.Print("Select your domain (REDMOND/FAREAST) [REDMOND]: ")
		line, _ := reader.ReadString('\n')
		loginDomain = strings.TrimSpace(line)
		if loginDomain == "" {
			loginDomain = "REDMOND"
		}
	}
	if loginAlias == "" {
		fmt.Print("Alias: ")
		line, _ := reader.ReadString('\n')
		loginAlias = strings.TrimSpace(line)
	}
	id := identity.Identity{
		Domain: strings.ToUpper(strings.TrimSpace(loginDomain)),
		Alias:  strings.TrimSpace(strings.Split(loginAlias, "@")[0]),
	}
	if err := identity.Save(identity.FilePath(), id); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", id.Login())
	notifyServer()
	return nil
}

// notifyServer 让正在运行的服务立即重新读取身份，失败不影响命令结果
func notifyServer() {
	cfg := rpc.DefaultHTTPConfig()
	cfg.Retries = 0
	client := rpc.NewHTTPClient(cfg)
	defer client.Close()
	resp, err := client.Post("/api/v1/reload", nil)
	if err != nil {
		logger.Debugf("Server not reachable, identity will be picked up on start: %v", err)
		return
	}
	if err := resp.Err(); err != nil {
		logger.Warnf("Server reload failed: %v", err)
	}
}

func init() {
	loginCmd.Flags().StringVarP(&loginDomain, "domain", "d", "", "Account domain, e.g. REDMOND or FAREAST")
	loginCmd.Flags().StringVarP(&loginAlias, "alias", "a", "", "Account alias")
	root.RootCmd.AddCommand(loginCmd)
}
