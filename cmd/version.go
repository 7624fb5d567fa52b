package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"tunnel-keeper/cmd/root"
	"tunnel-keeper/internal/env"
	"tunnel-keeper/internal/models"
	"tunnel-keeper/internal/rpc"
	"tunnel-keeper/services"

	"github.com/spf13/cobra"
)

// 构建时通过 -ldflags -X 注入
var (
	BuildTime     = ""
	BuildTag      = ""
	BuildCommitId = ""
)

var withServer bool

func printVersions(w io.Writer) {
	fmt.Fprintf(w, "Version %s\n", env.Version)
	fmt.Fprintf(w, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "Build Tag: %s\n", BuildTag)
	fmt.Fprintf(w, "Build Commit ID: %s\n", BuildCommitId)
	support := "supported"
	if !services.PlatformSupported(runtime.GOOS) {
		support = "not supported"
	}
	fmt.Fprintf(w, "Platform: %s/%s (GCR tunnel %s)\n", runtime.GOOS, runtime.GOARCH, support)
}

// printServerVersion 查询正在运行的服务版本，服务未启动时只给出提示
func printServerVersion(w io.Writer, client rpc.HTTPClient) {
	defer client.Close()
	resp, err := client.Get("/healthz", nil)
	if err == nil {
		err = resp.Err()
	}
	var health models.HealthResponse
	if err == nil {
		err = resp.Decode(&health)
	}
	if err != nil {
		fmt.Fprintf(w, "Server: unavailable (%v)\n", err)
		return
	}
	fmt.Fprintf(w, "Server: %s, up %s\n", health.Version, health.Uptime)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `The 'version' command shows version details including git commit, build time and platform support`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printVersions(os.Stdout)
		if withServer {
			cfg := rpc.DefaultHTTPConfig()
			cfg.Retries = 0
			printServerVersion(os.Stdout, rpc.NewHTTPClient(cfg))
		}
	},
}

func init() {
	versionCmd.Flags().BoolVarP(&withServer, "server", "s", false, "Also query the running server")
	versionCmd.Example = `  tunnel-keeper version
  tunnel-keeper version --server`
	root.RootCmd.AddCommand(versionCmd)
}
