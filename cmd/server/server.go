package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tunnel-keeper/cmd/root"
	"tunnel-keeper/controllers"
	"tunnel-keeper/internal/config"
	"tunnel-keeper/internal/env"
	"tunnel-keeper/internal/logger"
	"tunnel-keeper/internal/middleware"
	"tunnel-keeper/internal/rpc"
	"tunnel-keeper/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var listenAddress string

var serverCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tunnel keeper server",
	Long:  `Run the background server that owns all tunnels, drives their lifecycle and serves the local API`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := startServer(ctx); err != nil {
			logger.Fatal(err)
		}
	},
}

/**
 * Build the router with all controllers
 * @param {*services.Server} server - Server owning the tunnel service
 * @returns {*gin.Engine} Router
 */
func newRouter(server *services.Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.MetricsMiddleware(), middleware.RequestLogger())
	controllers.NewAPIController(server).RegisterRoutes(router)
	controllers.NewTunnelController(server.Tunnels()).RegisterRoutes(router)
	return router
}

/**
 * Run the server until ctx is cancelled
 * @param {context.Context} ctx - Cancelled on SIGINT/SIGTERM
 * @returns {error} Returns error if no listener could be created
 * @description
 * - Listens on the unix socket in the keeper directory when supported, and on the tcp address
 * - Tunnel processes are left running on shutdown, the next server adopts them
 */
func startServer(ctx context.Context) error {
	env.Daemon = true
	cfg := config.App()
	gin.SetMode(cfg.Server.Mode)

	server := services.NewServer()
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}
	defer server.Stop()

	var addrs []ListenAddr
	if IsUnixSocketSupported() {
		addrs = append(addrs, ListenAddr{Network: "unix", Address: rpc.GetSocketPath(cfg.Server.Socket)})
	}
	address := cfg.Server.Address
	if listenAddress != "" {
		address = listenAddress
	}
	addrs = append(addrs, ListenAddr{Network: "tcp", Address: address})

	listeners, err := CreateListeners(addrs)
	if len(listeners) == 0 {
		return fmt.Errorf("no listener available: %w", err)
	}

	httpServer := &http.Server{
		Handler:           newRouter(server),
		ReadHeaderTimeout: 10 * time.Second,
	}
	var wg sync.WaitGroup
	for _, l := range listeners {
		wg.Add(1)
		go func(l net.Listener) {
			defer wg.Done()
			if err := httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("Server on %s stopped: %v", l.Addr(), err)
			}
		}(l)
	}
	logger.Infof("tunnel-keeper %s started (pid %d)", env.Version, os.Getpid())

	<-ctx.Done()
	logger.Infof("Shutting down...")
	// SSE 连接不会自己结束，超时后强制关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		httpServer.Close()
	}
	wg.Wait()
	return nil
}

func init() {
	serverCmd.Flags().StringVarP(&listenAddress, "listen", "l", "", "TCP listen address, overrides server.address")
	root.RootCmd.AddCommand(serverCmd)
}
