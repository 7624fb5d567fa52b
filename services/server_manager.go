package services

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"tunnel-keeper/internal/config"
	"tunnel-keeper/internal/env"
	"tunnel-keeper/internal/identity"
	"tunnel-keeper/internal/logger"
	"tunnel-keeper/internal/models"
)

type Server struct {
	identity  *identity.FileProvider
	tunnels   *TunnelService
	startTime time.Time
	cancel    context.CancelFunc
}

/**
 * Create new server instance
 * @returns {*Server} Returns new server instance
 * @description
 * - Identity comes from identity.json in the data directory
 * - The tunnel service is bound to the active configuration
 */
func NewServer() *Server {
	provider := identity.NewFileProvider(identity.FilePath())
	return NewServerWith(provider, NewTunnelService(provider))
}

// NewServerWith 使用给定的身份来源与隧道服务创建服务实例
func NewServerWith(provider *identity.FileProvider, tunnels *TunnelService) *Server {
	return &Server{
		identity:  provider,
		tunnels:   tunnels,
		startTime: time.Now(),
	}
}

func (s *Server) Tunnels() *TunnelService {
	return s.tunnels
}

/**
 * Start background work: identity watching and the tunnel ticker
 * @param {context.Context} ctx - Parent context of all background work
 * @returns {error} Returns error if the identity watcher cannot be created
 */
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	if s.tunnels.Supported() {
		if err := s.identity.Watch(ctx); err != nil {
			logger.Warnf("Identity watcher unavailable, login changes need a restart: %v", err)
		}
	}
	s.tunnels.Start(ctx)
	return nil
}

// Stop 停止后台任务，已建立的隧道进程继续运行
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.tunnels.Stop()
}

func configToString(v interface{}) string {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(jsonData)
}

func (s *Server) GetState() models.ServerState {
	login, ok := s.identity.Current()
	return models.ServerState{
		StartTime: s.startTime,
		Supported: s.tunnels.Supported(),
		Identity:  models.IdentityState{LoggedIn: ok, Login: login},
		Tunnels:   s.tunnels.List(),
		Env: models.EnvConfig{
			Daemon:    env.Daemon,
			Version:   env.Version,
			KeeperDir: env.KeeperDir,
			Platform:  runtime.GOOS,
		},
		Config: configToString(config.App()),
	}
}

/**
* Get health check response for the server
* @returns {models.HealthResponse} Server status, uptime and tunnel statistics
 */
func (s *Server) GetHealthz() models.HealthResponse {
	tunnels := s.tunnels.List()
	opened := 0
	for _, t := range tunnels {
		if t.State == models.StateOpened {
			opened++
		}
	}
	_, loggedIn := s.identity.Current()
	return models.HealthResponse{
		Version:   env.Version,
		StartTime: s.startTime.Format(time.RFC3339),
		Status:    "UP",
		Uptime:    time.Since(s.startTime).String(),
		Supported: s.tunnels.Supported(),
		LoggedIn:  loggedIn,
		Metrics: models.Metrics{
			TotalRequests: GetTotalRequestCount(),
			ErrorRequests: GetTotalErrorCount(),
			TotalTunnels:  len(tunnels),
			OpenedTunnels: opened,
		},
	}
}

// Reload 重新读取配置文件与登录身份，新的重连与超时设置在下一次 tick 生效
func (s *Server) Reload() error {
	if err := config.ReloadConfig(); err != nil {
		return err
	}
	logger.Infof("Configuration reloaded")
	s.identity.Reload()
	return nil
}
