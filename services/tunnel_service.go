package services

import (
	"context"
	"runtime"
	"sync"
	"time"

	"tunnel-keeper/internal/config"
	"tunnel-keeper/internal/identity"
	"tunnel-keeper/internal/logger"
	"tunnel-keeper/internal/models"
	"tunnel-keeper/internal/store"
)

// PlatformSupported 只有 Windows 与 macOS 提供堡垒机脚本
func PlatformSupported(goos string) bool {
	return goos == "windows" || goos == "darwin"
}

/**
 * TunnelService wires registry, engine and driver for the logged-in identity
 * @description
 * - On unsupported platforms it only publishes one unsupported notice and stays inert
 * - Add and Delete push the whole list, engine mutations push single tunnels
 */
type TunnelService struct {
	goos      string
	hub       *EventHub
	reg       *Registry
	engine    *Engine
	driver    *Driver
	identity  identity.Provider
	storeFor  func(login string) SettingsStore
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
}

/**
 * Create the tunnel service with OS prober and process launcher
 * @param {identity.Provider} provider - Supplies the login identity
 * @returns {*TunnelService} Service bound to the active configuration
 */
func NewTunnelService(provider identity.Provider) *TunnelService {
	tunnelConfig := func() config.TunnelConfig { return config.App().Tunnel }
	return NewTunnelServiceWith(runtime.GOOS, provider, NewOSProber(), NewProcessLauncher(tunnelConfig),
		func(login string) SettingsStore { return store.NewUserStore(login) }, tunnelConfig)
}

/**
 * Create the tunnel service from its parts
 * @param {string} goos - Platform the service behaves as
 * @param {identity.Provider} provider - Supplies the login identity
 * @param {Prober} prober - Listener and liveness probe
 * @param {Launcher} launcher - Starts the bastion helper and ssh
 * @param {func(string) SettingsStore} storeFor - Settings store of one login
 * @param {func() config.TunnelConfig} cfg - Current tunnel configuration
 * @returns {*TunnelService} Service, not started
 */
func NewTunnelServiceWith(goos string, provider identity.Provider, prober Prober, launcher Launcher,
	storeFor func(login string) SettingsStore, cfg func() config.TunnelConfig) *TunnelService {
	hub := NewEventHub()
	reg := NewRegistry(nil)
	engine := NewEngine(reg, prober, launcher, hub, provider.Current, cfg)
	s := &TunnelService{
		goos:     goos,
		hub:      hub,
		reg:      reg,
		engine:   engine,
		identity: provider,
		storeFor: storeFor,
	}
	s.driver = NewDriver(engine, provider, func() time.Duration { return cfg().TickInterval })
	s.driver.OnIdentityChange(func(string, bool) { s.rebind() })
	return s
}

func (s *TunnelService) Supported() bool {
	return PlatformSupported(s.goos)
}

func (s *TunnelService) Hub() *EventHub {
	return s.hub
}

func (s *TunnelService) Engine() *Engine {
	return s.engine
}

// rebind 按当前登录身份重新加载隧道列表
func (s *TunnelService) rebind() {
	login, ok := s.identity.Current()
	var st SettingsStore
	if ok {
		st = s.storeFor(login)
	}
	if err := s.reg.Rebind(st); err != nil {
		logger.Errorf("Failed to load tunnels of %s: %v", login, err)
	}
	s.hub.AllTunnels(s.reg.List())
}

/**
 * Start the service
 * @param {context.Context} ctx - Parent of the driver loop
 * @description
 * - Unsupported platform: publish the notice, no ticker
 * - Otherwise load the current identity's tunnels and start the driver
 */
func (s *TunnelService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if !s.Supported() {
			s.hub.Unsupported()
			return
		}
		s.rebind()
		ctx, s.cancel = context.WithCancel(ctx)
		s.done = make(chan struct{})
		go func() {
			defer close(s.done)
			s.driver.Run(ctx)
		}()
	})
}

// Stop 停止驱动循环并等待在途处理结束，隧道进程保持运行
func (s *TunnelService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.engine.Wait()
}

func (s *TunnelService) requireLogin() error {
	if _, ok := s.identity.Current(); !ok {
		return ErrNotAuthenticated
	}
	return nil
}

func (s *TunnelService) Add(sandboxID, port string) (int, models.Tunnel, error) {
	if err := s.requireLogin(); err != nil {
		return -1, models.Tunnel{}, err
	}
	index, t, err := s.reg.Add(sandboxID, port)
	if err != nil {
		return -1, models.Tunnel{}, err
	}
	s.hub.AllTunnels(s.reg.List())
	return index, t, nil
}

func (s *TunnelService) Delete(index int) (models.Tunnel, error) {
	if err := s.requireLogin(); err != nil {
		return models.Tunnel{}, err
	}
	t, err := s.reg.Delete(index)
	if err != nil {
		return models.Tunnel{}, err
	}
	s.hub.AllTunnels(s.reg.List())
	return t, nil
}

func (s *TunnelService) Open(index int) error {
	if err := s.requireLogin(); err != nil {
		return err
	}
	return s.engine.Open(index)
}

func (s *TunnelService) Close(index int) error {
	if err := s.requireLogin(); err != nil {
		return err
	}
	return s.engine.Close(index)
}

func (s *TunnelService) List() []models.Tunnel {
	return s.reg.List()
}

func (s *TunnelService) Detail(index int) (models.TunnelDetail, error) {
	return s.reg.Detail(index)
}

func (s *TunnelService) SuggestPort() int {
	return s.reg.SuggestPort()
}

// Eligible 返回可执行指定操作的隧道下标：open 需要 closed，close 需要 opened，delete 不限
func (s *TunnelService) Eligible(action string) []int {
	switch action {
	case "open":
		return s.reg.Eligible(func(t models.Tunnel) bool { return t.State == models.StateClosed })
	case "close":
		return s.reg.Eligible(func(t models.Tunnel) bool { return t.State == models.StateOpened })
	default:
		return s.reg.Eligible(nil)
	}
}
