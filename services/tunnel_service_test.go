package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"tunnel-keeper/internal/config"
	"tunnel-keeper/internal/identity"
	"tunnel-keeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeSet struct {
	mu     sync.Mutex
	stores map[string]*memStore
}

func (s *storeSet) storeFor(login string) SettingsStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stores == nil {
		s.stores = make(map[string]*memStore)
	}
	st, ok := s.stores[login]
	if !ok {
		st = &memStore{}
		s.stores[login] = st
	}
	return st
}

func newTestService(goos string, provider identity.Provider) (*TunnelService, *fakeProber, *fakeLauncher) {
	prober := newFakeProber()
	launcher := &fakeLauncher{}
	stores := &storeSet{}
	cfg := config.TunnelConfig{
		TickInterval:   5 * time.Millisecond,
		BastionTimeout: time.Second,
		AutoReconnect:  config.ReconnectConfig{MaxTrials: 3},
	}
	svc := NewTunnelServiceWith(goos, provider, prober, launcher, stores.storeFor,
		func() config.TunnelConfig { return cfg })
	return svc, prober, launcher
}

func TestTunnelServiceUnsupportedPlatform(t *testing.T) {
	svc, prober, _ := newTestService("linux", identity.NewStatic("REDMOND.alice"))
	events, cancel := svc.Hub().Subscribe()
	defer cancel()

	assert.False(t, svc.Supported())
	svc.Start(context.Background())
	svc.Start(context.Background())
	defer svc.Stop()

	ev := <-events
	assert.Equal(t, models.EventUnsupported, ev.Kind)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, events, 0, "unsupported is published once and nothing else follows")
	assert.True(t, svc.Hub().IsUnsupported())
	assert.Zero(t, prober.probeCount())
	assert.Empty(t, svc.List())
}

func TestPlatformSupported(t *testing.T) {
	assert.True(t, PlatformSupported("windows"))
	assert.True(t, PlatformSupported("darwin"))
	assert.False(t, PlatformSupported("linux"))
	assert.False(t, PlatformSupported("freebsd"))
}

func TestTunnelServiceFollowsIdentity(t *testing.T) {
	provider := identity.NewStatic("REDMOND.alice")
	svc, _, launcher := newTestService("darwin", provider)
	svc.Start(context.Background())
	defer svc.Stop()

	index, tun, err := svc.Add("1234", "22345")
	require.NoError(t, err)
	assert.Equal(t, 0, index)
	assert.Equal(t, 2345, tun.BastionPort)
	assert.Equal(t, 22222, svc.SuggestPort())

	require.NoError(t, svc.Open(0))
	require.Eventually(t, func() bool {
		bastionCalls, _ := launcher.calls()
		return bastionCalls == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, models.StateBastionOpening, svc.List()[0].State)
	assert.Empty(t, svc.Eligible("open"))
	assert.Equal(t, []int{0}, svc.Eligible("delete"))

	// 切换身份后加载对方的列表
	provider.Set("FAREAST.bob")
	require.Eventually(t, func() bool { return len(svc.List()) == 0 }, 2*time.Second, 5*time.Millisecond)

	provider.Set("REDMOND.alice")
	require.Eventually(t, func() bool { return len(svc.List()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1234, svc.List()[0].SandboxID)

	provider.Set("")
	require.Eventually(t, func() bool { return len(svc.List()) == 0 }, 2*time.Second, 5*time.Millisecond)
	_, _, err = svc.Add("1235", "22346")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.ErrorIs(t, svc.Open(0), ErrNotAuthenticated)
	_, err = svc.Delete(0)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestTunnelServiceAddPublishesList(t *testing.T) {
	svc, _, _ := newTestService("darwin", identity.NewStatic("REDMOND.alice"))
	events, cancel := svc.Hub().Subscribe()
	defer cancel()
	svc.Start(context.Background())
	defer svc.Stop()

	ev := <-events
	assert.Equal(t, models.EventAllTunnels, ev.Kind)
	assert.Empty(t, ev.Tunnels)

	_, _, err := svc.Add("1234", "22345")
	require.NoError(t, err)
	ev = <-events
	assert.Equal(t, models.EventAllTunnels, ev.Kind)
	assert.Len(t, ev.Tunnels, 1)

	_, err = svc.Delete(0)
	require.NoError(t, err)
	ev = <-events
	assert.Equal(t, models.EventAllTunnels, ev.Kind)
	assert.Empty(t, ev.Tunnels)
}
