package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"tunnel-keeper/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTicker struct {
	ticks atomic.Int32
}

func (c *countingTicker) Tick(ctx context.Context) {
	c.ticks.Add(1)
}

func TestDriverTicksOnlyWhileLoggedIn(t *testing.T) {
	target := &countingTicker{}
	provider := identity.NewStatic("")
	driver := NewDriver(target, provider, func() time.Duration { return 5 * time.Millisecond })
	changes := make(chan bool, 4)
	driver.OnIdentityChange(func(login string, ok bool) { changes <- ok })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, target.ticks.Load(), "no ticks before login")

	provider.Set("REDMOND.alice")
	assert.True(t, <-changes)
	require.Eventually(t, func() bool { return target.ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	provider.Set("")
	assert.False(t, <-changes)
	paused := target.ticks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, paused, target.ticks.Load(), "no ticks after logout")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop")
	}
}
