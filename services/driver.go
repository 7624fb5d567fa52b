package services

import (
	"context"
	"time"

	"tunnel-keeper/internal/identity"
	"tunnel-keeper/internal/logger"
)

// Tickable is advanced once per driver interval
type Tickable interface {
	Tick(ctx context.Context)
}

/**
 * Driver runs the fixed-interval tick loop
 * @description
 * - The ticker only exists while the identity provider reports a login
 * - Identity changes are handled on the loop goroutine, so they never race a tick
 */
type Driver struct {
	target     Tickable
	identity   identity.Provider
	interval   func() time.Duration
	onIdentity func(login string, ok bool)
}

func NewDriver(target Tickable, provider identity.Provider, interval func() time.Duration) *Driver {
	return &Driver{target: target, identity: provider, interval: interval}
}

// OnIdentityChange 设置登录身份变化时的回调，在 Run 之前调用
func (d *Driver) OnIdentityChange(fn func(login string, ok bool)) {
	d.onIdentity = fn
}

/**
 * Run the loop until ctx is done
 * @param {context.Context} ctx - Stops the loop
 * @returns {error} ctx.Err() when stopped
 */
func (d *Driver) Run(ctx context.Context) error {
	var ticker *time.Ticker
	var tickC <-chan time.Time
	stop := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tickC = nil, nil
		}
	}
	defer stop()

	resync := func() {
		_, ok := d.identity.Current()
		switch {
		case ok && ticker == nil:
			interval := d.interval()
			if interval <= 0 {
				interval = time.Second
			}
			ticker = time.NewTicker(interval)
			tickC = ticker.C
			logger.Infof("Tunnel ticker started, interval %v", interval)
		case !ok && ticker != nil:
			stop()
			logger.Infof("Tunnel ticker paused, not logged in")
		}
	}
	resync()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.identity.Changes():
			login, ok := d.identity.Current()
			if d.onIdentity != nil {
				d.onIdentity(login, ok)
			}
			resync()
		case <-tickC:
			d.target.Tick(ctx)
		}
	}
}
