package services

import (
	"sync"

	"tunnel-keeper/internal/logger"
	"tunnel-keeper/internal/models"
)

// Notifier receives everything the engine wants the UI to know
type Notifier interface {
	TunnelChanged(index int, t models.Tunnel)
	AllTunnels(tunnels []models.Tunnel)
	Unsupported()
	Message(level models.MessageLevel, index int, text string, action string)
}

// subscriberBuffer 单个订阅者可以积压的事件数，超过后丢弃最旧事件
const subscriberBuffer = 64

/**
 * EventHub fans engine events out to UI subscribers
 * @description
 * - Every event is logged, subscribers are optional
 * - A slow subscriber loses its oldest events instead of blocking the engine
 * - The unsupported-platform notice is published at most once
 */
type EventHub struct {
	mu          sync.Mutex
	subscribers map[int]chan models.Event
	nextID      int
	unsupported sync.Once
	isUnsupport bool
}

func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[int]chan models.Event)}
}

/**
 * Subscribe to engine events
 * @returns {(<-chan models.Event, func())} Event channel and the cancel function that closes it
 */
func (h *EventHub) Subscribe() (<-chan models.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan models.Event, subscriberBuffer)
	h.subscribers[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers, id)
			close(ch)
		})
	}
}

func (h *EventHub) publish(ev models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// 丢弃最旧的事件再写入
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func (h *EventHub) TunnelChanged(index int, t models.Tunnel) {
	logger.Infof("Tunnel%d - %s %s retry=%d bastionPid=%d sshPid=%d",
		index, t.Title(), t.State, t.RetryCount, t.BastionProcID, t.SSHProcID)
	snapshot := t
	h.publish(models.Event{Kind: models.EventTunnelChanged, Index: index, Tunnel: &snapshot})
}

func (h *EventHub) AllTunnels(tunnels []models.Tunnel) {
	logger.Debugf("Tunnel list refreshed, %d tunnel(s)", len(tunnels))
	list := append([]models.Tunnel{}, tunnels...)
	h.publish(models.Event{Kind: models.EventAllTunnels, Index: -1, Tunnels: list})
}

func (h *EventHub) Unsupported() {
	h.unsupported.Do(func() {
		h.mu.Lock()
		h.isUnsupport = true
		h.mu.Unlock()
		logger.Warnf("GCR tunnel is not supported on this platform")
		h.publish(models.Event{Kind: models.EventUnsupported, Index: -1})
	})
}

// IsUnsupported 是否已经发布过平台不支持通知
func (h *EventHub) IsUnsupported() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isUnsupport
}

func (h *EventHub) Message(level models.MessageLevel, index int, text string, action string) {
	switch level {
	case models.LevelError:
		logger.Errorf("%s", text)
	default:
		logger.Infof("%s", text)
	}
	h.publish(models.Event{Kind: models.EventMessage, Index: index, Level: level, Message: text, Action: action})
}
