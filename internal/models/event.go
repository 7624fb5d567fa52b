package models

type EventKind string

const (
	EventTunnelChanged EventKind = "update"
	EventAllTunnels    EventKind = "setContent"
	EventUnsupported   EventKind = "unsupported"
	EventMessage       EventKind = "message"
)

type MessageLevel string

const (
	LevelInfo  MessageLevel = "info"
	LevelError MessageLevel = "error"
	// LevelPrompt asks the user to confirm Action on Index
	LevelPrompt MessageLevel = "prompt"
)

/**
 * Event pushed to UI subscribers
 * @property {EventKind} kind - update / setContent / unsupported / message
 * @property {int} index - Tunnel index for update and prompt events
 */
type Event struct {
	Kind    EventKind    `json:"kind"`
	Index   int          `json:"index"`
	Tunnel  *Tunnel      `json:"tunnel,omitempty"`
	Tunnels []Tunnel     `json:"tunnels,omitempty"`
	Level   MessageLevel `json:"level,omitempty"`
	Message string       `json:"message,omitempty"`
	Action  string       `json:"action,omitempty"`
}
