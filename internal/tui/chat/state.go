package chat

import "time"

// ChatState is the input state shown in the footer.
type ChatState int

const (
	StateIdle       ChatState = iota // ready for input
	StateBusy                        // command running or waiting for the first token
	StateStreaming                   // response arriving
	StateEscPending                  // waiting for a second esc
	StateBrowsing                    // walking the input history
)

var stateNames = [...]string{"idle", "busy", "streaming", "esc_pending", "browsing"}

func (s ChatState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// EscAction is what a second esc press does.
type EscAction int

const (
	EscActionClear EscAction = iota
	EscActionExit
)

// escState remembers the first esc press of a double press.
type escState struct {
	active    bool
	pressedAt time.Time
	action    EscAction
}

// pending reports whether a second press at now completes the gesture.
func (e escState) pending(now time.Time) bool {
	return e.active && now.Sub(e.pressedAt) < escDoublePress
}
