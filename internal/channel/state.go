// Package channel owns the stateful outbound messaging session: pairing,
// reconnection, credential persistence and paced delivery.
package channel

import (
	"fmt"
)

type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
)

// States lists every state, for gauges.
var States = []State{StateDisconnected, StateConnecting, StateConnected}

type Event string

const (
	EventDial       Event = "dial"
	EventQR         Event = "qr"
	EventOpened     Event = "opened"
	EventClosed     Event = "closed"
	EventLoggedOut  Event = "logged_out"
	EventDialFailed Event = "dial_failed"
)

var transitions = map[State]map[Event]State{
	StateDisconnected: {
		EventDial:      StateConnecting,
		EventClosed:    StateDisconnected,
		EventLoggedOut: StateDisconnected,
	},
	StateConnecting: {
		EventQR:         StateConnecting,
		EventOpened:     StateConnected,
		EventClosed:     StateDisconnected,
		EventLoggedOut:  StateDisconnected,
		EventDialFailed: StateDisconnected,
	},
	StateConnected: {
		EventClosed:    StateDisconnected,
		EventLoggedOut: StateDisconnected,
	},
}

// Transition returns the state reached from s on e, or an error when e is
// not accepted in s.
func Transition(s State, e Event) (State, error) {
	next, ok := transitions[s][e]
	if !ok {
		return s, fmt.Errorf("channel: event %q not allowed in state %s", e, s)
	}
	return next, nil
}
