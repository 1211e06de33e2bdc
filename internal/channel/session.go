package channel

import (
	"context"
	"strings"
	"unicode"
)

// SessionEvent is reported by a Session while it lives. Credentials, when
// set on an opened event, replace the stored ones.
type SessionEvent struct {
	Kind        Event
	QR          string
	Credentials []byte
	Err         error
}

// Dialer opens a session from stored credentials (nil for a fresh pairing)
// and reports its lifecycle on events until the session ends.
type Dialer interface {
	Dial(ctx context.Context, creds []byte, events chan<- SessionEvent) (Session, error)
}

// Session is one live connection to the messaging network.
type Session interface {
	SetTyping(ctx context.Context, to string, typing bool) error
	SendText(ctx context.Context, to, body string) error
	Logout(ctx context.Context) error
	Close() error
}

// NormalizeDestination keeps only the digits of a phone number.
func NormalizeDestination(to string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, to)
}
