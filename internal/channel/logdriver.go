package channel

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogDialer opens sessions that only log what they would send. A fresh
// pairing first reports a fake token so the pairing endpoints can be exercised.
type LogDialer struct {
	logger *slog.Logger
}

func NewLogDialer(logger *slog.Logger) *LogDialer {
	return &LogDialer{logger: logger.With("component", "LogSession")}
}

func (d *LogDialer) Dial(ctx context.Context, creds []byte, events chan<- SessionEvent) (Session, error) {
	if len(creds) == 0 {
		token := "log-pairing-" + uuid.NewString()
		events <- SessionEvent{Kind: EventQR, QR: token}
		creds = []byte("log-device-" + uuid.NewString())
	}
	events <- SessionEvent{Kind: EventOpened, Credentials: creds}
	return &logSession{logger: d.logger.With("device", string(creds))}, nil
}

type logSession struct {
	logger *slog.Logger
}

func (s *logSession) SetTyping(ctx context.Context, to string, typing bool) error {
	s.logger.DebugContext(ctx, "Typing", "to", to, "typing", typing)
	return nil
}

func (s *logSession) SendText(ctx context.Context, to, body string) error {
	s.logger.InfoContext(ctx, "Message simulated", "to", to, "body", body)
	return nil
}

func (s *logSession) Logout(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Logged out")
	return nil
}

func (s *logSession) Close() error { return nil }
