package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// WhatsAppDialer opens WhatsApp multi-device sessions. Signal keys live in the
// whatsmeow SQL store; the credential blob is the paired device JID.
type WhatsAppDialer struct {
	container *sqlstore.Container
	log       waLog.Logger
}

func NewWhatsAppDialer(dialect, dsn string, logger *slog.Logger) (*WhatsAppDialer, error) {
	log := slogAdapter{logger: logger.With("component", "whatsmeow")}
	container, err := sqlstore.New(dialect, dsn, log.Sub("store"))
	if err != nil {
		return nil, fmt.Errorf("open whatsapp store: %w", err)
	}
	return &WhatsAppDialer{container: container, log: log}, nil
}

func (d *WhatsAppDialer) Dial(ctx context.Context, creds []byte, out chan<- SessionEvent) (Session, error) {
	device, err := d.device(creds)
	if err != nil {
		return nil, err
	}

	client := whatsmeow.NewClient(device, d.log.Sub("client"))
	client.EnableAutoReconnect = false

	s := &waSession{client: client, out: out, closed: make(chan struct{})}
	client.AddEventHandler(s.handle)

	if client.Store.ID == nil {
		qrs, err := client.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("open pairing channel: %w", err)
		}
		go s.forwardPairing(qrs)
	}

	if err := client.Connect(); err != nil {
		s.abort()
		client.RemoveEventHandlers()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return s, nil
}

func (d *WhatsAppDialer) device(creds []byte) (*store.Device, error) {
	if len(creds) == 0 {
		return d.container.NewDevice(), nil
	}
	jid, err := types.ParseJID(string(creds))
	if err != nil {
		return d.container.NewDevice(), nil
	}
	device, err := d.container.GetDevice(jid)
	if err != nil {
		return nil, fmt.Errorf("load device %s: %w", jid, err)
	}
	if device == nil {
		return d.container.NewDevice(), nil
	}
	return device, nil
}

type waSession struct {
	client    *whatsmeow.Client
	out       chan<- SessionEvent
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *waSession) emit(ev SessionEvent) {
	select {
	case s.out <- ev:
	case <-s.closed:
	}
}

func (s *waSession) forwardPairing(qrs <-chan whatsmeow.QRChannelItem) {
	for item := range qrs {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			s.emit(SessionEvent{Kind: EventQR, QR: item.Code})
		case whatsmeow.QRChannelEventError:
			s.emit(SessionEvent{Kind: EventClosed, Err: item.Error})
		case "timeout":
			s.emit(SessionEvent{Kind: EventClosed, Err: errors.New("pairing timed out")})
		}
	}
}

func (s *waSession) handle(evt interface{}) {
	switch evt.(type) {
	case *events.Connected:
		var creds []byte
		if id := s.client.Store.ID; id != nil {
			creds = []byte(id.String())
		}
		s.emit(SessionEvent{Kind: EventOpened, Credentials: creds})
	case *events.Disconnected:
		s.emit(SessionEvent{Kind: EventClosed})
	case *events.StreamReplaced:
		s.emit(SessionEvent{Kind: EventClosed, Err: errors.New("stream replaced by another client")})
	case *events.LoggedOut:
		s.emit(SessionEvent{Kind: EventLoggedOut})
	}
}

func toJID(to string) types.JID {
	return types.NewJID(to, types.DefaultUserServer)
}

func (s *waSession) SetTyping(_ context.Context, to string, typing bool) error {
	state := types.ChatPresencePaused
	if typing {
		state = types.ChatPresenceComposing
	}
	return s.client.SendChatPresence(toJID(to), state, types.ChatPresenceMediaText)
}

func (s *waSession) SendText(ctx context.Context, to, body string) error {
	_, err := s.client.SendMessage(ctx, toJID(to), &waProto.Message{Conversation: proto.String(body)})
	return err
}

func (s *waSession) Logout(_ context.Context) error {
	return s.client.Logout()
}

// abort releases anything blocked in emit. The client is left alone.
func (s *waSession) abort() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *waSession) Close() error {
	s.abort()
	s.client.RemoveEventHandlers()
	s.client.Disconnect()
	return nil
}

// slogAdapter routes whatsmeow logs into slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debugf(msg string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(msg, args...))
}

func (a slogAdapter) Infof(msg string, args ...interface{}) {
	a.logger.Info(fmt.Sprintf(msg, args...))
}

func (a slogAdapter) Warnf(msg string, args ...interface{}) {
	a.logger.Warn(fmt.Sprintf(msg, args...))
}

func (a slogAdapter) Errorf(msg string, args ...interface{}) {
	a.logger.Error(fmt.Sprintf(msg, args...))
}

func (a slogAdapter) Sub(module string) waLog.Logger {
	return slogAdapter{logger: a.logger.With("module", module)}
}
