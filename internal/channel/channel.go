package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segyhp/collections-engine/internal/metrics"
	customError "github.com/segyhp/collections-engine/pkg/errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

// Options tune delivery pacing and reconnection.
type Options struct {
	// TypingDelay is how long the typing indicator shows before each message.
	TypingDelay time.Duration
	// SendsPerMinute caps outbound messages; zero means unlimited.
	SendsPerMinute int
	// NewBackOff builds the reconnect policy. Defaults to exponential with no deadline.
	NewBackOff func() backoff.BackOff
}

// Channel is the single messaging session of the process. State changes
// happen only on the run loop; readers take a snapshot under the lock.
type Channel struct {
	dialer Dialer
	store  CredentialStore
	opts   Options
	logger *slog.Logger

	limiter *rate.Limiter

	mu      sync.RWMutex
	state   State
	qr      string
	session Session
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	logoutCh chan chan error
}

func New(dialer Dialer, store CredentialStore, opts Options, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxInterval = 2 * time.Minute
			b.MaxElapsedTime = 0
			return b
		}
	}

	limit := rate.Inf
	burst := 1
	if opts.SendsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.SendsPerMinute))
	}

	c := &Channel{
		dialer:   dialer,
		store:    store,
		opts:     opts,
		logger:   logger.With("component", "channel"),
		limiter:  rate.NewLimiter(limit, burst),
		state:    StateDisconnected,
		logoutCh: make(chan chan error),
	}
	metrics.SetChannelState(string(StateDisconnected), stateNames()...)
	return c
}

// Init starts the connection loop. It is a no-op while the loop is already
// connecting or connected.
func (c *Channel) Init(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
}

// Close stops the loop and drops the session. Stored credentials are kept.
func (c *Channel) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Channel) Status() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// PairingCode returns the current pairing token, if any.
func (c *Channel) PairingCode() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.qr, c.qr != ""
}

// PairingImage renders the current pairing token as a PNG QR code.
func (c *Channel) PairingImage(size int) ([]byte, error) {
	code, ok := c.PairingCode()
	if !ok {
		return nil, customError.WrapNotFound("pairing code", "current")
	}
	return qrcode.Encode(code, qrcode.Medium, size)
}

// Send delivers one text message. It fails fast with a ChannelUnavailable
// error when not connected and makes a single attempt otherwise.
func (c *Channel) Send(ctx context.Context, to, body string) error {
	c.mu.RLock()
	state, sess := c.state, c.session
	c.mu.RUnlock()

	if state != StateConnected || sess == nil {
		return customError.WrapChannelUnavailable(string(state))
	}

	dest := NormalizeDestination(to)
	if dest == "" {
		return customError.WrapValidation("phone", "must contain digits")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := sess.SetTyping(ctx, dest, true); err != nil {
		c.logger.DebugContext(ctx, "Typing indicator failed", "to", dest, slog.Any("error", err))
	}
	if c.opts.TypingDelay > 0 {
		t := time.NewTimer(c.opts.TypingDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := sess.SetTyping(ctx, dest, false); err != nil {
		c.logger.DebugContext(ctx, "Typing indicator failed", "to", dest, slog.Any("error", err))
	}

	if err := sess.SendText(ctx, dest, body); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Message sent", "to", dest)
	return nil
}

// Logout unlinks the device, clears stored credentials and stops
// reconnecting until Init is called again.
func (c *Channel) Logout(ctx context.Context) error {
	c.mu.RLock()
	running, state, done := c.running, c.state, c.done
	c.mu.RUnlock()
	if !running {
		return customError.WrapChannelUnavailable(string(state))
	}

	reply := make(chan error, 1)
	select {
	case c.logoutCh <- reply:
	case <-done:
		return customError.WrapChannelUnavailable(string(c.Status()))
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type outcome int

const (
	outcomeRetry outcome = iota
	outcomeStop
	outcomeLoggedOut
)

func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
	}()

	bo := c.opts.NewBackOff()
	bo.Reset()

	for {
		c.apply(ctx, EventDial, "", nil)

		creds, err := c.store.Load()
		if err != nil {
			c.logger.ErrorContext(ctx, "Failed to load credentials, pairing from scratch", slog.Any("error", err))
			creds = nil
		}

		events := make(chan SessionEvent, 16)
		sess, err := c.dialer.Dial(ctx, creds, events)
		if err != nil {
			c.logger.WarnContext(ctx, "Dial failed", slog.Any("error", err))
			c.apply(ctx, EventDialFailed, "", nil)
		} else {
			result := c.serve(ctx, sess, events, bo)
			if err := sess.Close(); err != nil {
				c.logger.DebugContext(ctx, "Session close failed", slog.Any("error", err))
			}
			if result != outcomeRetry {
				return
			}
		}

		switch c.wait(ctx, bo.NextBackOff()) {
		case outcomeStop:
			c.apply(ctx, EventClosed, "", nil)
			return
		case outcomeLoggedOut:
			return
		}
	}
}

func (c *Channel) serve(ctx context.Context, sess Session, events <-chan SessionEvent, bo backoff.BackOff) outcome {
	for {
		select {
		case <-ctx.Done():
			c.apply(ctx, EventClosed, "", nil)
			return outcomeStop

		case reply := <-c.logoutCh:
			var err error
			if c.Status() == StateConnected {
				err = sess.Logout(ctx)
			}
			c.clearCredentials(ctx)
			c.apply(ctx, EventLoggedOut, "", nil)
			reply <- err
			return outcomeLoggedOut

		case ev := <-events:
			switch ev.Kind {
			case EventQR:
				c.apply(ctx, EventQR, ev.QR, nil)
			case EventOpened:
				if len(ev.Credentials) > 0 {
					if err := c.store.Save(ev.Credentials); err != nil {
						c.logger.ErrorContext(ctx, "Failed to persist credentials", slog.Any("error", err))
					}
				}
				c.apply(ctx, EventOpened, "", sess)
				bo.Reset()
			case EventClosed:
				c.logger.WarnContext(ctx, "Session closed, reconnecting", slog.Any("error", ev.Err))
				c.apply(ctx, EventClosed, "", nil)
				return outcomeRetry
			case EventLoggedOut:
				c.logger.WarnContext(ctx, "Session logged out remotely")
				c.clearCredentials(ctx)
				c.apply(ctx, EventLoggedOut, "", nil)
				return outcomeLoggedOut
			}
		}
	}
}

func (c *Channel) clearCredentials(ctx context.Context) {
	if err := c.store.Clear(); err != nil {
		c.logger.ErrorContext(ctx, "Failed to clear credentials", slog.Any("error", err))
	}
}

// wait sleeps between attempts. A logout while waiting ends the loop.
func (c *Channel) wait(ctx context.Context, d time.Duration) outcome {
	if d == backoff.Stop {
		return outcomeStop
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return outcomeStop
	case reply := <-c.logoutCh:
		c.clearCredentials(ctx)
		c.apply(ctx, EventLoggedOut, "", nil)
		reply <- nil
		return outcomeLoggedOut
	case <-t.C:
		return outcomeRetry
	}
}

// apply moves the machine on e. The pairing token is only visible while
// connecting; the session only while connected.
func (c *Channel) apply(ctx context.Context, e Event, qr string, sess Session) {
	c.mu.Lock()
	prev := c.state
	next, err := Transition(prev, e)
	if err != nil {
		c.mu.Unlock()
		c.logger.WarnContext(ctx, "Ignoring channel event", slog.Any("error", err))
		return
	}
	c.state = next
	switch {
	case e == EventQR:
		c.qr = qr
	case next == StateConnected:
		c.qr = ""
		c.session = sess
	case next == StateDisconnected:
		c.qr = ""
		c.session = nil
	}
	c.mu.Unlock()

	if prev != next {
		c.logger.InfoContext(ctx, "Channel state changed", "from", prev, "to", next, "event", e)
		metrics.SetChannelState(string(next), stateNames()...)
	}
}

func stateNames() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = string(s)
	}
	return names
}

// IsUnavailable reports whether err means the channel could not take the message.
func IsUnavailable(err error) bool {
	return errors.Is(err, customError.ErrChannelUnavailable)
}
