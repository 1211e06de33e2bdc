package channel

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	customError "github.com/segyhp/collections-engine/pkg/errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from    State
		event   Event
		want    State
		wantErr bool
	}{
		{StateDisconnected, EventDial, StateConnecting, false},
		{StateConnecting, EventQR, StateConnecting, false},
		{StateConnecting, EventOpened, StateConnected, false},
		{StateConnecting, EventDialFailed, StateDisconnected, false},
		{StateConnecting, EventClosed, StateDisconnected, false},
		{StateConnected, EventClosed, StateDisconnected, false},
		{StateConnected, EventLoggedOut, StateDisconnected, false},
		{StateDisconnected, EventOpened, StateDisconnected, true},
		{StateConnected, EventDial, StateConnected, true},
		{StateConnected, EventQR, StateConnected, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			got, err := Transition(tt.from, tt.event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeDestination(t *testing.T) {
	assert.Equal(t, "573001234567", NormalizeDestination("+57 (300) 123-4567"))
	assert.Equal(t, "", NormalizeDestination("n/a"))
}

func TestFileCredentialStore(t *testing.T) {
	dir := t.TempDir()
	s := NewFileCredentialStore(filepath.Join(dir, "wa", "creds"))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Save(bytes.Repeat([]byte{byte('a' + i%26)}, 64)))
		}(i)
	}
	wg.Wait()

	got, err = s.Load()
	require.NoError(t, err)
	require.Len(t, got, 64)
	assert.Equal(t, bytes.Repeat(got[:1], 64), got)

	entries, err := os.ReadDir(filepath.Join(dir, "wa"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	got, err = s.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

type fakeSession struct {
	mu     sync.Mutex
	calls  []string
	events chan<- SessionEvent
	sendFn func() error
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeSession) SetTyping(_ context.Context, to string, typing bool) error {
	if typing {
		s.record("typing:" + to)
	} else {
		s.record("paused:" + to)
	}
	return nil
}

func (s *fakeSession) SendText(_ context.Context, to, body string) error {
	s.record("text:" + to + ":" + body)
	if s.sendFn != nil {
		return s.sendFn()
	}
	return nil
}

func (s *fakeSession) Logout(context.Context) error {
	s.record("logout")
	return nil
}

func (s *fakeSession) Close() error {
	s.record("close")
	return nil
}

// fakeDialer pairs with a QR token on a fresh device, then opens.
type fakeDialer struct {
	mu       sync.Mutex
	dials    [][]byte
	sessions []*fakeSession
	holdOpen bool
	failures int
}

func (d *fakeDialer) Dial(_ context.Context, creds []byte, events chan<- SessionEvent) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, creds)
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("network unreachable")
	}

	s := &fakeSession{events: events}
	d.sessions = append(d.sessions, s)
	if creds == nil {
		events <- SessionEvent{Kind: EventQR, QR: "pair-me"}
	}
	if !d.holdOpen {
		events <- SessionEvent{Kind: EventOpened, Credentials: []byte("device-1")}
	}
	return s, nil
}

func (d *fakeDialer) Dials() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.dials...)
}

func (d *fakeDialer) Session(i int) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[i]
}

func fastOptions() Options {
	return Options{NewBackOff: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }}
}

func waitState(t *testing.T, c *Channel, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Status() == want }, 2*time.Second, 2*time.Millisecond)
}

func TestChannel_SendWhileDisconnectedFailsFast(t *testing.T) {
	c := New(&fakeDialer{}, &MemoryCredentialStore{}, fastOptions(), nil)

	err := c.Send(context.Background(), "3001234567", "hola")
	require.Error(t, err)
	assert.True(t, errors.Is(err, customError.ErrChannelUnavailable))
	assert.True(t, IsUnavailable(err))
}

func TestChannel_PairsConnectsAndPersistsCredentials(t *testing.T) {
	dialer := &fakeDialer{holdOpen: true}
	store := &MemoryCredentialStore{}
	c := New(dialer, store, fastOptions(), nil)
	defer c.Close()

	c.Init(context.Background())
	require.Eventually(t, func() bool { _, ok := c.PairingCode(); return ok }, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, StateConnecting, c.Status())

	png, err := c.PairingImage(128)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	dialer.Session(0).events <- SessionEvent{Kind: EventOpened, Credentials: []byte("device-1")}
	waitState(t, c, StateConnected)

	_, ok := c.PairingCode()
	assert.False(t, ok, "pairing code cleared once connected")
	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("device-1"), creds)

	_, err = c.PairingImage(128)
	assert.True(t, errors.Is(err, customError.ErrNotFound))
}

func TestChannel_InitIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	c := New(dialer, &MemoryCredentialStore{}, fastOptions(), nil)
	defer c.Close()

	c.Init(context.Background())
	waitState(t, c, StateConnected)
	c.Init(context.Background())
	c.Init(context.Background())

	assert.Len(t, dialer.Dials(), 1)
}

func TestChannel_SendTypesThenDispatches(t *testing.T) {
	dialer := &fakeDialer{}
	c := New(dialer, &MemoryCredentialStore{}, Options{TypingDelay: 5 * time.Millisecond, NewBackOff: fastOptions().NewBackOff}, nil)
	defer c.Close()

	c.Init(context.Background())
	waitState(t, c, StateConnected)

	require.NoError(t, c.Send(context.Background(), "+57 300-123", "hola"))
	assert.Equal(t, []string{"typing:57300123", "paused:57300123", "text:57300123:hola"}, dialer.Session(0).Calls())
}

func TestChannel_SendIsSingleAttempt(t *testing.T) {
	dialer := &fakeDialer{}
	c := New(dialer, &MemoryCredentialStore{}, fastOptions(), nil)
	defer c.Close()

	c.Init(context.Background())
	waitState(t, c, StateConnected)

	sess := dialer.Session(0)
	sess.sendFn = func() error { return errors.New("socket closed") }

	assert.Error(t, c.Send(context.Background(), "3001", "hola"))
	texts := 0
	for _, call := range sess.Calls() {
		if call == "text:3001:hola" {
			texts++
		}
	}
	assert.Equal(t, 1, texts)
}

func TestChannel_ReconnectsAfterDropWithStoredCredentials(t *testing.T) {
	dialer := &fakeDialer{}
	store := &MemoryCredentialStore{}
	c := New(dialer, store, fastOptions(), nil)
	defer c.Close()

	c.Init(context.Background())
	waitState(t, c, StateConnected)

	dialer.Session(0).events <- SessionEvent{Kind: EventClosed, Err: errors.New("stream error")}

	require.Eventually(t, func() bool { return len(dialer.Dials()) == 2 }, 2*time.Second, 2*time.Millisecond)
	waitState(t, c, StateConnected)
	assert.Equal(t, []byte("device-1"), dialer.Dials()[1])
	assert.Contains(t, dialer.Session(0).Calls(), "close")
}

func TestChannel_RetriesFailedDials(t *testing.T) {
	dialer := &fakeDialer{failures: 2}
	c := New(dialer, &MemoryCredentialStore{}, fastOptions(), nil)
	defer c.Close()

	c.Init(context.Background())
	waitState(t, c, StateConnected)
	assert.Len(t, dialer.Dials(), 3)
}

func TestChannel_RemoteLogoutIsTerminal(t *testing.T) {
	dialer := &fakeDialer{}
	store := &MemoryCredentialStore{}
	c := New(dialer, store, fastOptions(), nil)
	defer c.Close()

	c.Init(context.Background())
	waitState(t, c, StateConnected)

	dialer.Session(0).events <- SessionEvent{Kind: EventLoggedOut}
	waitState(t, c, StateDisconnected)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, dialer.Dials(), 1, "no reconnect after logout")
	creds, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestChannel_ExplicitLogout(t *testing.T) {
	dialer := &fakeDialer{}
	store := &MemoryCredentialStore{}
	c := New(dialer, store, fastOptions(), nil)
	defer c.Close()

	c.Init(context.Background())
	waitState(t, c, StateConnected)

	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, StateDisconnected, c.Status())
	assert.Contains(t, dialer.Session(0).Calls(), "logout")
	creds, _ := store.Load()
	assert.Nil(t, creds)

	err := c.Send(context.Background(), "3001", "hola")
	assert.True(t, errors.Is(err, customError.ErrChannelUnavailable))

	require.Eventually(t, func() bool { return errors.Is(c.Logout(context.Background()), customError.ErrChannelUnavailable) }, time.Second, 2*time.Millisecond)

	c.Init(context.Background())
	waitState(t, c, StateConnected)
	assert.Nil(t, dialer.Dials()[1], "pairs from scratch after logout")
}

func TestChannel_CloseStopsLoop(t *testing.T) {
	dialer := &fakeDialer{}
	c := New(dialer, &MemoryCredentialStore{}, fastOptions(), nil)

	c.Init(context.Background())
	waitState(t, c, StateConnected)
	require.NoError(t, c.Close())

	assert.Equal(t, StateDisconnected, c.Status())
	require.NoError(t, c.Close())
}
