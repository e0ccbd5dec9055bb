package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/skillswaphq/skillswap-realtime/internal/identity"
	"go.uber.org/zap"
)

// State describes the connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 2 * time.Second
	defaultFallbackDelay = 150 * time.Millisecond
)

// ManagerConfig describes the dependencies of a connection Manager.
type ManagerConfig struct {
	SocketURL string
	Dialer    Dialer
	Logger    *zap.Logger
	Clock     func() time.Time
	// RetryAttempts bounds automatic redials before falling back.
	RetryAttempts int
	RetryDelay    time.Duration
	// FallbackDelay is the simulated connect latency of the synthetic
	// transport.
	FallbackDelay time.Duration
}

// Manager owns at most one live transport per identity and exposes a
// publish/subscribe surface over typed events. When no live transport can be
// established it falls back to a synthetic one, so subscribers never have to
// special-case "offline" as a distinct mode.
type Manager struct {
	cfg    ManagerConfig
	logger *zap.Logger
	clock  func() time.Time

	mu          sync.Mutex
	subscribers map[EventType][]*subscription
	nextID      int64
	generation  int64
	state       State
	who         identity.Identity
	conn        Conn
	cancel      context.CancelFunc
}

type subscription struct {
	id       int64
	callback func(Event)
}

// NewManager constructs a Manager. Missing optional dependencies are filled
// with defaults; a nil Dialer means every connect uses the fallback.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.FallbackDelay <= 0 {
		cfg.FallbackDelay = defaultFallbackDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		cfg:         cfg,
		logger:      logger,
		clock:       clock,
		subscribers: make(map[EventType][]*subscription),
		state:       StateDisconnected,
	}
}

// Connect establishes a transport bound to the provided identity. Calling it
// again for the same identity while a connection is live is a no-op; a
// different identity tears the existing transport down first. Connect never
// fails to the caller: when no live transport can be constructed it falls
// back to the synthetic one.
func (m *Manager) Connect(email string) {
	who := identity.Identity(identity.Normalize(email))

	m.mu.Lock()
	if m.cancel != nil && m.who == who && m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.teardownLocked(false)

	ctx, cancel := context.WithCancel(context.Background())
	m.generation++
	generation := m.generation
	m.cancel = cancel
	m.who = who
	m.state = StateConnecting
	m.mu.Unlock()

	go m.run(ctx, generation, who)
}

// Subscribe registers a callback for one event type and returns its
// unsubscribe function. Callbacks for an event are invoked in registration
// order; a panicking callback does not prevent delivery to the rest.
func (m *Manager) Subscribe(eventType EventType, callback func(Event)) func() {
	if callback == nil {
		return func() {}
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subscribers[eventType] = append(m.subscribers[eventType], &subscription{id: id, callback: callback})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		entries := m.subscribers[eventType]
		for index, entry := range entries {
			if entry.id == id {
				m.subscribers[eventType] = append(entries[:index], entries[index+1:]...)
				break
			}
		}
	}
}

// SendMessage publishes a message to the live transport, best effort. The
// return value reports whether a send was attempted, not delivery: callers
// needing durability must use the persistence path.
func (m *Manager) SendMessage(payload OutboundMessage) bool {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return false
	}
	data, err := encodeSendFrame(payload)
	if err != nil {
		return false
	}
	if err := conn.WriteFrame(data); err != nil {
		m.logger.Warn("transport send failed", zap.Error(err))
		return false
	}
	return true
}

// Disconnect tears down the transport, clears all subscriptions and the
// bound identity. Safe to call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked(true)
}

// IsConnected reports a synchronous snapshot of transport health.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// CurrentState reports the connection lifecycle state.
func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) teardownLocked(clearSubscribers bool) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.generation++
	m.who = ""
	m.state = StateDisconnected
	if clearSubscribers {
		m.subscribers = make(map[EventType][]*subscription)
	}
}

func (m *Manager) run(ctx context.Context, generation int64, who identity.Identity) {
	for {
		conn := m.establish(ctx, who)
		if conn == nil {
			return
		}
		if !m.adoptConn(generation, conn) {
			_ = conn.Close()
			return
		}
		m.dispatch(Event{Type: EventConnected})

		for {
			data, err := conn.ReadFrame()
			if err != nil {
				break
			}
			m.handleFrame(data)
		}
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		if !m.markConnecting(generation) {
			return
		}
		m.logger.Warn("transport dropped, reconnecting", zap.String("identity", who.String()))
	}
}

// establish dials with bounded fixed-backoff retries, then degrades to the
// synthetic transport. Missed events are not replayed after a reconnect;
// there is no catch-up protocol.
func (m *Manager) establish(ctx context.Context, who identity.Identity) Conn {
	if who != "" && m.cfg.Dialer != nil {
		var lastErr error
		for attempt := 1; attempt <= m.cfg.RetryAttempts; attempt++ {
			conn, err := m.cfg.Dialer.Dial(ctx, m.cfg.SocketURL)
			if err == nil {
				err = m.register(conn, who)
				if err == nil {
					return conn
				}
				_ = conn.Close()
			}
			lastErr = err
			m.logger.Warn("transport dial failed",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			if !sleepContext(ctx, m.cfg.RetryDelay) {
				return nil
			}
		}
		m.dispatch(Event{
			Type: EventError,
			Err:  fmt.Errorf("connect failed after %d attempts: %w", m.cfg.RetryAttempts, lastErr),
		})
	}

	if !sleepContext(ctx, m.cfg.FallbackDelay) {
		return nil
	}
	conn := newSyntheticConn()
	if who != "" {
		_ = m.register(conn, who)
	}
	m.logger.Info("using synthetic transport", zap.String("identity", who.String()))
	return conn
}

func (m *Manager) register(conn Conn, who identity.Identity) error {
	data, err := encodeRegisterFrame(who.String())
	if err != nil {
		return err
	}
	return conn.WriteFrame(data)
}

func (m *Manager) adoptConn(generation int64, conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != generation {
		return false
	}
	m.conn = conn
	m.state = StateConnected
	return true
}

func (m *Manager) markConnecting(generation int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != generation {
		return false
	}
	m.conn = nil
	m.state = StateConnecting
	return true
}

func (m *Manager) handleFrame(data []byte) {
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
		// An undecodable frame still surfaces as a generic message event
		// rather than being dropped.
		message := normalizePush(wireFrame{}, m.clock())
		m.dispatch(Event{Type: EventNewMessage, Message: &message})
		return
	}

	switch frame.Event {
	case frameEventRegisterSuccess:
		m.dispatch(Event{Type: EventRegisterAck, Registered: true})
	case frameEventRegisterError:
		m.dispatch(Event{
			Type: EventRegisterAck,
			Err:  fmt.Errorf("registration rejected: %s", frame.Reason),
		})
	case frameEventNewMessage:
		message := normalizePush(frame, m.clock())
		m.dispatch(Event{Type: EventNewMessage, Message: &message})
	default:
		m.logger.Debug("ignoring unknown frame", zap.String("event", frame.Event))
	}
}

// dispatch delivers one event to every subscriber of its type, in
// registration order, synchronously within this call.
func (m *Manager) dispatch(event Event) {
	m.mu.Lock()
	entries := make([]*subscription, len(m.subscribers[event.Type]))
	copy(entries, m.subscribers[event.Type])
	m.mu.Unlock()

	for _, entry := range entries {
		m.invoke(entry, event)
	}
}

func (m *Manager) invoke(entry *subscription, event Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			m.logger.Error("subscriber callback panicked",
				zap.String("event", string(event.Type)),
				zap.Any("panic", recovered))
		}
	}()
	entry.callback(event)
}

func sleepContext(ctx context.Context, duration time.Duration) bool {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
