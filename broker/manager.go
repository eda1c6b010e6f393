package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/health"
	"github.com/c360/semlink/metric"
	"github.com/c360/semlink/pkg/backoff"
	"github.com/c360/semlink/topic"
)

// Manager owns one logical broker connection. It reconnects with exponential backoff
// after any close it did not ask for, enforces a connect timeout, re-issues subscriptions
// on every successful connect and dispatches inbound messages to registered handlers.
//
// A nil *Manager is valid to call; every method returns ErrNotInitialized.
type Manager struct {
	cfg       Config
	dialer    Dialer
	name      string
	logger    *slog.Logger
	observer  Observer
	unmatched UnmatchedObserver
	metrics   *metric.Metrics

	handlers     *topic.Registry[Handler]
	subMu        sync.Mutex // serializes registry changes with resubscription
	dispatchMu   sync.Mutex
	unmatchedLog rate.Sometimes

	mu             sync.Mutex
	state          State
	stateChanged   chan struct{}
	current        *attempt
	attempts       uint64
	backoff        backoff.State
	explicit       bool
	reconnectTimer *time.Timer
	reconnectGen   uint64
	closing        chan struct{}
	lastErr        error
	errorCount     int
	connectedAt    time.Time
}

// attempt is one dial and, if it succeeds, the session that follows. Fields other
// than the channels are guarded by Manager.mu.
type attempt struct {
	id     uint64
	m      *Manager
	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer

	conn        Conn
	established bool
	closed      bool
	timedOut    bool

	dialed     chan struct{}
	termOnce   sync.Once
	terminated chan struct{}
}

// Deliver implements Sink
func (a *attempt) Deliver(topicName string, payload []byte) {
	a.m.deliver(a, topicName, payload)
}

// Closed implements Sink
func (a *attempt) Closed(err error) {
	if err == nil {
		err = errors.ErrConnectionLost
	}
	a.m.handleClosed(a, errors.WrapTransient(err, "Manager", "transport", "maintain session"))
}

// terminate cancels the dial, waits for it to finish and closes any session it produced.
// The returned channel closes once the transport is gone.
func (a *attempt) terminate() <-chan struct{} {
	a.termOnce.Do(func() {
		a.timer.Stop()
		a.cancel()
		go func() {
			defer close(a.terminated)
			<-a.dialed

			a.m.mu.Lock()
			conn := a.conn
			a.conn = nil
			a.m.mu.Unlock()

			if conn != nil {
				if err := conn.Close(); err != nil {
					a.m.logger.Debug("Transport close returned error", "attempt", a.id, "error", err)
				}
			}
		}()
	})
	return a.terminated
}

// New creates a Manager. It does not connect; call Connect.
func New(cfg Config, dialer Dialer, opts ...Option) (*Manager, error) {
	if dialer == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: dialer is required", errors.ErrMissingConfig),
			"Manager", "New", "check dialer")
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:          cfg,
		dialer:       dialer,
		name:         "broker",
		logger:       slog.Default(),
		observer:     NopObserver{},
		handlers:     topic.NewRegistry[Handler](),
		unmatchedLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
		state:        StateDisconnected,
		stateChanged: make(chan struct{}),
		backoff:      backoff.New(cfg.ReconnectInterval, cfg.MaxReconnectInterval),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	m.logger = m.logger.With("component", "broker", "broker", m.name)
	if u, ok := m.observer.(UnmatchedObserver); ok {
		m.unmatched = u
	}
	m.metrics.RecordBrokerState(m.name, int(StateDisconnected))

	return m, nil
}

func notInitialized(method string) error {
	return errors.WrapInvalid(errors.ErrNotInitialized, "Manager", method, "check manager")
}

// Name returns the manager name
func (m *Manager) Name() string {
	if m == nil {
		return ""
	}
	return m.name
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	if m == nil {
		return StateDisconnected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected returns true when a live session exists
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Backoff returns the current backoff state
func (m *Manager) Backoff() backoff.State {
	if m == nil {
		return backoff.State{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backoff
}

// WaitForConnection blocks until the manager is connected or ctx is done
func (m *Manager) WaitForConnection(ctx context.Context) error {
	if m == nil {
		return notInitialized("WaitForConnection")
	}

	for {
		m.mu.Lock()
		if m.state == StateConnected {
			m.mu.Unlock()
			return nil
		}
		changed := m.stateChanged
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Manager", "WaitForConnection", "wait for connection")
		case <-changed:
		}
	}
}

// setStateLocked must be called with m.mu held
func (m *Manager) setStateLocked(s State) {
	m.state = s
	close(m.stateChanged)
	m.stateChanged = make(chan struct{})
	m.metrics.RecordBrokerState(m.name, int(s))
}

// stopReconnectLocked cancels any pending reconnect. Must be called with m.mu held.
func (m *Manager) stopReconnectLocked() {
	m.reconnectGen++
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// Connect starts connecting and returns immediately. Any existing session is torn down
// first and a previous explicit Disconnect is forgotten. Progress is reported through
// the Observer; use WaitForConnection to block.
func (m *Manager) Connect() error {
	if m == nil {
		return notInitialized("Connect")
	}

	m.mu.Lock()
	for m.closing != nil {
		closing := m.closing
		m.mu.Unlock()
		<-closing
		m.mu.Lock()
	}
	prev := m.current
	m.current = nil
	m.explicit = false
	m.stopReconnectLocked()
	if prev != nil {
		m.setStateLocked(StateConnecting)
	}
	m.mu.Unlock()

	if prev != nil {
		if _, err := m.awaitTermination(context.Background(), prev, "Connect"); err != nil {
			m.logger.Warn("Previous transport did not terminate in time", "attempt", prev.id, "error", err)
		}
	}

	m.mu.Lock()
	if m.current != nil || m.explicit || m.closing != nil {
		// A concurrent Connect or Disconnect took over
		m.mu.Unlock()
		return nil
	}
	a := m.startAttemptLocked()
	m.mu.Unlock()

	m.launch(a)
	return nil
}

// startAttemptLocked registers a new current attempt and arms its connect timeout.
// Must be called with m.mu held; follow with launch after unlocking.
func (m *Manager) startAttemptLocked() *attempt {
	m.attempts++
	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{
		id:         m.attempts,
		m:          m,
		ctx:        ctx,
		cancel:     cancel,
		dialed:     make(chan struct{}),
		terminated: make(chan struct{}),
	}
	a.timer = time.AfterFunc(m.cfg.ConnectionTimeout, func() { m.handleTimeout(a) })

	m.current = a
	m.setStateLocked(StateConnecting)
	m.metrics.RecordConnectAttempt(m.name)
	return a
}

// launch notifies connecting and then dials
func (m *Manager) launch(a *attempt) {
	m.logger.Info("Connecting to broker", "attempt", a.id, "timeout", m.cfg.ConnectionTimeout)
	m.notify("connecting", func(o Observer) { o.OnConnecting() })
	go m.dial(a)
}

func (m *Manager) dial(a *attempt) {
	defer close(a.dialed)

	if a.ctx.Err() != nil {
		return
	}

	conn, err := m.dialer.Dial(a.ctx, a)
	if err != nil {
		m.handleClosed(a, errors.WrapTransient(err, "Manager", "Connect", "dial broker"))
		return
	}

	m.handleConnected(a, conn)
}

func (m *Manager) handleConnected(a *attempt, conn Conn) {
	m.subMu.Lock()

	m.mu.Lock()
	a.conn = conn
	if m.current != a || a.closed || a.timedOut {
		// Superseded or timed out while dialing; terminate closes conn
		m.mu.Unlock()
		m.subMu.Unlock()
		a.terminate()
		return
	}
	a.established = true
	a.timer.Stop()
	m.backoff = m.backoff.Reset()
	m.mu.Unlock()

	failed := m.resubscribe(a, conn)

	m.mu.Lock()
	live := m.current == a && !a.closed
	if live {
		m.lastErr = nil
		m.connectedAt = time.Now()
		m.setStateLocked(StateConnected)
	}
	m.mu.Unlock()
	m.subMu.Unlock()

	for pattern, err := range failed {
		m.reportOperationError("Subscribe", pattern, err)
	}
	if !live {
		return
	}

	m.logger.Info("Connected to broker", "attempt", a.id)
	m.notify("connected", func(o Observer) { o.OnConnected() })
}

// resubscribe issues a subscription for every registered pattern on a fresh session and
// returns the failures. Callers hold subMu so registrations cannot slip between the
// snapshot and the state change.
func (m *Manager) resubscribe(a *attempt, conn Conn) map[string]error {
	var failed map[string]error
	for _, pattern := range m.handlers.Patterns() {
		ctx, cancel := context.WithTimeout(a.ctx, m.cfg.OperationTimeout)
		err := conn.Subscribe(ctx, pattern)
		cancel()
		if err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[pattern] = err
		}
	}
	return failed
}

func (m *Manager) handleTimeout(a *attempt) {
	m.mu.Lock()
	if m.current != a || a.closed || a.established {
		m.mu.Unlock()
		return
	}
	a.timedOut = true
	m.mu.Unlock()

	m.logger.Warn("Connection attempt timed out", "attempt", a.id, "timeout", m.cfg.ConnectionTimeout)
	m.metrics.RecordConnectTimeout(m.name)
	m.notify("timedOut", func(o Observer) { o.OnTimedOut() })

	a.cancel()
	m.handleClosed(a, errors.WrapTransient(errors.ErrConnectionTimeout, "Manager", "Connect",
		fmt.Sprintf("connect within %s", m.cfg.ConnectionTimeout)))
}

// handleClosed is the single close path for dial failures, timeouts and transport
// closes. It runs at most once per attempt and ignores attempts that are no longer
// current. Observers hear about the close before the reconnect is scheduled.
func (m *Manager) handleClosed(a *attempt, err error) {
	m.mu.Lock()
	if a.closed {
		m.mu.Unlock()
		return
	}
	a.closed = true
	if m.current != a {
		m.mu.Unlock()
		a.terminate()
		return
	}
	m.current = nil
	m.lastErr = err
	timedOut := a.timedOut
	if !timedOut {
		m.errorCount++
	}
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	a.terminate()

	m.logger.Warn("Broker connection closed", "attempt", a.id, "error", err)
	if !timedOut {
		m.notify("error", func(o Observer) { o.OnError(err) })
	}
	m.notify("closed", func(o Observer) { o.OnClosed(err) })

	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.explicit || m.current != nil || m.closing != nil {
		return
	}

	wait, next := m.backoff.Next()
	m.backoff = next
	m.stopReconnectLocked()
	gen := m.reconnectGen
	m.reconnectTimer = time.AfterFunc(wait, func() { m.reconnect(gen) })

	m.metrics.RecordReconnectScheduled(m.name)
	m.logger.Info("Scheduling reconnect", "in", wait, "next_backoff", next.Current)
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.reconnectGen || m.explicit || m.current != nil || m.closing != nil {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	a := m.startAttemptLocked()
	m.mu.Unlock()

	m.launch(a)
}

// awaitTermination tears the attempt down and waits for the transport to confirm,
// bounded by ctx and OperationTimeout.
func (m *Manager) awaitTermination(ctx context.Context, a *attempt, method string) (<-chan struct{}, error) {
	done := a.terminate()

	timer := time.NewTimer(m.cfg.OperationTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return done, nil
	case <-ctx.Done():
		return done, errors.WrapTransient(ctx.Err(), "Manager", method, "await transport termination")
	case <-timer.C:
		return done, errors.WrapTransient(errors.ErrConnectionTimeout, "Manager", method,
			fmt.Sprintf("terminate transport within %s", m.cfg.OperationTimeout))
	}
}

// Disconnect stops the connection for good: pending timers are cancelled, the handler
// registry is cleared and the transport is closed. It returns after the transport has
// confirmed termination, and is safe to call repeatedly or concurrently; only the call
// that actually disconnects notifies the Observer.
//
// If ctx expires before the transport confirms, Disconnect returns the context error
// and the disconnected notification is sent once termination completes.
func (m *Manager) Disconnect(ctx context.Context) error {
	if m == nil {
		return notInitialized("Disconnect")
	}

	m.mu.Lock()
	if closing := m.closing; closing != nil {
		m.mu.Unlock()
		select {
		case <-closing:
			return nil
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Manager", "Disconnect", "wait for concurrent disconnect")
		}
	}
	if m.explicit && m.state == StateDisconnected {
		m.mu.Unlock()
		return nil
	}

	m.explicit = true
	m.stopReconnectLocked()
	closing := make(chan struct{})
	m.closing = closing
	a := m.current
	m.current = nil
	m.setStateLocked(StateClosing)
	m.mu.Unlock()

	m.handlers.Clear()

	var (
		done <-chan struct{}
		err  error
	)
	if a != nil {
		done, err = m.awaitTermination(ctx, a, "Disconnect")
	}

	m.mu.Lock()
	m.setStateLocked(StateDisconnected)
	m.closing = nil
	m.mu.Unlock()
	close(closing)

	if err != nil {
		m.logger.Warn("Transport termination still pending", "error", err)
		go func() {
			<-done
			m.logger.Info("Disconnected from broker")
			m.notify("disconnected", func(o Observer) { o.OnDisconnected() })
		}()
		return err
	}

	m.logger.Info("Disconnected from broker")
	m.notify("disconnected", func(o Observer) { o.OnDisconnected() })
	return nil
}

// liveConn returns the session of the current attempt when connected
func (m *Manager) liveConn() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.current == nil {
		return nil
	}
	return m.current.conn
}

// RegisterHandler routes messages matching pattern to h, replacing any previous handler
// for the same pattern. The registration holds even if the transport subscription fails;
// that failure is logged and reported through OnError, and the subscription is retried
// on the next connect.
func (m *Manager) RegisterHandler(ctx context.Context, pattern string, h Handler) error {
	if m == nil {
		return notInitialized("RegisterHandler")
	}
	if err := topic.ValidatePattern(pattern); err != nil {
		return err
	}
	if h == nil {
		return errors.WrapInvalid(fmt.Errorf("nil handler for %q", pattern),
			"Manager", "RegisterHandler", "check handler")
	}

	m.subMu.Lock()
	m.handlers.Register(pattern, h)
	err := m.withLiveConn(ctx, func(ctx context.Context, conn Conn) error {
		return conn.Subscribe(ctx, pattern)
	})
	m.subMu.Unlock()

	if err != nil {
		m.reportOperationError("Subscribe", pattern, err)
	}
	return nil
}

// UnregisterHandler removes the handler for pattern. Unknown patterns are ignored.
func (m *Manager) UnregisterHandler(ctx context.Context, pattern string) error {
	if m == nil {
		return notInitialized("UnregisterHandler")
	}

	m.subMu.Lock()
	var err error
	if m.handlers.Unregister(pattern) {
		err = m.withLiveConn(ctx, func(ctx context.Context, conn Conn) error {
			return conn.Unsubscribe(ctx, pattern)
		})
	}
	m.subMu.Unlock()

	if err != nil {
		m.reportOperationError("Unsubscribe", pattern, err)
	}
	return nil
}

// withLiveConn runs fn against the live session under OperationTimeout.
// Without a live session it does nothing; the next connect resubscribes.
func (m *Manager) withLiveConn(ctx context.Context, fn func(context.Context, Conn) error) error {
	conn := m.liveConn()
	if conn == nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()
	return fn(opCtx, conn)
}

// Publish sends payload on a concrete topic. It fails with ErrNotConnected when there
// is no live session. Broker rejections are reported through OnError, not returned.
func (m *Manager) Publish(ctx context.Context, topicName string, payload []byte) error {
	if m == nil {
		return notInitialized("Publish")
	}
	if err := topic.ValidateTopic(topicName); err != nil {
		return err
	}

	conn := m.liveConn()
	if conn == nil {
		return errors.WrapInvalid(errors.ErrNotConnected, "Manager", "Publish", "check connection")
	}

	opCtx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()
	if err := conn.Publish(opCtx, topicName, payload); err != nil {
		m.reportOperationError("Publish", topicName, err)
		return nil
	}

	m.metrics.RecordMessagePublished(m.name)
	return nil
}

func (m *Manager) reportOperationError(method, target string, err error) {
	wrapped := errors.WrapTransient(err, "Manager", method, fmt.Sprintf("%s %q", method, target))

	m.mu.Lock()
	m.lastErr = wrapped
	m.errorCount++
	m.mu.Unlock()

	m.logger.Warn("Broker operation failed", "operation", method, "topic", target, "error", err)
	m.metrics.RecordError(m.name, method)
	m.notify("error", func(o Observer) { o.OnError(wrapped) })
}

// notify invokes one observer callback, recovering panics
func (m *Manager) notify(event string, fn func(Observer)) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Observer panicked", "event", event, "panic", r)
		}
	}()
	fn(m.observer)
}

// Health reports the connection as a health status
func (m *Manager) Health() health.Status {
	if m == nil {
		return health.NewUnhealthy("broker", "not initialized")
	}

	m.mu.Lock()
	state := m.state
	reconnecting := m.reconnectTimer != nil
	lastErr := m.lastErr
	errorCount := m.errorCount
	connectedAt := m.connectedAt
	m.mu.Unlock()

	report := health.Report{
		Healthy:  state == StateConnected,
		Degraded: state == StateConnecting || reconnecting,
		Message:  state.String(),
		Metrics:  health.Metrics{ErrorCount: errorCount},
	}
	if state == StateConnected {
		report.Metrics.Uptime = time.Since(connectedAt)
	} else if lastErr != nil {
		report.LastError = lastErr.Error()
	}

	return health.FromReport(m.name, report)
}
