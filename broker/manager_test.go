package broker_test

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/c360/semlink/broker"
	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 2 * time.Second

// recorder captures lifecycle notifications in order
type recorder struct {
	broker.NopObserver

	mu        sync.Mutex
	events    []string
	closeErrs []error
	errs      []error
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) OnConnecting()   { r.add("connecting") }
func (r *recorder) OnConnected()    { r.add("connected") }
func (r *recorder) OnTimedOut()     { r.add("timedOut") }
func (r *recorder) OnDisconnected() { r.add("disconnected") }

func (r *recorder) OnClosed(err error) {
	r.mu.Lock()
	r.closeErrs = append(r.closeErrs, err)
	r.mu.Unlock()
	r.add("closed")
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.add("error")
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) Count(event string) int {
	n := 0
	for _, e := range r.Events() {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func testConfig() broker.Config {
	return broker.Config{
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectInterval: 40 * time.Millisecond,
		ConnectionTimeout:    500 * time.Millisecond,
		OperationTimeout:     500 * time.Millisecond,
		HandlerTimeout:       time.Second,
	}
}

func newManager(t *testing.T, b *testutil.MemoryBroker, cfg broker.Config, opts ...broker.Option) (*broker.Manager, *recorder) {
	t.Helper()

	rec := &recorder{}
	opts = append([]broker.Option{broker.WithObserver(rec)}, opts...)
	m, err := broker.New(cfg, b, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = m.Disconnect(context.Background())
	})
	return m, rec
}

func connect(t *testing.T, m *broker.Manager) {
	t.Helper()
	require.NoError(t, m.Connect())

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, m.WaitForConnection(ctx))
}

func TestNew_Validation(t *testing.T) {
	_, err := broker.New(broker.DefaultConfig(), nil)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = broker.New(broker.Config{ReconnectInterval: time.Second, MaxReconnectInterval: time.Millisecond},
		testutil.NewMemoryBroker())
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = broker.New(broker.DefaultConfig(), testutil.NewMemoryBroker(), broker.WithName(""))
	assert.True(t, errors.IsInvalid(err))
}

func TestNilManager(t *testing.T) {
	var m *broker.Manager
	ctx := context.Background()

	assert.ErrorIs(t, m.Connect(), errors.ErrNotInitialized)
	assert.ErrorIs(t, m.Disconnect(ctx), errors.ErrNotInitialized)
	assert.ErrorIs(t, m.Publish(ctx, "a/b", nil), errors.ErrNotInitialized)
	assert.ErrorIs(t, m.RegisterHandler(ctx, "a/b", func(context.Context, string, []byte) {}), errors.ErrNotInitialized)
	assert.ErrorIs(t, m.UnregisterHandler(ctx, "a/b"), errors.ErrNotInitialized)
	assert.ErrorIs(t, m.WaitForConnection(ctx), errors.ErrNotInitialized)
	assert.Equal(t, broker.StateDisconnected, m.State())
	assert.False(t, m.Health().Healthy)
}

func TestConnect(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, rec := newManager(t, b, testConfig())

	assert.Equal(t, broker.StateDisconnected, m.State())
	connect(t, m)

	assert.True(t, m.IsConnected())
	assert.Equal(t, 1, b.Dials())
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"connecting", "connected"}, rec.Events())
	}, waitFor, 5*time.Millisecond)
	assert.True(t, m.Health().IsHealthy())
}

func TestConnect_ReplacesLiveTransport(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, rec := newManager(t, b, testConfig())
	connect(t, m)

	first := b.Conns()
	require.Len(t, first, 1)

	connect(t, m)
	assert.Equal(t, 2, b.Dials())
	assert.True(t, first[0].IsClosed())
	assert.Len(t, b.Conns(), 1)
	assert.Equal(t, 0, rec.Count("closed"), "replacing a transport is not a close")
}

func TestDispatch_AllMatchingHandlers(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, _ := newManager(t, b, testConfig())
	ctx := context.Background()

	var mu sync.Mutex
	calls := map[string]int{}
	record := func(name string) broker.Handler {
		return func(_ context.Context, _ string, _ []byte) {
			mu.Lock()
			calls[name]++
			mu.Unlock()
		}
	}

	require.NoError(t, m.RegisterHandler(ctx, "x/+", record("wild")))
	require.NoError(t, m.RegisterHandler(ctx, "x/y", record("exact")))
	require.NoError(t, m.RegisterHandler(ctx, "z/#", record("other")))
	connect(t, m)

	b.Inject("x/y", []byte("hello"))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls["wild"] == 1 && calls["exact"] == 1
	}, waitFor, 5*time.Millisecond)

	// Give any duplicate delivery a chance to show up
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"wild": 1, "exact": 1}, calls)
}

func TestDispatch_HandlerReceivesTopicAndPayload(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, _ := newManager(t, b, testConfig())
	connect(t, m)

	got := make(chan testutil.Message, 1)
	require.NoError(t, m.RegisterHandler(context.Background(), "sensors/+/temp",
		func(ctx context.Context, topic string, payload []byte) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			got <- testutil.Message{Topic: topic, Payload: payload}
		}))

	require.NoError(t, m.Publish(context.Background(), "sensors/1/temp", []byte("21.5")))

	select {
	case msg := <-got:
		assert.Equal(t, "sensors/1/temp", msg.Topic)
		assert.Equal(t, []byte("21.5"), msg.Payload)
	case <-time.After(waitFor):
		t.Fatal("handler not invoked")
	}
}

func TestDispatch_HandlerPanicRecovered(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, _ := newManager(t, b, testConfig())
	ctx := context.Background()

	var good atomic.Int32
	require.NoError(t, m.RegisterHandler(ctx, "a/#", func(context.Context, string, []byte) { panic("boom") }))
	require.NoError(t, m.RegisterHandler(ctx, "a/b", func(context.Context, string, []byte) { good.Add(1) }))
	connect(t, m)

	b.Inject("a/b", nil)
	b.Inject("a/b", nil)

	assert.Eventually(t, func() bool { return good.Load() == 2 }, waitFor, 5*time.Millisecond)
	assert.True(t, m.IsConnected())
}

type unmatchedRecorder struct {
	*recorder
	topics chan string
}

func (u *unmatchedRecorder) OnUnmatched(topic string, _ []byte) {
	u.topics <- topic
}

func TestDispatch_UnmatchedReported(t *testing.T) {
	b := testutil.NewMemoryBroker()
	obs := &unmatchedRecorder{recorder: &recorder{}, topics: make(chan string, 1)}
	m, err := broker.New(testConfig(), b, broker.WithObserver(obs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Disconnect(context.Background()) })

	ctx := context.Background()
	require.NoError(t, m.RegisterHandler(ctx, "a/#", func(context.Context, string, []byte) {}))
	connect(t, m)

	// Leave the transport subscription in place while dropping the handler
	b.SetSubscribeError(stderrors.New("refused"))
	require.NoError(t, m.UnregisterHandler(ctx, "a/#"))

	b.Inject("a/b", []byte("orphan"))

	select {
	case topic := <-obs.topics:
		assert.Equal(t, "a/b", topic)
	case <-time.After(waitFor):
		t.Fatal("unmatched message not reported")
	}
}

func TestRegisterHandler_Validation(t *testing.T) {
	m, _ := newManager(t, testutil.NewMemoryBroker(), testConfig())
	ctx := context.Background()

	err := m.RegisterHandler(ctx, "a/#/c", func(context.Context, string, []byte) {})
	assert.ErrorIs(t, err, errors.ErrInvalidPattern)

	err = m.RegisterHandler(ctx, "a/b", nil)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegisterHandler_EmptyLevels(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, _ := newManager(t, b, testConfig())
	connect(t, m)

	got := make(chan string, 2)
	for _, pattern := range []string{"/a", "a//b"} {
		require.NoError(t, m.RegisterHandler(context.Background(), pattern,
			func(_ context.Context, topic string, _ []byte) { got <- topic }))
	}

	for _, topic := range []string{"/a", "a//b"} {
		require.NoError(t, m.Publish(context.Background(), topic, []byte("x")))
		select {
		case received := <-got:
			assert.Equal(t, topic, received)
		case <-time.After(waitFor):
			t.Fatalf("no delivery for %q", topic)
		}
	}
}

func TestRegisterHandler_SubscribeFailureIsReported(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, rec := newManager(t, b, testConfig())
	connect(t, m)

	b.SetSubscribeError(stderrors.New("not authorized"))
	err := m.RegisterHandler(context.Background(), "secure/#", func(context.Context, string, []byte) {})
	assert.NoError(t, err)
	assert.Equal(t, 1, rec.Count("error"))
	require.Len(t, rec.Errors(), 1)
	assert.Contains(t, rec.Errors()[0].Error(), "not authorized")

	// Registry is authoritative: the next session subscribes it
	b.SetSubscribeError(nil)
	connect(t, m)
	conns := b.Conns()
	require.Len(t, conns, 1)
	assert.Equal(t, []string{"secure/#"}, conns[0].Subscriptions())
}

func TestResubscribeOnConnect(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, _ := newManager(t, b, testConfig())
	ctx := context.Background()

	noop := func(context.Context, string, []byte) {}
	require.NoError(t, m.RegisterHandler(ctx, "a/+", noop))
	require.NoError(t, m.RegisterHandler(ctx, "b/#", noop))
	connect(t, m)

	conns := b.Conns()
	require.Len(t, conns, 1)
	subs := conns[0].Subscriptions()
	sort.Strings(subs)
	assert.Equal(t, []string{"a/+", "b/#"}, subs)

	require.NoError(t, m.UnregisterHandler(ctx, "a/+"))
	assert.Equal(t, []string{"b/#"}, conns[0].Subscriptions())
}

func TestPublish(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, rec := newManager(t, b, testConfig())
	ctx := context.Background()

	err := m.Publish(ctx, "a/b", []byte("x"))
	assert.ErrorIs(t, err, errors.ErrNotConnected)
	assert.True(t, errors.IsInvalid(err))

	connect(t, m)

	assert.ErrorIs(t, m.Publish(ctx, "a/+", nil), errors.ErrInvalidTopic)

	require.NoError(t, m.Publish(ctx, "a/b", []byte("x")))
	assert.Equal(t, []testutil.Message{{Topic: "a/b", Payload: []byte("x")}}, b.Published())

	b.SetPublishError(stderrors.New("rejected"))
	assert.NoError(t, m.Publish(ctx, "a/b", []byte("y")))
	assert.Equal(t, 1, rec.Count("error"))
	assert.Len(t, b.Published(), 1)
}

func TestReconnect_NotifyBeforeRetry(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, rec := newManager(t, b, testConfig())
	require.NoError(t, m.RegisterHandler(context.Background(), "a/#", func(context.Context, string, []byte) {}))
	connect(t, m)
	require.Eventually(t, func() bool { return rec.Count("connected") == 1 }, waitFor, time.Millisecond)

	b.Drop(stderrors.New("server going away"))

	assert.Eventually(t, func() bool { return rec.Count("connected") == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"connecting", "connected", "error", "closed", "connecting", "connected"}, rec.Events())
	assert.Equal(t, 2, b.Dials())

	conns := b.Conns()
	require.Len(t, conns, 1)
	assert.Equal(t, []string{"a/#"}, conns[0].Subscriptions())
}

func TestReconnect_BackoffGrowsAndResets(t *testing.T) {
	b := testutil.NewMemoryBroker()
	dialErr := stderrors.New("connection refused")
	b.FailDials(dialErr, dialErr, dialErr)

	m, rec := newManager(t, b, testConfig())
	require.NoError(t, m.Connect())

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, m.WaitForConnection(ctx))

	assert.Equal(t, 4, b.Dials())
	assert.Equal(t, 3, rec.Count("closed"))
	assert.Equal(t, 3, rec.Count("error"))
	assert.Equal(t, 10*time.Millisecond, m.Backoff().Current, "backoff resets after success")
}

func TestReconnect_BackoffStateAfterFailures(t *testing.T) {
	b := testutil.NewMemoryBroker()
	cfg := testConfig()
	cfg.ReconnectInterval = 20 * time.Millisecond
	cfg.MaxReconnectInterval = 50 * time.Millisecond
	dialErr := stderrors.New("connection refused")
	b.FailDials(dialErr, dialErr, dialErr, dialErr, dialErr, dialErr, dialErr, dialErr)

	m, rec := newManager(t, b, cfg)
	require.NoError(t, m.Connect())

	// 20ms, 40ms, 50ms, 50ms...
	assert.Eventually(t, func() bool { return rec.Count("closed") >= 3 }, waitFor, time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, m.Backoff().Current)
}

func TestConnectTimeout(t *testing.T) {
	b := testutil.NewMemoryBroker()
	b.BlockDials()

	cfg := testConfig()
	cfg.ConnectionTimeout = 20 * time.Millisecond
	m, rec := newManager(t, b, cfg)
	require.NoError(t, m.Connect())

	assert.Eventually(t, func() bool { return rec.Count("timedOut") >= 1 }, waitFor, time.Millisecond)
	assert.Eventually(t, func() bool { return b.Dials() >= 2 }, waitFor, time.Millisecond,
		"timeout should drive a reconnect")

	events := rec.Events()
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, []string{"connecting", "timedOut", "closed"}, events[:3])
	assert.Equal(t, 0, rec.Count("error"), "timeouts are reported as timedOut, not error")

	rec.mu.Lock()
	assert.ErrorIs(t, rec.closeErrs[0], errors.ErrConnectionTimeout)
	rec.mu.Unlock()

	b.UnblockDials()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, m.WaitForConnection(ctx))
}

func TestDisconnect_Idempotent(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, rec := newManager(t, b, testConfig())
	connect(t, m)

	require.NoError(t, m.Disconnect(context.Background()))
	require.NoError(t, m.Disconnect(context.Background()))

	assert.Equal(t, broker.StateDisconnected, m.State())
	assert.Equal(t, 1, rec.Count("disconnected"))
	assert.Empty(t, b.Conns())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, b.Dials(), "no reconnect after explicit disconnect")
	assert.Equal(t, 0, rec.Count("closed"))
}

func TestDisconnect_Concurrent(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, rec := newManager(t, b, testConfig())
	connect(t, m)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Disconnect(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, rec.Count("disconnected"))
	assert.Equal(t, broker.StateDisconnected, m.State())
}

func TestDisconnect_CancelsPendingReconnect(t *testing.T) {
	b := testutil.NewMemoryBroker()
	b.FailDials(stderrors.New("connection refused"))

	cfg := testConfig()
	cfg.ReconnectInterval = 50 * time.Millisecond
	cfg.MaxReconnectInterval = 50 * time.Millisecond
	m, rec := newManager(t, b, cfg)
	require.NoError(t, m.Connect())

	assert.Eventually(t, func() bool { return rec.Count("closed") == 1 }, waitFor, time.Millisecond)
	require.NoError(t, m.Disconnect(context.Background()))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, b.Dials())
	assert.Equal(t, 1, rec.Count("disconnected"))
}

func TestDisconnect_ClearsRegistry(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, _ := newManager(t, b, testConfig())
	require.NoError(t, m.RegisterHandler(context.Background(), "a/#", func(context.Context, string, []byte) {}))
	connect(t, m)
	require.NoError(t, m.Disconnect(context.Background()))

	connect(t, m)
	conns := b.Conns()
	require.Len(t, conns, 1)
	assert.Empty(t, conns[0].Subscriptions())
}

func TestDisconnect_DuringConnect(t *testing.T) {
	b := testutil.NewMemoryBroker()
	b.BlockDials()

	m, rec := newManager(t, b, testConfig())
	require.NoError(t, m.Connect())
	require.NoError(t, m.Disconnect(context.Background()))

	assert.Equal(t, broker.StateDisconnected, m.State())
	assert.Equal(t, 1, rec.Count("disconnected"))
	assert.Equal(t, 0, rec.Count("connected"))

	b.UnblockDials()
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, b.Conns())
}

type panickingObserver struct {
	broker.NopObserver
}

func (panickingObserver) OnConnected() { panic("observer bug") }

func TestObserverPanicDoesNotCorruptState(t *testing.T) {
	b := testutil.NewMemoryBroker()
	m, err := broker.New(testConfig(), b, broker.WithObserver(panickingObserver{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Disconnect(context.Background()) })

	connect(t, m)
	assert.True(t, m.IsConnected())
	require.NoError(t, m.Publish(context.Background(), "a/b", nil))
}

func TestHealth(t *testing.T) {
	b := testutil.NewMemoryBroker()
	b.BlockDials()

	m, _ := newManager(t, b, testConfig(), broker.WithName("edge"))
	assert.True(t, m.Health().IsUnhealthy())

	require.NoError(t, m.Connect())
	status := m.Health()
	assert.True(t, status.IsDegraded())
	assert.Equal(t, "edge", status.Component)

	b.UnblockDials()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, m.WaitForConnection(ctx))
	assert.True(t, m.Health().IsHealthy())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", broker.StateDisconnected.String())
	assert.Equal(t, "connecting", broker.StateConnecting.String())
	assert.Equal(t, "connected", broker.StateConnected.String())
	assert.Equal(t, "closing", broker.StateClosing.String())
	assert.Equal(t, "unknown", broker.State(42).String())
}
