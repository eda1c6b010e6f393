package kvstore

import "log/slog"

// Observer receives lifecycle events from pooled backend connections. Every method is
// optional through embedding NopObserver. Events from different connections may
// arrive concurrently.
type Observer interface {
	// OnConnect fires when a transport connection to addr is established
	OnConnect(addr string)
	// OnReady fires when a connection has finished its handshake and accepts commands
	OnReady()
	OnError(err error)
	OnClose()
	// OnReconnecting fires when a connection is being re-established after a loss
	OnReconnecting()
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) OnConnect(string) {}
func (NopObserver) OnReady()         {}
func (NopObserver) OnError(error)    {}
func (NopObserver) OnClose()         {}
func (NopObserver) OnReconnecting()  {}

// Recovering wraps o so a panicking callback is logged instead of unwinding into the
// driver goroutine or the pool action that fired it.
func Recovering(o Observer, logger *slog.Logger) Observer {
	if o == nil {
		return NopObserver{}
	}
	if _, ok := o.(NopObserver); ok {
		return o
	}
	if logger == nil {
		logger = slog.Default()
	}
	return recovering{inner: o, logger: logger}
}

type recovering struct {
	inner  Observer
	logger *slog.Logger
}

func (r recovering) guard(event string) {
	if p := recover(); p != nil {
		r.logger.Error("Observer panicked", "event", event, "panic", p)
	}
}

func (r recovering) OnConnect(addr string) {
	defer r.guard("connect")
	r.inner.OnConnect(addr)
}

func (r recovering) OnReady() {
	defer r.guard("ready")
	r.inner.OnReady()
}

func (r recovering) OnError(err error) {
	defer r.guard("error")
	r.inner.OnError(err)
}

func (r recovering) OnClose() {
	defer r.guard("close")
	r.inner.OnClose()
}

func (r recovering) OnReconnecting() {
	defer r.guard("reconnecting")
	r.inner.OnReconnecting()
}
