package broker

import "context"

// Handler processes one inbound message. ctx expires after Config.HandlerTimeout.
type Handler func(ctx context.Context, topic string, payload []byte)

// Observer receives lifecycle notifications. Calls are synchronous and made without
// manager locks held, so an observer may call back into the manager. Panics are
// recovered and logged.
//
// Embed NopObserver to implement only the events you care about.
type Observer interface {
	OnConnecting()
	OnConnected()
	OnTimedOut()
	OnClosed(err error)
	OnError(err error)
	OnDisconnected()
}

// UnmatchedObserver is an optional Observer capability. When the configured Observer
// implements it, inbound messages that match no registered pattern are reported here.
type UnmatchedObserver interface {
	OnUnmatched(topic string, payload []byte)
}

// NopObserver ignores every notification
type NopObserver struct{}

func (NopObserver) OnConnecting()   {}
func (NopObserver) OnConnected()    {}
func (NopObserver) OnTimedOut()     {}
func (NopObserver) OnClosed(error)  {}
func (NopObserver) OnError(error)   {}
func (NopObserver) OnDisconnected() {}
