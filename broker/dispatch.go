package broker

import (
	"context"
	"time"
)

// deliver is the single inbound entry point. Messages from attempts that are no longer
// current are dropped.
func (m *Manager) deliver(a *attempt, topicName string, payload []byte) {
	m.mu.Lock()
	stale := m.current != a
	m.mu.Unlock()
	if stale {
		return
	}

	m.metrics.RecordMessageReceived(m.name)
	m.dispatch(topicName, payload)
}

// dispatch invokes every handler whose pattern matches topicName. Dispatches are
// serialized per manager; the order among handlers of one message is unspecified.
func (m *Manager) dispatch(topicName string, payload []byte) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	handlers := m.handlers.Match(topicName)
	if len(handlers) == 0 {
		m.metrics.RecordDispatch(m.name, 0, 0)
		m.unmatchedLog.Do(func() {
			m.logger.Info("No handler matched inbound message", "topic", topicName, "bytes", len(payload))
		})
		if m.unmatched != nil {
			m.notifyUnmatched(topicName, payload)
		}
		return
	}

	start := time.Now()
	for _, h := range handlers {
		m.invoke(h, topicName, payload)
	}
	m.metrics.RecordDispatch(m.name, len(handlers), time.Since(start))
}

func (m *Manager) invoke(h Handler, topicName string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandlerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			m.metrics.RecordHandlerPanic(m.name)
			m.logger.Error("Handler panicked", "topic", topicName, "panic", r)
		}
	}()

	h(ctx, topicName, payload)
}

func (m *Manager) notifyUnmatched(topicName string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Observer panicked", "event", "unmatched", "panic", r)
		}
	}()
	m.unmatched.OnUnmatched(topicName, payload)
}
