// Package mqtt provides a broker.Dialer backed by the Eclipse Paho MQTT client.
//
// Paho's own reconnect loop is disabled: every Dial opens a fresh client and a lost
// connection is reported to the broker.Manager through Sink.Closed, which then applies
// its backoff policy. Topic patterns are passed through unchanged because the manager's
// "/", "+" and "#" syntax is MQTT's.
//
// Basic usage:
//
//	dialer, err := mqtt.NewDialer(mqtt.Config{URL: "tcp://localhost:1883"})
//	if err != nil {
//	    return err
//	}
//	mgr, err := broker.New(broker.DefaultConfig(), dialer, broker.WithLogger(logger))
package mqtt
