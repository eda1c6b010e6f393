// Package nats provides a broker.Dialer backed by core NATS.
//
// The client's built-in reconnect is disabled with NoReconnect so a dropped session
// closes the connection and the broker.Manager's backoff decides when to dial again.
//
// # Topic mapping
//
// Topics use "/" separators with MQTT-style wildcards. They map onto NATS subjects as:
//
//	"/"  ->  "."
//	"+"  ->  "*"
//	"#"  ->  ">"
//
// NATS ">" needs at least one token while "#" also matches the parent level, so a
// pattern ending in "/#" subscribes both the parent subject and "parent.>". Inbound
// subjects are mapped back to "/" topics before delivery. Topic segments may not
// contain characters NATS reserves (".", "*", ">" or whitespace).
//
// Overlapping patterns each hold a NATS subscription, which would deliver one message
// several times. Each message is delivered once, by the lowest sorted pattern that
// matches it.
package nats
