package main

import (
	"fmt"
	"log/slog"

	"github.com/c360/semlink/broker"
	"github.com/c360/semlink/broker/mqtt"
	"github.com/c360/semlink/broker/nats"
	"github.com/c360/semlink/config"
	"github.com/c360/semlink/kvstore"
	"github.com/c360/semlink/kvstore/jskv"
	"github.com/c360/semlink/kvstore/redisconn"
	"github.com/c360/semlink/metric"
	"github.com/c360/semlink/pool"
)

func managerConfig(cfg config.BrokerConfig) broker.Config {
	return broker.Config{
		ReconnectInterval:    cfg.ReconnectInterval,
		MaxReconnectInterval: cfg.MaxReconnectInterval,
		ConnectionTimeout:    cfg.ConnectionTimeout,
		OperationTimeout:     cfg.OperationTimeout,
		HandlerTimeout:       cfg.HandlerTimeout,
	}
}

// newDialer builds the transport selected by cfg.Transport
func newDialer(cfg config.BrokerConfig, logger *slog.Logger) (broker.Dialer, error) {
	switch cfg.Transport {
	case config.TransportMQTT:
		return mqtt.NewDialer(mqtt.Config{
			URL:          cfg.URL,
			ClientID:     cfg.ClientID,
			Username:     cfg.Username,
			Password:     cfg.Password,
			QoS:          byte(cfg.QoS),
			CleanSession: cfg.CleanSession,
			KeepAlive:    cfg.KeepAlive,
			TLS:          cfg.TLS,
		}, mqtt.WithLogger(logger))
	case config.TransportNATS:
		return nats.NewDialer(nats.Config{
			URL:      cfg.URL,
			Name:     cfg.ClientID,
			Username: cfg.Username,
			Password: cfg.Password,
			Token:    cfg.Token,
			TLS:      cfg.TLS,
		}, nats.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown broker transport %q", cfg.Transport)
	}
}

// newStore builds the key-value store selected by cfg.Backend. It returns nil when no
// backend is configured.
func newStore(cfg config.StoreConfig, registry *metric.MetricsRegistry, logger *slog.Logger,
	observer kvstore.Observer) (*kvstore.Store, error) {
	var factory kvstore.DialFunc
	switch cfg.Backend {
	case "":
		return nil, nil
	case config.BackendRedis:
		d, err := redisconn.NewDialer(redisconn.Config{
			URL:         cfg.URL,
			ClientName:  appName,
			DialTimeout: cfg.DialTimeout,
			TLS:         cfg.TLS,
		},
			redisconn.WithObserver(observer),
			redisconn.WithLogger(logger),
			redisconn.WithMetrics(registry))
		if err != nil {
			return nil, err
		}
		factory = d.Factory()
	case config.BackendJetStream:
		d, err := jskv.NewDialer(jskv.Config{
			URL:            cfg.URL,
			Bucket:         cfg.Bucket,
			Name:           appName,
			ConnectTimeout: cfg.DialTimeout,
			TLS:            cfg.TLS,
		},
			jskv.WithObserver(observer),
			jskv.WithLogger(logger),
			jskv.WithMetrics(registry))
		if err != nil {
			return nil, err
		}
		factory = d.Factory()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	return kvstore.New(factory, kvstore.Config{
		Pool: pool.Config{
			Min:            cfg.Min,
			Max:            cfg.Max,
			TestOnBorrow:   cfg.TestOnBorrow,
			AcquireTimeout: cfg.AcquireTimeout,
		},
		ScanCount: cfg.ScanCount,
	},
		kvstore.WithName(cfg.Backend),
		kvstore.WithLogger(logger),
		kvstore.WithMetrics(registry))
}

// brokerEvents logs connection manager lifecycle events
type brokerEvents struct {
	broker.NopObserver
	logger *slog.Logger
}

func (e brokerEvents) OnConnected()       { e.logger.Info("Broker connected") }
func (e brokerEvents) OnTimedOut()        { e.logger.Warn("Broker connect attempt timed out") }
func (e brokerEvents) OnClosed(err error) { e.logger.Warn("Broker connection closed", "error", err) }
func (e brokerEvents) OnError(err error)  { e.logger.Warn("Broker operation failed", "error", err) }
func (e brokerEvents) OnDisconnected()    { e.logger.Info("Broker disconnected") }

// OnUnmatched implements broker.UnmatchedObserver
func (e brokerEvents) OnUnmatched(topic string, payload []byte) {
	e.logger.Debug("Message matched no handler", "topic", topic, "bytes", len(payload))
}

// storeEvents logs key-value connection events
type storeEvents struct {
	kvstore.NopObserver
	logger *slog.Logger
}

func (e storeEvents) OnConnect(addr string) { e.logger.Debug("Store connection opened", "addr", addr) }
func (e storeEvents) OnError(err error)     { e.logger.Warn("Store connection error", "error", err) }
func (e storeEvents) OnReconnecting()       { e.logger.Info("Store connection reconnecting") }
