package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/c360/semlink/broker"
	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/pkg/tlsutil"
)

// Config configures MQTT sessions
type Config struct {
	URL          string               `json:"url" yaml:"url"`
	ClientID     string               `json:"client_id,omitempty" yaml:"client_id,omitempty"` // default "semlink-<uuid>"
	Username     string               `json:"username,omitempty" yaml:"username,omitempty"`
	Password     string               `json:"password,omitempty" yaml:"password,omitempty"`
	QoS          byte                 `json:"qos" yaml:"qos"`
	CleanSession bool                 `json:"clean_session" yaml:"clean_session"`
	KeepAlive    time.Duration        `json:"keep_alive,omitempty" yaml:"keep_alive,omitempty"`
	Quiesce      time.Duration        `json:"quiesce,omitempty" yaml:"quiesce,omitempty"` // grace period on Close
	TLS          tlsutil.ClientConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "mqtt", "Validate", "check url")
	}
	if c.QoS > 2 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "mqtt", "Validate",
			fmt.Sprintf("check qos %d", c.QoS))
	}
	return c.TLS.Validate()
}

// ClientFactory creates a Paho client from options
type ClientFactory func(opts *paho.ClientOptions) paho.Client

// Option configures a Dialer
type Option func(*Dialer)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dialer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClientFactory replaces paho.NewClient
func WithClientFactory(f ClientFactory) Option {
	return func(d *Dialer) {
		if f != nil {
			d.newClient = f
		}
	}
}

// Dialer opens MQTT sessions. It implements broker.Dialer.
type Dialer struct {
	cfg       Config
	tlsConfig *tls.Config
	logger    *slog.Logger
	newClient ClientFactory
}

var _ broker.Dialer = (*Dialer)(nil)

// NewDialer validates cfg and loads TLS material
func NewDialer(cfg Config, opts ...Option) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "semlink-" + uuid.NewString()
	}
	if cfg.Quiesce <= 0 {
		cfg.Quiesce = 250 * time.Millisecond
	}

	tlsConfig, err := tlsutil.LoadClientConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	d := &Dialer{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		logger:    slog.Default(),
		newClient: paho.NewClient,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "mqtt", "url", cfg.URL)
	return d, nil
}

// ClientID returns the MQTT client identifier used for every session
func (d *Dialer) ClientID() string {
	return d.cfg.ClientID
}

func (d *Dialer) clientOptions(sink broker.Sink) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(d.cfg.URL).
		SetClientID(d.cfg.ClientID).
		SetCleanSession(d.cfg.CleanSession).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(false).
		SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
			sink.Deliver(msg.Topic(), msg.Payload())
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			sink.Closed(err)
		})

	if d.cfg.Username != "" {
		opts.SetUsername(d.cfg.Username)
		opts.SetPassword(d.cfg.Password)
	}
	if d.cfg.KeepAlive > 0 {
		opts.SetKeepAlive(d.cfg.KeepAlive)
	}
	if d.tlsConfig != nil {
		opts.SetTLSConfig(d.tlsConfig)
	}
	return opts
}

// Dial implements broker.Dialer
func (d *Dialer) Dial(ctx context.Context, sink broker.Sink) (broker.Conn, error) {
	client := d.newClient(d.clientOptions(sink))

	d.logger.Debug("Connecting to broker", "client_id", d.cfg.ClientID)
	if err := wait(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		return nil, errors.WrapTransient(err, "mqtt", "Dial", "connect")
	}

	return &conn{
		client:  client,
		qos:     d.cfg.QoS,
		quiesce: uint(d.cfg.Quiesce / time.Millisecond),
	}, nil
}

// wait blocks until the token completes or ctx ends
func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

type conn struct {
	client    paho.Client
	qos       byte
	quiesce   uint
	closeOnce sync.Once
}

func (c *conn) Subscribe(ctx context.Context, pattern string) error {
	// nil callback routes messages to the default publish handler
	return wait(ctx, c.client.Subscribe(pattern, c.qos, nil))
}

func (c *conn) Unsubscribe(ctx context.Context, pattern string) error {
	return wait(ctx, c.client.Unsubscribe(pattern))
}

func (c *conn) Publish(ctx context.Context, topicName string, payload []byte) error {
	return wait(ctx, c.client.Publish(topicName, c.qos, false, payload))
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.client.Disconnect(c.quiesce)
	})
	return nil
}
