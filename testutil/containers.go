package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// containerConfig holds configuration for test containers
type containerConfig struct {
	jetstream    bool
	version      string
	startTimeout time.Duration
}

// ContainerOption configures a test container
type ContainerOption func(*containerConfig)

// WithJetStream enables JetStream on the NATS server (required for KV buckets)
func WithJetStream() ContainerOption {
	return func(cfg *containerConfig) {
		cfg.jetstream = true
	}
}

// WithVersion specifies the image tag to use
func WithVersion(version string) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.version = version
	}
}

// WithStartTimeout sets the container startup timeout
func WithStartTimeout(timeout time.Duration) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.startTimeout = timeout
	}
}

// StartNATS starts a NATS server container and returns its client URL.
// The container is terminated when the test finishes.
func StartNATS(t testing.TB, opts ...ContainerOption) string {
	t.Helper()

	cfg := &containerConfig{
		version:      "2.11.7-alpine",
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	args := []string{
		"--port", "4222",
		"--http_port", "8222",
	}
	if cfg.jetstream {
		args = append(args, "--js")
	}

	req := testcontainers.ContainerRequest{
		Image:        "nats:" + cfg.version,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          args,
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
		),
	}
	container := startContainer(t, req)
	port, err := container.MappedPort(context.Background(), "4222")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}
	return fmt.Sprintf("nats://%s:%s", containerHost(t, container), port.Port())
}

// StartMosquitto starts an Eclipse Mosquitto broker allowing anonymous clients
// and returns its tcp:// URL
func StartMosquitto(t testing.TB, opts ...ContainerOption) string {
	t.Helper()

	cfg := &containerConfig{
		version:      "2.0.20",
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        "eclipse-mosquitto:" + cfg.version,
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(cfg.startTimeout),
	}
	container := startContainer(t, req)
	port, err := container.MappedPort(context.Background(), "1883")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}
	return fmt.Sprintf("tcp://%s:%s", containerHost(t, container), port.Port())
}

// StartRedis starts a Redis server container and returns its redis:// URL
func StartRedis(t testing.TB, opts ...ContainerOption) string {
	t.Helper()

	cfg := &containerConfig{
		version:      "7.4-alpine",
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        "redis:" + cfg.version,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(cfg.startTimeout),
	}
	container := startContainer(t, req)
	port, err := container.MappedPort(context.Background(), "6379")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", containerHost(t, container), port.Port())
}

func startContainer(t testing.TB, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()

	container, err := testcontainers.GenericContainer(context.Background(), testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start %s container: %v", req.Image, err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background()) // Best effort test cleanup
	})
	return container
}

func containerHost(t testing.TB, container testcontainers.Container) string {
	t.Helper()
	host, err := container.Host(context.Background())
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	return host
}
