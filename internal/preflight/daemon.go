package preflight

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// DockerDaemon pings the Docker Engine through the SDK.
type DockerDaemon struct {
	inner *client.Client
}

// NewDockerDaemon creates a client from the environment (DOCKER_HOST etc.),
// optionally pinned to host.
func NewDockerDaemon(host string) (*DockerDaemon, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerDaemon{inner: inner}, nil
}

// Ping validates connectivity to the Docker daemon and returns its API version.
func (d *DockerDaemon) Ping(ctx context.Context) (string, error) {
	if d == nil || d.inner == nil {
		return "", fmt.Errorf("docker client not initialized")
	}
	ping, err := d.inner.Ping(ctx)
	if err != nil {
		return "", fmt.Errorf("docker ping: %w", err)
	}
	if ping.APIVersion == "" {
		return "", fmt.Errorf("docker ping returned empty API version")
	}
	return ping.APIVersion, nil
}

// Close releases resources held by the Docker client.
func (d *DockerDaemon) Close() error {
	if d == nil || d.inner == nil {
		return nil
	}
	return d.inner.Close()
}
