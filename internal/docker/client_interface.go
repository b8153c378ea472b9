package docker

import (
	"context"
	"io"
)

// IClient defines the interface for the high-level Docker client.
// This allows for mocking in tests.
type IClient interface {
	Close() error
	CheckDaemon(ctx context.Context) error
	EnsureNetwork(ctx context.Context, name string) error
	ImageBuild(ctx context.Context, opts ImageBuildOptions) (string, error)
	RemoveImage(ctx context.Context, ref string) error
	StartContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StopContainer(ctx context.Context, containerID string) error
	ContainerStatsStream(ctx context.Context, name string) (io.ReadCloser, error)
}

var _ IClient = (*Client)(nil)
