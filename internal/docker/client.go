package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// APIClient defines the subset of Docker API methods we use.
// This allows for mocking in tests.
type APIClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (types.ImageBuildResponse, error)
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerStats(ctx context.Context, containerID string, stream bool) (container.StatsResponseReader, error)
	NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
	Close() error
}

// Client wraps the official Docker client to provide high-level orchestration methods.
type Client struct {
	api APIClient
}

// NewClient creates a new Docker client instance.
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Client{api: cli}, nil
}

// Close closes the underlying docker client connection.
func (c *Client) Close() error {
	return c.api.Close()
}

// CheckDaemon verifies that the Docker daemon is running and reachable.
func (c *Client) CheckDaemon(ctx context.Context) error {
	_, err := c.api.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker daemon is not reachable: %w", err)
	}
	return nil
}

// EnsureNetwork creates the bridge network name unless it already exists.
func (c *Client) EnsureNetwork(ctx context.Context, name string) error {
	networks, err := c.api.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	// The name filter matches substrings.
	for _, n := range networks {
		if n.Name == name {
			return nil
		}
	}

	if _, err := c.api.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"}); err != nil {
		return fmt.Errorf("failed to create network %s: %w", name, err)
	}
	slog.Info("created network", "name", name)
	return nil
}

// ImageBuildOptions configures how an image is built.
type ImageBuildOptions struct {
	// BuildContext is the tar stream containing the build context.
	BuildContext io.Reader
	// Dockerfile is the path to the Dockerfile within the build context (default: "Dockerfile").
	Dockerfile string
	// Tag is the image tag to apply (e.g., "sharkbench/gin:latest").
	Tag     string
	NoCache bool
}

// ImageBuild builds a Docker image from a build context and returns the image ID.
func (c *Client) ImageBuild(ctx context.Context, opts ImageBuildOptions) (string, error) {
	if opts.BuildContext == nil {
		return "", fmt.Errorf("build context is required")
	}
	if opts.Tag == "" {
		return "", fmt.Errorf("image tag is required")
	}
	if opts.Dockerfile == "" {
		opts.Dockerfile = "Dockerfile"
	}

	resp, err := c.api.ImageBuild(ctx, opts.BuildContext, build.ImageBuildOptions{
		Dockerfile:  opts.Dockerfile,
		Tags:        []string{opts.Tag},
		NoCache:     opts.NoCache,
		Remove:      true, // Remove intermediate containers
		ForceRemove: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start image build: %w", err)
	}
	defer resp.Body.Close()

	var imageID string
	decoder := json.NewDecoder(resp.Body)
	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("failed to read build output: %w", err)
		}

		if msg.Error != nil {
			return "", fmt.Errorf("build failed: %s", msg.Error.Message)
		}

		if msg.Stream != "" {
			slog.Debug("build", "output", string(bytes.TrimSpace([]byte(msg.Stream))))
		}

		if msg.Aux != nil {
			var aux struct {
				ID string `json:"ID"`
			}
			if err := json.Unmarshal(*msg.Aux, &aux); err == nil && aux.ID != "" {
				imageID = aux.ID
			}
		}
	}

	if imageID == "" {
		// Older builders only report the tag.
		return opts.Tag, nil
	}
	return imageID, nil
}

// RemoveImage force-removes an image. A missing image is not an error.
func (c *Client) RemoveImage(ctx context.Context, ref string) error {
	_, err := c.api.ImageRemove(ctx, ref, image.RemoveOptions{Force: true, PruneChildren: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove image %s: %w", ref, err)
	}
	return nil
}

// ContainerSpec describes the single benchmark container.
type ContainerSpec struct {
	Name    string
	Image   string
	Network string
	Port    string // published on the same host port, e.g. "3000"
	Sysctls map[string]string
}

// StartContainer creates and starts the container and returns its ID.
func (c *Client) StartContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	port, err := nat.NewPort("tcp", spec.Port)
	if err != nil {
		return "", fmt.Errorf("invalid port %q: %w", spec.Port, err)
	}

	var netConfig *network.NetworkingConfig
	if spec.Network != "" {
		netConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{spec.Network: {}},
		}
	}

	resp, err := c.api.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			ExposedPorts: nat.PortSet{port: struct{}{}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: spec.Port}}},
			Sysctls:      spec.Sysctls,
			NetworkMode:  container.NetworkMode(spec.Network),
		},
		netConfig, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := c.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	return resp.ID, nil
}

// StopContainer stops and removes the container. A missing container is not an error.
func (c *Client) StopContainer(ctx context.Context, containerID string) error {
	if err := c.api.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil
		}
		slog.Warn("failed to stop container", "container", containerID, "error", err)
	}

	err := c.api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}
	return nil
}

// ContainerStatsStream streams stats frames for a container until ctx ends
// or the container stops.
func (c *Client) ContainerStatsStream(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := c.api.ContainerStats(ctx, name, true)
	if err != nil {
		return nil, fmt.Errorf("failed to stream stats for %s: %w", name, err)
	}
	return resp.Body, nil
}
