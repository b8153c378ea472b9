package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	DefaultContainerName = "benchmark"
	DefaultNetwork       = "sharkbench-benchmark-network"
	DefaultPort          = "3000"
)

// BenchmarkSysctls widens the ephemeral port range for the load test.
var BenchmarkSysctls = map[string]string{"net.ipv4.ip_local_port_range": "1024 65535"}

// EngineRuntime builds and runs the benchmark container through the Docker
// Engine API instead of the compose CLI. The lifecycle definition is not
// used; the container is configured like the rendered compose file.
type EngineRuntime struct {
	Client    IClient
	Container string
	Network   string
	Port      string
}

func NewEngineRuntime(client IClient, container, network string) *EngineRuntime {
	return &EngineRuntime{Client: client, Container: container, Network: network, Port: DefaultPort}
}

var tagInvalid = regexp.MustCompile(`[^a-z0-9._-]+`)

// ImageTag derives the image tag for a benchmark directory.
func ImageTag(dir string) string {
	name := tagInvalid.ReplaceAllString(strings.ToLower(filepath.Base(filepath.Clean(dir))), "-")
	name = strings.Trim(name, ".-_")
	if name == "" {
		name = "target"
	}
	return "sharkbench/" + name + ":latest"
}

func (r *EngineRuntime) Up(ctx context.Context, dir, _ string) error {
	if r.Network != "" {
		if err := r.Client.EnsureNetwork(ctx, r.Network); err != nil {
			return err
		}
	}

	buildContext := BuildContext(dir)
	defer buildContext.Close()

	tag := ImageTag(dir)
	id, err := r.Client.ImageBuild(ctx, ImageBuildOptions{BuildContext: buildContext, Tag: tag})
	if err != nil {
		return fmt.Errorf("failed to build %s: %w", dir, err)
	}
	slog.Info("built image", "tag", tag, "id", id)

	// A container left over from an aborted run would block the name.
	if err := r.Client.StopContainer(ctx, r.Container); err != nil {
		return err
	}

	_, err = r.Client.StartContainer(ctx, ContainerSpec{
		Name:    r.Container,
		Image:   tag,
		Network: r.Network,
		Port:    r.Port,
		Sysctls: BenchmarkSysctls,
	})
	return err
}

func (r *EngineRuntime) Down(ctx context.Context, dir, _ string) error {
	return errors.Join(
		r.Client.StopContainer(ctx, r.Container),
		r.Client.RemoveImage(ctx, ImageTag(dir)),
	)
}
