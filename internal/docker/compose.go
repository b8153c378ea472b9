package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

var execCommand = exec.CommandContext

const (
	ComposeFileName = "docker-compose.yml"
	IgnoreFileName  = ".dockerignore"
)

const composeTemplate = `services:
  benchmark:
    build: .
    container_name: %s
    ports:
      - "%s:%s"
    sysctls:
      - net.ipv4.ip_local_port_range=1024 65535

networks:
  default:
    name: "%s"
    external: true
`

// RenderComposeFile renders the lifecycle definition for one benchmark container.
func RenderComposeFile(container, network string) string {
	return fmt.Sprintf(composeTemplate, container, DefaultPort, DefaultPort, network)
}

func ignoreFile() string {
	var b []byte
	for _, d := range IgnoredDirs {
		b = append(b, d...)
		b = append(b, '\n')
	}
	return string(b)
}

// ComposeRuntime drives the docker compose CLI in the benchmark directory.
// With a lifecycle definition it writes the compose and ignore files first
// and removes them on Down; without one the directory must bring its own.
type ComposeRuntime struct {
	Binary string
}

func NewComposeRuntime() *ComposeRuntime {
	return &ComposeRuntime{Binary: "docker"}
}

func (r *ComposeRuntime) Up(ctx context.Context, dir, lifecycle string) error {
	if lifecycle != "" {
		if err := os.WriteFile(filepath.Join(dir, ComposeFileName), []byte(lifecycle), 0o644); err != nil {
			return fmt.Errorf("failed to write compose file: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, IgnoreFileName), []byte(ignoreFile()), 0o644); err != nil {
			return fmt.Errorf("failed to write ignore file: %w", err)
		}
	}
	return r.compose(ctx, dir, "up", "--build", "-d")
}

func (r *ComposeRuntime) Down(ctx context.Context, dir, lifecycle string) error {
	err := r.compose(ctx, dir, "down", "--rmi", "all")
	if lifecycle != "" {
		for _, name := range []string{ComposeFileName, IgnoreFileName} {
			if rerr := os.Remove(filepath.Join(dir, name)); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				err = errors.Join(err, rerr)
			}
		}
	}
	return err
}

func (r *ComposeRuntime) compose(ctx context.Context, dir string, args ...string) error {
	cmd := execCommand(ctx, r.Binary, append([]string{"compose"}, args...)...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker compose %s failed: %w\nOutput:\n%s", args[0], err, out)
	}
	return nil
}
