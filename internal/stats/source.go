package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// execCommand allows mocking in tests.
var execCommand = exec.Command

// CLISource streams `docker stats --format json` from a subprocess.
type CLISource struct {
	Binary string
	Args   []string
}

// NewCLISource returns a source running the docker CLI stats command.
func NewCLISource() *CLISource {
	return &CLISource{
		Binary: "docker",
		Args:   []string{"stats", "--format", "json"},
	}
}

func (c *CLISource) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := execCommand(c.Binary, c.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to pipe %s stdout: %w", c.Binary, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s %s: %w", c.Binary, strings.Join(c.Args, " "), err)
	}
	slog.Debug("stats process started", "pid", cmd.Process.Pid)
	return &processFeed{ReadCloser: stdout, cmd: cmd}, nil
}

type processFeed struct {
	io.ReadCloser
	cmd  *exec.Cmd
	once sync.Once
}

func (p *processFeed) Close() error {
	var err error
	p.once.Do(func() {
		if killErr := p.cmd.Process.Kill(); killErr != nil {
			err = fmt.Errorf("failed to kill stats process: %w", killErr)
		}
		// Wait closes the pipe. A killed process always reports an exit error.
		_ = p.cmd.Wait()
	})
	return err
}

// StatsStreamer is the subset of the docker client the engine source needs.
type StatsStreamer interface {
	ContainerStatsStream(ctx context.Context, container string) (io.ReadCloser, error)
}

// EngineSource reads stats frames from the Docker Engine API for one container
// and renders them in the CLI line format. The container may come and go; the
// source keeps polling for it until closed.
type EngineSource struct {
	Client       StatsStreamer
	Container    string
	PollInterval time.Duration
}

// NewEngineSource returns a source that follows the named container.
func NewEngineSource(client StatsStreamer, container string) *EngineSource {
	return &EngineSource{Client: client, Container: container, PollInterval: time.Second}
}

type engineFrame struct {
	Name        string `json:"name"`
	MemoryStats struct {
		Usage uint64            `json:"usage"`
		Limit uint64            `json:"limit"`
		Stats map[string]uint64 `json:"stats"`
	} `json:"memory_stats"`
}

// memoryUsed mirrors the docker CLI: page cache that can be reclaimed is not counted.
func (f engineFrame) memoryUsed() uint64 {
	usage := f.MemoryStats.Usage
	for _, key := range []string{"total_inactive_file", "inactive_file"} {
		if v, ok := f.MemoryStats.Stats[key]; ok && v < usage {
			return usage - v
		}
	}
	return usage
}

func (e *EngineSource) Open(ctx context.Context) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()
		for ctx.Err() == nil {
			if err := e.follow(ctx, pw); err != nil {
				slog.Debug("engine stats stream ended", "container", e.Container, "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.PollInterval):
			}
		}
	}()

	return &engineFeed{PipeReader: pr, cancel: cancel}, nil
}

func (e *EngineSource) follow(ctx context.Context, w io.Writer) error {
	body, err := e.Client.ContainerStatsStream(ctx, e.Container)
	if err != nil {
		return err
	}
	defer body.Close()

	dec := json.NewDecoder(body)
	for {
		var frame engineFrame
		if err := dec.Decode(&frame); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if frame.MemoryStats.Usage == 0 && frame.MemoryStats.Limit == 0 {
			// Container stopped; the daemon sends empty frames until it is gone.
			continue
		}

		line, err := json.Marshal(map[string]string{
			"Name":     strings.TrimPrefix(frame.Name, "/"),
			"MemUsage": formatBytes(frame.memoryUsed()) + " / " + formatBytes(frame.MemoryStats.Limit),
		})
		if err != nil {
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return err
		}
	}
}

type engineFeed struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (f *engineFeed) Close() error {
	f.cancel()
	return f.PipeReader.Close()
}
