// Package stats samples the memory usage of the container under test from the
// container runtime's streaming stats feed.
package stats

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"sharkbench/internal/percentile"
)

// MemoryUsage is the reduced memory usage of one tracking window, in bytes.
type MemoryUsage struct {
	Median int64
	P99    int64
}

// Source opens a line-oriented stats feed. Closing the returned reader
// terminates whatever produces the feed.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Sampler collects memory samples for one container name. A single background
// collector drains the feed for the lifetime of the sampler and appends samples
// only while tracking is enabled.
type Sampler struct {
	container string

	mu       sync.Mutex
	tracking bool
	samples  []int64
	err      error

	feed io.ReadCloser
	done chan struct{}
}

// NewSampler creates a sampler for the container with the given name.
func NewSampler(container string) *Sampler {
	return &Sampler{container: container}
}

// Run opens the feed and starts the collector. It must be called once.
func (s *Sampler) Run(ctx context.Context, src Source) error {
	if s.done != nil {
		return errors.New("stats sampler already running")
	}
	feed, err := src.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open stats feed: %w", err)
	}
	s.feed = feed
	s.done = make(chan struct{})
	go s.collect(feed)
	return nil
}

func (s *Sampler) collect(r io.Reader) {
	defer close(s.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.handleLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		slog.Debug("stats feed read failed", "error", err)
	}
	slog.Debug("stats collector finished", "container", s.container)
}

func (s *Sampler) handleLine(line string) {
	if !s.isTracking() {
		return
	}

	usage, ok, err := parseLine(line, s.container)
	if err != nil {
		if errors.Is(err, ErrUnknownUnit) {
			slog.Error("stats feed format changed", "container", s.container, "error", err)
			s.mu.Lock()
			if s.err == nil {
				s.err = err
			}
			s.mu.Unlock()
			return
		}
		slog.Warn("skipping stats line", "error", err)
		return
	}
	if !ok {
		return
	}

	s.mu.Lock()
	if s.tracking {
		s.samples = append(s.samples, usage)
	}
	s.mu.Unlock()
}

func (s *Sampler) isTracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking
}

// Start clears previously collected samples and enables tracking.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = s.samples[:0]
	s.tracking = true
}

// Stop disables tracking. The collector keeps draining the feed.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracking = false
}

// Err returns the first unrecoverable feed error, if any.
func (s *Sampler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// MemoryUsage returns median and p99 over the samples of the last window,
// or zero values when nothing was collected.
func (s *Sampler) MemoryUsage() MemoryUsage {
	s.mu.Lock()
	sorted := slices.Clone(s.samples)
	s.mu.Unlock()

	if len(sorted) == 0 {
		return MemoryUsage{}
	}
	slices.Sort(sorted)
	return MemoryUsage{
		Median: percentile.P50(sorted),
		P99:    percentile.P99(sorted),
	}
}

// Dispose terminates the feed and waits briefly for the collector to exit.
func (s *Sampler) Dispose() error {
	s.Stop()
	if s.feed == nil {
		return nil
	}
	err := s.feed.Close()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		slog.Warn("stats collector did not exit after dispose", "container", s.container)
	}
	return err
}
