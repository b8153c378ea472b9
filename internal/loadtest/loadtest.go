// Package loadtest drives an HTTP target with concurrent GET traffic for a
// fixed duration and reduces throughput and latency into percentiles.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"sharkbench/internal/percentile"
)

const (
	DefaultRequestTimeout = 5 * time.Second

	// MinDuration yields at least four per-second samples, enough for the
	// worst-case tail to never exceed the median.
	MinDuration = 5 * time.Second
)

var (
	ErrNoSuccessfulRequests = errors.New("no successful requests, something is wrong (run with --verbose to see the errors)")
	ErrRequestsFailed       = errors.New("some requests failed (run with --verbose to see the errors)")
)

// Options configures one load test run.
type Options struct {
	Concurrency int
	Duration    time.Duration
	Requests    []PreparedRequest
	Validator   Validator

	// RequestTimeout bounds a single request. Defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration

	// FailOnError turns any failed request into an error.
	FailOnError bool
	Verbose     bool
}

func (o Options) validate() error {
	if o.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", o.Concurrency)
	}
	if o.Duration < MinDuration {
		return fmt.Errorf("duration must be at least %s, got %s", MinDuration, o.Duration)
	}
	if len(o.Requests) == 0 {
		return errors.New("no requests to send")
	}
	return nil
}

// ThreadResult is what a single worker measured. It is owned by the worker
// until the worker returns.
type ThreadResult struct {
	SuccessCount int
	FailCount    int

	// LatenciesUs holds one latency per 200 response, in microseconds.
	LatenciesUs []int64

	// RPSPerSecond holds, for every completed second since the shared start,
	// the number of successful requests in that second.
	RPSPerSecond []int

	TotalTime time.Duration
}

// Result is the merged outcome of all workers.
type Result struct {
	SuccessCount  int
	FailCount     int
	TotalTime     time.Duration
	RPSMedian     int
	RPSP99        int // worst-case tail: the p1 of the per-second series
	LatencyMedian time.Duration
	LatencyP99    time.Duration
}

// Run spawns Concurrency workers, each replaying its own shuffled copy of the
// requests until Duration has elapsed, and merges their results.
// Workers only check the deadline after a full pass over their requests.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Validator == nil {
		opts.Validator = ValidateJSON
	}

	results := make([]ThreadResult, opts.Concurrency)
	start := make(chan struct{})

	// Workers only fail when ctx is cancelled; the group context then
	// stops the remaining workers' in-flight requests too.
	g, gctx := errgroup.WithContext(ctx)
	for i := range opts.Concurrency {
		requests := slices.Clone(opts.Requests)
		rand.Shuffle(len(requests), func(a, b int) {
			requests[a], requests[b] = requests[b], requests[a]
		})

		w := &worker{
			id:        i,
			requests:  requests,
			opts:      opts,
			client:    newClient(opts.RequestTimeout),
			startGate: start,
		}
		g.Go(func() error {
			res, err := w.run(gctx)
			results[i] = res
			return err
		})
	}
	close(start)
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load test interrupted: %w", err)
	}

	return merge(results, opts.FailOnError)
}

func newClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16
	return &http.Client{Timeout: timeout, Transport: transport}
}

type worker struct {
	id        int
	requests  []PreparedRequest
	opts      Options
	client    *http.Client
	startGate <-chan struct{}
}

// run drives requests until the duration has elapsed. It returns ctx's error
// when cancelled first.
func (w *worker) run(ctx context.Context) (ThreadResult, error) {
	defer w.client.CloseIdleConnections()

	var (
		res       ThreadResult
		lastCount int
		second    = 1
		deadline  = int(w.opts.Duration / time.Second)
		done      bool
	)
	res.LatenciesUs = make([]int64, 0, 1024)
	res.RPSPerSecond = make([]int, 0, deadline)

	<-w.startGate
	start := time.Now()

	for !done {
		for _, req := range w.requests {
			w.do(ctx, req, &res)

			elapsed := int(time.Since(start) / time.Second)
			for second < deadline && elapsed >= second {
				res.RPSPerSecond = append(res.RPSPerSecond, res.SuccessCount-lastCount)
				lastCount = res.SuccessCount
				second++
			}
			if elapsed >= deadline {
				done = true
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}

	res.TotalTime = time.Since(start).Truncate(time.Millisecond)
	return res, nil
}

func (w *worker) do(ctx context.Context, req PreparedRequest, res *ThreadResult) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		res.FailCount++
		w.debug("invalid request", "url", req.URL, "error", err)
		return
	}

	requestStart := time.Now()
	resp, err := w.client.Do(httpReq)
	if err != nil {
		res.FailCount++
		w.debug("request failed", "url", req.URL, "error", err, "success", res.SuccessCount, "fail", res.FailCount)
		return
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	latency := time.Since(requestStart)

	if err != nil {
		res.FailCount++
		w.debug("failed to read response", "url", req.URL, "error", err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		res.FailCount++
		w.debug("unexpected response", "url", req.URL, "status", resp.StatusCode, "success", res.SuccessCount, "fail", res.FailCount)
		return
	}

	res.LatenciesUs = append(res.LatenciesUs, latency.Microseconds())
	if err := w.opts.Validator(body, req.Expected); err != nil {
		res.FailCount++
		w.debug("validation failed", "url", req.URL, "body", string(body), "error", err)
		return
	}
	res.SuccessCount++
}

func (w *worker) debug(msg string, args ...any) {
	if w.opts.Verbose {
		slog.Debug(msg, append(args, "worker", w.id)...)
	}
}

func merge(results []ThreadResult, failOnError bool) (*Result, error) {
	var (
		merged    Result
		latencies []int64
		rps       []int
	)

	for _, r := range results {
		merged.TotalTime = max(merged.TotalTime, r.TotalTime)
		merged.SuccessCount += r.SuccessCount
		merged.FailCount += r.FailCount
		latencies = append(latencies, r.LatenciesUs...)

		for i, n := range r.RPSPerSecond {
			if i == len(rps) {
				rps = append(rps, 0)
			}
			rps[i] += n
		}
	}

	if merged.SuccessCount == 0 {
		return &merged, ErrNoSuccessfulRequests
	}
	if failOnError && merged.FailCount > 0 {
		return &merged, fmt.Errorf("%w: %d of %d", ErrRequestsFailed, merged.FailCount, merged.SuccessCount+merged.FailCount)
	}

	slices.Sort(rps)
	slices.Sort(latencies)
	if len(rps) > 0 {
		merged.RPSMedian = percentile.P50(rps)
		merged.RPSP99 = percentile.P1(rps)
	}
	merged.LatencyMedian = time.Duration(percentile.P50(latencies)) * time.Microsecond
	merged.LatencyP99 = time.Duration(percentile.P99(latencies)) * time.Microsecond

	return &merged, nil
}
