package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sharkbench/internal/db"
	"sharkbench/internal/loadtest"
)

// Validate validates configuration values and returns an error if any are invalid.
// This function should be called after viper has loaded the configuration.
func Validate() error {
	var errs []string

	s := Current()

	switch s.Runtime {
	case RuntimeCompose, RuntimeEngine:
	default:
		errs = append(errs, fmt.Sprintf("runtime must be %q or %q, got: %q", RuntimeCompose, RuntimeEngine, s.Runtime))
	}
	switch s.StatsSource {
	case StatsSourceCLI, StatsSourceEngine:
	default:
		errs = append(errs, fmt.Sprintf("stats_source must be %q or %q, got: %q", StatsSourceCLI, StatsSourceEngine, s.StatsSource))
	}

	positive := map[string]int{
		"web.concurrency":  s.WebConcurrency,
		"web.runs":         s.WebRuns,
		"computation.runs": s.ComputationRuns,
	}
	for _, key := range []string{"web.concurrency", "web.runs", "computation.runs"} {
		if viper.IsSet(key) && positive[key] <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got: %d", key, positive[key]))
		}
	}

	if s.WebDuration < loadtest.MinDuration {
		errs = append(errs, fmt.Sprintf("web.duration must be at least %s, got: %v", loadtest.MinDuration, s.WebDuration))
	}
	if s.ComputationTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("computation.timeout must be positive, got: %v", s.ComputationTimeout))
	}

	nonNegative := []struct {
		key string
		d   time.Duration
	}{
		{"settle_delay", s.SettleDelay},
		{"cooldown", s.Cooldown},
	}
	for _, nn := range nonNegative {
		if nn.d < 0 {
			errs = append(errs, fmt.Sprintf("%s must not be negative, got: %v", nn.key, nn.d))
		}
	}
	if s.MaxFailures < 0 {
		errs = append(errs, fmt.Sprintf("max_failures must not be negative, got: %d", s.MaxFailures))
	}

	if s.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(s.MetricsAddr); err != nil {
			errs = append(errs, fmt.Sprintf("metrics_addr must be host:port, got: %q", s.MetricsAddr))
		}
	}

	if s.HistoryEnabled {
		store := db.StoreConfig{Type: s.HistoryType, ConnectionString: s.HistoryDSN}
		if err := store.Check(); errors.Is(err, db.ErrMissingDSN) {
			errs = append(errs, "history.dsn is required for postgres")
		} else if err != nil {
			errs = append(errs, fmt.Sprintf("history.type must be sqlite or postgres, got: %q", s.HistoryType))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}
