package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		setup     func()
		wantError bool
		errMsg    string
	}{
		{
			name:      "Defaults",
			wantError: false,
		},
		{
			name: "Engine Runtime With Postgres History",
			setup: func() {
				viper.Set("runtime", "engine")
				viper.Set("stats_source", "engine")
				viper.Set("history.type", "postgres")
				viper.Set("history.dsn", "postgres://localhost/sharkbench")
				viper.Set("metrics_addr", ":2112")
			},
			wantError: false,
		},
		{
			name: "Unknown Runtime",
			setup: func() {
				viper.Set("runtime", "podman")
			},
			wantError: true,
			errMsg:    "runtime must be",
		},
		{
			name: "Unknown Stats Source",
			setup: func() {
				viper.Set("stats_source", "cgroup")
			},
			wantError: true,
			errMsg:    "stats_source must be",
		},
		{
			name: "Invalid Concurrency",
			setup: func() {
				viper.Set("web.concurrency", 0)
			},
			wantError: true,
			errMsg:    "web.concurrency must be positive",
		},
		{
			name: "Invalid Computation Runs",
			setup: func() {
				viper.Set("computation.runs", -1)
			},
			wantError: true,
			errMsg:    "computation.runs must be positive",
		},
		{
			name: "Load Test Too Short",
			setup: func() {
				viper.Set("web.duration", 2*time.Second)
			},
			wantError: true,
			errMsg:    "web.duration must be at least",
		},
		{
			name: "Negative Cooldown",
			setup: func() {
				viper.Set("cooldown", "-1s")
			},
			wantError: true,
			errMsg:    "cooldown must not be negative",
		},
		{
			name: "Invalid Metrics Address",
			setup: func() {
				viper.Set("metrics_addr", "2112")
			},
			wantError: true,
			errMsg:    "metrics_addr must be host:port",
		},
		{
			name: "Postgres Without DSN",
			setup: func() {
				viper.Set("history.type", "postgres")
				viper.Set("history.dsn", "")
			},
			wantError: true,
			errMsg:    "history.dsn is required",
		},
		{
			name: "Unknown History Type Ignored When Disabled",
			setup: func() {
				viper.Set("history.enabled", false)
				viper.Set("history.type", "mongo")
			},
			wantError: false,
		},
		{
			name: "Multiple Errors",
			setup: func() {
				viper.Set("runtime", "podman")
				viper.Set("max_failures", -1)
			},
			wantError: true,
			errMsg:    "configuration validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			SetDefaults()

			if tt.setup != nil {
				tt.setup()
			}

			err := Validate()
			if tt.wantError {
				if err == nil {
					t.Errorf("Validate() expected error, got nil")
				} else if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			}
		})
	}
	viper.Reset()
}
