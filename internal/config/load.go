// Package config loads sharkbench settings from config.yaml, .env and
// SHARKBENCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "SHARKBENCH"

// Load initializes the configuration from file and environment variables.
// A missing config.yaml is not an error; an explicit cfgFile must exist.
func Load(cfgFile string) error {
	// .env is optional
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}
	slog.Debug("using config file", "path", viper.ConfigFileUsed())
	return nil
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("verbose", false)
	viper.SetDefault("log_file", "")
	viper.SetDefault("log_json", false)

	viper.SetDefault("runtime", RuntimeCompose)
	viper.SetDefault("stats_source", StatsSourceCLI)
	viper.SetDefault("docker_binary", "docker")
	viper.SetDefault("container_name", "benchmark")
	viper.SetDefault("network", "sharkbench-benchmark-network")

	viper.SetDefault("benchmark_dir", "benchmark")
	viper.SetDefault("result_dir", "result")

	viper.SetDefault("base_url", "http://localhost:3000")
	viper.SetDefault("web.concurrency", 32)
	viper.SetDefault("web.duration", 15*time.Second)
	viper.SetDefault("web.runs", 5)
	viper.SetDefault("web.data_file", "src/benchmark/web/data/static/data.json")
	viper.SetDefault("web.datasource_dir", "src/benchmark/web/data")
	viper.SetDefault("computation.runs", 15)
	viper.SetDefault("computation.timeout", 600*time.Second)

	viper.SetDefault("settle_delay", 5*time.Second)
	viper.SetDefault("cooldown", time.Second)
	viper.SetDefault("max_failures", 5)

	viper.SetDefault("metrics_addr", "")

	viper.SetDefault("history.enabled", true)
	viper.SetDefault("history.type", "sqlite")
	viper.SetDefault("history.dsn", ".sharkbench.db")

	viper.SetDefault("notifications.slack.enabled", false)
	viper.SetDefault("notifications.slack.channel", "#benchmarks")
	viper.SetDefault("notifications.discord.enabled", false)
}
