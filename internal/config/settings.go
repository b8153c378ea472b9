package config

import (
	"strconv"
	"time"

	"github.com/spf13/viper"
)

const (
	RuntimeCompose = "compose"
	RuntimeEngine  = "engine"

	StatsSourceCLI    = "cli"
	StatsSourceEngine = "engine"
)

// Settings is a typed snapshot of the loaded configuration.
type Settings struct {
	Verbose bool
	LogFile string
	LogJSON bool

	Runtime       string
	StatsSource   string
	DockerBinary  string
	ContainerName string
	Network       string

	BenchmarkDir string
	ResultDir    string
	BaseURL      string

	WebConcurrency     int
	WebDuration        time.Duration
	WebRuns            int
	WebDataFile        string
	WebDataSourceDir   string
	ComputationRuns    int
	ComputationTimeout time.Duration

	SettleDelay time.Duration
	Cooldown    time.Duration
	MaxFailures int

	MetricsAddr string

	HistoryEnabled bool
	HistoryType    string
	HistoryDSN     string
}

// Current reads the settings from viper.
func Current() Settings {
	return Settings{
		Verbose: viper.GetBool("verbose"),
		LogFile: viper.GetString("log_file"),
		LogJSON: viper.GetBool("log_json"),

		Runtime:       viper.GetString("runtime"),
		StatsSource:   viper.GetString("stats_source"),
		DockerBinary:  viper.GetString("docker_binary"),
		ContainerName: viper.GetString("container_name"),
		Network:       viper.GetString("network"),

		BenchmarkDir: viper.GetString("benchmark_dir"),
		ResultDir:    viper.GetString("result_dir"),
		BaseURL:      viper.GetString("base_url"),

		WebConcurrency:     viper.GetInt("web.concurrency"),
		WebDuration:        duration("web.duration"),
		WebRuns:            viper.GetInt("web.runs"),
		WebDataFile:        viper.GetString("web.data_file"),
		WebDataSourceDir:   viper.GetString("web.datasource_dir"),
		ComputationRuns:    viper.GetInt("computation.runs"),
		ComputationTimeout: duration("computation.timeout"),

		SettleDelay: duration("settle_delay"),
		Cooldown:    duration("cooldown"),
		MaxFailures: viper.GetInt("max_failures"),

		MetricsAddr: viper.GetString("metrics_addr"),

		HistoryEnabled: viper.GetBool("history.enabled"),
		HistoryType:    viper.GetString("history.type"),
		HistoryDSN:     viper.GetString("history.dsn"),
	}
}

// duration accepts "30s" style values and bare numbers as seconds.
func duration(key string) time.Duration {
	switch v := viper.Get(key).(type) {
	case int, int32, int64, float64:
		return time.Duration(viper.GetFloat64(key) * float64(time.Second))
	case string:
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(n * float64(time.Second))
		}
	}
	return viper.GetDuration(key)
}
