package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sharkbench/internal/config"
	"sharkbench/internal/telemetry"
)

var exit = os.Exit

var (
	cfgFile   string
	logCloser io.Closer
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sharkbench",
		Short: "Benchmark language runtimes and web frameworks in containers",
		Long: `sharkbench builds every language/framework sample under the benchmark
directory, starts it in a container, drives it with a computation request or
an HTTP load test, and merges the measured latency, throughput and memory
into the result tables.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
				logCloser = nil
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	cmd.PersistentFlags().String("log-file", "", "Additionally write JSON logs to this file")

	viper.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log_file", cmd.PersistentFlags().Lookup("log-file"))

	cmd.AddCommand(newRunCmd(), newHistoryCmd(), newResultsCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
}

// initConfig loads and validates the configuration, then installs the logger.
func initConfig(cmd *cobra.Command, args []string) error {
	if err := config.Load(cfgFile); err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	closer, err := telemetry.InitLogger(telemetry.LogOptions{
		Debug:   viper.GetBool("verbose"),
		JSON:    viper.GetBool("log_json"),
		File:    viper.GetString("log_file"),
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	logCloser = closer
	return nil
}
