package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bjaus/retry/v2/internal/cli"
	"github.com/bjaus/retry/v2/internal/sim"
	"github.com/bjaus/retry/v2/retryprom"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "retrysim",
		Short:        "Simulate retry policies and cancellable delays on a virtual clock",
		Long:         "Runs retry executions against a virtual clock so backoff and deadlines can be inspected step by step without waiting.",
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().Bool("metrics", false, "Print the recorded Prometheus metrics")

	runnerFactory := func(cmd *cobra.Command) (*sim.Runner, prometheus.Gatherer, error) {
		level, _ := cmd.Flags().GetString("log-level")
		logger, err := cli.NewLogger(level)
		if err != nil {
			return nil, nil, err
		}

		withMetrics, _ := cmd.Flags().GetBool("metrics")
		if !withMetrics {
			return sim.NewRunner(logger, nil), nil, nil
		}
		reg := prometheus.NewRegistry()
		metrics, err := retryprom.New(reg, "retrysim")
		if err != nil {
			return nil, nil, err
		}
		return sim.NewRunner(logger, metrics), reg, nil
	}

	rootCmd.AddCommand(cli.DelayCmd(runnerFactory))
	rootCmd.AddCommand(cli.RetryCmd(runnerFactory))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
