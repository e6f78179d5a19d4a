package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bjaus/retry/v2"
	"github.com/bjaus/retry/v2/internal/sim"
)

// RunnerFactory builds the runner for a command invocation. The gatherer is
// nil when metrics are disabled.
type RunnerFactory func(cmd *cobra.Command) (*sim.Runner, prometheus.Gatherer, error)

// DelayCmd returns the command that races a cancellable delay against a deadline.
func DelayCmd(rf RunnerFactory) *cobra.Command {
	var s sim.DelayScenario

	cmd := &cobra.Command{
		Use:   "delay",
		Short: "Race a wait against a deadline on a virtual clock",
		Example: `  retrysim delay --wait 1s --deadline 2s --step 1s
  retrysim delay --wait 3s --deadline 2s --step 1s --step 1s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, gatherer, err := rf(cmd)
			if err != nil {
				return err
			}
			report, err := runner.RunDelay(cmd.Context(), s)
			if err != nil {
				return err
			}
			return render(cmd, report, gatherer)
		},
	}

	cmd.Flags().DurationVar(&s.Wait, "wait", time.Second, "Duration to wait")
	cmd.Flags().DurationVar(&s.Deadline, "deadline", 2*time.Second, "Deadline that cancels the wait")
	cmd.Flags().DurationSliceVar(&s.Steps, "step", nil, "Virtual clock advance (repeatable)")
	return cmd
}

// RetryCmd returns the command that simulates a retried operation.
func RetryCmd(rf RunnerFactory) *cobra.Command {
	var (
		s          sim.RetryScenario
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Run a retry policy against a slow, failing operation on a virtual clock",
		Example: `  retrysim retry --task-delay 1s --step 1001ms --step 1050ms
  retrysim retry --config policy.yaml --succeed-on 3 --every 250ms --horizon 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			s.Config = *cfg

			runner, gatherer, err := rf(cmd)
			if err != nil {
				return err
			}
			report, err := runner.RunRetry(cmd.Context(), s)
			if err != nil {
				return err
			}
			return render(cmd, report, gatherer)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML retry policy (defaults: 2 retries, 1s constant delay, no timeout)")
	cmd.Flags().DurationVar(&s.TaskDelay, "task-delay", time.Second, "Virtual time each invocation takes")
	cmd.Flags().IntVar(&s.SucceedOn, "succeed-on", 0, "Invocation that succeeds (0 never succeeds)")
	cmd.Flags().DurationSliceVar(&s.Steps, "step", nil, "Virtual clock advance (repeatable)")
	cmd.Flags().DurationVar(&s.Step, "every", 0, "Uniform advance used when no --step is given")
	cmd.Flags().DurationVar(&s.Horizon, "horizon", time.Minute, "Virtual time after which --every stops")
	return cmd
}

func loadConfig(path string) (*retry.Config, error) {
	if path == "" {
		return retry.ParseConfig(nil)
	}
	return retry.LoadConfig(path)
}

func render(cmd *cobra.Command, report *sim.Report, gatherer prometheus.Gatherer) error {
	out := cmd.OutOrStdout()
	asJSON, _ := cmd.Flags().GetBool("json")

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(newReportJSON(report)); err != nil {
			return err
		}
	} else {
		PrintReport(out, report)
	}

	if gatherer == nil {
		return nil
	}
	fmt.Fprintln(out)
	return WriteMetrics(out, gatherer)
}
