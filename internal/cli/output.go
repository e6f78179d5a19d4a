package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/bjaus/retry/v2/internal/sim"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// FormatOutcome renders an outcome with its status marker and color.
func FormatOutcome(o sim.Outcome) string {
	switch o {
	case sim.OutcomeCompleted, sim.OutcomeSucceeded:
		return green("✓ " + string(o))
	case sim.OutcomePending:
		return yellow("… " + string(o))
	default:
		return red("✗ " + string(o))
	}
}

// PrintReport writes a human-readable summary and timeline of r to w.
func PrintReport(w io.Writer, r *sim.Report) {
	fmt.Fprintf(w, "%s %s\n", bold("Outcome:    "), FormatOutcome(r.Outcome))
	if r.Invocations > 0 {
		fmt.Fprintf(w, "%s %d\n", bold("Invocations:"), r.Invocations)
	}
	fmt.Fprintf(w, "%s %v\n", bold("Elapsed:    "), r.Elapsed)
	if r.Err != nil {
		fmt.Fprintf(w, "%s %v\n", bold("Error:      "), red(r.Err))
	}

	if len(r.Events) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, bold("Timeline:"))
	for _, e := range r.Events {
		line := e.String()
		if e.Kind == sim.EventAdvance {
			line = cyan(line)
		}
		fmt.Fprintf(w, "  %s\n", line)
	}
}

// WriteMetrics writes every gathered family in the Prometheus text format.
func WriteMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

type eventJSON struct {
	At      string `json:"at"`
	Kind    string `json:"kind"`
	Attempt int    `json:"attempt,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type reportJSON struct {
	Outcome     string      `json:"outcome"`
	Invocations int         `json:"invocations,omitempty"`
	Elapsed     string      `json:"elapsed"`
	Error       string      `json:"error,omitempty"`
	Events      []eventJSON `json:"events"`
}

func newReportJSON(r *sim.Report) reportJSON {
	out := reportJSON{
		Outcome:     string(r.Outcome),
		Invocations: r.Invocations,
		Elapsed:     r.Elapsed.String(),
		Events:      make([]eventJSON, 0, len(r.Events)),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	for _, e := range r.Events {
		out.Events = append(out.Events, eventJSON{
			At:      e.At.String(),
			Kind:    string(e.Kind),
			Attempt: e.Attempt,
			Detail:  e.Detail,
		})
	}
	return out
}
