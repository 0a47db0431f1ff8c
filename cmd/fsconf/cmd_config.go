package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fsconf-network/fsconf/pkg/audit"
	"github.com/fsconf-network/fsconf/pkg/cli"
	"github.com/fsconf-network/fsconf/pkg/compliance"
	"github.com/fsconf-network/fsconf/pkg/device"
	"github.com/fsconf-network/fsconf/pkg/lock"
	"github.com/fsconf-network/fsconf/pkg/metrics"
	"github.com/fsconf-network/fsconf/pkg/reconcile"
	"github.com/fsconf-network/fsconf/pkg/util"
)

var replaceMode bool

var compareCmd = &cobra.Command{
	Use:   "compare <file>",
	Short: "Stage a candidate and compare it with the running configuration",
	Long: `Upload a candidate configuration to device storage, then show the
unified diff from running-config and the per-section compliance report.

Nothing is applied. The staged file stays on the device.

Examples:
  fsconf -d core-sw1 compare candidate.cfg
  fsconf -d core-sw1 compare candidate.cfg --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		start := time.Now()
		event := audit.NewEvent(lock.Holder(), deviceName, audit.OpCompare).
			WithCandidate(filepath.Base(args[0]))

		err := runCompare(ctx, args[0])
		if err != nil {
			event.WithError(err)
		} else {
			event.WithSuccess()
		}
		logAudit(event.WithDuration(time.Since(start)))
		return err
	},
}

type compareResult struct {
	Device    string            `json:"device"`
	Candidate string            `json:"candidate"`
	Diff      string            `json:"diff"`
	Report    compliance.Report `json:"report"`
}

func runCompare(ctx context.Context, path string) error {
	s, _, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.LoadMergeCandidateFile(ctx, path); err != nil {
		return err
	}
	unified, err := s.CompareConfig(ctx)
	if err != nil {
		return err
	}
	report, err := s.ComplianceReport(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(compareResult{
			Device:    s.Name(),
			Candidate: s.Candidate().Name,
			Diff:      unified,
			Report:    report,
		})
	}

	if unified == "" {
		fmt.Fprintln(stdout, green("Running configuration matches the candidate."))
	} else {
		for _, line := range strings.Split(strings.TrimRight(unified, "\n"), "\n") {
			fmt.Fprintln(stdout, cli.DiffLine(line))
		}
		fmt.Fprintln(stdout)
	}
	printReport(report)
	return nil
}

func printReport(report compliance.Report) {
	t := cli.NewTableTo(stdout, "SECTION", "STATUS", "EXTRA", "MISSING")
	for _, sr := range report {
		status := "compliant"
		if !sr.Compliant {
			status = "non-compliant"
		}
		t.Row(sr.Section.Name, cli.Status(status), fmt.Sprint(len(sr.Extra)), fmt.Sprint(len(sr.Missing)))
	}
	t.Flush()
}

var commitCmd = &cobra.Command{
	Use:   "commit <file>",
	Short: "Reconcile the running configuration toward a candidate",
	Long: `Upload a candidate configuration and apply it.

By default the running configuration is reconciled section by section:
extra lines are removed by trial negation, missing lines are added, and
the result is written to startup-config. VLAN declarations are never
removed. Lines the device refuses to remove are reported as abandoned.

--replace copies the file over running-config in one command instead, on
devices whose inventory entry sets replace_supported.

Without -x the batches that would be sent are printed and nothing is
applied.

Examples:
  fsconf -d core-sw1 commit candidate.cfg
  fsconf -d core-sw1 commit candidate.cfg -x
  fsconf -d core-sw1 commit candidate.cfg -x --no-save
  fsconf -d core-sw1 commit candidate.cfg --replace -x`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opts := device.CommitOptions{
			Mode:   device.CommitReconcile,
			NoSave: noSave,
			DryRun: !executeMode,
		}
		if replaceMode {
			opts.Mode = device.CommitReplace
		}

		start := time.Now()
		event := audit.NewEvent(lock.Holder(), deviceName, audit.OpCommit).
			WithCandidate(filepath.Base(args[0])).
			WithMode(string(opts.Mode)).
			WithExecuteMode(executeMode)

		outcome, err := runCommit(ctx, args[0], opts)
		elapsed := time.Since(start)
		if err == nil && executeMode {
			if n := outcome.Abandoned(); n > 0 {
				err = fmt.Errorf("%d line(s) could not be removed", n)
			}
		}

		event.WithOutcome(outcome).WithDuration(elapsed)
		if err != nil {
			event.WithError(err)
		} else {
			event.WithSuccess()
		}
		logAudit(event)
		recordMetrics(outcome, elapsed)
		return err
	},
}

func runCommit(ctx context.Context, path string, opts device.CommitOptions) (*reconcile.Outcome, error) {
	s, dev, err := openSession(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var outcome *reconcile.Outcome
	apply := func() error {
		if err := s.LoadMergeCandidateFile(ctx, path); err != nil {
			return err
		}
		outcome, err = s.CommitConfig(ctx, opts)
		return err
	}

	if opts.DryRun {
		err = apply()
	} else {
		err = withDeviceLock(ctx, dev, apply)
	}

	if outcome != nil {
		if jsonOutput {
			if perr := printJSON(outcome); perr != nil {
				return outcome, perr
			}
		} else {
			printOutcome(outcome)
		}
	}
	return outcome, err
}

func printOutcome(o *reconcile.Outcome) {
	if o.DryRun {
		batches := o.Batches()
		if len(batches) == 0 {
			fmt.Fprintln(stdout, green("Running configuration matches the candidate; nothing to send."))
			return
		}
		fmt.Fprintln(stdout, "Batches to be sent:")
		for i, b := range batches {
			fmt.Fprintf(stdout, "  [%d] %s\n", i+1, strings.Join(b, " ; "))
		}
		printProtected(o)
		printDryRunNotice()
		return
	}

	t := cli.NewTableTo(stdout, "SECTION", "RESULT", "TRIALS", "REMOVED", "ADDED", "ABANDONED")
	for _, so := range o.Sections {
		t.Row(so.Name, sectionResult(so), fmt.Sprint(so.Trials),
			fmt.Sprint(len(so.Removed)), fmt.Sprint(len(so.Added)), fmt.Sprint(len(so.Abandoned)))
	}
	t.Flush()

	for _, so := range o.Sections {
		for _, a := range so.Abandoned {
			fmt.Fprintf(stdout, "%s %s: %s (%s)\n", yellow("abandoned"), so.Name, strings.TrimSpace(a.Line.Text), a.Reason)
		}
	}
	printProtected(o)
	fmt.Fprintf(stdout, "\nStatus: %s\n", cli.Status(string(o.Status())))
}

func printProtected(o *reconcile.Outcome) {
	if vlans := o.ProtectedVLANs(); vlans != "" {
		fmt.Fprintf(stdout, "%s VLAN declarations %s (never removed)\n", bold("kept"), vlans)
	}
}

// sectionResult is the one-word summary of a section outcome.
func sectionResult(so reconcile.SectionOutcome) string {
	switch {
	case !so.Attempted:
		return "compliant"
	case len(so.Abandoned) > 0:
		return "partial"
	case so.Changed && so.Saved:
		return "saved"
	case so.Changed:
		return "changed"
	}
	return "unchanged"
}

func logAudit(event *audit.Event) {
	if err := audit.Log(event); err != nil {
		util.Warnf("audit: %v", err)
	}
}

func recordMetrics(outcome *reconcile.Outcome, elapsed time.Duration) {
	if userSettings == nil || userSettings.MetricsPath == "" || outcome == nil || outcome.DryRun {
		return
	}
	rec := metrics.New()
	rec.ObserveCommit(outcome, elapsed)
	if err := rec.WriteTextfile(userSettings.MetricsPath); err != nil {
		util.Warnf("metrics: %v", err)
	}
}

func init() {
	commitCmd.Flags().BoolVar(&replaceMode, "replace", false, "Replace running-config with the file in one command")
}
