package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fsconf-network/fsconf/pkg/audit"
	"github.com/fsconf-network/fsconf/pkg/cli"
	"github.com/fsconf-network/fsconf/pkg/reconcile"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View audit logs",
	Long: `View the audit log of compare and commit operations.

Each event records the user, device, candidate, commit mode, outcome
status and per-section changes.

Examples:
  fsconf audit list --device core-sw1
  fsconf audit list --last 24h
  fsconf audit list --status partial
  fsconf audit list --executed --failures`,
}

var (
	auditDevice   string
	auditUser     string
	auditStatus   string
	auditLast     string
	auditLimit    int
	auditFailures bool
	auditExecuted bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Device:       auditDevice,
			User:         auditUser,
			Status:       reconcile.Status(auditStatus),
			Limit:        auditLimit,
			FailureOnly:  auditFailures,
			ExecutedOnly: auditExecuted,
		}

		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if jsonOutput {
			return printJSON(events)
		}

		if len(events) == 0 {
			fmt.Fprintln(stdout, "No audit events found")
			return nil
		}

		t := cli.NewTableTo(stdout, "TIMESTAMP", "USER", "DEVICE", "OPERATION", "CANDIDATE", "OUTCOME", "STATUS")
		for _, event := range events {
			status := green("ok")
			switch {
			case !event.Success:
				status = red("failed")
			case event.DryRun:
				status = yellow("dry-run")
			}
			t.Row(
				event.Timestamp.Format("2006-01-02 15:04:05"),
				event.User,
				event.Device,
				event.Operation,
				event.Candidate,
				cli.Status(string(event.Status)),
				status,
			)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditStatus, "status", "", "Filter by outcome (noop, converged, partial, failed)")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations (including partial commits)")
	auditListCmd.Flags().BoolVar(&auditExecuted, "executed", false, "Hide dry runs")

	auditCmd.AddCommand(auditListCmd)
}
