package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fsconf-network/fsconf/pkg/cli"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Read device state",
	Long: `Read state from the device over the command channel.

Examples:
  fsconf -d core-sw1 show running
  fsconf -d core-sw1 show facts --json
  fsconf -d core-sw1 show interfaces`,
}

var showRunningCmd = &cobra.Command{
	Use:   "running",
	Short: "Show the running configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		running, err := s.RunningConfig(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(running)
		}
		fmt.Fprintln(stdout, running.String())
		return nil
	},
}

var showFactsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Show device facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		facts, err := s.Facts(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(facts)
		}

		fmt.Fprintf(stdout, "Device: %s\n\n", bold(s.Name()))
		t := cli.NewTableTo(stdout, "FACT", "VALUE")
		t.Row("hostname", facts.Hostname)
		t.Row("vendor", facts.Vendor)
		t.Row("model", facts.Model)
		t.Row("os_version", facts.OSVersion)
		t.Row("serial_number", facts.SerialNumber)
		t.Row("uptime", fmt.Sprintf("%.0fs", facts.Uptime))
		t.Flush()
		return nil
	},
}

var showInterfacesCmd = &cobra.Command{
	Use:     "interfaces",
	Aliases: []string{"interface", "intf"},
	Short:   "Show interface status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		intfs, err := s.Interfaces(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(intfs)
		}
		if len(intfs) == 0 {
			fmt.Fprintln(stdout, "No interfaces reported")
			return nil
		}

		t := cli.NewTableTo(stdout, "INTERFACE", "STATUS", "VLAN", "DUPLEX", "SPEED", "TYPE", "DESCRIPTION")
		for _, i := range intfs {
			status := i.Status
			switch status {
			case "up", "connected":
				status = green(status)
			case "down", "notconnect", "disabled":
				status = red(status)
			}
			t.Row(i.Name, status, i.VLAN, i.Duplex, i.Speed, i.Type, i.Description)
		}
		t.Flush()
		return nil
	},
}

func init() {
	showCmd.AddCommand(showRunningCmd, showFactsCmd, showInterfacesCmd)
}
