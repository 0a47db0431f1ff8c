package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fsconf-network/fsconf/pkg/lock"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or clear the device lock",
	Long: `Inspect or clear the Redis lock commit holds while reconciling.

Only devices whose inventory entry has a lock.redis address are locked.

Examples:
  fsconf -d core-sw1 lock show
  fsconf -d core-sw1 lock release`,
}

type lockStatus struct {
	Device   string    `json:"device"`
	Locked   bool      `json:"locked"`
	Holder   string    `json:"holder,omitempty"`
	Acquired time.Time `json:"acquired,omitempty"`
}

var lockShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show who holds the device lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		locker, name, err := dialLocker(cmd)
		if err != nil {
			return err
		}
		defer locker.Close()

		holder, acquired, err := locker.Holder(ctx, name)
		if err != nil {
			return err
		}
		st := lockStatus{Device: name, Locked: holder != "", Holder: holder, Acquired: acquired}
		if jsonOutput {
			return printJSON(st)
		}
		if !st.Locked {
			fmt.Fprintf(stdout, "%s is %s\n", name, green("unlocked"))
			return nil
		}
		fmt.Fprintf(stdout, "%s is %s by %s since %s\n", name, yellow("locked"), holder, acquired.Format(time.RFC3339))
		return nil
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release a lock held by this user and host",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		locker, name, err := dialLocker(cmd)
		if err != nil {
			return err
		}
		defer locker.Close()

		if err := locker.Release(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s %s\n", name, green("released"))
		return nil
	},
}

func dialLocker(cmd *cobra.Command) (*lock.Locker, string, error) {
	dev, err := resolveDevice()
	if err != nil {
		return nil, "", err
	}
	if dev.Lock == nil || dev.Lock.Redis == "" {
		return nil, "", fmt.Errorf("%s has no lock configured in the inventory", dev.Profile.Name)
	}
	locker, err := lock.Dial(cmd.Context(), dev.Lock.Redis, lock.WithTTL(dev.LockTTL))
	if err != nil {
		return nil, "", err
	}
	return locker, dev.Profile.Name, nil
}

func init() {
	lockCmd.AddCommand(lockShowCmd, lockReleaseCmd)
}
