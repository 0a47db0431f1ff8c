// fsconf - FS switch configuration tool
//
// Stages a candidate configuration on an FS switch and reconciles the
// running configuration toward it, section by section.
//
// Context flag -d selects the device from the inventory; commands act on it:
//
//	fsconf -d <device> <verb> [args] [-x]
//
// Write commands preview by default; -x executes.
//
// Examples:
//
//	fsconf -d core-sw1 show running
//	fsconf -d core-sw1 show interfaces
//	fsconf -d core-sw1 compare candidate.cfg
//	fsconf -d core-sw1 commit candidate.cfg          # preview batches
//	fsconf -d core-sw1 commit candidate.cfg -x       # reconcile and save
//	fsconf -d core-sw1 commit candidate.cfg -x --no-save
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fsconf-network/fsconf/pkg/audit"
	"github.com/fsconf-network/fsconf/pkg/cli"
	"github.com/fsconf-network/fsconf/pkg/compliance"
	"github.com/fsconf-network/fsconf/pkg/device"
	"github.com/fsconf-network/fsconf/pkg/inventory"
	"github.com/fsconf-network/fsconf/pkg/lock"
	"github.com/fsconf-network/fsconf/pkg/settings"
	"github.com/fsconf-network/fsconf/pkg/util"
	"github.com/fsconf-network/fsconf/pkg/version"
)

// passwordEnv supplies the device password when the inventory has none.
const passwordEnv = "FSCONF_PASSWORD"

var (
	// Global context flags
	deviceName    string // -d, --device
	inventoryPath string

	// Global option flags
	executeMode bool
	noSave      bool
	verbose     bool
	jsonOutput  bool
	jsonLogs    bool

	// Global state
	userSettings *settings.Settings

	// stdout receives command output; sessionOptions are applied to
	// every session openSession creates.
	stdout         io.Writer = os.Stdout
	sessionOptions []func(*device.Session)
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "fsconf",
	Short:             "FS switch configuration tool",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `fsconf stages a candidate configuration on an FS switch and reconciles
the running configuration toward it.

Write commands preview changes by default. Use -x to execute.

  fsconf -d <device> <verb> [args] [-x]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}
		if jsonLogs {
			util.SetJSONFormat()
		}

		if isSettingsOrHelp(cmd) {
			return nil
		}

		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}
		if deviceName == "" {
			deviceName = userSettings.DefaultDevice
		}
		if inventoryPath == "" {
			inventoryPath = userSettings.GetInventoryPath()
		}

		auditLogger, err := audit.NewFileLogger(userSettings.GetAuditLogPath(), audit.RotationConfig{
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxBackups: 10,
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "Device name from the inventory")
	rootCmd.PersistentFlags().StringVar(&inventoryPath, "inventory", "", "Inventory file (default ~/.fsconf/inventory.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "Log in JSON format")

	addWriteFlags(commitCmd)
	for _, cmd := range []*cobra.Command{showCmd, compareCmd, commitCmd, auditCmd, lockCmd, versionCmd} {
		addOutputFlags(cmd)
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "device", Title: "Device Operations:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)
	for _, cmd := range []*cobra.Command{showCmd, compareCmd, commitCmd, lockCmd} {
		cmd.GroupID = "device"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, auditCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return printJSON(version.Get())
		}
		if version.Version == "dev" {
			fmt.Fprintln(stdout, "fsconf dev build (use 'make build' for version info)")
		} else {
			fmt.Fprintf(stdout, "fsconf %s\n", version.Info())
		}
		return nil
	},
}

// ============================================================================
// Context Helpers
// ============================================================================

// resolveDevice looks up the -d device in the inventory.
func resolveDevice() (*inventory.Device, error) {
	if deviceName == "" {
		return nil, fmt.Errorf("device required: use -d <device> flag (or: fsconf settings set default_device <name>)")
	}
	inv, err := inventory.Load(inventoryPath)
	if err != nil {
		return nil, err
	}
	return inv.Resolve(deviceName)
}

// openSession resolves the device, fills in the password and opens a
// session. The caller closes it.
func openSession(ctx context.Context) (*device.Session, *inventory.Device, error) {
	dev, err := resolveDevice()
	if err != nil {
		return nil, nil, err
	}
	if err := resolvePassword(&dev.Profile); err != nil {
		return nil, nil, err
	}

	opts := append([]func(*device.Session){}, sessionOptions...)
	if dev.Catalogue != "" {
		cat, err := compliance.LoadCatalogue(dev.Catalogue)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, device.WithCatalogue(cat))
	}

	s := device.NewSession(dev.Profile, opts...)
	if err := s.Open(ctx); err != nil {
		return nil, nil, err
	}
	return s, dev, nil
}

// resolvePassword fills p.Password from the environment or, on a
// terminal, a prompt.
func resolvePassword(p *device.Profile) error {
	if p.Password != "" {
		return nil
	}
	if pw := os.Getenv(passwordEnv); pw != "" {
		p.Password = pw
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("no password for %s: set it in the inventory or %s", p.Name, passwordEnv)
	}
	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", p.Username, p.Host)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	p.Password = string(pw)
	return nil
}

// withDeviceLock runs fn holding the device's Redis lock when the
// inventory configures one.
func withDeviceLock(ctx context.Context, dev *inventory.Device, fn func() error) error {
	if dev.Lock == nil || dev.Lock.Redis == "" {
		return fn()
	}
	locker, err := lock.Dial(ctx, dev.Lock.Redis, lock.WithTTL(dev.LockTTL))
	if err != nil {
		return err
	}
	defer locker.Close()

	if err := locker.Acquire(ctx, dev.Profile.Name); err != nil {
		return fmt.Errorf("locking device: %w", err)
	}
	defer func() {
		if err := locker.Release(context.WithoutCancel(ctx), dev.Profile.Name); err != nil {
			util.Warnf("releasing lock: %v", err)
		}
	}()
	return fn()
}

// ============================================================================
// Output Helpers
// ============================================================================

func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings":
			return true
		}
	}
	return false
}

// addWriteFlags registers -x/--execute and --no-save as local flags.
func addWriteFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&executeMode, "execute", "x", false, "Execute changes (default is dry-run)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not write the result to startup-config")
}

// addOutputFlags registers --json. Parent commands register it as a
// persistent flag so subcommands inherit it.
func addOutputFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if cmd.HasSubCommands() {
		flags = cmd.PersistentFlags()
	}
	flags.BoolVar(&jsonOutput, "json", false, "JSON output")
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDryRunNotice() {
	if !executeMode {
		fmt.Fprintln(stdout, "\n"+yellow("DRY-RUN: No changes applied. Use -x to execute."))
	}
}

// Color helpers
func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
func bold(s string) string   { return cli.Bold(s) }
