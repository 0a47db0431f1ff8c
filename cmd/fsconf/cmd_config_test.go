package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fsconf-network/fsconf/internal/testutil"
	"github.com/fsconf-network/fsconf/pkg/audit"
	"github.com/fsconf-network/fsconf/pkg/device"
	"github.com/fsconf-network/fsconf/pkg/eapi"
)

const (
	testRunning = `hostname sw1
vlan 10
interface eth-0-1
 description old
`
	testCandidate = `hostname sw1
vlan 10
interface eth-0-1
 description new
`
)

// switchTransfer stages uploads on the fake switch's filesystem.
type switchTransfer struct{ sw *testutil.FakeSwitch }

func (t switchTransfer) Upload(_ context.Context, path string, content []byte) error {
	t.sw.PutFile(strings.TrimPrefix(path, testutil.FakeFilesystem), string(content))
	return nil
}

func (switchTransfer) Close() error { return nil }

type cliHarness struct {
	sw        *testutil.FakeSwitch
	out       *bytes.Buffer
	inventory string
	candidate string
}

// newCLIHarness points the CLI at a fake switch named sw1 through a
// temporary inventory and home directory.
func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()

	sw := testutil.NewFakeSwitch(t)
	sw.SetJSON("show version", map[string]any{"hostname": "sw1", "modelName": "S5860-20SQ"})
	sw.SetRunning(testRunning)

	home := t.TempDir()
	t.Setenv("HOME", home)

	h := &cliHarness{
		sw:        sw,
		out:       &bytes.Buffer{},
		inventory: filepath.Join(home, "inventory.yaml"),
		candidate: filepath.Join(home, "cand.cfg"),
	}
	inv := fmt.Sprintf("devices:\n  sw1:\n    host: %s\n    port: %d\n    username: %s\n    password: %s\n",
		sw.Host(), sw.Port(), testutil.FakeUsername, testutil.FakePassword)
	if err := os.WriteFile(h.inventory, []byte(inv), 0644); err != nil {
		t.Fatalf("writing inventory: %v", err)
	}
	if err := os.WriteFile(h.candidate, []byte(testCandidate), 0644); err != nil {
		t.Fatalf("writing candidate: %v", err)
	}

	prevOut, prevOpts := stdout, sessionOptions
	stdout = h.out
	sessionOptions = []func(*device.Session){
		device.WithClientOptions(eapi.HTTPClient(sw.Client())),
		device.WithTransferDialer(func(context.Context, device.Profile) (device.Transfer, error) {
			return switchTransfer{sw}, nil
		}),
	}
	t.Cleanup(func() {
		stdout, sessionOptions = prevOut, prevOpts
		audit.SetDefaultLogger(nil)
	})
	return h
}

// run executes the root command with args after resetting flag state
// left over from earlier runs.
func (h *cliHarness) run(args ...string) error {
	deviceName, inventoryPath = "", ""
	executeMode, noSave, replaceMode = false, false, false
	verbose, jsonOutput, jsonLogs = false, false, false
	h.out.Reset()

	rootCmd.SetArgs(append([]string{"-d", "sw1", "--inventory", h.inventory}, args...))
	rootCmd.SetOut(io.Discard)
	return rootCmd.ExecuteContext(context.Background())
}

// lineStarting returns the first output line beginning with prefix.
func lineStarting(out, prefix string) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			return line
		}
	}
	return ""
}

func TestCompare(t *testing.T) {
	h := newCLIHarness(t)

	if err := h.run("compare", h.candidate); err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	out := h.out.String()

	if !strings.Contains(out, "description old") || !strings.Contains(out, "description new") {
		t.Errorf("diff missing from output:\n%s", out)
	}
	if !strings.Contains(out, "SECTION") {
		t.Errorf("compliance table missing from output:\n%s", out)
	}
	if row := lineStarting(out, "interfaces"); !strings.Contains(row, "non-compliant") {
		t.Errorf("interfaces row = %q, want non-compliant", row)
	}
	if row := lineStarting(out, "vlans"); row == "" || strings.Contains(row, "non-compliant") {
		t.Errorf("vlans row = %q, want compliant", row)
	}
	if got := h.sw.Files(); len(got) != 1 || got[0] != "cand.cfg" {
		t.Errorf("staged files = %v, want [cand.cfg]", got)
	}

	events, err := audit.Query(audit.Filter{Operation: audit.OpCompare})
	if err != nil {
		t.Fatalf("audit query failed: %v", err)
	}
	if len(events) != 1 || !events[0].Success {
		t.Errorf("compare audit events = %+v, want one success", events)
	}
}

func TestCommit_DryRunPrintsBatches(t *testing.T) {
	h := newCLIHarness(t)

	if err := h.run("commit", h.candidate); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	out := h.out.String()

	if !strings.Contains(out, "Batches to be sent:") {
		t.Errorf("batch preview missing from output:\n%s", out)
	}
	want := "[1] configure terminal ; interface eth-0-1 ; no description old"
	if !strings.Contains(out, want) {
		t.Errorf("output missing %q:\n%s", want, out)
	}
	if !strings.Contains(out, "DRY-RUN") {
		t.Errorf("dry-run notice missing from output:\n%s", out)
	}
	for _, cmd := range h.sw.Commands() {
		if strings.HasPrefix(cmd, "no ") || cmd == "write" {
			t.Errorf("dry run sent %q to the device", cmd)
		}
	}
}

func TestCommit_AbandonedLinesFail(t *testing.T) {
	h := newCLIHarness(t)
	h.sw.RejectPrefix("no description")

	err := h.run("commit", h.candidate, "-x")
	if err == nil {
		t.Fatal("commit with an abandoned line should fail")
	}
	if !strings.Contains(err.Error(), "1 line(s) could not be removed") {
		t.Errorf("error = %q, want abandoned line count", err)
	}

	out := h.out.String()
	if !strings.Contains(out, "abandoned") || !strings.Contains(out, "description old") {
		t.Errorf("abandoned line missing from output:\n%s", out)
	}
	if row := lineStarting(out, "interfaces"); !strings.Contains(row, "partial") {
		t.Errorf("interfaces row = %q, want partial", row)
	}

	events, err := audit.Query(audit.Filter{Operation: audit.OpCommit, ExecutedOnly: true, FailureOnly: true})
	if err != nil {
		t.Fatalf("audit query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("failed commit events = %d, want 1", len(events))
	}
	if !strings.Contains(events[0].Error, "could not be removed") {
		t.Errorf("audit error = %q", events[0].Error)
	}
}

func TestCommit_ExecuteConverges(t *testing.T) {
	h := newCLIHarness(t)

	if err := h.run("commit", h.candidate, "-x"); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	out := h.out.String()
	if row := lineStarting(out, "interfaces"); !strings.Contains(row, "saved") {
		t.Errorf("interfaces row = %q, want saved", row)
	}

	var sawRemoval, sawSave bool
	for _, cmd := range h.sw.Commands() {
		switch cmd {
		case "no description old":
			sawRemoval = true
		case "write":
			sawSave = true
		}
	}
	if !sawRemoval || !sawSave {
		t.Errorf("commands = %q, want the removal and a save", h.sw.Commands())
	}
}
