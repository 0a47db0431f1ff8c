package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/fsconf-network/fsconf/pkg/config"
	"github.com/fsconf-network/fsconf/pkg/device"
	"github.com/fsconf-network/fsconf/pkg/reconcile"
)

func TestSectionResult(t *testing.T) {
	tests := []struct {
		name string
		so   reconcile.SectionOutcome
		want string
	}{
		{"compliant", reconcile.SectionOutcome{}, "compliant"},
		{"partial", reconcile.SectionOutcome{Attempted: true, Changed: true,
			Abandoned: []reconcile.AbandonedLine{{Line: config.Line{Text: "x"}}}}, "partial"},
		{"saved", reconcile.SectionOutcome{Attempted: true, Changed: true, Saved: true}, "saved"},
		{"changed", reconcile.SectionOutcome{Attempted: true, Changed: true}, "changed"},
		{"unchanged", reconcile.SectionOutcome{Attempted: true}, "unchanged"},
	}
	for _, tt := range tests {
		if got := sectionResult(tt.so); got != tt.want {
			t.Errorf("sectionResult(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestResolvePassword(t *testing.T) {
	p := device.Profile{Name: "sw1", Password: "inventory"}
	if err := resolvePassword(&p); err != nil || p.Password != "inventory" {
		t.Errorf("inventory password: got %q, %v", p.Password, err)
	}

	t.Setenv(passwordEnv, "from-env")
	p = device.Profile{Name: "sw1"}
	if err := resolvePassword(&p); err != nil {
		t.Fatalf("resolvePassword failed: %v", err)
	}
	if p.Password != "from-env" {
		t.Errorf("Password = %q, want %q", p.Password, "from-env")
	}
}

func TestIsSettingsOrHelp(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		want bool
	}{
		{settingsSetCmd, true},
		{versionCmd, true},
		{commitCmd, false},
		{showRunningCmd, false},
	}
	for _, tt := range tests {
		if got := isSettingsOrHelp(tt.cmd); got != tt.want {
			t.Errorf("isSettingsOrHelp(%s) = %v, want %v", tt.cmd.Name(), got, tt.want)
		}
	}
}

func TestResolveDevice_NoDevice(t *testing.T) {
	old := deviceName
	deviceName = ""
	defer func() { deviceName = old }()

	if _, err := resolveDevice(); err == nil {
		t.Error("resolveDevice without -d should fail")
	}
}
