package reconcile

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/fsconf-network/fsconf/internal/testutil"
	"github.com/fsconf-network/fsconf/pkg/compliance"
	"github.com/fsconf-network/fsconf/pkg/config"
	"github.com/fsconf-network/fsconf/pkg/eapi"
	"github.com/fsconf-network/fsconf/pkg/util"
)

// scriptedChannel accepts every command except those in reject, and fails
// the transport for any batch containing a command in fail.
type scriptedChannel struct {
	reject  map[string]bool
	fail    map[string]bool
	batches [][]string
}

func newScripted(reject ...string) *scriptedChannel {
	c := &scriptedChannel{reject: make(map[string]bool), fail: make(map[string]bool)}
	for _, r := range reject {
		c.reject[r] = true
	}
	return c
}

func (c *scriptedChannel) Send(_ context.Context, cmds []string, _ eapi.Format) ([]eapi.Result, error) {
	c.batches = append(c.batches, append([]string(nil), cmds...))
	for _, cmd := range cmds {
		if c.fail[cmd] {
			return nil, util.NewTransportError("executeCmds", 0, errors.New("connection reset"))
		}
	}
	// Results are decoded the way the client decodes them, so HasError
	// behaves exactly as it would against a device.
	var sb strings.Builder
	sb.WriteString(`{"result":[`)
	for i, cmd := range cmds {
		if i > 0 {
			sb.WriteByte(',')
		}
		if c.reject[cmd] {
			sb.WriteString(`{"errorCode":1002,"errorMsg":"invalid input"}`)
		} else {
			sb.WriteString(`{"json":{}}`)
		}
	}
	sb.WriteString(`]}`)
	return eapi.ParseResponse([]byte(sb.String()), cmds)
}

func (c *scriptedChannel) commands() []string {
	var out []string
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func section(name string, extra, missing []config.Line) compliance.SectionReport {
	s, _ := compliance.DefaultCatalogue().Lookup(name)
	return compliance.SectionReport{
		Section:   s,
		Compliant: len(extra) == 0 && len(missing) == 0,
		Extra:     extra,
		Missing:   missing,
	}
}

func TestReconcile_ScenarioA_Compliant(t *testing.T) {
	running := config.ConfigText{"vlan 10", " name prod", "interface eth1", " switchport access vlan 10"}
	report := compliance.Classify(compliance.DefaultCatalogue(), running, running)

	ch := newScripted()
	out, err := New(ch).Reconcile(context.Background(), report)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if len(ch.batches) != 0 {
		t.Errorf("sent %d batches, want 0: %q", len(ch.batches), ch.batches)
	}
	if out.Status() != StatusNoop {
		t.Errorf("Status() = %q, want %q", out.Status(), StatusNoop)
	}
	if len(out.Sections) != 5 {
		t.Errorf("len(Sections) = %d, want 5", len(out.Sections))
	}
}

func TestReconcile_ScenarioB_Truncation(t *testing.T) {
	ch := newScripted("no snmp-server community public", "no snmp-server community")
	report := compliance.Report{
		section("baseline", []config.Line{{Text: "snmp-server community public"}}, nil),
	}

	out, err := New(ch).Reconcile(context.Background(), report)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}

	want := [][]string{
		{"configure terminal", "no snmp-server community public"},
		{"configure terminal", "no snmp-server community"},
		{"configure terminal", "no snmp-server"},
		{"end", "write"},
	}
	if !reflect.DeepEqual(ch.batches, want) {
		t.Errorf("batches = %q, want %q", ch.batches, want)
	}

	so := out.Sections[0]
	if so.Trials != 3 {
		t.Errorf("Trials = %d, want 3", so.Trials)
	}
	if !so.Changed || !so.Saved {
		t.Errorf("Changed = %v, Saved = %v, want both true", so.Changed, so.Saved)
	}
	if !reflect.DeepEqual(so.Removed, []string{"no snmp-server"}) {
		t.Errorf("Removed = %q", so.Removed)
	}
	if out.Status() != StatusConverged {
		t.Errorf("Status() = %q, want %q", out.Status(), StatusConverged)
	}
}

func TestReconcile_ScenarioC_Addition(t *testing.T) {
	ch := newScripted()
	report := compliance.Report{
		section("vlans", nil, []config.Line{{Text: "vlan 20"}}),
	}

	out, err := New(ch).Reconcile(context.Background(), report)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	want := [][]string{{"configure terminal", "vlan 20", "end", "write"}}
	if !reflect.DeepEqual(ch.batches, want) {
		t.Errorf("batches = %q, want %q", ch.batches, want)
	}
	for _, cmd := range ch.commands() {
		if strings.HasPrefix(cmd, "no ") {
			t.Errorf("removal attempted: %q", cmd)
		}
	}
	if so := out.Sections[0]; !so.Saved || so.Trials != 0 {
		t.Errorf("outcome = %+v, want saved with no trials", so)
	}
}

func TestTruncationSearch_TrialCount(t *testing.T) {
	stmt := "logging server 10.1.1.1 port 514 facility local7"
	words := strings.Fields(stmt)
	w := len(words)

	for p := 1; p <= w; p++ {
		var reject []string
		for k := w; k > p; k-- {
			reject = append(reject, "no "+strings.Join(words[:k], " "))
		}
		ch := newScripted(reject...)
		report := compliance.Report{section("baseline", []config.Line{{Text: stmt}}, nil)}

		out, err := New(ch, WithSave(false)).Reconcile(context.Background(), report)
		if err != nil {
			t.Fatalf("P=%d: Reconcile() error: %v", p, err)
		}
		so := out.Sections[0]
		if so.Trials != w-p+1 {
			t.Errorf("P=%d: Trials = %d, want %d", p, so.Trials, w-p+1)
		}
		if len(ch.batches) != w-p+1 {
			t.Errorf("P=%d: sent %d batches, want %d", p, len(ch.batches), w-p+1)
		}
		last := ch.batches[len(ch.batches)-1]
		if want := "no " + strings.Join(words[:p], " "); last[len(last)-1] != want {
			t.Errorf("P=%d: last trial = %q, want %q", p, last[len(last)-1], want)
		}
	}
}

func TestTruncationSearch_Abandoned(t *testing.T) {
	ch := newScripted("no ip route 0.0.0.0/0 10.0.0.1", "no ip route 0.0.0.0/0", "no ip route", "no ip")
	report := compliance.Report{
		section("baseline", []config.Line{{Text: "ip route 0.0.0.0/0 10.0.0.1"}, {Text: "hostname old"}}, nil),
	}

	out, err := New(ch).Reconcile(context.Background(), report)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	so := out.Sections[0]
	if len(so.Abandoned) != 1 {
		t.Fatalf("Abandoned = %+v, want 1 line", so.Abandoned)
	}
	if got := so.Abandoned[0]; got.Trials != 4 || got.Line.Text != "ip route 0.0.0.0/0 10.0.0.1" {
		t.Errorf("Abandoned[0] = %+v", got)
	}
	if !reflect.DeepEqual(so.Removed, []string{"no hostname old"}) {
		t.Errorf("Removed = %q, want the second line removed", so.Removed)
	}
	if out.Status() != StatusPartial {
		t.Errorf("Status() = %q, want %q", out.Status(), StatusPartial)
	}
	if out.Abandoned() != 1 {
		t.Errorf("Abandoned() = %d, want 1", out.Abandoned())
	}
}

func TestReconcile_NeverRemovesVLANs(t *testing.T) {
	ch := newScripted()
	catalogue := compliance.Catalogue{{Name: compliance.SectionBaseline, Ordered: true}}
	running := config.ConfigText{"vlan 10", "vlan 20-30,40", "interface eth1", " vlan 100", "spanning-tree mode rstp"}
	report := compliance.Classify(catalogue, running, nil)

	out, err := New(ch).Reconcile(context.Background(), report)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	for _, cmd := range ch.commands() {
		if strings.HasPrefix(cmd, "no ") && IsProtected(strings.TrimPrefix(cmd, "no ")) {
			t.Errorf("VLAN removal sent: %q", cmd)
		}
		if strings.HasPrefix(cmd, "no vlan") {
			t.Errorf("VLAN removal sent: %q", cmd)
		}
	}
	if got := len(out.Sections[0].Protected); got != 3 {
		t.Errorf("Protected = %d lines, want 3", got)
	}
}

func TestReconcile_NestedRemovalUsesParent(t *testing.T) {
	ch := newScripted("no description uplink to core")
	report := compliance.Report{
		section("interfaces", []config.Line{{Text: " description uplink to core", Parent: "interface eth1"}}, nil),
	}

	if _, err := New(ch, WithSave(false)).Reconcile(context.Background(), report); err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	want := [][]string{
		{"configure terminal", "interface eth1", "no description uplink to core"},
		{"configure terminal", "interface eth1", "no description uplink to"},
	}
	if !reflect.DeepEqual(ch.batches, want) {
		t.Errorf("batches = %q, want %q", ch.batches, want)
	}
}

func TestReconcile_NestedUnderVLANUsesDeclarationAsContext(t *testing.T) {
	ch := newScripted()
	report := compliance.Report{
		section(compliance.SectionVLANs, []config.Line{{Text: " name prod", Parent: "vlan 10"}}, nil),
	}

	out, err := New(ch, WithSave(false)).Reconcile(context.Background(), report)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	want := [][]string{{"configure terminal", "vlan 10", "no name prod"}}
	if !reflect.DeepEqual(ch.batches, want) {
		t.Errorf("batches = %q, want %q", ch.batches, want)
	}
	so := out.Sections[0]
	if len(so.Protected) != 0 {
		t.Errorf("Protected = %v, want none (only the declaration is protected)", so.Protected)
	}
	if len(so.Removed) != 1 {
		t.Errorf("Removed = %v, want the nested line", so.Removed)
	}
}

func TestReconcile_TopLevelOutsideBaselineRequeued(t *testing.T) {
	ch := newScripted()
	report := compliance.Report{
		section("interfaces", []config.Line{
			{Text: "interface eth9"},
			{Text: " shutdown", Parent: "interface eth9"},
		}, nil),
	}

	out, err := New(ch).Reconcile(context.Background(), report)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	want := [][]string{
		{"configure terminal", "interface eth9", "no shutdown"},
		{"configure terminal", "interface eth9"},
		{"end", "write"},
	}
	if !reflect.DeepEqual(ch.batches, want) {
		t.Errorf("batches = %q, want %q", ch.batches, want)
	}
	if so := out.Sections[0]; so.Trials != 1 {
		t.Errorf("Trials = %d, want 1", so.Trials)
	}
}

func TestReconcile_NegatedLineSentStripped(t *testing.T) {
	ch := newScripted("shutdown")
	report := compliance.Report{
		section("interfaces", []config.Line{{Text: " no shutdown", Parent: "interface eth2"}}, nil),
	}

	out, err := New(ch, WithSave(false)).Reconcile(context.Background(), report)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	want := [][]string{{"configure terminal", "interface eth2", "shutdown"}}
	if !reflect.DeepEqual(ch.batches, want) {
		t.Errorf("batches = %q, want %q", ch.batches, want)
	}
	if so := out.Sections[0]; !so.Changed || so.Trials != 0 {
		t.Errorf("outcome = %+v, want changed without trials", so)
	}
}

func TestReconcile_AdditionInsertsParent(t *testing.T) {
	ch := newScripted()
	report := compliance.Report{
		section("interfaces", nil, []config.Line{
			{Text: " description uplink", Parent: "interface eth1"},
			{Text: " mtu 9000", Parent: "interface eth1"},
			{Text: "interface eth2"},
			{Text: " shutdown", Parent: "interface eth2"},
			{Text: " shutdown", Parent: "interface eth3"},
		}),
	}

	if _, err := New(ch).Reconcile(context.Background(), report); err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	want := [][]string{{
		"configure terminal",
		"interface eth1", " description uplink", " mtu 9000",
		"interface eth2", " shutdown",
		"interface eth3", " shutdown",
		"end", "write",
	}}
	if !reflect.DeepEqual(ch.batches, want) {
		t.Errorf("batches = %q, want %q", ch.batches, want)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	running := config.ConfigText{"hostname sw1", "vlan 10", "interface eth1", " switchport access vlan 10"}
	candidate := config.ConfigText{"hostname sw1", "vlan 10", "vlan 20", "interface eth1", " switchport access vlan 10"}

	ch := newScripted()
	first, err := New(ch).Reconcile(context.Background(), compliance.Classify(compliance.DefaultCatalogue(), running, candidate))
	if err != nil {
		t.Fatalf("first Reconcile() error: %v", err)
	}
	if first.Status() != StatusConverged {
		t.Errorf("first Status() = %q, want converged", first.Status())
	}

	// The device now runs the candidate.
	ch.batches = nil
	second, err := New(ch).Reconcile(context.Background(), compliance.Classify(compliance.DefaultCatalogue(), candidate, candidate))
	if err != nil {
		t.Fatalf("second Reconcile() error: %v", err)
	}
	if len(ch.batches) != 0 {
		t.Errorf("second run sent %q, want nothing", ch.batches)
	}
	if second.Status() != StatusNoop {
		t.Errorf("second Status() = %q, want noop", second.Status())
	}
}

func TestReconcile_SectionOrder(t *testing.T) {
	ch := newScripted()
	running := config.ConfigText{"interface eth1"}
	candidate := config.ConfigText{"vlan 30", "interface eth1", " switchport access vlan 30", "line vty 0 4"}

	if _, err := New(ch, WithSave(false)).Reconcile(context.Background(), compliance.Classify(compliance.DefaultCatalogue(), running, candidate)); err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	want := [][]string{
		{"configure terminal", "vlan 30"},
		{"configure terminal", "interface eth1", " switchport access vlan 30"},
		{"configure terminal", "line vty 0 4"},
	}
	if !reflect.DeepEqual(ch.batches, want) {
		t.Errorf("batches = %q, want %q", ch.batches, want)
	}
}

func TestReconcile_TransportFailureDuringTrial(t *testing.T) {
	ch := newScripted()
	ch.fail["no ntp server 10.0.0.1"] = true
	report := compliance.Report{
		section("baseline", []config.Line{{Text: "ntp server 10.0.0.1"}, {Text: "clock timezone UTC"}}, nil),
	}

	out, err := New(ch).Reconcile(context.Background(), report)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	so := out.Sections[0]
	if len(so.Abandoned) != 1 || so.Abandoned[0].Trials != 1 {
		t.Errorf("Abandoned = %+v, want one line after 1 trial", so.Abandoned)
	}
	if !strings.Contains(so.Abandoned[0].Reason, "connection reset") {
		t.Errorf("Reason = %q", so.Abandoned[0].Reason)
	}
	if !reflect.DeepEqual(so.Removed, []string{"no clock timezone UTC"}) {
		t.Errorf("Removed = %q, want loop to continue to next line", so.Removed)
	}
}

func TestReconcile_TransportFailureIsFatalOutsideTrials(t *testing.T) {
	ch := newScripted()
	ch.fail["vlan 20"] = true
	report := compliance.Report{
		section("vlans", nil, []config.Line{{Text: "vlan 20"}}),
		section("line", nil, []config.Line{{Text: "line vty 0 4"}}),
	}

	out, err := New(ch).Reconcile(context.Background(), report)
	if !errors.Is(err, util.ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	if out.Status() != StatusFailed {
		t.Errorf("Status() = %q, want failed", out.Status())
	}
	if len(ch.batches) != 1 {
		t.Errorf("sent %d batches, want 1 (engine should stop)", len(ch.batches))
	}
}

func TestReconcile_DryRun(t *testing.T) {
	report := compliance.Report{
		section("baseline", []config.Line{{Text: "snmp-server community public"}}, nil),
		section("vlans", nil, []config.Line{{Text: "vlan 20"}}),
	}

	out, err := New(nil, WithDryRun()).Reconcile(context.Background(), report)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if !out.DryRun {
		t.Error("DryRun not set on outcome")
	}
	want := [][]string{
		{"configure terminal", "no snmp-server community public"},
		{"end", "write"},
		{"configure terminal", "vlan 20", "end", "write"},
	}
	if got := out.Batches(); !reflect.DeepEqual(got, want) {
		t.Errorf("Batches() = %q, want %q", got, want)
	}
}

func TestReconcile_CustomDialect(t *testing.T) {
	ch := newScripted()
	d := Dialect{ModeEntry: "config", ModeExit: "exit", Save: "copy running-config startup-config", Negation: "undo"}
	report := compliance.Report{section("baseline", []config.Line{{Text: "sysname old"}}, nil)}

	if _, err := New(ch, WithDialect(d)).Reconcile(context.Background(), report); err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	want := [][]string{
		{"config", "undo sysname old"},
		{"exit", "copy running-config startup-config"},
	}
	if !reflect.DeepEqual(ch.batches, want) {
		t.Errorf("batches = %q, want %q", ch.batches, want)
	}
}

func TestReconcile_CanceledContext(t *testing.T) {
	ch := newScripted()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := compliance.Report{section("baseline", []config.Line{{Text: "hostname old"}}, nil)}

	out, err := New(ch).Reconcile(ctx, report)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(ch.batches) != 0 {
		t.Errorf("sent %q after cancel", ch.batches)
	}
	if out.Status() != StatusFailed {
		t.Errorf("Status() = %q, want failed", out.Status())
	}
}

func TestReconcile_AgainstFakeSwitch(t *testing.T) {
	f := testutil.NewFakeSwitch(t)
	f.Reject("no snmp-server community public", "no snmp-server community")

	client := eapi.NewClient(f.Host(),
		eapi.Port(f.Port()),
		eapi.Credentials(testutil.FakeUsername, testutil.FakePassword),
		eapi.HTTPClient(f.Client()))

	report := compliance.Report{
		section("baseline", []config.Line{{Text: "snmp-server community public"}}, nil),
	}
	out, err := New(client, WithDevice("sw1")).Reconcile(context.Background(), report)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if out.Sections[0].Trials != 3 {
		t.Errorf("Trials = %d, want 3", out.Sections[0].Trials)
	}
	if got := f.Batches(); len(got) != 4 {
		t.Errorf("switch saw %d batches, want 4: %q", len(got), got)
	}
	if out.Device != "sw1" {
		t.Errorf("Device = %q, want sw1", out.Device)
	}
}

func TestIsProtected(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"vlan 10", true},
		{"vlan 10-20", true},
		{"vlan 1,2,5-7", true},
		{"  vlan 100", true},
		{"vlan 10 name prod", false},
		{"vlan database", false},
		{"switchport access vlan 10", false},
		{"no vlan 10", false},
	}
	for _, tt := range tests {
		if got := IsProtected(tt.stmt); got != tt.want {
			t.Errorf("IsProtected(%q) = %v, want %v", tt.stmt, got, tt.want)
		}
	}
}

func TestOutcome_ProtectedVLANs(t *testing.T) {
	o := &Outcome{Sections: []SectionOutcome{
		{Name: "vlans", Protected: []config.Line{{Text: "vlan 10-12"}, {Text: "vlan 20,11"}}},
		{Name: "baseline", Protected: []config.Line{{Text: "vlan 5000"}}},
		{Name: "interfaces"},
	}}
	if got, want := o.ProtectedVLANs(), "10-12,20"; got != want {
		t.Errorf("ProtectedVLANs() = %q, want %q", got, want)
	}
	if got := (&Outcome{}).ProtectedVLANs(); got != "" {
		t.Errorf("ProtectedVLANs() on empty outcome = %q, want empty", got)
	}
}
