package reconcile

import (
	"strings"

	"github.com/fsconf-network/fsconf/pkg/config"
	"github.com/fsconf-network/fsconf/pkg/util"
)

// Status summarises a reconciliation for the caller.
type Status string

const (
	// StatusNoop means every section was already compliant; nothing was sent.
	StatusNoop Status = "noop"
	// StatusConverged means every attempted change was applied.
	StatusConverged Status = "converged"
	// StatusPartial means some extra lines could not be removed.
	StatusPartial Status = "partial"
	// StatusFailed means a channel failure stopped the engine.
	StatusFailed Status = "failed"
)

// AbandonedLine is an extra line no truncation level could remove.
type AbandonedLine struct {
	Line   config.Line `json:"line"`
	Trials int         `json:"trials"`
	Reason string      `json:"reason"`
}

// SectionOutcome records what the engine did for one section.
type SectionOutcome struct {
	Name      string          `json:"name"`
	Attempted bool            `json:"attempted"`
	Changed   bool            `json:"changed"`
	Saved     bool            `json:"saved"`
	Trials    int             `json:"trials"`
	Removed   []string        `json:"removed,omitempty"`
	Added     []string        `json:"added,omitempty"`
	Abandoned []AbandonedLine `json:"abandoned,omitempty"`
	Protected []config.Line   `json:"protected,omitempty"`
	Batches   [][]string      `json:"batches,omitempty"`
}

// Outcome is the result of one Reconcile call, one entry per section in
// catalogue order. Compliant sections appear with Attempted false.
type Outcome struct {
	Device   string           `json:"device,omitempty"`
	DryRun   bool             `json:"dry_run,omitempty"`
	Sections []SectionOutcome `json:"sections"`
	Aborted  bool             `json:"aborted,omitempty"`
}

// Status classifies the outcome.
func (o *Outcome) Status() Status {
	if o.Aborted {
		return StatusFailed
	}
	attempted := false
	for _, s := range o.Sections {
		if len(s.Abandoned) > 0 {
			return StatusPartial
		}
		attempted = attempted || s.Attempted
	}
	if !attempted {
		return StatusNoop
	}
	return StatusConverged
}

// Abandoned returns the number of abandoned lines across all sections.
func (o *Outcome) Abandoned() int {
	n := 0
	for _, s := range o.Sections {
		n += len(s.Abandoned)
	}
	return n
}

// Changed reports whether any section changed.
func (o *Outcome) Changed() bool {
	for _, s := range o.Sections {
		if s.Changed {
			return true
		}
	}
	return false
}

// Batches returns every batch sent, in order, across sections.
func (o *Outcome) Batches() [][]string {
	var out [][]string
	for _, s := range o.Sections {
		out = append(out, s.Batches...)
	}
	return out
}

// Section returns the outcome of the named section.
func (o *Outcome) Section(name string) (SectionOutcome, bool) {
	for _, s := range o.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return SectionOutcome{}, false
}

// ProtectedVLANs returns the VLAN IDs declared by the protected lines of
// every section, sorted and deduplicated, in range notation ("10-12,20").
func (o *Outcome) ProtectedVLANs() string {
	var ids []int
	for _, s := range o.Sections {
		for _, l := range s.Protected {
			spec := strings.TrimPrefix(strings.TrimSpace(l.Text), "vlan ")
			vlans, err := util.ExpandVLANRange(spec)
			if err != nil {
				continue
			}
			ids = append(ids, vlans...)
		}
	}
	return util.CompactRange(ids)
}
