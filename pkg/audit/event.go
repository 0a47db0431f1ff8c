// Package audit records configuration operations as JSON lines.
package audit

import (
	"fmt"
	"time"

	"github.com/fsconf-network/fsconf/pkg/reconcile"
)

// Event is one auditable operation against a device.
type Event struct {
	ID          string           `json:"id"`
	Timestamp   time.Time        `json:"timestamp"`
	User        string           `json:"user"`
	Device      string           `json:"device"`
	Operation   string           `json:"operation"`
	Candidate   string           `json:"candidate,omitempty"`
	Mode        string           `json:"mode,omitempty"`
	Status      reconcile.Status `json:"status,omitempty"`
	Sections    []SectionSummary `json:"sections,omitempty"`
	Success     bool             `json:"success"`
	Error       string           `json:"error,omitempty"`
	ExecuteMode bool             `json:"execute_mode"` // true if -x was used
	DryRun      bool             `json:"dry_run"`
	Duration    time.Duration    `json:"duration"`
}

// SectionSummary is the audited part of a section outcome.
type SectionSummary struct {
	Name      string   `json:"name"`
	Removed   []string `json:"removed,omitempty"`
	Added     []string `json:"added,omitempty"`
	Abandoned []string `json:"abandoned,omitempty"`
	Trials    int      `json:"trials,omitempty"`
	Saved     bool     `json:"saved,omitempty"`
}

// Operation names
const (
	OpConnect = "connect"
	OpStage   = "stage"
	OpCompare = "compare"
	OpPreview = "preview"
	OpCommit  = "commit"
	OpLock    = "lock"
	OpUnlock  = "unlock"
)

// Filter defines criteria for querying audit events. Zero fields match
// everything.
type Filter struct {
	Device       string
	User         string
	Operation    string
	Candidate    string
	Status       reconcile.Status
	StartTime    time.Time
	EndTime      time.Time
	SuccessOnly  bool
	FailureOnly  bool
	ExecutedOnly bool // skip dry runs
	Limit        int
	Offset       int
}

// Match reports whether e satisfies every criterion of f except Limit
// and Offset.
func (f Filter) Match(e *Event) bool {
	switch {
	case f.Device != "" && e.Device != f.Device,
		f.User != "" && e.User != f.User,
		f.Operation != "" && e.Operation != f.Operation,
		f.Candidate != "" && e.Candidate != f.Candidate,
		f.Status != "" && e.Status != f.Status,
		!f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime),
		!f.EndTime.IsZero() && e.Timestamp.After(f.EndTime),
		f.SuccessOnly && !e.Success,
		f.FailureOnly && e.Success,
		f.ExecutedOnly && e.DryRun:
		return false
	}
	return true
}

// page applies Offset and Limit to events already in query order.
func (f Filter) page(events []*Event) []*Event {
	if f.Offset > 0 {
		if f.Offset >= len(events) {
			return []*Event{}
		}
		events = events[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(events) {
		events = events[:f.Limit]
	}
	return events
}

// NewEvent creates a new audit event
func NewEvent(user, device, operation string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Operation: operation,
	}
}

// WithCandidate sets the staged candidate name
func (e *Event) WithCandidate(name string) *Event {
	e.Candidate = name
	return e
}

// WithMode sets the commit mode
func (e *Event) WithMode(mode string) *Event {
	e.Mode = mode
	return e
}

// WithOutcome records the status and per-section changes of a
// reconciliation. Compliant sections are left out.
func (e *Event) WithOutcome(o *reconcile.Outcome) *Event {
	if o == nil {
		return e
	}
	e.Status = o.Status()
	e.Sections = nil
	for _, s := range o.Sections {
		if !s.Attempted {
			continue
		}
		sum := SectionSummary{
			Name:    s.Name,
			Removed: s.Removed,
			Added:   s.Added,
			Trials:  s.Trials,
			Saved:   s.Saved,
		}
		for _, a := range s.Abandoned {
			sum.Abandoned = append(sum.Abandoned, a.Line.Text)
		}
		e.Sections = append(e.Sections, sum)
	}
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithExecuteMode marks if execute mode was used
func (e *Event) WithExecuteMode(execute bool) *Event {
	e.ExecuteMode = execute
	e.DryRun = !execute
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
