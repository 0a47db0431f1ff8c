// Package reconcile applies a compliance report to a device: extra lines are
// removed by a progressive-truncation search over "no" commands, missing
// lines are added verbatim, and changed sections are saved.
//
// The device offers no schema, no replace and no diff-based patch. Its parser
// rejects a negation whose arguments do not exactly match a configured line
// but often accepts a shorter prefix, so the engine tries "no <statement>"
// with one trailing word fewer at a time until the device accepts it.
//
// Per-command rejections never escape the engine: a line whose every
// truncation is rejected is recorded as abandoned and the engine moves on.
// Only channel failures outside a trial stop it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fsconf-network/fsconf/pkg/compliance"
	"github.com/fsconf-network/fsconf/pkg/config"
	"github.com/fsconf-network/fsconf/pkg/eapi"
	"github.com/fsconf-network/fsconf/pkg/util"
)

// vlanDeclaration matches statements that must never be negated.
var vlanDeclaration = regexp.MustCompile(`^vlan [0-9,-]+$`)

// IsProtected reports whether a statement is a VLAN declaration.
func IsProtected(statement string) bool {
	return vlanDeclaration.MatchString(strings.TrimSpace(statement))
}

// Channel sends one command batch and returns one result per command.
// *eapi.Client satisfies it.
type Channel interface {
	Send(ctx context.Context, cmds []string, format eapi.Format) ([]eapi.Result, error)
}

// Dialect holds the CLI keywords the engine emits.
type Dialect struct {
	ModeEntry string
	ModeExit  string
	Save      string
	Negation  string
}

// DefaultDialect is the FS switch CLI.
var DefaultDialect = Dialect{
	ModeEntry: "configure terminal",
	ModeExit:  "end",
	Save:      "write",
	Negation:  "no",
}

// Engine reconciles one device. It is not safe for concurrent use; it
// sends one batch at a time and later trials depend on earlier responses.
type Engine struct {
	channel Channel
	dialect Dialect
	device  string
	save    bool
	dryRun  bool
	log     *logrus.Entry
}

// New creates an engine sending through ch.
func New(ch Channel, opts ...func(*Engine)) *Engine {
	e := &Engine{
		channel: ch,
		dialect: DefaultDialect,
		save:    true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dryRun {
		e.channel = acceptAll{}
	}
	if e.log == nil {
		e.log = util.WithDevice(e.device)
	}
	return e
}

// WithDialect replaces the CLI keywords.
func WithDialect(d Dialect) func(*Engine) {
	return func(e *Engine) {
		e.dialect = d
	}
}

// WithDevice names the device in logs and in the outcome.
func WithDevice(name string) func(*Engine) {
	return func(e *Engine) {
		e.device = name
	}
}

// WithSave controls whether changed sections are persisted (default true).
func WithSave(save bool) func(*Engine) {
	return func(e *Engine) {
		e.save = save
	}
}

// WithDryRun records the batches that would be sent without contacting the
// device. Every command is assumed accepted, so truncation searches show only
// the full-length negation.
func WithDryRun() func(*Engine) {
	return func(e *Engine) {
		e.dryRun = true
	}
}

// WithLogger sets the log entry.
func WithLogger(entry *logrus.Entry) func(*Engine) {
	return func(e *Engine) {
		e.log = entry
	}
}

// acceptAll is the dry-run channel.
type acceptAll struct{}

func (acceptAll) Send(_ context.Context, cmds []string, _ eapi.Format) ([]eapi.Result, error) {
	return make([]eapi.Result, len(cmds)), nil
}

// Reconcile processes the report's sections in order, skipping compliant
// ones. On a fatal channel failure it returns the outcome so far, marked
// aborted, together with the error.
func (e *Engine) Reconcile(ctx context.Context, report compliance.Report) (*Outcome, error) {
	out := &Outcome{Device: e.device, DryRun: e.dryRun}

	for _, sr := range report {
		so := SectionOutcome{Name: sr.Section.Name}
		if sr.Compliant || (len(sr.Extra) == 0 && len(sr.Missing) == 0) {
			out.Sections = append(out.Sections, so)
			continue
		}

		so.Attempted = true
		err := e.reconcileSection(ctx, sr, &so)
		out.Sections = append(out.Sections, so)
		if err != nil {
			out.Aborted = true
			return out, fmt.Errorf("reconciling section %s: %w", sr.Section.Name, err)
		}
	}
	return out, nil
}

func (e *Engine) reconcileSection(ctx context.Context, sr compliance.SectionReport, so *SectionOutcome) error {
	log := e.log.WithField("section", sr.Section.Name)
	log.Debugf("reconciling: %d extra, %d missing", len(sr.Extra), len(sr.Missing))

	// Removal phase
	var pending []string
	for _, line := range sr.Extra {
		if err := ctx.Err(); err != nil {
			return err
		}
		stmt := line.Statement()

		if IsProtected(stmt) {
			log.Infof("not removing protected line %q", stmt)
			so.Protected = append(so.Protected, line)
			continue
		}

		if rest, ok := e.negated(stmt); ok {
			if _, err := e.send(ctx, so, e.withContext(line.Parent, rest)); err != nil {
				return err
			}
			so.Removed = append(so.Removed, rest)
			so.Changed = true
			continue
		}

		if sr.Section.Name != compliance.SectionBaseline && !line.Nested() {
			pending = append(pending, line.Text)
			continue
		}

		if err := e.truncationSearch(ctx, log, line, so); err != nil {
			return err
		}
	}

	// Leftover flush
	if len(pending) > 0 {
		if _, err := e.send(ctx, so, append([]string{e.dialect.ModeEntry}, pending...)); err != nil {
			return err
		}
	}

	// Addition phase
	var batch []string
	if len(sr.Missing) > 0 {
		batch = append(batch, e.dialect.ModeEntry)
		current := ""
		for _, line := range sr.Missing {
			if line.Parent != "" && line.Parent != current {
				batch = append(batch, line.Parent)
				current = line.Parent
			}
			if line.Parent == "" {
				current = line.Text
			}
			batch = append(batch, line.Text)
			so.Added = append(so.Added, line.Text)
		}
		so.Changed = true
	}

	// Persistence
	if so.Changed && e.save {
		batch = append(batch, e.dialect.ModeExit, e.dialect.Save)
	}
	if len(batch) == 0 {
		return nil
	}
	if _, err := e.send(ctx, so, batch); err != nil {
		return err
	}
	so.Saved = so.Changed && e.save
	if so.Saved {
		log.Info("section changed, configuration saved")
	}
	return nil
}

// truncationSearch tries "no" plus the first W-N words of the statement for
// N = 0..W-1 and stops at the first batch with no rejected command.
func (e *Engine) truncationSearch(ctx context.Context, log *logrus.Entry, line config.Line, so *SectionOutcome) error {
	words := strings.Fields(line.Statement())
	abandoned := AbandonedLine{Line: line, Reason: "all truncation levels rejected"}

	for n := 0; n < len(words); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd := e.dialect.Negation + " " + strings.Join(words[:len(words)-n], " ")
		abandoned.Trials++
		so.Trials++

		results, err := e.send(ctx, so, e.withContext(line.Parent, cmd))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.WithError(err).Warnf("trial %q failed, abandoning line", cmd)
			abandoned.Reason = err.Error()
			break
		}
		if rejected := eapi.CountErrors(results); rejected > 0 {
			log.Debugf("trial %q rejected", cmd)
			continue
		}

		log.Infof("removed %q with %q", line.Statement(), cmd)
		so.Removed = append(so.Removed, cmd)
		so.Changed = true
		return nil
	}

	if len(words) == 0 {
		abandoned.Reason = "empty statement"
	}
	log.Warnf("could not remove %q after %d trials: %s", line.Statement(), abandoned.Trials, abandoned.Reason)
	so.Abandoned = append(so.Abandoned, abandoned)
	return nil
}

// negated reports whether stmt starts with the negation keyword and returns
// the statement without it.
func (e *Engine) negated(stmt string) (string, bool) {
	prefix := e.dialect.Negation + " "
	if !strings.HasPrefix(stmt, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(stmt, prefix)), true
}

func (e *Engine) withContext(parent, cmd string) []string {
	if parent == "" {
		return []string{e.dialect.ModeEntry, cmd}
	}
	return []string{e.dialect.ModeEntry, parent, cmd}
}

func (e *Engine) send(ctx context.Context, so *SectionOutcome, batch []string) ([]eapi.Result, error) {
	so.Batches = append(so.Batches, batch)
	return e.channel.Send(ctx, batch, eapi.FormatJSON)
}
