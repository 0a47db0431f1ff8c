package device

import (
	"context"
	"fmt"

	"github.com/fsconf-network/fsconf/pkg/compliance"
	"github.com/fsconf-network/fsconf/pkg/reconcile"
	"github.com/fsconf-network/fsconf/pkg/util"
)

// CommitMode selects how a candidate is applied.
type CommitMode string

const (
	// CommitReconcile applies the candidate line by line through the
	// reconciliation engine. This is the default policy.
	CommitReconcile CommitMode = "reconcile"
	// CommitReplace copies the staged file over running-config in one
	// command. Only allowed when the profile sets ReplaceSupported.
	CommitReplace CommitMode = "replace"
)

// SectionReplace names the single outcome section of a replace commit.
const SectionReplace = "replace"

// CommitOptions controls CommitConfig.
type CommitOptions struct {
	Mode CommitMode
	// NoSave skips persisting the result to the startup configuration.
	NoSave bool
	// DryRun returns the batches that would be sent; the candidate is kept.
	DryRun bool
	// Engine passes extra options to the reconciliation engine.
	Engine []func(*reconcile.Engine)
}

// CommitConfig applies the staged candidate and consumes it. Fatal
// failures (no candidate, replace unsupported, channel failure) are
// returned as errors; lines the device would not remove are reported in the
// outcome, whose Status is then partial.
func (s *Session) CommitConfig(ctx context.Context, opts CommitOptions) (*reconcile.Outcome, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	if s.candidate == nil {
		return nil, util.ErrNoCandidateStaged
	}
	if opts.Mode == "" {
		opts.Mode = CommitReconcile
	}

	switch opts.Mode {
	case CommitReconcile:
		report, err := s.ComplianceReport(ctx)
		if err != nil {
			return nil, err
		}
		return s.Apply(ctx, report, opts)
	case CommitReplace:
		if !s.profile.ReplaceSupported {
			return nil, fmt.Errorf("%s: %w", s.profile.Name, util.ErrReplaceUnsupported)
		}
		return s.replace(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown commit mode %q", opts.Mode)
	}
}

// Apply runs the reconciliation engine over an already computed report,
// consuming the candidate unless this is a dry run.
func (s *Session) Apply(ctx context.Context, report compliance.Report, opts CommitOptions) (*reconcile.Outcome, error) {
	engineOpts := []func(*reconcile.Engine){
		reconcile.WithDevice(s.profile.Name),
		reconcile.WithSave(!opts.NoSave),
		reconcile.WithLogger(s.log),
	}
	if opts.DryRun {
		engineOpts = append(engineOpts, reconcile.WithDryRun())
	}
	engineOpts = append(engineOpts, opts.Engine...)

	outcome, err := reconcile.New(s.client, engineOpts...).Reconcile(ctx, report)
	if !opts.DryRun {
		s.consume()
	}
	if err != nil {
		return outcome, err
	}

	s.log.WithField("status", outcome.Status()).Infof("commit finished, %d lines abandoned", outcome.Abandoned())
	return outcome, nil
}

func (s *Session) replace(ctx context.Context, opts CommitOptions) (*reconcile.Outcome, error) {
	batch := []string{fmt.Sprintf("copy %s running-config", s.candidate.Path(s.profile.Filesystem))}
	if !opts.NoSave {
		batch = append(batch, reconcile.DefaultDialect.Save)
	}

	so := reconcile.SectionOutcome{Name: SectionReplace, Attempted: true, Batches: [][]string{batch}}
	outcome := &reconcile.Outcome{Device: s.profile.Name, DryRun: opts.DryRun}
	if opts.DryRun {
		outcome.Sections = []reconcile.SectionOutcome{so}
		return outcome, nil
	}

	results, err := s.client.Run(ctx, batch...)
	s.consume()
	if err != nil {
		outcome.Sections = []reconcile.SectionOutcome{so}
		outcome.Aborted = true
		return outcome, err
	}
	if err := results[0].Err(); err != nil {
		outcome.Sections = []reconcile.SectionOutcome{so}
		outcome.Aborted = true
		return outcome, fmt.Errorf("replacing running-config: %w", err)
	}
	so.Changed = true
	so.Saved = !opts.NoSave && !results[len(results)-1].HasError()
	outcome.Sections = []reconcile.SectionOutcome{so}

	s.log.Info("running-config replaced")
	return outcome, nil
}

func (s *Session) consume() {
	if s.candidate != nil {
		s.log.Debugf("candidate %s consumed", s.candidate.Name)
	}
	s.candidate = nil
}
