// Package device manages one switch: the command channel session, the SSH
// file-transfer channel, the staged candidate configuration, and the commit
// policy that applies it.
//
// A Session exclusively owns its command channel client, its SSH connection
// and its candidate. It is not safe for concurrent use: callers must not
// share one Session between goroutines.
package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fsconf-network/fsconf/pkg/compliance"
	"github.com/fsconf-network/fsconf/pkg/config"
	"github.com/fsconf-network/fsconf/pkg/diff"
	"github.com/fsconf-network/fsconf/pkg/eapi"
	"github.com/fsconf-network/fsconf/pkg/util"
)

// CandidateConfig is the configuration staged on the device, awaiting
// commit. At most one exists per Session.
type CandidateConfig struct {
	Name     string
	Content  config.ConfigText
	StagedAt time.Time
}

// Path returns the candidate's device path, e.g. "flash:cand.cfg".
func (c *CandidateConfig) Path(filesystem string) string {
	return filesystem + c.Name
}

// Session is an open management session to one switch.
type Session struct {
	profile   Profile
	client    *eapi.Client
	dialer    TransferDialer
	transfer  Transfer
	catalogue compliance.Catalogue
	candidate *CandidateConfig
	facts     *Facts
	open      bool
	log       *logrus.Entry

	clientOpts []func(*eapi.Client)
}

// NewSession prepares a session; nothing is contacted until Open.
func NewSession(p Profile, opts ...func(*Session)) *Session {
	p = p.withDefaults()
	s := &Session{
		profile:   p,
		dialer:    DialSSH,
		catalogue: compliance.DefaultCatalogue(),
		log:       util.WithDevice(p.Name),
	}
	for _, opt := range opts {
		opt(s)
	}

	base := []func(*eapi.Client){
		eapi.Credentials(p.Username, p.Password),
		eapi.InsecureSkipVerify(p.InsecureTLS),
		eapi.Timeout(p.Timeout),
		eapi.Logger(s.log),
	}
	if p.Port != 0 {
		base = append(base, eapi.Port(p.Port))
	}
	s.client = eapi.NewClient(p.Host, append(base, s.clientOpts...)...)
	return s
}

// WithTransferDialer replaces the SSH file-transfer dialer.
func WithTransferDialer(d TransferDialer) func(*Session) {
	return func(s *Session) {
		s.dialer = d
	}
}

// WithCatalogue replaces the feature catalogue used for compliance.
func WithCatalogue(c compliance.Catalogue) func(*Session) {
	return func(s *Session) {
		if len(c) > 0 {
			s.catalogue = c
		}
	}
}

// WithClientOptions passes options through to the command channel client.
func WithClientOptions(opts ...func(*eapi.Client)) func(*Session) {
	return func(s *Session) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// Name returns the device name.
func (s *Session) Name() string {
	return s.profile.Name
}

// Profile returns the session's profile with defaults applied.
func (s *Session) Profile() Profile {
	return s.profile
}

// Client returns the command channel client.
func (s *Session) Client() *eapi.Client {
	return s.client
}

// IsOpen reports whether Open succeeded and Close has not been called.
func (s *Session) IsOpen() bool {
	return s.open
}

// Open verifies the command channel answers, then establishes the SSH
// file-transfer channel. Any failure is a *util.ConnectionError and leaves
// nothing open.
func (s *Session) Open(ctx context.Context) error {
	if s.open {
		return nil
	}
	if err := s.profile.Validate(); err != nil {
		return util.NewConnectionError(s.profile.Name, "profile", err)
	}

	results, err := s.client.Run(ctx, "show version")
	if err != nil {
		return util.NewConnectionError(s.profile.Name, "command-api", err)
	}
	if err := eapi.FirstError(results); err != nil {
		return util.NewConnectionError(s.profile.Name, "command-api", err)
	}
	facts := parseFacts(results[0])
	s.facts = &facts

	transfer, err := s.dialer(ctx, s.profile)
	if err != nil {
		s.facts = nil
		return util.NewConnectionError(s.profile.Name, "ssh", err)
	}
	s.transfer = transfer
	s.open = true

	s.log.WithField("version", facts.OSVersion).Info("Connected")
	return nil
}

// Close drops the candidate and closes the file-transfer channel. The
// command channel has no session to close. Close is idempotent.
func (s *Session) Close() error {
	if !s.open {
		return nil
	}
	s.open = false
	s.candidate = nil
	s.facts = nil

	var err error
	if s.transfer != nil {
		err = s.transfer.Close()
		s.transfer = nil
	}
	s.log.Info("Disconnected")
	return err
}

func (s *Session) requireOpen() error {
	if !s.open {
		return util.ErrNotConnected
	}
	return nil
}

// ============================================================================
// Snapshot reader
// ============================================================================

// runText runs one text-format command and returns its output, turning a
// rejection into a *util.CommandError.
func (s *Session) runText(ctx context.Context, cmd string) (string, error) {
	results, err := s.client.RunText(ctx, cmd)
	if err != nil {
		return "", err
	}
	if err := results[0].Err(); err != nil {
		return "", err
	}
	return results[0].Text(), nil
}

// RunningConfig fetches the running configuration.
func (s *Session) RunningConfig(ctx context.Context) (config.ConfigText, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	text, err := s.runText(ctx, "show running-config")
	if err != nil {
		return nil, fmt.Errorf("reading running-config: %w", err)
	}
	return config.Parse(text), nil
}

// CandidateContent reads the staged candidate back from device storage.
func (s *Session) CandidateContent(ctx context.Context) (config.ConfigText, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	if s.candidate == nil {
		return nil, util.ErrNoCandidateStaged
	}
	path := s.candidate.Path(s.profile.Filesystem)
	text, err := s.runText(ctx, "more "+path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return config.Parse(text), nil
}

// Candidate returns the staged candidate, or nil.
func (s *Session) Candidate() *CandidateConfig {
	return s.candidate
}

// ============================================================================
// Staging
// ============================================================================

// LoadMergeCandidate uploads content as name and verifies the device lists
// it. The new candidate supersedes any previous one, even when staging
// fails.
func (s *Session) LoadMergeCandidate(ctx context.Context, name string, content config.ConfigText) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if name == "" || strings.ContainsAny(name, " /:\t\n") {
		return util.NewStagingError(s.profile.Name, name, "invalid file name", nil)
	}

	if s.candidate != nil {
		s.log.Infof("candidate %s superseded by %s", s.candidate.Name, name)
		s.candidate = nil
	}

	path := s.profile.Filesystem + name
	if err := s.transfer.Upload(ctx, path, []byte(content.String())); err != nil {
		return util.NewStagingError(s.profile.Name, path, "upload failed", err)
	}

	listing, err := s.runText(ctx, "dir "+s.profile.Filesystem)
	if err != nil {
		return util.NewStagingError(s.profile.Name, path, "listing storage failed", err)
	}
	if !listed(listing, name) {
		return util.NewStagingError(s.profile.Name, path, "file not listed after upload", nil)
	}

	s.candidate = &CandidateConfig{Name: name, Content: content, StagedAt: time.Now()}
	s.log.WithField("file", path).Info("candidate staged")
	return nil
}

// LoadMergeCandidateFile stages a local file under its base name.
func (s *Session) LoadMergeCandidateFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading candidate: %w", err)
	}
	return s.LoadMergeCandidate(ctx, filepath.Base(path), config.Parse(string(data)))
}

// listed reports whether a directory listing names the file: one of the
// whitespace-separated fields of some line equals name.
func listed(listing, name string) bool {
	for _, line := range strings.Split(listing, "\n") {
		for _, field := range strings.Fields(line) {
			if field == name {
				return true
			}
		}
	}
	return false
}

// DiscardConfig drops the staged candidate. The file stays on the device;
// the next staging overwrites it.
func (s *Session) DiscardConfig() {
	if s.candidate != nil {
		s.log.Infof("candidate %s discarded", s.candidate.Name)
	}
	s.candidate = nil
}

// ============================================================================
// Compare
// ============================================================================

// snapshots fetches running and candidate. It fails with
// util.ErrNoCandidateStaged before any command is sent when nothing is
// staged.
func (s *Session) snapshots(ctx context.Context) (running, candidate config.ConfigText, err error) {
	if err := s.requireOpen(); err != nil {
		return nil, nil, err
	}
	if s.candidate == nil {
		return nil, nil, util.ErrNoCandidateStaged
	}
	running, err = s.RunningConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	candidate, err = s.CandidateContent(ctx)
	if err != nil {
		return nil, nil, err
	}
	return running, candidate, nil
}

// CompareConfig returns the unified diff from running to the staged
// candidate. An empty string means they are identical.
func (s *Session) CompareConfig(ctx context.Context) (string, error) {
	running, candidate, err := s.snapshots(ctx)
	if err != nil {
		return "", err
	}
	return diff.Unified(running, candidate, "running-config", s.candidate.Path(s.profile.Filesystem))
}

// ComplianceReport classifies running against the staged candidate.
func (s *Session) ComplianceReport(ctx context.Context) (compliance.Report, error) {
	running, candidate, err := s.snapshots(ctx)
	if err != nil {
		return nil, err
	}
	return compliance.Classify(s.catalogue, running, candidate), nil
}
