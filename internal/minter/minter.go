// Package minter derives tiered credential tokens from activity profiles.
package minter

import (
	"context"
	"log/slog"
	"time"

	"credvault/internal/credential"
	"credvault/internal/profile"
	id "credvault/pkg/domain"
	dErrors "credvault/pkg/domain-errors"
)

// Tier thresholds, evaluated top-down. A profile must meet every condition of
// a tier to classify into it.
const (
	governorTrust      = 90
	governorEngagement = 85
	governorVotes      = 50

	moderatorTrust      = 75
	moderatorEngagement = 70
	moderatorVotes      = 25
)

const (
	defaultIssuer        = "credvault"
	defaultSchemaVersion = "1.0.0"
	defaultNetwork       = "civicmesh"
	defaultValidity      = 365 * 24 * time.Hour
)

// Minter issues credential tokens. It is stateless apart from the injected
// profile source and configuration.
type Minter struct {
	profiles  profile.Source
	bootstrap map[id.DID]struct{}
	issuer    string
	schema    string
	network   string
	validity  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the Minter.
type Option func(*Minter)

// WithBootstrapSubjects sets the allow-list of privileged bootstrap subjects
// that always classify as Commander. This is deployment configuration for
// pilot environments, not a security boundary.
func WithBootstrapSubjects(subjects []string) Option {
	return func(m *Minter) {
		for _, s := range subjects {
			m.bootstrap[id.DID(s)] = struct{}{}
		}
	}
}

// WithIssuer overrides the issuer recorded in credential metadata.
func WithIssuer(issuer string) Option {
	return func(m *Minter) {
		if issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithNetwork overrides the network tag recorded in credential metadata.
func WithNetwork(network string) Option {
	return func(m *Minter) {
		if network != "" {
			m.network = network
		}
	}
}

// WithValidity overrides the credential validity window when greater than zero.
func WithValidity(d time.Duration) Option {
	return func(m *Minter) {
		if d > 0 {
			m.validity = d
		}
	}
}

// WithLogger configures a logger for the minter.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Minter) {
		m.logger = logger
	}
}

// New creates a Minter backed by the given profile source.
func New(profiles profile.Source, opts ...Option) *Minter {
	m := &Minter{
		profiles:  profiles,
		bootstrap: make(map[id.DID]struct{}),
		issuer:    defaultIssuer,
		schema:    defaultSchemaVersion,
		network:   defaultNetwork,
		validity:  defaultValidity,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mint validates the subject, loads its activity profile, and issues a fresh
// credential token. Tier assignment is deterministic for a fixed profile; only
// the credential identifier differs across calls.
func (m *Minter) Mint(ctx context.Context, rawDID string) (credential.Token, error) {
	subject, err := id.ParseDID(rawDID)
	if err != nil {
		return credential.Token{}, err
	}
	return m.issue(ctx, subject, id.NewCredentialID())
}

// Reissue mints a replacement token for an existing credential, preserving its
// identifier. Used by the refresh protocol.
func (m *Minter) Reissue(ctx context.Context, subject id.DID, keep id.CredentialID) (credential.Token, error) {
	if subject.IsNil() {
		return credential.Token{}, dErrors.New(dErrors.CodeInvalidSubject, "subject DID cannot be empty")
	}
	if keep.IsNil() {
		return credential.Token{}, dErrors.New(dErrors.CodeMintingFailed, "credential ID to preserve is required")
	}
	return m.issue(ctx, subject, keep)
}

func (m *Minter) issue(ctx context.Context, subject id.DID, credID id.CredentialID) (credential.Token, error) {
	prof, err := m.profiles.Get(ctx, subject)
	if err != nil {
		return credential.Token{}, dErrors.Wrap(err, dErrors.CodeMintingFailed, "could not load activity profile")
	}

	now := m.now()
	tier := m.Classify(prof)

	token, err := credential.New(credID, subject, tier, prof.TrustIndex, prof.StreakDays, now, credential.Metadata{
		Issuer:          m.issuer,
		SchemaVersion:   m.schema,
		Network:         m.network,
		ValidUntil:      now.Add(m.validity),
		LastActivity:    prof.LastActiveAt,
		VoteCount:       prof.VoteHistory,
		EngagementScore: prof.EngagementLevel,
	})
	if err != nil {
		return credential.Token{}, dErrors.Wrap(err, dErrors.CodeMintingFailed, "credential assembly failed")
	}

	if m.logger != nil {
		m.logger.InfoContext(ctx, "credential minted",
			"subject", subject,
			"tier", tier,
			"trust_index", prof.TrustIndex,
		)
	}
	return token, nil
}

// Classify applies the ordered tier rules to a profile.
func (m *Minter) Classify(prof profile.ActivityProfile) id.Tier {
	if _, ok := m.bootstrap[prof.DID]; ok {
		return id.TierCommander
	}
	if prof.TrustIndex >= governorTrust && prof.EngagementLevel >= governorEngagement && prof.VoteHistory >= governorVotes {
		return id.TierGovernor
	}
	if prof.TrustIndex >= moderatorTrust && prof.EngagementLevel >= moderatorEngagement && prof.VoteHistory >= moderatorVotes {
		return id.TierModerator
	}
	return id.TierCitizen
}

// Profile exposes the underlying activity snapshot for a subject.
func (m *Minter) Profile(ctx context.Context, subject id.DID) (profile.ActivityProfile, error) {
	return m.profiles.Get(ctx, subject)
}

// UpdateProfile applies a partial activity update for a subject.
func (m *Minter) UpdateProfile(ctx context.Context, subject id.DID, update profile.Update) (profile.ActivityProfile, error) {
	return m.profiles.Update(ctx, subject, update)
}
