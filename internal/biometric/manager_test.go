package biometric

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credvault/internal/sentinel"
	id "credvault/pkg/domain"
	"credvault/pkg/platform/audit"
	"credvault/pkg/platform/audit/publisher"
)

var sessionStart = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(opts ...ManagerOption) *Manager {
	m := NewManager(opts...)
	m.now = func() time.Time { return sessionStart }
	return m
}

func TestCreateSession(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "did:civic:alice", ModalityFace)
	require.NoError(t, err)

	assert.False(t, session.ID.IsNil())
	assert.Equal(t, id.DID("did:civic:alice"), session.Subject)
	assert.Equal(t, ModalityFace, session.Modality)
	assert.Equal(t, sessionStart, session.StartedAt)
	assert.Equal(t, sessionStart.Add(DefaultSessionTTL), session.ExpiresAt)
	assert.False(t, session.Verified)
	assert.False(t, session.Consumed)
}

func TestCreateSession_DefaultsToFingerprint(t *testing.T) {
	m := newTestManager()
	session, err := m.CreateSession(context.Background(), "did:civic:alice", "")
	require.NoError(t, err)
	assert.Equal(t, ModalityFingerprint, session.Modality)
}

func TestCreateSession_Rejections(t *testing.T) {
	m := newTestManager()

	_, err := m.CreateSession(context.Background(), "", ModalityFace)
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)

	_, err = m.CreateSession(context.Background(), "did:civic:alice", Modality("gait"))
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)
}

func TestVerify_AdequateSamplePasses(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "did:civic:alice", ModalityFingerprint)
	require.NoError(t, err)

	result, err := m.Verify(ctx, session.ID, "a-long-enough-sample")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.GreaterOrEqual(t, result.QualityScore, passThreshold)
	assert.LessOrEqual(t, result.QualityScore, 100)

	stored, err := m.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
}

func TestVerify_ShortSampleFails(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "did:civic:alice", ModalityFingerprint)
	require.NoError(t, err)

	result, err := m.Verify(ctx, session.ID, "tiny")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Less(t, result.QualityScore, passThreshold)
	assert.Equal(t, "low_quality", result.Reason)

	stored, err := m.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, stored.Verified)
}

func TestVerify_EmptySample(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "did:civic:alice", ModalityFingerprint)
	require.NoError(t, err)

	result, err := m.Verify(ctx, session.ID, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, result.QualityScore)
	assert.Equal(t, "empty_sample", result.Reason)
}

func TestVerify_ExpiredSession(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "did:civic:alice", ModalityFingerprint)
	require.NoError(t, err)

	m.now = func() time.Time { return sessionStart.Add(DefaultSessionTTL + time.Second) }
	_, err = m.Verify(ctx, session.ID, "a-long-enough-sample")
	assert.ErrorIs(t, err, sentinel.ErrExpired)
}

func TestVerify_UnknownSession(t *testing.T) {
	m := newTestManager()
	_, err := m.Verify(context.Background(), id.NewSessionID(), "sample")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestAuthorize(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "did:civic:alice", ModalityFingerprint)
	require.NoError(t, err)

	t.Run("unverified session refused", func(t *testing.T) {
		err := m.Authorize(ctx, session.ID, "did:civic:alice")
		assert.ErrorIs(t, err, sentinel.ErrNotVerified)
	})

	_, err = m.Verify(ctx, session.ID, "a-long-enough-sample")
	require.NoError(t, err)

	t.Run("subject mismatch refused", func(t *testing.T) {
		err := m.Authorize(ctx, session.ID, "did:civic:mallory")
		assert.ErrorIs(t, err, sentinel.ErrNotVerified)
	})

	t.Run("verified session authorizes its subject once", func(t *testing.T) {
		require.NoError(t, m.Authorize(ctx, session.ID, "did:civic:alice"))

		// The successful authorization claimed the session.
		err := m.Authorize(ctx, session.ID, "did:civic:alice")
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})

	t.Run("release returns the claim", func(t *testing.T) {
		require.NoError(t, m.Release(ctx, session.ID))
		require.NoError(t, m.Authorize(ctx, session.ID, "did:civic:alice"))
	})
}

func TestAuthorize_ConcurrentClaims(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "did:civic:alice", ModalityFingerprint)
	require.NoError(t, err)
	_, err = m.Verify(ctx, session.ID, "a-long-enough-sample")
	require.NoError(t, err)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Authorize(ctx, session.ID, "did:civic:alice") == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load(), "a session grants exactly one claim")
}

func TestRelease_UnknownSession(t *testing.T) {
	m := newTestManager()
	err := m.Release(context.Background(), id.NewSessionID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestDeleteExpiredSessions(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	fresh, err := m.CreateSession(ctx, "did:civic:alice", ModalityFingerprint)
	require.NoError(t, err)
	stale, err := m.CreateSession(ctx, "did:civic:bob", ModalityFingerprint)
	require.NoError(t, err)

	deleted, err := m.DeleteExpiredSessions(ctx, stale.ExpiresAt.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	deleted, err = m.DeleteExpiredSessions(ctx, stale.ExpiresAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = m.Get(ctx, fresh.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSessionAuditTrail(t *testing.T) {
	auditStore := audit.NewInMemoryStore()
	m := newTestManager(WithAuditor(publisher.NewPublisher(auditStore)))
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "did:civic:alice", ModalityFace)
	require.NoError(t, err)
	_, err = m.Verify(ctx, session.ID, "a-long-enough-sample")
	require.NoError(t, err)

	events, err := auditStore.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, string(audit.EventSessionCreated), events[0].Action)
	assert.Equal(t, id.DID("did:civic:alice"), events[0].Subject)
	assert.Equal(t, string(audit.EventSessionVerified), events[1].Action)
	assert.True(t, events[1].Success)
}

func TestSessionTTLOption(t *testing.T) {
	m := newTestManager(WithSessionTTL(time.Minute))
	m.now = func() time.Time { return sessionStart }

	session, err := m.CreateSession(context.Background(), "did:civic:alice", ModalityVoice)
	require.NoError(t, err)
	assert.Equal(t, sessionStart.Add(time.Minute), session.ExpiresAt)
}
