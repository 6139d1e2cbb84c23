package publisher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "credvault/pkg/domain"
	"credvault/pkg/platform/audit"
)

func TestEmit_Sync(t *testing.T) {
	store := audit.NewInMemoryStore()
	p := NewPublisher(store)
	ctx := context.Background()

	err := p.Emit(ctx, audit.Event{
		Subject: id.DID("did:civic:alice"),
		Action:  string(audit.EventEntryCreated),
		Success: true,
	})
	require.NoError(t, err)

	events, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventEntryCreated), events[0].Action)
	assert.False(t, events[0].Timestamp.IsZero(), "timestamp should be stamped when absent")
}

func TestEmit_AsyncDrainsOnClose(t *testing.T) {
	store := audit.NewInMemoryStore()
	p := NewPublisher(store, WithAsyncBuffer(16))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Emit(ctx, audit.Event{
			Subject: id.DID("did:civic:bob"),
			Action:  string(audit.EventEntryUnlocked),
			Success: true,
		}))
	}
	p.Close()

	events, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 10)
}

func TestList_FiltersBySubject(t *testing.T) {
	store := audit.NewInMemoryStore()
	p := NewPublisher(store)
	ctx := context.Background()

	require.NoError(t, p.Emit(ctx, audit.Event{Subject: id.DID("did:civic:alice"), Action: "a"}))
	require.NoError(t, p.Emit(ctx, audit.Event{Subject: id.DID("did:civic:bob"), Action: "b"}))
	require.NoError(t, p.Emit(ctx, audit.Event{Subject: id.DID("did:civic:alice"), Action: "c"}))

	events, err := p.List(ctx, id.DID("did:civic:alice"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Action)
	assert.Equal(t, "c", events[1].Action)
}
