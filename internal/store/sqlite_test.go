package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/venuedesk/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})
	return s
}

func strPtr(s string) *string { return &s }

func TestSQLiteStore_Messages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	msgs := []model.Message{
		{ID: "a", ThreadID: "t1", InternalDate: 100, Subject: "first", Category: "other"},
		{ID: "b", ThreadID: "t1", InternalDate: 300, Subject: "third", Replied: true,
			AssociatedEventID: strPtr("e1"), AssociatedEventName: strPtr("Wedding")},
		{ID: "c", ThreadID: "t2", InternalDate: 200, Labels: []string{"INBOX"}},
	}
	require.NoError(t, s.SaveMessages(ctx, msgs))

	got, err := s.LoadMessages(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.True(t, got[0].Replied)
	require.NotNil(t, got[0].AssociatedEventID)
	assert.Equal(t, "e1", *got[0].AssociatedEventID)
	assert.Equal(t, []string{"INBOX"}, got[1].Labels)

	// Upsert replaces the payload of an existing row.
	msgs[0].HasNotified = true
	require.NoError(t, s.SaveMessages(ctx, msgs[:1]))

	one, ok, err := s.GetMessage(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, one.HasNotified)

	_, ok, err = s.GetMessage(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_SaveMessagesEmpty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveMessages(context.Background(), nil))
}

func TestSQLiteStore_Metadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	meta, err := s.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.Zero(t, meta.LastRetrieval)

	now := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, s.SetLastRetrieval(ctx, now))
	require.NoError(t, s.SetLastAssociationRefresh(ctx, now.Add(time.Minute)))
	require.NoError(t, s.SetLastRetrieval(ctx, now.Add(2*time.Minute)))

	meta, err = s.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Minute).UnixMilli(), meta.LastRetrieval)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), meta.LastAssociationRefresh)
}

func TestSQLiteStore_History(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	entries := []model.HistoryEntry{
		{ID: "h1", Type: model.EntryPendingEmailResponse, Timestamp: ts, Fields: map[string]any{"shortId": "1abc"}},
		{ID: "h2", Type: model.EntrySMSSent, Timestamp: ts.Add(time.Second)},
		{ID: "h3", Type: model.EntryPendingEmailResolved, Timestamp: ts.Add(2 * time.Second), Fields: map[string]any{"shortId": "1abc"}},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendHistory(ctx, e))
	}

	all, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "h1", all[0].ID)
	assert.Equal(t, "1abc", all[0].Fields["shortId"])
	assert.True(t, all[0].Timestamp.Equal(ts))

	filtered, err := s.History(ctx, model.EntryPendingEmailResponse, model.EntryPendingEmailResolved)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, "h3", filtered[1].ID)

	// Duplicate ids are rejected so the ledger stays append-only.
	assert.Error(t, s.AppendHistory(ctx, entries[0]))
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "venuedesk.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveMessages(ctx, []model.Message{{ID: "x", InternalDate: 1}}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadMessages(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].ID)
}
