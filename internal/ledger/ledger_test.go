package ledger

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/teemow/venuedesk/internal/model"
	"github.com/teemow/venuedesk/internal/store"
)

var tokenPattern = regexp.MustCompile(`^[0-9][a-z0-9]{3}$`)

func newTestLedger(t *testing.T) (*Ledger, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, nil, nil), st
}

func sequence(tokens ...string) func() string {
	i := 0
	return func() string {
		t := tokens[i%len(tokens)]
		i++
		return t
	}
}

func input(emailID string) Input {
	return Input{EmailID: emailID, ProposedBody: "Body", Recipient: "a@b.com", Subject: "Re: X", ThreadID: "t-" + emailID}
}

func TestLedger_CreateLookupClaim(t *testing.T) {
	ctx := context.Background()
	l, st := newTestLedger(t)

	token, err := l.Create(ctx, input("E1"))
	require.NoError(t, err)
	assert.Regexp(t, tokenPattern, token)

	got, ok := l.Lookup(" " + token + " ")
	require.True(t, ok)
	assert.Equal(t, "E1", got.EmailID)
	assert.Equal(t, model.StatusCreated, got.Status)

	claimed, ok := l.Claim(ctx, token)
	require.True(t, ok)
	assert.Equal(t, model.StatusResolved, claimed.Status)

	_, ok = l.Claim(ctx, token)
	assert.False(t, ok, "second claim must miss")
	_, ok = l.Lookup(token)
	assert.False(t, ok)

	history, err := st.History(ctx, model.EntryPendingEmailResponse)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, token, history[0].Fields["shortId"])
	assert.NotEmpty(t, history[0].ID)
}

func TestLedger_ClaimIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	l.token = sequence("1abc")

	_, err := l.Create(ctx, input("E1"))
	require.NoError(t, err)

	_, ok := l.Claim(ctx, "1ABC")
	assert.True(t, ok)
}

func TestLedger_TokenCollisionRegenerates(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	l.token = sequence("1abc", "1abc", "1abc", "2xyz")

	first, err := l.Create(ctx, input("E1"))
	require.NoError(t, err)
	second, err := l.Create(ctx, input("E2"))
	require.NoError(t, err)

	assert.Equal(t, "1abc", first)
	assert.Equal(t, "2xyz", second)
}

func TestLedger_ClaimedTokenIsNotReused(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	l.token = sequence("1abc", "1abc", "3def")

	_, err := l.Create(ctx, input("E1"))
	require.NoError(t, err)
	_, ok := l.Claim(ctx, "1abc")
	require.True(t, ok)

	token, err := l.Create(ctx, input("E2"))
	require.NoError(t, err)
	assert.Equal(t, "3def", token)
}

func TestLedger_TokenExhaustion(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	l.token = sequence("1abc")

	_, err := l.Create(ctx, input("E1"))
	require.NoError(t, err)
	_, err = l.Create(ctx, input("E2"))
	assert.Error(t, err)
}

func TestLedger_CreateValidation(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.Create(ctx, Input{Recipient: "a@b.com"})
	assert.Error(t, err)

	_, err = l.Create(ctx, input("E1"))
	require.NoError(t, err)
	_, err = l.Create(ctx, input("E1"))
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestLedger_FailureReopens(t *testing.T) {
	ctx := context.Background()
	l, st := newTestLedger(t)

	token, err := l.Create(ctx, input("E1"))
	require.NoError(t, err)
	action, ok := l.Claim(ctx, token)
	require.True(t, ok)

	require.NoError(t, l.RecordFailure(ctx, action, errors.New("smtp 451")))

	reopened, ok := l.Lookup(token)
	require.True(t, ok)
	assert.Equal(t, model.StatusCreated, reopened.Status)

	failures, err := st.History(ctx, model.EntrySendFailure)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "smtp 451", failures[0].Fields["error"])

	_, ok = l.Claim(ctx, token)
	assert.True(t, ok, "a fresh command can retry")
}

func TestLedger_LoadRestoresOpenActions(t *testing.T) {
	ctx := context.Background()
	l, st := newTestLedger(t)

	sentToken, err := l.Create(ctx, input("E1"))
	require.NoError(t, err)
	openToken, err := l.Create(ctx, input("E2"))
	require.NoError(t, err)

	action, ok := l.Claim(ctx, sentToken)
	require.True(t, ok)
	require.NoError(t, l.RecordSent(ctx, action, model.MessageRef{ID: "S1", ThreadID: "t-E1"}, "Edited body"))

	restored := New(st, nil, nil)
	require.NoError(t, restored.Load(ctx))

	open := restored.Open()
	require.Len(t, open, 1)
	assert.Equal(t, openToken, open[0].ShortID)
	assert.Equal(t, "E2", open[0].EmailID)
	assert.Equal(t, "Body", open[0].ProposedBody)
	assert.Equal(t, "t-E2", open[0].ThreadID)
	assert.False(t, open[0].CreatedAt.IsZero())

	_, ok = restored.Lookup(sentToken)
	assert.False(t, ok)

	sent, err := st.History(ctx, model.EntryEmailSent)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, true, sent[0].Fields["edited"])

	_, err = restored.Create(ctx, input("E2"))
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestLedger_TokensUniqueAmongOpen(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st, err := store.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		defer st.Close()

		l := New(st, nil, nil)
		ctx := context.Background()
		seen := make(map[string]bool)

		n := rapid.IntRange(1, 30).Draw(t, "n")
		for i := range n {
			token, err := l.Create(ctx, Input{EmailID: string(rune('A'+i%26)) + string(rune('a'+i/26)), Recipient: "a@b.com"})
			require.NoError(t, err)
			assert.Regexp(t, tokenPattern, token)
			assert.False(t, seen[token], "token %s reused", token)
			seen[token] = true

			if rapid.Bool().Draw(t, "claim") {
				_, ok := l.Claim(ctx, token)
				assert.True(t, ok)
			}
		}
	})
}

func TestLedger_ForEmail(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, ok := l.ForEmail("E1")
	assert.False(t, ok)

	token, err := l.Create(ctx, input("E1"))
	require.NoError(t, err)

	got, ok := l.ForEmail("E1")
	require.True(t, ok)
	assert.Equal(t, token, got.ShortID)

	_, ok = l.Claim(ctx, token)
	require.True(t, ok)
	_, ok = l.ForEmail("E1")
	assert.False(t, ok, "claimed actions are not open")
}
