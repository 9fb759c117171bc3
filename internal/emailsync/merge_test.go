package emailsync

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/teemow/venuedesk/internal/model"
)

func ptr(s string) *string { return &s }

func TestMergeEmails_FieldRules(t *testing.T) {
	cached := model.Message{
		ID:                      "m1",
		ThreadID:                "t1",
		InternalDate:            100,
		Subject:                 "old subject",
		Replied:                 true,
		Category:                "invoice",
		AssociatedEventID:       ptr("e1"),
		AssociatedEventName:     ptr("Gala"),
		HasNotified:             true,
		ProcessedForSuggestions: true,
	}

	tests := []struct {
		name  string
		fresh model.Message
		check func(t *testing.T, got model.Message)
	}{
		{
			name:  "content overwritten and flags kept",
			fresh: model.Message{ID: "m1", InternalDate: 200, Subject: "new subject", Labels: []string{"INBOX"}},
			check: func(t *testing.T, got model.Message) {
				assert.Equal(t, "new subject", got.Subject)
				assert.Equal(t, int64(200), got.InternalDate)
				assert.Equal(t, []string{"INBOX"}, got.Labels)
				assert.True(t, got.Replied)
				assert.True(t, got.HasNotified)
				assert.True(t, got.ProcessedForSuggestions)
				assert.Equal(t, "t1", got.ThreadID)
			},
		},
		{
			name:  "category prefers fresh",
			fresh: model.Message{ID: "m1", Category: "event"},
			check: func(t *testing.T, got model.Message) { assert.Equal(t, "event", got.Category) },
		},
		{
			name:  "category falls back to cached",
			fresh: model.Message{ID: "m1"},
			check: func(t *testing.T, got model.Message) { assert.Equal(t, "invoice", got.Category) },
		},
		{
			name:  "association kept when fresh is nil",
			fresh: model.Message{ID: "m1"},
			check: func(t *testing.T, got model.Message) {
				require.NotNil(t, got.AssociatedEventID)
				assert.Equal(t, "e1", *got.AssociatedEventID)
				assert.Equal(t, "Gala", *got.AssociatedEventName)
			},
		},
		{
			name:  "association replaced by fresh non-nil",
			fresh: model.Message{ID: "m1", AssociatedEventID: ptr("e2"), AssociatedEventName: ptr("Launch")},
			check: func(t *testing.T, got model.Message) {
				assert.Equal(t, "e2", *got.AssociatedEventID)
				assert.Equal(t, "Launch", *got.AssociatedEventName)
			},
		},
		{
			name:  "fresh cannot set notified",
			fresh: model.Message{ID: "m2", HasNotified: true, ProcessedForSuggestions: true},
			check: func(t *testing.T, got model.Message) {
				assert.False(t, got.HasNotified)
				assert.False(t, got.ProcessedForSuggestions)
				assert.Equal(t, model.CategoryOther, got.Category)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := MergeEmails([]model.Message{cached}, []model.Message{tt.fresh})
			var got *model.Message
			for i := range merged {
				if merged[i].ID == tt.fresh.ID {
					got = &merged[i]
				}
			}
			require.NotNil(t, got)
			tt.check(t, *got)
		})
	}
}

func TestMergeEmails_CategoryDefaultsToOther(t *testing.T) {
	merged := MergeEmails([]model.Message{{ID: "m1"}}, []model.Message{{ID: "m1"}})
	require.Len(t, merged, 1)
	assert.Equal(t, model.CategoryOther, merged[0].Category)
}

func TestMergeEmails_CacheOnlyCategoryDefaultsToOther(t *testing.T) {
	cached := []model.Message{{ID: "old", InternalDate: 1}}
	merged := MergeEmails(cached, []model.Message{{ID: "new", InternalDate: 2, Category: "event"}})
	require.Len(t, merged, 2)
	assert.Equal(t, "event", merged[0].Category)
	assert.Equal(t, model.CategoryOther, merged[1].Category)
	assert.Empty(t, cached[0].Category, "cached input is not mutated")
}

func TestMergeEmails_TieBreakByID(t *testing.T) {
	merged := MergeEmails(nil, []model.Message{{ID: "b", InternalDate: 5}, {ID: "a", InternalDate: 5}, {ID: "c", InternalDate: 9}})
	ids := make([]string, len(merged))
	for i, m := range merged {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func genMessages(t *rapid.T, label string) []model.Message {
	n := rapid.IntRange(0, 12).Draw(t, label+"_n")
	out := make([]model.Message, n)
	for i := range out {
		out[i] = model.Message{
			ID:           fmt.Sprintf("m%d", rapid.IntRange(0, 15).Draw(t, label+"_id")),
			InternalDate: rapid.Int64Range(0, 50).Draw(t, label+"_date"),
			Subject:      rapid.StringMatching(`[a-z]{0,6}`).Draw(t, label+"_subject"),
			Replied:      rapid.Bool().Draw(t, label+"_replied"),
			HasNotified:  rapid.Bool().Draw(t, label+"_notified"),
			Category:     rapid.SampledFrom([]string{"", "event", "other"}).Draw(t, label+"_category"),
		}
	}
	return out
}

func TestMergeEmails_Identity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cached := genMessages(t, "cached")
		assert.Equal(t, cached, MergeEmails(cached, nil))
		assert.Equal(t, cached, MergeEmails(cached, []model.Message{}))
	})
}

func TestMergeEmails_StickyReplied(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cached := genMessages(t, "cached")
		fresh := genMessages(t, "fresh")
		merged := MergeEmails(cached, fresh)

		byID := make(map[string]model.Message, len(merged))
		for _, m := range merged {
			byID[m.ID] = m
		}

		firstCached := make(map[string]model.Message)
		for _, m := range cached {
			if _, ok := firstCached[m.ID]; !ok {
				firstCached[m.ID] = m
			}
		}
		inFresh := make(map[string]bool)
		for _, m := range fresh {
			inFresh[m.ID] = true
		}

		for id, c := range firstCached {
			if !inFresh[id] {
				continue
			}
			got := byID[id]
			if c.Replied {
				assert.True(t, got.Replied, "replied regressed for %s", id)
			}
			assert.Equal(t, c.HasNotified, got.HasNotified, "hasNotified changed for %s", id)
		}
	})
}

func TestMergeEmails_SortedAndUnique(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fresh := genMessages(t, "fresh")
		if len(fresh) == 0 {
			return
		}
		merged := MergeEmails(genMessages(t, "cached"), fresh)

		seen := make(map[string]bool, len(merged))
		for i, m := range merged {
			assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
			seen[m.ID] = true
			assert.NotEmpty(t, m.Category)
			if i > 0 {
				assert.GreaterOrEqual(t, merged[i-1].InternalDate, m.InternalDate)
			}
		}
	})
}
