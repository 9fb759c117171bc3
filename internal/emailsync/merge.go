package emailsync

import (
	"cmp"
	"slices"

	"github.com/teemow/venuedesk/internal/model"
)

// MergeEmails folds freshly hydrated messages into the cached set.
//
// Content fields come from the fresh copy. Replied never goes from true
// back to false, HasNotified and ProcessedForSuggestions are only ever
// taken from the cache, Category prefers the fresh value and falls back to
// the cached one and then "other", and an association is replaced only by
// a fresh non-nil one. Every record of a merged result has a category,
// cache-only records included.
//
// The result is deduplicated by id and sorted newest first, ties broken
// by id. With no fresh messages the cached slice is returned unchanged in
// content and order.
func MergeEmails(cached, fresh []model.Message) []model.Message {
	if len(fresh) == 0 {
		return slices.Clone(cached)
	}

	byID := make(map[string]model.Message, len(cached)+len(fresh))
	for _, m := range cached {
		if _, dup := byID[m.ID]; !dup {
			byID[m.ID] = m
		}
	}

	for _, n := range fresh {
		old, ok := byID[n.ID]
		if !ok {
			n.HasNotified = false
			n.ProcessedForSuggestions = false
			if n.Category == "" {
				n.Category = model.CategoryOther
			}
			byID[n.ID] = n
			continue
		}
		byID[n.ID] = mergeOne(old, n)
	}

	out := make([]model.Message, 0, len(byID))
	for _, m := range byID {
		if m.Category == "" {
			m.Category = model.CategoryOther
		}
		out = append(out, m)
	}
	SortNewestFirst(out)
	return out
}

func mergeOne(old, n model.Message) model.Message {
	merged := n

	merged.Replied = old.Replied || n.Replied
	merged.HasNotified = old.HasNotified
	merged.ProcessedForSuggestions = old.ProcessedForSuggestions

	switch {
	case n.Category != "":
	case old.Category != "":
		merged.Category = old.Category
	default:
		merged.Category = model.CategoryOther
	}

	if n.AssociatedEventID == nil {
		merged.AssociatedEventID = old.AssociatedEventID
		merged.AssociatedEventName = old.AssociatedEventName
	}

	if merged.MessageIDHeader == "" {
		merged.MessageIDHeader = old.MessageIDHeader
	}
	if merged.ThreadID == "" {
		merged.ThreadID = old.ThreadID
	}
	return merged
}

// SortNewestFirst orders messages by InternalDate descending, then id.
func SortNewestFirst(msgs []model.Message) {
	slices.SortStableFunc(msgs, func(a, b model.Message) int {
		if c := cmp.Compare(b.InternalDate, a.InternalDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
