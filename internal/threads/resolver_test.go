package threads

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teemow/venuedesk/internal/gmail"
	"github.com/teemow/venuedesk/internal/model"
)

type fakeFetcher struct {
	mu      sync.Mutex
	threads map[string][]*gmail.FullMessage
	err     error
	calls   int
}

func (f *fakeFetcher) GetThread(_ context.Context, threadID string) ([]*gmail.FullMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.threads[threadID], nil
}

func inbound(date int64) *gmail.FullMessage {
	return &gmail.FullMessage{
		ID:           "m1",
		ThreadID:     "t1",
		InternalDate: date,
		LabelIDs:     []string{gmail.LabelInbox},
		Headers:      []gmail.Header{{Name: "Message-ID", Value: "<a@x>"}},
	}
}

func sent(id string, date int64, headers ...gmail.Header) *gmail.FullMessage {
	return &gmail.FullMessage{
		ID:           id,
		ThreadID:     "t1",
		InternalDate: date,
		LabelIDs:     []string{gmail.LabelSent},
		Headers:      headers,
	}
}

func candidate() model.Message {
	return model.Message{ID: "m1", ThreadID: "t1", InternalDate: 100, MessageIDHeader: "<a@x>"}
}

func TestCheckIfReplied(t *testing.T) {
	tests := []struct {
		name   string
		thread []*gmail.FullMessage
		want   bool
	}{
		{
			name:   "sent message references candidate",
			thread: []*gmail.FullMessage{inbound(100), sent("s1", 50, gmail.Header{Name: "In-Reply-To", Value: "<a@x>"})},
			want:   true,
		},
		{
			name:   "references chain contains candidate",
			thread: []*gmail.FullMessage{inbound(100), sent("s1", 50, gmail.Header{Name: "References", Value: "<z@x> <a@x>"})},
			want:   true,
		},
		{
			name:   "later sent message without headers",
			thread: []*gmail.FullMessage{inbound(100), sent("s1", 150)},
			want:   true,
		},
		{
			name:   "only earlier sent message",
			thread: []*gmail.FullMessage{sent("s1", 50), inbound(100)},
			want:   false,
		},
		{
			name:   "sent message at same instant",
			thread: []*gmail.FullMessage{inbound(100), sent("s1", 100)},
			want:   false,
		},
		{
			name:   "later inbound message is not a reply",
			thread: []*gmail.FullMessage{inbound(100), {ID: "m2", InternalDate: 200, LabelIDs: []string{gmail.LabelInbox}}},
			want:   false,
		},
		{
			name:   "empty thread",
			thread: nil,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{threads: map[string][]*gmail.FullMessage{"t1": tt.thread}}
			r := NewResolver(f, nil, nil)
			assert.Equal(t, tt.want, r.CheckIfReplied(context.Background(), candidate()))
		})
	}
}

func TestCheckIfReplied_FetchErrorIsFalse(t *testing.T) {
	f := &fakeFetcher{err: errors.New("quota")}
	r := NewResolver(f, nil, nil)
	assert.False(t, r.CheckIfReplied(context.Background(), candidate()))
}

func TestCheckIfReplied_NoThreadID(t *testing.T) {
	f := &fakeFetcher{}
	r := NewResolver(f, nil, nil)
	assert.False(t, r.CheckIfReplied(context.Background(), model.Message{ID: "m1"}))
	assert.Zero(t, f.calls)
}

func TestResolver_CachesPerThread(t *testing.T) {
	f := &fakeFetcher{threads: map[string][]*gmail.FullMessage{"t1": {inbound(100), sent("s1", 150)}}}
	r := NewResolver(f, nil, nil)
	ctx := context.Background()

	r.CheckIfReplied(ctx, candidate())
	r.CheckIfReplied(ctx, candidate())
	assert.Equal(t, 1, f.calls)

	r.Forget("t1")
	r.CheckIfReplied(ctx, candidate())
	assert.Equal(t, 2, f.calls)

	r.Reset()
	r.CheckIfReplied(ctx, candidate())
	assert.Equal(t, 3, f.calls)
}

func TestResolver_ErrorsAreNotCached(t *testing.T) {
	f := &fakeFetcher{err: errors.New("boom")}
	r := NewResolver(f, nil, nil)
	ctx := context.Background()

	assert.False(t, r.CheckIfReplied(ctx, candidate()))
	f.err = nil
	f.threads = map[string][]*gmail.FullMessage{"t1": {inbound(100), sent("s1", 150)}}
	assert.True(t, r.CheckIfReplied(ctx, candidate()))
	assert.Equal(t, 2, f.calls)
}

func TestCheckIfReplied_Scenarios(t *testing.T) {
	m1 := &gmail.FullMessage{ID: "M1", ThreadID: "t", InternalDate: 100, LabelIDs: []string{gmail.LabelInbox},
		Headers: []gmail.Header{{Name: "Message-ID", Value: "<abc>"}}}

	t.Run("header correlation", func(t *testing.T) {
		m2 := &gmail.FullMessage{ID: "M2", ThreadID: "t", InternalDate: 200, LabelIDs: []string{gmail.LabelSent},
			Headers: []gmail.Header{{Name: "In-Reply-To", Value: "<abc>"}}}
		r := NewResolver(&fakeFetcher{threads: map[string][]*gmail.FullMessage{"t": {m1, m2}}}, nil, nil)

		assert.True(t, r.CheckIfReplied(context.Background(), model.Message{ID: "M1", ThreadID: "t", InternalDate: 100, MessageIDHeader: "<abc>"}))
	})

	t.Run("date fallback", func(t *testing.T) {
		m2 := &gmail.FullMessage{ID: "M2", ThreadID: "t", InternalDate: 150, LabelIDs: []string{gmail.LabelSent},
			Headers: []gmail.Header{{Name: "In-Reply-To", Value: "<unrelated>"}}}
		m3 := &gmail.FullMessage{ID: "M3", ThreadID: "t", InternalDate: 300, LabelIDs: []string{gmail.LabelInbox}}
		r := NewResolver(&fakeFetcher{threads: map[string][]*gmail.FullMessage{"t": {m1, m2, m3}}}, nil, nil)
		ctx := context.Background()

		assert.True(t, r.CheckIfReplied(ctx, model.Message{ID: "M1", ThreadID: "t", InternalDate: 100}))
		assert.False(t, r.CheckIfReplied(ctx, model.Message{ID: "M3", ThreadID: "t", InternalDate: 300}))
	})
}
