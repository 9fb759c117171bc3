// Package threads decides whether an inbound message has been answered.
package threads

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/teemow/venuedesk/internal/gmail"
	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/logging"
	"github.com/teemow/venuedesk/internal/model"
)

// ThreadFetcher loads every message of a thread.
type ThreadFetcher interface {
	GetThread(ctx context.Context, threadID string) ([]*gmail.FullMessage, error)
}

// Resolver checks threads for operator replies. Threads are fetched once
// per id and cached until Forget or Reset.
type Resolver struct {
	fetcher ThreadFetcher
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	mu    sync.RWMutex
	cache map[string][]*gmail.FullMessage
}

// NewResolver creates a Resolver. metrics may be nil.
func NewResolver(fetcher ThreadFetcher, logger *slog.Logger, metrics *instrumentation.Metrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		fetcher: fetcher,
		logger:  logging.WithComponent(logger, "threads"),
		metrics: metrics,
		cache:   make(map[string][]*gmail.FullMessage),
	}
}

// CheckIfReplied reports whether a SENT message in msg's thread answers it.
//
// A sent message answers msg when its In-Reply-To or References header
// contains msg's Message-ID. Without such a link, any sent message newer
// than msg counts as a reply. Fetch failures are logged and reported as
// not replied.
func (r *Resolver) CheckIfReplied(ctx context.Context, msg model.Message) bool {
	if msg.ThreadID == "" {
		return false
	}

	thread, err := r.thread(ctx, msg.ThreadID)
	if err != nil {
		r.logger.WarnContext(ctx, "thread lookup failed",
			logging.MessageID(msg.ID),
			logging.ThreadID(msg.ThreadID),
			logging.Err(err))
		return false
	}

	return IsReplied(msg, thread)
}

// IsReplied applies the reply rules to an already loaded thread.
func IsReplied(msg model.Message, thread []*gmail.FullMessage) bool {
	var sent []*gmail.FullMessage
	for _, m := range thread {
		if m != nil && m.ID != msg.ID && m.HasLabel(gmail.LabelSent) {
			sent = append(sent, m)
		}
	}

	if msgID := strings.TrimSpace(msg.MessageIDHeader); msgID != "" {
		for _, s := range sent {
			if strings.Contains(s.Header("In-Reply-To"), msgID) ||
				strings.Contains(s.Header("References"), msgID) {
				return true
			}
		}
	}

	for _, s := range sent {
		if s.InternalDate > msg.InternalDate {
			return true
		}
	}
	return false
}

func (r *Resolver) thread(ctx context.Context, threadID string) ([]*gmail.FullMessage, error) {
	r.mu.RLock()
	thread, ok := r.cache[threadID]
	r.mu.RUnlock()
	r.metrics.RecordThreadCacheLookup(ctx, ok)
	if ok {
		return thread, nil
	}

	thread, err := r.fetcher.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[threadID] = thread
	r.mu.Unlock()
	return thread, nil
}

// Forget drops the cached copy of one thread.
func (r *Resolver) Forget(threadID string) {
	r.mu.Lock()
	delete(r.cache, threadID)
	r.mu.Unlock()
}

// Reset drops every cached thread.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cache = make(map[string][]*gmail.FullMessage)
	r.mu.Unlock()
}
