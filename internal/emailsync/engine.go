package emailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/venuedesk/internal/gmail"
	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/logging"
	"github.com/teemow/venuedesk/internal/model"
)

// Defaults for Engine.
const (
	DefaultWorkers      = 5
	DefaultBatchTimeout = 2 * time.Minute
)

// ErrNotCached is returned for ids the local cache does not hold.
var ErrNotCached = errors.New("message not in cache")

// MailGateway is the part of the mail provider the engine uses.
type MailGateway interface {
	Fetcher
	ListInbox(ctx context.Context, query string, max int) ([]model.MessageRef, error)
	ModifyLabels(ctx context.Context, id string, add, remove []string) error
}

// Store persists the message cache.
type Store interface {
	LoadMessages(ctx context.Context) ([]model.Message, error)
	GetMessage(ctx context.Context, id string) (model.Message, bool, error)
	SaveMessages(ctx context.Context, msgs []model.Message) error
	LoadMetadata(ctx context.Context) (model.CacheMetadata, error)
	SetLastRetrieval(ctx context.Context, t time.Time) error
	SetLastAssociationRefresh(ctx context.Context, t time.Time) error
}

// ReplyChecker decides whether a message has been answered.
type ReplyChecker interface {
	CheckIfReplied(ctx context.Context, msg model.Message) bool
}

// Associator links a message to a booking event.
type Associator interface {
	CheckAssociation(ctx context.Context, msg model.Message) model.Association
}

// Classifier assigns a category. On failure it still returns a usable
// category alongside the error.
type Classifier interface {
	Classify(ctx context.Context, msg model.Message) (string, error)
}

// refreshReporter is implemented by associators that can report when
// their index was last rebuilt.
type refreshReporter interface {
	LastRefresh() time.Time
}

// Config tunes an Engine.
type Config struct {
	Workers      int
	BatchTimeout time.Duration
	Categories   model.CategorySet
}

// Engine synchronises the inbox into the local cache.
type Engine struct {
	mail       MailGateway
	store      Store
	cache      *MessageCache
	replies    ReplyChecker
	associator Associator
	classifier Classifier
	cfg        Config
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	now        func() time.Time

	// mu serialises read-modify-write cycles on the persisted cache.
	mu sync.Mutex
}

// Deps groups an Engine's collaborators.
type Deps struct {
	Mail       MailGateway
	Store      Store
	Replies    ReplyChecker
	Associator Associator
	Classifier Classifier
	Logger     *slog.Logger
	Metrics    *instrumentation.Metrics
}

// NewEngine creates an Engine.
func NewEngine(deps Deps, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		mail:       deps.Mail,
		store:      deps.Store,
		cache:      NewMessageCache(deps.Mail),
		replies:    deps.Replies,
		associator: deps.Associator,
		classifier: deps.Classifier,
		cfg:        cfg,
		logger:     logging.WithComponent(logger, "emailsync"),
		metrics:    deps.Metrics,
		now:        time.Now,
	}
}

// IsFresh reports whether a retrieval at lastRetrieval (epoch millis)
// counts as current at now, compared at minute granularity.
func IsFresh(lastRetrieval int64, now time.Time) bool {
	if lastRetrieval <= 0 {
		return false
	}
	last := time.UnixMilli(lastRetrieval).Truncate(time.Minute)
	return !last.Before(now.Truncate(time.Minute))
}

// GetAllEmails returns the cached inbox, refreshing it from the mail
// provider unless it is already fresh. query narrows the listing; only
// unfiltered refreshes advance the retrieval timestamp.
func (e *Engine) GetAllEmails(ctx context.Context, maxResults int, forceRefresh bool, query string) (msgs []model.Message, err error) {
	start := time.Now()
	result := instrumentation.SyncRefreshed
	ctx, span := instrumentation.StartSpan(ctx, "emailsync.get_all_emails",
		instrumentation.NewSpanAttributeBuilder().WithSync(forceRefresh, query != "").Build()...)
	defer func() {
		if err != nil {
			result = instrumentation.SyncFailed
		}
		e.metrics.RecordSyncRun(ctx, result, time.Since(start))
		span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithStatus(result).Build()...)
		instrumentation.EndSpan(span, err)
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	cached, err := e.store.LoadMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	meta, err := e.store.LoadMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache metadata: %w", err)
	}

	now := e.now()
	if !forceRefresh && len(cached) > 0 && IsFresh(meta.LastRetrieval, now) {
		result = instrumentation.SyncCacheHit
		e.logger.DebugContext(ctx, "cache is fresh", logging.Count(len(cached)))
		return cached, nil
	}

	batchCtx, cancel := context.WithTimeout(ctx, e.cfg.BatchTimeout)
	defer cancel()

	refs, err := e.mail.ListInbox(batchCtx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithCount(len(refs)).Build()...)

	known := make(map[string]bool, len(cached))
	for _, m := range cached {
		known[m.ID] = true
	}
	var pending []model.MessageRef
	for _, r := range refs {
		if !known[r.ID] {
			pending = append(pending, r)
		}
	}

	fresh := e.hydrate(batchCtx, pending)
	merged := MergeEmails(cached, fresh)

	if len(fresh) > 0 {
		if err := e.store.SaveMessages(ctx, merged); err != nil {
			return nil, fmt.Errorf("failed to persist cache: %w", err)
		}
		ids := make([]string, len(fresh))
		for i, m := range fresh {
			ids[i] = m.ID
		}
		e.cache.Forget(ids...)
	}

	if query == "" {
		if err := e.store.SetLastRetrieval(ctx, now); err != nil {
			return nil, fmt.Errorf("failed to record retrieval time: %w", err)
		}
	}
	if rr, ok := e.associator.(refreshReporter); ok {
		if t := rr.LastRefresh(); !t.IsZero() && t.UnixMilli() != meta.LastAssociationRefresh {
			if err := e.store.SetLastAssociationRefresh(ctx, t); err != nil {
				e.logger.WarnContext(ctx, "failed to record association refresh", logging.Err(err))
			}
		}
	}

	e.logger.InfoContext(ctx, "inbox synchronised",
		slog.Int("listed", len(refs)),
		slog.Int("hydrated", len(fresh)),
		slog.Int("failed", len(pending)-len(fresh)),
		logging.Count(len(merged)),
		logging.Duration(time.Since(start)))
	return merged, nil
}

// hydrate builds messages for refs with at most cfg.Workers fetches in
// flight. A failed id is logged and left out; it never stops the others.
func (e *Engine) hydrate(ctx context.Context, refs []model.MessageRef) []model.Message {
	if len(refs) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		results = make(map[string]model.Message, len(refs))
		g       errgroup.Group
	)
	g.SetLimit(e.cfg.Workers)

	for _, ref := range refs {
		g.Go(func() error {
			msg, err := e.hydrateOne(ctx, ref.ID)
			e.metrics.RecordHydration(ctx, err)
			if err != nil {
				e.logger.WarnContext(ctx, "hydration failed, skipping message",
					logging.MessageID(ref.ID),
					logging.Err(err))
				return nil
			}
			mu.Lock()
			results[ref.ID] = msg
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.Message, 0, len(results))
	for _, ref := range refs {
		if m, ok := results[ref.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) hydrateOne(ctx context.Context, id string) (model.Message, error) {
	start := time.Now()
	full, err := e.cache.Fetch(ctx, id)
	e.metrics.RecordAPIOperation(ctx, instrumentation.ServiceGmail, instrumentation.OperationGet, err, time.Since(start))
	if err != nil {
		return model.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}

	msg := MessageFromFull(full)
	if e.replies != nil {
		msg.Replied = e.replies.CheckIfReplied(ctx, msg)
	}
	if e.associator != nil {
		assoc := e.associator.CheckAssociation(ctx, msg)
		msg.AssociatedEventID = assoc.EventID
		msg.AssociatedEventName = assoc.EventName
	}

	msg.Category = model.CategoryOther
	if e.classifier != nil {
		category, err := e.classifier.Classify(ctx, msg)
		if err != nil {
			e.logger.DebugContext(ctx, "classification degraded", logging.MessageID(id), logging.Err(err))
		}
		msg.Category = e.cfg.Categories.Validate(category)
	}
	return msg, nil
}

// MessageFromFull converts a provider message into a cache record with
// derived fields unset.
func MessageFromFull(full *gmail.FullMessage) model.Message {
	return model.Message{
		ID:              full.ID,
		ThreadID:        full.ThreadID,
		InternalDate:    full.InternalDate,
		MessageIDHeader: full.Header("Message-ID"),
		From:            full.Header("From"),
		To:              full.Header("To"),
		Subject:         full.Header("Subject"),
		Text:            full.PlainText(),
		HTML:            full.HTML,
		Labels:          slices.Clone(full.LabelIDs),
		Snippet:         full.Snippet,
	}
}

// Emails returns the persisted cache without contacting the provider.
func (e *Engine) Emails(ctx context.Context) ([]model.Message, error) {
	msgs, err := e.store.LoadMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	return msgs, nil
}

// Get returns one cached message.
func (e *Engine) Get(ctx context.Context, id string) (model.Message, error) {
	msg, ok, err := e.store.GetMessage(ctx, id)
	if err != nil {
		return model.Message{}, err
	}
	if !ok {
		return model.Message{}, fmt.Errorf("message %s: %w", id, ErrNotCached)
	}
	return msg, nil
}

// MarkNotified records that the operator was told about message id.
func (e *Engine) MarkNotified(ctx context.Context, id string) error {
	return e.update(ctx, id, func(m *model.Message) {
		m.HasNotified = true
		m.ProcessedForSuggestions = true
	})
}

// MarkProcessed records that the suggestion step has looked at message id.
func (e *Engine) MarkProcessed(ctx context.Context, id string) error {
	return e.update(ctx, id, func(m *model.Message) { m.ProcessedForSuggestions = true })
}

// Archive removes the message from the provider's inbox and from the
// cached labels.
func (e *Engine) Archive(ctx context.Context, id string) error {
	start := time.Now()
	err := e.mail.ModifyLabels(ctx, id, nil, []string{gmail.LabelInbox})
	e.metrics.RecordAPIOperation(ctx, instrumentation.ServiceGmail, instrumentation.OperationModify, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", id, err)
	}

	err = e.update(ctx, id, func(m *model.Message) {
		m.Labels = slices.DeleteFunc(m.Labels, func(l string) bool { return l == gmail.LabelInbox })
	})
	if err != nil && !errors.Is(err, ErrNotCached) {
		return err
	}
	return nil
}

func (e *Engine) update(ctx context.Context, id string, fn func(*model.Message)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg, err := e.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(&msg)
	if err := e.store.SaveMessages(ctx, []model.Message{msg}); err != nil {
		return fmt.Errorf("failed to save message %s: %w", id, err)
	}
	return nil
}
