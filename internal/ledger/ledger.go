// Package ledger records AI drafted replies awaiting operator approval.
//
// Every state change is appended to a persistent history; the set of open
// actions is an in-memory index keyed by a short token the operator types
// back over SMS. A token maps to exactly one open action and is released
// once that action is resolved.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/logging"
	"github.com/teemow/venuedesk/internal/model"
)

var (
	// ErrNotFound is returned when no open action has the given token.
	ErrNotFound = errors.New("no pending action")

	// ErrAlreadyOpen is returned when the email already has an open action.
	ErrAlreadyOpen = errors.New("email already has a pending action")
)

const (
	tokenDigits   = "0123456789"
	tokenAlphanum = "abcdefghijklmnopqrstuvwxyz0123456789"

	maxTokenAttempts = 100
)

// Store persists history entries.
type Store interface {
	AppendHistory(ctx context.Context, e model.HistoryEntry) error
	History(ctx context.Context, types ...string) ([]model.HistoryEntry, error)
}

// Input describes a drafted reply.
type Input struct {
	EmailID      string
	ProposedBody string
	Recipient    string
	Subject      string
	ThreadID     string
	InReplyTo    string
}

// Ledger is the pending action index plus its history.
type Ledger struct {
	store   Store
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	now     func() time.Time
	token   func() string

	mu      sync.Mutex
	open    map[string]*model.PendingAction
	claimed map[string]*model.PendingAction
	byEmail map[string]string
}

// New creates an empty ledger. Call Load to restore open actions.
func New(store Store, logger *slog.Logger, metrics *instrumentation.Metrics) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:   store,
		logger:  logging.WithComponent(logger, "ledger"),
		metrics: metrics,
		now:     time.Now,
		token:   newToken,
		open:    make(map[string]*model.PendingAction),
		claimed: make(map[string]*model.PendingAction),
		byEmail: make(map[string]string),
	}
}

func newToken() string {
	b := make([]byte, 4)
	b[0] = tokenDigits[rand.IntN(len(tokenDigits))]
	for i := 1; i < len(b); i++ {
		b[i] = tokenAlphanum[rand.IntN(len(tokenAlphanum))]
	}
	return string(b)
}

// NormalizeToken lowercases and trims a token typed by the operator.
func NormalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (l *Ledger) taken(token string) bool {
	_, open := l.open[token]
	_, claimed := l.claimed[token]
	return open || claimed
}

// Create records a new pending action and returns its short token.
func (l *Ledger) Create(ctx context.Context, in Input) (string, error) {
	if in.EmailID == "" || in.Recipient == "" {
		return "", fmt.Errorf("email id and recipient are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.byEmail[in.EmailID]; ok {
		return "", fmt.Errorf("email %s has token %s: %w", in.EmailID, existing, ErrAlreadyOpen)
	}

	var token string
	for range maxTokenAttempts {
		if t := l.token(); !l.taken(t) {
			token = t
			break
		}
	}
	if token == "" {
		return "", fmt.Errorf("could not allocate a free token after %d attempts", maxTokenAttempts)
	}

	action := &model.PendingAction{
		ShortID:      token,
		EmailID:      in.EmailID,
		ProposedBody: in.ProposedBody,
		Recipient:    in.Recipient,
		Subject:      in.Subject,
		ThreadID:     in.ThreadID,
		InReplyTo:    in.InReplyTo,
		CreatedAt:    l.now().UTC(),
		Status:       model.StatusCreated,
	}

	err := l.store.AppendHistory(ctx, model.HistoryEntry{
		ID:        uuid.NewString(),
		Type:      model.EntryPendingEmailResponse,
		Timestamp: action.CreatedAt,
		Fields:    actionFields(action),
	})
	if err != nil {
		return "", fmt.Errorf("failed to record pending action: %w", err)
	}

	l.open[token] = action
	l.byEmail[action.EmailID] = token
	l.metrics.AddPendingActions(ctx, 1)
	l.logger.InfoContext(ctx, "pending action created", logging.ShortID(token), logging.MessageID(action.EmailID))
	return token, nil
}

// Lookup returns the open action for token.
func (l *Ledger) Lookup(token string) (model.PendingAction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.open[NormalizeToken(token)]
	if !ok {
		return model.PendingAction{}, false
	}
	return *a, true
}

// ForEmail returns the open action drafted for emailID.
func (l *Ledger) ForEmail(emailID string) (model.PendingAction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	token, ok := l.byEmail[emailID]
	if !ok {
		return model.PendingAction{}, false
	}
	a, ok := l.open[token]
	if !ok {
		return model.PendingAction{}, false
	}
	return *a, true
}

// Claim moves an open action to RESOLVED and removes its token from the
// open index. Only one caller can claim a given action; later calls miss.
func (l *Ledger) Claim(ctx context.Context, token string) (model.PendingAction, bool) {
	token = NormalizeToken(token)

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.open[token]
	if !ok || a.Status != model.StatusCreated {
		return model.PendingAction{}, false
	}
	a.Status = model.StatusResolved
	delete(l.open, token)
	l.claimed[token] = a
	l.metrics.AddPendingActions(ctx, -1)
	return *a, true
}

// Release returns a claimed action to CREATED so a later command can retry it.
func (l *Ledger) Release(ctx context.Context, token string) bool {
	token = NormalizeToken(token)

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.claimed[token]
	if !ok {
		return false
	}
	a.Status = model.StatusCreated
	delete(l.claimed, token)
	l.open[token] = a
	l.metrics.AddPendingActions(ctx, 1)
	return true
}

// RecordSent finalises a claimed action after its reply went out.
func (l *Ledger) RecordSent(ctx context.Context, action model.PendingAction, sent model.MessageRef, body string) error {
	l.mu.Lock()
	delete(l.claimed, action.ShortID)
	delete(l.byEmail, action.EmailID)
	l.mu.Unlock()

	now := l.now().UTC()
	errSent := l.store.AppendHistory(ctx, model.HistoryEntry{
		ID:        uuid.NewString(),
		Type:      model.EntryEmailSent,
		Timestamp: now,
		Fields: map[string]any{
			"shortId":    action.ShortID,
			"emailId":    action.EmailID,
			"recipient":  action.Recipient,
			"subject":    action.Subject,
			"body":       body,
			"edited":     body != action.ProposedBody,
			"sentId":     sent.ID,
			"sentThread": sent.ThreadID,
		},
	})
	errResolved := l.store.AppendHistory(ctx, model.HistoryEntry{
		ID:        uuid.NewString(),
		Type:      model.EntryPendingEmailResolved,
		Timestamp: now,
		Fields:    map[string]any{"shortId": action.ShortID, "emailId": action.EmailID},
	})
	if err := errors.Join(errSent, errResolved); err != nil {
		return fmt.Errorf("failed to record sent reply for %s: %w", action.ShortID, err)
	}
	return nil
}

// RecordFailure logs a failed send and returns the action to CREATED.
func (l *Ledger) RecordFailure(ctx context.Context, action model.PendingAction, cause error) error {
	l.Release(ctx, action.ShortID)
	l.logger.WarnContext(ctx, "send failed, pending action reopened",
		logging.ShortID(action.ShortID),
		logging.Err(cause))
	return l.Append(ctx, model.EntrySendFailure, map[string]any{
		"shortId": action.ShortID,
		"emailId": action.EmailID,
		"error":   cause.Error(),
	})
}

// Append writes a free-form history entry.
func (l *Ledger) Append(ctx context.Context, entryType string, fields map[string]any) error {
	err := l.store.AppendHistory(ctx, model.HistoryEntry{
		ID:        uuid.NewString(),
		Type:      entryType,
		Timestamp: l.now().UTC(),
		Fields:    fields,
	})
	if err != nil {
		return fmt.Errorf("failed to append %s entry: %w", entryType, err)
	}
	return nil
}

// Open returns the open actions, oldest first.
func (l *Ledger) Open() []model.PendingAction {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.PendingAction, 0, len(l.open))
	for _, a := range l.open {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b model.PendingAction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ShortID, b.ShortID)
	})
	return out
}

// Load rebuilds the open index from history: every created action not
// followed by a resolution is open again.
func (l *Ledger) Load(ctx context.Context) error {
	entries, err := l.store.History(ctx, model.EntryPendingEmailResponse, model.EntryPendingEmailResolved)
	if err != nil {
		return fmt.Errorf("failed to load ledger history: %w", err)
	}

	open := make(map[string]*model.PendingAction)
	for _, e := range entries {
		token := NormalizeToken(field(e.Fields, "shortId"))
		if token == "" {
			continue
		}
		switch e.Type {
		case model.EntryPendingEmailResponse:
			a := actionFromFields(e.Fields)
			a.CreatedAt = e.Timestamp
			open[token] = a
		case model.EntryPendingEmailResolved:
			delete(open, token)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics.AddPendingActions(ctx, int64(len(open)-len(l.open)))
	l.open = open
	l.claimed = make(map[string]*model.PendingAction)
	l.byEmail = make(map[string]string, len(open))
	for token, a := range open {
		l.byEmail[a.EmailID] = token
	}
	l.logger.InfoContext(ctx, "ledger loaded", logging.Count(len(open)))
	return nil
}

func actionFields(a *model.PendingAction) map[string]any {
	return map[string]any{
		"shortId":      a.ShortID,
		"emailId":      a.EmailID,
		"proposedBody": a.ProposedBody,
		"recipient":    a.Recipient,
		"subject":      a.Subject,
		"threadId":     a.ThreadID,
		"inReplyTo":    a.InReplyTo,
	}
}

func actionFromFields(f map[string]any) *model.PendingAction {
	return &model.PendingAction{
		ShortID:      NormalizeToken(field(f, "shortId")),
		EmailID:      field(f, "emailId"),
		ProposedBody: field(f, "proposedBody"),
		Recipient:    field(f, "recipient"),
		Subject:      field(f, "subject"),
		ThreadID:     field(f, "threadId"),
		InReplyTo:    field(f, "inReplyTo"),
		Status:       model.StatusCreated,
	}
}

func field(f map[string]any, key string) string {
	if s, ok := f[key].(string); ok {
		return s
	}
	return ""
}
