package association

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/logging"
	"github.com/teemow/venuedesk/internal/model"
)

// DefaultTTL is the age after which the index is rebuilt.
const DefaultTTL = 5 * time.Minute

// DefaultRetryInterval is how long lookups serve the previous snapshot
// after a failed rebuild before trying again.
const DefaultRetryInterval = 30 * time.Second

// EventStore loads the events the index is built from.
type EventStore interface {
	LoadEvents(ctx context.Context) ([]model.Event, error)
}

// LookupError reports a failed index rebuild.
type LookupError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *LookupError) Error() string {
	return fmt.Sprintf("association %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *LookupError) Unwrap() error {
	return e.Err
}

var addressPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// ExtractAddress returns the first email address in a header value such
// as `"Jane Doe" <jane@example.com>`, normalized. It returns "" when the
// value holds no address.
func ExtractAddress(header string) string {
	return model.NormalizeEmail(addressPattern.FindString(header))
}

type snapshot struct {
	byEmail map[string]model.Event
	builtAt time.Time
}

// Index is the reverse lookup from normalized address to event.
type Index struct {
	store   EventStore
	ttl     time.Duration
	retry   time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	current   atomic.Pointer[snapshot]
	refreshMu sync.Mutex
	// failedAt is the unix nano time of the last failed rebuild, 0 after
	// a success.
	failedAt atomic.Int64
}

// Option configures an Index.
type Option func(*Index)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(i *Index) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithRetryInterval overrides DefaultRetryInterval.
func WithRetryInterval(d time.Duration) Option {
	return func(i *Index) {
		if d > 0 {
			i.retry = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Index) { i.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Index) { i.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(i *Index) { i.metrics = m }
}

// NewIndex creates an empty index. The first lookup builds it.
func NewIndex(store EventStore, opts ...Option) *Index {
	i := &Index{
		store:  store,
		ttl:    DefaultTTL,
		retry:  DefaultRetryInterval,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = logging.WithComponent(i.logger, "association")
	return i
}

// Build creates the address map from events. Events without an email are
// skipped; when two events share an address the later one wins.
func Build(events []model.Event) map[string]model.Event {
	out := make(map[string]model.Event, len(events))
	for _, e := range events {
		key := model.NormalizeEmail(e.Email)
		if key == "" {
			continue
		}
		out[key] = e
	}
	return out
}

// Refresh reloads events and swaps in a new snapshot. On failure the
// previous snapshot stays in place.
func (i *Index) Refresh(ctx context.Context) error {
	spanCtx, span := instrumentation.StartExternalSpan(ctx, instrumentation.ServiceCalendar, instrumentation.OperationLoad)
	start := time.Now()
	events, err := i.store.LoadEvents(spanCtx)
	i.metrics.RecordAPIOperation(ctx, instrumentation.ServiceCalendar, instrumentation.OperationLoad, err, time.Since(start))
	instrumentation.EndSpan(span, err)
	if err != nil {
		return &LookupError{Op: "refresh", Err: err}
	}

	snap := &snapshot{byEmail: Build(events), builtAt: i.now()}
	i.current.Store(snap)
	i.failedAt.Store(0)
	i.metrics.RecordAssociationIndexSize(ctx, len(snap.byEmail))
	i.logger.DebugContext(ctx, "association index rebuilt", logging.Count(len(snap.byEmail)))
	return nil
}

// ShouldRefresh reports whether the index was never built or is older
// than the TTL.
func (i *Index) ShouldRefresh() bool {
	snap := i.current.Load()
	return snap == nil || i.now().Sub(snap.builtAt) > i.ttl
}

// LastRefresh returns when the current snapshot was built, or the zero
// time.
func (i *Index) LastRefresh() time.Time {
	if snap := i.current.Load(); snap != nil {
		return snap.builtAt
	}
	return time.Time{}
}

// Size returns the number of indexed addresses.
func (i *Index) Size() int {
	if snap := i.current.Load(); snap != nil {
		return len(snap.byEmail)
	}
	return 0
}

// backingOff reports whether a rebuild failed less than the retry
// interval ago.
func (i *Index) backingOff() bool {
	failed := i.failedAt.Load()
	return failed != 0 && i.now().Sub(time.Unix(0, failed)) < i.retry
}

func (i *Index) ensureFresh(ctx context.Context) {
	if !i.ShouldRefresh() || i.backingOff() {
		return
	}
	i.refreshMu.Lock()
	defer i.refreshMu.Unlock()
	if !i.ShouldRefresh() || i.backingOff() {
		return
	}
	if err := i.Refresh(ctx); err != nil {
		i.failedAt.Store(i.now().UnixNano())
		i.logger.WarnContext(ctx, "association refresh failed, using previous index",
			logging.Duration(i.retry),
			logging.Err(err))
	}
}

// CheckAssociation finds the event linked to msg. The sender address is
// tried first; the recipient only when the sender has no address.
func (i *Index) CheckAssociation(ctx context.Context, msg model.Message) model.Association {
	i.ensureFresh(ctx)

	assoc := i.Lookup(msg.From, msg.To)
	i.metrics.RecordAssociationLookup(ctx, assoc.Found())
	return assoc
}

// Lookup resolves against the current snapshot without refreshing.
func (i *Index) Lookup(from, to string) model.Association {
	snap := i.current.Load()
	if snap == nil {
		return model.Association{}
	}

	addr := ExtractAddress(from)
	if addr == "" {
		addr = ExtractAddress(to)
	}
	if addr == "" {
		return model.Association{}
	}

	if e, ok := snap.byEmail[addr]; ok {
		return model.NewAssociation(e)
	}
	return model.Association{}
}
