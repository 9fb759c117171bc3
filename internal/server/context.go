package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teemow/venuedesk/internal/approval"
	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/model"
	"github.com/teemow/venuedesk/internal/suggest"
)

// Mailbox is the email cache as seen by the HTTP and MCP surfaces.
type Mailbox interface {
	GetAllEmails(ctx context.Context, maxResults int, forceRefresh bool, query string) ([]model.Message, error)
	Emails(ctx context.Context) ([]model.Message, error)
	Archive(ctx context.Context, id string) error
}

// PendingActions lists drafts awaiting approval.
type PendingActions interface {
	Open() []model.PendingAction
}

// CommandResolver executes operator SMS commands.
type CommandResolver interface {
	ResolveCommand(ctx context.Context, smsText, fromNumber string) approval.Result
}

// Suggester runs one suggestion pass.
type Suggester interface {
	Run(ctx context.Context) (suggest.Outcome, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Components are the application services shared by every surface.
type Components struct {
	Mailbox   Mailbox
	Pending   PendingActions
	Commands  CommandResolver
	Suggester Suggester
	Store     Pinger
	Logger    *slog.Logger
}

// ServerContext holds the application services for the HTTP API and the
// MCP tools.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	comp Components

	// metrics and auditLogger are set once the instrumentation provider
	// is up.
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context bound to ctx.
func NewServerContext(ctx context.Context, comp Components) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	if comp.Logger == nil {
		comp.Logger = slog.Default()
	}
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		comp:   comp,
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Mailbox returns the email cache.
func (sc *ServerContext) Mailbox() Mailbox {
	return sc.comp.Mailbox
}

// Pending returns the pending action index.
func (sc *ServerContext) Pending() PendingActions {
	return sc.comp.Pending
}

// Commands returns the approval command interpreter.
func (sc *ServerContext) Commands() CommandResolver {
	return sc.comp.Commands
}

// Suggester returns the suggestion step.
func (sc *ServerContext) Suggester() Suggester {
	return sc.comp.Suggester
}

// Logger returns the application logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.comp.Logger
}

// SetMetrics sets the metrics recorder.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, possibly nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger used by tool handlers.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// AuditLogger returns the audit logger, possibly nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// Ping checks the backing store. Without a store it always succeeds.
func (sc *ServerContext) Ping(ctx context.Context) error {
	if sc.comp.Store == nil {
		return nil
	}
	return sc.comp.Store.Ping(ctx)
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. Calling it twice is a no-op.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
