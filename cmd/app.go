package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teemow/venuedesk/internal/approval"
	"github.com/teemow/venuedesk/internal/association"
	"github.com/teemow/venuedesk/internal/calendar"
	"github.com/teemow/venuedesk/internal/config"
	"github.com/teemow/venuedesk/internal/emailsync"
	"github.com/teemow/venuedesk/internal/gmail"
	"github.com/teemow/venuedesk/internal/google"
	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/ledger"
	"github.com/teemow/venuedesk/internal/llm"
	"github.com/teemow/venuedesk/internal/server"
	"github.com/teemow/venuedesk/internal/signal"
	"github.com/teemow/venuedesk/internal/store"
	"github.com/teemow/venuedesk/internal/suggest"
	"github.com/teemow/venuedesk/internal/threads"
)

// errSMSDisabled is returned by the SMS sender when no signal account is
// configured.
var errSMSDisabled = errors.New("sms is not configured: set approval.signal_account")

type smsSender interface {
	Send(ctx context.Context, to, text string) (signal.SendResult, error)
}

type disabledSMS struct{}

func (disabledSMS) Send(context.Context, string, string) (signal.SendResult, error) {
	return signal.SendResult{}, errSMSDisabled
}

// app holds the wired components shared by serve, sync and suggest.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store       *store.SQLiteStore
	engine      *emailsync.Engine
	index       *association.Index
	ledger      *ledger.Ledger
	signal      *signal.Client
	interpreter *approval.Interpreter
	step        *suggest.Step
}

// newApp opens the cache and connects every collaborator. metrics and
// audit may be nil.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger) (_ *app, err error) {
	categories, err := cfg.CategorySet()
	if err != nil {
		return nil, err
	}

	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	httpClient, err := google.NewHTTPClient(ctx, google.NewFileTokenProvider(cfg.Google.CredentialsFile, cfg.Google.TokenFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	mail, err := gmail.NewClient(ctx, httpClient, gmail.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	events, err := calendar.NewEventStore(ctx, httpClient, cfg.Calendar.ID,
		calendar.WithWindow(cfg.Calendar.Lookback, cfg.Calendar.Horizon))
	if err != nil {
		return nil, err
	}
	logger.Debug("calendar connected", slog.String("calendar_id", events.CalendarID()))

	index := association.NewIndex(events,
		association.WithTTL(cfg.Sync.AssociationTTL),
		association.WithLogger(logger),
		association.WithMetrics(metrics),
	)

	lm := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger, metrics)

	engine := emailsync.NewEngine(emailsync.Deps{
		Mail:       mail,
		Store:      db,
		Replies:    threads.NewResolver(mail, logger, metrics),
		Associator: index,
		Classifier: llm.NewClassifier(lm, categories, cfg.VenueName, logger, metrics),
		Logger:     logger,
		Metrics:    metrics,
	}, emailsync.Config{
		Workers:      cfg.Sync.Workers,
		BatchTimeout: cfg.Sync.BatchTimeout,
		Categories:   categories,
	})

	pending := ledger.New(db, logger, metrics)
	if err := pending.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load pending actions: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  db,
		engine: engine,
		index:  index,
		ledger: pending,
	}

	var sms smsSender = disabledSMS{}
	if cfg.Approval.SignalAccount != "" {
		a.signal, err = signal.NewClient(cfg.Approval.SignalAccount,
			signal.WithLogger(logger),
			signal.WithMetrics(metrics),
		)
		if err != nil {
			return nil, err
		}
		sms = a.signal
	}

	a.interpreter = approval.NewInterpreter(approval.Deps{
		Ledger:  pending,
		Mail:    mail,
		SMS:     sms,
		Logger:  logger,
		Metrics: metrics,
		Audit:   audit,
		Render:  suggest.RenderHTML,
	}, cfg.Approval.AllowedNumbers)

	a.step = suggest.NewStep(suggest.Deps{
		Mailbox: engine,
		Drafter: llm.NewDrafter(lm, cfg.VenueName, metrics),
		Events:  events,
		Ledger:  pending,
		SMS:     sms,
		Logger:  logger,
		Metrics: metrics,
	}, cfg.Approval.OperatorNumber)

	return a, nil
}

// canSuggest reports whether suggestions can reach an operator.
func (a *app) canSuggest() bool {
	return a.cfg.Approval.OperatorNumber != "" && a.signal != nil
}

func (a *app) components() server.Components {
	return server.Components{
		Mailbox:   a.engine,
		Pending:   a.ledger,
		Commands:  a.interpreter,
		Suggester: a.step,
		Store:     a.store,
		Logger:    a.logger,
	}
}

// sync runs one scheduled inbox sync.
func (a *app) sync(ctx context.Context, force bool) (syncSummary, error) {
	msgs, err := a.engine.GetAllEmails(ctx, a.cfg.Sync.MaxResults, force, a.cfg.Sync.Query)
	if err != nil {
		return syncSummary{}, err
	}
	return summarize(msgs), nil
}

func (a *app) Close() error {
	return a.store.Close()
}
