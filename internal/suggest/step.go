// Package suggest drafts replies to booking emails and asks the operator
// to approve them over SMS.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/venuedesk/internal/association"
	"github.com/teemow/venuedesk/internal/gmail"
	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/ledger"
	"github.com/teemow/venuedesk/internal/logging"
	"github.com/teemow/venuedesk/internal/model"
	"github.com/teemow/venuedesk/internal/signal"
)

// EventCategory is the category eligible for suggestions.
const EventCategory = model.CategoryEvent

// Mailbox is the cached view of the inbox.
type Mailbox interface {
	Emails(ctx context.Context) ([]model.Message, error)
	MarkNotified(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, id string) error
}

// Drafter writes a markdown reply.
type Drafter interface {
	Draft(ctx context.Context, msg model.Message, event *model.Event) (string, error)
}

// EventLookup fetches the booking a message is associated with.
type EventLookup interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
}

// Ledger records drafted replies.
type Ledger interface {
	ForEmail(emailID string) (model.PendingAction, bool)
	Create(ctx context.Context, in ledger.Input) (string, error)
	Append(ctx context.Context, entryType string, fields map[string]any) error
}

// SMSSender notifies the operator.
type SMSSender interface {
	Send(ctx context.Context, to, text string) (signal.SendResult, error)
}

// Deps groups a Step's collaborators. Events may be nil.
type Deps struct {
	Mailbox Mailbox
	Drafter Drafter
	Events  EventLookup
	Ledger  Ledger
	SMS     SMSSender
	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// Outcome describes what a run did.
type Outcome struct {
	Result   string `json:"result"`
	EmailID  string `json:"emailId,omitempty"`
	ShortID  string `json:"shortId,omitempty"`
	Notified bool   `json:"notified"`
}

// Step is one suggestion pass.
type Step struct {
	mailbox  Mailbox
	drafter  Drafter
	events   EventLookup
	ledger   Ledger
	sms      SMSSender
	operator string
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
}

// NewStep creates a Step that notifies operator.
func NewStep(deps Deps, operator string) *Step {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Step{
		mailbox:  deps.Mailbox,
		drafter:  deps.Drafter,
		events:   deps.Events,
		ledger:   deps.Ledger,
		sms:      deps.SMS,
		operator: operator,
		logger:   logging.WithComponent(logger, "suggest"),
		metrics:  deps.Metrics,
	}
}

// Eligible reports whether msg may receive a suggestion.
func Eligible(msg model.Message) bool {
	return msg.Category == EventCategory && !msg.HasNotified && !msg.Replied && !msg.ProcessedForSuggestions
}

// SelectCandidate returns the newest eligible message.
func SelectCandidate(msgs []model.Message) (model.Message, bool) {
	var best model.Message
	found := false
	for _, m := range msgs {
		if !Eligible(m) {
			continue
		}
		if !found || m.InternalDate > best.InternalDate ||
			(m.InternalDate == best.InternalDate && m.ID < best.ID) {
			best, found = m, true
		}
	}
	return best, found
}

// NotificationText is the SMS sent to the operator for a new suggestion.
func NotificationText(from, subject, shortID string) string {
	return fmt.Sprintf("New email from %s about %q. Reply YES%s to send, or EDIT%s <text>", from, subject, shortID, shortID)
}

// Run handles at most one eligible message. A failed notification leaves
// the message unnotified and its pending action open, so the next run
// notifies again with the same token.
func (s *Step) Run(ctx context.Context) (out Outcome, err error) {
	ctx, span := instrumentation.StartSpan(ctx, "suggest.run")
	start := time.Now()
	defer func() {
		s.metrics.RecordSuggestion(ctx, out.Result)
		instrumentation.EndSpan(span, err)
		s.logger.DebugContext(ctx, "suggestion run finished",
			logging.Status(out.Result),
			logging.Duration(time.Since(start)))
	}()

	msgs, err := s.mailbox.Emails(ctx)
	if err != nil {
		return Outcome{Result: instrumentation.SuggestionFailed}, err
	}
	msg, ok := SelectCandidate(msgs)
	if !ok {
		return Outcome{Result: instrumentation.SuggestionNone}, nil
	}
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithMessage(msg.ID, msg.ThreadID).Build()...)

	out = Outcome{EmailID: msg.ID}
	if association.ExtractAddress(msg.From) == "" {
		// Nothing to reply to; take it out of the candidate pool.
		s.logger.WarnContext(ctx, "skipping message without sender address", logging.MessageID(msg.ID))
		if err := s.mailbox.MarkProcessed(ctx, msg.ID); err != nil {
			out.Result = instrumentation.SuggestionFailed
			return out, fmt.Errorf("failed to mark %s processed: %w", msg.ID, err)
		}
		out.Result = instrumentation.SuggestionSkipped
		return out, nil
	}

	action, reuse := s.ledger.ForEmail(msg.ID)
	if !reuse {
		action, err = s.createAction(ctx, msg)
		if err != nil {
			out.Result = instrumentation.SuggestionFailed
			return out, err
		}
	}
	out.ShortID = action.ShortID

	text := NotificationText(senderName(msg.From), msg.Subject, action.ShortID)
	if _, err := s.sms.Send(ctx, s.operator, text); err != nil {
		s.logger.WarnContext(ctx, "operator notification failed",
			logging.ShortID(action.ShortID),
			logging.Err(err))
		lerr := s.ledger.Append(ctx, model.EntrySMSFailure, map[string]any{
			"shortId": action.ShortID,
			"emailId": msg.ID,
			"error":   err.Error(),
		})
		if lerr != nil {
			s.logger.WarnContext(ctx, "failed to record sms failure", logging.Err(lerr))
		}
		out.Result = instrumentation.SuggestionNotifyFailed
		return out, nil
	}

	if err := s.ledger.Append(ctx, model.EntrySMSSent, map[string]any{
		"shortId": action.ShortID,
		"emailId": msg.ID,
		"phone":   logging.AnonymizePhone(s.operator),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to record sms", logging.Err(err))
	}

	if err := s.mailbox.MarkNotified(ctx, msg.ID); err != nil {
		out.Result = instrumentation.SuggestionFailed
		return out, fmt.Errorf("failed to mark %s notified: %w", msg.ID, err)
	}

	s.logger.InfoContext(ctx, "suggestion sent to operator",
		logging.ShortID(action.ShortID),
		logging.MessageID(msg.ID))
	out.Notified = true
	out.Result = instrumentation.SuggestionCreated
	return out, nil
}

func (s *Step) createAction(ctx context.Context, msg model.Message) (model.PendingAction, error) {
	recipient := association.ExtractAddress(msg.From)
	event := s.lookupEvent(ctx, msg)
	draft, err := s.drafter.Draft(ctx, msg, event)
	if err != nil {
		return model.PendingAction{}, err
	}
	body, err := RenderHTML(draft)
	if err != nil {
		return model.PendingAction{}, err
	}

	token, err := s.ledger.Create(ctx, ledger.Input{
		EmailID:      msg.ID,
		ProposedBody: body,
		Recipient:    recipient,
		Subject:      gmail.ReplySubject(msg.Subject),
		ThreadID:     msg.ThreadID,
		InReplyTo:    msg.MessageIDHeader,
	})
	if errors.Is(err, ledger.ErrAlreadyOpen) {
		if a, ok := s.ledger.ForEmail(msg.ID); ok {
			return a, nil
		}
	}
	if err != nil {
		return model.PendingAction{}, err
	}
	return model.PendingAction{ShortID: token, EmailID: msg.ID, Recipient: recipient}, nil
}

func (s *Step) lookupEvent(ctx context.Context, msg model.Message) *model.Event {
	if s.events == nil || msg.AssociatedEventID == nil {
		return nil
	}
	event, err := s.events.GetEvent(ctx, *msg.AssociatedEventID)
	if err != nil {
		s.logger.WarnContext(ctx, "drafting without event details",
			logging.MessageID(msg.ID),
			logging.Err(err))
		return nil
	}
	return event
}

// senderName prefers the display name of a From header.
func senderName(from string) string {
	if i := strings.Index(from, "<"); i > 0 {
		if name := strings.Trim(strings.TrimSpace(from[:i]), `"`); name != "" {
			return name
		}
	}
	return strings.Trim(strings.TrimSpace(from), "<>")
}
