// Package approval turns operator SMS commands into sent replies.
//
// The operator answers a suggestion with YES<id> to send the drafted reply
// as is, or EDIT<id> <text> to send <text> instead. Each command claims the
// pending action before the mail is sent, so a command can succeed only
// once; a failed send reopens the action for a fresh command.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/teemow/venuedesk/internal/gmail"
	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/ledger"
	"github.com/teemow/venuedesk/internal/logging"
	"github.com/teemow/venuedesk/internal/model"
	"github.com/teemow/venuedesk/internal/signal"
)

// Operator facing messages.
const (
	MsgInvalidFormat = "invalid format"
	MsgEditNeedsText = "invalid command: EDIT requires replacement text"
	MsgUnauthorized  = "unauthorized sender"
)

// Command verbs.
const (
	VerbYes  = "YES"
	VerbEdit = "EDIT"
)

var commandPattern = regexp.MustCompile(`(?is)^(YES|EDIT)([0-9a-z]+)(?:\s+(.*))?$`)

// Command is a parsed operator instruction.
type Command struct {
	Verb    string
	ShortID string
	Text    string
}

// ParseCommand parses "YES<id>" or "EDIT<id> <text>". Verbs are matched
// case-insensitively; the id is lowercased.
func ParseCommand(s string) (Command, bool) {
	m := commandPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Command{}, false
	}
	return Command{
		Verb:    strings.ToUpper(m[1]),
		ShortID: strings.ToLower(m[2]),
		Text:    strings.TrimSpace(m[3]),
	}, true
}

// Result is reported back to the operator.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// MailSender sends the approved reply.
type MailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string, opts gmail.SendOptions) (model.MessageRef, error)
}

// SMSSender replies to the operator.
type SMSSender interface {
	Send(ctx context.Context, to, text string) (signal.SendResult, error)
}

// Ledger is the pending action store the interpreter resolves against.
type Ledger interface {
	Lookup(token string) (model.PendingAction, bool)
	Claim(ctx context.Context, token string) (model.PendingAction, bool)
	RecordSent(ctx context.Context, action model.PendingAction, sent model.MessageRef, body string) error
	RecordFailure(ctx context.Context, action model.PendingAction, cause error) error
	Append(ctx context.Context, entryType string, fields map[string]any) error
}

// SendError wraps a failed outbound mail for a pending action.
type SendError struct {
	ShortID string
	Err     error
}

// Error implements the error interface
func (e *SendError) Error() string {
	return fmt.Sprintf("send for %s: %v", e.ShortID, e.Err)
}

// Unwrap returns the underlying error
func (e *SendError) Unwrap() error {
	return e.Err
}

// Interpreter resolves operator commands.
type Interpreter struct {
	ledger  Ledger
	mail    MailSender
	sms     SMSSender
	allowed []string
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	render  func(string) (string, error)
}

// Deps groups an Interpreter's collaborators.
type Deps struct {
	Ledger  Ledger
	Mail    MailSender
	SMS     SMSSender
	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger

	// Render turns operator supplied EDIT text into the mail body. The
	// text is sent as is when Render is nil.
	Render func(string) (string, error)
}

// NewInterpreter creates an Interpreter. With a non-empty allowed list,
// commands from other numbers are rejected.
func NewInterpreter(deps Deps, allowed []string) *Interpreter {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		ledger:  deps.Ledger,
		mail:    deps.Mail,
		sms:     deps.SMS,
		allowed: slices.Clone(allowed),
		logger:  logging.WithComponent(logger, "approval"),
		metrics: deps.Metrics,
		audit:   deps.Audit,
		render:  deps.Render,
	}
}

// ResolveCommand executes smsText sent from fromNumber and reports the
// outcome back to that number. Commands from numbers outside the allow
// list get no reply.
func (i *Interpreter) ResolveCommand(ctx context.Context, smsText, fromNumber string) Result {
	ctx, span := instrumentation.StartSpan(ctx, "approval.resolve_command")
	defer span.End()

	res, decision := i.resolve(ctx, smsText, fromNumber)
	decision.Phone = fromNumber
	i.metrics.RecordApproval(ctx, strings.ToLower(decision.Command), decision.Result)
	i.audit.LogApproval(decision)
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithShortID(decision.ShortID).
		WithCommand(decision.Command, decision.Result).
		WithPhoneHash(logging.AnonymizePhone(fromNumber)).
		Build()...)

	if decision.Result == instrumentation.ApprovalUnauthorized {
		return res
	}
	i.reply(ctx, fromNumber, res)
	return res
}

func (i *Interpreter) resolve(ctx context.Context, smsText, from string) (Result, instrumentation.ApprovalDecision) {
	if len(i.allowed) > 0 && !slices.Contains(i.allowed, from) {
		i.logger.WarnContext(ctx, "command from unknown number", logging.PhoneHash(from))
		i.rejected(ctx, from, "", MsgUnauthorized)
		return Result{Message: MsgUnauthorized},
			instrumentation.ApprovalDecision{Command: "unknown", Result: instrumentation.ApprovalUnauthorized}
	}

	cmd, ok := ParseCommand(smsText)
	if !ok {
		i.rejected(ctx, from, "", MsgInvalidFormat)
		return Result{Message: MsgInvalidFormat},
			instrumentation.ApprovalDecision{Command: "unknown", Result: instrumentation.ApprovalInvalid}
	}
	decision := instrumentation.ApprovalDecision{Command: cmd.Verb, ShortID: cmd.ShortID}
	notFound := fmt.Sprintf("no pending email found for id %s", cmd.ShortID)

	if cmd.Verb == VerbEdit && cmd.Text == "" {
		if _, ok := i.ledger.Lookup(cmd.ShortID); !ok {
			decision.Result = instrumentation.ApprovalNotFound
			decision.Error = ledger.ErrNotFound.Error()
			return Result{Message: notFound}, decision
		}
		i.rejected(ctx, from, cmd.ShortID, MsgEditNeedsText)
		decision.Result = instrumentation.ApprovalInvalid
		return Result{Message: MsgEditNeedsText}, decision
	}

	action, ok := i.ledger.Claim(ctx, cmd.ShortID)
	if !ok {
		decision.Result = instrumentation.ApprovalNotFound
		decision.Error = ledger.ErrNotFound.Error()
		return Result{Message: notFound}, decision
	}
	decision.Recipient = action.Recipient

	body := action.ProposedBody
	if cmd.Verb == VerbEdit {
		body = i.renderEdit(ctx, cmd.Text)
		decision.Edited = true
	}

	sent, err := i.mail.Send(ctx, action.Recipient, action.Subject, body, gmail.SendOptions{
		ThreadID:   action.ThreadID,
		InReplyTo:  action.InReplyTo,
		References: action.InReplyTo,
	})
	if err != nil {
		sendErr := &SendError{ShortID: action.ShortID, Err: err}
		i.logger.ErrorContext(ctx, "approved reply could not be sent",
			logging.ShortID(action.ShortID),
			logging.Err(sendErr))
		if lerr := i.ledger.RecordFailure(ctx, action, sendErr); lerr != nil {
			i.logger.ErrorContext(ctx, "failed to record send failure", logging.Err(lerr))
		}
		decision.Result = instrumentation.ApprovalSendFailed
		decision.Error = err.Error()
		return Result{Message: fmt.Sprintf("failed to send email for id %s", action.ShortID)}, decision
	}

	if err := i.ledger.RecordSent(ctx, action, sent, body); err != nil {
		i.logger.ErrorContext(ctx, "failed to record sent reply", logging.ShortID(action.ShortID), logging.Err(err))
	}
	i.logger.InfoContext(ctx, "approved reply sent",
		logging.ShortID(action.ShortID),
		logging.MessageID(sent.ID),
		logging.UserHash(action.Recipient),
		logging.Domain(action.Recipient))

	decision.Result = instrumentation.ApprovalSent
	return Result{Success: true, Message: fmt.Sprintf("email sent for id %s", action.ShortID)}, decision
}

func (i *Interpreter) renderEdit(ctx context.Context, text string) string {
	if i.render == nil {
		return text
	}
	html, err := i.render(text)
	if err != nil {
		i.logger.WarnContext(ctx, "sending edit text unrendered", logging.Err(err))
		return text
	}
	return html
}

func (i *Interpreter) rejected(ctx context.Context, from, shortID, reason string) {
	err := i.ledger.Append(ctx, model.EntryCommandRejected, map[string]any{
		"phone":   logging.AnonymizePhone(from),
		"shortId": shortID,
		"reason":  reason,
	})
	if err != nil {
		i.logger.WarnContext(ctx, "failed to record rejected command", logging.Err(err))
	}
}

func (i *Interpreter) reply(ctx context.Context, to string, res Result) {
	if i.sms == nil || to == "" {
		return
	}
	_, err := i.sms.Send(ctx, to, res.Message)
	if err == nil {
		return
	}
	i.logger.WarnContext(ctx, "operator reply failed", logging.PhoneHash(to), logging.Err(err))
	lerr := i.ledger.Append(ctx, model.EntrySMSFailure, map[string]any{
		"phone":   logging.AnonymizePhone(to),
		"message": res.Message,
		"error":   err.Error(),
	})
	if lerr != nil {
		i.logger.WarnContext(ctx, "failed to record sms failure", logging.Err(lerr))
	}
}
