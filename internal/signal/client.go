package signal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/logging"
)

// runner executes signal-cli and returns stdout and stderr.
type runner func(ctx context.Context, args ...string) (string, string, error)

func execRunner(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "signal-cli", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Client sends and receives messages for one registered account.
type Client struct {
	account string
	run     runner
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func withRunner(r runner) Option {
	return func(c *Client) { c.run = r }
}

// ValidatePhone checks that a number is in the +<digits> form signal-cli
// expects.
func ValidatePhone(number string) error {
	if number == "" {
		return fmt.Errorf("phone number cannot be empty")
	}
	if !strings.HasPrefix(number, "+") || len(number) < 4 {
		return fmt.Errorf("phone number must be in international format starting with +")
	}
	if _, err := strconv.ParseUint(number[1:], 10, 64); err != nil {
		return fmt.Errorf("phone number must contain only digits after +")
	}
	return nil
}

// NewClient creates a client for account. signal-cli must be on PATH.
func NewClient(account string, opts ...Option) (*Client, error) {
	if err := ValidatePhone(account); err != nil {
		return nil, &SignalError{Op: "initialize", Err: err}
	}

	c := &Client{account: account, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(c.logger, "signal")

	if c.run == nil {
		if _, err := exec.LookPath("signal-cli"); err != nil {
			return nil, &SignalError{
				Op:      "initialize",
				Account: logging.AnonymizePhone(account),
				Err:     fmt.Errorf("signal-cli not found in PATH: %w", err),
			}
		}
		c.run = execRunner
	}
	return c, nil
}

// Account returns the phone number this client sends from.
func (c *Client) Account() string {
	return c.account
}

// Send delivers text to a phone number. Send is not retried.
func (c *Client) Send(ctx context.Context, to, text string) (res SendResult, err error) {
	ctx, span := instrumentation.StartExternalSpan(ctx, instrumentation.ServiceSignal, instrumentation.OperationSend,
		instrumentation.NewSpanAttributeBuilder().WithPhoneHash(logging.AnonymizePhone(to)).Build()...)
	start := time.Now()
	defer func() {
		instrumentation.EndSpan(span, err)
		c.metrics.RecordSMS(ctx, err)
		c.metrics.RecordAPIOperation(ctx, instrumentation.ServiceSignal, instrumentation.OperationSend, err, time.Since(start))
	}()

	if err := ValidatePhone(to); err != nil {
		return SendResult{}, &SignalError{Op: "send", Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return SendResult{}, &SignalError{Op: "send", Err: fmt.Errorf("message cannot be empty")}
	}

	stdout, stderr, err := c.run(ctx, "-u", c.account, "send", to, "-m", text)
	if err != nil {
		return SendResult{}, &SignalError{
			Op:      "send",
			Account: logging.AnonymizePhone(c.account),
			Err:     fmt.Errorf("failed to send message: %w (stderr: %s)", err, strings.TrimSpace(stderr)),
		}
	}

	ts, _ := strconv.ParseInt(strings.TrimSpace(stdout), 10, 64)
	c.logger.InfoContext(ctx, "sms sent", logging.PhoneHash(to))
	return SendResult{Timestamp: ts}, nil
}

// envelope is the subset of signal-cli's JSON receive output we read.
type envelope struct {
	Account  string `json:"account"`
	Envelope struct {
		Source       string `json:"source"`
		SourceNumber string `json:"sourceNumber"`
		Timestamp    int64  `json:"timestamp"`
		DataMessage  *struct {
			Message   string `json:"message"`
			GroupInfo *struct {
				GroupID string `json:"groupId"`
			} `json:"groupInfo"`
		} `json:"dataMessage"`
	} `json:"envelope"`
}

// Receive waits up to timeout for messages addressed to the account.
// Receipts, typing notices and group messages are skipped.
func (c *Client) Receive(ctx context.Context, timeout time.Duration) ([]InboundMessage, error) {
	secs := int(timeout.Seconds())
	if secs <= 0 {
		return nil, &SignalError{Op: "receive", Err: fmt.Errorf("timeout must be at least one second")}
	}

	stdout, stderr, err := c.run(ctx, "-o", "json", "-u", c.account, "receive", "--timeout", strconv.Itoa(secs))
	if err != nil {
		if strings.Contains(strings.ToLower(stderr), "timeout") {
			return nil, nil
		}
		return nil, &SignalError{
			Op:      "receive",
			Account: logging.AnonymizePhone(c.account),
			Err:     fmt.Errorf("failed to receive messages: %w (stderr: %s)", err, strings.TrimSpace(stderr)),
		}
	}

	return parseReceiveOutput(stdout, c.account)
}

func parseReceiveOutput(output, account string) ([]InboundMessage, error) {
	var out []InboundMessage
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			return out, &SignalError{Op: "receive", Err: fmt.Errorf("failed to parse envelope: %w", err)}
		}
		dm := env.Envelope.DataMessage
		if dm == nil || dm.GroupInfo != nil || strings.TrimSpace(dm.Message) == "" {
			continue
		}

		from := env.Envelope.SourceNumber
		if from == "" {
			from = env.Envelope.Source
		}
		to := env.Account
		if to == "" {
			to = account
		}
		out = append(out, InboundMessage{
			From:      from,
			To:        to,
			Text:      dm.Message,
			Timestamp: env.Envelope.Timestamp,
		})
	}
	if err := scanner.Err(); err != nil {
		return out, &SignalError{Op: "receive", Err: err}
	}
	return out, nil
}

// Poll receives messages until ctx is done and hands each one to handle.
// Receive errors are logged and polling continues after interval.
func (c *Client) Poll(ctx context.Context, interval time.Duration, handle func(context.Context, InboundMessage)) error {
	if interval < time.Second {
		interval = 5 * time.Second
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgs, err := c.Receive(ctx, interval)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WarnContext(ctx, "receive failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
			continue
		}

		for _, m := range msgs {
			handle(ctx, m)
		}
	}
}
