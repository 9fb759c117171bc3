package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/venuedesk/internal/logging"
	"github.com/teemow/venuedesk/internal/model"
)

// maxPageSize is the largest page Gmail serves for messages.list.
const maxPageSize = 500

// Client wraps the Gmail Users service
type Client struct {
	svc      *gmail.UsersService
	user     string
	endpoint string
	retry    RetryPolicy
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy overrides the default backoff for read calls.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithEndpoint points the client at a different API root.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// NewClient creates a Gmail client on an already authenticated HTTP client.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...Option) (*Client, error) {
	c := &Client{
		user:   "me",
		retry:  DefaultRetryPolicy(),
		logger: slog.Default(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	c.svc = svc.Users
	return c, nil
}

// ListInbox lists INBOX message references matching query, newest first,
// up to max entries.
func (c *Client) ListInbox(ctx context.Context, query string, max int) ([]model.MessageRef, error) {
	if max <= 0 {
		return nil, fmt.Errorf("max must be positive")
	}

	var refs []model.MessageRef
	pageToken := ""
	for len(refs) < max {
		size := min(max-len(refs), maxPageSize)
		req := c.svc.Messages.List(c.user).LabelIds(LabelInbox).MaxResults(int64(size)).Context(ctx)
		if query != "" {
			req = req.Q(query)
		}
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		var res *gmail.ListMessagesResponse
		err := c.withRetry(ctx, "list", func() error {
			var err error
			res, err = req.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}

		for _, m := range res.Messages {
			refs = append(refs, model.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
			if len(refs) == max {
				break
			}
		}
		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}
	return refs, nil
}

// GetFull retrieves a message with headers, decoded bodies and labels.
func (c *Client) GetFull(ctx context.Context, id string) (*FullMessage, error) {
	if id == "" {
		return nil, fmt.Errorf("message id is required")
	}

	var msg *gmail.Message
	err := c.withRetry(ctx, "get", func() error {
		var err error
		msg, err = c.svc.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return FromAPI(msg), nil
}

// GetThread retrieves every message of a thread in conversation order.
func (c *Client) GetThread(ctx context.Context, threadID string) ([]*FullMessage, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required")
	}

	var thread *gmail.Thread
	err := c.withRetry(ctx, "thread", func() error {
		var err error
		thread, err = c.svc.Threads.Get(c.user, threadID).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %s: %w", threadID, err)
	}

	out := make([]*FullMessage, 0, len(thread.Messages))
	for _, m := range thread.Messages {
		out = append(out, FromAPI(m))
	}
	return out, nil
}

// Send composes an HTML message and sends it. With opts.ThreadID set the
// message joins that thread. Send is not retried.
func (c *Client) Send(ctx context.Context, to, subject, htmlBody string, opts SendOptions) (model.MessageRef, error) {
	if to == "" {
		return model.MessageRef{}, fmt.Errorf("recipient is required")
	}
	if subject == "" {
		return model.MessageRef{}, fmt.Errorf("subject is required")
	}
	if htmlBody == "" {
		return model.MessageRef{}, fmt.Errorf("body is required")
	}

	raw, err := ComposeMessage(to, subject, htmlBody, opts, time.Now())
	if err != nil {
		return model.MessageRef{}, err
	}

	gmailMsg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: opts.ThreadID,
	}
	sent, err := c.svc.Messages.Send(c.user, gmailMsg).Context(ctx).Do()
	if err != nil {
		return model.MessageRef{}, fmt.Errorf("failed to send email: %w", err)
	}

	c.logger.Info("email sent",
		logging.Operation("gmail.send"),
		slog.String(logging.KeyMessageID, sent.Id),
		slog.String(logging.KeyUserHash, logging.AnonymizeEmail(to)))

	return model.MessageRef{ID: sent.Id, ThreadID: sent.ThreadId}, nil
}

// ModifyLabels adds and removes labels on a single message.
func (c *Client) ModifyLabels(ctx context.Context, id string, add, remove []string) error {
	if id == "" {
		return fmt.Errorf("message id is required")
	}
	req := &gmail.ModifyMessageRequest{AddLabelIds: add, RemoveLabelIds: remove}
	err := c.withRetry(ctx, "modify", func() error {
		_, err := c.svc.Messages.Modify(c.user, id, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to modify labels on %s: %w", id, err)
	}
	return nil
}

// Archive removes the INBOX label from a message.
func (c *Client) Archive(ctx context.Context, id string) error {
	return c.ModifyLabels(ctx, id, nil, []string{LabelInbox})
}
