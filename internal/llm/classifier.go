package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/logging"
	"github.com/teemow/venuedesk/internal/model"
)

// ClassificationError reports a classification that fell back to "other".
type ClassificationError struct {
	MessageID string
	Err       error
}

// Error implements the error interface
func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify %s: %v", e.MessageID, e.Err)
}

// Unwrap returns the underlying error
func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// maxClassifyBody caps the body text sent for classification.
const maxClassifyBody = 4000

// Classifier assigns each message one category from a closed set.
type Classifier struct {
	model      LanguageModel
	categories model.CategorySet
	venue      string
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

// NewClassifier creates a Classifier. metrics may be nil.
func NewClassifier(lm LanguageModel, categories model.CategorySet, venue string, logger *slog.Logger, metrics *instrumentation.Metrics) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		model:      lm,
		categories: categories,
		venue:      venue,
		logger:     logging.WithComponent(logger, "classifier"),
		metrics:    metrics,
	}
}

type classification struct {
	Category string `json:"category"`
}

func (c *Classifier) schema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"category": {
				Type:        jsonschema.String,
				Enum:        c.categories.Names(),
				Description: "the single best category for the email",
			},
		},
		Required:             []string{"category"},
		AdditionalProperties: false,
	}
}

func (c *Classifier) prompt() string {
	venue := c.venue
	if venue == "" {
		venue = "an event venue"
	}
	return fmt.Sprintf(`You sort the inbox of %s.
Classify the email into exactly one of these categories: %s.
Use "%s" for booking enquiries and anything about a specific event.
Use "%s" when nothing else fits.`,
		venue, strings.Join(c.categories.Names(), ", "), model.CategoryEvent, model.CategoryOther)
}

// Classify returns the category for msg. It never returns an empty
// category: on any failure it returns "other" together with a
// *ClassificationError.
func (c *Classifier) Classify(ctx context.Context, msg model.Message) (category string, err error) {
	body := msg.Text
	if len(body) > maxClassifyBody {
		body = body[:maxClassifyBody]
	}

	spanCtx, span := instrumentation.StartExternalSpan(ctx, instrumentation.ServiceLLM, instrumentation.OperationClassify)
	defer func() {
		span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithCategory(category).Build()...)
		instrumentation.EndSpan(span, err)
	}()

	start := time.Now()
	resp, err := c.model.Generate(spanCtx, []Message{
		{Role: RoleSystem, Content: c.prompt()},
		{Role: RoleUser, Content: fmt.Sprintf("From: %s\nSubject: %s\n\n%s", msg.From, msg.Subject, body)},
	}, Options{Schema: c.schema(), SchemaName: "email_category", MaxTokens: 50})
	c.metrics.RecordAPIOperation(ctx, instrumentation.ServiceLLM, instrumentation.OperationClassify, err, time.Since(start))
	if err != nil {
		return c.fail(ctx, msg, err)
	}

	var out classification
	if err := resp.Decode(&out); err != nil {
		return c.fail(ctx, msg, err)
	}

	name := strings.ToLower(strings.TrimSpace(out.Category))
	if !c.categories.Contains(name) {
		return c.fail(ctx, msg, fmt.Errorf("unknown category %q", out.Category))
	}

	c.metrics.RecordClassification(ctx, name, nil)
	return name, nil
}

func (c *Classifier) fail(ctx context.Context, msg model.Message, err error) (string, error) {
	c.logger.WarnContext(ctx, "classification failed, using fallback category",
		logging.MessageID(msg.ID),
		logging.Err(err))
	c.metrics.RecordClassification(ctx, model.CategoryOther, err)
	return model.CategoryOther, &ClassificationError{MessageID: msg.ID, Err: err}
}
