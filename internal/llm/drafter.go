package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/model"
)

// Drafter writes reply drafts in markdown.
type Drafter struct {
	model   LanguageModel
	venue   string
	metrics *instrumentation.Metrics
}

// NewDrafter creates a Drafter. metrics may be nil.
func NewDrafter(lm LanguageModel, venue string, metrics *instrumentation.Metrics) *Drafter {
	return &Drafter{model: lm, venue: venue, metrics: metrics}
}

// Draft writes a reply to msg. event, when non-nil, is the booking the
// message is about.
func (d *Drafter) Draft(ctx context.Context, msg model.Message, event *model.Event) (string, error) {
	venue := d.venue
	if venue == "" {
		venue = "the venue"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the events coordinator at %s. ", venue)
	sb.WriteString("Write a short, friendly reply to the email below. ")
	sb.WriteString("Answer in markdown without a subject line. Do not invent prices or dates that are not given.")

	if event != nil {
		sb.WriteString("\n\nBooking on file:\n")
		fmt.Fprintf(&sb, "- Name: %s\n", event.Name)
		if !event.StartTime.IsZero() {
			fmt.Fprintf(&sb, "- Start: %s\n", event.StartTime.Format(time.RFC1123))
		}
		if !event.EndTime.IsZero() {
			fmt.Fprintf(&sb, "- End: %s\n", event.EndTime.Format(time.RFC1123))
		}
		if event.Attendance > 0 {
			fmt.Fprintf(&sb, "- Guests: %d\n", event.Attendance)
		}
		if event.Room != "" {
			fmt.Fprintf(&sb, "- Room: %s\n", event.Room)
		}
		if len(event.Services) > 0 {
			fmt.Fprintf(&sb, "- Services: %s\n", strings.Join(event.Services, ", "))
		}
		if event.Notes != "" {
			fmt.Fprintf(&sb, "- Notes: %s\n", event.Notes)
		}
	}

	spanCtx, span := instrumentation.StartExternalSpan(ctx, instrumentation.ServiceLLM, instrumentation.OperationDraft)
	start := time.Now()
	resp, err := d.model.Generate(spanCtx, []Message{
		{Role: RoleSystem, Content: sb.String()},
		{Role: RoleUser, Content: fmt.Sprintf("From: %s\nSubject: %s\n\n%s", msg.From, msg.Subject, msg.Text)},
	}, Options{})
	d.metrics.RecordAPIOperation(ctx, instrumentation.ServiceLLM, instrumentation.OperationDraft, err, time.Since(start))
	instrumentation.EndSpan(span, err)
	if err != nil {
		return "", fmt.Errorf("failed to draft reply for %s: %w", msg.ID, err)
	}

	draft := strings.TrimSpace(resp.Content)
	if draft == "" {
		return "", fmt.Errorf("empty draft for %s", msg.ID)
	}
	return draft, nil
}
