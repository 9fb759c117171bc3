package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/venuedesk/internal/model"
)

// Default booking window.
const (
	DefaultLookback = 30 * 24 * time.Hour
	DefaultHorizon  = 365 * 24 * time.Hour
)

// EventStore lists bookings from one calendar.
type EventStore struct {
	svc        *calendar.Service
	calendarID string
	lookback   time.Duration
	horizon    time.Duration
	endpoint   string
	now        func() time.Time
}

// Option configures an EventStore.
type Option func(*EventStore)

// WithWindow sets how far back and ahead bookings are loaded.
func WithWindow(lookback, horizon time.Duration) Option {
	return func(s *EventStore) {
		if lookback > 0 {
			s.lookback = lookback
		}
		if horizon > 0 {
			s.horizon = horizon
		}
	}
}

// WithEndpoint points the store at a different API root.
func WithEndpoint(url string) Option {
	return func(s *EventStore) { s.endpoint = url }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *EventStore) { s.now = now }
}

// NewEventStore creates an EventStore on an authenticated HTTP client.
func NewEventStore(ctx context.Context, httpClient *http.Client, calendarID string, opts ...Option) (*EventStore, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	s := &EventStore{
		calendarID: calendarID,
		lookback:   DefaultLookback,
		horizon:    DefaultHorizon,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if s.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(s.endpoint))
	}
	svc, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	s.svc = svc
	return s, nil
}

// CalendarID returns the calendar this store reads.
func (s *EventStore) CalendarID() string {
	return s.calendarID
}

// LoadEvents returns every confirmed or tentative booking in the window,
// ordered by start time.
func (s *EventStore) LoadEvents(ctx context.Context) ([]model.Event, error) {
	now := s.now()
	call := s.svc.Events.List(s.calendarID).
		TimeMin(now.Add(-s.lookback).Format(time.RFC3339)).
		TimeMax(now.Add(s.horizon).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250)

	var events []model.Event
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, e := range page.Items {
			if e.Status == "cancelled" {
				continue
			}
			events = append(events, toEvent(e))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// GetEvent retrieves one booking by id.
func (s *EventStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required")
	}
	e, err := s.svc.Events.Get(s.calendarID, id).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	ev := toEvent(e)
	return &ev, nil
}
