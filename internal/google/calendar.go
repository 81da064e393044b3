package google

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"proactive/internal/models"
	"proactive/internal/source"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	primaryCalendar = "primary"
	untitledEvent   = "Evento sem título"
)

// CalendarClient reads upcoming events from the Google Calendar API.
type CalendarClient struct {
	service    *calendar.Service
	logger     *slog.Logger
	calendarID string
	window     time.Duration
	now        func() time.Time
}

// NewCalendarClient creates a Calendar client covering the next window of time.
func NewCalendarClient(ctx context.Context, logger *slog.Logger, window time.Duration, opts ...option.ClientOption) (*CalendarClient, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &CalendarClient{
		service:    service,
		logger:     logger,
		calendarID: primaryCalendar,
		window:     window,
		now:        time.Now,
	}, nil
}

// Upcoming fetches the events starting within the window, in ascending start
// order as returned by the API.
func (c *CalendarClient) Upcoming(ctx context.Context) ([]models.CalendarEvent, error) {
	now := c.now().UTC()
	tmin := now.Format(time.RFC3339)
	tmax := now.Add(c.window).Format(time.RFC3339)
	c.logger.Debug("Fetching upcoming events", "calendarID", c.calendarID, "window", c.window)

	events, err := c.service.Events.List(c.calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(tmin).
		TimeMax(tmax).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}

	return toCalendarEvents(events.Items), nil
}

// toCalendarEvents converts API events to the internal model, keeping their order.
func toCalendarEvents(items []*calendar.Event) []models.CalendarEvent {
	out := make([]models.CalendarEvent, 0, len(items))
	for _, item := range items {
		ev := models.CalendarEvent{
			Title:       item.Summary,
			Location:    item.Location,
			Description: item.Description,
			Source:      "google",
		}
		if ev.Title == "" {
			ev.Title = untitledEvent
		}
		ev.Start, ev.AllDay = parseEventTime(item.Start)
		ev.End, _ = parseEventTime(item.End)
		out = append(out, ev)
	}
	return out
}

// parseEventTime reads a timed or all-day boundary. Unparseable values yield the zero time.
func parseEventTime(dt *calendar.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, dt.DateTime)
		return t, false
	}
	if dt.Date != "" {
		t, _ := time.ParseInLocation(time.DateOnly, dt.Date, time.Local)
		return t, true
	}
	return time.Time{}, false
}

// CalendarSource adapts client to a Source. A nil client yields an uninitialized source.
func CalendarSource(logger *slog.Logger, client *CalendarClient) *source.Adapter[models.CalendarEvent] {
	var fetch source.FetchFunc[models.CalendarEvent]
	if client != nil {
		fetch = client.Upcoming
	}
	return source.NewAdapter("calendar", fetch, logger, Classify)
}
