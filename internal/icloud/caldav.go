package icloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"proactive/internal/models"
	"proactive/internal/source"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

// DefaultEndpoint is the iCloud CalDAV server.
const DefaultEndpoint = "https://caldav.icloud.com/"

const untitledEvent = "Evento sem título"

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "proactive/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVClient reads upcoming events from one calendar of a CalDAV server.
type CalDAVClient struct {
	caldavClient *caldav.Client
	logger       *slog.Logger
	calendarPath string
	window       time.Duration
	now          func() time.Time
}

// NewClient connects to endpoint and locates the calendar named calendarName.
func NewClient(ctx context.Context, logger *slog.Logger, endpoint, username, password, calendarName string, window time.Duration) (*CalDAVClient, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpClient := &http.Client{Transport: &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	c := &CalDAVClient{
		caldavClient: caldavClient,
		logger:       logger,
		window:       window,
		now:          time.Now,
	}

	logger.Info("Finding CalDAV calendar", "calendarName", calendarName)
	calendarPath, err := c.findCalendar(ctx, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)

	return c, nil
}

// Upcoming fetches the events overlapping the window, in ascending start order.
func (c *CalDAVClient) Upcoming(ctx context.Context) ([]models.CalendarEvent, error) {
	now := c.now()
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name: ical.CompEvent,
				Props: []string{
					ical.PropSummary, ical.PropDateTimeStart, ical.PropDateTimeEnd,
					ical.PropLocation, ical.PropDescription,
				},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: now,
				End:   now.Add(c.window),
			}},
		},
	}

	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	var events []models.CalendarEvent
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ve := range obj.Data.Events() {
			ev, err := toCalendarEvent(ve, time.Local)
			if err != nil {
				c.logger.Warn("Skipping unreadable CalDAV event", "path", obj.Path, "error", err)
				continue
			}
			events = append(events, ev)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

// toCalendarEvent converts a VEVENT to the internal model.
func toCalendarEvent(ve ical.Event, loc *time.Location) (models.CalendarEvent, error) {
	start, err := ve.DateTimeStart(loc)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("invalid DTSTART: %w", err)
	}
	if start.IsZero() {
		return models.CalendarEvent{}, fmt.Errorf("event has no DTSTART")
	}
	end, err := ve.DateTimeEnd(loc)
	if err != nil {
		end = time.Time{}
	}

	ev := models.CalendarEvent{
		Title:  propText(ve.Component, ical.PropSummary),
		Start:  start,
		End:    end,
		Source: "caldav",
	}
	if ev.Title == "" {
		ev.Title = untitledEvent
	}
	if p := ve.Props.Get(ical.PropDateTimeStart); p != nil && p.ValueType() == ical.ValueDate {
		ev.AllDay = true
	}
	ev.Location = propText(ve.Component, ical.PropLocation)
	ev.Description = propText(ve.Component, ical.PropDescription)
	return ev, nil
}

func propText(comp *ical.Component, name string) string {
	v, err := comp.Props.Text(name)
	if err != nil {
		return ""
	}
	return v
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (c *CalDAVClient) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if strings.EqualFold(cal.Name, name) {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

// Source adapts client to a Source. A nil client yields an uninitialized source.
func Source(logger *slog.Logger, client *CalDAVClient) *source.Adapter[models.CalendarEvent] {
	var fetch source.FetchFunc[models.CalendarEvent]
	if client != nil {
		fetch = client.Upcoming
	}
	return source.NewAdapter("caldav", fetch, logger, nil)
}
