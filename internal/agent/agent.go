package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"proactive/internal/models"
	"proactive/internal/source"

	"github.com/google/uuid"
)

// ErrNoSources is returned by Run when no data source has a remote connection.
var ErrNoSources = errors.New("no data source could be initialized")

// Analyzer produces a suggestion for a context bundle.
type Analyzer interface {
	Ready() bool
	Analyze(ctx context.Context, bundle models.ContextBundle) string
}

// CredentialKeeper refreshes the shared credential between ticks.
type CredentialKeeper interface {
	Ensure(ctx context.Context) error
}

// Sources are the data sources polled on every tick. Calendars may hold
// several calendar providers whose events are merged.
type Sources struct {
	Calendars []source.Source[models.CalendarEvent]
	Mail      source.Source[models.EmailSummary]
	Files     source.Source[models.DriveFile]
}

func (s Sources) anyReady() bool {
	for _, c := range s.Calendars {
		if c != nil && c.Ready() {
			return true
		}
	}
	return (s.Mail != nil && s.Mail.Ready()) || (s.Files != nil && s.Files.Ready())
}

// Agent polls the sources, asks for suggestions and presents them.
type Agent struct {
	logger      *slog.Logger
	sources     Sources
	generator   Analyzer
	presenter   *Presenter
	credentials CredentialKeeper
	interval    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates an Agent. credentials may be nil.
func New(logger *slog.Logger, sources Sources, generator Analyzer, presenter *Presenter, credentials CredentialKeeper, interval time.Duration) *Agent {
	return &Agent{
		logger:      logger,
		sources:     sources,
		generator:   generator,
		presenter:   presenter,
		credentials: credentials,
		interval:    interval,
		sleep:       sleepContext,
	}
}

// Run polls until ctx is cancelled. It refuses to start without any ready
// source, and stops with an error if a tick fails unexpectedly.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.preflight(); err != nil {
		return err
	}

	a.logger.Info("Agent started.", "interval", a.interval)
	for {
		if ctx.Err() != nil {
			a.logger.Info("Agent stopped by user.")
			return nil
		}
		if err := a.safeTick(ctx); err != nil {
			return err
		}

		a.logger.Info("Next check scheduled.", "in", a.interval)
		if err := a.sleep(ctx, a.interval); err != nil {
			a.logger.Info("Agent stopped by user.")
			return nil
		}
	}
}

// RunOnce performs a single tick with the same start-up checks as Run.
func (a *Agent) RunOnce(ctx context.Context) error {
	if err := a.preflight(); err != nil {
		return err
	}
	return a.safeTick(ctx)
}

func (a *Agent) preflight() error {
	if !a.sources.anyReady() {
		a.logger.Error("No Google service initialized. The agent cannot collect data.")
		return ErrNoSources
	}
	if !a.generator.Ready() {
		a.logger.Warn("Model not initialized. The agent can collect data but cannot generate suggestions.")
	}
	return nil
}

func (a *Agent) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Unexpected failure in polling loop.", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("unexpected failure in polling loop: %v", r)
		}
	}()
	a.Tick(ctx)
	return nil
}

// Tick runs one collect, generate and present cycle.
func (a *Agent) Tick(ctx context.Context) {
	logger := a.logger.With("tick", uuid.NewString())
	logger.Info("Starting polling tick.")

	if a.credentials != nil {
		if err := a.credentials.Ensure(ctx); err != nil {
			logger.Error("Could not refresh credential; sources may fail this tick.", "error", err)
		}
	}

	bundle := a.Collect(ctx)
	logger.Info("Context collected.", "events", len(bundle.Events), "emails", len(bundle.Emails), "files", len(bundle.Files))

	if !a.generator.Ready() {
		logger.Warn("Data collected, but no model is available to generate suggestions.")
		return
	}

	suggestion := a.generator.Analyze(ctx, bundle)
	kind := a.presenter.Present(suggestion)
	logger.Info("Polling tick finished.", "suggestion", kind.String())
}

// Collect queries every source in turn and assembles the bundle.
func (a *Agent) Collect(ctx context.Context) models.ContextBundle {
	var bundle models.ContextBundle

	contributing := 0
	for _, cal := range a.sources.Calendars {
		if cal == nil {
			continue
		}
		events := cal.Fetch(ctx)
		if len(events) > 0 {
			contributing++
		}
		bundle.Events = append(bundle.Events, events...)
	}
	if contributing > 1 {
		sort.SliceStable(bundle.Events, func(i, j int) bool {
			return bundle.Events[i].Start.Before(bundle.Events[j].Start)
		})
	}

	if a.sources.Mail != nil {
		bundle.Emails = a.sources.Mail.Fetch(ctx)
	}
	if a.sources.Files != nil {
		bundle.Files = a.sources.Files.Fetch(ctx)
	}
	return bundle
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
