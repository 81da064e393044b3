package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"proactive/internal/agent"
	"proactive/internal/config"
	"proactive/internal/gemini"
	"proactive/internal/google"
	"proactive/internal/icloud"
	"proactive/internal/models"
	"proactive/internal/source"
	"proactive/internal/suggest"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"golang.org/x/term"
	"google.golang.org/api/option"
)

const defaultConfigFile = "proactive.toml"

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "proactive",
		Usage: "Watch Calendar, Gmail and Drive activity and print proactive suggestions.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: defaultConfigFile, Usage: "Path to the TOML configuration file."},
		},
		Commands: []*cli.Command{
			authCommand(),
			runCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		switch {
		case errors.Is(err, config.ErrConfigMissing):
			slog.Error("Required configuration is missing", "error", err)
		case errors.Is(err, google.ErrAuthFailure):
			slog.Error("Google authorization failed", "error", err)
		default:
			slog.Error("Application failed", "error", err)
		}
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"), c.IsSet("config"))
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize read-only access to Google Calendar, Gmail and Drive.",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)
			logger.Info("Starting Google authentication flow.")

			if _, _, err := authenticate(c.Context, logger, cfg); err != nil {
				return err
			}
			logger.Info("Successfully authenticated and saved credential.", "file", cfg.CredentialsFile)
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the proactive polling loop.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run a single polling cycle and exit."},
			&cli.DurationFlag{Name: "interval", Usage: "Polling interval. Overrides the configuration file."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("interval") {
				if c.Duration("interval") <= 0 {
					return fmt.Errorf("--interval must be positive")
				}
				cfg.PollInterval.Duration = c.Duration("interval")
			}
			logger := setupLogger(cfg.LogLevel)

			if err := cfg.ValidateAPIKey(); err != nil {
				return fmt.Errorf("%w: set GOOGLE_API_KEY in the environment or a .env file", err)
			}

			a, err := buildAgent(c.Context, logger, cfg)
			if err != nil {
				return err
			}

			if c.Bool("once") {
				logger.Info("Running a single polling cycle.")
				return a.RunOnce(c.Context)
			}
			return a.Run(c.Context)
		},
	}
}

// authenticate returns a valid credential, running the consent flow when no
// stored credential can be reused.
func authenticate(ctx context.Context, logger *slog.Logger, cfg config.Config) (*oauth2.Config, *oauth2.Token, error) {
	oauthCfg, err := google.LoadOAuthConfig(cfg.ClientSecretsFile, cfg.Scopes)
	if err != nil {
		return nil, nil, err
	}
	store := google.NewFileStore(cfg.CredentialsFile)
	consent := &google.LoopbackConsent{
		Timeout: cfg.ConsentTimeout.Duration,
		Out:     os.Stdout,
		Logger:  logger,
	}
	// Headless sessions only get the printed link.
	if term.IsTerminal(int(os.Stdin.Fd())) {
		consent.OpenBrowser = google.OpenBrowser
	}
	tok, err := google.NewAuthenticator(logger, oauthCfg, store, consent).Authenticate(ctx)
	if err != nil {
		return nil, nil, err
	}
	return oauthCfg, tok, nil
}

func buildAgent(ctx context.Context, logger *slog.Logger, cfg config.Config) (*agent.Agent, error) {
	oauthCfg, tok, err := authenticate(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}

	session := google.NewSession(ctx, logger, oauthCfg, google.NewFileStore(cfg.CredentialsFile), tok)
	opts := []option.ClientOption{option.WithTokenSource(session)}

	calClient, err := google.NewCalendarClient(ctx, logger, cfg.CalendarWindow.Duration, opts...)
	if err != nil {
		logger.Error("Failed to create Calendar client", "error", err)
	}
	mailClient, err := google.NewMailClient(ctx, logger, cfg.MailCount, opts...)
	if err != nil {
		logger.Error("Failed to create Gmail client", "error", err)
	}
	driveClient, err := google.NewDriveClient(ctx, logger, cfg.DriveLookback.Duration, cfg.DriveLimit, opts...)
	if err != nil {
		logger.Error("Failed to create Drive client", "error", err)
	}

	sources := agent.Sources{
		Calendars: []source.Source[models.CalendarEvent]{google.CalendarSource(logger, calClient)},
		Mail:      google.MailSource(logger, mailClient),
		Files:     google.DriveSource(logger, driveClient),
	}

	if cfg.CalDAV.Enabled() {
		caldavClient, err := icloud.NewClient(ctx, logger, cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password, cfg.CalDAV.Calendar, cfg.CalendarWindow.Duration)
		if err != nil {
			logger.Error("Failed to create CalDAV client", "error", err)
		} else {
			sources.Calendars = append(sources.Calendars, icloud.Source(logger, caldavClient))
		}
	}

	// A failed client must reach the generator as an untyped nil.
	var model suggest.Model
	client, err := gemini.NewClient(ctx, logger, gemini.Config{APIKey: cfg.APIKey, Model: cfg.Model})
	if err != nil {
		logger.Error("Failed to configure Gemini", "error", err)
	} else {
		model = client
	}
	generator := suggest.NewGenerator(logger, model, cfg.Structured)

	return agent.New(logger, sources, generator, agent.NewPresenter(os.Stdout, logger), session, cfg.PollInterval.Duration), nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}
