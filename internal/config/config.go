package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// PlaceholderAPIKey is the value shipped in sample env files. It is treated as unset.
const PlaceholderAPIKey = "SUA_CHAVE_GEMINI_AQUI"

var (
	// ErrConfigMissing indicates a required local file or setting is absent.
	ErrConfigMissing = errors.New("required configuration missing")

	// ErrAPIKeyMissing indicates GOOGLE_API_KEY is unset or still holds the placeholder.
	ErrAPIKeyMissing = fmt.Errorf("%w: GOOGLE_API_KEY is not set or still contains the placeholder", ErrConfigMissing)
)

// Read-only scopes requested from the user.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/drive.readonly",
}

// Duration wraps time.Duration so it can be written as "15m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// CalDAV configures the optional CalDAV calendar source. It is disabled when URL is empty.
type CalDAV struct {
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"-"`
	Calendar string `toml:"calendar"`
}

// Enabled reports whether a CalDAV server was configured.
func (c CalDAV) Enabled() bool {
	return c.URL != ""
}

// Config is the complete runtime configuration of the agent.
type Config struct {
	ClientSecretsFile string   `toml:"client_secrets_file"`
	CredentialsFile   string   `toml:"credentials_file"`
	Scopes            []string `toml:"scopes"`
	ConsentTimeout    Duration `toml:"consent_timeout"`

	PollInterval   Duration `toml:"poll_interval"`
	CalendarWindow Duration `toml:"calendar_window"`
	MailCount      int64    `toml:"mail_count"`
	DriveLookback  Duration `toml:"drive_lookback"`
	DriveLimit     int64    `toml:"drive_limit"`

	Model      string `toml:"model"`
	Structured bool   `toml:"structured"`
	APIKey     string `toml:"-"`

	LogLevel string `toml:"log_level"`

	CalDAV CalDAV `toml:"caldav"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ClientSecretsFile: "client_secrets.json",
		CredentialsFile:   "credentials.json",
		Scopes:            append([]string(nil), DefaultScopes...),
		ConsentTimeout:    Duration{5 * time.Minute},
		PollInterval:      Duration{15 * time.Minute},
		CalendarWindow:    Duration{24 * time.Hour},
		MailCount:         10,
		DriveLookback:     Duration{30 * 24 * time.Hour},
		DriveLimit:        10,
		Model:             "gemini-2.0-flash",
		Structured:        true,
		LogLevel:          "info",
	}
}

// Load builds the configuration from defaults, the optional TOML file at path
// and the environment, in that order. A missing file is not an error unless
// the path was given explicitly.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		case os.IsNotExist(err):
			return Config{}, fmt.Errorf("%w: config file %s not found", ErrConfigMissing, path)
		default:
			return Config{}, fmt.Errorf("unable to read config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("PROACTIVE_POLL_INTERVAL"); v != "" {
		if err := c.PollInterval.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("PROACTIVE_POLL_INTERVAL: %w", err)
		}
	}
	if v := os.Getenv("CALDAV_URL"); v != "" {
		c.CalDAV.URL = v
	}
	if v := os.Getenv("CALDAV_USERNAME"); v != "" {
		c.CalDAV.Username = v
	}
	if v := os.Getenv("CALDAV_PASSWORD"); v != "" {
		c.CalDAV.Password = v
	}
	if v := os.Getenv("CALDAV_CALENDAR"); v != "" {
		c.CalDAV.Calendar = v
	}
	return nil
}

// ValidateAPIKey fails with ErrAPIKeyMissing when no usable Gemini key is configured.
func (c Config) ValidateAPIKey() error {
	if c.APIKey == "" || c.APIKey == PlaceholderAPIKey {
		return ErrAPIKeyMissing
	}
	return nil
}

// Validate checks values that would make the polling loop misbehave.
func (c Config) Validate() error {
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval.Duration)
	}
	if c.MailCount <= 0 || c.DriveLimit <= 0 {
		return fmt.Errorf("mail_count and drive_limit must be positive")
	}
	if len(c.Scopes) == 0 {
		return fmt.Errorf("%w: no OAuth scopes configured", ErrConfigMissing)
	}
	if c.CalDAV.Enabled() && c.CalDAV.Calendar == "" {
		return fmt.Errorf("%w: caldav.calendar is required when caldav.url is set", ErrConfigMissing)
	}
	return nil
}
