package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// refreshMargin is how close to expiry a token may get before Ensure refreshes it.
const refreshMargin = 5 * time.Minute

// LoadOAuthConfig reads the client secrets file downloaded from Google Cloud Console.
func LoadOAuthConfig(path string, scopes []string) (*oauth2.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s. Download it from Google Cloud Console (APIs & Services > Credentials) and place it next to the binary", ErrClientSecretsMissing, path)
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	return cfg, nil
}

// Authenticator produces a usable credential, refreshing or asking for consent as needed.
type Authenticator struct {
	config  *oauth2.Config
	store   CredentialStore
	consent ConsentFlow
	logger  *slog.Logger
}

// NewAuthenticator creates an Authenticator. The scopes requested are those of cfg.
func NewAuthenticator(logger *slog.Logger, cfg *oauth2.Config, store CredentialStore, consent ConsentFlow) *Authenticator {
	return &Authenticator{config: cfg, store: store, consent: consent, logger: logger}
}

// Authenticate returns a valid token. The store is written only after a
// successful refresh or consent; a token that is already valid is returned untouched.
func (a *Authenticator) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	cred, err := a.store.Load()
	switch {
	case err == nil:
		a.logger.Info("Loaded stored credential.")
	case errors.Is(err, os.ErrNotExist):
		a.logger.Info("No stored credential found.")
	default:
		a.logger.Warn("Could not load stored credential, ignoring it.", "error", err)
		cred = nil
	}

	if cred != nil && !cred.Covers(a.config.Scopes) {
		a.logger.Warn("Stored credential lacks required scopes, asking for consent again.")
		cred = nil
	}

	if cred != nil && cred.Token.Valid() {
		return cred.Token, nil
	}

	if cred != nil && cred.Token.RefreshToken != "" {
		a.logger.Info("Stored credential expired, refreshing.")
		tok, err := refresh(ctx, a.config, cred.Token)
		if err == nil {
			if err := a.persist(tok); err != nil {
				return nil, err
			}
			a.logger.Info("Credential refreshed.")
			return tok, nil
		}
		a.logger.Warn("Could not refresh credential.", "error", err)
	}

	a.logger.Info("Starting OAuth 2.0 consent flow.")
	tok, err := a.consent.Run(ctx, a.config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	if !tok.Valid() {
		return nil, fmt.Errorf("%w: consent flow returned an invalid token", ErrAuthFailure)
	}
	if err := a.persist(tok); err != nil {
		return nil, err
	}
	a.logger.Info("Consent flow completed, credential saved.")
	return tok, nil
}

func (a *Authenticator) persist(tok *oauth2.Token) error {
	if err := a.store.Save(&Credential{Token: tok, Scopes: a.config.Scopes}); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// refresh exchanges the refresh token of tok for a new access token.
func refresh(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) (*oauth2.Token, error) {
	fresh, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		return nil, err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	return fresh, nil
}

// Session holds the credential of the running process. Ensure refreshes it at
// tick boundaries; Token serves API clients and refreshes only as a fallback.
type Session struct {
	mu     sync.Mutex
	ctx    context.Context
	config *oauth2.Config
	store  CredentialStore
	token  *oauth2.Token
	logger *slog.Logger
	now    func() time.Time
}

// NewSession starts a session from an authenticated token.
func NewSession(ctx context.Context, logger *slog.Logger, cfg *oauth2.Config, store CredentialStore, tok *oauth2.Token) *Session {
	return &Session{ctx: ctx, config: cfg, store: store, token: tok, logger: logger, now: time.Now}
}

// Ensure refreshes the token if it expires within the refresh margin.
func (s *Session) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Expiry.IsZero() || s.token.Expiry.After(s.now().Add(refreshMargin)) {
		return nil
	}
	return s.refreshLocked(ctx)
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Valid() {
		return s.token, nil
	}
	if err := s.refreshLocked(s.ctx); err != nil {
		return nil, err
	}
	return s.token, nil
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.token.RefreshToken == "" {
		return fmt.Errorf("%w: credential expired and has no refresh token", ErrAuthFailure)
	}
	tok, err := refresh(ctx, s.config, s.token)
	if err != nil {
		return fmt.Errorf("failed to refresh credential: %w", err)
	}
	s.token = tok
	if err := s.store.Save(&Credential{Token: tok, Scopes: s.config.Scopes}); err != nil {
		s.logger.Error("Failed to save refreshed credential", "error", err)
	} else {
		s.logger.Info("Credential refreshed and saved.", "expiry", tok.Expiry)
	}
	return nil
}
