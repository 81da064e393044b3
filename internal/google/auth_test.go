package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"proactive/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type memStore struct {
	cred  *Credential
	saves int
}

func (m *memStore) Load() (*Credential, error) {
	if m.cred == nil {
		return nil, os.ErrNotExist
	}
	return m.cred, nil
}

func (m *memStore) Save(c *Credential) error {
	m.saves++
	m.cred = c
	return nil
}

type fakeConsent struct {
	tok   *oauth2.Token
	err   error
	calls int
}

func (f *fakeConsent) Run(context.Context, *oauth2.Config) (*oauth2.Token, error) {
	f.calls++
	return f.tok, f.err
}

// tokenEndpoint serves the OAuth token URL. ok controls whether refreshes succeed.
func tokenEndpoint(t *testing.T, ok bool) (*oauth2.Config, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "fresh-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)

	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		Scopes:       config.DefaultScopes,
	}, &hits
}

func validToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}
}

func expiredToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "old", RefreshToken: "refresh", Expiry: time.Now().Add(-time.Hour)}
}

func TestAuthenticate_ValidCredentialIsIdempotent(t *testing.T) {
	cfg, hits := tokenEndpoint(t, true)
	store := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, store.Save(&Credential{Token: validToken(), Scopes: config.DefaultScopes}))

	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	info, err := os.Stat(store.Path())
	require.NoError(t, err)

	consent := &fakeConsent{}
	auth := NewAuthenticator(discardLogger(), cfg, store, consent)

	for i := 0; i < 2; i++ {
		tok, err := auth.Authenticate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "access", tok.AccessToken)
	}

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	infoAfter, err := os.Stat(store.Path())
	require.NoError(t, err)

	assert.Equal(t, 0, consent.calls)
	assert.Equal(t, 0, *hits)
	assert.Equal(t, before, after)
	assert.Equal(t, info.ModTime(), infoAfter.ModTime())
}

func TestAuthenticate_RefreshesExpiredCredential(t *testing.T) {
	cfg, hits := tokenEndpoint(t, true)
	store := &memStore{cred: &Credential{Token: expiredToken(), Scopes: config.DefaultScopes}}
	consent := &fakeConsent{}

	tok, err := NewAuthenticator(discardLogger(), cfg, store, consent).Authenticate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fresh-access", tok.AccessToken)
	assert.Equal(t, "refresh", tok.RefreshToken)
	assert.Equal(t, 1, *hits)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, "fresh-access", store.cred.Token.AccessToken)
	assert.Equal(t, 0, consent.calls)
}

func TestAuthenticate_RefreshFailureFallsBackToConsent(t *testing.T) {
	cfg, _ := tokenEndpoint(t, false)
	store := &memStore{cred: &Credential{Token: expiredToken(), Scopes: config.DefaultScopes}}
	consent := &fakeConsent{tok: validToken()}

	tok, err := NewAuthenticator(discardLogger(), cfg, store, consent).Authenticate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "access", tok.AccessToken)
	assert.Equal(t, 1, consent.calls)
	assert.Equal(t, 1, store.saves)
}

func TestAuthenticate_NoCredentialRunsConsent(t *testing.T) {
	cfg, _ := tokenEndpoint(t, true)
	store := &memStore{}
	consent := &fakeConsent{tok: validToken()}

	_, err := NewAuthenticator(discardLogger(), cfg, store, consent).Authenticate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, consent.calls)
	require.NotNil(t, store.cred)
	assert.Equal(t, config.DefaultScopes, store.cred.Scopes)
}

func TestAuthenticate_MissingScopesRunsConsent(t *testing.T) {
	cfg, _ := tokenEndpoint(t, true)
	store := &memStore{cred: &Credential{Token: validToken(), Scopes: config.DefaultScopes[:1]}}
	consent := &fakeConsent{tok: validToken()}

	_, err := NewAuthenticator(discardLogger(), cfg, store, consent).Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, consent.calls)
}

func TestAuthenticate_ConsentFailureDoesNotWrite(t *testing.T) {
	cfg, _ := tokenEndpoint(t, true)
	store := &memStore{}
	consent := &fakeConsent{err: errors.New("user cancelled")}

	_, err := NewAuthenticator(discardLogger(), cfg, store, consent).Authenticate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.Contains(t, err.Error(), "user cancelled")
	assert.Equal(t, 0, store.saves)
}

func TestLoadOAuthConfig(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadOAuthConfig(filepath.Join(dir, "client_secrets.json"), config.DefaultScopes)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClientSecretsMissing)
	assert.ErrorIs(t, err, config.ErrConfigMissing)

	path := filepath.Join(dir, "client_secrets.json")
	secrets := `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"s",` +
		`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
		`"redirect_uris":["http://localhost"]}}`
	require.NoError(t, os.WriteFile(path, []byte(secrets), 0o600))

	cfg, err := LoadOAuthConfig(path, config.DefaultScopes)
	require.NoError(t, err)
	assert.Equal(t, "id.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, config.DefaultScopes, cfg.Scopes)
}

func TestFileStore_SaveIsAtomicAndPrivate(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "credentials.json"))

	require.NoError(t, store.Save(&Credential{Token: validToken(), Scopes: []string{"a"}}))
	require.NoError(t, store.Save(&Credential{Token: expiredToken(), Scopes: []string{"b"}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files are left behind")

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cred, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "old", cred.Token.AccessToken)
	assert.Equal(t, []string{"b"}, cred.Scopes)
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
}

func TestSession_Ensure(t *testing.T) {
	cfg, hits := tokenEndpoint(t, true)
	store := &memStore{}

	s := NewSession(context.Background(), discardLogger(), cfg, store, validToken())
	require.NoError(t, s.Ensure(context.Background()))
	assert.Equal(t, 0, *hits)

	s = NewSession(context.Background(), discardLogger(), cfg, store,
		&oauth2.Token{AccessToken: "soon", RefreshToken: "refresh", Expiry: time.Now().Add(time.Minute)})
	require.NoError(t, s.Ensure(context.Background()))
	assert.Equal(t, 1, *hits)
	assert.Equal(t, 1, store.saves)

	tok, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", tok.AccessToken)
}

func TestSession_TokenWithoutRefreshToken(t *testing.T) {
	cfg, _ := tokenEndpoint(t, true)
	s := NewSession(context.Background(), discardLogger(), cfg, &memStore{},
		&oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Hour)})

	_, err := s.Token()
	assert.ErrorIs(t, err, ErrAuthFailure)
}

func TestLoopbackConsent_Run(t *testing.T) {
	cfg, _ := tokenEndpoint(t, true)

	// Stand in for the browser: follow the redirect with a code.
	browser := func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		assert.Equal(t, "offline", q.Get("access_type"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))

		go func() {
			resp, err := http.Get(q.Get("redirect_uri") + "?code=the-code&state=" + url.QueryEscape(q.Get("state")))
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	var out strings.Builder
	consent := &LoopbackConsent{Timeout: 5 * time.Second, Out: &out, OpenBrowser: browser, Logger: discardLogger()}

	tok, err := consent.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", tok.AccessToken)
	assert.Contains(t, out.String(), "/auth?")
}

func TestCallbackServer_StateMismatch(t *testing.T) {
	srv := NewCallbackServer(0, "expected")
	require.NoError(t, srv.Start())
	defer srv.Stop()

	resp, err := http.Get(srv.RedirectURI() + "?code=c&state=other")
	require.NoError(t, err)
	resp.Body.Close()

	_, err = srv.WaitForCode(context.Background(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
}

func TestCallbackServer_Cancelled(t *testing.T) {
	srv := NewCallbackServer(0, "expected")
	require.NoError(t, srv.Start())
	defer srv.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := srv.WaitForCode(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
