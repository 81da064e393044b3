package google

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ConsentFlow obtains a brand new token by asking the user.
type ConsentFlow interface {
	Run(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)
}

// CallbackServer receives the OAuth redirect on a loopback address.
type CallbackServer struct {
	mu            sync.Mutex
	port          int
	expectedState string
	codeChan      chan string
	errChan       chan error
	server        *http.Server
	listener      net.Listener
}

// NewCallbackServer creates a server expecting the given state. Port 0 picks a free port.
func NewCallbackServer(port int, expectedState string) *CallbackServer {
	return &CallbackServer{
		port:          port,
		expectedState: expectedState,
		codeChan:      make(chan string, 1),
		errChan:       make(chan error, 1),
	}
}

// Start begins listening on 127.0.0.1.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.sendErr(err)
		}
	}()
	return nil
}

func (s *CallbackServer) sendErr(err error) {
	select {
	case s.errChan <- err:
	default:
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if errParam := q.Get("error"); errParam != "" {
		s.sendErr(fmt.Errorf("authorization denied: %s %s", errParam, q.Get("error_description")))
		fmt.Fprint(w, callbackPage("Authorization failed: "+html.EscapeString(errParam)))
		return
	}
	if q.Get("state") != s.expectedState {
		s.sendErr(errors.New("state mismatch in authorization callback"))
		fmt.Fprint(w, callbackPage("Authorization failed: invalid state parameter"))
		return
	}
	code := q.Get("code")
	if code == "" {
		s.sendErr(errors.New("no authorization code received"))
		fmt.Fprint(w, callbackPage("Authorization failed: no code received"))
		return
	}

	select {
	case s.codeChan <- code:
	default:
	}
	fmt.Fprint(w, callbackPage("Authorization successful! You can close this window."))
}

// WaitForCode blocks until a code arrives, the callback reports an error,
// the timeout elapses or ctx is cancelled.
func (s *CallbackServer) WaitForCode(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case code := <-s.codeChan:
		return code, nil
	case err := <-s.errChan:
		return "", err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errors.New("timeout waiting for authorization callback")
		}
		return "", ctx.Err()
	}
}

// Stop shuts the server down.
func (s *CallbackServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// RedirectURI returns the loopback redirect registered with the authorization request.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", s.port)
}

func callbackPage(msg string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head><title>proactive</title></head>`+
		`<body style="font-family:sans-serif;text-align:center;margin-top:20vh"><h1>%s</h1></body></html>`, msg)
}

// LoopbackConsent is the installed-app consent flow: it prints the
// authorization URL, tries to open a browser and waits for the redirect.
type LoopbackConsent struct {
	Timeout     time.Duration
	Out         io.Writer
	OpenBrowser func(url string) error
	Logger      *slog.Logger
}

// Run implements ConsentFlow.
func (c *LoopbackConsent) Run(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	state := uuid.NewString()
	srv := NewCallbackServer(0, state)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	defer srv.Stop()

	conf := *cfg
	conf.RedirectURL = srv.RedirectURI()
	verifier := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce, oauth2.S256ChallengeOption(verifier))

	fmt.Fprintf(c.Out, "Open the following link in your browser to authorize access:\n%s\n", authURL)
	if c.OpenBrowser != nil {
		if err := c.OpenBrowser(authURL); err != nil && c.Logger != nil {
			c.Logger.Debug("Could not open browser", "error", err)
		}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	code, err := srv.WaitForCode(ctx, timeout)
	if err != nil {
		return nil, err
	}

	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("unable to exchange authorization code: %w", err)
	}
	return tok, nil
}

// OpenBrowser opens url in the default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
