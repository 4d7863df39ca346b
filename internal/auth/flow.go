package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/dabbu/dabbu-go/internal/drives"
	"github.com/dabbu/dabbu-go/internal/provider"
)

// Authorization flow errors.
var (
	ErrAuthorizationDenied = errors.New("auth: authorization denied")
	ErrStateMismatch       = errors.New("auth: OAuth2 state mismatch (possible CSRF)")
	ErrMissingCode         = errors.New("auth: callback missing authorization code")
	ErrInvalidRedirect     = errors.New("auth: redirect URI must be an http://localhost URI")
	ErrNoOAuth             = errors.New("auth: provider does not use OAuth2")
	ErrCallbackTimeout     = errors.New("auth: timed out waiting for the authorization callback")
)

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// DefaultCallbackTimeout bounds the wait for the browser redirect.
const DefaultCallbackTimeout = 5 * time.Minute

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// Flow runs the OAuth2 authorization-code flow for a new drive.
type Flow struct {
	registry   *drives.Registry
	catalog    *provider.Catalog
	httpClient *http.Client
	openURL    func(string) error
	logger     *slog.Logger
	now        func() time.Time

	// CallbackTimeout bounds the wait for the redirect. Zero means
	// DefaultCallbackTimeout.
	CallbackTimeout time.Duration
}

// NewFlow creates a Flow. openURL is called with the consent URL; the CLI
// uses it to launch the default browser. If it fails, the URL is printed to
// stderr instead.
func NewFlow(
	reg *drives.Registry,
	cat *provider.Catalog,
	httpClient *http.Client,
	openURL func(string) error,
	logger *slog.Logger,
) *Flow {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Flow{
		registry:   reg,
		catalog:    cat,
		httpClient: httpClient,
		openURL:    openURL,
		logger:     logger,
		now:        time.Now,
	}
}

// Authorize obtains and stores tokens for driveName:
//  1. Binds a listener on the host and port of the redirect URI
//  2. Opens the browser on the provider's consent page
//  3. Receives the redirect with the authorization code
//  4. Exchanges the code at the token endpoint
//  5. Saves access token, refresh token and expiry on the drive
//
// The drive's authMeta must already hold the client id and secret. Any failure
// aborts; credentials written by an earlier attempt are left in place.
func (f *Flow) Authorize(ctx context.Context, providerID provider.ID, driveName string) error {
	spec, ok := f.catalog.Lookup(providerID)
	if !ok || !spec.HasOAuth() {
		return fmt.Errorf("%w: %s", ErrNoOAuth, providerID)
	}

	d, err := f.registry.Get(driveName)
	if err != nil {
		return err
	}

	redirect := redirectURI(d.AuthMeta, spec.Auth)

	addr, callbackPath, err := listenAddress(redirect)
	if err != nil {
		return err
	}

	state, err := generateState()
	if err != nil {
		return fmt.Errorf("auth: generating state token: %w", err)
	}

	f.logger.Info("starting browser authorization",
		slog.String("drive", driveName),
		slog.String("provider", string(providerID)),
	)

	resultCh := make(chan callbackResult, 1)

	srv, err := startCallbackServer(ctx, addr, newCallbackHandler(callbackPath, state, resultCh), f.logger)
	if err != nil {
		return err
	}

	defer shutdownCallbackServer(srv, f.logger)

	cfg := &oauth2.Config{
		ClientID:     d.AuthMeta.ClientID,
		ClientSecret: d.AuthMeta.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       spec.Auth.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spec.Auth.AuthorizeURI,
			TokenURL: spec.Auth.TokenURI,
		},
	}

	launchBrowser(cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), f.openURL, f.logger)

	code, err := waitForCallback(ctx, resultCh, f.callbackTimeout())
	if err != nil {
		return err
	}

	f.logger.Info("received authorization code, exchanging for token")

	params := url.Values{
		paramClientID:     {cfg.ClientID},
		paramClientSecret: {cfg.ClientSecret},
		paramRedirectURI:  {redirect},
		paramCode:         {code},
		paramGrantType:    {grantAuthorizationCode},
	}

	tok, err := requestToken(ctx, f.httpClient, spec.Auth, params, f.now(), f.logger)
	if err != nil {
		return fmt.Errorf("auth: token exchange failed: %w", err)
	}

	if err := f.registry.SetAuth(driveName, authFromToken(tok, d.Auth.RefreshToken)); err != nil {
		return fmt.Errorf("auth: saving token: %w", err)
	}

	if d.AuthMeta.RedirectURI == "" {
		if err := f.registry.Set(driveName, "authMeta.redirectUri", redirect); err != nil {
			return fmt.Errorf("auth: saving redirect URI: %w", err)
		}
	}

	f.logger.Info("authorization successful",
		slog.String("drive", driveName),
		slog.Time("expiry", tok.Expiry),
	)

	return nil
}

func (f *Flow) callbackTimeout() time.Duration {
	if f.CallbackTimeout > 0 {
		return f.CallbackTimeout
	}

	return DefaultCallbackTimeout
}

// listenAddress extracts host:port and path from a localhost redirect URI.
func listenAddress(redirect string) (addr, path string, err error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidRedirect, err)
	}

	host := u.Hostname()
	if u.Scheme != "http" || (host != "localhost" && host != "127.0.0.1") {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidRedirect, redirect)
	}

	port := u.Port()
	if port == "" {
		port = "80"
	}

	path = u.Path
	if path == "" {
		path = "/"
	}

	return net.JoinHostPort(host, port), path, nil
}

// startCallbackServer binds addr and serves handler until shut down.
func startCallbackServer(
	ctx context.Context,
	addr string,
	handler http.Handler,
	logger *slog.Logger,
) (*http.Server, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("auth: binding callback listener on %s: %w", addr, err)
	}

	logger.Info("callback server listening", slog.String("addr", addr))

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Warn("callback server error", slog.String("error", serveErr.Error()))
		}
	}()

	return srv, nil
}

// callbackHandler resolves exactly once. Requests after the first get 410.
type callbackHandler struct {
	path     string
	state    string
	resultCh chan<- callbackResult
	once     sync.Once
}

func newCallbackHandler(path, state string, resultCh chan<- callbackResult) *callbackHandler {
	return &callbackHandler{path: path, state: state, resultCh: resultCh}
}

func (h *callbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != h.path {
		http.NotFound(w, r)

		return
	}

	handled := false

	h.once.Do(func() {
		handled = true
		h.resultCh <- h.handle(w, r)
	})

	if !handled {
		http.Error(w, "Authorization already completed", http.StatusGone)
	}
}

// handle validates the redirect and writes the page shown in the browser.
func (h *callbackHandler) handle(w http.ResponseWriter, r *http.Request) callbackResult {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		desc := q.Get("error_description")
		writePage(w, http.StatusBadRequest, "Authorization failed", errParam+": "+desc)

		return callbackResult{err: fmt.Errorf("%w: %s: %s", ErrAuthorizationDenied, errParam, desc)}
	}

	// Some providers omit state on the redirect; only a present, different
	// value is rejected.
	if got := q.Get("state"); got != "" && got != h.state {
		writePage(w, http.StatusBadRequest, "Authorization failed", "Invalid state parameter.")

		return callbackResult{err: ErrStateMismatch}
	}

	code := q.Get("code")
	if code == "" {
		writePage(w, http.StatusBadRequest, "Authorization failed", "Missing authorization code.")

		return callbackResult{err: ErrMissingCode}
	}

	writePage(w, http.StatusOK, "Authentication successful",
		"You can close this window and return to the terminal.")

	return callbackResult{code: code}
}

func writePage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<html><body><h1>%s</h1><p>%s</p></body></html>",
		html.EscapeString(title), html.EscapeString(message))
}

// shutdownCallbackServer gracefully shuts down the callback HTTP server.
func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the auth URL. If it fails, prints the URL
// to stderr so the user can copy-paste it.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	logger.Info("opening browser for authorization")

	if openURL == nil {
		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)

		return
	}

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

// waitForCallback blocks until the callback fires, the timeout elapses or
// ctx is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-timer.C:
		return "", ErrCallbackTimeout
	case <-ctx.Done():
		return "", fmt.Errorf("auth: browser authorization canceled: %w", ctx.Err())
	}
}

// generateState produces a random hex string for the OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
