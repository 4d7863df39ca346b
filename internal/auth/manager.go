package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dabbu/dabbu-go/internal/drives"
	"github.com/dabbu/dabbu-go/internal/provider"
)

// TokenManager refreshes a drive's access token when it has expired. It is
// safe to call EnsureFresh before every authenticated request; concurrent
// calls for the same drive share one refresh.
type TokenManager struct {
	registry   *drives.Registry
	catalog    *provider.Catalog
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	refreshes  singleflight.Group
}

// NewTokenManager creates a TokenManager. A nil httpClient uses
// http.DefaultClient; a nil logger uses slog.Default().
func NewTokenManager(
	reg *drives.Registry,
	cat *provider.Catalog,
	httpClient *http.Client,
	logger *slog.Logger,
) *TokenManager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &TokenManager{
		registry:   reg,
		catalog:    cat,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// EnsureFresh refreshes the drive's access token if it has expired. It does
// nothing for providers without OAuth2 or drives without a refresh token.
// Token endpoint failures are returned unchanged and not retried.
func (m *TokenManager) EnsureFresh(ctx context.Context, driveName string) error {
	d, err := m.registry.Get(driveName)
	if err != nil {
		return err
	}

	spec, ok := m.catalog.Lookup(d.Provider)
	if !ok || !spec.HasOAuth() || d.Auth.RefreshToken == "" {
		return nil
	}

	if !d.Auth.Expired(m.now()) {
		return nil
	}

	_, err, shared := m.refreshes.Do(driveName, func() (any, error) {
		// A caller that read the drive before another flight stored its
		// token must not refresh again.
		cur, err := m.registry.Get(driveName)
		if err != nil {
			return nil, err
		}

		if !cur.Auth.Expired(m.now()) {
			return nil, nil
		}

		return nil, m.refresh(ctx, cur, spec.Auth)
	})
	if shared {
		m.logger.Debug("joined in-flight token refresh", slog.String("drive", driveName))
	}

	return err
}

func (m *TokenManager) refresh(ctx context.Context, d drives.Drive, details *provider.AuthDetails) error {
	m.logger.Info("refreshing access token",
		slog.String("drive", d.Name),
		slog.String("provider", string(d.Provider)),
	)

	params := url.Values{
		paramClientID:     {d.AuthMeta.ClientID},
		paramClientSecret: {d.AuthMeta.ClientSecret},
		paramRedirectURI:  {redirectURI(d.AuthMeta, details)},
		paramRefreshToken: {d.Auth.RefreshToken},
		paramGrantType:    {grantRefreshToken},
	}

	tok, err := requestToken(ctx, m.httpClient, details, params, m.now(), m.logger)
	if err != nil {
		return fmt.Errorf("auth: refreshing token for drive %s: %w", d.Name, err)
	}

	a := authFromToken(tok, d.Auth.RefreshToken)
	if err := m.registry.SetAuth(d.Name, a); err != nil {
		return fmt.Errorf("auth: saving refreshed token for drive %s: %w", d.Name, err)
	}

	m.logger.Info("access token refreshed",
		slog.String("drive", d.Name),
		slog.Time("expiry", tok.Expiry),
	)

	return nil
}
