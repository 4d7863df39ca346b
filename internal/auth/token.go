// Package auth keeps per-drive OAuth2 credentials usable: TokenManager
// refreshes expired access tokens before authenticated requests, and Flow
// runs the one-time authorization-code exchange when a drive is created.
//
// Providers disagree on where client credentials go in a token request, so
// token endpoint calls are built here rather than through oauth2.Config.Exchange,
// which only knows form bodies. The catalog declares one placement per
// provider: query parameters, a JSON body or a form body.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/dabbu/dabbu-go/internal/apierr"
	"github.com/dabbu/dabbu-go/internal/drives"
	"github.com/dabbu/dabbu-go/internal/provider"
)

// ErrEmptyToken is returned when a token endpoint answers 2xx without an
// access token.
var ErrEmptyToken = errors.New("auth: token response has no access_token")

// maxTokenResponse caps how much of a token endpoint response is read.
const maxTokenResponse = 1 << 20

// Token request parameter names.
const (
	paramClientID     = "client_id"
	paramClientSecret = "client_secret"
	paramRedirectURI  = "redirect_uri"
	paramGrantType    = "grant_type"
	paramRefreshToken = "refresh_token"
	paramCode         = "code"

	grantRefreshToken      = "refresh_token"
	grantAuthorizationCode = "authorization_code"
)

// tokenResponse is the RFC 6749 section 5.1 success body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// requestToken POSTs params to the token endpoint using the provider's
// credential placement. Non-2xx responses come back as *apierr.HTTPError.
func requestToken(
	ctx context.Context,
	httpClient *http.Client,
	details *provider.AuthDetails,
	params url.Values,
	now time.Time,
	logger *slog.Logger,
) (*oauth2.Token, error) {
	req, err := newTokenRequest(ctx, details, params)
	if err != nil {
		return nil, err
	}

	logger.Debug("token endpoint request",
		slog.String("grant_type", params.Get(paramGrantType)),
		slog.String("placement", string(details.SendAuthMetadataIn)),
	)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	if err != nil {
		return nil, fmt.Errorf("auth: reading token response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		logger.Debug("token endpoint error", slog.Int("status", resp.StatusCode))

		return nil, apierr.FromResponse(resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("auth: decoding token response: %w", err)
	}

	if tr.AccessToken == "" {
		return nil, ErrEmptyToken
	}

	return &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
		Expiry:       now.Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

func newTokenRequest(ctx context.Context, details *provider.AuthDetails, params url.Values) (*http.Request, error) {
	var (
		target      = details.TokenURI
		body        io.Reader
		contentType string
	)

	switch details.SendAuthMetadataIn {
	case provider.InQuery:
		u, err := url.Parse(details.TokenURI)
		if err != nil {
			return nil, fmt.Errorf("auth: parsing token URI: %w", err)
		}

		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}

		u.RawQuery = q.Encode()
		target = u.String()
	case provider.InJSONBody:
		flat := make(map[string]string, len(params))
		for k := range params {
			flat[k] = params.Get(k)
		}

		data, err := json.Marshal(flat)
		if err != nil {
			return nil, fmt.Errorf("auth: encoding token request: %w", err)
		}

		body = bytes.NewReader(data)
		contentType = "application/json"
	case provider.InFormBody:
		body = strings.NewReader(params.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		return nil, fmt.Errorf("auth: unknown credential placement %q", details.SendAuthMetadataIn)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, fmt.Errorf("auth: creating token request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return req, nil
}

// defaultTokenType prefixes access tokens whose response has no token_type.
const defaultTokenType = "Bearer"

// authFromToken converts a token response into stored credentials. The
// token type is stored as sent. The old refresh token is kept when the
// provider did not issue a new one.
func authFromToken(tok *oauth2.Token, previousRefresh string) drives.Auth {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = defaultTokenType
	}

	return drives.Auth{
		AccessToken:  tokenType + " " + tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    tok.Expiry.UnixMilli(),
	}
}

// redirectURI picks the drive's registered redirect URI over the catalog's.
func redirectURI(meta drives.AuthMeta, details *provider.AuthDetails) string {
	if meta.RedirectURI != "" {
		return meta.RedirectURI
	}

	return details.RedirectURI
}
