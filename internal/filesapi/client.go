// Package filesapi is an HTTP client for the Files API server: paginated
// folder listings, file metadata, content fetches, multipart uploads and
// deletes. Provider credentials travel as request headers or fields built
// from the provider catalog; the CLI session itself is identified by the
// X-Credentials header on every request.
//
// Nothing is retried here except the create-to-update fallback in Upload.
package filesapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dabbu/dabbu-go/internal/apierr"
	"github.com/dabbu/dabbu-go/internal/drives"
	"github.com/dabbu/dabbu-go/internal/provider"
)

// DefaultUserAgent is sent when the caller supplies none.
const DefaultUserAgent = "dabbu-go/0.1"

// credentialsHeader identifies the CLI session to the Files API server.
const credentialsHeader = "X-Credentials"

// maxErrorBody caps how much of an error response body is read.
const maxErrorBody = 64 << 10

// Client talks to one Files API server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials string
	userAgent   string
	logger      *slog.Logger
}

// NewClient creates a Files API client. baseURL is the data endpoint root,
// for example "http://localhost:8080/files-api/v3/data".
func NewClient(baseURL string, httpClient *http.Client, credentials, userAgent string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  httpClient,
		credentials: credentials,
		userAgent:   userAgent,
		logger:      logger,
	}
}

// Request carries the per-drive parts of a Files API call: the provider id
// and the provider-required header and body fields.
type Request struct {
	ProviderID provider.ID
	Headers    map[string]string
	Fields     map[string]string
}

// NewRequest builds the request parts for drive d from the provider's
// catalog entry. Fields with an empty value are omitted.
func NewRequest(spec *provider.Spec, d *drives.Drive) Request {
	req := Request{
		ProviderID: spec.ID,
		Headers:    make(map[string]string),
		Fields:     make(map[string]string),
	}

	for _, f := range spec.RequestFields(provider.FieldInHeader) {
		if v := d.Value(f.From); v != "" {
			req.Headers[f.Name] = v
		}
	}

	for _, f := range spec.RequestFields(provider.FieldInBody) {
		if v := d.Value(f.From); v != "" {
			req.Fields[f.Name] = v
		}
	}

	return req
}

// itemPath builds the URL path for a folder, or a file within it when name
// is non-empty. The folder path travels as one escaped segment so that a
// folder listing and a file in the root never share a URL.
func itemPath(folder, name string) string {
	p := "/" + url.PathEscape(folder)
	if name != "" {
		p += "/" + url.PathEscape(name)
	}

	return p
}

// query builds the query string shared by all endpoints. Body fields are
// added for methods that carry no multipart body.
func (r *Request) query(withFields bool) url.Values {
	q := url.Values{}
	q.Set("providerId", string(r.ProviderID))

	if withFields {
		for k, v := range r.Fields {
			q.Set(k, v)
		}
	}

	return q
}

// do executes one request against the Files API. Non-2xx responses are
// read, closed and returned as *apierr.HTTPError. The caller closes the body
// on success.
func (c *Client) do(
	ctx context.Context,
	method, path string,
	q url.Values,
	req *Request,
	contentType string,
	body io.Reader,
) (*http.Response, error) {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("filesapi: creating request: %w", err)
	}

	httpReq.Header.Set(credentialsHeader, c.credentials)
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if req != nil {
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("filesapi: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("filesapi: %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	c.logger.Debug("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return nil, apierr.FromResponse(resp.StatusCode, errBody)
}
