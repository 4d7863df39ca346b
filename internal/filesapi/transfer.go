package filesapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/dabbu/dabbu-go/internal/apierr"
)

// contentField is the multipart field holding the file bytes.
const contentField = "content"

// Fetch streams the bytes behind a content URI to w. authorization, when
// non-empty, is sent as the Authorization header. The URI may carry
// embedded credentials and is never logged. Returns the number of bytes
// written; on a streaming failure the bytes already written stay in w.
func (c *Client) Fetch(ctx context.Context, contentURI, authorization string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURI, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("filesapi: creating content request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("filesapi: fetching content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort read for error message

		return 0, apierr.FromResponse(resp.StatusCode, errBody)
	}

	n, copyErr := io.Copy(w, resp.Body)
	if copyErr != nil {
		c.logger.Error("streaming content failed",
			slog.String("error", copyErr.Error()),
			slog.Int64("bytes_before_error", n),
		)

		return n, fmt.Errorf("filesapi: streaming content: %w", copyErr)
	}

	return n, nil
}

// Upload creates name in folder from the local file at localPath. When the
// server reports the file already exists (409), the same request is sent
// once more as a PUT that updates it; the conflict is never returned.
func (c *Client) Upload(ctx context.Context, req Request, folder, name, localPath string) error {
	c.logger.Info("uploading file",
		slog.String("folder_path", folder),
		slog.String("file_name", name),
	)

	err := c.sendMultipart(ctx, http.MethodPost, req, folder, name, localPath)
	if err == nil || !errors.Is(err, apierr.ErrConflict) {
		return err
	}

	c.logger.Debug("file exists, updating instead",
		slog.String("folder_path", folder),
		slog.String("file_name", name),
	)

	return c.sendMultipart(ctx, http.MethodPut, req, folder, name, localPath)
}

// sendMultipart streams the local file and the provider's body fields as a
// multipart/form-data body. The file is reopened for every call, so a
// request can be re-sent.
func (c *Client) sendMultipart(ctx context.Context, method string, req Request, folder, name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("filesapi: opening %s: %w", localPath, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, req.Fields, name, f))
	}()

	resp, err := c.do(ctx, method, itemPath(folder, name), req.query(false), &req, mw.FormDataContentType(), pr)

	// Unblock the writer if the request ended before draining the body.
	pr.Close()

	if err != nil {
		return err
	}

	resp.Body.Close()

	return nil
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, name string, content io.Reader) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile(contentField, name)
	if err != nil {
		return err
	}

	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("filesapi: reading upload content: %w", err)
	}

	return mw.Close()
}
