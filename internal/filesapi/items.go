package filesapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dabbu/dabbu-go/internal/drives"
)

// ErrNoContent is returned when a metadata response carries no record.
var ErrNoContent = errors.New("filesapi: response has no content")

// Export types understood by the Files API.
const (
	exportView  = "view"
	exportMedia = "media"
)

// Timestamp validation bounds. Timestamps outside this range are dropped
// with a warning.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// Page is one page of a folder listing.
type Page struct {
	Records      []drives.FileRecord
	NextSetToken string
}

// recordResponse mirrors the Files API file record JSON. Unexported; callers
// get drives.FileRecord via toRecord.
type recordResponse struct {
	Name             string `json:"name"`
	Kind             string `json:"kind"`
	Path             string `json:"path"`
	MimeType         string `json:"mimeType"`
	Size             int64  `json:"size"`
	CreatedAtTime    string `json:"createdAtTime"`
	LastModifiedTime string `json:"lastModifiedTime"`
	ContentURI       string `json:"contentUri"`
}

type listResponse struct {
	Content      []recordResponse `json:"content"`
	NextSetToken string           `json:"nextSetToken"`
}

type itemResponse struct {
	Content *recordResponse `json:"content"`
}

func (r *recordResponse) toRecord(logger *slog.Logger) drives.FileRecord {
	return drives.FileRecord{
		Name:       r.Name,
		Kind:       drives.Kind(r.Kind),
		Path:       r.Path,
		MimeType:   r.MimeType,
		Size:       r.Size,
		CreatedAt:  parseTimestamp(r.CreatedAtTime, "createdAtTime", r.Path, logger),
		ModifiedAt: parseTimestamp(r.LastModifiedTime, "lastModifiedTime", r.Path, logger),
		ContentURI: r.ContentURI,
	}
}

// parseTimestamp parses an RFC3339 timestamp and validates the year range.
// Empty, invalid or out-of-range values yield the zero time.
func parseTimestamp(raw, field, itemPath string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, ignoring",
			slog.String("field", field),
			slog.String("item_path", itemPath),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range, ignoring",
			slog.String("field", field),
			slog.String("item_path", itemPath),
			slog.String("raw", raw),
		)

		return time.Time{}
	}

	return t
}

// ListPage fetches one page of the folder listing. Pass the previous page's
// NextSetToken to continue; an empty NextSetToken on the result means the
// listing is complete. Records keep server order.
func (c *Client) ListPage(ctx context.Context, req Request, folder, nextSetToken string) (*Page, error) {
	q := req.query(true)
	q.Set("exportType", exportView)

	if nextSetToken != "" {
		q.Set("nextSetToken", nextSetToken)
	}

	resp, err := c.do(ctx, http.MethodGet, itemPath(folder, ""), q, &req, "", http.NoBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("filesapi: decoding listing of %s: %w", folder, err)
	}

	page := &Page{
		Records:      make([]drives.FileRecord, 0, len(lr.Content)),
		NextSetToken: lr.NextSetToken,
	}

	for i := range lr.Content {
		page.Records = append(page.Records, lr.Content[i].toRecord(c.logger))
	}

	c.logger.Debug("listed page",
		slog.String("folder_path", folder),
		slog.Int("count", len(page.Records)),
		slog.Bool("more", page.NextSetToken != ""),
	)

	return page, nil
}

// GetFile fetches the metadata of one file, including its content URI.
func (c *Client) GetFile(ctx context.Context, req Request, folder, name string) (*drives.FileRecord, error) {
	q := req.query(true)
	q.Set("exportType", exportMedia)

	resp, err := c.do(ctx, http.MethodGet, itemPath(folder, name), q, &req, "", http.NoBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("filesapi: decoding metadata of %s/%s: %w", folder, name, err)
	}

	if ir.Content == nil {
		return nil, ErrNoContent
	}

	rec := ir.Content.toRecord(c.logger)

	return &rec, nil
}

// Delete removes one file.
func (c *Client) Delete(ctx context.Context, req Request, folder, name string) error {
	return c.delete(ctx, req, itemPath(folder, name))
}

// DeleteFolder removes a folder and everything in it.
func (c *Client) DeleteFolder(ctx context.Context, req Request, folder string) error {
	return c.delete(ctx, req, itemPath(folder, ""))
}

func (c *Client) delete(ctx context.Context, req Request, path string) error {
	c.logger.Info("deleting item", slog.String("path", path))

	resp, err := c.do(ctx, http.MethodDelete, path, req.query(true), &req, "", http.NoBody)
	if err != nil {
		return err
	}

	resp.Body.Close()

	return nil
}
