package driveops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dabbu/dabbu-go/internal/drivepath"
	"github.com/dabbu/dabbu-go/internal/drives"
	"github.com/dabbu/dabbu-go/internal/filesapi"
	"github.com/dabbu/dabbu-go/internal/localdisk"
	"github.com/dabbu/dabbu-go/internal/provider"
)

// basePathField is the drive field holding a local drive's root folder.
const basePathField = "basePath"

// tempPerms restricts downloaded temp files to the owner.
const (
	tempDirPerms  = 0o700
	tempFilePerms = 0o600
)

// BatchFunc receives one page of a folder listing. Returning an error stops
// the listing.
type BatchFunc func(records []drives.FileRecord) error

// TokenRefresher keeps a drive's credentials fresh. Satisfied by
// *auth.TokenManager.
type TokenRefresher interface {
	EnsureFresh(ctx context.Context, driveName string) error
}

// LocalCopy is a file's bytes on local disk. Temp copies belong to the
// caller and are removed by Cleanup; non-temp copies are the drive's own
// files and are left alone.
type LocalCopy struct {
	Path string
	Temp bool
}

// Cleanup removes the copy if it is temporary.
func (c *LocalCopy) Cleanup() error {
	if c == nil || !c.Temp {
		return nil
	}

	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

// Provider is the set of operations a storage backend supports. All paths
// are normalized drive paths.
type Provider interface {
	List(ctx context.Context, drive, folder string, onBatch BatchFunc) error
	Stat(ctx context.Context, drive, folder, name string) (*drives.FileRecord, error)
	Download(ctx context.Context, drive, folder, name string) (*LocalCopy, error)
	Upload(ctx context.Context, localPath, drive, folder, name string) error
	Delete(ctx context.Context, drive, folder, name string) error
	DeleteFolder(ctx context.Context, drive, folder string) error
}

// localProvider serves drives rooted in a local folder.
type localProvider struct {
	registry *drives.Registry
	disk     *localdisk.Disk
}

func (p *localProvider) root(drive string) (string, error) {
	d, err := p.registry.Get(drive)
	if err != nil {
		return "", err
	}

	root := d.Fields[basePathField]
	if root == "" {
		return "", fmt.Errorf("drive %s: %w", drive, localdisk.ErrNoBasePath)
	}

	return root, nil
}

// List delivers the whole folder as a single batch.
func (p *localProvider) List(_ context.Context, drive, folder string, onBatch BatchFunc) error {
	root, err := p.root(drive)
	if err != nil {
		return err
	}

	records, err := p.disk.List(root, folder)
	if err != nil {
		return err
	}

	return onBatch(records)
}

func (p *localProvider) Stat(_ context.Context, drive, folder, name string) (*drives.FileRecord, error) {
	root, err := p.root(drive)
	if err != nil {
		return nil, err
	}

	return p.disk.Stat(root, folder, name)
}

// Download returns the file's own path; nothing is copied.
func (p *localProvider) Download(ctx context.Context, drive, folder, name string) (*LocalCopy, error) {
	rec, err := p.Stat(ctx, drive, folder, name)
	if err != nil {
		return nil, err
	}

	if rec.IsFolder() {
		return nil, fmt.Errorf("%s: %w", drivepath.Join(folder, name), ErrIsFolder)
	}

	root, err := p.root(drive)
	if err != nil {
		return nil, err
	}

	realPath, err := p.disk.RealPath(root, folder, name)
	if err != nil {
		return nil, err
	}

	return &LocalCopy{Path: realPath}, nil
}

func (p *localProvider) Upload(_ context.Context, localPath, drive, folder, name string) error {
	root, err := p.root(drive)
	if err != nil {
		return err
	}

	if err := p.disk.CopyIn(localPath, root, folder, name); err != nil {
		return &TransportError{Op: "upload", Path: drivepath.Join(folder, name), Err: err}
	}

	return nil
}

func (p *localProvider) Delete(_ context.Context, drive, folder, name string) error {
	root, err := p.root(drive)
	if err != nil {
		return err
	}

	return p.disk.Delete(root, folder, name)
}

func (p *localProvider) DeleteFolder(_ context.Context, drive, folder string) error {
	root, err := p.root(drive)
	if err != nil {
		return err
	}

	return p.disk.DeleteFolder(root, folder)
}

// remoteProvider serves drives through the Files API.
type remoteProvider struct {
	registry *drives.Registry
	catalog  *provider.Catalog
	client   *filesapi.Client
	tokens   TokenRefresher
	tempDir  string
	logger   *slog.Logger
}

// session refreshes the drive's token and builds the request parts from the
// refreshed state.
func (p *remoteProvider) session(ctx context.Context, drive string) (filesapi.Request, *drives.Drive, *provider.Spec, error) {
	if err := p.tokens.EnsureFresh(ctx, drive); err != nil {
		return filesapi.Request{}, nil, nil, err
	}

	d, err := p.registry.Get(drive)
	if err != nil {
		return filesapi.Request{}, nil, nil, err
	}

	spec, ok := p.catalog.Lookup(d.Provider)
	if !ok {
		return filesapi.Request{}, nil, nil, fmt.Errorf("%w: %s", ErrUnknownProvider, d.Provider)
	}

	return filesapi.NewRequest(spec, &d), &d, spec, nil
}

// List follows nextSetToken until the server stops returning one. The token
// is refreshed before every page. Batches already delivered stay delivered
// when a later page fails.
func (p *remoteProvider) List(ctx context.Context, drive, folder string, onBatch BatchFunc) error {
	var next string

	for page := 1; ; page++ {
		req, _, _, err := p.session(ctx, drive)
		if err != nil {
			return err
		}

		res, err := p.client.ListPage(ctx, req, folder, next)
		if err != nil {
			return fmt.Errorf("listing %s:%s (page %d): %w", drive, folder, page, err)
		}

		if err := onBatch(res.Records); err != nil {
			return err
		}

		if res.NextSetToken == "" {
			return nil
		}

		next = res.NextSetToken
	}
}

func (p *remoteProvider) Stat(ctx context.Context, drive, folder, name string) (*drives.FileRecord, error) {
	req, _, _, err := p.session(ctx, drive)
	if err != nil {
		return nil, err
	}

	rec, err := p.client.GetFile(ctx, req, folder, name)
	if errors.Is(err, filesapi.ErrNoContent) {
		return nil, fmt.Errorf("%s: %w", drivepath.Join(folder, name), ErrInvalidResource)
	}

	return rec, err
}

// Download fetches the file's metadata, then streams its content URI into a
// new temporary file.
func (p *remoteProvider) Download(ctx context.Context, drive, folder, name string) (*LocalCopy, error) {
	req, d, spec, err := p.session(ctx, drive)
	if err != nil {
		return nil, err
	}

	full := drivepath.Join(folder, name)

	rec, err := p.client.GetFile(ctx, req, folder, name)
	if err != nil {
		if errors.Is(err, filesapi.ErrNoContent) {
			return nil, fmt.Errorf("%s: %w", full, ErrInvalidResource)
		}

		return nil, err
	}

	if rec.IsFolder() {
		return nil, fmt.Errorf("%s: %w", full, ErrIsFolder)
	}

	if rec.ContentURI == "" {
		return nil, fmt.Errorf("%s: no content URI: %w", full, ErrInvalidResource)
	}

	var authorization string
	if spec.ContentAuth {
		authorization = d.Auth.AccessToken
	}

	if err := os.MkdirAll(p.tempDir, tempDirPerms); err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	tmpPath := filepath.Join(p.tempDir, uuid.NewString()+filepath.Ext(name))

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, tempFilePerms)
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}

	n, err := p.client.Fetch(ctx, rec.ContentURI, authorization, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return nil, &TransportError{Op: "download", Path: full, Partial: tmpPath, Err: err}
	}

	p.logger.Debug("downloaded to temp file",
		slog.String("drive", drive),
		slog.String("file_name", name),
		slog.Int64("size", n),
	)

	return &LocalCopy{Path: tmpPath, Temp: true}, nil
}

func (p *remoteProvider) Upload(ctx context.Context, localPath, drive, folder, name string) error {
	req, _, _, err := p.session(ctx, drive)
	if err != nil {
		return err
	}

	return p.client.Upload(ctx, req, folder, name, localPath)
}

func (p *remoteProvider) Delete(ctx context.Context, drive, folder, name string) error {
	req, _, _, err := p.session(ctx, drive)
	if err != nil {
		return err
	}

	return p.client.Delete(ctx, req, folder, name)
}

func (p *remoteProvider) DeleteFolder(ctx context.Context, drive, folder string) error {
	req, _, _, err := p.session(ctx, drive)
	if err != nil {
		return err
	}

	return p.client.DeleteFolder(ctx, req, folder)
}
