package driveops

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dabbu/dabbu-go/internal/drives"
	"github.com/dabbu/dabbu-go/internal/filesapi"
	"github.com/dabbu/dabbu-go/internal/localdisk"
	"github.com/dabbu/dabbu-go/internal/provider"
)

// TransferManager routes drive operations to the Provider registered for the
// drive's provider id, and enforces read-only providers.
type TransferManager struct {
	registry  *drives.Registry
	catalog   *provider.Catalog
	providers map[provider.ID]Provider
	logger    *slog.Logger
}

// NewTransferManager builds the provider table from the catalog: local
// providers are served from disk, all others through client. Downloads from
// remote drives are staged in tempDir (os.TempDir() when empty).
func NewTransferManager(
	reg *drives.Registry,
	cat *provider.Catalog,
	client *filesapi.Client,
	tokens TokenRefresher,
	tempDir string,
	logger *slog.Logger,
) *TransferManager {
	if logger == nil {
		logger = slog.Default()
	}

	if tempDir == "" {
		tempDir = os.TempDir()
	}

	local := &localProvider{registry: reg, disk: localdisk.NewDisk(logger)}
	remote := &remoteProvider{
		registry: reg,
		catalog:  cat,
		client:   client,
		tokens:   tokens,
		tempDir:  tempDir,
		logger:   logger,
	}

	providers := make(map[provider.ID]Provider)

	for _, id := range cat.IDs() {
		spec, _ := cat.Lookup(id)
		if spec.Local {
			providers[id] = local
		} else {
			providers[id] = remote
		}
	}

	return &TransferManager{
		registry:  reg,
		catalog:   cat,
		providers: providers,
		logger:    logger,
	}
}

// Register overrides the provider used for id.
func (tm *TransferManager) Register(id provider.ID, p Provider) {
	tm.providers[id] = p
}

func (tm *TransferManager) providerFor(drive string) (Provider, *provider.Spec, error) {
	d, err := tm.registry.Get(drive)
	if err != nil {
		return nil, nil, err
	}

	p, ok := tm.providers[d.Provider]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownProvider, d.Provider)
	}

	spec, _ := tm.catalog.Lookup(d.Provider)

	return p, spec, nil
}

func (tm *TransferManager) writable(drive string) (Provider, error) {
	p, spec, err := tm.providerFor(drive)
	if err != nil {
		return nil, err
	}

	if spec != nil && spec.ReadOnly {
		return nil, fmt.Errorf("drive %s: %w", drive, ErrReadOnly)
	}

	return p, nil
}

// List delivers the folder's entries to onBatch one page at a time, in
// server order.
func (tm *TransferManager) List(ctx context.Context, drive, folder string, onBatch BatchFunc) error {
	p, _, err := tm.providerFor(drive)
	if err != nil {
		return err
	}

	tm.logger.Debug("listing folder",
		slog.String("drive", drive),
		slog.String("folder_path", folder),
	)

	return p.List(ctx, drive, folder, onBatch)
}

// ListAll collects every page of a folder listing.
func (tm *TransferManager) ListAll(ctx context.Context, drive, folder string) ([]drives.FileRecord, error) {
	var all []drives.FileRecord

	err := tm.List(ctx, drive, folder, func(records []drives.FileRecord) error {
		all = append(all, records...)

		return nil
	})

	return all, err
}

// Stat returns the metadata of one file.
func (tm *TransferManager) Stat(ctx context.Context, drive, folder, name string) (*drives.FileRecord, error) {
	p, _, err := tm.providerFor(drive)
	if err != nil {
		return nil, err
	}

	return p.Stat(ctx, drive, folder, name)
}

// Download makes the file's bytes available on local disk. Local drives
// return the file itself; remote drives return a temporary copy the caller
// must Cleanup.
func (tm *TransferManager) Download(ctx context.Context, drive, folder, name string) (*LocalCopy, error) {
	p, _, err := tm.providerFor(drive)
	if err != nil {
		return nil, err
	}

	tm.logger.Info("downloading",
		slog.String("drive", drive),
		slog.String("folder_path", folder),
		slog.String("file_name", name),
	)

	return p.Download(ctx, drive, folder, name)
}

// Upload writes the local file at localPath to folder/name on the drive,
// replacing an existing file.
func (tm *TransferManager) Upload(ctx context.Context, localPath, drive, folder, name string) error {
	p, err := tm.writable(drive)
	if err != nil {
		return err
	}

	tm.logger.Info("uploading",
		slog.String("drive", drive),
		slog.String("folder_path", folder),
		slog.String("file_name", name),
	)

	return p.Upload(ctx, localPath, drive, folder, name)
}

// Delete removes one file.
func (tm *TransferManager) Delete(ctx context.Context, drive, folder, name string) error {
	p, err := tm.writable(drive)
	if err != nil {
		return err
	}

	return p.Delete(ctx, drive, folder, name)
}

// DeleteFolder removes a folder and its contents.
func (tm *TransferManager) DeleteFolder(ctx context.Context, drive, folder string) error {
	p, err := tm.writable(drive)
	if err != nil {
		return err
	}

	return p.DeleteFolder(ctx, drive, folder)
}
