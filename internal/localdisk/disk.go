// Package localdisk serves a folder on the local filesystem as a drive. The
// drive's basePath field is the root. RealPath refuses any path that would
// climb above it.
package localdisk

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dabbu/dabbu-go/internal/drivepath"
	"github.com/dabbu/dabbu-go/internal/drives"
)

// Sentinel errors.
var (
	ErrNoBasePath  = errors.New("localdisk: drive has no base path")
	ErrRootFolder  = errors.New("localdisk: refusing to delete the drive root")
	ErrOutsideRoot = errors.New("localdisk: path leaves the drive's base path")
)

// Permissions for folders and files created by CopyIn.
const (
	dirPerms  = 0o755
	filePerms = 0o644
)

const defaultMimeType = "application/octet-stream"

// Disk implements file operations on local folders.
type Disk struct {
	logger *slog.Logger
}

// NewDisk creates a Disk.
func NewDisk(logger *slog.Logger) *Disk {
	if logger == nil {
		logger = slog.Default()
	}

	return &Disk{logger: logger}
}

// RealPath maps a drive folder and optional file name onto the filesystem.
func (d *Disk) RealPath(root, folder, name string) (string, error) {
	if root == "" {
		return "", ErrNoBasePath
	}

	p := filepath.Join(root, filepath.FromSlash(drivepath.Join(folder, name)))

	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("localdisk: %s: %w", drivepath.Join(folder, name), ErrOutsideRoot)
	}

	return p, nil
}

// List returns the entries of folder: folders first, then files, each
// alphabetical. Entries that vanish between enumeration and stat are skipped.
func (d *Disk) List(root, folder string) ([]drives.FileRecord, error) {
	dir, err := d.RealPath(root, folder, "")
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("localdisk: listing %s: %w", folder, err)
	}

	records := make([]drives.FileRecord, 0, len(entries))

	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			d.logger.Debug("skipping entry", slog.String("name", e.Name()), slog.String("error", err.Error()))

			continue
		}

		records = append(records, toRecord(filepath.Join(dir, e.Name()), drivepath.Join(folder, e.Name()), info))
	}

	sort.SliceStable(records, func(i, j int) bool {
		fi, fj := records[i].IsFolder(), records[j].IsFolder()
		if fi != fj {
			return fi
		}

		return records[i].Name < records[j].Name
	})

	d.logger.Debug("listed local folder",
		slog.String("folder_path", folder),
		slog.Int("count", len(records)),
	)

	return records, nil
}

// Stat returns the record for one file or folder.
func (d *Disk) Stat(root, folder, name string) (*drives.FileRecord, error) {
	realPath, err := d.RealPath(root, folder, name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(realPath)
	if err != nil {
		return nil, fmt.Errorf("localdisk: %w", err)
	}

	rec := toRecord(realPath, drivepath.Join(folder, name), info)

	return &rec, nil
}

// CopyIn copies the file at src into folder/name, creating missing parent
// folders. The destination is written to a temporary file and renamed into
// place, so readers never see a half-written file.
func (d *Disk) CopyIn(src, root, folder, name string) error {
	dst, err := d.RealPath(root, folder, name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), dirPerms); err != nil {
		return fmt.Errorf("localdisk: creating %s: %w", folder, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("localdisk: opening %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".dabbu-*.partial")
	if err != nil {
		return fmt.Errorf("localdisk: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()
	success := false

	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, in)
	if err != nil {
		return fmt.Errorf("localdisk: copying to %s: %w", name, err)
	}

	if err := tmp.Chmod(filePerms); err != nil {
		return fmt.Errorf("localdisk: setting permissions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("localdisk: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("localdisk: renaming into %s: %w", name, err)
	}

	success = true

	d.logger.Debug("copied into local drive",
		slog.String("folder_path", folder),
		slog.String("file_name", name),
		slog.Int64("size", n),
	)

	return nil
}

// Delete removes one file.
func (d *Disk) Delete(root, folder, name string) error {
	realPath, err := d.RealPath(root, folder, name)
	if err != nil {
		return err
	}

	if err := os.Remove(realPath); err != nil {
		return fmt.Errorf("localdisk: %w", err)
	}

	return nil
}

// DeleteFolder removes a folder and its contents. The drive root itself is
// never removed.
func (d *Disk) DeleteFolder(root, folder string) error {
	if len(drivepath.Split(folder)) == 0 {
		return ErrRootFolder
	}

	realPath, err := d.RealPath(root, folder, "")
	if err != nil {
		return err
	}

	if _, err := os.Stat(realPath); err != nil {
		return fmt.Errorf("localdisk: %w", err)
	}

	if err := os.RemoveAll(realPath); err != nil {
		return fmt.Errorf("localdisk: removing %s: %w", folder, err)
	}

	return nil
}

func toRecord(realPath, drivePath string, info os.FileInfo) drives.FileRecord {
	rec := drives.FileRecord{
		Name:       info.Name(),
		Kind:       drives.KindFile,
		Path:       drivePath,
		Size:       info.Size(),
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
		ContentURI: fileURI(realPath),
	}

	if info.IsDir() {
		rec.Kind = drives.KindFolder
		rec.Size = 0
		rec.MimeType = "inode/directory"

		return rec
	}

	rec.MimeType = mimeType(info.Name())

	return rec
}

func mimeType(name string) string {
	if mt := mime.TypeByExtension(filepath.Ext(name)); mt != "" {
		return mt
	}

	return defaultMimeType
}

func fileURI(realPath string) string {
	abs, err := filepath.Abs(realPath)
	if err != nil {
		abs = realPath
	}

	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
