package driveops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dabbu/dabbu-go/internal/drivepath"
	"github.com/dabbu/dabbu-go/internal/drives"
)

// Result is the outcome for one file or folder in a multi-file operation.
type Result struct {
	From string
	To   string
	Err  error
}

func (r Result) String() string {
	switch {
	case r.Err != nil && r.To != "":
		return fmt.Sprintf("%s -> %s: %v", r.From, r.To, r.Err)
	case r.Err != nil:
		return fmt.Sprintf("%s: %v", r.From, r.Err)
	case r.To != "":
		return r.From + " -> " + r.To
	default:
		return r.From
	}
}

// Report collects per-file results.
type Report struct {
	Succeeded []Result
	Failed    []Result
}

func (r *Report) add(res Result, onResult func(Result)) {
	if res.Err != nil {
		r.Failed = append(r.Failed, res)
	} else {
		r.Succeeded = append(r.Succeeded, res)
	}

	if onResult != nil {
		onResult(res)
	}
}

// Total is the number of files attempted.
func (r *Report) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

// Transfers is the subset of TransferManager the Copier needs.
type Transfers interface {
	List(ctx context.Context, drive, folder string, onBatch BatchFunc) error
	Download(ctx context.Context, drive, folder, name string) (*LocalCopy, error)
	Upload(ctx context.Context, localPath, drive, folder, name string) error
}

// Copier copies single files, wildcard matches and whole folders between
// drives, one file at a time.
type Copier struct {
	transfers Transfers
	resolver  *drivepath.Resolver
	logger    *slog.Logger
}

// NewCopier creates a Copier.
func NewCopier(t Transfers, resolver *drivepath.Resolver, logger *slog.Logger) *Copier {
	if logger == nil {
		logger = slog.Default()
	}

	return &Copier{transfers: t, resolver: resolver, logger: logger}
}

// Copy copies from to to:
//   - a path ending in '/' (or "." / "..") copies the folder's contents
//     recursively, re-based onto the destination folder
//   - a last segment containing '*' copies every matching entry of the folder
//   - anything else copies one file, keeping its name when to is a folder
//
// Per-file failures are recorded in the report and never stop the batch.
// Path resolution and folder listing errors abort the copy and are returned
// alongside the partial report.
func (c *Copier) Copy(ctx context.Context, from, to string, onResult func(Result)) (*Report, error) {
	report := &Report{}

	switch {
	case HasGlob(from):
		return report, c.copyGlob(ctx, from, to, report, onResult)
	case drivepath.IsFolderPath(from):
		src, err := c.resolver.ResolveFolder(from)
		if err != nil {
			return report, err
		}

		dst, err := c.resolver.ResolveFolder(to)
		if err != nil {
			return report, err
		}

		if src.Drive == dst.Drive && within(dst.Folder, src.Folder) {
			return report, fmt.Errorf("%s -> %s: %w", src, dst, ErrCopyIntoSelf)
		}

		return report, c.copyTree(ctx, src, dst, report, onResult)
	default:
		src, err := c.resolver.ResolveFile(from)
		if err != nil {
			return report, err
		}

		dst, err := c.destination(to, src.File)
		if err != nil {
			return report, err
		}

		report.add(c.copyFile(ctx, src, dst), onResult)

		return report, nil
	}
}

// destination resolves to as a file address; a folder path keeps name.
func (c *Copier) destination(to, name string) (drivepath.Address, error) {
	if !drivepath.IsFolderPath(to) {
		return c.resolver.ResolveFile(to)
	}

	dst, err := c.resolver.ResolveFolder(to)
	if err != nil {
		return drivepath.Address{}, err
	}

	dst.File = name

	return dst, nil
}

func (c *Copier) copyGlob(ctx context.Context, from, to string, report *Report, onResult func(Result)) error {
	folderRaw, pattern, err := splitGlob(from)
	if err != nil {
		return err
	}

	re, err := CompileGlob(pattern)
	if err != nil {
		return err
	}

	src, err := c.resolver.ResolveFolder(folderRaw)
	if err != nil {
		return err
	}

	dst, err := c.resolver.ResolveFolder(to)
	if err != nil {
		return err
	}

	var matched []drives.FileRecord

	err = c.transfers.List(ctx, src.Drive, src.Folder, func(records []drives.FileRecord) error {
		for _, rec := range records {
			if re.MatchString(rec.Name) {
				matched = append(matched, rec)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if len(matched) == 0 {
		return fmt.Errorf("%s: %w", from, ErrNothingToProcess)
	}

	for _, rec := range matched {
		if err := checkName(rec.Name); err != nil {
			report.add(c.rejected(src.Drive, src.Folder, rec.Name, err), onResult)

			continue
		}

		if rec.IsFolder() {
			subSrc := drivepath.Address{Drive: src.Drive, Folder: drivepath.Join(src.Folder, rec.Name)}
			subDst := drivepath.Address{Drive: dst.Drive, Folder: drivepath.Join(dst.Folder, rec.Name)}

			if subSrc.Drive == subDst.Drive && within(subDst.Folder, subSrc.Folder) {
				res := Result{From: subSrc.String(), To: subDst.String(), Err: ErrCopyIntoSelf}
				c.logFailure(res)
				report.add(res, onResult)

				continue
			}

			if err := c.copyTree(ctx, subSrc, subDst, report, onResult); err != nil {
				return err
			}

			continue
		}

		report.add(c.copyFile(ctx,
			drivepath.Address{Drive: src.Drive, Folder: src.Folder, File: rec.Name},
			drivepath.Address{Drive: dst.Drive, Folder: dst.Folder, File: rec.Name},
		), onResult)
	}

	return nil
}

// checkName rejects listed names that would not stay one path segment.
// Providers such as Google Drive allow "/" and ".." in file names.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("%q: %w", name, ErrUnsafeName)
	}

	return nil
}

// within reports whether folder is root or lies beneath it.
func within(folder, root string) bool {
	return root == drivepath.Root || folder == root || strings.HasPrefix(folder, root+"/")
}

// copyTree walks src depth-first in listing order and copies every file to
// the same relative location under dst.
func (c *Copier) copyTree(ctx context.Context, src, dst drivepath.Address, report *Report, onResult func(Result)) error {
	c.logger.Info("copying folder",
		slog.String("from", src.String()),
		slog.String("to", dst.String()),
	)

	return c.walk(ctx, src.Drive, src.Folder, func(folder string, rec drives.FileRecord) {
		if err := checkName(rec.Name); err != nil {
			report.add(c.rejected(src.Drive, folder, rec.Name, err), onResult)

			return
		}

		target := drivepath.Join(dst.Folder, drivepath.Rel(src.Folder, folder))

		report.add(c.copyFile(ctx,
			drivepath.Address{Drive: src.Drive, Folder: folder, File: rec.Name},
			drivepath.Address{Drive: dst.Drive, Folder: target, File: rec.Name},
		), onResult)
	})
}

// walk lists folder and calls visit for every file, recursing into
// subfolders as they appear. Entries with unusable names are passed to visit
// without recursing. A listing error stops the walk.
func (c *Copier) walk(ctx context.Context, drive, folder string, visit func(folder string, rec drives.FileRecord)) error {
	return c.transfers.List(ctx, drive, folder, func(records []drives.FileRecord) error {
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}

			if rec.IsFolder() && checkName(rec.Name) == nil {
				if err := c.walk(ctx, drive, drivepath.Join(folder, rec.Name), visit); err != nil {
					return err
				}

				continue
			}

			visit(folder, rec)
		}

		return nil
	})
}

// copyFile downloads src and uploads it to dst. Temporary copies are always
// removed, including partial downloads.
func (c *Copier) copyFile(ctx context.Context, src, dst drivepath.Address) Result {
	res := Result{From: src.String(), To: dst.String()}

	lc, err := c.transfers.Download(ctx, src.Drive, src.Folder, src.File)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) && te.Partial != "" {
			os.Remove(te.Partial)
		}

		res.Err = err
		c.logFailure(res)

		return res
	}

	defer func() {
		if cleanupErr := lc.Cleanup(); cleanupErr != nil {
			c.logger.Warn("removing temp file failed",
				slog.String("path", lc.Path),
				slog.String("error", cleanupErr.Error()),
			)
		}
	}()

	if err := c.transfers.Upload(ctx, lc.Path, dst.Drive, dst.Folder, dst.File); err != nil {
		res.Err = err
		c.logFailure(res)

		return res
	}

	c.logger.Info("copied file",
		slog.String("from", res.From),
		slog.String("to", res.To),
	)

	return res
}

// rejected records a listed entry that cannot be mapped to a path.
func (c *Copier) rejected(drive, folder, name string, err error) Result {
	res := Result{From: fmt.Sprintf("%s:%s %q", drive, folder, name), Err: err}
	c.logFailure(res)

	return res
}

func (c *Copier) logFailure(res Result) {
	c.logger.Warn("copy failed",
		slog.String("from", res.From),
		slog.String("to", res.To),
		slog.String("error", res.Err.Error()),
	)
}
