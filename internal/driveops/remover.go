package driveops

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dabbu/dabbu-go/internal/drivepath"
	"github.com/dabbu/dabbu-go/internal/drives"
)

// Deleter is the subset of TransferManager the Remover needs.
type Deleter interface {
	List(ctx context.Context, drive, folder string, onBatch BatchFunc) error
	Delete(ctx context.Context, drive, folder, name string) error
	DeleteFolder(ctx context.Context, drive, folder string) error
}

// Remover deletes files, folders and wildcard matches.
type Remover struct {
	deleter  Deleter
	resolver *drivepath.Resolver
	logger   *slog.Logger
}

// NewRemover creates a Remover.
func NewRemover(d Deleter, resolver *drivepath.Resolver, logger *slog.Logger) *Remover {
	if logger == nil {
		logger = slog.Default()
	}

	return &Remover{deleter: d, resolver: resolver, logger: logger}
}

// Remove deletes what raw addresses: a folder (trailing '/'), every entry
// matching a wildcard in the last segment, or one file. With wildcards,
// each match is deleted independently and failures are only recorded.
func (r *Remover) Remove(ctx context.Context, raw string, onResult func(Result)) (*Report, error) {
	report := &Report{}

	switch {
	case HasGlob(raw):
		return report, r.removeGlob(ctx, raw, report, onResult)
	case drivepath.IsFolderPath(raw):
		addr, err := r.resolver.ResolveFolder(raw)
		if err != nil {
			return report, err
		}

		report.add(r.removeFolder(ctx, addr), onResult)

		return report, nil
	default:
		addr, err := r.resolver.ResolveFile(raw)
		if err != nil {
			return report, err
		}

		report.add(r.removeFile(ctx, addr), onResult)

		return report, nil
	}
}

func (r *Remover) removeGlob(ctx context.Context, raw string, report *Report, onResult func(Result)) error {
	folderRaw, pattern, err := splitGlob(raw)
	if err != nil {
		return err
	}

	re, err := CompileGlob(pattern)
	if err != nil {
		return err
	}

	dir, err := r.resolver.ResolveFolder(folderRaw)
	if err != nil {
		return err
	}

	var matched []drives.FileRecord

	err = r.deleter.List(ctx, dir.Drive, dir.Folder, func(records []drives.FileRecord) error {
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
		return fmt.Errorf("%s: %w", raw, ErrNothingToProcess)
	}

	for _, rec := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := checkName(rec.Name); err != nil {
			res := Result{From: fmt.Sprintf("%s:%s %q", dir.Drive, dir.Folder, rec.Name), Err: err}
			r.log(res)
			report.add(res, onResult)

			continue
		}

		if rec.IsFolder() {
			report.add(r.removeFolder(ctx, drivepath.Address{
				Drive:  dir.Drive,
				Folder: drivepath.Join(dir.Folder, rec.Name),
			}), onResult)

			continue
		}

		report.add(r.removeFile(ctx, drivepath.Address{Drive: dir.Drive, Folder: dir.Folder, File: rec.Name}), onResult)
	}

	return nil
}

func (r *Remover) removeFile(ctx context.Context, addr drivepath.Address) Result {
	res := Result{From: addr.String()}
	res.Err = r.deleter.Delete(ctx, addr.Drive, addr.Folder, addr.File)
	r.log(res)

	return res
}

func (r *Remover) removeFolder(ctx context.Context, addr drivepath.Address) Result {
	res := Result{From: addr.String()}

	if addr.Folder == drivepath.Root {
		res.Err = ErrRootFolder
	} else {
		res.Err = r.deleter.DeleteFolder(ctx, addr.Drive, addr.Folder)
	}

	r.log(res)

	return res
}

func (r *Remover) log(res Result) {
	if res.Err != nil {
		r.logger.Warn("delete failed",
			slog.String("path", res.From),
			slog.String("error", res.Err.Error()),
		)

		return
	}

	r.logger.Info("deleted", slog.String("path", res.From))
}
