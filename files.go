package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dabbu/dabbu-go/internal/driveops"
	"github.com/dabbu/dabbu-go/internal/drivepath"
	"github.com/dabbu/dabbu-go/internal/drives"
)

// errFilesFailed is returned when a copy or delete finished with per-file
// failures. The individual failures have already been printed.
var errFilesFailed = errors.New("files failed")

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Long: `List the contents of a folder. Without a path, the current folder of
the current drive is listed. Prefix a path with a drive name to list
another drive, e.g. "dabbu ls g:/Documents".`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLs,
	}
}

func newCdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cd <path>",
		Short: "Change the current folder (and drive, with a drive prefix)",
		Args:  cobra.ExactArgs(1),
		RunE:  runCd,
	}
}

func newPwdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pwd",
		Short: "Print the current drive and folder",
		Args:  cobra.NoArgs,
		RunE:  runPwd,
	}
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <file>",
		Short: "Print a file's contents",
		Args:  cobra.ExactArgs(1),
		RunE:  runCat,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <file>",
		Short: "Display file metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <from> <to>",
		Short: "Copy files between drives",
		Long: `Copy a file, a folder, or every match of a wildcard between drives.

  dabbu cp g:/Reports/q1.pdf c:/Backup/        copy one file into a folder
  dabbu cp g:/Reports/q1.pdf c:/Backup/old.pdf copy and rename
  dabbu cp g:/Reports/ c:/Backup/Reports/      copy a folder recursively
  dabbu cp "g:/Reports/*.pdf" c:/Backup/       copy every matching file

A path ending in "/" addresses a folder. Files are copied one at a time;
a failure is reported and the remaining files are still copied.`,
		Args: cobra.ExactArgs(2),
		RunE: runCp,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file, a folder, or wildcard matches",
		Long: `Delete a file, a folder (path ending in "/"), or every entry matching a
wildcard in the last path segment. Folder deletion is recursive. The root
folder of a drive cannot be deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}
}

// commandSession returns the CLIContext and a Session for cmd.
func commandSession(cmd *cobra.Command) (*CLIContext, *Session, error) {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	sess, err := newSession(cc)
	if err != nil {
		return nil, nil, err
	}

	return cc, sess, nil
}

func runLs(cmd *cobra.Command, args []string) error {
	cc, sess, err := commandSession(cmd)
	if err != nil {
		return err
	}

	raw := ""
	if len(args) > 0 {
		raw = args[0]
	}

	addr, err := sess.Resolver.ResolveFolder(raw)
	if err != nil {
		return err
	}

	cc.Logger.Debug("ls", slog.String("drive", addr.Drive), slog.String("folder_path", addr.Folder))

	records, err := sess.Transfers.ListAll(cmd.Context(), addr.Drive, addr.Folder)
	if err != nil {
		return fmt.Errorf("listing %s: %w", addr, err)
	}

	if cc.Flags.JSON {
		out := make([]recordJSON, 0, len(records))
		for i := range records {
			out = append(out, toRecordJSON(&records[i]))
		}

		return printJSON(cc.Out, out)
	}

	if len(records) == 0 {
		cc.Statusf("%s is empty\n", addr)

		return nil
	}

	printRecordsTable(cc.Out, records)

	return nil
}

func runCd(cmd *cobra.Command, args []string) error {
	cc, sess, err := commandSession(cmd)
	if err != nil {
		return err
	}

	addr, err := sess.Resolver.ResolveFolder(args[0])
	if err != nil {
		return err
	}

	if err := sess.Registry.SetPath(addr.Drive, addr.Folder); err != nil {
		return fmt.Errorf("saving current folder: %w", err)
	}

	if addr.Drive != sess.Registry.Current() {
		if err := sess.Registry.SetCurrent(addr.Drive); err != nil {
			return fmt.Errorf("switching drive: %w", err)
		}
	}

	cc.Logger.Debug("changed folder", slog.String("drive", addr.Drive), slog.String("folder_path", addr.Folder))

	return nil
}

func runPwd(cmd *cobra.Command, _ []string) error {
	cc, sess, err := commandSession(cmd)
	if err != nil {
		return err
	}

	name := sess.Registry.Current()
	if name == "" {
		return drives.ErrNoCurrentDrive
	}

	fmt.Fprintf(cc.Out, "%s:%s\n", name, sess.Registry.CurrentPath(name))

	return nil
}

// resolveFileArg resolves raw as a file address, rejecting folder paths.
func resolveFileArg(sess *Session, raw string) (drivepath.Address, error) {
	if drivepath.IsFolderPath(raw) {
		return drivepath.Address{}, fmt.Errorf("%s: %w", raw, driveops.ErrIsFolder)
	}

	return sess.Resolver.ResolveFile(raw)
}

func runCat(cmd *cobra.Command, args []string) error {
	cc, sess, err := commandSession(cmd)
	if err != nil {
		return err
	}

	addr, err := resolveFileArg(sess, args[0])
	if err != nil {
		return err
	}

	local, err := sess.Transfers.Download(cmd.Context(), addr.Drive, addr.Folder, addr.File)
	if err != nil {
		removePartial(err, cc.Logger)

		return fmt.Errorf("reading %s: %w", addr, err)
	}

	defer func() {
		if cleanupErr := local.Cleanup(); cleanupErr != nil {
			cc.Logger.Warn("removing temp file", slog.String("error", cleanupErr.Error()))
		}
	}()

	f, err := os.Open(local.Path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", addr, err)
	}
	defer f.Close()

	if _, err := io.Copy(cc.Out, f); err != nil {
		return fmt.Errorf("writing %s: %w", addr, err)
	}

	return nil
}

// removePartial deletes the partial download carried by a TransportError.
func removePartial(err error, logger *slog.Logger) {
	var te *driveops.TransportError
	if !errors.As(err, &te) || te.Partial == "" {
		return
	}

	if rmErr := os.Remove(te.Partial); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		logger.Warn("removing partial download", slog.String("error", rmErr.Error()))
	}
}

func runStat(cmd *cobra.Command, args []string) error {
	cc, sess, err := commandSession(cmd)
	if err != nil {
		return err
	}

	addr, err := resolveFileArg(sess, args[0])
	if err != nil {
		return err
	}

	rec, err := sess.Transfers.Stat(cmd.Context(), addr.Drive, addr.Folder, addr.File)
	if err != nil {
		return fmt.Errorf("stat %s: %w", addr, err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, toRecordJSON(rec))
	}

	printStat(cc.Out, rec)

	return nil
}

func printStat(w io.Writer, rec *drives.FileRecord) {
	fmt.Fprintf(w, "Name:      %s\n", rec.Name)
	fmt.Fprintf(w, "Kind:      %s\n", rec.Kind)
	fmt.Fprintf(w, "Path:      %s\n", rec.Path)
	fmt.Fprintf(w, "Size:      %s (%d bytes)\n", formatSize(rec.Size), rec.Size)

	if rec.MimeType != "" {
		fmt.Fprintf(w, "Type:      %s\n", rec.MimeType)
	}

	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:   %s\n", formatRFC3339(rec.CreatedAt))
	}

	if !rec.ModifiedAt.IsZero() {
		fmt.Fprintf(w, "Modified:  %s\n", formatRFC3339(rec.ModifiedAt))
	}
}

func runCp(cmd *cobra.Command, args []string) error {
	cc, sess, err := commandSession(cmd)
	if err != nil {
		return err
	}

	report, err := sess.Copier().Copy(cmd.Context(), args[0], args[1], printResult(cc, "Copied"))

	return finishReport(cc, "copied", report, err)
}

func runRm(cmd *cobra.Command, args []string) error {
	cc, sess, err := commandSession(cmd)
	if err != nil {
		return err
	}

	report, err := sess.Remover().Remove(cmd.Context(), args[0], printResult(cc, "Deleted"))

	return finishReport(cc, "deleted", report, err)
}

// printResult reports each file as it completes: successes on the status
// stream, failures always.
func printResult(cc *CLIContext, verb string) func(driveops.Result) {
	return func(res driveops.Result) {
		if res.Err != nil {
			fmt.Fprintf(cc.Err, "Failed: %s\n", res)

			return
		}

		cc.Statusf("%s %s\n", verb, res)
	}
}

// finishReport prints the summary of a multi-file command and turns
// per-file failures into a non-zero exit.
func finishReport(cc *CLIContext, verb string, report *driveops.Report, err error) error {
	if report != nil && report.Total() > 1 {
		cc.Statusf("%d of %d files %s\n", len(report.Succeeded), report.Total(), verb)
	}

	if err != nil {
		return err
	}

	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d %w", len(report.Failed), report.Total(), errFilesFailed)
	}

	return nil
}
