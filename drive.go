package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dabbu/dabbu-go/internal/auth"
	"github.com/dabbu/dabbu-go/internal/drives"
	"github.com/dabbu/dabbu-go/internal/provider"
)

// basePathKey is the drive key of a local drive's root folder.
const basePathKey = "fields.basePath"

func newDriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Manage drives (add, remove, list, use)",
		Long:  "A drive binds a name to a provider, e.g. \"g\" to Google Drive or \"c\" to a local folder.",
	}

	cmd.AddCommand(newDriveAddCmd())
	cmd.AddCommand(newDriveRemoveCmd())
	cmd.AddCommand(newDriveListCmd())
	cmd.AddCommand(newDriveUseCmd())

	return cmd
}

func newDriveAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a drive",
		Long: `Create a drive bound to a provider and make it the current drive.

Provider fields are taken from --set, or prompted for when missing and
stdin is a terminal:

  dabbu drive add c --provider harddrive --set base_path=/home/me
  dabbu drive add g --provider googledrive --set client_id=... --set client_secret=...

OAuth2 providers then open the browser to authorize access.`,
		Args: cobra.ExactArgs(1),
		RunE: runDriveAdd,
	}

	cmd.Flags().String("provider", "", "provider id (harddrive, googledrive, gmail, onedrive, knowledge)")
	cmd.Flags().StringArray("set", nil, "provider field as key=value (repeatable)")
	cmd.Flags().Bool("no-auth", false, "skip browser authorization for OAuth2 providers")

	return cmd
}

func newDriveRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a drive and its credentials",
		Long:  "Delete a drive's state and stored credentials. Files on the drive are not touched.",
		Args:  cobra.ExactArgs(1),
		RunE:  runDriveRemove,
	}
}

func newDriveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List drives",
		Args:  cobra.NoArgs,
		RunE:  runDriveList,
	}
}

func newDriveUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Select the current drive",
		Args:  cobra.ExactArgs(1),
		RunE:  runDriveUse,
	}
}

func runDriveAdd(cmd *cobra.Command, args []string) error {
	cc, sess, err := commandSession(cmd)
	if err != nil {
		return err
	}

	name := args[0]

	providerFlag, err := cmd.Flags().GetString("provider")
	if err != nil {
		return err
	}

	sets, err := cmd.Flags().GetStringArray("set")
	if err != nil {
		return err
	}

	noAuth, err := cmd.Flags().GetBool("no-auth")
	if err != nil {
		return err
	}

	values, err := parseSetFlags(sets)
	if err != nil {
		return err
	}

	spec, ok := sess.Catalog.Lookup(provider.ID(providerFlag))
	if providerFlag == "" || !ok {
		return fmt.Errorf("unknown provider %q (known: %s)", providerFlag, joinIDs(sess.Catalog.IDs()))
	}

	if err := addDrive(sess, name, spec, values, defaultPrompter()); err != nil {
		return err
	}

	cc.Logger.Info("drive created", slog.String("drive", name), slog.String("provider", string(spec.ID)))

	if spec.HasOAuth() && !noAuth {
		if err := authorizeDrive(cmd.Context(), cc, sess, name, spec.ID); err != nil {
			return fmt.Errorf("authorizing drive %s (retry with 'dabbu auth login %s'): %w", name, name, err)
		}
	}

	cc.Statusf("Created drive %s (%s). It is now the current drive.\n", name, spec.Name)

	return nil
}

// addDrive creates the drive, stores its user-supplied fields, and selects
// it. Values missing from values are asked for through p.
func addDrive(sess *Session, name string, spec *provider.Spec, values map[string]string, p Prompter) error {
	if err := drives.ValidateName(name); err != nil {
		return fmt.Errorf("drive name %q: %w", name, err)
	}

	if sess.Registry.HasProvider(name) {
		return fmt.Errorf("%w: %s", drives.ErrDriveExists, name)
	}

	inputs := spec.UserInputs()

	for key := range values {
		if !hasInput(inputs, key) {
			return fmt.Errorf("provider %s has no field %q", spec.ID, key)
		}
	}

	// Collect everything before touching the state so a failed prompt does
	// not leave a half-configured drive behind.
	collected := make(map[string]string, len(inputs))

	for _, f := range inputs {
		v, err := fieldValue(f, values, p)
		if err != nil {
			return err
		}

		if f.From == basePathKey {
			if v, err = checkBasePath(v); err != nil {
				return err
			}
		}

		collected[f.From] = v
	}

	if err := sess.Registry.Create(name, spec.ID); err != nil {
		return err
	}

	for _, f := range inputs {
		if err := sess.Registry.Set(name, f.From, collected[f.From]); err != nil {
			return fmt.Errorf("saving %s: %w", f.Name, err)
		}
	}

	return sess.Registry.SetCurrent(name)
}

func hasInput(inputs []provider.Field, name string) bool {
	for _, f := range inputs {
		if f.Name == name {
			return true
		}
	}

	return false
}

// fieldValue returns the --set value for f, or prompts for it.
func fieldValue(f provider.Field, values map[string]string, p Prompter) (string, error) {
	if v, ok := values[f.Name]; ok && v != "" {
		return v, nil
	}

	var (
		v   string
		err error
	)

	if f.Secret {
		v, err = p.Password(f.Prompt)
	} else {
		v, err = p.Input(f.Prompt, f.Default)
	}

	if err != nil {
		return "", fmt.Errorf("%s (pass --set %s=...): %w", f.Name, f.Name, err)
	}

	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%s: a value is required", f.Name)
	}

	return v, nil
}

// checkBasePath makes a local drive root absolute and requires it to be an
// existing directory.
func checkBasePath(raw string) (string, error) {
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("base path %q: %w", raw, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("base path: %w", err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("base path %q is not a directory", abs)
	}

	return abs, nil
}

// parseSetFlags turns ["k=v", ...] into a map.
func parseSetFlags(sets []string) (map[string]string, error) {
	values := make(map[string]string, len(sets))

	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", s)
		}

		values[strings.TrimSpace(k)] = v
	}

	return values, nil
}

func joinIDs(ids []provider.ID) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}

	return strings.Join(out, ", ")
}

// authorizeDrive runs the browser authorization flow for a drive.
func authorizeDrive(ctx context.Context, cc *CLIContext, sess *Session, name string, id provider.ID) error {
	var opener func(string) error
	if cc.Cfg.Auth.OpenBrowser {
		opener = openBrowser
	}

	flow := auth.NewFlow(sess.Registry, sess.Catalog, sess.HTTP, opener, cc.Logger)
	flow.CallbackTimeout = cc.Cfg.Auth.CallbackTimeoutDuration()

	cc.Statusf("Waiting for authorization in the browser...\n")

	return flow.Authorize(ctx, id, name)
}

func runDriveRemove(cmd *cobra.Command, args []string) error {
	cc, sess, err := commandSession(cmd)
	if err != nil {
		return err
	}

	if err := sess.Registry.Remove(args[0]); err != nil {
		return err
	}

	cc.Logger.Info("drive removed", slog.String("drive", args[0]))
	cc.Statusf("Removed drive %s.\n", args[0])

	return nil
}

// driveListEntry is the JSON schema for one drive in `drive list --json`.
type driveListEntry struct {
	Name       string `json:"name"`
	Provider   string `json:"provider"`
	Path       string `json:"path"`
	Current    bool   `json:"current"`
	Authorized bool   `json:"authorized,omitempty"`
}

func runDriveList(cmd *cobra.Command, _ []string) error {
	cc, sess, err := commandSession(cmd)
	if err != nil {
		return err
	}

	entries, err := buildDriveList(sess)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cc.Out, "No drives. Create one with 'dabbu drive add <name> --provider <id>'.")

		return nil
	}

	printDriveList(cc.Out, entries)

	return nil
}

func buildDriveList(sess *Session) ([]driveListEntry, error) {
	current := sess.Registry.Current()
	names := sess.Registry.Names()
	entries := make([]driveListEntry, 0, len(names))

	for _, name := range names {
		d, err := sess.Registry.Get(name)
		if err != nil {
			var unknown *drives.UnknownDriveError
			if errors.As(err, &unknown) {
				continue
			}

			return nil, err
		}

		entry := driveListEntry{
			Name:     d.Name,
			Provider: string(d.Provider),
			Path:     d.Path,
			Current:  name == current,
		}

		if spec, ok := sess.Catalog.Lookup(d.Provider); ok && spec.HasOAuth() {
			entry.Authorized = d.Auth.RefreshToken != "" || d.Auth.AccessToken != ""
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func printDriveList(w io.Writer, entries []driveListEntry) {
	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		marker := " "
		if e.Current {
			marker = "*"
		}

		rows = append(rows, []string{marker + " " + e.Name, e.Provider, e.Path})
	}

	printTable(w, []string{"  NAME", "PROVIDER", "PATH"}, rows)
}

func runDriveUse(cmd *cobra.Command, args []string) error {
	cc, sess, err := commandSession(cmd)
	if err != nil {
		return err
	}

	if err := sess.Registry.SetCurrent(args[0]); err != nil {
		return err
	}

	cc.Statusf("Current drive is now %s.\n", args[0])

	return nil
}
