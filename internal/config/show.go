package config

import (
	"fmt"
	"io"
)

// redacted replaces secrets in RenderEffective output.
const redacted = "<redacted>"

// RenderEffective writes the resolved configuration as an annotated TOML
// summary to w. This powers the "config show" command.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n")
	ew.printf("# config file: %s\n", r.ConfigPath)
	ew.printf("# state file:  %s\n\n", r.StatePath)

	ew.printf("[server]\n")
	ew.printf("  url         = %q\n", r.Server.URL)

	if r.Server.Credentials != "" {
		ew.printf("  credentials = %q\n", redacted)
	}

	ew.printf("\n[auth]\n")
	ew.printf("  open_browser     = %t\n", r.Auth.OpenBrowser)
	ew.printf("  callback_timeout = %q\n", r.Auth.CallbackTimeout)

	ew.printf("\n[logging]\n")
	ew.printf("  log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("  log_format = %q\n", r.Logging.LogFormat)

	ew.printf("\n[network]\n")
	ew.printf("  timeout    = %q\n", r.Network.Timeout)

	if r.Network.UserAgent != "" {
		ew.printf("  user_agent = %q\n", r.Network.UserAgent)
	}

	ew.printf("\n[transfers]\n")
	ew.printf("  temp_dir = %q\n", r.Transfers.TempDir)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
