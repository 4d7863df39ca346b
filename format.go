package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dabbu/dabbu-go/internal/drives"
)

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if !cc.Flags.Quiet {
		fmt.Fprintf(cc.Err, format, args...)
	}
}

// sizeUnits are the binary multiples used by formatSize.
var sizeUnits = []string{"KB", "MB", "GB", "TB"}

// formatSize renders a byte count for listings: "512 B", "1.5 KB", "2.0 GB".
func formatSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}

	v := float64(n) / 1024
	unit := 0

	for v >= 1024 && unit < len(sizeUnits)-1 {
		v /= 1024
		unit++
	}

	return fmt.Sprintf("%.1f %s", v, sizeUnits[unit])
}

// Listing timestamps, in the style of ls -l.
const (
	recentLayout = "Jan _2 15:04"
	olderLayout  = "Jan _2  2006"
)

func formatTime(t time.Time) string {
	if t.Year() == time.Now().Year() {
		return t.Format(recentLayout)
	}

	return t.Format(olderLayout)
}

// printTable writes rows under headers in left-aligned columns two spaces
// apart. Widths count runes so non-ASCII names line up.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))

	for _, row := range append([][]string{headers}, rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	var b strings.Builder

	for i, cell := range cells {
		if i > 0 {
			b.WriteString("  ")
		}

		b.WriteString(cell)

		if i < len(cells)-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)))
		}
	}

	fmt.Fprintln(w, b.String())
}

// recordJSON is the JSON output schema for one file or folder.
type recordJSON struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Path       string `json:"path"`
	MimeType   string `json:"mime_type,omitempty"`
	Size       int64  `json:"size"`
	CreatedAt  string `json:"created_at,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

func toRecordJSON(rec *drives.FileRecord) recordJSON {
	return recordJSON{
		Name:       rec.Name,
		Kind:       string(rec.Kind),
		Path:       rec.Path,
		MimeType:   rec.MimeType,
		Size:       rec.Size,
		CreatedAt:  formatRFC3339(rec.CreatedAt),
		ModifiedAt: formatRFC3339(rec.ModifiedAt),
	}
}

func formatRFC3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// printRecordsTable prints records in listing order. Folders get a trailing
// slash and no size.
func printRecordsTable(w io.Writer, records []drives.FileRecord) {
	headers := []string{"NAME", "SIZE", "MODIFIED"}
	rows := make([][]string, 0, len(records))

	for i := range records {
		rec := &records[i]
		name, size := rec.Name, formatSize(rec.Size)

		if rec.IsFolder() {
			name += "/"
			size = "-"
		}

		modified := "-"
		if !rec.ModifiedAt.IsZero() {
			modified = formatTime(rec.ModifiedAt.Local())
		}

		rows = append(rows, []string{name, size, modified})
	}

	printTable(w, headers, rows)
}
