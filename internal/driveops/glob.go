package driveops

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dabbu/dabbu-go/internal/drivepath"
)

const wildcard = "*"

// HasGlob reports whether s contains a wildcard.
func HasGlob(s string) bool {
	return strings.Contains(s, wildcard)
}

// CompileGlob turns a single-segment pattern into an anchored regexp: each
// '*' matches any run of characters, everything else matches literally.
func CompileGlob(pattern string) (*regexp.Regexp, error) {
	if strings.Contains(pattern, "/") {
		return nil, fmt.Errorf("%q: %w", pattern, ErrUnsupportedGlob)
	}

	parts := strings.Split(pattern, wildcard)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}

	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}

// splitGlob separates a raw path whose last segment holds wildcards into the
// raw folder part (drive prefix kept) and the pattern.
func splitGlob(raw string) (folderRaw, pattern string, err error) {
	prefix, p := "", raw
	if drive, rest, found := drivepath.SplitDrive(raw); found {
		prefix, p = drive+":", rest
	}

	i := strings.LastIndex(p, "/")
	dir, pattern := p[:i+1], p[i+1:]

	if HasGlob(dir) || !HasGlob(pattern) {
		return "", "", fmt.Errorf("%q: %w", raw, ErrUnsupportedGlob)
	}

	return prefix + dir, pattern, nil
}
