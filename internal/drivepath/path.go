// Package drivepath parses user-supplied paths such as "c:/Work/report.txt"
// into a drive name, a normalized folder path and an optional file name.
//
// Normalized paths are '/'-rooted, '/'-joined, contain no "." or ".."
// segments and no duplicate or trailing slashes (root is "/"). Segments are
// NFC-normalized so the same name typed on different platforms compares equal.
package drivepath

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Root is the normalized root folder.
const Root = "/"

const (
	separator = "/"
	current   = "."
	parent    = ".."
)

// Split returns the segments of p, dropping empty ones. Split("/a//b/") is
// ["a", "b"].
func Split(p string) []string {
	raw := strings.Split(p, separator)

	out := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg != "" {
			out = append(out, seg)
		}
	}

	return out
}

// Join builds a normalized absolute path from already-clean segments or
// sub-paths. Join() and Join("") are "/".
func Join(parts ...string) string {
	var segs []string
	for _, p := range parts {
		segs = append(segs, Split(p)...)
	}

	return Root + strings.Join(segs, separator)
}

// Normalize resolves raw against base. An absolute raw path (leading '/')
// starts from the root; otherwise resolution starts from base. "." segments
// are dropped and ".." pops the previous segment, never going above root.
func Normalize(base, raw string) string {
	var segs []string
	if !strings.HasPrefix(raw, separator) {
		segs = resolveSegments(nil, base)
	}

	segs = resolveSegments(segs, raw)

	return Root + strings.Join(segs, separator)
}

func resolveSegments(acc []string, p string) []string {
	for _, seg := range Split(p) {
		switch seg {
		case current:
		case parent:
			if len(acc) > 0 {
				acc = acc[:len(acc)-1]
			}
		default:
			acc = append(acc, norm.NFC.String(seg))
		}
	}

	return acc
}

// Rel returns p relative to root as an absolute path, or "/" when p equals
// root. p must be root itself or lie beneath it.
func Rel(root, p string) string {
	rootSegs := Split(root)
	pSegs := Split(p)

	if len(pSegs) < len(rootSegs) {
		return Root
	}

	return Join(pSegs[len(rootSegs):]...)
}

// IsFolderPath reports whether raw addresses a folder rather than a file:
// it is empty, ends in '/', or its last segment is "." or "..". The drive
// prefix, if any, is ignored.
func IsFolderPath(raw string) bool {
	p := raw
	if _, rest, found := SplitDrive(raw); found {
		p = rest
	}

	if p == "" || strings.HasSuffix(p, separator) {
		return true
	}

	last := p[strings.LastIndex(p, separator)+1:]

	return last == current || last == parent
}

// SplitDrive splits raw at the first ':'. Colons after the first belong to
// the path. Without a prefix found is false and raw is the whole path.
func SplitDrive(raw string) (drive, path string, found bool) {
	return strings.Cut(raw, ":")
}
