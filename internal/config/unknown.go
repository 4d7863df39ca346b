package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section.
var knownKeys = map[string][]string{
	"server":    {"url", "credentials"},
	"auth":      {"open_browser", "callback_timeout"},
	"logging":   {"log_level", "log_format"},
	"network":   {"timeout", "user_agent"},
	"transfers": {"temp_dir"},
}

// knownSections is the sorted list of section names, for deterministic
// suggestions when two candidates have the same edit distance.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	// An unknown table is reported once, not once per key inside it.
	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := unknownKeyError(key)
		if seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// unknownKeyError describes a single undecoded key. Top-level keys are matched
// against section names; keys inside a known section against that section's
// keys.
func unknownKeyError(key toml.Key) error {
	if len(key) == 1 {
		if section := sectionOf(key[0]); section != "" {
			return fmt.Errorf("config key %q must be inside the [%s] section", key[0], section)
		}

		return suggest(fmt.Sprintf("unknown config section %q", key[0]), key[0], knownSections)
	}

	section, name := key[0], key[len(key)-1]

	known, ok := knownKeys[section]
	if !ok {
		return suggest(fmt.Sprintf("unknown config section %q", section), section, knownSections)
	}

	return suggest(fmt.Sprintf("unknown config key %q in [%s]", name, section), name, known)
}

// sectionOf returns the section that defines key, or "" if none does.
func sectionOf(key string) string {
	for _, section := range knownSections {
		for _, k := range knownKeys[section] {
			if k == key {
				return section
			}
		}
	}

	return ""
}

func suggest(msg, unknown string, known []string) error {
	if s := closestMatch(unknown, known); s != "" {
		return fmt.Errorf("%s, did you mean %q?", msg, s)
	}

	return errors.New(msg)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization avoids allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
