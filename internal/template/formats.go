package template

import (
	"strings"

	"github.com/dunamismax/hostprep/internal/config"
)

// MergeSettings applies settings to the content of a "Key<sep>Value" config
// file such as sshd_config. For each setting the first active line with that
// key is rewritten; failing that, the first commented-out line ("#Key ...")
// is replaced; failing that, the setting is appended. Keys are compared
// case-insensitively. An empty sep means a single space.
func MergeSettings(existing string, settings config.Settings, sep string) string {
	if sep == "" {
		sep = " "
	}
	lines := splitLines(existing)
	for _, s := range settings {
		want := s.Key + sep + s.Value
		idx := findKey(lines, s.Key, sep, false)
		if idx < 0 {
			idx = findKey(lines, s.Key, sep, true)
		}
		if idx >= 0 {
			lines[idx] = want
		} else {
			lines = append(lines, want)
		}
	}
	return joinLines(lines)
}

// EnsureLines appends each line that is not already present verbatim
// (ignoring surrounding whitespace).
func EnsureLines(existing string, want []string) string {
	lines := splitLines(existing)
	have := make(map[string]bool, len(lines))
	for _, l := range lines {
		have[strings.TrimSpace(l)] = true
	}
	for _, w := range want {
		if have[strings.TrimSpace(w)] {
			continue
		}
		lines = append(lines, w)
		have[strings.TrimSpace(w)] = true
	}
	return joinLines(lines)
}

func findKey(lines []string, key, sep string, commented bool) int {
	for i, l := range lines {
		body := strings.TrimSpace(l)
		if commented {
			if !strings.HasPrefix(body, "#") {
				continue
			}
			body = strings.TrimSpace(strings.TrimLeft(body, "#"))
		} else if strings.HasPrefix(body, "#") {
			continue
		}
		if lineKey(body, sep) != "" && strings.EqualFold(lineKey(body, sep), key) {
			return i
		}
	}
	return -1
}

func lineKey(body, sep string) string {
	if strings.TrimSpace(sep) == "" {
		if f := strings.Fields(body); len(f) > 0 {
			return f[0]
		}
		return ""
	}
	k, _, ok := strings.Cut(body, strings.TrimSpace(sep))
	if !ok {
		return ""
	}
	return strings.TrimSpace(k)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
