// Package tags computes the tags describing this host. Profile tasks use
// only_tags / exclude_tags to apply to a subset of hosts.
package tags

import (
	"os"
	"runtime"
	"slices"
	"strings"

	"github.com/dunamismax/hostprep/internal/platform"
)

// AutoDetect returns a baseline set of tags derived from the current machine:
// GOOS, GOARCH, hostname, and the distribution ID and ID_LIKE entries from
// os-release.
func AutoDetect(osr platform.OSRelease) []string {
	tags := []string{runtime.GOOS, runtime.GOARCH}
	if h, err := os.Hostname(); err == nil && h != "" {
		tags = append(tags, h)
	}
	if osr.ID != "" {
		tags = append(tags, osr.ID)
	}
	tags = append(tags, osr.IDLike...)
	return tags
}

// Merge concatenates tag lists, dropping empties and duplicates while
// keeping first-seen order.
func Merge(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		for _, t := range l {
			t = strings.TrimSpace(t)
			if t != "" && !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	return out
}

// Matches returns true when hostTags satisfies the onlyTags/excludeTags
// constraints defined on a task.
//
//   - If onlyTags is non-empty, at least one must be present in hostTags.
//   - If excludeTags is non-empty, none may be present in hostTags.
func Matches(hostTags, onlyTags, excludeTags []string) bool {
	for _, t := range excludeTags {
		if slices.Contains(hostTags, t) {
			return false
		}
	}
	if len(onlyTags) == 0 {
		return true
	}
	for _, t := range onlyTags {
		if slices.Contains(hostTags, t) {
			return true
		}
	}
	return false
}
