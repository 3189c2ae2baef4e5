//go:build !unix

package platform

import "io/fs"

// IsRoot always reports false where there is no effective uid.
func IsRoot() bool {
	return false
}

// FileOwner is not available without unix ownership.
func FileOwner(info fs.FileInfo) (Owner, bool) {
	return Owner{}, false
}
