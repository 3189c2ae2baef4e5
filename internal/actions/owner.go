package actions

import (
	"fmt"
	"os"

	"github.com/dunamismax/hostprep/internal/guard"
	"github.com/dunamismax/hostprep/internal/platform"
)

func chown(path, owner string) error {
	if owner == "" {
		return nil
	}
	o, err := platform.ResolveOwner(owner)
	if err != nil {
		return err
	}
	if err := os.Chown(path, o.UID, o.GID); err != nil {
		return fmt.Errorf("chown %s to %s: %w", path, owner, err)
	}
	return nil
}

// checkOwner refines a satisfied result with an ownership check.
func checkOwner(r guard.Result, path, owner string) guard.Result {
	if r.Status != guard.Satisfied || owner == "" {
		return r
	}
	info, err := os.Stat(path)
	if err != nil {
		return guard.Fail(err)
	}
	want, err := platform.ResolveOwner(owner)
	if err != nil {
		// The owner may be created by a later task; let the action decide.
		return guard.Need("owner %s: %v", owner, err)
	}
	got, ok := platform.FileOwner(info)
	if !ok {
		return r
	}
	if got.UID != want.UID || (want.GID >= 0 && got.GID != want.GID) {
		return guard.Need("%s is owned by %d:%d, want %s", path, got.UID, got.GID, owner)
	}
	return r
}
