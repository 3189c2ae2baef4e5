package platform

import (
	"fmt"
	"os/user"
	"strconv"
	"strings"
)

// Owner is a resolved numeric uid/gid pair.
type Owner struct {
	UID int
	GID int
}

// ResolveOwner parses "user" or "user:group" into numeric ids. With no group
// the user's primary group is used. Numeric names are accepted as-is.
func ResolveOwner(spec string) (Owner, error) {
	name, group, hasGroup := strings.Cut(spec, ":")
	if name == "" {
		return Owner{}, fmt.Errorf("invalid owner %q", spec)
	}
	var o Owner
	u, err := user.Lookup(name)
	if err != nil {
		uid, convErr := strconv.Atoi(name)
		if convErr != nil {
			return Owner{}, fmt.Errorf("owner %q: %w", spec, err)
		}
		o.UID, o.GID = uid, -1
	} else {
		o.UID, _ = strconv.Atoi(u.Uid)
		o.GID, _ = strconv.Atoi(u.Gid)
	}
	if !hasGroup || group == "" {
		return o, nil
	}
	g, err := user.LookupGroup(group)
	if err != nil {
		gid, convErr := strconv.Atoi(group)
		if convErr != nil {
			return Owner{}, fmt.Errorf("owner %q: %w", spec, err)
		}
		o.GID = gid
		return o, nil
	}
	o.GID, _ = strconv.Atoi(g.Gid)
	return o, nil
}
