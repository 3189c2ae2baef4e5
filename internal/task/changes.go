package task

import "sync"

// ChangeSet records the IDs of tasks that changed the host during a run, so
// later tasks (service restarts) can react to them. A nil ChangeSet records
// nothing and reports no changes.
type ChangeSet struct {
	mu  sync.Mutex
	ids map[string]bool
}

// NewChangeSet returns an empty ChangeSet.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{ids: make(map[string]bool)}
}

// Mark records that task id changed the host.
func (c *ChangeSet) Mark(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ids[id] = true
	c.mu.Unlock()
}

// Changed returns the first of ids that was marked.
func (c *ChangeSet) Changed(ids ...string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if c.ids[id] {
			return id, true
		}
	}
	return "", false
}
