package session

import "sync/atomic"

// Suppressor marks editor changes caused by applying remote content, so the
// change handler does not broadcast them back. Editors report programmatic
// replacements exactly like user edits.
type Suppressor struct {
	armed atomic.Bool
}

// Guard runs apply with the suppressor armed. Every notification delivered
// while apply runs is treated as an echo.
func (e *Suppressor) Guard(apply func()) {
	e.armed.Store(true)
	defer e.armed.Store(false)
	apply()
}

func (e *Suppressor) Suppressed() bool {
	return e.armed.Load()
}
