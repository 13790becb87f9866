package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"mocksync/pkg/logger"
)

const saveTimeout = 30 * time.Second

// revision is serialized content stamped in the order it was captured.
type revision struct {
	seq     uint64
	content []byte
}

// autosaver pushes serialized content to the store with at most one save in
// flight. Failures are logged and dropped; the next tick carries newer
// content anyway.
//
// Writes to the store never overlap, and a revision older than one already
// written is skipped.
type autosaver struct {
	store     Store
	projectID string
	saving    atomic.Bool
	seq       atomic.Uint64
	wg        sync.WaitGroup

	writeMu sync.Mutex
	written uint64
}

func newAutosaver(store Store, projectID string) *autosaver {
	return &autosaver{store: store, projectID: projectID}
}

// revision stamps content. Call it where the content is captured.
func (a *autosaver) revision(content []byte) revision {
	return revision{seq: a.seq.Add(1), content: content}
}

// Saving reports whether a save is in flight.
func (a *autosaver) Saving() bool {
	return a.saving.Load()
}

// trigger starts a background save of rev. It returns false without saving
// when another save has not finished yet.
func (a *autosaver) trigger(ctx context.Context, rev revision) bool {
	if !a.saving.CompareAndSwap(false, true) {
		logger.Sugar.Debugf("Save for project %s still in flight, skipping tick", a.projectID)
		return false
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.saving.Store(false)
		saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
		defer cancel()
		if err := a.write(saveCtx, rev); err != nil {
			logger.Sugar.Errorf("Autosave of project %s failed: %v", a.projectID, err)
		}
	}()
	return true
}

// save writes rev synchronously, after any save in flight.
func (a *autosaver) save(ctx context.Context, rev revision) error {
	if !a.saving.Swap(true) {
		defer a.saving.Store(false)
	}
	return a.write(ctx, rev)
}

// final issues the last save on leave. Nobody waits for it.
func (a *autosaver) final(rev revision) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := a.write(ctx, rev); err != nil {
			logger.Sugar.Errorf("Final save of project %s failed: %v", a.projectID, err)
		}
	}()
}

func (a *autosaver) write(ctx context.Context, rev revision) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if rev.seq <= a.written {
		logger.Sugar.Debugf("Skipping stale save %d of project %s", rev.seq, a.projectID)
		return nil
	}
	if err := a.store.SaveContent(ctx, a.projectID, rev.content); err != nil {
		return err
	}
	a.written = rev.seq
	logger.Sugar.Debugf("Saved project %s (%d bytes)", a.projectID, len(rev.content))
	return nil
}

// wait blocks until background saves return. Used by tests and the CLI.
func (a *autosaver) wait() {
	a.wg.Wait()
}
