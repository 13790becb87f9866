// Package session keeps one participant's copy of a project in step with the
// other participants and with the store.
//
// A Session owns the tab state, the remote cursors and the autosave timer.
// All of them are changed only on the goroutine running Run; the socket
// reader, editor notifications and public methods post work to it.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mocksync/internal/cursor"
	"mocksync/internal/document"
	"mocksync/internal/document/model"
	"mocksync/internal/editor"
	"mocksync/internal/throttle"
	"mocksync/pkg/logger"
	"mocksync/socket"
)

var (
	ErrClosed  = errors.New("session closed")
	ErrNotOpen = errors.New("session not opened")
)

// Channel is the relay connection a session broadcasts on.
type Channel interface {
	ID() string
	Join(ctx context.Context, projectID string) error
	Send(ctx context.Context, kind string, payload any) error
	OnReceive(kind string, h func(socket.Envelope))
	OnDisconnect(fn func(error))
	Close() error
}

// Store persists project content. Both the backend client and the SQL
// repository satisfy it.
type Store interface {
	LoadProject(ctx context.Context, projectID string) (model.Project, error)
	SaveContent(ctx context.Context, projectID string, content []byte) error
}

type Options struct {
	AutosaveInterval time.Duration
	ContentThrottle  time.Duration
	CursorThrottle   time.Duration
	CursorOffset     float64
	DisplayName      string
	NewTabID         document.IDFunc
	// Viewport reports the local editor canvas. Defaults to a fixed
	// 1280x800 canvas for headless sessions.
	Viewport func() cursor.Viewport
	Clock    throttle.Clock
}

func (o *Options) applyDefaults() {
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = 10 * time.Second
	}
	if o.ContentThrottle <= 0 {
		o.ContentThrottle = 150 * time.Millisecond
	}
	if o.CursorThrottle <= 0 {
		o.CursorThrottle = 60 * time.Millisecond
	}
	if o.CursorOffset == 0 {
		o.CursorOffset = cursor.DefaultOffset
	}
	if o.Viewport == nil {
		o.Viewport = func() cursor.Viewport {
			return cursor.Viewport{Width: 1280, Height: 800, ScrollWidth: 1280, ScrollHeight: 800}
		}
	}
	if o.Clock == nil {
		o.Clock = throttle.SystemClock
	}
}

type tabContent struct {
	markup, style string
}

type Session struct {
	projectID string
	ch        Channel
	ed        editor.Adapter
	store     Store
	opts      Options

	state    *document.State
	cursors  *cursor.Manager
	echo     Suppressor
	lastSeen map[string]tabContent // tab id -> content last applied or broadcast
	autosave *autosaver

	contentOut *throttle.Throttle[socket.EditorUpdate]
	cursorOut  *throttle.Throttle[socket.CursorMove]
	sendCtx    context.Context

	ops         chan func()
	changed     chan struct{}
	done        chan struct{}
	unsubscribe func()
}

func New(projectID string, ch Channel, ed editor.Adapter, store Store, opts Options) *Session {
	opts.applyDefaults()
	s := &Session{
		projectID: projectID,
		ch:        ch,
		ed:        ed,
		store:     store,
		opts:      opts,
		lastSeen:  make(map[string]tabContent),
		autosave:  newAutosaver(store, projectID),
		sendCtx:   context.Background(),
		ops:       make(chan func(), 64),
		changed:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.contentOut = throttle.NewWithClock(opts.ContentThrottle, func(u socket.EditorUpdate) {
		s.send(socket.EditorUpdateType, u)
	}, opts.Clock)
	s.cursorOut = throttle.NewWithClock(opts.CursorThrottle, func(m socket.CursorMove) {
		s.send(socket.CursorMoveType, m)
	}, opts.Clock)
	return s
}

// Open loads the project, shows its first tab in the editor and joins the
// project's room. Call it once, before Run.
func (s *Session) Open(ctx context.Context) error {
	project, err := s.store.LoadProject(ctx, s.projectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", s.projectID, err)
	}
	s.state = document.NewState(document.LoadContent(s.projectID, project.Content), s.opts.NewTabID)
	s.cursors = cursor.NewManager(s.state.ActiveID())
	s.loadActive()

	for _, kind := range []string{socket.TabsSnapshotType, socket.EditorUpdateType, socket.CursorMoveType, socket.CursorLeaveType} {
		s.ch.OnReceive(kind, func(env socket.Envelope) {
			s.post(func() { s.handle(env) })
		})
	}
	s.ch.OnDisconnect(func(err error) {
		s.post(func() {
			logger.Sugar.Warnf("Lost relay for project %s, continuing offline: %v", s.projectID, err)
			s.cursors.Clear()
		})
	})
	s.unsubscribe = s.ed.OnChange(s.editorChanged)

	if err := s.ch.Join(ctx, s.projectID); err != nil {
		s.unsubscribe()
		return fmt.Errorf("join project %s: %w", s.projectID, err)
	}
	logger.Sugar.Infof("Opened project %s (%q) with %d tabs as %s", s.projectID, project.Name, len(s.state.Tabs()), s.ch.ID())
	return nil
}

// Run processes events until ctx is done, then leaves the project: the
// channel is closed, markers are dropped and a final save is issued without
// waiting for it.
func (s *Session) Run(ctx context.Context) error {
	if s.state == nil {
		return ErrNotOpen
	}
	s.sendCtx = ctx
	ticker := time.NewTicker(s.opts.AutosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.leave()
			return nil
		case op := <-s.ops:
			op()
		case <-s.changed:
			s.localChange()
		case <-ticker.C:
			s.autosaveTick(ctx)
		}
	}
}

func (s *Session) leave() {
	close(s.done)
	s.contentOut.Cancel()
	s.cursorOut.Cancel()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cursors.Clear()
	if err := s.ch.Close(); err != nil {
		logger.Sugar.Debugf("Closing channel for project %s: %v", s.projectID, err)
	}
	if content, err := s.snapshot(); err == nil {
		s.autosave.final(s.autosave.revision(content))
	}
	logger.Sugar.Infof("Left project %s", s.projectID)
}

// Done is closed when the session has left its project.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// post queues fn on the event loop without waiting for it.
func (s *Session) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.done:
	}
}

// do runs fn on the event loop and waits for it.
func (s *Session) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// editorChanged runs on whatever goroutine the adapter notifies from. It
// must not block: the loop itself triggers notifications when it writes to
// the editor.
func (s *Session) editorChanged() {
	if s.echo.Suppressed() {
		return
	}
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Session) localChange() {
	live := tabContent{markup: s.ed.Markup(), style: s.ed.Style()}
	active := s.state.ActiveID()
	if s.lastSeen[active] == live {
		return
	}
	s.lastSeen[active] = live
	s.contentOut.Call(socket.EditorUpdate{TabID: active, Markup: live.markup, Style: live.style})
}

func (s *Session) handle(env socket.Envelope) {
	switch env.Type {
	case socket.TabsSnapshotType:
		var snapshot socket.TabsSnapshot
		if err := env.Decode(&snapshot); err != nil {
			logger.Sugar.Warnf("Ignoring tab list from %s: %v", env.SenderID, err)
			return
		}
		s.applyTabs(snapshot.Tabs)

	case socket.EditorUpdateType:
		var update socket.EditorUpdate
		if err := env.Decode(&update); err != nil {
			logger.Sugar.Warnf("Ignoring update from %s: %v", env.SenderID, err)
			return
		}
		s.applyContent(update)

	case socket.CursorMoveType:
		var move socket.CursorMove
		if err := env.Decode(&move); err != nil {
			return
		}
		pos := cursor.Position{RX: clamp01(move.RX), RY: clamp01(move.RY)}
		s.cursors.Move(env.SenderID, move.Name, move.TabID, pos, s.opts.Viewport())

	case socket.CursorLeaveType:
		s.cursors.Leave(env.SenderID)
	}
}

func (s *Session) applyTabs(tabs []model.TabMeta) {
	s.state.CaptureActive(s.ed)
	changed, err := s.state.Reconcile(tabs)
	if err != nil {
		logger.Sugar.Warnf("Rejected tab list for project %s: %v", s.projectID, err)
		return
	}
	for id := range s.lastSeen {
		if _, ok := s.state.Tab(id); !ok {
			delete(s.lastSeen, id)
		}
	}
	if changed {
		s.contentOut.Cancel()
		s.activated()
	}
}

// applyContent replaces a tab's content with a peer's (last writer wins).
func (s *Session) applyContent(u socket.EditorUpdate) {
	if !s.state.ApplyContent(u.TabID, u.Markup, u.Style) {
		logger.Sugar.Debugf("Ignoring update for unknown tab %s", u.TabID)
		return
	}
	s.lastSeen[u.TabID] = tabContent{markup: u.Markup, style: u.Style}
	if u.TabID != s.state.ActiveID() {
		return
	}
	// A queued local emit for this tab would overwrite the peer's content
	// everywhere else while this editor shows the peer's.
	s.contentOut.Cancel()
	s.echo.Guard(func() {
		s.ed.SetMarkup(u.Markup)
		s.ed.SetStyle(u.Style)
	})
}

// loadActive pushes the active tab into the editor.
func (s *Session) loadActive() {
	s.echo.Guard(func() { s.state.LoadActive(s.ed) })
	tab := s.state.Active()
	s.lastSeen[tab.ID] = tabContent{markup: tab.Markup, style: tab.Style}
}

// activated finishes a change of active tab: the new tab is in the editor
// and cursors tracked against the old one are gone, ours included.
func (s *Session) activated() {
	s.loadActive()
	s.cursors.SetActiveTab(s.state.ActiveID())
	s.cursorOut.Cancel()
	s.send(socket.CursorLeaveType, socket.CursorLeave{})
}

func (s *Session) broadcastTabs() {
	s.send(socket.TabsSnapshotType, socket.TabsSnapshot{Tabs: s.state.Meta()})
}

func (s *Session) send(kind string, payload any) {
	if err := s.ch.Send(s.sendCtx, kind, payload); err != nil {
		logger.Sugar.Debugf("Could not send %s for project %s: %v", kind, s.projectID, err)
	}
}

func (s *Session) snapshot() ([]byte, error) {
	s.state.CaptureActive(s.ed)
	return document.Marshal(s.state.Tabs())
}

func (s *Session) autosaveTick(ctx context.Context) {
	if s.autosave.Saving() {
		logger.Sugar.Debugf("Save for project %s still in flight, skipping tick", s.projectID)
		return
	}
	content, err := s.snapshot()
	if err != nil {
		logger.Sugar.Errorf("Serializing project %s: %v", s.projectID, err)
		return
	}
	s.autosave.trigger(ctx, s.autosave.revision(content))
}

// AddTab creates a tab, switches to it and announces the new tab list.
func (s *Session) AddTab(name string) (model.Tab, error) {
	var (
		tab model.Tab
		err error
	)
	if doErr := s.do(func() {
		tab, err = s.state.AddTab(name)
		if err != nil {
			return
		}
		s.broadcastTabs()
		s.switchTo(tab.ID)
	}); doErr != nil {
		return model.Tab{}, doErr
	}
	return tab, err
}

func (s *Session) RenameTab(id, name string) error {
	var err error
	if doErr := s.do(func() {
		if err = s.state.RenameTab(id, name); err == nil {
			s.broadcastTabs()
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// DeleteTab removes a tab. Deleting the last tab fails with an error
// matching document.ErrLastTab and changes nothing.
func (s *Session) DeleteTab(id string) error {
	var err error
	if doErr := s.do(func() {
		var changed bool
		if changed, err = s.state.DeleteTab(id); err != nil {
			return
		}
		delete(s.lastSeen, id)
		s.broadcastTabs()
		if changed {
			// The pending emit belongs to the tab that is gone.
			s.contentOut.Cancel()
			s.activated()
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) SwitchTab(id string) error {
	var err error
	if doErr := s.do(func() { err = s.switchTo(id) }); doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) switchTo(id string) error {
	if _, ok := s.state.Tab(id); !ok {
		return fmt.Errorf("switch to %s: %w", id, document.ErrTabNotFound)
	}
	// Send what was typed on the outgoing tab before it stops being active.
	s.localChange()
	s.contentOut.Flush()
	var (
		changed bool
		err     error
	)
	s.echo.Guard(func() { changed, err = s.state.SetActive(id, s.ed) })
	if err != nil || !changed {
		return err
	}
	tab := s.state.Active()
	s.lastSeen[tab.ID] = tabContent{markup: tab.Markup, style: tab.Style}
	s.cursors.SetActiveTab(tab.ID)
	s.cursorOut.Cancel()
	s.send(socket.CursorLeaveType, socket.CursorLeave{})
	return nil
}

// MoveCursor reports the local pointer at screen position (px, py). Positions
// outside the canvas are not sent.
func (s *Session) MoveCursor(px, py float64) error {
	return s.do(func() {
		pos, ok := cursor.Normalize(s.opts.Viewport(), px, py, s.opts.CursorOffset)
		if !ok {
			return
		}
		s.cursorOut.Call(socket.CursorMove{
			TabID: s.state.ActiveID(),
			Name:  s.opts.DisplayName,
			RX:    pos.RX,
			RY:    pos.RY,
		})
	})
}

// LeaveCursor tells peers the local pointer left the canvas.
func (s *Session) LeaveCursor() error {
	return s.do(func() {
		s.cursorOut.Cancel()
		s.send(socket.CursorLeaveType, socket.CursorLeave{})
	})
}

// ViewportChanged repositions remote markers after the local canvas scrolled
// or resized.
func (s *Session) ViewportChanged() error {
	return s.do(func() { s.cursors.Reproject(s.opts.Viewport()) })
}

func (s *Session) Tabs() ([]model.Tab, error) {
	var tabs []model.Tab
	err := s.do(func() {
		s.state.CaptureActive(s.ed)
		tabs = s.state.Tabs()
	})
	return tabs, err
}

func (s *Session) ActiveTab() (string, error) {
	var id string
	err := s.do(func() { id = s.state.ActiveID() })
	return id, err
}

func (s *Session) Markers() ([]cursor.Marker, error) {
	var markers []cursor.Marker
	err := s.do(func() { markers = s.cursors.Markers() })
	return markers, err
}

// Saving reports whether an autosave is in flight.
func (s *Session) Saving() bool {
	return s.autosave.Saving()
}

// SaveNow saves the current content and waits for the store.
func (s *Session) SaveNow(ctx context.Context) error {
	var (
		rev revision
		err error
	)
	if doErr := s.do(func() {
		var content []byte
		if content, err = s.snapshot(); err == nil {
			rev = s.autosave.revision(content)
		}
	}); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}
	if err := s.autosave.save(ctx, rev); err != nil {
		return fmt.Errorf("save project %s: %w", s.projectID, err)
	}
	return nil
}

// Wait blocks until background saves, including the final one, returned.
func (s *Session) Wait() {
	s.autosave.wait()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
