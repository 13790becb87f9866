package document

import (
	"errors"
	"fmt"
	"strings"

	"mocksync/internal/document/model"

	"github.com/google/uuid"
)

var (
	ErrTabNotFound   = errors.New("tab not found")
	ErrEmptyName     = errors.New("tab name cannot be empty")
	ErrEmptySnapshot = errors.New("tab snapshot has no tabs")
	ErrLastTab       = errors.New("cannot delete the last tab")
)

// LastTabError is returned when deleting the only remaining tab.
type LastTabError struct {
	TabID string
}

func (e *LastTabError) Error() string {
	return fmt.Sprintf("cannot delete %s: it is the last tab", e.TabID)
}

func (e *LastTabError) Is(target error) bool {
	return target == ErrLastTab
}

// Editor is the part of the editor adapter that tab switching needs.
type Editor interface {
	Markup() string
	Style() string
	SetMarkup(markup string)
	SetStyle(style string)
}

// IDFunc generates ids for locally created tabs.
type IDFunc func() string

// NewTabID returns "tab-" followed by a random UUID.
func NewTabID() string {
	return "tab-" + uuid.NewString()
}

// State is the in-memory copy of a project's tabs. It is not safe for
// concurrent use; the owning session serializes access.
type State struct {
	tabs   []model.Tab
	active string
	newID  IDFunc
}

// NewState builds a state from tabs, activating the first one. An empty tab
// list yields the default single-tab document.
func NewState(tabs []model.Tab, newID IDFunc) *State {
	if newID == nil {
		newID = NewTabID
	}
	if len(tabs) == 0 {
		tabs = DefaultTabs()
	}
	s := &State{tabs: make([]model.Tab, len(tabs)), newID: newID}
	copy(s.tabs, tabs)
	s.active = s.tabs[0].ID
	return s
}

// DefaultTabs is the document used when nothing usable was persisted.
func DefaultTabs() []model.Tab {
	return []model.Tab{{ID: "tab-1", Name: "Page 1"}}
}

func (s *State) Tabs() []model.Tab {
	out := make([]model.Tab, len(s.tabs))
	copy(out, s.tabs)
	return out
}

func (s *State) Meta() []model.TabMeta {
	out := make([]model.TabMeta, len(s.tabs))
	for i, t := range s.tabs {
		out[i] = t.Meta()
	}
	return out
}

func (s *State) ActiveID() string {
	return s.active
}

// Active returns the active tab record. Its content may lag the editor.
func (s *State) Active() model.Tab {
	return s.tabs[s.index(s.active)]
}

func (s *State) Tab(id string) (model.Tab, bool) {
	i := s.index(id)
	if i < 0 {
		return model.Tab{}, false
	}
	return s.tabs[i], true
}

// SetActive stores the editor's live content into the outgoing tab, activates
// id and loads its content into the editor. It reports false without touching
// the editor when id is already active.
func (s *State) SetActive(id string, ed Editor) (bool, error) {
	if id == s.active {
		return false, nil
	}
	next := s.index(id)
	if next < 0 {
		return false, fmt.Errorf("activate %s: %w", id, ErrTabNotFound)
	}
	s.CaptureActive(ed)
	s.active = id
	load(ed, s.tabs[next])
	return true, nil
}

// CaptureActive copies the editor's live content into the active tab record.
func (s *State) CaptureActive(ed Editor) {
	if ed == nil {
		return
	}
	i := s.index(s.active)
	s.tabs[i].Markup = ed.Markup()
	s.tabs[i].Style = ed.Style()
}

func (s *State) AddTab(name string) (model.Tab, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Tab{}, ErrEmptyName
	}
	id := s.newID()
	for s.index(id) >= 0 {
		id = s.newID()
	}
	tab := model.Tab{ID: id, Name: name}
	s.tabs = append(s.tabs, tab)
	return tab, nil
}

func (s *State) RenameTab(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("rename %s: %w", id, ErrTabNotFound)
	}
	s.tabs[i].Name = name
	return nil
}

// DeleteTab removes a tab. When the active tab is removed the first remaining
// tab becomes active and activeChanged is true; the caller loads it into the
// editor.
func (s *State) DeleteTab(id string) (activeChanged bool, err error) {
	i := s.index(id)
	if i < 0 {
		return false, fmt.Errorf("delete %s: %w", id, ErrTabNotFound)
	}
	if len(s.tabs) == 1 {
		return false, &LastTabError{TabID: id}
	}
	s.tabs = append(s.tabs[:i], s.tabs[i+1:]...)
	if id == s.active {
		s.active = s.tabs[0].ID
		return true, nil
	}
	return false, nil
}

// Reconcile merges a remote tab list. The remote list decides structure and
// names; cached content is kept for known ids and unknown ids start empty.
// When the active tab disappears the first merged tab becomes active.
func (s *State) Reconcile(remote []model.TabMeta) (activeChanged bool, err error) {
	if len(remote) == 0 {
		return false, ErrEmptySnapshot
	}
	merged := make([]model.Tab, 0, len(remote))
	seen := make(map[string]struct{}, len(remote))
	for _, meta := range remote {
		if _, dup := seen[meta.ID]; dup || meta.ID == "" {
			continue
		}
		seen[meta.ID] = struct{}{}
		tab, ok := s.Tab(meta.ID)
		if !ok {
			tab = model.Tab{ID: meta.ID}
		}
		tab.Name = meta.Name
		merged = append(merged, tab)
	}
	if len(merged) == 0 {
		return false, ErrEmptySnapshot
	}
	s.tabs = merged
	if _, ok := seen[s.active]; !ok {
		s.active = merged[0].ID
		return true, nil
	}
	return false, nil
}

// ApplyContent replaces a tab's content wholesale (last writer wins). Unknown
// tabs are ignored.
func (s *State) ApplyContent(id, markup, style string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.tabs[i].Markup = markup
	s.tabs[i].Style = style
	return true
}

// LoadActive pushes the active tab's content into the editor.
func (s *State) LoadActive(ed Editor) {
	load(ed, s.Active())
}

func (s *State) Content() model.Content {
	return model.Content{Tabs: s.Tabs()}
}

func (s *State) index(id string) int {
	for i := range s.tabs {
		if s.tabs[i].ID == id {
			return i
		}
	}
	return -1
}

func load(ed Editor, tab model.Tab) {
	if ed == nil {
		return
	}
	ed.SetMarkup(tab.Markup)
	ed.SetStyle(tab.Style)
}
