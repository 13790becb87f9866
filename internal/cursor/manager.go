package cursor

import "sort"

// Marker is a remote participant's cursor on the local screen.
type Marker struct {
	SenderID string
	Name     string
	TabID    string
	Position Position
	At       Point
}

// Manager keeps one marker per remote participant for the active tab.
// Not safe for concurrent use.
type Manager struct {
	activeTab string
	markers   map[string]Marker
}

func NewManager(activeTab string) *Manager {
	return &Manager{activeTab: activeTab, markers: make(map[string]Marker)}
}

// SetActiveTab switches the tab markers are tracked against. Coordinates are
// tab-relative, so every marker is dropped when the tab changes.
func (m *Manager) SetActiveTab(tabID string) {
	if tabID == m.activeTab {
		return
	}
	m.activeTab = tabID
	m.Clear()
}

func (m *Manager) ActiveTab() string {
	return m.activeTab
}

// Move places or updates the sender's marker. A move reported against another
// tab removes the sender's marker instead, since it no longer points at what
// is on screen.
func (m *Manager) Move(senderID, name, tabID string, pos Position, v Viewport) (Marker, bool) {
	if tabID != m.activeTab {
		delete(m.markers, senderID)
		return Marker{}, false
	}
	marker := Marker{
		SenderID: senderID,
		Name:     name,
		TabID:    tabID,
		Position: pos,
		At:       Project(v, pos),
	}
	m.markers[senderID] = marker
	return marker, true
}

func (m *Manager) Leave(senderID string) bool {
	if _, ok := m.markers[senderID]; !ok {
		return false
	}
	delete(m.markers, senderID)
	return true
}

func (m *Manager) Clear() {
	for id := range m.markers {
		delete(m.markers, id)
	}
}

// Reproject recomputes screen positions after the local viewport scrolled or
// resized.
func (m *Manager) Reproject(v Viewport) {
	for id, marker := range m.markers {
		marker.At = Project(v, marker.Position)
		m.markers[id] = marker
	}
}

func (m *Manager) Len() int {
	return len(m.markers)
}

func (m *Manager) Markers() []Marker {
	out := make([]Marker, 0, len(m.markers))
	for _, marker := range m.markers {
		out = append(out, marker)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SenderID < out[j].SenderID })
	return out
}
