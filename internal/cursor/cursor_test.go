package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var screen = Viewport{
	Left: 100, Top: 50, Width: 800, Height: 600,
	ScrollWidth: 800, ScrollHeight: 600,
}

func TestRoundTripCenter(t *testing.T) {
	pos, ok := Normalize(screen, 500, 350, 0)
	require.True(t, ok)
	assert.InDelta(t, 0.5, pos.RX, 1e-9)
	assert.InDelta(t, 0.5, pos.RY, 1e-9)

	assert.Equal(t, screen.Center(), Project(screen, pos))
}

func TestNormalizeUsesScrollAndOffset(t *testing.T) {
	v := Viewport{Left: 0, Top: 40, Width: 400, Height: 300, ScrollLeft: 200, ScrollTop: 100, ScrollWidth: 800, ScrollHeight: 1000}
	pos, ok := Normalize(v, 200, 140, DefaultOffset)
	require.True(t, ok)
	assert.InDelta(t, (200.0+200)/800, pos.RX, 1e-9)
	assert.InDelta(t, (100.0+100+DefaultOffset)/1000, pos.RY, 1e-9)
}

func TestNormalizeRejectsOutside(t *testing.T) {
	cases := map[string][2]float64{
		"left of area":    {99, 300},
		"right of area":   {901, 300},
		"below area":      {500, 651},
		"above allowance": {500, 50 - DefaultOffset - 1},
	}
	for name, p := range cases {
		_, ok := Normalize(screen, p[0], p[1], DefaultOffset)
		assert.False(t, ok, name)
	}
	_, ok := Normalize(screen, 500, 50-DefaultOffset, DefaultOffset)
	assert.True(t, ok, "the offset band above the area is allowed")

	_, ok = Normalize(Viewport{Width: 10, Height: 10}, 5, 5, 0)
	assert.False(t, ok, "zero scroll extents")
}

func TestProjectClampsToBounds(t *testing.T) {
	assert.Equal(t, Point{X: screen.Right(), Y: screen.Bottom()}, Project(screen, Position{RX: 2, RY: 2}))

	scrolled := screen
	scrolled.ScrollTop = 5000
	assert.Equal(t, screen.Top, Project(scrolled, Position{RX: 0.5, RY: 0.1}).Y)
}

func TestProjectUsesReceiverViewport(t *testing.T) {
	receiver := Viewport{Left: 0, Top: 0, Width: 400, Height: 400, ScrollLeft: 100, ScrollTop: 0, ScrollWidth: 800, ScrollHeight: 400}
	assert.Equal(t, Point{X: 300, Y: 200}, Project(receiver, Position{RX: 0.5, RY: 0.5}))
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager("tab-1")
	_, ok := m.Move("a", "Ana", "tab-1", Position{RX: 0.5, RY: 0.5}, screen)
	require.True(t, ok)
	m.Move("b", "Bo", "tab-1", Position{RX: 0, RY: 0}, screen)
	assert.Equal(t, 2, m.Len())

	marker, ok := m.Move("a", "Ana", "tab-1", Position{RX: 1, RY: 1}, screen)
	require.True(t, ok)
	assert.Equal(t, Point{X: screen.Right(), Y: screen.Bottom()}, marker.At)
	assert.Equal(t, 2, m.Len(), "updates do not add markers")

	assert.True(t, m.Leave("b"))
	assert.False(t, m.Leave("b"))
	markers := m.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, "Ana", markers[0].Name)
}

func TestManagerMoveOnOtherTabRemovesMarker(t *testing.T) {
	m := NewManager("tab-1")
	m.Move("a", "Ana", "tab-1", Position{}, screen)
	_, ok := m.Move("a", "Ana", "tab-2", Position{}, screen)
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestSwitchingTabClearsAllMarkers(t *testing.T) {
	m := NewManager("tab-1")
	for _, id := range []string{"a", "b", "c", "d"} {
		m.Move(id, id, "tab-1", Position{RX: 0.2, RY: 0.2}, screen)
	}
	require.Equal(t, 4, m.Len())

	m.SetActiveTab("tab-1")
	assert.Equal(t, 4, m.Len(), "same tab keeps markers")
	m.SetActiveTab("tab-2")
	assert.Zero(t, m.Len())
	assert.Equal(t, "tab-2", m.ActiveTab())
}

func TestReproject(t *testing.T) {
	m := NewManager("tab-1")
	m.Move("a", "Ana", "tab-1", Position{RX: 0.5, RY: 0.5}, screen)
	moved := screen
	moved.Left = 0
	moved.Top = 0
	m.Reproject(moved)
	assert.Equal(t, moved.Center(), m.Markers()[0].At)
}
