// Package editor adapts page editors to the session. The session only needs
// to read and replace a tab's markup and style and to hear about local edits.
package editor

import "sync"

type Adapter interface {
	Markup() string
	Style() string
	SetMarkup(markup string)
	SetStyle(style string)
	// OnChange registers fn for local content changes and returns a function
	// that removes it. fn may be called from any goroutine.
	OnChange(fn func()) (unsubscribe func())
}

// listeners is a registry of change callbacks shared by the adapters.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

func (l *listeners) add(fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func())
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *listeners) notify() {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Memory keeps content in process. Like the visual editor it wraps, it
// reports every content replacement, including programmatic ones, to its
// listeners synchronously.
type Memory struct {
	mu     sync.RWMutex
	markup string
	style  string
	subs   listeners
}

func NewMemory(markup, style string) *Memory {
	return &Memory{markup: markup, style: style}
}

func (m *Memory) Markup() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.markup
}

func (m *Memory) Style() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.style
}

func (m *Memory) SetMarkup(markup string) {
	m.mu.Lock()
	m.markup = markup
	m.mu.Unlock()
	m.subs.notify()
}

func (m *Memory) SetStyle(style string) {
	m.mu.Lock()
	m.style = style
	m.mu.Unlock()
	m.subs.notify()
}

// Edit simulates a user changing the page.
func (m *Memory) Edit(markup, style string) {
	m.mu.Lock()
	m.markup = markup
	m.style = style
	m.mu.Unlock()
	m.subs.notify()
}

func (m *Memory) OnChange(fn func()) func() {
	return m.subs.add(fn)
}
