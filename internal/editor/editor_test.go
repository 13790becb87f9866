package editor

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryNotifiesSynchronously(t *testing.T) {
	m := NewMemory("<p>a</p>", "")
	var calls int
	unsubscribe := m.OnChange(func() { calls++ })

	m.SetMarkup("<p>b</p>")
	m.SetStyle("p{}")
	assert.Equal(t, 2, calls)
	m.Edit("<p>c</p>", "p{color:red}")
	assert.Equal(t, 3, calls)
	assert.Equal(t, "<p>c</p>", m.Markup())
	assert.Equal(t, "p{color:red}", m.Style())

	unsubscribe()
	m.SetMarkup("<p>d</p>")
	assert.Equal(t, 3, calls)
}

func TestFilesLoadsExistingContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkupFile), []byte("<h1>hi</h1>"), 0o644))

	f, err := NewFiles(dir)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "<h1>hi</h1>", f.Markup())
	assert.Equal(t, "", f.Style())
}

func TestFilesReportsExternalEdits(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFiles(dir)
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Watch(ctx)

	var calls atomic.Int32
	f.OnChange(func() { calls.Add(1) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, StyleFile), []byte("body{margin:0}"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "body{margin:0}", f.Style())
}

func TestFilesOwnWritesDoNotNotify(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFiles(dir)
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Watch(ctx)

	var calls atomic.Int32
	f.OnChange(func() { calls.Add(1) })

	f.SetMarkup("<p>remote</p>")
	f.SetStyle("p{}")

	b, err := os.ReadFile(filepath.Join(dir, MarkupFile))
	require.NoError(t, err)
	assert.Equal(t, "<p>remote</p>", string(b))
	assert.Never(t, func() bool { return calls.Load() > 0 }, 300*time.Millisecond, 20*time.Millisecond)
}

func TestFilesIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFiles(dir)
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Watch(ctx)

	var calls atomic.Int32
	f.OnChange(func() { calls.Add(1) })
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("todo"), 0o644))
	assert.Never(t, func() bool { return calls.Load() > 0 }, 200*time.Millisecond, 20*time.Millisecond)
}
