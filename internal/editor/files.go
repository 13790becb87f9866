package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mocksync/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

const (
	MarkupFile = "index.html"
	StyleFile  = "style.css"
)

// Files exposes the active tab as two files in a directory so any text editor
// can work on it. Writes made through the adapter are not reported as local
// changes; only content that differs from what the adapter last saw is.
type Files struct {
	dir     string
	watcher *fsnotify.Watcher
	subs    listeners

	mu     sync.Mutex
	markup string
	style  string
}

func NewFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create editor dir: %w", err)
	}
	f := &Files{dir: dir}
	var err error
	if f.markup, err = readOptional(f.path(MarkupFile)); err != nil {
		return nil, err
	}
	if f.style, err = readOptional(f.path(StyleFile)); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory, not the files: atomic renames replace the inode.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	f.watcher = watcher
	return f, nil
}

// Watch delivers change notifications until ctx is done or Close is called.
func (f *Files) Watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if name != MarkupFile && name != StyleFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if f.refresh() {
				f.subs.notify()
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			logger.Sugar.Warnf("Editor watcher error in %s: %v", f.dir, err)
		}
	}
}

func (f *Files) Close() error {
	return f.watcher.Close()
}

func (f *Files) Markup() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markup
}

func (f *Files) Style() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.style
}

func (f *Files) SetMarkup(markup string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markup = markup
	if err := writeFileAtomic(f.path(MarkupFile), []byte(markup)); err != nil {
		logger.Sugar.Errorf("Failed to write %s: %v", MarkupFile, err)
	}
}

func (f *Files) SetStyle(style string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.style = style
	if err := writeFileAtomic(f.path(StyleFile), []byte(style)); err != nil {
		logger.Sugar.Errorf("Failed to write %s: %v", StyleFile, err)
	}
}

func (f *Files) OnChange(fn func()) func() {
	return f.subs.add(fn)
}

// refresh rereads both files and reports whether either differs from the
// last known content. The lock is held across the reads so a concurrent
// setter cannot be overwritten with what was on disk before it wrote.
func (f *Files) refresh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	markup, err := readOptional(f.path(MarkupFile))
	if err != nil {
		logger.Sugar.Warnf("Failed to read %s: %v", MarkupFile, err)
		return false
	}
	style, err := readOptional(f.path(StyleFile))
	if err != nil {
		logger.Sugar.Warnf("Failed to read %s: %v", StyleFile, err)
		return false
	}
	if markup == f.markup && style == f.style {
		return false
	}
	f.markup = markup
	f.style = style
	return true
}

func (f *Files) path(name string) string {
	return filepath.Join(f.dir, name)
}

func readOptional(path string) (string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mocksync-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
