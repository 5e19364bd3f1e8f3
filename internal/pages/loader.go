// Package pages loads the site's page templates and maps request paths to
// them.
package pages

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// ErrNotFound is returned when no template matches a path.
var ErrNotFound = errors.New("page not found")

const ext = ".html"

// Page is a resolved template.
type Page struct {
	// File is the template path relative to the pages root.
	File string
	Body string
	// Segments are the path segments after the matched template, e.g. the
	// reset code in /reset_password/<code>.
	Segments []string
}

// Loader reads templates from an afero filesystem and caches them.
type Loader struct {
	fs   afero.Fs
	root string

	mu    sync.RWMutex
	cache map[string]string

	watcher *fsnotify.Watcher
}

// NewLoader serves templates from fsys.
func NewLoader(fsys afero.Fs) *Loader {
	return &Loader{fs: fsys, cache: make(map[string]string)}
}

// NewDirLoader serves templates from an OS directory. Only a directory
// loader can Watch.
func NewDirLoader(dir string) *Loader {
	l := NewLoader(afero.NewBasePathFs(afero.NewOsFs(), dir))
	l.root = dir
	return l
}

// Resolve finds the template for uriPath. The longest path prefix that names
// a template wins: /a/b/c tries a/b/c.html, a/b/c/index.html, a/b.html,
// a/b/index.html and so on down to the site index.html.
func (l *Loader) Resolve(uriPath string) (*Page, error) {
	segs := splitPath(uriPath)
	for _, s := range segs {
		if s == ".." || strings.HasPrefix(s, ".") {
			return nil, ErrNotFound
		}
	}

	for i := len(segs); i >= 0; i-- {
		for _, name := range candidates(segs[:i]) {
			body, err := l.read(name)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			return &Page{File: name, Body: body, Segments: append([]string(nil), segs[i:]...)}, nil
		}
	}
	return nil, ErrNotFound
}

func candidates(prefix []string) []string {
	if len(prefix) == 0 {
		return []string{"index" + ext}
	}
	base := path.Join(prefix...)
	return []string{base + ext, base + "/index" + ext}
}

func splitPath(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func (l *Loader) read(name string) (string, error) {
	l.mu.RLock()
	body, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return body, nil
	}

	info, err := l.fs.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fs.ErrNotExist
		}
		return "", err
	}
	if info.IsDir() {
		return "", fs.ErrNotExist
	}

	data, err := afero.ReadFile(l.fs, name)
	if err != nil {
		return "", fmt.Errorf("reading page %s: %w", name, err)
	}

	l.mu.Lock()
	l.cache[name] = string(data)
	l.mu.Unlock()
	return string(data), nil
}

// Invalidate drops name from the cache. An empty name clears everything.
func (l *Loader) Invalidate(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if name == "" {
		l.cache = make(map[string]string)
		return
	}
	delete(l.cache, filepath.ToSlash(name))
}

// Watch invalidates cached templates when files under the root change. It
// returns once the watcher is running; watching stops when ctx is done.
func (l *Loader) Watch(ctx context.Context) error {
	if l.root == "" {
		return errors.New("watching requires a directory loader")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}

	err = filepath.Walk(l.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to add directories to watcher: %w", err)
	}
	l.watcher = watcher

	go l.watch(ctx, watcher)
	slog.Info("Watching pages for changes", "dir", l.root)
	return nil
}

func (l *Loader) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Page watcher error", "error", err)
		}
	}
}

func (l *Loader) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watcher.Add(event.Name); err != nil {
				slog.Error("Failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !strings.HasSuffix(event.Name, ext) {
		return
	}

	rel, err := filepath.Rel(l.root, event.Name)
	if err != nil {
		l.Invalidate("")
		return
	}
	slog.Debug("Page changed", "event", event.Op.String(), "page", rel)
	l.Invalidate(rel)
}
