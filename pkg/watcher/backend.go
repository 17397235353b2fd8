package watcher

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyBackend adapts *fsnotify.Watcher to Backend.
type fsnotifyBackend struct {
	fsw *fsnotify.Watcher
}

// NewFSNotifyBackend creates the default backend.
func NewFSNotifyBackend() (Backend, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &fsnotifyBackend{fsw: fsw}, nil
}

func (b *fsnotifyBackend) Add(path string) error        { return b.fsw.Add(path) }
func (b *fsnotifyBackend) Events() <-chan fsnotify.Event { return b.fsw.Events }
func (b *fsnotifyBackend) Errors() <-chan error          { return b.fsw.Errors }
func (b *fsnotifyBackend) Close() error                  { return b.fsw.Close() }
