package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"coopStore/events"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher turns writes made by other processes into events on the External channel.
type Watcher interface {
	Start(ctx context.Context) error
	Stop()
}

// NoopWatcher is used by backends that cannot observe foreign writes.
type NoopWatcher struct{}

func (NoopWatcher) Start(context.Context) error { return nil }
func (NoopWatcher) Stop() {}

// FileWatcher watches the directory of a FileCartRepo.
type FileWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	repo     *FileCartRepo
	notifier events.Notifier
	logger   *zap.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

func NewFileWatcher(repo *FileCartRepo, notifier events.Notifier, logger *zap.Logger) (*FileWatcher, error) {
	if repo == nil {
		return nil, errors.New("repo must be non-nil")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		watcher:  watcher,
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start is non-blocking; events are delivered from a background goroutine.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.running {
		return nil
	}
	if err := fw.watcher.Add(fw.repo.Dir()); err != nil {
		return err
	}
	fw.running = true
	fw.logger.Debug("FileWatcher: watching", zap.String("dir", fw.repo.Dir()))
	go fw.run(ctx)
	return nil
}

func (fw *FileWatcher) Stop() {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		fw.watcher.Close()
		return
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.stopCh)
	<-fw.doneCh
	if err := fw.watcher.Close(); err != nil {
		fw.logger.Error("FileWatcher: close failed", zap.Error(err))
	}
}

func (fw *FileWatcher) run(ctx context.Context) {
	defer close(fw.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopCh:
			return
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(ev)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("FileWatcher: watch error", zap.Error(err))
		}
	}
}

func (fw *FileWatcher) handleEvent(ev fsnotify.Event) {
	key, ok := keyFromPath(ev.Name)
	if !ok {
		return
	}
	var value string
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		data, err := os.ReadFile(ev.Name)
		if err != nil {
			// replaced again before we got to it; the next event carries the value
			fw.logger.Debug("FileWatcher: read failed", zap.String("file", filepath.Base(ev.Name)), zap.Error(err))
			return
		}
		value = string(data)
		if fw.repo.IsOwnWrite(key, value) {
			return
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		value = ""
	default:
		return
	}
	fw.notifier.Notify(events.Event{
		Name:     events.StorageEvent,
		Channel:  events.External,
		Key:      key,
		NewValue: value,
		At:       time.Now().UTC(),
	})
}
