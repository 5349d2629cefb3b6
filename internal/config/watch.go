// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG FILE WATCHER
// =============================================================================

// DefaultWatchDebounce coalesces the burst of events editors emit on save.
const DefaultWatchDebounce = 200 * time.Millisecond

// ReloadFunc receives the reloaded config, or the error that prevented it.
// On error the previous config stays in effect.
type ReloadFunc func(cfg *Config, err error)

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadFunc
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher for path. The parent directory is watched
// rather than the file so atomic rename-on-save is picked up.
func NewWatcher(path string, onReload ReloadFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: DefaultWatchDebounce,
		onReload: onReload,
		watcher:  fw,
	}, nil
}

// WithDebounce overrides the debounce window.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Run processes events until ctx is cancelled, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			cfg, err := LoadFromPath(w.path)
			w.onReload(cfg, err)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.onReload(nil, fmt.Errorf("watch error: %w", err))
		}
	}
}
