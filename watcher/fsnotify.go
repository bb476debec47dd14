// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyWatcher approximates close-after-write on platforms without it:
// a written file is reported once no further write arrived for settle.
type fsnotifyWatcher struct {
	w       *fsnotify.Watcher
	settle  time.Duration
	pending map[string]time.Time
	now     func() time.Time
}

func openFsnotify(dir string, settle time.Duration) (ChangeWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("fsnotify watch %s: %w", dir, err)
	}
	return &fsnotifyWatcher{
		w:       w,
		settle:  settle,
		pending: make(map[string]time.Time),
		now:     time.Now,
	}, nil
}

func (f *fsnotifyWatcher) Poll() ([]ChangeEvent, error) {
	var firstErr error
drain:
	for {
		select {
		case ev, ok := <-f.w.Events:
			if !ok {
				break drain
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				f.pending[ev.Name] = f.now()
			}
		case err, ok := <-f.w.Errors:
			if !ok {
				break drain
			}
			if firstErr == nil {
				firstErr = err
			}
		default:
			break drain
		}
	}

	now := f.now()
	var events []ChangeEvent
	for path, last := range f.pending {
		if now.Sub(last) < f.settle {
			continue
		}
		delete(f.pending, path)
		isDir := false
		if fi, err := os.Stat(path); err == nil {
			isDir = fi.IsDir()
		}
		events = append(events, ChangeEvent{Name: filepath.Base(path), IsDir: isDir, Op: OpCloseWrite})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Name < events[j].Name })
	return events, firstErr
}

func (f *fsnotifyWatcher) Close() error {
	return f.w.Close()
}
