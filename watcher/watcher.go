// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package watcher reports files finished being written in a directory.
package watcher

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

var ErrUnsupported = errors.New("watcher: backend not supported on this platform")

// Op describes what happened to an entry.
type Op uint32

const (
	// OpCloseWrite: the entry was closed after being written.
	OpCloseWrite Op = 1 << iota
	// OpOverflow: the kernel queue overflowed and events were lost.
	OpOverflow
)

// ChangeEvent is one notification about a directory entry.
type ChangeEvent struct {
	Name  string
	IsDir bool
	Op    Op
}

// ChangeWatcher produces change notifications without blocking.
type ChangeWatcher interface {
	// Poll returns every event pending right now, in arrival order. No
	// pending events is an empty result, not an error.
	Poll() ([]ChangeEvent, error)
	Close() error
}

// Options holds configuration for Open
type Options struct {
	// Backend is "auto", "inotify" or "fsnotify".
	Backend string
	// Settle is how long a file must stay quiet before the fsnotify
	// backend reports it as written.
	Settle time.Duration
}

// Open subscribes to changes in dir.
func Open(dir string, opts Options) (ChangeWatcher, error) {
	backend := opts.Backend
	if backend == "" || backend == "auto" {
		backend = "fsnotify"
		if runtime.GOOS == "linux" {
			backend = "inotify"
		}
	}

	switch backend {
	case "inotify":
		return openInotify(dir)
	case "fsnotify":
		return openFsnotify(dir, opts.Settle)
	default:
		return nil, fmt.Errorf("unknown watcher backend: %s", backend)
	}
}

// Trigger decides whether a batch of events concerns the plugin file.
type Trigger struct {
	base string
}

// NewTrigger matches events naming the file at pluginPath.
func NewTrigger(pluginPath string) Trigger {
	return Trigger{base: filepath.Base(pluginPath)}
}

// Match reports whether ev is a completed write of the plugin file.
func (t Trigger) Match(ev ChangeEvent) bool {
	if ev.Op&OpOverflow != 0 {
		return true
	}
	if ev.Op&OpCloseWrite == 0 || ev.IsDir {
		return false
	}
	return strings.Contains(ev.Name, t.base)
}

// Fired evaluates every event of a batch and reports whether any matched.
func (t Trigger) Fired(events []ChangeEvent) bool {
	fired := false
	for _, ev := range events {
		if t.Match(ev) {
			fired = true
		}
	}
	return fired
}
