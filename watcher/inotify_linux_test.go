// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestInotify_DrainsWholeBatch(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, Options{Backend: "inotify"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	evs, err := w.Poll()
	if err != nil || len(evs) != 0 {
		t.Fatalf("idle Poll = %v, %v", evs, err)
	}

	// Several files closed before the next poll land in one read.
	files := []string{"a.o", "b.o", "app.wasm"}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	events := pollUntil(t, w, len(files))
	var got []string
	for _, ev := range events {
		if ev.Op&OpCloseWrite == 0 || ev.IsDir {
			t.Errorf("unexpected event %+v", ev)
		}
		got = append(got, ev.Name)
	}
	sort.Strings(got)
	want := []string{"a.o", "app.wasm", "b.o"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if !NewTrigger(filepath.Join(dir, "app.wasm")).Fired(events) {
		t.Error("trigger should fire for the batch")
	}
}

func TestInotify_OpenMissingDir(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing"), Options{Backend: "inotify"}); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestAppendEvents_Malformed(t *testing.T) {
	// A truncated buffer yields no events rather than a panic.
	if evs := appendEvents(nil, make([]byte, 3)); len(evs) != 0 {
		t.Errorf("events = %+v", evs)
	}
}
