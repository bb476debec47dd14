// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package watcher

import (
	"bytes"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Room for 64 events carrying maximum-length names.
const inotifyBufLen = 64 * (unix.SizeofInotifyEvent + unix.NAME_MAX + 1)

type inotifyWatcher struct {
	fd  int
	wd  int
	buf []byte
}

func openInotify(dir string) (ChangeWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init: %w", err)
	}
	wd, err := unix.InotifyAddWatch(fd, dir, unix.IN_CLOSE_WRITE)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("inotify_add_watch %s: %w", dir, err)
	}
	return &inotifyWatcher{fd: fd, wd: wd, buf: make([]byte, inotifyBufLen)}, nil
}

// Poll reads until the queue is empty and decodes every event of every read.
func (w *inotifyWatcher) Poll() ([]ChangeEvent, error) {
	var events []ChangeEvent
	for {
		n, err := unix.Read(w.fd, w.buf)
		switch {
		case err == unix.EAGAIN:
			return events, nil
		case err == unix.EINTR:
			continue
		case err != nil:
			return events, fmt.Errorf("read inotify: %w", err)
		case n < unix.SizeofInotifyEvent:
			return events, nil
		}
		events = appendEvents(events, w.buf[:n])
	}
}

func appendEvents(events []ChangeEvent, buf []byte) []ChangeEvent {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameStart := offset + unix.SizeofInotifyEvent
		nameEnd := nameStart + int(raw.Len)
		if nameEnd > len(buf) {
			break
		}
		name := string(bytes.TrimRight(buf[nameStart:nameEnd], "\x00"))

		var op Op
		if raw.Mask&unix.IN_CLOSE_WRITE != 0 {
			op |= OpCloseWrite
		}
		if raw.Mask&unix.IN_Q_OVERFLOW != 0 {
			op |= OpOverflow
		}
		if op != 0 {
			events = append(events, ChangeEvent{
				Name:  name,
				IsDir: raw.Mask&unix.IN_ISDIR != 0,
				Op:    op,
			})
		}
		offset = nameEnd
	}
	return events
}

func (w *inotifyWatcher) Close() error {
	if w.fd < 0 {
		return nil
	}
	unix.InotifyRmWatch(w.fd, uint32(w.wd))
	err := unix.Close(w.fd)
	w.fd = -1
	return err
}
