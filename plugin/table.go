// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Callback identifies one entry point of the plugin ABI.
type Callback int

const (
	Init Callback = iota
	Shutdown
	Update
	Draw
	ShutterPress
	ShutterRelease
	PowerPress
	PowerRelease
	CrankUp
	CrankDown
	CrankRotated
	ButtonPress
	ButtonRelease

	numCallbacks
)

var callbackNames = [numCallbacks]string{
	Init:           "init",
	Shutdown:       "shutdown",
	Update:         "update",
	Draw:           "draw",
	ShutterPress:   "shutter_press",
	ShutterRelease: "shutter_release",
	PowerPress:     "power_press",
	PowerRelease:   "power_release",
	CrankUp:        "crank_up",
	CrankDown:      "crank_down",
	CrankRotated:   "crank_rotated",
	ButtonPress:    "button_press",
	ButtonRelease:  "button_release",
}

// String returns the exported symbol name.
func (c Callback) String() string {
	if c < 0 || c >= numCallbacks {
		return fmt.Sprintf("callback(%d)", int(c))
	}
	return callbackNames[c]
}

// Required reports whether a module must export c to be hosted.
func (c Callback) Required() bool {
	return c == Init || c == Shutdown
}

// ValueType is a WebAssembly value type in its binary encoding.
type ValueType = byte

const (
	ValueI32 ValueType = 0x7f
	ValueI64 ValueType = 0x7e
	ValueF32 ValueType = 0x7d
	ValueF64 ValueType = 0x7c
)

// Signature lists the parameter and result types of a callback.
type Signature struct {
	Params  []ValueType
	Results []ValueType
}

func (s Signature) String() string {
	return "(" + typeNames(s.Params) + ") -> (" + typeNames(s.Results) + ")"
}

func typeNames(ts []ValueType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		switch t {
		case ValueI32:
			names[i] = "i32"
		case ValueI64:
			names[i] = "i64"
		case ValueF32:
			names[i] = "f32"
		case ValueF64:
			names[i] = "f64"
		default:
			names[i] = fmt.Sprintf("0x%02x", t)
		}
	}
	return strings.Join(names, ", ")
}

func (s Signature) equal(o Signature) bool {
	return string(s.Params) == string(o.Params) && string(s.Results) == string(o.Results)
}

// Signature returns the type c must be exported with.
func (c Callback) Signature() Signature {
	switch c {
	case Update:
		return Signature{Params: []ValueType{ValueF32}, Results: []ValueType{ValueI32}}
	case CrankRotated:
		return Signature{Params: []ValueType{ValueI32}, Results: []ValueType{ValueI32}}
	default:
		return Signature{Results: []ValueType{ValueI32}}
	}
}

// Callbacks lists every entry point in ABI order.
func Callbacks() []Callback {
	cbs := make([]Callback, numCallbacks)
	for i := range cbs {
		cbs[i] = Callback(i)
	}
	return cbs
}

// Function is a callable export. Arguments and results use the raw 64-bit
// encoding of WebAssembly values.
type Function interface {
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// TypedFunction is a Function that knows its own signature. Resolve checks
// typed functions against the ABI.
type TypedFunction interface {
	Function
	Signature() Signature
}

// Binding is one slot of a Table: either a resolved function or absent.
type Binding struct {
	cb Callback
	fn Function
}

func (b Binding) Callback() Callback { return b.cb }

func (b Binding) Present() bool { return b.fn != nil }

// Table is the set of bindings resolved from one loaded module.
type Table struct {
	bindings   [numCallbacks]Binding
	generation uint64
}

// Resolve binds every callback exported by m. A required callback that is
// missing fails with ErrMissingSymbol, one with the wrong signature fails
// with ErrSignature. Optional ones in either state are absent.
func Resolve(m Module, generation uint64) (*Table, error) {
	t := &Table{generation: generation}
	for _, cb := range Callbacks() {
		fn := m.Lookup(cb.String())
		if fn == nil && cb.Required() {
			return nil, fmt.Errorf("%w: %s", ErrMissingSymbol, cb)
		}
		if typed, ok := fn.(TypedFunction); ok {
			if got, want := typed.Signature(), cb.Signature(); !got.equal(want) {
				if cb.Required() {
					return nil, fmt.Errorf("%w: %s is %s, want %s", ErrSignature, cb, got, want)
				}
				slog.Warn("Ignoring plugin callback with wrong signature", "callback", cb, "got", got, "want", want)
				fn = nil
			}
		}
		t.bindings[cb] = Binding{cb: cb, fn: fn}
	}
	return t, nil
}

// Binding returns the slot for cb.
func (t *Table) Binding(cb Callback) Binding {
	if t == nil || cb < 0 || cb >= numCallbacks {
		return Binding{cb: cb}
	}
	return t.bindings[cb]
}

// Has reports whether cb is bound.
func (t *Table) Has(cb Callback) bool {
	return t.Binding(cb).Present()
}

// Generation identifies the load that produced the table.
func (t *Table) Generation() uint64 {
	if t == nil {
		return 0
	}
	return t.generation
}

// Present lists the bound callbacks.
func (t *Table) Present() []Callback {
	var cbs []Callback
	for _, b := range t.bindings {
		if b.Present() {
			cbs = append(cbs, b.cb)
		}
	}
	return cbs
}
