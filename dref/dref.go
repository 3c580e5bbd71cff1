// dref/dref.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package dref implements the registry of named state slots that forms
// the boundary between the bridge and the simulator host: flat key/value
// entries in the style of simulator datarefs, declared once at startup
// and then read and written from both the session tick and the RPC
// handlers.
package dref

import (
	"errors"
	"log/slog"

	"github.com/mmp/hoppiebridge/log"
	"github.com/mmp/hoppiebridge/util"

	"github.com/iancoleman/orderedmap"
)

var (
	ErrUnknownSlot      = errors.New("unknown slot")
	ErrSlotTypeMismatch = errors.New("slot type mismatch")
	ErrSlotReadOnly     = errors.New("slot is not writable")
	ErrSlotRedeclared   = errors.New("slot already declared")
)

type Kind int

const (
	StringKind Kind = iota
	BoolKind
)

func (k Kind) String() string {
	return [...]string{"string", "bool"}[k]
}

type slot struct {
	kind     Kind
	writable bool
	str      string
	b        bool
}

// SlotValue is the externally-visible form of a slot, used by the status
// page and the dump command.
type SlotValue struct {
	Name     string
	Kind     Kind
	Writable bool
	String   string
	Bool     bool
}

func (s SlotValue) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("name", s.Name), slog.String("kind", s.Kind.String())}
	if s.Kind == BoolKind {
		attrs = append(attrs, slog.Bool("value", s.Bool))
	} else {
		attrs = append(attrs, slog.String("value", s.String))
	}
	return slog.GroupValue(attrs...)
}

// Registry holds the declared slots, preserving declaration order so that
// dumps and the status page list them the way the session registered
// them. The session tick owns the bridge side of each slot; the RPC
// handlers touch the host side, so all access goes through the mutex.
type Registry struct {
	mu    util.LoggingMutex
	slots *orderedmap.OrderedMap
	lg    *log.Logger
}

func New(lg *log.Logger) *Registry {
	return &Registry{
		slots: orderedmap.New(),
		lg:    lg,
	}
}

func (r *Registry) declare(name string, s *slot) error {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	if _, ok := r.slots.Get(name); ok {
		return ErrSlotRedeclared
	}
	r.slots.Set(name, s)
	return nil
}

func (r *Registry) DeclareString(name string, writable bool) error {
	return r.declare(name, &slot{kind: StringKind, writable: writable})
}

func (r *Registry) DeclareBool(name string, writable bool) error {
	return r.declare(name, &slot{kind: BoolKind, writable: writable})
}

// lookup must be called with the mutex held.
func (r *Registry) lookup(name string, kind Kind) (*slot, error) {
	v, ok := r.slots.Get(name)
	if !ok {
		return nil, ErrUnknownSlot
	}
	s := v.(*slot)
	if s.kind != kind {
		return nil, ErrSlotTypeMismatch
	}
	return s, nil
}

func (r *Registry) String(name string) (string, error) {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	s, err := r.lookup(name, StringKind)
	if err != nil {
		return "", err
	}
	return s.str, nil
}

func (r *Registry) Bool(name string) (bool, error) {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	s, err := r.lookup(name, BoolKind)
	if err != nil {
		return false, err
	}
	return s.b, nil
}

// SetString updates a slot from the bridge side, regardless of whether
// the host may write it.
func (r *Registry) SetString(name, v string) error {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	s, err := r.lookup(name, StringKind)
	if err != nil {
		return err
	}
	s.str = v
	return nil
}

func (r *Registry) SetBool(name string, v bool) error {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	s, err := r.lookup(name, BoolKind)
	if err != nil {
		return err
	}
	s.b = v
	return nil
}

// WriteString updates a slot on behalf of the host and so honors the
// writable flag.
func (r *Registry) WriteString(name, v string) error {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	s, err := r.lookup(name, StringKind)
	if err != nil {
		return err
	}
	if !s.writable {
		return ErrSlotReadOnly
	}
	s.str = v
	return nil
}

func (r *Registry) WriteBool(name string, v bool) error {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	s, err := r.lookup(name, BoolKind)
	if err != nil {
		return err
	}
	if !s.writable {
		return ErrSlotReadOnly
	}
	s.b = v
	return nil
}

// TakeString returns the slot's value and resets it to empty in one step;
// this is how consume-on-read slots like the legacy send queue and the
// error slot behave.
func (r *Registry) TakeString(name string) (string, error) {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	s, err := r.lookup(name, StringKind)
	if err != nil {
		return "", err
	}
	v := s.str
	s.str = ""
	return v, nil
}

// TakeBool returns the slot's value and resets it to false; trigger slots
// like submit and clear-inbox are consumed this way.
func (r *Registry) TakeBool(name string) (bool, error) {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	s, err := r.lookup(name, BoolKind)
	if err != nil {
		return false, err
	}
	v := s.b
	s.b = false
	return v, nil
}

// Names returns the slot names in declaration order.
func (r *Registry) Names() []string {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	return append([]string(nil), r.slots.Keys()...)
}

// Dump snapshots every slot, in declaration order.
func (r *Registry) Dump() []SlotValue {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	var vals []SlotValue
	for _, name := range r.slots.Keys() {
		v, _ := r.slots.Get(name)
		s := v.(*slot)
		vals = append(vals, SlotValue{
			Name:     name,
			Kind:     s.kind,
			Writable: s.writable,
			String:   s.str,
			Bool:     s.b,
		})
	}
	return vals
}
