// dref/dref_test.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package dref

import (
	"errors"
	"slices"
	"testing"
)

func TestRegistryBasics(t *testing.T) {
	r := New(nil)

	if err := r.DeclareString(CallsignSlot, true); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := r.DeclareBool(ReadySlot, false); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := r.DeclareString(CallsignSlot, true); !errors.Is(err, ErrSlotRedeclared) {
		t.Errorf("redeclaration allowed: %v", err)
	}

	if err := r.WriteString(CallsignSlot, "N123AB"); err != nil {
		t.Errorf("host write to writable slot: %v", err)
	}
	if v, err := r.String(CallsignSlot); err != nil || v != "N123AB" {
		t.Errorf("got %q, %v", v, err)
	}

	if err := r.WriteBool(ReadySlot, true); !errors.Is(err, ErrSlotReadOnly) {
		t.Errorf("host write to read-only slot allowed: %v", err)
	}
	if err := r.SetBool(ReadySlot, true); err != nil {
		t.Errorf("bridge write to read-only slot: %v", err)
	}
	if v, err := r.Bool(ReadySlot); err != nil || !v {
		t.Errorf("got %v, %v", v, err)
	}

	if _, err := r.String("no/such/slot"); !errors.Is(err, ErrUnknownSlot) {
		t.Errorf("got %v, expected unknown slot", err)
	}
	if _, err := r.Bool(CallsignSlot); !errors.Is(err, ErrSlotTypeMismatch) {
		t.Errorf("got %v, expected type mismatch", err)
	}
}

func TestRegistryTake(t *testing.T) {
	r := New(nil)

	if err := r.DeclareString(ErrorSlot, false); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := r.DeclareBool(ClearInboxSlot, true); err != nil {
		t.Fatalf("declare: %v", err)
	}

	r.SetString(ErrorSlot, "timeout: deadline exceeded")
	if v, err := r.TakeString(ErrorSlot); err != nil || v != "timeout: deadline exceeded" {
		t.Errorf("got %q, %v", v, err)
	}
	if v, _ := r.String(ErrorSlot); v != "" {
		t.Errorf("take did not clear the slot: %q", v)
	}

	r.WriteBool(ClearInboxSlot, true)
	if v, err := r.TakeBool(ClearInboxSlot); err != nil || !v {
		t.Errorf("got %v, %v", v, err)
	}
	if v, _ := r.Bool(ClearInboxSlot); v {
		t.Errorf("take did not reset the trigger")
	}
}

func TestRegistryOrder(t *testing.T) {
	r := New(nil)

	names := []string{SendQueueSlot, SendToSlot, PollQueueSlot, ReadySlot, AvionicsPowerSlot}
	for i, n := range names {
		var err error
		if i%2 == 0 {
			err = r.DeclareString(n, true)
		} else {
			err = r.DeclareBool(n, false)
		}
		if err != nil {
			t.Fatalf("declare %s: %v", n, err)
		}
	}

	if got := r.Names(); !slices.Equal(got, names) {
		t.Errorf("declaration order not preserved: %v", got)
	}

	dump := r.Dump()
	if len(dump) != len(names) {
		t.Fatalf("dump has %d entries", len(dump))
	}
	for i, sv := range dump {
		if sv.Name != names[i] {
			t.Errorf("dump entry %d: %s, expected %s", i, sv.Name, names[i])
		}
	}
}
