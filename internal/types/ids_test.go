package types

import (
	"testing"
)

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	if id == "" {
		t.Error("expected non-empty SessionID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
}

func TestNewTurnID(t *testing.T) {
	a := NewTurnID()
	b := NewTurnID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty TurnID")
	}
	if a == b {
		t.Errorf("expected distinct turn IDs, got %s twice", a)
	}
	if len(string(a)) != 21 {
		t.Errorf("expected nanoid length 21, got %d (%s)", len(a), a)
	}
}
