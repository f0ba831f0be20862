package model

import "testing"

func TestWrapDelta16_AcrossWrap(t *testing.T) {
	// a just before wrap, b just after: delta should be small positive.
	a := uint16(65530)
	b := uint16(5)
	got := WrapDelta16(a, b)
	want := uint16((uint32(b) + 1<<16 - uint32(a)) % (1 << 16))
	if got != want {
		t.Fatalf("WrapDelta16(%d,%d) = %d, want %d", a, b, got, want)
	}
}

func TestWrapDelta16_NoWrap(t *testing.T) {
	if got := WrapDelta16(100, 150); got != 50 {
		t.Fatalf("WrapDelta16(100,150) = %d, want 50", got)
	}
}

func TestConnectionFSM_ValidAndInvalidTransitions(t *testing.T) {
	fsm := NewConnectionFSM()
	if fsm.State() != Disconnected {
		t.Fatalf("initial state = %v, want Disconnected", fsm.State())
	}
	if err := fsm.To(Connecting); err != nil {
		t.Fatalf("Disconnected->Connecting: %v", err)
	}
	if err := fsm.To(Connected); err != nil {
		t.Fatalf("Connecting->Connected: %v", err)
	}
	if err := fsm.To(Connecting); err == nil {
		t.Fatal("Connected->Connecting should be illegal")
	}
}

func TestRoles_Check(t *testing.T) {
	roles := Roles{
		{Kind: RoleBike, Name: "hci0"},
		{Kind: RoleServer, Name: "hci0"},
	}
	if err := roles.Check(func(string) bool { return false }); err != ErrBikeReusedAsServer {
		t.Fatalf("expected ErrBikeReusedAsServer, got %v", err)
	}
	if err := roles.Check(func(string) bool { return true }); err != nil {
		t.Fatalf("multi-role-capable should permit reuse, got %v", err)
	}
}

func TestRoles_DuplicateBike(t *testing.T) {
	roles := Roles{
		{Kind: RoleBike, Name: "a"},
		{Kind: RoleBike, Name: "b"},
		{Kind: RoleServer, Name: "c"},
	}
	if err := roles.Check(nil); err != ErrDuplicateBikeRole {
		t.Fatalf("expected ErrDuplicateBikeRole, got %v", err)
	}
}
