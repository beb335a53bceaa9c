package channelsync

import (
	"testing"
)

func TestDecodeModules_EmptyUsesDefaults(t *testing.T) {
	mod := DecodeModules(nil)
	if !mod.Orders || !mod.Inventory {
		t.Fatalf("expected defaults with both modules on, got %+v", mod)
	}
}

func TestDecodeModules_InvalidJSONUsesDefaults(t *testing.T) {
	mod := DecodeModules([]byte("{not json"))
	if !mod.Orders || !mod.Inventory {
		t.Fatalf("expected defaults on invalid json, got %+v", mod)
	}
}

func TestDecodeModules_OrdersAlwaysOn(t *testing.T) {
	mod := DecodeModules([]byte(`{"orders": false, "inventory": false}`))
	if !mod.Orders {
		t.Fatal("orders module must be forced on")
	}
	if mod.Inventory {
		t.Fatal("inventory module should stay off when disabled")
	}
}

func TestEncodeDecodeModules_RoundTrip(t *testing.T) {
	mod := SyncModules{Orders: true, Inventory: false}
	got := DecodeModules(EncodeModules(mod))
	if got != NormalizeModules(mod) {
		t.Fatalf("round trip changed modules: %+v -> %+v", mod, got)
	}
}

func TestDecodeCursorState_InvalidIsEmpty(t *testing.T) {
	state := DecodeCursorState([]byte("garbage"))
	if state.Orders.Cursor != "" || state.Orders.UpdatedSince != "" {
		t.Fatalf("expected empty state on invalid json, got %+v", state)
	}
}

func TestCursorState_RoundTrip(t *testing.T) {
	state := CursorState{Orders: CursorEntry{UpdatedSince: "2026-03-14T00:00:00Z", Cursor: "abc"}}
	got := DecodeCursorState(EncodeCursorState(state))
	if got != state {
		t.Fatalf("round trip changed state: %+v -> %+v", state, got)
	}
}
