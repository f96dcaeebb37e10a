package ws

import "testing"

type constPusher struct {
	calls   int
	changed []bool
	payload any
}

func (p *constPusher) Refresh() (bool, any) {
	idx := p.calls
	p.calls++
	if idx < len(p.changed) {
		return p.changed[idx], p.payload
	}
	return false, nil
}

func TestPushManagerEnforcesMaxPushing(t *testing.T) {
	m := NewPushManager(map[string]int{"scanTime": 1})

	if _, err := m.Register("clientA", "scanTime", &constPusher{}); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	_, err := m.Register("clientA", "scanTime", &constPusher{})
	if _, ok := err.(*ErrTooMany); !ok {
		t.Fatalf("second Register() err = %v, want *ErrTooMany", err)
	}
	if got := m.CountActive("clientA", "scanTime"); got != 1 {
		t.Fatalf("CountActive() = %d, want 1 (original subscription untouched)", got)
	}
}

func TestPushManagerMultiStreamAssignsIDs(t *testing.T) {
	m := NewPushManager(map[string]int{"deviceShares": 3})

	id1, err := m.Register("clientA", "deviceShares", &constPusher{})
	if err != nil || id1 == "" {
		t.Fatalf("Register() = %q, %v", id1, err)
	}
	id2, err := m.Register("clientA", "deviceShares", &constPusher{})
	if err != nil || id2 == "" || id2 == id1 {
		t.Fatalf("Register() = %q, %v, want distinct non-empty stream id", id2, err)
	}
}

func TestPushManagerSingletonSuppressesStreamID(t *testing.T) {
	m := NewPushManager(map[string]int{"scanTime": 1})
	id, err := m.Register("clientA", "scanTime", &constPusher{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if id != "" {
		t.Fatalf("stream id = %q, want empty for a singleton command", id)
	}
}

func TestPushManagerTickOnlyEmitsOnChange(t *testing.T) {
	m := NewPushManager(map[string]int{"scanTime": 1})
	p := &constPusher{changed: []bool{true, false, true}, payload: map[string]int{"v": 1}}
	if _, err := m.Register("clientA", "scanTime", p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	out := m.Tick()
	if len(out["clientA"]) != 1 {
		t.Fatalf("tick 1: got %d messages, want 1", len(out["clientA"]))
	}
	out = m.Tick()
	if len(out["clientA"]) != 0 {
		t.Fatalf("tick 2: got %d messages, want 0 (unchanged)", len(out["clientA"]))
	}
	out = m.Tick()
	if len(out["clientA"]) != 1 {
		t.Fatalf("tick 3: got %d messages, want 1", len(out["clientA"]))
	}
}

func TestPushManagerUnsubscribe(t *testing.T) {
	m := NewPushManager(map[string]int{"scanTime": 1})
	if _, err := m.Register("clientA", "scanTime", &constPusher{}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	m.Unsubscribe("clientA", "scanTime", "")
	if got := m.CountActive("clientA", "scanTime"); got != 0 {
		t.Fatalf("CountActive() = %d, want 0 after unsubscribe", got)
	}
	// Unsubscribing frees the slot.
	if _, err := m.Register("clientA", "scanTime", &constPusher{}); err != nil {
		t.Fatalf("Register() after unsubscribe error = %v", err)
	}
}

func TestPushManagerUnsubscribeClient(t *testing.T) {
	m := NewPushManager(map[string]int{"scanTime": 1, "poolStats": 1})
	m.Register("clientA", "scanTime", &constPusher{})
	m.Register("clientA", "poolStats", &constPusher{})
	m.UnsubscribeClient("clientA")
	if got := m.CountActive("clientA", "scanTime"); got != 0 {
		t.Fatalf("CountActive(scanTime) = %d, want 0", got)
	}
	if got := m.CountActive("clientA", "poolStats"); got != 0 {
		t.Fatalf("CountActive(poolStats) = %d, want 0", got)
	}
}
