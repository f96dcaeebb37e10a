package stratum

import (
	"errors"
	"testing"
	"time"

	"m8msupervisor/internal/miner"
)

func noopDialer(PoolConfig) (Transport, ConnectError, error) {
	return nil, 0, errors.New("unused in this test")
}

func TestSupervisorActivateMatchesAlgoOnly(t *testing.T) {
	cfgs := []PoolConfig{
		{Name: "sha", Algo: "sha256"},
		{Name: "scrypt", Algo: "scrypt"},
	}
	sup := NewSupervisor(cfgs, noopDialer, 30*time.Second)

	if got := sup.Activate("sha256"); got != 1 {
		t.Fatalf("Activate() = %d, want 1", got)
	}
	if sup.pools["sha"].state != stateConnecting {
		t.Fatalf("sha pool state = %v, want stateConnecting", sup.pools["sha"].state)
	}
	if sup.pools["scrypt"].state != stateIdle {
		t.Fatalf("scrypt pool state = %v, want stateIdle", sup.pools["scrypt"].state)
	}
}

func TestSupervisorActivateSkipsDuringBackoff(t *testing.T) {
	cfgs := []PoolConfig{{Name: "p1", Algo: "sha256"}}
	sup := NewSupervisor(cfgs, noopDialer, 30*time.Second)
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sup.now = func() time.Time { return fixedNow }
	sup.pools["p1"].nextReconnect = fixedNow.Add(10 * time.Second)

	if got := sup.Activate("sha256"); got != 0 {
		t.Fatalf("Activate() during backoff = %d, want 0", got)
	}
}

func TestSupervisorReconnectBackoffMath(t *testing.T) {
	// Scenario: a working pool loses its transport at T; nextReconnect
	// becomes T+30s. The connect attempted at T+30s fails with
	// failedConnect, pushing nextReconnect to T+30s+120s = T+150s.
	cfgs := []PoolConfig{{Name: "p1", Algo: "sha256"}}
	sup := NewSupervisor(cfgs, noopDialer, 30*time.Second)

	tAt0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sup.now = func() time.Time { return tAt0 }
	sup.pools["p1"].state = stateConnected

	sup.HandleEvent(PoolEvent{Pool: "p1", Disconnected: true})
	want := tAt0.Add(30 * time.Second)
	if got := sup.pools["p1"].nextReconnect; !got.Equal(want) {
		t.Fatalf("nextReconnect after drop = %v, want %v", got, want)
	}

	sup.now = func() time.Time { return want }
	sup.pools["p1"].state = stateConnecting
	sup.HandleEvent(PoolEvent{Pool: "p1", ConnectErr: ConnectFailedConnect, ConnectFailErr: errors.New("refused")})
	want2 := tAt0.Add(30*time.Second + 120*time.Second)
	if got := sup.pools["p1"].nextReconnect; !got.Equal(want2) {
		t.Fatalf("nextReconnect after failed retry = %v, want %v", got, want2)
	}
}

// fakeTransport is an in-memory Transport that records every Write.
type fakeTransport struct {
	written [][]byte
}

func (f *fakeTransport) Read([]byte) (int, error)  { return 0, errors.New("not used") }
func (f *fakeTransport) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	f.written = append(f.written, cp)
	return len(p), nil
}
func (f *fakeTransport) Close() error { return nil }

func connectedSupervisor(t *testing.T, cfg PoolConfig) (*Supervisor, *fakeTransport) {
	t.Helper()
	sup := NewSupervisor([]PoolConfig{cfg}, noopDialer, 30*time.Second)
	ft := &fakeTransport{}
	sup.HandleEvent(PoolEvent{Pool: cfg.Name, Connected: true, Transport: ft})
	ft.written = nil // discard the initial mining.subscribe the connect flushed
	return sup, ft
}

func TestSupervisorSubmitDropsStaleBatch(t *testing.T) {
	cfg := PoolConfig{Name: "p1", Algo: "sha256", Workers: []WorkerConfig{{Name: "w1"}}}
	sup, ft := connectedSupervisor(t, cfg)
	p := sup.pools["p1"]

	p.session.FeedLines([]byte(`{"id":1,"result":[null,"1234",4],"error":null}` + "\n"))
	p.session.DrainOutbound()
	p.session.FeedLines([]byte(`{"id":2,"result":true,"error":null}` + "\n"))
	p.session.FeedLines([]byte(`{"id":null,"method":"mining.notify","params":["B","p","c1","c2",[],"v","b","t",true]}` + "\n"))

	batch := miner.Batch{
		Origin: miner.Origin{Owner: "p1", JobID: "A"},
		Nonces: []miner.Nonce{{Value: 1}, {Value: 2}},
	}
	submitted, stale := sup.Submit(batch)
	if submitted != 0 || stale != 2 {
		t.Fatalf("Submit() = %d, %d, want 0, 2", submitted, stale)
	}
	if len(ft.written) != 0 {
		t.Fatalf("stale batch produced a write: %q", ft.written)
	}
}

func TestSupervisorSubmitCurrentBatchSucceeds(t *testing.T) {
	cfg := PoolConfig{Name: "p1", Algo: "sha256", Workers: []WorkerConfig{{Name: "w1"}}}
	sup, ft := connectedSupervisor(t, cfg)
	p := sup.pools["p1"]

	p.session.FeedLines([]byte(`{"id":1,"result":[null,"1234",4],"error":null}` + "\n"))
	p.session.DrainOutbound()
	p.session.FeedLines([]byte(`{"id":2,"result":true,"error":null}` + "\n"))
	p.session.FeedLines([]byte(`{"id":null,"method":"mining.notify","params":["B","p","c1","c2",[],"v","b","t",true]}` + "\n"))

	batch := miner.Batch{
		Origin: miner.Origin{Owner: "p1", JobID: "B"},
		Nonces: []miner.Nonce{{Value: 1}, {Value: 2}},
	}
	submitted, stale := sup.Submit(batch)
	if submitted != 2 || stale != 0 {
		t.Fatalf("Submit() = %d, %d, want 2, 0", submitted, stale)
	}
	if len(ft.written) != 1 {
		t.Fatalf("current batch did not flush a write, got %d writes", len(ft.written))
	}
}

func TestSupervisorExpireSharesDropsOutstandingAcrossPools(t *testing.T) {
	cfg := PoolConfig{Name: "p1", Algo: "sha256", Workers: []WorkerConfig{{Name: "w1"}}}
	sup, _ := connectedSupervisor(t, cfg)
	p := sup.pools["p1"]

	p.session.FeedLines([]byte(`{"id":1,"result":[null,"1234",4],"error":null}` + "\n"))
	p.session.DrainOutbound()
	p.session.FeedLines([]byte(`{"id":2,"result":true,"error":null}` + "\n"))
	p.session.FeedLines([]byte(`{"id":null,"method":"mining.notify","params":["B","p","c1","c2",[],"v","b","t",true]}` + "\n"))

	batch := miner.Batch{
		Origin: miner.Origin{Owner: "p1", JobID: "B"},
		Nonces: []miner.Nonce{{Value: 1}},
	}
	if submitted, _ := sup.Submit(batch); submitted != 1 {
		t.Fatalf("Submit() submitted = %d, want 1", submitted)
	}

	// Nothing to expire yet: the share was just submitted.
	if got := sup.ExpireShares(time.Now()); got != 0 {
		t.Fatalf("ExpireShares() immediately after submit = %d, want 0", got)
	}

	// A pool reply never arrives; once ShareExpiry has elapsed the
	// supervisor-wide sweep (not just the session's own bookkeeping) drops it.
	if got := sup.ExpireShares(time.Now().Add(ShareExpiry + time.Second)); got != 1 {
		t.Fatalf("ExpireShares() after ShareExpiry = %d, want 1", got)
	}

	// Already-expired entries are not double-counted on a later sweep.
	if got := sup.ExpireShares(time.Now().Add(ShareExpiry + time.Second)); got != 0 {
		t.Fatalf("ExpireShares() on second sweep = %d, want 0", got)
	}
}

func TestSupervisorSubmitAcceptsJustSupersededBatch(t *testing.T) {
	cfg := PoolConfig{Name: "p1", Algo: "sha256", Workers: []WorkerConfig{{Name: "w1"}}}
	sup, ft := connectedSupervisor(t, cfg)
	p := sup.pools["p1"]

	p.session.FeedLines([]byte(`{"id":1,"result":[null,"1234",4],"error":null}` + "\n"))
	p.session.DrainOutbound()
	p.session.FeedLines([]byte(`{"id":2,"result":true,"error":null}` + "\n"))
	p.session.FeedLines([]byte(`{"id":null,"method":"mining.notify","params":["B","p","c1","c2",[],"v","b","t",true]}` + "\n"))
	// A new notify supersedes "B" before the compute backend's batch for it
	// arrives; "B" is still within the rolling job-id window.
	p.session.FeedLines([]byte(`{"id":null,"method":"mining.notify","params":["C","p","c1","c2",[],"v","b","t",true]}` + "\n"))

	batch := miner.Batch{
		Origin: miner.Origin{Owner: "p1", JobID: "B"},
		Nonces: []miner.Nonce{{Value: 1}, {Value: 2}},
	}
	submitted, stale := sup.Submit(batch)
	if submitted != 2 || stale != 0 {
		t.Fatalf("Submit() for superseded-but-in-window job = %d, %d, want 2, 0", submitted, stale)
	}
	if len(ft.written) != 1 {
		t.Fatalf("superseded-but-in-window batch did not flush a write, got %d writes", len(ft.written))
	}
}
