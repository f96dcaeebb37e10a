package miner

import "testing"

func TestSimNoopByDefault(t *testing.T) {
	s := NewSim()
	s.Push(Origin{Owner: "pool1", JobID: "a"}, WorkUnit{JobID: "a"})
	if _, ok := s.Poll(); ok {
		t.Fatal("expected no batches from a sim with no Emit hook")
	}
}

func TestSimEmitProducesBatches(t *testing.T) {
	s := NewSim()
	s.Emit = func(origin Origin, wu WorkUnit) []Batch {
		return []Batch{{Origin: origin, Nonce2: "01", Nonces: []Nonce{{Value: 42}}}}
	}
	s.Push(Origin{Owner: "pool1", JobID: "a"}, WorkUnit{JobID: "a"})

	got, ok := s.Poll()
	if !ok {
		t.Fatal("expected a batch")
	}
	if got.Origin.JobID != "a" || len(got.Nonces) != 1 || got.Nonces[0].Value != 42 {
		t.Fatalf("unexpected batch: %+v", got)
	}
	if _, ok := s.Poll(); ok {
		t.Fatal("expected queue to be drained")
	}
}

func TestSimFailureLatchedOnce(t *testing.T) {
	s := NewSim()
	if _, ok := s.Failed(); ok {
		t.Fatal("fresh sim should not report a failure")
	}
	s.Fail("kernel panic")
	reason, ok := s.Failed()
	if !ok || reason != "kernel panic" {
		t.Fatalf("expected latched failure, got %q, %v", reason, ok)
	}
	if _, ok := s.Failed(); ok {
		t.Fatal("failure must be reported exactly once")
	}
}

func TestSimQueueFIFO(t *testing.T) {
	s := NewSim()
	s.Queue(Batch{Nonce2: "01"})
	s.Queue(Batch{Nonce2: "02"})

	first, _ := s.Poll()
	second, _ := s.Poll()
	if first.Nonce2 != "01" || second.Nonce2 != "02" {
		t.Fatalf("expected FIFO order, got %q then %q", first.Nonce2, second.Nonce2)
	}
}
