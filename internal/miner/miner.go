// Package miner defines the boundary between the supervisor core and the
// GPU compute backend. Kernel dispatch, OpenCL/CUDA event waiting, and hash
// verification live outside this repository; this package only describes
// the shape of the conversation between the two sides.
package miner

import "time"

// Origin identifies which pool session a work unit or a nonce batch
// belongs to. The supervisor never dereferences Owner itself; it is an
// opaque token handed back unchanged so a Miner implementation can tag
// outbound batches without knowing anything about pool internals.
type Origin struct {
	Owner string // pool name, unique per configuration
	JobID string
}

// WorkUnit is the data a pool session hands to the compute backend once a
// mining.notify has been fully decoded.
type WorkUnit struct {
	JobID         string
	PrevHash      string
	Coinbase1     string
	Coinbase2     string
	MerkleBranch  []string
	Version       string
	NBits         string
	NTime         string
	CleanJobs     bool
	ExtraNonce1   string
	ExtraNonce2Sz int
	Diff          float64
}

// Nonce is a single candidate produced by the compute backend for a given
// nonce2 enumeration.
type Nonce struct {
	Value      uint32
	Diff       float64
	HashPrefix string
	Block      bool
}

// Batch is a verified-or-rejected nonce batch as produced by the compute
// backend and consumed by the pool supervisor's submit step.
type Batch struct {
	Origin         Origin
	Nonce2         string
	Nonces         []Nonce
	WrongCount     int
	DiscardedCount int
	DeviceIndex    int
	TargetDiff     float64
	ProducedAt     time.Time
}

// Miner is the narrow interface the supervisor core depends on. A real
// implementation dispatches OpenCL/CUDA kernels and waits on GPU events;
// that is explicitly out of scope for this repository.
type Miner interface {
	// Push hands a new work unit to the backend, tagged with its origin.
	// Implementations may keep mining a previous work unit from the same
	// or a different origin for a while after this returns; they are not
	// required to switch immediately.
	Push(origin Origin, wu WorkUnit)

	// Poll returns the next finished batch, if any, without blocking. The
	// supervisor calls this once per tick.
	Poll() (Batch, bool)

	// Failed reports whether the backend has terminated unexpectedely,
	// and the descriptive reason the first time it happens. Subsequent
	// calls return ok==false — the failure is latched and reported once.
	Failed() (reason string, ok bool)
}
