package supervisor

import (
	"sync"
	"time"

	"m8msupervisor/internal/ws"
)

// Stats backs the "deviceShares", "poolShares", and "poolStats" commands.
// The tick loop is its only writer; command handlers running on the same
// goroutine read it directly through the ws.ShareStatsProvider methods.
//
// Per-device accept/reject attribution would require correlating a stratum
// share reply back to the device that produced it, which nothing in this
// package tracks (stratum only knows job IDs). Good counts submissions, not
// confirmed accepts; accept/reject is tracked precisely at the pool level
// instead, from the stratum share-reply events themselves.
type Stats struct {
	mu      sync.Mutex
	devices map[int]*ws.ShareStats
	pools   map[int]*ws.PoolShareStats
	poolIdx map[string]int
	nextIdx int
}

// NewStats creates an empty counters set.
func NewStats() *Stats {
	return &Stats{
		devices: make(map[int]*ws.ShareStats),
		pools:   make(map[int]*ws.PoolShareStats),
		poolIdx: make(map[string]int),
	}
}

func (s *Stats) poolIndex(name string) int {
	if idx, ok := s.poolIdx[name]; ok {
		return idx
	}
	idx := s.nextIdx
	s.nextIdx++
	s.poolIdx[name] = idx
	s.pools[idx] = &ws.PoolShareStats{}
	return idx
}

func (s *Stats) deviceStats(index int) *ws.ShareStats {
	st, ok := s.devices[index]
	if !ok {
		st = &ws.ShareStats{}
		s.devices[index] = st
	}
	return st
}

// RecordSubmitted counts a batch that reached mining.submit: the device's
// attempt count and the owning pool's sent count both advance.
func (s *Stats) RecordSubmitted(pool string, deviceIndex int, count int64, now time.Time) {
	if count == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.deviceStats(deviceIndex)
	d.Good += count
	d.LastResult = now

	p := s.pools[s.poolIndex(pool)]
	p.Sent += count
	p.LastActivity = now
}

// RecordStale counts a batch dropped before it reached a pool session.
func (s *Stats) RecordStale(deviceIndex int, count int64, now time.Time) {
	if count == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.deviceStats(deviceIndex)
	d.Stale += count
	d.LastResult = now
}

// RecordShareReply applies a pool's authoritative accept/reject outcome for
// one submitted share.
func (s *Stats) RecordShareReply(pool string, accepted bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pools[s.poolIndex(pool)]
	if accepted {
		p.Accepted++
	} else {
		p.Rejected++
	}
	p.LastActivity = now
}

// RecordPoolActivated marks one more connection attempt for a pool.
func (s *Stats) RecordPoolActivated(pool string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pools[s.poolIndex(pool)]
	p.LastActivated = now
	p.NumActivationAttempts++
}

// DeviceShares implements ws.ShareStatsProvider.
func (s *Stats) DeviceShares(index int) (ws.ShareStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[index]
	if !ok {
		return ws.ShareStats{}, false
	}
	return *d, true
}

// PoolShares implements ws.ShareStatsProvider.
func (s *Stats) PoolShares(index int) (ws.PoolShareStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[index]
	if !ok {
		return ws.PoolShareStats{}, false
	}
	return *p, true
}
