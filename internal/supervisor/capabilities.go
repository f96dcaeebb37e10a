package supervisor

import (
	"fmt"
	"time"

	"m8msupervisor/internal/ws"
)

// Algo implements ws.MiningInfoProvider.
func (s *Supervisor) Algo() (algo, impl string, version uint64) {
	return s.algo, "m8msupervisor", 1
}

// Devices implements ws.MiningInfoProvider. The GPU compute backend's own
// device enumeration is out of scope here (see internal/miner); this
// reports the single logical slot the backend is currently fed through,
// switched off with the latched failure reason once quiescent.
func (s *Supervisor) Devices() []ws.DeviceSlot {
	if s.quiescent {
		return []ws.DeviceSlot{{Reasons: []string{s.failureReason}}}
	}
	return []ws.DeviceSlot{{Algorithm: s.algo}}
}

// CurrentPool implements ws.PoolInfoProvider.
func (s *Supervisor) CurrentPool() (ws.PoolSummary, bool) {
	p, ok := s.stratSup.ActivePool()
	if !ok {
		return ws.PoolSummary{}, false
	}
	return ws.PoolSummary{
		Name:    p.Name,
		URL:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Workers: p.Workers,
	}, true
}

// AverageWindow implements ws.PerformanceProvider. Scan-time measurement
// belongs to the compute backend, out of scope here; zero means "no
// window configured" to callers of the scanTime command.
func (s *Supervisor) AverageWindow() time.Duration { return 0 }

// ScanTimes implements ws.PerformanceProvider.
func (s *Supervisor) ScanTimes() []ws.ScanTimeSample { return nil }

// StartedAt implements ws.UptimeProvider.
func (s *Supervisor) StartedAt() (program, hashing, firstNonce time.Time) {
	return s.startedAt, s.hashingAt, s.firstNonceAt
}
