package ws

import (
	"encoding/json"
	"errors"
	"strconv"
)

// scanTimeSnapshot builds the initial "scanTime" reply and a Pusher seeded
// with that same snapshot, so the first push tick only fires once
// something has actually changed (AbstractStreamingCommand's own rule:
// the initial reply never repeats on the wire).
func scanTimeSnapshot(perf PerformanceProvider) (any, Pusher) {
	cur := perf.ScanTimes()
	return scanTimePayload(perf.AverageWindow().Milliseconds(), cur), &scanTimePusher{perf: perf, last: cur}
}

func scanTimePayload(windowMS int64, samples []ScanTimeSample) any {
	measurements := make([]any, len(samples))
	for i, s := range samples {
		measurements[i] = map[string]any{"min": s.MinMS, "max": s.MaxMS, "avg": s.AvgMS}
	}
	return map[string]any{"twindow": windowMS, "measurements": measurements}
}

type scanTimePusher struct {
	perf PerformanceProvider
	last []ScanTimeSample
}

func (p *scanTimePusher) Refresh() (bool, any) {
	cur := p.perf.ScanTimes()
	if sameScanTimes(cur, p.last) {
		return false, nil
	}
	p.last = cur
	return true, scanTimePayload(p.perf.AverageWindow().Milliseconds(), cur)
}

func sameScanTimes(a, b []ScanTimeSample) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// deviceSharesParams mirrors DeviceShares.h's SetState input: the set of
// device indices the client wants to track.
type deviceSharesParams struct {
	Devices []int `json:"devices"`
}

func deviceSharesSnapshot(shares ShareStatsProvider, params json.RawMessage) (any, Pusher, error) {
	var p deviceSharesParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil || len(p.Devices) == 0 {
			return nil, nil, errors.New("\"devices\" must be a non-empty array of indices")
		}
	}
	snap := make(map[int]ShareStats, len(p.Devices))
	out := make(map[string]any, len(p.Devices))
	for _, idx := range p.Devices {
		stats, ok := shares.DeviceShares(idx)
		if !ok {
			continue
		}
		snap[idx] = stats
		out[strconv.Itoa(idx)] = deviceShareEntry(stats)
	}
	return out, &deviceSharesPusher{shares: shares, devices: p.Devices, last: snap}, nil
}

func deviceShareEntry(s ShareStats) any {
	return map[string]any{"good": s.Good, "bad": s.Bad, "stale": s.Stale}
}

type deviceSharesPusher struct {
	shares  ShareStatsProvider
	devices []int
	last    map[int]ShareStats
}

func (p *deviceSharesPusher) Refresh() (bool, any) {
	out := make(map[string]any)
	changed := false
	for _, idx := range p.devices {
		stats, ok := p.shares.DeviceShares(idx)
		if !ok {
			continue
		}
		if prev, seen := p.last[idx]; seen && prev == stats {
			continue
		}
		p.last[idx] = stats
		out[strconv.Itoa(idx)] = deviceShareEntry(stats)
		changed = true
	}
	if !changed {
		return false, nil
	}
	return true, out
}

func poolSharesSnapshot(shares ShareStatsProvider) (any, Pusher) {
	snap := collectPoolShares(shares)
	return poolSharesPayload(snap), &poolSharesPusher{shares: shares, last: snap}
}

func poolSharesPayload(stats []PoolShareStats) any {
	out := make([]any, len(stats))
	for i, s := range stats {
		out[i] = map[string]any{
			"sent": s.Sent, "accepted": s.Accepted, "rejected": s.Rejected,
			"daps": s.DifficultyPerSecond,
		}
	}
	return out
}

func collectPoolShares(shares ShareStatsProvider) []PoolShareStats {
	var out []PoolShareStats
	for i := 0; ; i++ {
		s, ok := shares.PoolShares(i)
		if !ok {
			break
		}
		out = append(out, s)
	}
	return out
}

type poolSharesPusher struct {
	shares ShareStatsProvider
	last   []PoolShareStats
}

func (p *poolSharesPusher) Refresh() (bool, any) {
	cur := collectPoolShares(p.shares)
	if len(cur) == len(p.last) {
		same := true
		for i := range cur {
			if cur[i] != p.last[i] {
				same = false
				break
			}
		}
		if same {
			return false, nil
		}
	}
	p.last = cur
	return true, poolSharesPayload(cur)
}

// poolStatsSnapshot/Pusher reuse the same per-pool data as poolShares; the
// original ships them as two distinct commands with identical payload
// shape and independent subscription slots, which this keeps intact.
func poolStatsSnapshot(shares ShareStatsProvider) (any, Pusher) {
	snap := collectPoolShares(shares)
	return poolSharesPayload(snap), &poolSharesPusher{shares: shares, last: snap}
}
