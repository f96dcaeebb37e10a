package stratum

import "m8msupervisor/internal/miner"

// jobHistory is a dead man's canonical window over recent job IDs, used to
// decide whether a nonce batch the compute backend just produced is still
// submittable. A batch tagged with any ID in the window is current enough
// to submit; anything older is stale. The window exists because notify and
// the compute backend's batch production race: a batch for the job just
// superseded can still be in flight when the new notify arrives.
type jobHistory struct {
	ids   []string
	limit int
}

func newJobHistory(limit int) *jobHistory {
	if limit < 1 {
		limit = 1
	}
	return &jobHistory{limit: limit}
}

// push records a new current job ID, evicting the oldest if the window is
// full.
func (h *jobHistory) push(id string) {
	h.ids = append(h.ids, id)
	if len(h.ids) > h.limit {
		h.ids = h.ids[len(h.ids)-h.limit:]
	}
}

// contains reports whether id is still within the acceptable window.
func (h *jobHistory) contains(id string) bool {
	for _, known := range h.ids {
		if known == id {
			return true
		}
	}
	return false
}

// current returns the most recently pushed job ID, or "" if none yet.
func (h *jobHistory) current() string {
	if len(h.ids) == 0 {
		return ""
	}
	return h.ids[len(h.ids)-1]
}

// toWorkUnit builds the compute-backend-facing work description from a
// decoded mining.notify, carrying forward the session's extra-nonce
// parameters and current difficulty.
func toWorkUnit(np notifyParams, extraNonce1 string, extraNonce2Sz int, diff float64) miner.WorkUnit {
	return miner.WorkUnit{
		JobID:         np.JobID,
		PrevHash:      np.PrevHash,
		Coinbase1:     np.Coinbase1,
		Coinbase2:     np.Coinbase2,
		MerkleBranch:  np.MerkleBranch,
		Version:       np.Version,
		NBits:         np.NBits,
		NTime:         np.NTime,
		CleanJobs:     np.CleanJobs,
		ExtraNonce1:   extraNonce1,
		ExtraNonce2Sz: extraNonce2Sz,
		Diff:          diff,
	}
}
