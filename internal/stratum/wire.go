// Package stratum implements the pool-side application protocol: a
// line-oriented, newline-terminated JSON dialect for exchanging mining work
// and shares with an upstream pool. Sessions are fed raw bytes read from a
// transport and return bytes to write, mirroring the buffer-feeding shape of
// package ws so both protocol engines plug into the same cooperative loop
// without blocking on I/O themselves.
package stratum

import "encoding/json"

// request is an outbound stratum call. Replies correlate to requests by ID.
type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// reply is an inbound response to one of our outbound requests. Result is
// deferred as RawMessage because its shape depends on which request it
// answers (subscribe returns a triple, authorize/submit return a bool).
type reply struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// notification is an inbound message with no ID: mining.notify,
// mining.set_difficulty, and occasionally a null-id authorize preamble.
type notification struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// StratumError is the [code, message, traceback?] triple a pool attaches to
// a rejected submit or a failed call.
type StratumError struct {
	Code      int
	Message   string
	Traceback string
}

func (e *StratumError) Error() string { return e.Message }

func decodeStratumError(raw json.RawMessage) *StratumError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return &StratumError{Message: string(raw)}
	}
	se := &StratumError{}
	if len(fields) > 0 {
		json.Unmarshal(fields[0], &se.Code)
	}
	if len(fields) > 1 {
		json.Unmarshal(fields[1], &se.Message)
	}
	if len(fields) > 2 {
		json.Unmarshal(fields[2], &se.Traceback)
	}
	return se
}

// subscribeResult is the decoded form of mining.subscribe's [sessionDetails,
// extraNonce1, extraNonce2Size] triple. sessionDetails is pool-specific and
// opaque; we keep it as raw JSON and never interpret it.
type subscribeResult struct {
	SessionDetails json.RawMessage
	ExtraNonce1    string
	ExtraNonce2Sz  int
}

func decodeSubscribeResult(raw json.RawMessage) (subscribeResult, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return subscribeResult{}, err
	}
	if len(fields) < 3 {
		return subscribeResult{}, &ProtocolError{"mining.subscribe result has fewer than 3 fields"}
	}
	out := subscribeResult{SessionDetails: fields[0]}
	if err := json.Unmarshal(fields[1], &out.ExtraNonce1); err != nil {
		return subscribeResult{}, err
	}
	if err := json.Unmarshal(fields[2], &out.ExtraNonce2Sz); err != nil {
		return subscribeResult{}, err
	}
	return out, nil
}

// notifyParams is the decoded mining.notify parameter tuple.
type notifyParams struct {
	JobID        string
	PrevHash     string
	Coinbase1    string
	Coinbase2    string
	MerkleBranch []string
	Version      string
	NBits        string
	NTime        string
	CleanJobs    bool
}

func decodeNotifyParams(raw json.RawMessage) (notifyParams, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return notifyParams{}, err
	}
	if len(fields) < 9 {
		return notifyParams{}, &ProtocolError{"mining.notify has fewer than 9 fields"}
	}
	var np notifyParams
	targets := []any{
		&np.JobID, &np.PrevHash, &np.Coinbase1, &np.Coinbase2,
		&np.MerkleBranch, &np.Version, &np.NBits, &np.NTime, &np.CleanJobs,
	}
	for i, t := range targets {
		if err := json.Unmarshal(fields[i], t); err != nil {
			return notifyParams{}, err
		}
	}
	return np, nil
}

func decodeSetDifficulty(raw json.RawMessage) (float64, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return 0, &ProtocolError{"mining.set_difficulty has no parameter"}
	}
	var diff float64
	if err := json.Unmarshal(fields[0], &diff); err != nil {
		return 0, err
	}
	return diff, nil
}

// ProtocolError is returned for any malformed stratum line: bad JSON, a
// result/notification shape the session doesn't recognize, or a request ID
// that has no matching outstanding call.
type ProtocolError struct{ text string }

func (e *ProtocolError) Error() string { return "stratum: " + e.text }

// ErrTransport marks a dead connection the supervisor must tear down and
// reschedule a reconnect for.
type ErrTransport struct{ text string }

func (e *ErrTransport) Error() string { return "stratum: " + e.text }
