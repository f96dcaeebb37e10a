package stratum

import (
	"bytes"
	"encoding/json"
	"time"

	"m8msupervisor/internal/miner"
)

// State is the pool session's lifecycle stage. connecting is entered and
// left by the owning Pool before a Session even exists; Session itself
// starts life in StateSubscribing once the transport is up.
type State int

const (
	StateSubscribing State = iota
	StateAuthorizing
	StateWorking
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateAuthorizing:
		return "authorizing"
	case StateWorking:
		return "working"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AuthStatus records how a worker's (or the session's) authorization
// outcome was determined.
type AuthStatus int

const (
	AuthPending AuthStatus = iota
	AuthAccepted
	AuthInferred // a share was accepted before the authorize reply arrived
	AuthFailed
)

// ShareOutcome reports what became of an outstanding submit.
type ShareOutcome int

const (
	ShareAccepted ShareOutcome = iota
	ShareRejected
)

// Event is one state change a Session surfaces to the owning Pool for a
// single fed line. At most one of its optional groups is populated.
type Event struct {
	WorkChanged bool
	Work        miner.WorkUnit

	DiffChanged bool
	Diff        float64

	Authorized bool
	Worker     string
	AuthResult AuthStatus

	ShareReplied bool
	ShareID      uint64
	Outcome      ShareOutcome
	ShareErr     *StratumError

	Failed bool
	Reason string
}

type outstandingShare struct {
	submittedAt time.Time
	jobID       string
}

// pendingKind tags what an outbound request ID is waiting on a reply for.
type pendingKind int

const (
	pendingSubscribe pendingKind = iota
	pendingAuthorize
	pendingSubmit
)

type pendingCall struct {
	kind   pendingKind
	worker string
}

// Session runs the pool-side stratum protocol over one TCP stream. It is
// fed raw bytes read from the transport and produces bytes to write plus a
// list of Events; it never performs I/O itself.
type Session struct {
	name    string
	workers []WorkerConfig

	diffMode DiffMode
	diffMul  DiffMultipliers

	state       State
	authOutcome AuthStatus

	nextID  uint64
	pending map[uint64]pendingCall

	extraNonce1   string
	extraNonce2Sz int
	currentDiff   float64

	jobs         *jobHistory
	currentNTime string

	outstanding map[uint64]outstandingShare

	inbuf  []byte
	outbuf []byte
}

// NewSession creates a session and queues the initial mining.subscribe
// request; call DrainOutbound to collect it for writing once the
// transport connects.
func NewSession(name string, workers []WorkerConfig, mode DiffMode, mul DiffMultipliers) *Session {
	s := &Session{
		name:        name,
		workers:     workers,
		diffMode:    mode,
		diffMul:     mul,
		state:       StateSubscribing,
		pending:     make(map[uint64]pendingCall),
		jobs:        newJobHistory(4),
		outstanding: make(map[uint64]outstandingShare),
	}
	s.enqueue(pendingSubscribe, "", "mining.subscribe", []any{})
	return s
}

func (s *Session) State() State            { return s.state }
func (s *Session) AuthOutcome() AuthStatus { return s.authOutcome }
func (s *Session) CurrentJobID() string    { return s.jobs.current() }

// JobIDCurrent reports whether id is still within the session's rolling
// job-id window, i.e. acceptable for a late-arriving share submission.
func (s *Session) JobIDCurrent(id string) bool { return id != "" && s.jobs.contains(id) }
func (s *Session) CurrentNTime() string    { return s.currentNTime }

func (s *Session) enqueue(kind pendingKind, worker, method string, params []any) uint64 {
	s.nextID++
	id := s.nextID
	s.pending[id] = pendingCall{kind: kind, worker: worker}
	line, _ := json.Marshal(request{ID: id, Method: method, Params: params})
	s.outbuf = append(s.outbuf, line...)
	s.outbuf = append(s.outbuf, '\n')
	return id
}

// DrainOutbound returns any bytes queued for the transport and clears the
// queue. ok is false if nothing is pending.
func (s *Session) DrainOutbound() (data []byte, ok bool) {
	if len(s.outbuf) == 0 {
		return nil, false
	}
	data, s.outbuf = s.outbuf, nil
	return data, true
}

// SubmitShare queues a mining.submit for the given worker against the
// session's current job. It fails if the session has no current job (no
// notify received yet) or has failed outright.
func (s *Session) SubmitShare(worker, nonce2, ntime, nonce string) (shareID uint64, ok bool) {
	jobID := s.jobs.current()
	if jobID == "" || s.state == StateFailed {
		return 0, false
	}
	id := s.enqueue(pendingSubmit, worker, "mining.submit", []any{worker, jobID, nonce2, ntime, nonce})
	s.outstanding[id] = outstandingShare{submittedAt: time.Now(), jobID: jobID}
	return id, true
}

// ExpireOutstanding silently drops submits older than maxAge without
// reporting a result, per the protocol's timeout semantics: a pool that
// never replies leaves no addressable error, so the entry is simply
// removed.
func (s *Session) ExpireOutstanding(now time.Time, maxAge time.Duration) (expired int) {
	for id, sh := range s.outstanding {
		if now.Sub(sh.submittedAt) >= maxAge {
			delete(s.outstanding, id)
			delete(s.pending, id)
			expired++
		}
	}
	return expired
}

// FeedLines appends newly read bytes and processes every complete
// newline-terminated line found so far, returning the Events produced.
func (s *Session) FeedLines(data []byte) ([]Event, error) {
	s.inbuf = append(s.inbuf, data...)
	var events []Event
	for {
		idx := bytes.IndexByte(s.inbuf, '\n')
		if idx < 0 {
			break
		}
		line := s.inbuf[:idx]
		s.inbuf = s.inbuf[idx+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		ev, err := s.processLine(line)
		if err != nil {
			s.fail(err.Error())
			return append(events, Event{Failed: true, Reason: err.Error()}), err
		}
		events = append(events, ev...)
	}
	return events, nil
}

func (s *Session) fail(reason string) {
	s.state = StateFailed
}

type wireLine struct {
	ID     *uint64         `json:"id"`
	Method *string         `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func (s *Session) processLine(raw []byte) ([]Event, error) {
	var wl wireLine
	if err := json.Unmarshal(raw, &wl); err != nil {
		return nil, &ProtocolError{"malformed JSON line: " + err.Error()}
	}

	if wl.Method != nil {
		return s.processNotification(*wl.Method, wl.Params)
	}
	if wl.ID == nil {
		// A late null-id notification preceding the authorize result; no
		// actionable content, ignore.
		return nil, nil
	}
	return s.processReply(*wl.ID, wl.Result, wl.Error)
}

func (s *Session) processNotification(method string, params json.RawMessage) ([]Event, error) {
	switch method {
	case "mining.notify":
		np, err := decodeNotifyParams(params)
		if err != nil {
			return nil, err
		}
		s.jobs.push(np.JobID)
		s.currentNTime = np.NTime
		wu := toWorkUnit(np, s.extraNonce1, s.extraNonce2Sz, s.currentDiff)
		return []Event{{WorkChanged: true, Work: wu}}, nil
	case "mining.set_difficulty":
		raw, err := decodeSetDifficulty(params)
		if err != nil {
			return nil, err
		}
		s.currentDiff = EffectiveDifficulty(s.diffMode, s.diffMul, raw)
		return []Event{{DiffChanged: true, Diff: s.currentDiff}}, nil
	default:
		// Unknown pool notification; tolerated rather than fatal, matching
		// the protocol's looseness around vendor extensions.
		return nil, nil
	}
}

func (s *Session) processReply(id uint64, result, errField json.RawMessage) ([]Event, error) {
	call, ok := s.pending[id]
	if !ok {
		return nil, &ProtocolError{"reply to unknown request id"}
	}
	delete(s.pending, id)
	stratErr := decodeStratumError(errField)

	switch call.kind {
	case pendingSubscribe:
		return s.onSubscribeReply(result, stratErr)
	case pendingAuthorize:
		return s.onAuthorizeReply(call.worker, result, stratErr)
	case pendingSubmit:
		delete(s.outstanding, id)
		return s.onSubmitReply(id, result, stratErr)
	}
	return nil, nil
}

func (s *Session) onSubscribeReply(result json.RawMessage, stratErr *StratumError) ([]Event, error) {
	if stratErr != nil {
		return nil, stratErr
	}
	sub, err := decodeSubscribeResult(result)
	if err != nil {
		return nil, err
	}
	s.extraNonce1 = sub.ExtraNonce1
	s.extraNonce2Sz = sub.ExtraNonce2Sz
	s.state = StateAuthorizing
	for _, w := range s.workers {
		s.enqueue(pendingAuthorize, w.Name, "mining.authorize", []any{w.Name, w.Password})
	}
	return nil, nil
}

func (s *Session) onAuthorizeReply(worker string, result json.RawMessage, stratErr *StratumError) ([]Event, error) {
	accepted := stratErr == nil
	if accepted {
		var b bool
		if err := json.Unmarshal(result, &b); err == nil {
			accepted = b
		}
	}
	status := AuthFailed
	if accepted {
		status = AuthAccepted
	}
	if s.state == StateAuthorizing {
		s.authOutcome = status
		s.state = StateWorking
	}
	return []Event{{Authorized: true, Worker: worker, AuthResult: status}}, nil
}

func (s *Session) onSubmitReply(id uint64, result json.RawMessage, stratErr *StratumError) ([]Event, error) {
	accepted := stratErr == nil
	if accepted {
		var b bool
		if err := json.Unmarshal(result, &b); err == nil {
			accepted = b
		}
	}
	outcome := ShareRejected
	if accepted {
		outcome = ShareAccepted
	}
	events := []Event{{ShareReplied: true, ShareID: id, Outcome: outcome, ShareErr: stratErr}}
	// A share accepted while still waiting on the authorize reply means the
	// pool never intended to gate work on it; infer authorization.
	if accepted && s.state == StateAuthorizing {
		s.authOutcome = AuthInferred
		s.state = StateWorking
	}
	return events, nil
}
