package stratum

import (
	"fmt"
	"time"

	"m8msupervisor/internal/miner"
)

// DefaultReconnectBase is the base delay between a pool disconnection and
// the next connect attempt, absent an explicit configuration override.
const DefaultReconnectBase = 30 * time.Second

// hardFailureMultiplier is applied to the backoff delay when a reconnect
// attempt itself fails (as opposed to a previously-working session
// dropping its transport). Not configurable in the original; exposed here
// only insofar as DefaultReconnectBase is.
const hardFailureMultiplier = 4

// ShareExpiry is how long a submitted share waits for a pool reply before
// it is silently dropped from bookkeeping.
const ShareExpiry = 2 * time.Minute

type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateConnected
)

type pool struct {
	cfg  PoolConfig
	conn Transport

	state         connState
	nextReconnect time.Time
	session       *Session
}

// PoolEvent is one unit of news a pool connection reports to the
// supervisor: either a connection attempt resolving, or a batch of bytes
// read off an already-open transport.
type PoolEvent struct {
	Pool string

	Connected      bool
	Transport      Transport
	ConnectErr     ConnectError
	ConnectFailErr error

	Data         []byte
	Disconnected bool
}

// Supervisor owns every configured pool's session and transport. It never
// blocks: connecting happens on a short-lived goroutine per attempt that
// reports its outcome back through Events, and reading an already-open
// transport happens on one goroutine per connection that forwards raw
// bytes the same way. Those goroutines only ever send on events; every
// field read or write below happens on the single supervisor tick thread
// that calls Activate/HandleEvent/Submit/ExpireShares, so the pool map
// needs no lock.
type Supervisor struct {
	pools   map[string]*pool
	dial    Dialer
	events  chan PoolEvent
	backoff time.Duration
	now     func() time.Time
}

// NewSupervisor builds a supervisor for the given pool configurations.
// backoff <= 0 selects DefaultReconnectBase.
func NewSupervisor(cfgs []PoolConfig, dial Dialer, backoff time.Duration) *Supervisor {
	if backoff <= 0 {
		backoff = DefaultReconnectBase
	}
	s := &Supervisor{
		pools:   make(map[string]*pool, len(cfgs)),
		dial:    dial,
		events:  make(chan PoolEvent, 64),
		backoff: backoff,
		now:     time.Now,
	}
	for _, c := range cfgs {
		s.pools[c.Name] = &pool{cfg: c}
	}
	return s
}

// Events is the channel the owning supervisor loop selects on alongside
// WS connection events, per the shared-channel readiness design.
func (s *Supervisor) Events() <-chan PoolEvent { return s.events }

// Activate ensures every pool whose algo matches has a connection coming
// up or already open, and tears down every pool that no longer matches.
// It returns the number of pools in the connecting or connected state
// after the call.
func (s *Supervisor) Activate(algo string) int {
	count := 0
	for name, p := range s.pools {
		if p.cfg.Algo != algo {
			if p.conn != nil {
				p.conn.Close()
			}
			p.conn = nil
			p.session = nil
			p.state = stateIdle
			p.nextReconnect = time.Time{}
			continue
		}
		switch p.state {
		case stateConnected, stateConnecting:
			count++
			continue
		}
		if !p.nextReconnect.IsZero() && s.now().Before(p.nextReconnect) {
			continue
		}
		p.state = stateConnecting
		count++
		go s.attemptConnect(name, p.cfg)
	}
	return count
}

func (s *Supervisor) attemptConnect(name string, cfg PoolConfig) {
	transport, cerr, err := s.dial(cfg)
	if err != nil {
		s.events <- PoolEvent{Pool: name, ConnectErr: cerr, ConnectFailErr: err}
		return
	}
	s.events <- PoolEvent{Pool: name, Connected: true, Transport: transport}
}

// runReader is the per-connection goroutine that blocks on Read and
// forwards whatever bytes it gets onto the shared events channel; it
// never decodes anything itself so decoding always happens on the
// single-threaded side in HandleEvent.
func (s *Supervisor) runReader(name string, t Transport) {
	buf := make([]byte, 4096)
	for {
		n, err := t.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.events <- PoolEvent{Pool: name, Data: chunk}
		}
		if err != nil {
			s.events <- PoolEvent{Pool: name, Disconnected: true}
			return
		}
	}
}

// HandleEvent applies one PoolEvent's consequences and returns the
// stratum-level Events it produced, if any (empty for connect outcomes).
// Must only be called from the single supervisor tick thread.
func (s *Supervisor) HandleEvent(ev PoolEvent) []Event {
	p, ok := s.pools[ev.Pool]
	if !ok {
		return nil
	}

	switch {
	case ev.Connected:
		p.state = stateConnected
		p.conn = ev.Transport
		p.nextReconnect = time.Time{}
		p.session = NewSession(p.cfg.Name, p.cfg.Workers, p.cfg.DiffMode, p.cfg.DiffMul)
		go s.runReader(ev.Pool, ev.Transport)
		s.flush(ev.Pool)
		return nil

	case ev.ConnectFailErr != nil:
		p.state = stateIdle
		p.nextReconnect = s.now().Add(s.backoff * hardFailureMultiplier)
		return nil

	case ev.Disconnected:
		if p.conn != nil {
			p.conn.Close()
		}
		p.conn = nil
		p.session = nil
		p.state = stateIdle
		p.nextReconnect = s.now().Add(s.backoff)
		return nil

	case len(ev.Data) > 0:
		if p.session == nil {
			return nil
		}
		events, err := p.session.FeedLines(ev.Data)
		if err != nil {
			if p.conn != nil {
				p.conn.Close()
			}
			p.conn = nil
			p.session = nil
			p.state = stateIdle
			p.nextReconnect = s.now().Add(s.backoff * hardFailureMultiplier)
		} else {
			s.flush(ev.Pool)
		}
		return events
	}
	return nil
}

// PoolSummary describes one pool's identity and live connection state, for
// read-only reporting by the owning tick thread.
type PoolSummary struct {
	Name      string
	Host      string
	Port      int
	Connected bool
	Workers   []string
}

// ActivePool returns the first connected pool, if any. Must only be called
// from the single supervisor tick thread.
func (s *Supervisor) ActivePool() (PoolSummary, bool) {
	for name, p := range s.pools {
		if p.state == stateConnected {
			workers := make([]string, len(p.cfg.Workers))
			for i, w := range p.cfg.Workers {
				workers[i] = w.Name
			}
			return PoolSummary{Name: name, Host: p.cfg.Host, Port: p.cfg.Port, Connected: true, Workers: workers}, true
		}
	}
	return PoolSummary{}, false
}

func (s *Supervisor) flush(name string) {
	p, ok := s.pools[name]
	if !ok || p.session == nil || p.conn == nil {
		return
	}
	if data, pending := p.session.DrainOutbound(); pending {
		p.conn.Write(data)
	}
}

// Submit routes a verified nonce batch to its owning pool session. A batch
// tagged with a jobId outside the session's rolling job-id history is
// dropped and reported stale rather than submitted; a batch for a job just
// superseded by a new notify is still within that window and is accepted.
func (s *Supervisor) Submit(batch miner.Batch) (submitted, stale int) {
	p, ok := s.pools[batch.Origin.Owner]
	if !ok || p.session == nil {
		return 0, len(batch.Nonces)
	}

	if !p.session.JobIDCurrent(batch.Origin.JobID) {
		return 0, len(batch.Nonces)
	}

	worker := ""
	if len(p.cfg.Workers) > 0 {
		worker = p.cfg.Workers[0].Name
	}
	ntime := p.session.CurrentNTime()
	for _, n := range batch.Nonces {
		p.session.SubmitShare(worker, batch.Nonce2, ntime, fmt.Sprintf("%08x", n.Value))
		submitted++
	}
	s.flush(batch.Origin.Owner)
	return submitted, 0
}

// ExpireShares drops outstanding submits older than ShareExpiry across
// every connected pool.
func (s *Supervisor) ExpireShares(now time.Time) int {
	total := 0
	for _, p := range s.pools {
		if p.session != nil {
			total += p.session.ExpireOutstanding(now, ShareExpiry)
		}
	}
	return total
}

// Shutdown closes every open pool transport.
func (s *Supervisor) Shutdown() {
	for _, p := range s.pools {
		if p.conn != nil {
			p.conn.Close()
		}
	}
}
