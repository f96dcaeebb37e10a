package supervisor

import (
	"errors"
	"time"

	"m8msupervisor/internal/miner"
	"m8msupervisor/internal/stratum"
	"m8msupervisor/internal/ws"
)

// ErrFatalInactivity is the only error Run itself returns; every other
// failure category is caught and handled at its own boundary per the
// process's error taxonomy.
var ErrFatalInactivity = errors.New("supervisor: no endpoint activity within the inactivity ceiling")

const (
	// DefaultPollPeriod bounds each readiness wait.
	DefaultPollPeriod = 200 * time.Millisecond
	// DefaultInactivityCeiling is the wall-clock span of total silence
	// across every endpoint before Run fails fatally.
	DefaultInactivityCeiling = 120 * time.Second
	// DebugInactivityCeiling replaces the ceiling under a debug build/flag,
	// long enough to survive a breakpoint.
	DebugInactivityCeiling = 30 * time.Minute
	// closeGracePeriod is how long a WS client gets to reply to a server
	// close frame before its transport is torn down unconditionally.
	closeGracePeriod = 5 * time.Second
)

// Logger is the narrow surface Run needs; *slog.Logger satisfies it as-is.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// NotifySink is the out-of-core collaborator the loop ticks once per
// iteration and informs of a miner failure; it is the only I/O this
// package performs outside its own sockets. The zero value of noopSink
// satisfies this with no-ops.
type NotifySink interface {
	Tick()
	ReportMinerFailure(reason string)
}

type noopSink struct{}

func (noopSink) Tick()                     {}
func (noopSink) ReportMinerFailure(string) {}

// Config bundles Run's tunable timings; zero values select the defaults.
type Config struct {
	PollPeriod        time.Duration
	InactivityCeiling time.Duration
	CloseGrace        time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollPeriod <= 0 {
		c.PollPeriod = DefaultPollPeriod
	}
	if c.InactivityCeiling <= 0 {
		c.InactivityCeiling = DefaultInactivityCeiling
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = closeGracePeriod
	}
	return c
}

// Supervisor is the process's single cooperative tick loop: one WS service
// for the monitor port, one for the admin port, one stratum.Supervisor
// driving every configured pool, and a pluggable miner.Miner backend.
type Supervisor struct {
	cfg Config
	log Logger
	sink NotifySink

	mux      *Multiplexer
	monitor  *WSServer
	admin    *WSServer
	stratSup *stratum.Supervisor
	m        miner.Miner
	stats    *Stats

	algo string

	inactivity time.Duration
	quiescent  bool
	shutdown   bool

	failureReason string

	startedAt    time.Time
	hashingAt    time.Time
	firstNonceAt time.Time
}

// New wires a Supervisor. monitor/admin may be nil to disable that service
// (tests exercising only the pool side commonly do this).
func New(cfg Config, log Logger, sink NotifySink, stratSup *stratum.Supervisor, m miner.Miner, stats *Stats, monitor, admin *WSServer) *Supervisor {
	if log == nil {
		log = discardLogger{}
	}
	if sink == nil {
		sink = noopSink{}
	}
	return &Supervisor{
		cfg:       cfg.withDefaults(),
		log:       log,
		sink:      sink,
		mux:       NewMultiplexer(256),
		monitor:   monitor,
		admin:     admin,
		stratSup:  stratSup,
		m:         m,
		stats:     stats,
		startedAt: time.Now(),
	}
}

// NewWSServer builds one WS service (monitor or admin), wired with its own
// Dispatcher/PushManager, ready to be passed to New. The server keeps
// dispatcher by pointer, so commands registered on it via
// ws.RegisterMonitorCommands/RegisterAdminCommands after this call still
// take effect.
func NewWSServer(name, resource, subProtocol string, dispatcher *ws.Dispatcher, push *ws.PushManager) *WSServer {
	return newWSServer(name, resource, subProtocol, nil, dispatcher, push)
}

type discardLogger struct{}

func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}

// Listen starts accepting connections for every non-nil WS service. Call
// once before Run.
func (s *Supervisor) Listen(monitorAddr, adminAddr string) error {
	if s.monitor != nil {
		s.monitor.mux = s.mux
		if err := s.monitor.listen(monitorAddr); err != nil {
			return err
		}
	}
	if s.admin != nil {
		s.admin.mux = s.mux
		if err := s.admin.listen(adminAddr); err != nil {
			return err
		}
	}
	go s.forwardPoolEvents()
	return nil
}

// forwardPoolEvents relays the pool supervisor's own event channel onto the
// shared multiplexer, so stratum connections participate in the same single
// suspension point as the WS services.
func (s *Supervisor) forwardPoolEvents() {
	for ev := range s.stratSup.Events() {
		s.mux.Push(ev)
	}
}

// SetAlgo changes which algorithm's pools Activate keeps connected. Call
// before Run, or any time the active algorithm changes (e.g. via a reload).
func (s *Supervisor) SetAlgo(algo string) { s.algo = algo }

// RequestShutdown asks the loop to begin the two-phase shutdown at the
// start of its next iteration.
func (s *Supervisor) RequestShutdown() { s.shutdown = true }

// Run executes the tick loop until shutdown is requested or a fatal
// inactivity timeout elapses. It returns ErrFatalInactivity in the latter
// case and nil after a clean shutdown.
func (s *Supervisor) Run() error {
	for {
		if s.shutdown {
			s.doShutdown()
			return nil
		}

		s.sink.Tick()

		if !s.quiescent {
			s.stratSup.Activate(s.algo)
		}

		events := s.mux.Wait(s.cfg.PollPeriod)

		if len(events) == 0 {
			s.inactivity += s.cfg.PollPeriod
			if s.inactivity >= s.cfg.InactivityCeiling {
				return ErrFatalInactivity
			}
		} else {
			s.inactivity = 0
			for _, ev := range events {
				s.handleEvent(ev)
			}
		}

		s.stratSup.ExpireShares(time.Now())

		s.drainMinerBatches()
		s.checkMinerFailure()

		if s.monitor != nil {
			s.monitor.tickPushes()
		}
		if s.admin != nil {
			s.admin.tickPushes()
		}
	}
}

func (s *Supervisor) handleEvent(ev any) {
	switch e := ev.(type) {
	case wsAccepted:
		s.serverByName(e.server).onAccepted(e.conn)
	case wsAcceptFailed:
		s.log.Error("ws accept loop ended", "server", e.server, "err", e.err)
	case wsData:
		s.serverByName(e.server).onData(e.id, e.data)
	case wsClosed:
		s.serverByName(e.server).onClosed(e.id)
	case stratum.PoolEvent:
		s.handlePoolEvent(e)
	}
}

func (s *Supervisor) serverByName(name string) *WSServer {
	if s.monitor != nil && s.monitor.name == name {
		return s.monitor
	}
	if s.admin != nil && s.admin.name == name {
		return s.admin
	}
	return nil
}

func (s *Supervisor) handlePoolEvent(ev stratum.PoolEvent) {
	if ev.Connected {
		if s.hashingAt.IsZero() {
			s.hashingAt = time.Now()
		}
		if s.stats != nil {
			s.stats.RecordPoolActivated(ev.Pool, time.Now())
		}
	}
	events := s.stratSup.HandleEvent(ev)
	for _, se := range events {
		switch {
		case se.WorkChanged:
			s.m.Push(miner.Origin{Owner: ev.Pool, JobID: se.Work.JobID}, se.Work)
		case se.ShareReplied:
			if se.Outcome == stratum.ShareAccepted && s.firstNonceAt.IsZero() {
				s.firstNonceAt = time.Now()
			}
			if s.stats != nil {
				s.stats.RecordShareReply(ev.Pool, se.Outcome == stratum.ShareAccepted, time.Now())
			}
		}
	}
}

func (s *Supervisor) drainMinerBatches() {
	if s.quiescent {
		return
	}
	for {
		batch, ok := s.m.Poll()
		if !ok {
			return
		}
		submitted, stale := s.stratSup.Submit(batch)
		if s.stats != nil {
			now := time.Now()
			s.stats.RecordSubmitted(batch.Origin.Owner, batch.DeviceIndex, int64(submitted), now)
			s.stats.RecordStale(batch.DeviceIndex, int64(stale), now)
		}
	}
}

func (s *Supervisor) checkMinerFailure() {
	reason, ok := s.m.Failed()
	if !ok {
		return
	}
	s.quiescent = true
	s.failureReason = reason
	s.sink.ReportMinerFailure(reason)
	s.log.Error("miner backend terminated unexpectedly, entering quiescent state", "reason", reason)
}

// doShutdown implements the two-phase shutdown: the WS services stop
// accepting, close every open client with a grace period, then the pool
// supervisor tears down its sessions.
func (s *Supervisor) doShutdown() {
	if s.monitor != nil {
		s.monitor.stopAccepting()
		s.monitor.closeAll(s.cfg.CloseGrace)
	}
	if s.admin != nil {
		s.admin.stopAccepting()
		s.admin.closeAll(s.cfg.CloseGrace)
	}
	s.stratSup.Shutdown()
}
