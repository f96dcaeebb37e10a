package stratum

import "io"

// WorkerConfig is one `user`/`pass` credential pair a pool session
// authorizes after subscribing.
type WorkerConfig struct {
	Name     string
	Password string
}

// PoolConfig describes one configured upstream pool.
type PoolConfig struct {
	Name       string
	Host       string
	Port       int
	Algo       string
	Workers    []WorkerConfig
	DiffMode   DiffMode
	DiffMul    DiffMultipliers
	MerkleMode MerkleMode
}

// ConnectError is the taxonomy of ways establishing a pool transport can
// fail, surfaced to upper layers so logging and backoff policy can tell
// a DNS failure from a refused connection.
type ConnectError int

const (
	ConnectFailedResolve ConnectError = iota
	ConnectBadSocket
	ConnectFailedConnect
	ConnectNoRoutes
)

func (e ConnectError) String() string {
	switch e {
	case ConnectFailedResolve:
		return "failedResolve"
	case ConnectBadSocket:
		return "badSocket"
	case ConnectFailedConnect:
		return "failedConnect"
	case ConnectNoRoutes:
		return "noRoutes"
	default:
		return "unknown"
	}
}

// Transport is the narrow surface a pool connection needs: a
// byte-oriented, full-duplex stream. *net.TCPConn satisfies it; tests
// substitute an in-memory pipe.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Dialer establishes a pool's transport. The default implementation
// dials TCP and classifies the failure per ConnectError; tests inject a
// fake that never touches the network.
type Dialer func(cfg PoolConfig) (Transport, ConnectError, error)
