package supervisor

import (
	"net"
	"strconv"
	"time"

	"m8msupervisor/internal/ws"
)

// wsAccepted reports a new inbound connection on one WS service.
type wsAccepted struct {
	server string
	conn   net.Conn
}

// wsAcceptFailed reports the accept loop itself dying; the service is done.
type wsAcceptFailed struct {
	server string
	err    error
}

// wsData reports bytes read off an already-open client connection.
type wsData struct {
	server string
	id     uint64
	data   []byte
}

// wsClosed reports a client connection's read loop ending, for any reason.
type wsClosed struct {
	server string
	id     uint64
}

// wsClient is one accepted connection on a WSServer: its raw transport plus
// the protocol-level Conn it drives.
type wsClient struct {
	id   uint64
	conn net.Conn
	sock *ws.Conn
}

// WSServer owns one listening socket (monitor or admin) and every
// connection accepted on it. All state here is touched only from the tick
// goroutine that calls handleEvent; the accept loop and per-connection
// readers exist solely to push events onto the shared multiplexer.
type WSServer struct {
	name        string
	resource    string
	subProtocol string

	listener net.Listener
	mux      *Multiplexer

	dispatcher *ws.Dispatcher
	push       *ws.PushManager

	clients map[uint64]*wsClient
	nextID  uint64

	accepting bool
}

func newWSServer(name, resource, subProtocol string, mux *Multiplexer, dispatcher *ws.Dispatcher, push *ws.PushManager) *WSServer {
	return &WSServer{
		name:        name,
		resource:    resource,
		subProtocol: subProtocol,
		mux:         mux,
		dispatcher:  dispatcher,
		push:        push,
		clients:     make(map[uint64]*wsClient),
	}
}

// listen starts accepting connections on addr. Must be called before Run.
func (s *WSServer) listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.accepting = true
	go s.acceptLoop()
	return nil
}

func (s *WSServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mux.Push(wsAcceptFailed{server: s.name, err: err})
			return
		}
		s.mux.Push(wsAccepted{server: s.name, conn: conn})
	}
}

func (s *WSServer) readLoop(id uint64, conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.mux.Push(wsData{server: s.name, id: id, data: chunk})
		}
		if err != nil {
			s.mux.Push(wsClosed{server: s.name, id: id})
			return
		}
	}
}

// stopAccepting closes the listening socket; already-open connections are
// unaffected.
func (s *WSServer) stopAccepting() {
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	s.accepting = false
}

// onAccepted registers a newly connected client and starts its reader.
func (s *WSServer) onAccepted(conn net.Conn) {
	s.nextID++
	id := s.nextID
	c := &wsClient{id: id, conn: conn, sock: ws.NewConn(s.resource, s.subProtocol)}
	s.clients[id] = c
	go s.readLoop(id, conn)
}

func (s *WSServer) clientKey(id uint64) string { return strconv.FormatUint(id, 10) }

// onData feeds newly read bytes through the handshake engine or the frame
// codec depending on phase, dispatching any assembled commands and writing
// back whatever the protocol layer produces.
func (s *WSServer) onData(id uint64, data []byte) {
	c, ok := s.clients[id]
	if !ok {
		return
	}
	switch c.sock.Phase() {
	case ws.PhaseHandshaking:
		resp, done, err := c.sock.FeedHandshake(data)
		if err != nil {
			s.dropClient(id)
			return
		}
		if !done {
			return
		}
		if _, err := c.conn.Write(resp); err != nil {
			s.dropClient(id)
			return
		}
		c.sock.FinishHandshake()
		return

	case ws.PhaseOpen:
		events, err := c.sock.FeedFrames(data)
		if err != nil {
			s.dropClient(id)
			return
		}
		for _, ev := range events {
			if ev.Outbound != nil {
				c.conn.Write(ev.Outbound)
			}
			if ev.Message != nil {
				reply, err := s.dispatcher.Dispatch(s.clientKey(id), ev.Message)
				if err == nil {
					c.conn.Write(c.sock.EnqueueText(reply))
				}
			}
			if ev.Closed {
				s.dropClient(id)
				return
			}
		}
		if pong, ok := c.sock.DrainPong(); ok {
			if _, err := c.conn.Write(pong); err == nil {
				c.sock.PongSent()
			}
		}
	}
}

func (s *WSServer) onClosed(id uint64) {
	s.dropClient(id)
}

func (s *WSServer) dropClient(id uint64) {
	c, ok := s.clients[id]
	if !ok {
		return
	}
	c.conn.Close()
	delete(s.clients, id)
	s.push.UnsubscribeClient(s.clientKey(id))
}

// tickPushes polls every active pusher and writes whatever changed to its
// owning client.
func (s *WSServer) tickPushes() {
	for clientKey, messages := range s.push.Tick() {
		id, err := strconv.ParseUint(clientKey, 10, 64)
		if err != nil {
			continue
		}
		c, ok := s.clients[id]
		if !ok || c.sock.Phase() != ws.PhaseOpen {
			continue
		}
		for _, msg := range messages {
			c.conn.Write(c.sock.EnqueueText(msg))
		}
	}
}

// closeAll sends a close frame to every open client, sleeps for the grace
// period, then closes every client's transport. The sleep runs on the
// calling goroutine, so replies that arrive during it are not processed and
// no client is torn down before the grace period ends.
func (s *WSServer) closeAll(grace time.Duration) {
	for _, c := range s.clients {
		if c.sock.Phase() == ws.PhaseOpen {
			if payload := c.sock.RequestClose(ws.CloseDone); payload != nil {
				c.conn.Write(ws.EncodeFrame(true, true, ws.OpClose, payload, [4]byte{}))
			}
		}
	}
	time.Sleep(grace)
	for id, c := range s.clients {
		c.conn.Close()
		delete(s.clients, id)
	}
}
