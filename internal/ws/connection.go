package ws

import "fmt"

// Phase tags which variant of the client lifecycle a Conn is in, a
// tagged-variant design standing in for the virtual-dispatch client state
// machine of the reference implementation.
type Phase int

const (
	PhaseHandshaking Phase = iota
	PhaseOpen
	PhaseClosed
)

// ResourceTooBigError is returned when the assembled message would exceed
// MaxMessageSize.
type ResourceTooBigError struct{ Declared int }

func (e *ResourceTooBigError) Error() string {
	return fmt.Sprintf("websocket message too big (%d bytes so far, max %d)", e.Declared, MaxMessageSize)
}

// Conn is one server-role WebSocket connection, covering both the
// Handshaking and Open variants of the client lifecycle. All methods are
// synchronous and goroutine-free: the supervisor's single tick loop is the
// only caller.
type Conn struct {
	resource    string
	subProtocol string

	phase  Phase
	header HeaderReader

	decoder    *Decoder
	assembling bool
	msgOpcode  OpCode
	msgBuf     []byte

	pong         pongSlot
	pongInFlight bool
	close        closeMachine
}

// NewConn creates a connection awaiting its HTTP upgrade handshake.
func NewConn(resource, subProtocol string) *Conn {
	return &Conn{
		resource:    resource,
		subProtocol: subProtocol,
		phase:       PhaseHandshaking,
		decoder:     NewDecoder(true),
	}
}

// Phase reports the connection's current lifecycle variant.
func (c *Conn) Phase() Phase { return c.phase }

// CloseState reports the close-handshake state machine's current state;
// only meaningful once Phase() == PhaseOpen.
func (c *Conn) CloseState() CloseState { return c.close.state }

// FeedHandshake advances the handshake engine with freshly read bytes. On
// success it returns the 101 response bytes to send and done is true; the
// caller must then call FinishHandshake once the response has been fully
// transmitted. A non-nil error is always fatal to the connection and
// carries a RejectReason-bearing HandshakeError.
func (c *Conn) FeedHandshake(data []byte) (response []byte, done bool, err error) {
	if c.phase != PhaseHandshaking {
		return nil, false, fmt.Errorf("handshake already completed")
	}
	block, complete, err := c.header.Feed(data)
	if err != nil {
		return nil, false, err
	}
	if !complete {
		return nil, false, nil
	}
	req, err := ParseHandshake(block, c.resource, c.subProtocol)
	if err != nil {
		return nil, false, err
	}
	return BuildResponse(req.Key, c.subProtocol), true, nil
}

// FinishHandshake transitions Handshaking -> Open once the 101 response has
// been fully written to the transport.
func (c *Conn) FinishHandshake() {
	c.phase = PhaseOpen
}

// InboundEvent is what FeedFrames surfaces to the caller for one decoded
// frame: at most one of Message or Outbound is meaningful per event. Fatal
// conditions are not events: FeedFrames returns them as its error, and the
// connection must then be torn down.
type InboundEvent struct {
	Message  []byte // a fully assembled text/binary message, ready to dispatch
	Outbound []byte // bytes the caller must transmit (pong or close reply)
	Closed   bool   // the close handshake completed; transport may be torn down
}

// FeedFrames decodes as many complete frames as are currently buffered and
// applies the control-frame handler to each, returning one event per frame
// that produced user-visible output. It stops and returns a fatal error
// the instant any frame or message-size limit is violated.
func (c *Conn) FeedFrames(data []byte) ([]InboundEvent, error) {
	if c.phase != PhaseOpen {
		return nil, fmt.Errorf("connection is not open")
	}
	c.decoder.Feed(data)

	var events []InboundEvent
	for {
		frame, ok, err := c.decoder.Decode()
		if err != nil {
			return events, err
		}
		if !ok {
			return events, nil
		}

		ev, err := c.applyControl(frame)
		if err != nil {
			return events, err
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}
}

// applyControl implements the per-frame dispatch, hiding control frames
// from upper layers and assembling user messages across continuation
// frames.
func (c *Conn) applyControl(frame Frame) (*InboundEvent, error) {
	switch frame.Opcode {
	case OpPing:
		c.pong.QueuePong(frame.Payload)
		return nil, nil

	case OpPong:
		return nil, nil // dropped silently

	case OpClose:
		var reason CloseReason = CloseReservedNoStatus
		if len(frame.Payload) >= 2 {
			reason = CloseReason(uint16(frame.Payload[0])<<8 | uint16(frame.Payload[1]))
		}
		reply, shouldReply := c.close.RemoteClose(reason)
		if c.close.state == CloseClosed {
			return &InboundEvent{Closed: true}, nil
		}
		if shouldReply {
			return &InboundEvent{Outbound: EncodeFrame(true, true, OpClose, reply, [4]byte{})}, nil
		}
		return nil, nil

	case OpText, OpBinary, OpContinuation:
		if !c.assembling {
			c.assembling = true
			c.msgOpcode = frame.Opcode
			c.msgBuf = c.msgBuf[:0]
		}
		c.msgBuf = append(c.msgBuf, frame.Payload...)
		if len(c.msgBuf) > MaxMessageSize {
			return nil, &ResourceTooBigError{Declared: len(c.msgBuf)}
		}
		if !frame.Final {
			return nil, nil
		}
		c.assembling = false
		msg := make([]byte, len(c.msgBuf))
		copy(msg, c.msgBuf)
		c.msgBuf = c.msgBuf[:0]
		return &InboundEvent{Message: msg}, nil

	default:
		return nil, &ProtocolError{Reason: "unknown control opcode"}
	}
}

// DrainPong returns a pong frame to transmit if one is queued and no pong
// is currently in flight: an in-flight pong always finishes before the
// next one starts. The caller must call PongSent once the returned bytes
// are fully written.
func (c *Conn) DrainPong() ([]byte, bool) {
	if c.pongInFlight {
		return nil, false
	}
	payload, ok := c.pong.TakePong()
	if !ok {
		return nil, false
	}
	c.pongInFlight = true
	return EncodeFrame(true, true, OpPong, payload, [4]byte{}), true
}

// PongSent marks the in-flight pong as fully transmitted.
func (c *Conn) PongSent() { c.pongInFlight = false }

// EnqueueText builds an outbound text frame (server role, opcode 0x1,
// unmasked).
func (c *Conn) EnqueueText(payload []byte) []byte {
	return EncodeFrame(true, true, OpText, payload, [4]byte{})
}

// RequestClose implements the local half of the close-handshake table. It
// returns the close frame to send, or nil if a close is already underway.
func (c *Conn) RequestClose(reason CloseReason) []byte {
	return c.close.RequestClose(reason)
}

// FrameFullySent notifies the close state machine that an enqueued close
// frame finished transmitting.
func (c *Conn) FrameFullySent() {
	c.close.FrameFullySent()
	if c.close.state == CloseClosed {
		c.phase = PhaseClosed
	}
}
