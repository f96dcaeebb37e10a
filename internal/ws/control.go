package ws

// CloseReason mirrors the standard WebSocket close-status codes.
type CloseReason uint16

const (
	CloseDone                 CloseReason = 1000
	CloseAway                 CloseReason = 1001
	CloseProtoError           CloseReason = 1002
	CloseBadDataType          CloseReason = 1003
	CloseReservedNoStatus     CloseReason = 1005
	CloseReservedAbnormalTerm CloseReason = 1006
	CloseIllFormedData        CloseReason = 1007
	CloseBadPolicy            CloseReason = 1008
	CloseMessageTooBig        CloseReason = 1009
	CloseMissingExtensions    CloseReason = 1010
	CloseServerInternalError  CloseReason = 1011
)

// CloseState is the close-handshake state machine.
type CloseState int

const (
	CloseOperational CloseState = iota
	CloseWaitingReply
	CloseSendingConfirm
	CloseClosed
)

// closeMachine drives the close-handshake transitions. It has no knowledge
// of sockets; it only decides what to enqueue and when the connection is
// fully closed, keeping framing decisions separate from transport.
type closeMachine struct {
	state         CloseState
	waitForReply  bool
	replyReceived bool
}

// RequestClose handles "On local requestClose(reason)". It returns the
// 2-byte close frame payload to enqueue, or nil if the request should be
// ignored (we're past the operational state).
func (c *closeMachine) RequestClose(reason CloseReason) []byte {
	if c.state != CloseOperational {
		return nil
	}
	c.state = CloseWaitingReply
	c.waitForReply = true
	return closePayload(reason)
}

// RemoteClose handles "On remote close frame". It returns (replyPayload,
// shouldReply): in the operational state a reply close frame with the same
// reason must be enqueued and the state becomes sendingCloseConfirm; in
// waitingReply, no reply is sent and the state becomes closed directly.
func (c *closeMachine) RemoteClose(reason CloseReason) (reply []byte, shouldReply bool) {
	switch c.state {
	case CloseOperational:
		c.state = CloseSendingConfirm
		return closePayload(reason), true
	case CloseWaitingReply:
		c.replyReceived = true
		c.state = CloseClosed
		return nil, false
	default:
		return nil, false
	}
}

// FrameFullySent handles "On fully sent frame": only sendingCloseConfirm
// transitions, to closed.
func (c *closeMachine) FrameFullySent() {
	if c.state == CloseSendingConfirm {
		c.state = CloseClosed
	}
}

func closePayload(reason CloseReason) []byte {
	return []byte{byte(reason >> 8), byte(reason)}
}

// pongSlot is a two-slot pong ring: at most one queued, at most one in
// flight.
type pongSlot struct {
	queued    []byte
	haveQueue bool
}

// QueuePong stores payload as the next pong to send, newest-wins. The
// caller is responsible for finishing any in-flight pong first; this slot
// only ever tracks the *next* one.
func (p *pongSlot) QueuePong(payload []byte) {
	p.queued = append(p.queued[:0], payload...)
	p.haveQueue = true
}

// TakePong returns and clears the queued pong payload, if any.
func (p *pongSlot) TakePong() ([]byte, bool) {
	if !p.haveQueue {
		return nil, false
	}
	p.haveQueue = false
	payload := p.queued
	p.queued = nil
	return payload, true
}
