package ws

import "testing"

func openConn(t *testing.T) *Conn {
	t.Helper()
	c := NewConn("ws", "monitor")
	resp, done, err := c.FeedHandshake(validRequest("\r\n"))
	if err != nil || !done || len(resp) == 0 {
		t.Fatalf("FeedHandshake() = _, %v, %v, %v", done, err, resp)
	}
	c.FinishHandshake()
	if c.Phase() != PhaseOpen {
		t.Fatalf("Phase() = %v, want PhaseOpen", c.Phase())
	}
	return c
}

func TestConnAssemblesFragmentedMessage(t *testing.T) {
	c := openConn(t)

	// A server-role connection rejects unmasked frames, so every fixture is
	// encoded in client role (masked).
	first := EncodeFrame(false, false, OpText, []byte("hello "), [4]byte{})
	second := EncodeFrame(false, true, OpContinuation, []byte("world"), [4]byte{})

	events, err := c.FeedFrames(append(first, second...))
	if err != nil {
		t.Fatalf("FeedFrames() error = %v", err)
	}
	if len(events) != 1 || string(events[0].Message) != "hello world" {
		t.Fatalf("events = %+v", events)
	}
}

func TestConnPingQueuesPong(t *testing.T) {
	c := openConn(t)
	ping := EncodeFrame(false, true, OpPing, []byte("ping-payload"), [4]byte{})

	if _, err := c.FeedFrames(ping); err != nil {
		t.Fatalf("FeedFrames() error = %v", err)
	}
	pong, ok := c.DrainPong()
	if !ok {
		t.Fatalf("DrainPong() ok = false")
	}
	if OpCode(pong[0]&0x0F) != OpPong {
		t.Fatalf("drained frame is not a pong")
	}
}

func TestConnCloseHandshakeLocalInitiated(t *testing.T) {
	c := openConn(t)

	out := c.RequestClose(CloseDone)
	if out == nil {
		t.Fatalf("RequestClose() = nil")
	}
	if c.CloseState() != CloseWaitingReply {
		t.Fatalf("CloseState() = %v, want CloseWaitingReply", c.CloseState())
	}

	reply := EncodeFrame(false, true, OpClose, []byte{0x03, 0xe8}, [4]byte{})
	events, err := c.FeedFrames(reply)
	if err != nil {
		t.Fatalf("FeedFrames() error = %v", err)
	}
	if len(events) != 1 || !events[0].Closed {
		t.Fatalf("events = %+v, want one Closed event", events)
	}
	if c.CloseState() != CloseClosed {
		t.Fatalf("CloseState() = %v, want CloseClosed", c.CloseState())
	}
}

func TestConnCloseHandshakeRemoteInitiated(t *testing.T) {
	c := openConn(t)

	remote := EncodeFrame(false, true, OpClose, []byte{0x03, 0xe9}, [4]byte{})
	events, err := c.FeedFrames(remote)
	if err != nil {
		t.Fatalf("FeedFrames() error = %v", err)
	}
	if len(events) != 1 || events[0].Outbound == nil {
		t.Fatalf("events = %+v, want one outbound close reply", events)
	}
	if c.CloseState() != CloseSendingConfirm {
		t.Fatalf("CloseState() = %v, want CloseSendingConfirm", c.CloseState())
	}

	c.FrameFullySent()
	if c.CloseState() != CloseClosed || c.Phase() != PhaseClosed {
		t.Fatalf("state = %v/%v, want Closed/PhaseClosed", c.CloseState(), c.Phase())
	}
}

func TestConnMessageOverLimitIsFatal(t *testing.T) {
	c := openConn(t)
	chunk := make([]byte, MaxInboundFrameSize)

	first := EncodeFrame(false, false, OpBinary, chunk, [4]byte{})
	if _, err := c.FeedFrames(first); err != nil {
		t.Fatalf("first fragment: FeedFrames() error = %v", err)
	}

	// Enough continuation fragments of MaxInboundFrameSize each to push the
	// assembled message past MaxMessageSize without any single frame
	// exceeding the per-frame ceiling.
	fragments := MaxMessageSize/MaxInboundFrameSize + 1
	var sawErr error
	for i := 0; i < fragments && sawErr == nil; i++ {
		cont := EncodeFrame(false, false, OpContinuation, chunk, [4]byte{})
		_, sawErr = c.FeedFrames(cont)
	}
	if sawErr == nil {
		t.Fatalf("FeedFrames() never returned an error assembling an oversized message")
	}
	if _, ok := sawErr.(*ResourceTooBigError); !ok {
		t.Fatalf("err = %v (%T), want *ResourceTooBigError", sawErr, sawErr)
	}
}
