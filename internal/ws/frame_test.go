package ws

import (
	"bytes"
	"testing"
)

func TestDecodeMaskedTextFrame(t *testing.T) {
	// "Hello" masked with key 37 fa 21 3d, the canonical RFC 6455 example.
	mask := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	plain := []byte("Hello")
	masked := make([]byte, len(plain))
	for i, b := range plain {
		masked[i] = b ^ mask[i%4]
	}

	frameBytes := []byte{0x81, 0x85}
	frameBytes = append(frameBytes, mask[:]...)
	frameBytes = append(frameBytes, masked...)

	d := NewDecoder(true)
	d.Feed(frameBytes)
	frame, ok, err := d.Decode()
	if err != nil || !ok {
		t.Fatalf("Decode() = _, %v, %v", ok, err)
	}
	if !frame.Final || frame.Opcode != OpText {
		t.Fatalf("unexpected frame header: final=%v opcode=%v", frame.Final, frame.Opcode)
	}
	if !bytes.Equal(frame.Payload, plain) {
		t.Fatalf("Payload = %q, want %q", frame.Payload, plain)
	}
}

func TestDecodeRejectsUnmaskedClientFrame(t *testing.T) {
	d := NewDecoder(true)
	d.Feed([]byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'})
	_, _, err := d.Decode()
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("err = %v, want *ProtocolError", err)
	}
}

func TestDecodeNeedsMoreBytes(t *testing.T) {
	d := NewDecoder(true)
	d.Feed([]byte{0x81})
	_, ok, err := d.Decode()
	if err != nil || ok {
		t.Fatalf("Decode() = _, %v, %v, want ok=false err=nil", ok, err)
	}
}

func TestFrameExactlyAtLimitAccepted(t *testing.T) {
	payload := make([]byte, MaxInboundFrameSize)
	encoded := EncodeFrame(true, true, OpBinary, payload, [4]byte{})
	d := NewDecoder(false)
	d.Feed(encoded)
	frame, ok, err := d.Decode()
	if err != nil || !ok {
		t.Fatalf("Decode() = _, %v, %v", ok, err)
	}
	if len(frame.Payload) != MaxInboundFrameSize {
		t.Fatalf("len(Payload) = %d, want %d", len(frame.Payload), MaxInboundFrameSize)
	}
}

func TestFrameOverLimitRejected(t *testing.T) {
	// Hand-build a 64-bit-length header declaring one byte over the limit,
	// without allocating the (huge) payload itself.
	var head [10]byte
	head[0] = 0x80 | byte(OpBinary)
	head[1] = 127
	declared := uint64(MaxInboundFrameSize) + 1
	for i := 0; i < 8; i++ {
		head[9-i] = byte(declared >> (8 * i))
	}
	d := NewDecoder(false)
	d.Feed(head[:])
	_, _, err := d.Decode()
	big, ok := err.(*FrameTooBigError)
	if !ok {
		t.Fatalf("err = %v, want *FrameTooBigError", err)
	}
	if big.Declared != declared {
		t.Fatalf("Declared = %d, want %d", big.Declared, declared)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := MaskKey()
	payload := []byte("round trip payload")
	wire := EncodeFrame(false, true, OpText, payload, key)

	d := NewDecoder(true)
	d.Feed(wire)
	frame, ok, err := d.Decode()
	if err != nil || !ok {
		t.Fatalf("Decode() = _, %v, %v", ok, err)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("Payload = %q, want %q", frame.Payload, payload)
	}
}

func TestServerEncodedFramesAreUnmasked(t *testing.T) {
	wire := EncodeFrame(true, true, OpText, []byte("hi"), [4]byte{})
	if wire[1]&0x80 != 0 {
		t.Fatalf("server frame has mask bit set")
	}
}
