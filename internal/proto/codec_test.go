package proto

import (
	"bytes"
	"errors"
	"io"
	"math"
	"net"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
)

func allVariants() []Message {
	move := MovementData{X: 1.5, Y: -2.25, VelocityX: 0.5, VelocityY: -0.5, Rotation: 3.14, Seq: 42}
	return []Message{
		&Join{SessionToken: "tok-123", AsSpectator: true},
		&Join{},
		&Movement{Data: move},
		&Shoot{TargetID: math.MaxUint64},
		&Leave{},
		&Targeting{TargetID: 7},
		&StartGame{},
		&Ping{ClientTime: -1},
		&Ping{ClientTime: math.MaxInt64},
		&AccuracyState{State: 2},
		&Chat{Text: "gl hf ✓"},
		&Chat{Text: ""},
		&RouletteDone{},
		&Purchase{ItemID: math.MaxUint32},
		&ShopRoulette{},
		&SetMining{Mining: true},
		&RoomName{Name: strings.Repeat("x", 32)},
		&Welcome{ClientID: 1, ServerID: "srv", ProtocolVersion: ProtocolVersion},
		&Pong{ClientTime: 10, ServerTime: math.MinInt64},
		&JoinAccepted{ClientID: 3, RoomName: "arena", Phase: 1, Round: 2, Spectator: true},
		&PlayerJoined{ClientID: 4, Name: "", Spectator: false},
		&PlayerLeft{ClientID: math.MaxUint64},
		&PlayerMoved{ClientID: 5, Data: move},
		&PlayerShot{ShooterID: 1, TargetID: 2, Damage: 20, TargetHealth: 0, Killed: true},
		&TargetChanged{ClientID: 1, TargetID: 0},
		&AccuracyChanged{ClientID: 1, State: 1},
		&ChatBroadcast{ClientID: 0, Text: "server restarting"},
		&PhaseChanged{Phase: 3, Round: 5},
		&RoundEnded{WinnerID: 9, Round: 1},
		&RouletteResult{ClientID: 9, Reward: 50, Balance: 150},
		&ItemPurchased{ItemID: 1, Balance: 0},
		&ShopRouletteResult{ItemID: 2, Balance: 75},
		&MiningChanged{ClientID: 2, Mining: false, Balance: 12},
		&RoomRenamed{Name: "finals"},
		&Error{Code: "bad_request", Text: "nope"},
		&Unknown{Tag: 999, Payload: []byte{0x08, 0x01}},
		&Unknown{Tag: 500},
	}
}

func TestRoundTripEveryVariant(t *testing.T) {
	for _, msg := range allVariants() {
		t.Run(msg.Type().String(), func(t *testing.T) {
			frame, err := Marshal(msg)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			got, err := Unmarshal(frame)
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if diff := cmp.Diff(msg, got, cmp.Comparer(func(a, b []byte) bool { return bytes.Equal(a, b) })); diff != "" {
				t.Fatalf("decoded message mismatch (-want +got):\n%s", diff)
			}

			again, err := Marshal(got)
			if err != nil {
				t.Fatalf("re-marshal: %v", err)
			}
			if !bytes.Equal(frame, again) {
				t.Fatalf("re-encoded bytes differ:\n%x\n%x", frame, again)
			}
		})
	}
}

func TestEveryKnownTypeHasAVariant(t *testing.T) {
	for typ := range typeNames {
		if newMessage(typ) == nil {
			t.Fatalf("type %s has a name but no variant", typ)
		}
		if got := newMessage(typ).Type(); got != typ {
			t.Fatalf("variant for %s reports type %s", typ, got)
		}
	}
}

func TestDecoderReadsConsecutiveFramesByteByByte(t *testing.T) {
	var stream []byte
	msgs := allVariants()
	for _, msg := range msgs {
		var err error
		stream, err = AppendFrame(stream, msg)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	dec := NewDecoder(iotest.OneByteReader(bytes.NewReader(stream)), 0)
	for i := range msgs {
		got, err := dec.Decode()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got.Type() != msgs[i].Type() {
			t.Fatalf("frame %d: got %s, want %s", i, got.Type(), msgs[i].Type())
		}
	}
	if _, err := dec.Decode(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestDecoderLeavesNextFrameOnPartialRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	first, _ := Marshal(&Chat{Text: "first"})
	second, _ := Marshal(&Chat{Text: "second"})
	half := len(second) / 2

	go func() {
		_, _ = client.Write(append(append([]byte(nil), first...), second[:half]...))
		_, _ = client.Write(second[half:])
	}()

	dec := NewDecoder(server, 0)
	for _, want := range []string{"first", "second"} {
		msg, err := dec.Decode()
		if err != nil {
			t.Fatalf("decode %q: %v", want, err)
		}
		chat, ok := msg.(*Chat)
		if !ok || chat.Text != want {
			t.Fatalf("got %#v, want chat %q", msg, want)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	frame, _ := Marshal(&Chat{Text: "hello"})

	for cut := 1; cut < len(frame); cut++ {
		dec := NewDecoder(bytes.NewReader(frame[:cut]), 0)
		if _, err := dec.Decode(); !errors.Is(err, ErrTruncated) {
			t.Fatalf("cut at %d: expected ErrTruncated, got %v", cut, err)
		}
		if _, err := Unmarshal(frame[:cut]); !errors.Is(err, ErrTruncated) {
			t.Fatalf("unmarshal cut at %d: expected ErrTruncated, got %v", cut, err)
		}
	}
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	frame, _ := Marshal(&Chat{Text: strings.Repeat("a", 100)})
	dec := NewDecoder(bytes.NewReader(frame), 16)
	if _, err := dec.Decode(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func frameOf(body []byte) []byte {
	return append(protowire.AppendVarint(nil, uint64(len(body))), body...)
}

func TestDecodeMalformed(t *testing.T) {
	tag := func(typ Type) []byte { return protowire.AppendVarint(nil, uint64(typ)) }

	tests := []struct {
		name  string
		frame []byte
	}{
		{
			name:  "non-minimal length prefix",
			frame: []byte{0x81, 0x00, byte(TypeLeave)},
		},
		{
			name:  "non-minimal type tag",
			frame: frameOf([]byte{0x84, 0x00}),
		},
		{
			name:  "bool out of range",
			frame: frameOf(append(tag(TypeSetMining), 0x08, 0x02)),
		},
		{
			name:  "fields out of order",
			frame: frameOf(append(tag(TypeJoin), 0x10, 0x01, 0x0a, 0x00)),
		},
		{
			name:  "wrong wire type",
			frame: frameOf(append(tag(TypeShoot), 0x0d, 0x00, 0x00, 0x00, 0x00)),
		},
		{
			name:  "trailing payload bytes",
			frame: frameOf(append(tag(TypeLeave), 0x08, 0x01)),
		},
		{
			name:  "invalid utf-8",
			frame: frameOf(append(tag(TypeChat), 0x0a, 0x01, 0xff)),
		},
		{
			name:  "non-minimal field varint",
			frame: frameOf(append(tag(TypeShoot), 0x08, 0x81, 0x00)),
		},
		{
			name:  "uint32 overflow",
			frame: frameOf(protowire.AppendVarint(append(tag(TypePurchase), 0x08), math.MaxUint32+1)),
		},
		{
			name:  "missing field",
			frame: frameOf(tag(TypeChat)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder(bytes.NewReader(tt.frame), 0)
			if _, err := dec.Decode(); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestEncoderWritesDecodableStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.Encode(&Pong{ClientTime: 1, ServerTime: 2}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Encode(&PlayerLeft{ClientID: 8}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Encode(nil); err == nil {
		t.Fatalf("expected error encoding nil message")
	}

	dec := NewDecoder(&buf, 0)
	first, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pong, ok := first.(*Pong); !ok || pong.ServerTime != 2 {
		t.Fatalf("unexpected first frame %#v", first)
	}
	second, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if left, ok := second.(*PlayerLeft); !ok || left.ClientID != 8 {
		t.Fatalf("unexpected second frame %#v", second)
	}
}
