package proto

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// DefaultMaxFrameSize bounds a frame body when no explicit limit is given.
const DefaultMaxFrameSize = 64 << 10

// maxVarintLen is the longest legal uvarint encoding of a uint64.
const maxVarintLen = 10

var (
	// ErrMalformed is returned for frames that violate the canonical layout.
	ErrMalformed = errors.New("malformed frame")
	// ErrTruncated is returned when the stream ends inside a frame.
	ErrTruncated = errors.New("truncated frame")
	// ErrFrameTooLarge is returned when a declared body exceeds the limit.
	ErrFrameTooLarge = errors.New("frame too large")

	errNilMessage = errors.New("nil message")
)

// AppendFrame appends the complete frame for m to dst:
// uvarint(len(body)) followed by body = uvarint(type) payload.
func AppendFrame(dst []byte, m Message) ([]byte, error) {
	if m == nil {
		return dst, errNilMessage
	}
	w := payloadWriter{b: protowire.AppendVarint(nil, uint64(m.Type()))}
	m.appendPayload(&w)

	dst = protowire.AppendVarint(dst, uint64(len(w.b)))
	return append(dst, w.b...), nil
}

// Marshal encodes m as a standalone frame.
func Marshal(m Message) ([]byte, error) {
	return AppendFrame(nil, m)
}

// Unmarshal decodes exactly one frame; trailing bytes are an error.
func Unmarshal(frame []byte) (Message, error) {
	size, n := protowire.ConsumeVarint(frame)
	if n < 0 {
		return nil, fmt.Errorf("%w: length prefix: %v", ErrTruncated, protowire.ParseError(n))
	}
	if n != protowire.SizeVarint(size) {
		return nil, fmt.Errorf("%w: non-minimal length prefix", ErrMalformed)
	}
	body := frame[n:]
	if uint64(len(body)) < size {
		return nil, fmt.Errorf("%w: want %d body bytes, have %d", ErrTruncated, size, len(body))
	}
	if uint64(len(body)) > size {
		return nil, fmt.Errorf("%w: %d bytes after frame", ErrMalformed, uint64(len(body))-size)
	}
	return decodeBody(body)
}

func decodeBody(body []byte) (Message, error) {
	tag, n := protowire.ConsumeVarint(body)
	if n < 0 {
		return nil, fmt.Errorf("%w: type tag: %v", ErrMalformed, protowire.ParseError(n))
	}
	if n != protowire.SizeVarint(tag) || tag > math.MaxUint32 {
		return nil, fmt.Errorf("%w: type tag", ErrMalformed)
	}

	t := Type(tag)
	m := newMessage(t)
	if m == nil {
		m = &Unknown{Tag: t}
	}
	r := payloadReader{b: body[n:]}
	m.readPayload(&r)
	if err := r.finish(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return m, nil
}

// Decoder reads frames from a byte stream. It never consumes bytes past the
// end of the frame it returns.
type Decoder struct {
	r   *bufio.Reader
	max uint64
}

// NewDecoder wraps r. maxFrameSize <= 0 selects DefaultMaxFrameSize.
func NewDecoder(r io.Reader, maxFrameSize int) *Decoder {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{r: bufio.NewReader(r), max: uint64(maxFrameSize)}
}

// Decode returns the next message. io.EOF means the stream ended cleanly on a
// frame boundary; any other error leaves the stream unusable.
func (d *Decoder) Decode() (Message, error) {
	size, err := d.readLength()
	if err != nil {
		return nil, err
	}
	if size > d.max {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, d.max)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(d.r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		return nil, err
	}
	return decodeBody(body)
}

func (d *Decoder) readLength() (uint64, error) {
	var v uint64
	for i := 0; i < maxVarintLen; i++ {
		b, err := d.r.ReadByte()
		if err != nil {
			if i > 0 && errors.Is(err, io.EOF) {
				return 0, fmt.Errorf("%w: length prefix", ErrTruncated)
			}
			return 0, err
		}
		if i == maxVarintLen-1 && b > 1 {
			return 0, fmt.Errorf("%w: length prefix overflows", ErrMalformed)
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b < 0x80 {
			if i+1 != protowire.SizeVarint(v) {
				return 0, fmt.Errorf("%w: non-minimal length prefix", ErrMalformed)
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: length prefix overflows", ErrMalformed)
}

// Encoder writes frames to a byte stream. It is not safe for concurrent use.
type Encoder struct {
	w   *bufio.Writer
	buf []byte
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes and flushes one frame.
func (e *Encoder) Encode(m Message) error {
	frame, err := AppendFrame(e.buf[:0], m)
	if err != nil {
		return err
	}
	e.buf = frame
	if _, err := e.w.Write(frame); err != nil {
		return err
	}
	return e.w.Flush()
}
