package proto

import (
	"fmt"
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// payloadWriter appends fields in the canonical layout: every field present,
// ascending field numbers, minimal varints.
type payloadWriter struct {
	b []byte
}

func (w *payloadWriter) uint(num protowire.Number, v uint64) {
	w.b = protowire.AppendTag(w.b, num, protowire.VarintType)
	w.b = protowire.AppendVarint(w.b, v)
}

func (w *payloadWriter) sint(num protowire.Number, v int64) {
	w.uint(num, protowire.EncodeZigZag(v))
}

func (w *payloadWriter) bool(num protowire.Number, v bool) {
	w.uint(num, protowire.EncodeBool(v))
}

func (w *payloadWriter) float(num protowire.Number, v float32) {
	w.b = protowire.AppendTag(w.b, num, protowire.Fixed32Type)
	w.b = protowire.AppendFixed32(w.b, math.Float32bits(v))
}

func (w *payloadWriter) string(num protowire.Number, v string) {
	w.b = protowire.AppendTag(w.b, num, protowire.BytesType)
	w.b = protowire.AppendString(w.b, v)
}

// payloadReader consumes fields in the order the writer produced them. The
// first violation sticks; later reads return zero values.
type payloadReader struct {
	b   []byte
	err error
}

func (r *payloadReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
	}
}

func (r *payloadReader) tag(num protowire.Number, typ protowire.Type) bool {
	if r.err != nil {
		return false
	}
	gotNum, gotTyp, n := protowire.ConsumeTag(r.b)
	if n < 0 {
		r.fail("field %d: %v", num, protowire.ParseError(n))
		return false
	}
	if gotNum != num || gotTyp != typ {
		r.fail("field %d: got field %d wire type %d", num, gotNum, gotTyp)
		return false
	}
	if n != protowire.SizeTag(gotNum) {
		r.fail("field %d: non-minimal tag", num)
		return false
	}
	r.b = r.b[n:]
	return true
}

func (r *payloadReader) uint(num protowire.Number) uint64 {
	if !r.tag(num, protowire.VarintType) {
		return 0
	}
	v, n := protowire.ConsumeVarint(r.b)
	if n < 0 {
		r.fail("field %d: %v", num, protowire.ParseError(n))
		return 0
	}
	if n != protowire.SizeVarint(v) {
		r.fail("field %d: non-minimal varint", num)
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *payloadReader) uint32(num protowire.Number) uint32 {
	v := r.uint(num)
	if v > math.MaxUint32 {
		r.fail("field %d: value %d overflows uint32", num, v)
		return 0
	}
	return uint32(v)
}

func (r *payloadReader) sint(num protowire.Number) int64 {
	return protowire.DecodeZigZag(r.uint(num))
}

func (r *payloadReader) bool(num protowire.Number) bool {
	v := r.uint(num)
	if v > 1 {
		r.fail("field %d: bool value %d", num, v)
		return false
	}
	return v == 1
}

func (r *payloadReader) float(num protowire.Number) float32 {
	if !r.tag(num, protowire.Fixed32Type) {
		return 0
	}
	v, n := protowire.ConsumeFixed32(r.b)
	if n < 0 {
		r.fail("field %d: %v", num, protowire.ParseError(n))
		return 0
	}
	r.b = r.b[n:]
	return math.Float32frombits(v)
}

func (r *payloadReader) string(num protowire.Number) string {
	if !r.tag(num, protowire.BytesType) {
		return ""
	}
	v, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		r.fail("field %d: %v", num, protowire.ParseError(n))
		return ""
	}
	if n != protowire.SizeBytes(len(v)) {
		r.fail("field %d: non-minimal length", num)
		return ""
	}
	if !utf8.Valid(v) {
		r.fail("field %d: invalid utf-8", num)
		return ""
	}
	r.b = r.b[n:]
	return string(v)
}

func (r *payloadReader) finish() error {
	if r.err == nil && len(r.b) != 0 {
		r.fail("%d trailing bytes", len(r.b))
	}
	return r.err
}

func fieldNum(n int) protowire.Number {
	return protowire.Number(n)
}
