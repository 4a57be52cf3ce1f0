package wsjtx

import (
	"encoding/binary"
	"math"
	"strings"
)

// nullStringLength is how QDataStream encodes a null QString/QByteArray.
const nullStringLength = 0xffffffff

// reader walks a datagram, never reading past its end.
type reader struct {
	buf []byte
	off int
}

func newReader(b []byte, off int) *reader {
	return &reader{buf: b, off: off}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) take(field string, n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, &FieldOverrunError{Field: field, Offset: r.off, Need: n, Remaining: r.remaining()}
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8(field string) (uint8, error) {
	b, err := r.take(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) boolean(field string) (bool, error) {
	v, err := r.u8(field)
	return v != 0, err
}

func (r *reader) u32(field string) (uint32, error) {
	b, err := r.take(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) i32(field string) (int32, error) {
	v, err := r.u32(field)
	return int32(v), err
}

func (r *reader) u64(field string) (uint64, error) {
	b, err := r.take(field, 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) f64(field string) (float64, error) {
	v, err := r.u64(field)
	return math.Float64frombits(v), err
}

// str reads a length-prefixed utf8 string. A null string reads as "".
// Invalid utf8 sequences are replaced rather than rejected.
func (r *reader) str(field string) (string, error) {
	n, err := r.u32(field + " length")
	if err != nil {
		return "", err
	}
	if n == nullStringLength {
		return "", nil
	}
	if uint64(n) > uint64(r.remaining()) {
		return "", &FieldOverrunError{Field: field, Offset: r.off, Need: int(min(uint64(n), math.MaxInt32)), Remaining: r.remaining()}
	}
	b, _ := r.take(field, int(n))
	return strings.ToValidUTF8(string(b), "\uFFFD"), nil
}
