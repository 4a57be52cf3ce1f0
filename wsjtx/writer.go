package wsjtx

import (
	"bytes"
	"encoding/binary"
	"time"
)

// writer builds a datagram in QDataStream format.
type writer struct {
	buf bytes.Buffer
}

// header writes magic, schema, type and the client id. A zero magic or schema
// falls back to WSJT-X defaults.
func (w *writer) header(h Header, t MessageType, id string) {
	magic := h.Magic
	if magic == 0 {
		magic = MagicWSJTX
	}
	schema := h.Schema
	if schema == 0 {
		schema = SchemaVersion
	}
	w.uint32(magic)
	w.uint32(schema)
	w.uint32(uint32(t))
	w.string(id)
}

// string writes a 4-byte big-endian length followed by the utf8 bytes
func (w *writer) string(s string) {
	w.uint32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) bool(b bool) {
	if b {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *writer) uint8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *writer) uint32(v uint32) {
	binary.Write(&w.buf, binary.BigEndian, v)
}

func (w *writer) int32(v int32) {
	binary.Write(&w.buf, binary.BigEndian, v)
}

func (w *writer) uint64(v uint64) {
	binary.Write(&w.buf, binary.BigEndian, v)
}

func (w *writer) double(v float64) {
	binary.Write(&w.buf, binary.BigEndian, v)
}

func (w *writer) bytes() []byte {
	return w.buf.Bytes()
}

// TimeToQTime converts t to QTime format (milliseconds since midnight UTC)
func TimeToQTime(t time.Time) uint32 {
	utc := t.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return uint32(utc.Sub(midnight).Milliseconds())
}

// QTimeString formats a QTime as HHMMSS, the way the decode window shows it.
func QTimeString(ms uint32) string {
	d := time.Duration(ms) * time.Millisecond
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(d).Format("150405")
}
