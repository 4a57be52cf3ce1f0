// Package wsjtx implements the subset of the WSJT-X UDP message protocol that
// ultron needs to relay and answer decodes from WSJT-X, JTDX and MSHV.
//
// All messages use Qt QDataStream framing: big-endian integers, booleans as a
// single byte and utf8 strings prefixed with a quint32 byte length (0xffffffff
// marks a null string).
package wsjtx

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Vendor magic numbers. JTDX and MSHV forks announce themselves with their own
// magic but otherwise share the WSJT-X layout.
const (
	MagicWSJTX uint32 = 0xadbccbda
	MagicJTDX  uint32 = 0xadbccb00
	MagicMSHV  uint32 = 0xdacbbcad
)

// SchemaVersion is the schema we advertise in messages we originate (Qt 5.4+).
const SchemaVersion uint32 = 3

// HeaderSize is magic + schema + type.
const HeaderSize = 12

// MessageType identifies the payload that follows the header.
type MessageType uint32

const (
	TypeHeartbeat  MessageType = 0
	TypeStatus     MessageType = 1
	TypeDecode     MessageType = 2
	TypeClear      MessageType = 3
	TypeReply      MessageType = 4
	TypeQSOLogged  MessageType = 5
	TypeClose      MessageType = 6
	TypeReplay     MessageType = 7
	TypeHaltTx     MessageType = 8
	TypeFreeText   MessageType = 9
	TypeWSPRDecode MessageType = 10
	TypeLoggedADIF MessageType = 12
)

func (t MessageType) String() string {
	switch t {
	case TypeHeartbeat:
		return "heartbeat"
	case TypeStatus:
		return "status"
	case TypeDecode:
		return "decode"
	case TypeClear:
		return "clear"
	case TypeReply:
		return "reply"
	case TypeQSOLogged:
		return "qso_logged"
	case TypeClose:
		return "close"
	case TypeReplay:
		return "replay"
	case TypeHaltTx:
		return "halt_tx"
	case TypeFreeText:
		return "free_text"
	case TypeWSPRDecode:
		return "wspr_decode"
	case TypeLoggedADIF:
		return "logged_adif"
	default:
		return fmt.Sprintf("type_%d", uint32(t))
	}
}

var (
	// ErrMalformedPacket is returned for datagrams shorter than a header or
	// carrying an unknown magic number.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrDecodeFieldOverrun is returned when a field extends past the end of
	// the datagram.
	ErrDecodeFieldOverrun = errors.New("decode field overrun")

	// ErrUnexpectedType is returned when a body decoder is handed a packet of
	// another message type.
	ErrUnexpectedType = errors.New("unexpected message type")
)

// FieldOverrunError records which field ran past the buffer.
type FieldOverrunError struct {
	Field     string
	Offset    int
	Need      int
	Remaining int
}

func (e *FieldOverrunError) Error() string {
	return fmt.Sprintf("decode field overrun: %s at offset %d needs %d bytes, %d remaining",
		e.Field, e.Offset, e.Need, e.Remaining)
}

// Is makes errors.Is(err, ErrDecodeFieldOverrun) match.
func (e *FieldOverrunError) Is(target error) bool {
	return target == ErrDecodeFieldOverrun
}

// Header is the fixed 12 byte prefix of every message.
type Header struct {
	Magic  uint32
	Schema uint32
	Type   MessageType
}

// Vendor returns the name of the software family that uses the header's magic.
func (h Header) Vendor() string {
	return VendorName(h.Magic)
}

// VendorName maps a magic number to a software family name.
func VendorName(magic uint32) string {
	switch magic {
	case MagicWSJTX:
		return "WSJT-X"
	case MagicJTDX:
		return "JTDX"
	case MagicMSHV:
		return "MSHV"
	default:
		return "unknown"
	}
}

// KnownMagic reports whether magic belongs to one of the supported vendors.
func KnownMagic(magic uint32) bool {
	switch magic {
	case MagicWSJTX, MagicJTDX, MagicMSHV:
		return true
	}
	return false
}

// DecodeHeader validates and returns the header of a datagram.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedPacket, len(b), HeaderSize)
	}
	h := Header{
		Magic:  binary.BigEndian.Uint32(b[0:4]),
		Schema: binary.BigEndian.Uint32(b[4:8]),
		Type:   MessageType(binary.BigEndian.Uint32(b[8:12])),
	}
	if !KnownMagic(h.Magic) {
		return Header{}, fmt.Errorf("%w: unknown magic 0x%08x", ErrMalformedPacket, h.Magic)
	}
	return h, nil
}

// Decoder decodes message bodies. The defaults stand in for empty id and mode
// strings, which some JTDX builds send before a configuration is loaded.
type Decoder struct {
	DefaultID   string
	DefaultMode string
}

// NewDecoder returns a decoder with the given fallbacks.
func NewDecoder(defaultID, defaultMode string) *Decoder {
	if defaultID == "" {
		defaultID = "WSJT-X"
	}
	if defaultMode == "" {
		defaultMode = "FT8"
	}
	return &Decoder{DefaultID: defaultID, DefaultMode: defaultMode}
}

// body validates the header type and returns a reader positioned after the
// client id, together with the id.
func (d *Decoder) body(b []byte, want MessageType) (Header, *reader, string, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return h, nil, "", err
	}
	if h.Type != want {
		return h, nil, "", fmt.Errorf("%w: got %s, want %s", ErrUnexpectedType, h.Type, want)
	}
	r := newReader(b, HeaderSize)
	id, err := r.str("id")
	if err != nil {
		return h, nil, "", err
	}
	if id == "" {
		id = d.DefaultID
	}
	return h, r, id, nil
}
