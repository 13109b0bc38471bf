// Package lrcp implements the Line-Reversal Control Protocol: a
// reliability layer over unordered, unreliable UDP datagrams providing
// ordered, acknowledged, retransmitted byte streams per session, carrying
// a line-reversal application.
package lrcp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxDatagram is the hard ceiling on both inbound and outbound LRCP
// datagrams. Anything larger is dropped on receipt and must never be
// produced on send.
const MaxDatagram = 1000

// MaxPayload is the largest number of unescaped payload bytes senders
// put in one outbound Data frame. A chunk whose escaped form would not
// fit in MaxDatagram alongside its framing is cut shorter still.
const MaxPayload = 800

// MaxField is the largest value SID, POS, and LENGTH may take, per the
// wire grammar ([0, 2^31]).
const MaxField = 1 << 31

// Kind identifies the four LRCP frame types.
type Kind int

// Frame kinds.
const (
	Connect Kind = iota
	Data
	Ack
	Close
)

func (k Kind) String() string {
	switch k {
	case Connect:
		return "connect"
	case Data:
		return "data"
	case Ack:
		return "ack"
	case Close:
		return "close"
	default:
		return "unknown"
	}
}

// Frame carries one of the four LRCP frame kinds, tagged by Kind. It is
// a single struct: Pos and Data are meaningful only for the kinds noted
// on each field, and the type system does not stop them being set on
// other kinds.
type Frame struct {
	Kind Kind
	SID  uint32
	Pos  uint32 // valid for Data and Ack
	Data []byte // valid for Data, already unescaped
}

// Decode-time errors. A caller that gets any of these should silently
// drop the datagram, per spec: malformed frames are never acknowledged
// or otherwise responded to.
var (
	ErrTooLarge       = errors.New("lrcp: datagram exceeds MaxDatagram")
	ErrBadDelimiters  = errors.New("lrcp: frame must start and end with '/'")
	ErrUnknownType    = errors.New("lrcp: unknown frame type")
	ErrFieldCount     = errors.New("lrcp: wrong number of fields for frame type")
	ErrBadInteger     = errors.New("lrcp: field is not a valid decimal integer in range")
	ErrBadEscape      = errors.New("lrcp: invalid escape sequence in payload")
	ErrUnescapedSlash = errors.New("lrcp: unescaped '/' in payload")
)

// Decode parses a single inbound datagram into a Frame. Any error is a
// reason to drop the datagram, never to respond.
func Decode(raw []byte) (Frame, error) {
	if len(raw) == 0 || len(raw) > MaxDatagram {
		return Frame{}, ErrTooLarge
	}
	if len(raw) < 2 || raw[0] != '/' || raw[len(raw)-1] != '/' {
		return Frame{}, ErrBadDelimiters
	}
	body := raw[1 : len(raw)-1]

	tokens, err := splitUnescaped(body)
	if err != nil {
		return Frame{}, err
	}
	if len(tokens) == 0 {
		return Frame{}, ErrUnknownType
	}

	switch string(tokens[0]) {
	case "connect":
		if len(tokens) != 2 {
			return Frame{}, ErrFieldCount
		}
		sid, err := parseField(tokens[1])
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: Connect, SID: sid}, nil

	case "close":
		if len(tokens) != 2 {
			return Frame{}, ErrFieldCount
		}
		sid, err := parseField(tokens[1])
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: Close, SID: sid}, nil

	case "ack":
		if len(tokens) != 3 {
			return Frame{}, ErrFieldCount
		}
		sid, err := parseField(tokens[1])
		if err != nil {
			return Frame{}, err
		}
		length, err := parseField(tokens[2])
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: Ack, SID: sid, Pos: length}, nil

	case "data":
		if len(tokens) != 4 {
			// Either a missing field, or an unescaped '/' inside the
			// payload produced extra tokens.
			if len(tokens) > 4 {
				return Frame{}, ErrUnescapedSlash
			}
			return Frame{}, ErrFieldCount
		}
		sid, err := parseField(tokens[1])
		if err != nil {
			return Frame{}, err
		}
		pos, err := parseField(tokens[2])
		if err != nil {
			return Frame{}, err
		}
		payload, err := unescape(tokens[3])
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: Data, SID: sid, Pos: pos, Data: payload}, nil

	default:
		return Frame{}, ErrUnknownType
	}
}

// Encode serializes f into a wire datagram. It panics if the result
// would exceed MaxDatagram: every caller is expected to chunk payloads
// to MaxPayload before building a Data frame, so this indicates a
// programming error, not a runtime condition callers should handle.
func Encode(f Frame) []byte {
	var b strings.Builder
	b.WriteByte('/')
	switch f.Kind {
	case Connect:
		b.WriteString("connect/")
		b.WriteString(strconv.FormatUint(uint64(f.SID), 10))
		b.WriteByte('/')
	case Close:
		b.WriteString("close/")
		b.WriteString(strconv.FormatUint(uint64(f.SID), 10))
		b.WriteByte('/')
	case Ack:
		b.WriteString("ack/")
		b.WriteString(strconv.FormatUint(uint64(f.SID), 10))
		b.WriteByte('/')
		b.WriteString(strconv.FormatUint(uint64(f.Pos), 10))
		b.WriteByte('/')
	case Data:
		b.WriteString("data/")
		b.WriteString(strconv.FormatUint(uint64(f.SID), 10))
		b.WriteByte('/')
		b.WriteString(strconv.FormatUint(uint64(f.Pos), 10))
		b.WriteByte('/')
		b.WriteString(escape(f.Data))
		b.WriteByte('/')
	default:
		panic(fmt.Sprintf("lrcp: Encode: unknown frame kind %v", f.Kind))
	}
	out := []byte(b.String())
	if len(out) > MaxDatagram {
		panic(fmt.Sprintf("lrcp: Encode: frame of %d bytes exceeds MaxDatagram %d", len(out), MaxDatagram))
	}
	return out
}

// parseField parses a decimal integer field and validates it falls in
// [0, MaxField].
func parseField(tok []byte) (uint32, error) {
	if len(tok) == 0 {
		return 0, ErrBadInteger
	}
	for _, c := range tok {
		if c < '0' || c > '9' {
			return 0, ErrBadInteger
		}
	}
	v, err := strconv.ParseUint(string(tok), 10, 64)
	if err != nil || v > MaxField {
		return 0, ErrBadInteger
	}
	return uint32(v), nil
}

// splitUnescaped splits body on unescaped '/' characters. A backslash
// escapes the following character, whatever it is, for the purposes of
// finding split points; whether that escape sequence is actually valid
// is checked later, when the DATA field (if any) is unescaped.
func splitUnescaped(body []byte) ([][]byte, error) {
	var tokens [][]byte
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\\':
			i++
			if i >= len(body) {
				return nil, ErrBadEscape
			}
		case '/':
			tokens = append(tokens, body[start:i])
			start = i + 1
		}
	}
	tokens = append(tokens, body[start:])
	return tokens, nil
}

// unescape turns \/ into / and \\ into \, rejecting any other escape.
func unescape(tok []byte) ([]byte, error) {
	out := make([]byte, 0, len(tok))
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(tok) {
			return nil, ErrBadEscape
		}
		switch tok[i] {
		case '/', '\\':
			out = append(out, tok[i])
		default:
			return nil, ErrBadEscape
		}
	}
	return out, nil
}

// escape turns / into \/ and \ into \\.
func escape(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		switch c {
		case '/', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
