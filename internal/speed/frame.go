// Package speed implements the Speed Daemon protocol: a stateful,
// framed-binary TCP dispatch system that ingests plate observations from
// roadside cameras, computes average speeds between observations on the
// same road, decides ticket issuance under a one-ticket-per-UTC-day
// rule, and routes tickets to connected dispatchers.
package speed

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MsgType identifies one of the seven Speed Daemon message types.
type MsgType byte

// Message type codes, per the wire table.
const (
	TypeError         MsgType = 0x10
	TypePlate         MsgType = 0x20
	TypeTicket        MsgType = 0x21
	TypeWantHeartbeat MsgType = 0x40
	TypeHeartbeat     MsgType = 0x41
	TypeIAmCamera     MsgType = 0x80
	TypeIAmDispatcher MsgType = 0x81
)

// ErrUnknownType is returned by Decoder.ReadClientMessage when the
// leading type byte doesn't match any known client-to-server message.
var ErrUnknownType = errors.New("speed: unknown message type")

// Plate is a C->S sighting report.
type Plate struct {
	Plate     string
	Timestamp uint32
}

// WantHeartbeat is a C->S request for periodic heartbeats.
type WantHeartbeat struct {
	Deciseconds uint32
}

// IAmCamera is a C->S role declaration.
type IAmCamera struct {
	Road  uint16
	Mile  uint16
	Limit uint16
}

// IAmDispatcher is a C->S role declaration.
type IAmDispatcher struct {
	Roads []uint16
}

// Ticket is an S->C speeding-violation notice.
type Ticket struct {
	Plate           string
	Road            uint16
	Mile1           uint16
	Timestamp1      uint32
	Mile2           uint16
	Timestamp2      uint32
	SpeedHundredths uint16
}

// Decoder reads the client-to-server message set off a byte stream. It
// wraps a bufio.Reader and relies on io.ReadFull's blocking semantics to
// absorb messages arriving split across TCP reads: a short read simply
// blocks for more data rather than surfacing a transient error.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// ReadClientMessage reads and decodes exactly one client-to-server
// message, blocking until a full message is available. The returned
// value is one of Plate, WantHeartbeat, IAmCamera, or IAmDispatcher. Any
// I/O error (including io.EOF on a clean disconnect) is returned as-is;
// an unknown type byte returns an error wrapping ErrUnknownType.
func (d *Decoder) ReadClientMessage() (interface{}, error) {
	typByte, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch MsgType(typByte) {
	case TypePlate:
		plate, err := d.readString()
		if err != nil {
			return nil, err
		}
		ts, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return Plate{Plate: plate, Timestamp: ts}, nil

	case TypeWantHeartbeat:
		ds, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return WantHeartbeat{Deciseconds: ds}, nil

	case TypeIAmCamera:
		road, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		mile, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		limit, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		return IAmCamera{Road: road, Mile: mile, Limit: limit}, nil

	case TypeIAmDispatcher:
		n, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		roads := make([]uint16, n)
		for i := range roads {
			roads[i], err = d.readUint16()
			if err != nil {
				return nil, err
			}
		}
		return IAmDispatcher{Roads: roads}, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, typByte)
	}
}

func (d *Decoder) readString() (string, error) {
	n, err := d.r.ReadByte()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (d *Decoder) readUint16() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (d *Decoder) readUint32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// EncodeError serializes an S->C Error message.
func EncodeError(message string) []byte {
	out := make([]byte, 0, 2+len(message))
	out = append(out, byte(TypeError))
	out = appendString(out, message)
	return out
}

// EncodeHeartbeat serializes an S->C Heartbeat message.
func EncodeHeartbeat() []byte {
	return []byte{byte(TypeHeartbeat)}
}

// EncodeTicket serializes an S->C Ticket message.
func EncodeTicket(t Ticket) []byte {
	out := make([]byte, 0, 2+len(t.Plate)+2+2+4+2+4+2)
	out = append(out, byte(TypeTicket))
	out = appendString(out, t.Plate)
	out = appendUint16(out, t.Road)
	out = appendUint16(out, t.Mile1)
	out = appendUint32(out, t.Timestamp1)
	out = appendUint16(out, t.Mile2)
	out = appendUint32(out, t.Timestamp2)
	out = appendUint16(out, t.SpeedHundredths)
	return out
}

func appendString(out []byte, s string) []byte {
	out = append(out, byte(len(s)))
	return append(out, s...)
}

func appendUint16(out []byte, v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return append(out, buf[:]...)
}

func appendUint32(out []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(out, buf[:]...)
}
