// Package rosmsg decodes and encodes the messages found in swarm flight logs.
//
// ROS 2 logs store messages as plain CDR: a 4-byte encapsulation header
// selecting the byte order, followed by the fields in declaration order, each
// primitive aligned to its own size relative to the end of the header.
//
// ROS 1 logs use the ROS 1 wire format: little-endian fields in declaration
// order with no header, no alignment and strings without a NUL terminator.
// Headers additionally carry a sequence number.
package rosmsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrShortBuffer is returned when a message ends before all fields are read.
	ErrShortBuffer = errors.New("cdr: buffer too short")
	// ErrUnsupportedEncoding is returned for encapsulations other than plain CDR.
	ErrUnsupportedEncoding = errors.New("cdr: unsupported encapsulation")
)

const headerLen = 4

// Encapsulation identifiers (second byte of the header).
const (
	encCDRBigEndian    = 0x00
	encCDRLittleEndian = 0x01
)

// Encoding selects the wire format of a serialized message.
type Encoding int

const (
	// CDR is the ROS 2 format.
	CDR Encoding = iota
	// ROS1 is the ROS 1 format.
	ROS1
)

func (e Encoding) String() string {
	if e == ROS1 {
		return "ros1"
	}
	return "cdr"
}

// Decoder reads fields from a serialized message. The first failure is
// sticky: later reads return zero values and Err reports the failure.
type Decoder struct {
	buf   []byte
	off   int
	order binary.ByteOrder
	ros1  bool
	err   error
}

// NewDecoder validates the encapsulation header of data.
func NewDecoder(data []byte) (*Decoder, error) {
	if len(data) < headerLen {
		return nil, ErrShortBuffer
	}
	d := &Decoder{buf: data[headerLen:]}
	switch {
	case data[0] == 0 && data[1] == encCDRLittleEndian:
		d.order = binary.LittleEndian
	case data[0] == 0 && data[1] == encCDRBigEndian:
		d.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w 0x%02x%02x", ErrUnsupportedEncoding, data[0], data[1])
	}
	return d, nil
}

// NewROS1Decoder reads a ROS 1 serialized message.
func NewROS1Decoder(data []byte) *Decoder {
	return &Decoder{buf: data, order: binary.LittleEndian, ros1: true}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error {
	return d.err
}

// Remaining returns the number of unread payload bytes.
func (d *Decoder) Remaining() int {
	if d.off >= len(d.buf) {
		return 0
	}
	return len(d.buf) - d.off
}

func (d *Decoder) take(size, align int) []byte {
	if d.err != nil {
		return nil
	}
	if d.ros1 {
		align = 1
	}
	if r := d.off % align; r != 0 {
		d.off += align - r
	}
	if d.off+size > len(d.buf) {
		d.err = ErrShortBuffer
		return nil
	}
	b := d.buf[d.off : d.off+size]
	d.off += size
	return b
}

func (d *Decoder) Uint32() uint32 {
	b := d.take(4, 4)
	if b == nil {
		return 0
	}
	return d.order.Uint32(b)
}

func (d *Decoder) Int32() int32 {
	return int32(d.Uint32())
}

func (d *Decoder) Float32() float32 {
	return math.Float32frombits(d.Uint32())
}

func (d *Decoder) Float64() float64 {
	b := d.take(8, 8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(d.order.Uint64(b))
}

// String reads a length-prefixed string and drops a CDR NUL terminator.
func (d *Decoder) String() string {
	n := d.Uint32()
	if n == 0 {
		return ""
	}
	b := d.take(int(n), 1)
	if b == nil {
		return ""
	}
	if !d.ros1 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

// SequenceLen reads a sequence element count. Counts that could not possibly
// fit in the remaining bytes fail early instead of allocating.
func (d *Decoder) SequenceLen(minElemSize int) int {
	n := d.Uint32()
	if d.err != nil {
		return 0
	}
	if minElemSize > 0 && int(n) > d.Remaining()/minElemSize {
		d.err = ErrShortBuffer
		return 0
	}
	return int(n)
}

// Encoder writes message fields. The zero value is not usable; call
// NewEncoder or NewROS1Encoder.
type Encoder struct {
	buf   []byte
	order binary.ByteOrder
	ros1  bool
}

// NewEncoder starts a message with a little-endian CDR header.
func NewEncoder() *Encoder {
	return &Encoder{
		buf:   []byte{0x00, encCDRLittleEndian, 0x00, 0x00},
		order: binary.LittleEndian,
	}
}

// NewBigEndianEncoder starts a message with a big-endian CDR header.
func NewBigEndianEncoder() *Encoder {
	return &Encoder{
		buf:   []byte{0x00, encCDRBigEndian, 0x00, 0x00},
		order: binary.BigEndian,
	}
}

// NewROS1Encoder starts a ROS 1 serialized message.
func NewROS1Encoder() *Encoder {
	return &Encoder{order: binary.LittleEndian, ros1: true}
}

// Bytes returns the serialized message.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) pad(align int) {
	if e.ros1 {
		return
	}
	for (len(e.buf)-headerLen)%align != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) Uint32(v uint32) {
	e.pad(4)
	e.buf = e.order.AppendUint32(e.buf, v)
}

func (e *Encoder) Int32(v int32) {
	e.Uint32(uint32(v))
}

func (e *Encoder) Float32(v float32) {
	e.Uint32(math.Float32bits(v))
}

func (e *Encoder) Float64(v float64) {
	e.pad(8)
	e.buf = e.order.AppendUint64(e.buf, math.Float64bits(v))
}

// String writes s with a length prefix, NUL terminated in CDR.
func (e *Encoder) String(s string) {
	if e.ros1 {
		e.Uint32(uint32(len(s)))
		e.buf = append(e.buf, s...)
		return
	}
	e.Uint32(uint32(len(s) + 1))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
}

func (e *Encoder) SequenceLen(n int) {
	e.Uint32(uint32(n))
}
