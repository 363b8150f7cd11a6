package bag

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ROS 1 bag format version 2.0: a magic line followed by records, each a
// length-prefixed header of name=value fields and a length-prefixed data
// section. Message data and connection records live inside chunks; the
// index section after the last chunk repeats the connections and lists the
// chunks.
const ros1Magic = "#ROSBAG V2.0\n"

// SerializationROS1 is the serialization format reported for .bag topics.
const SerializationROS1 = "ros1"

// Record op codes.
const (
	opMessageData = 0x02
	opBagHeader   = 0x03
	opIndexData   = 0x04
	opChunk       = 0x05
	opChunkInfo   = 0x06
	opConnection  = 0x07
)

// bagHeaderLen is the padded size of the bag header record.
const bagHeaderLen = 4096

// ErrMalformedRecord is returned for a .bag record whose header cannot be
// parsed.
var ErrMalformedRecord = errors.New("malformed bag record")

// isROS1 reports whether path starts with the ROS 1 bag magic.
func isROS1(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	magic := make([]byte, len(ros1Magic))
	if _, err := io.ReadFull(f, magic); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return string(magic) == ros1Magic, nil
}

// recordFields holds the name=value fields of a record header or of a
// connection header.
type recordFields map[string][]byte

func parseFields(b []byte) (recordFields, error) {
	fields := make(recordFields)
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, fmt.Errorf("%w: truncated field length", ErrMalformedRecord)
		}
		n := int(binary.LittleEndian.Uint32(b))
		b = b[4:]
		if n > len(b) {
			return nil, fmt.Errorf("%w: field of %d bytes, %d left", ErrMalformedRecord, n, len(b))
		}
		name, value, ok := bytes.Cut(b[:n], []byte("="))
		if !ok {
			return nil, fmt.Errorf("%w: field without '='", ErrMalformedRecord)
		}
		fields[string(name)] = value
		b = b[n:]
	}
	return fields, nil
}

func (f recordFields) string(name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedRecord, name)
	}
	return string(v), nil
}

func (f recordFields) uint32(name string) (uint32, error) {
	v, ok := f[name]
	if !ok || len(v) != 4 {
		return 0, fmt.Errorf("%w: missing or bad %s", ErrMalformedRecord, name)
	}
	return binary.LittleEndian.Uint32(v), nil
}

// time decodes a ROS 1 time field (uint32 seconds, uint32 nanoseconds) to
// nanoseconds since the epoch.
func (f recordFields) time(name string) (int64, error) {
	v, ok := f[name]
	if !ok || len(v) != 8 {
		return 0, fmt.Errorf("%w: missing or bad %s", ErrMalformedRecord, name)
	}
	sec := binary.LittleEndian.Uint32(v[0:4])
	nsec := binary.LittleEndian.Uint32(v[4:8])
	return int64(sec)*int64(time.Second) + int64(nsec), nil
}

func appendField(b []byte, name string, value []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(name)+1+len(value)))
	b = append(b, name...)
	b = append(b, '=')
	return append(b, value...)
}

func appendStringField(b []byte, name, value string) []byte {
	return appendField(b, name, []byte(value))
}

func appendUint32Field(b []byte, name string, v uint32) []byte {
	return appendField(b, name, binary.LittleEndian.AppendUint32(nil, v))
}

func appendUint64Field(b []byte, name string, v uint64) []byte {
	return appendField(b, name, binary.LittleEndian.AppendUint64(nil, v))
}

func appendTimeField(b []byte, name string, ns int64) []byte {
	return appendField(b, name, ros1Time(ns))
}

func ros1Time(ns int64) []byte {
	v := binary.LittleEndian.AppendUint32(nil, uint32(ns/int64(time.Second)))
	return binary.LittleEndian.AppendUint32(v, uint32(ns%int64(time.Second)))
}

func appendRecord(b, header, data []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(header)))
	b = append(b, header...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}
