package bag

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/banshee-data/swarm.tools/internal/rosmsg"
)

// chunkThreshold is the uncompressed size at which a chunk is flushed.
const chunkThreshold = 768 * 1024

type ros1Conn struct {
	id    uint32
	topic string
	typ   string
	md5   string
	def   string
}

type indexEntry struct {
	time   int64
	offset uint32
}

type chunkInfo struct {
	pos        uint64
	start, end int64
	counts     map[uint32]uint32
}

// ROS1Writer records a ROS 1 .bag file with uncompressed chunks. Messages
// are buffered per chunk; Close writes the index and patches the bag
// header.
type ROS1Writer struct {
	path string
	f    *os.File
	off  int64

	conns   map[string]*ros1Conn
	byID    []*ros1Conn
	chunk   []byte
	index   map[uint32][]indexEntry
	current *chunkInfo
	chunks  []chunkInfo

	count int64
}

// CreateROS1 starts a new .bag file at path, replacing any existing file.
func CreateROS1(path string) (*ROS1Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create bag: %w", err)
	}
	w := &ROS1Writer{
		path:  path,
		f:     f,
		conns: make(map[string]*ros1Conn),
		index: make(map[uint32][]indexEntry),
	}
	if err := w.write([]byte(ros1Magic)); err != nil {
		f.Close()
		return nil, err
	}
	if err := w.write(bagHeaderRecord(0, 0, 0)); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Path returns the .bag file path.
func (w *ROS1Writer) Path() string {
	return w.path
}

func (w *ROS1Writer) write(b []byte) error {
	n, err := w.f.Write(b)
	w.off += int64(n)
	return err
}

func bagHeaderRecord(indexPos uint64, connCount, chunkCount uint32) []byte {
	var hdr []byte
	hdr = appendField(hdr, "op", []byte{opBagHeader})
	hdr = appendUint64Field(hdr, "index_pos", indexPos)
	hdr = appendUint32Field(hdr, "conn_count", connCount)
	hdr = appendUint32Field(hdr, "chunk_count", chunkCount)

	pad := make([]byte, bagHeaderLen-8-len(hdr))
	for i := range pad {
		pad[i] = ' '
	}
	return appendRecord(nil, hdr, pad)
}

func (c *ros1Conn) record() []byte {
	var hdr []byte
	hdr = appendField(hdr, "op", []byte{opConnection})
	hdr = appendStringField(hdr, "topic", c.topic)
	hdr = appendUint32Field(hdr, "conn", c.id)

	var data []byte
	data = appendStringField(data, "topic", c.topic)
	data = appendStringField(data, "type", c.typ)
	data = appendStringField(data, "md5sum", c.md5)
	data = appendStringField(data, "message_definition", c.def)
	return appendRecord(nil, hdr, data)
}

// Write appends one ROS 1 serialized message. The topic's connection is
// registered with typeName on first use; later writes must use the same
// type.
func (w *ROS1Writer) Write(topic, typeName string, logTime time.Time, data []byte) error {
	if w.f == nil {
		return errors.New("bag writer is closed")
	}
	c, ok := w.conns[topic]
	if !ok {
		md5, err := rosmsg.MD5Sum(typeName)
		if err != nil {
			return fmt.Errorf("topic %s: %w", topic, err)
		}
		def, err := rosmsg.FullDefinition(typeName)
		if err != nil {
			return fmt.Errorf("topic %s: %w", topic, err)
		}
		c = &ros1Conn{id: uint32(len(w.byID)), topic: topic, typ: typeName, md5: md5, def: def}
		w.conns[topic] = c
		w.byID = append(w.byID, c)
		w.chunk = append(w.chunk, c.record()...)
	} else if c.typ != typeName {
		return fmt.Errorf("topic %s has type %s, got %s", topic, c.typ, typeName)
	}

	ts := logTime.UnixNano()
	if w.current == nil {
		w.current = &chunkInfo{start: ts, end: ts, counts: make(map[uint32]uint32)}
	}
	w.current.start = min(w.current.start, ts)
	w.current.end = max(w.current.end, ts)
	w.current.counts[c.id]++
	w.index[c.id] = append(w.index[c.id], indexEntry{time: ts, offset: uint32(len(w.chunk))})

	var hdr []byte
	hdr = appendField(hdr, "op", []byte{opMessageData})
	hdr = appendUint32Field(hdr, "conn", c.id)
	hdr = appendTimeField(hdr, "time", ts)
	w.chunk = appendRecord(w.chunk, hdr, data)
	w.count++

	if len(w.chunk) >= chunkThreshold {
		return w.flushChunk()
	}
	return nil
}

// flushChunk writes the buffered chunk and its per-connection index.
func (w *ROS1Writer) flushChunk() error {
	if w.current == nil {
		return nil
	}
	info := *w.current
	info.pos = uint64(w.off)

	var hdr []byte
	hdr = appendField(hdr, "op", []byte{opChunk})
	hdr = appendStringField(hdr, "compression", "none")
	hdr = appendUint32Field(hdr, "size", uint32(len(w.chunk)))
	out := appendRecord(nil, hdr, w.chunk)

	for _, id := range sortedConns(info.counts) {
		entries := w.index[id]
		var ihdr []byte
		ihdr = appendField(ihdr, "op", []byte{opIndexData})
		ihdr = appendUint32Field(ihdr, "ver", 1)
		ihdr = appendUint32Field(ihdr, "conn", id)
		ihdr = appendUint32Field(ihdr, "count", uint32(len(entries)))
		var data []byte
		for _, e := range entries {
			data = append(data, ros1Time(e.time)...)
			data = binary.LittleEndian.AppendUint32(data, e.offset)
		}
		out = appendRecord(out, ihdr, data)
	}
	if err := w.write(out); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}

	w.chunks = append(w.chunks, info)
	w.chunk = w.chunk[:0]
	w.index = make(map[uint32][]indexEntry)
	w.current = nil
	return nil
}

func sortedConns(counts map[uint32]uint32) []uint32 {
	ids := make([]uint32, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of messages written so far.
func (w *ROS1Writer) Count() int64 {
	return w.count
}

// Close flushes the last chunk, writes the connection and chunk index and
// rewrites the bag header to point at it.
func (w *ROS1Writer) Close() error {
	if w.f == nil {
		return nil
	}
	f := w.f
	err := w.finish()
	w.f = nil
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to finish bag %s: %w", w.path, err)
	}
	return nil
}

func (w *ROS1Writer) finish() error {
	if err := w.flushChunk(); err != nil {
		return err
	}

	indexPos := uint64(w.off)
	var out []byte
	for _, c := range w.byID {
		out = append(out, c.record()...)
	}
	for _, info := range w.chunks {
		var hdr []byte
		hdr = appendField(hdr, "op", []byte{opChunkInfo})
		hdr = appendUint32Field(hdr, "ver", 1)
		hdr = appendUint64Field(hdr, "chunk_pos", info.pos)
		hdr = appendTimeField(hdr, "start_time", info.start)
		hdr = appendTimeField(hdr, "end_time", info.end)
		hdr = appendUint32Field(hdr, "count", uint32(len(info.counts)))
		var data []byte
		for _, id := range sortedConns(info.counts) {
			data = binary.LittleEndian.AppendUint32(data, id)
			data = binary.LittleEndian.AppendUint32(data, info.counts[id])
		}
		out = appendRecord(out, hdr, data)
	}
	if err := w.write(out); err != nil {
		return err
	}

	header := bagHeaderRecord(indexPos, uint32(len(w.byID)), uint32(len(w.chunks)))
	_, err := w.f.WriteAt(header, int64(len(ros1Magic)))
	return err
}
