package bag

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/banshee-data/swarm.tools/internal/rosmsg"
)

// SerializationCDR is the serialization format of rosbag2 topics we write.
const SerializationCDR = "cdr"

// Format selects the kind of log CreateLog records.
type Format string

const (
	// FormatROS1 is a single ROS 1 .bag file.
	FormatROS1 Format = "ros1"
	// FormatRosbag2 is a rosbag2 directory with one sqlite3 split file.
	FormatRosbag2 Format = "rosbag2"
)

// ParseFormat accepts "ros1" or "rosbag2".
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatROS1, FormatRosbag2:
		return f, nil
	}
	return "", fmt.Errorf("unknown log format %q: want %s or %s", s, FormatROS1, FormatRosbag2)
}

// Encoding returns the message serialization the format stores.
func (f Format) Encoding() rosmsg.Encoding {
	if f == FormatROS1 {
		return rosmsg.ROS1
	}
	return rosmsg.CDR
}

// LogWriter is a flight log open for recording.
type LogWriter interface {
	Write(topic, typeName string, logTime time.Time, data []byte) error
	Count() int64
	Close() error
}

// CreateLog starts a new log at path in format f: a .bag file for ROS 1, a
// bag directory for rosbag2.
func CreateLog(path string, f Format) (LogWriter, error) {
	switch f {
	case FormatROS1:
		return CreateROS1(path)
	case FormatRosbag2:
		return Create(path)
	}
	return nil, fmt.Errorf("unknown log format %q", f)
}

const storageSchema = `
	CREATE TABLE topics (
		id                   INTEGER PRIMARY KEY,
		name                 TEXT NOT NULL,
		type                 TEXT NOT NULL,
		serialization_format TEXT NOT NULL,
		offered_qos_profiles TEXT NOT NULL
	);
	CREATE TABLE messages (
		id        INTEGER PRIMARY KEY,
		topic_id  INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		data      BLOB NOT NULL
	);
	CREATE INDEX timestamp_idx ON messages (timestamp ASC);
`

type topicState struct {
	id    int64
	topic Topic
	count int64
}

// Writer records a bag directory with a single sqlite3 split file. All
// writes go through one transaction that is committed by Close.
type Writer struct {
	dir    string
	file   string
	db     *sql.DB
	tx     *sql.Tx
	insert *sql.Stmt
	topics map[string]*topicState

	count int64
	first int64
	last  int64
}

// Create starts a new rosbag2 bag in dir, which must not exist yet.
func Create(dir string) (*Writer, error) {
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("bag directory %s already exists", dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bag directory: %w", err)
	}

	file := filepath.Base(filepath.Clean(dir)) + "_0.db3"
	db, err := sql.Open("sqlite", filepath.Join(dir, file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(storageSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bag schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, err
	}
	insert, err := tx.Prepare(`INSERT INTO messages (topic_id, timestamp, data) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		db.Close()
		return nil, err
	}

	return &Writer{
		dir:    dir,
		file:   file,
		db:     db,
		tx:     tx,
		insert: insert,
		topics: make(map[string]*topicState),
	}, nil
}

// Dir returns the bag directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write appends one CDR-serialized message. The topic is registered with
// typeName on first use; later writes must use the same type.
func (w *Writer) Write(topic, typeName string, logTime time.Time, data []byte) error {
	if w.tx == nil {
		return errors.New("bag writer is closed")
	}
	st, ok := w.topics[topic]
	if !ok {
		t := Topic{Name: topic, Type: typeName, SerializationFormat: SerializationCDR}
		res, err := w.tx.Exec(
			`INSERT INTO topics (name, type, serialization_format, offered_qos_profiles) VALUES (?, ?, ?, ?)`,
			t.Name, t.Type, t.SerializationFormat, t.OfferedQoSProfiles,
		)
		if err != nil {
			return fmt.Errorf("failed to register topic %s: %w", topic, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		st = &topicState{id: id, topic: t}
		w.topics[topic] = st
	} else if st.topic.Type != typeName {
		return fmt.Errorf("topic %s has type %s, got %s", topic, st.topic.Type, typeName)
	}

	ts := logTime.UnixNano()
	if _, err := w.insert.Exec(st.id, ts, data); err != nil {
		return fmt.Errorf("failed to write message on %s: %w", topic, err)
	}
	st.count++
	if w.count == 0 || ts < w.first {
		w.first = ts
	}
	if ts > w.last {
		w.last = ts
	}
	w.count++
	return nil
}

// Count returns the number of messages written so far.
func (w *Writer) Count() int64 {
	return w.count
}

// Close commits the messages and writes metadata.yaml.
func (w *Writer) Close() error {
	if w.tx == nil {
		return nil
	}
	w.insert.Close()
	err := w.tx.Commit()
	w.tx = nil
	if cerr := w.db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to commit bag: %w", err)
	}
	return WriteMetadata(w.dir, w.metadata())
}

func (w *Writer) metadata() *Metadata {
	names := make([]string, 0, len(w.topics))
	for name := range w.topics {
		names = append(names, name)
	}
	sort.Strings(names)

	topics := make([]TopicWithMessageCount, 0, len(names))
	for _, name := range names {
		st := w.topics[name]
		topics = append(topics, TopicWithMessageCount{Topic: st.topic, MessageCount: st.count})
	}

	var duration int64
	if w.count > 0 {
		duration = w.last - w.first
	}
	return &Metadata{Info: BagInfo{
		Version:           5,
		StorageIdentifier: StorageSQLite3,
		Duration:          Nanoseconds{Nanoseconds: duration},
		StartingTime:      NanosecondsSinceEpoch{NanosecondsSinceEpoch: w.first},
		MessageCount:      w.count,
		Topics:            topics,
		RelativeFilePaths: []string{w.file},
	}}
}
