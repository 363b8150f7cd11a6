// Package bag reads and writes recorded flight logs: ROS 1 .bag files and
// rosbag2 sqlite3 bags.
//
// A rosbag2 bag is either a single .db3 file or a directory holding
// metadata.yaml and one or more .db3 split files. Each .db3 file has a
// topics table (name, type, serialization format) and a messages table of
// timestamped serialized payloads.
package bag

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

// ErrUnsupportedStorage is returned for bags recorded with a storage plugin
// other than sqlite3 (for example mcap).
var ErrUnsupportedStorage = errors.New("unsupported bag storage")

// Topic describes one recorded topic.
type Topic struct {
	Name                string `yaml:"name"`
	Type                string `yaml:"type"`
	SerializationFormat string `yaml:"serialization_format"`
	OfferedQoSProfiles  string `yaml:"offered_qos_profiles"`
}

// Message is one recorded message. LogTime is the receive time in
// nanoseconds since the epoch.
type Message struct {
	Topic   string
	Type    string
	Format  string
	LogTime int64
	Data    []byte
}

// Log is a recorded flight log open for reading.
type Log interface {
	Topics(ctx context.Context) ([]Topic, error)
	ReadMessages(ctx context.Context, fn func(Message) error) error
	Close() error
}

// Open opens a flight log: a ROS 1 .bag file, or a rosbag2 .db3 file or
// bag directory. Files are told apart by their content, not their name.
func Open(path string) (Log, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		ok, err := isROS1(path)
		if err != nil {
			return nil, err
		}
		if ok {
			return OpenROS1(path)
		}
	}
	return OpenSQLite(path)
}

// Reader reads messages from the split files of a rosbag2 bag in log order.
type Reader struct {
	path  string
	files []string
	dbs   []*sql.DB
}

// OpenSQLite opens a rosbag2 .db3 file or bag directory.
func OpenSQLite(path string) (*Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var files []string
	if info.IsDir() {
		files, err = splitFiles(path)
		if err != nil {
			return nil, err
		}
	} else {
		files = []string{path}
	}

	r := &Reader{path: path, files: files}
	for _, f := range files {
		db, err := openDB(f)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.dbs = append(r.dbs, db)
	}
	return r, nil
}

// splitFiles lists the .db3 files of a bag directory, from metadata.yaml
// when present, otherwise by name.
func splitFiles(dir string) ([]string, error) {
	md, err := ReadMetadata(dir)
	switch {
	case err == nil:
		if md.Info.StorageIdentifier != StorageSQLite3 {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedStorage, md.Info.StorageIdentifier)
		}
		if md.Info.CompressionFormat != "" {
			return nil, fmt.Errorf("%w: %s compression", ErrUnsupportedStorage, md.Info.CompressionFormat)
		}
		files := make([]string, len(md.Info.RelativeFilePaths))
		for i, rel := range md.Info.RelativeFilePaths {
			files[i] = filepath.Join(dir, rel)
		}
		if len(files) > 0 {
			return files, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.db3"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .db3 files in bag directory %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

func openDB(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return db, nil
}

// Files returns the storage files in read order.
func (r *Reader) Files() []string {
	return append([]string(nil), r.files...)
}

// Topics returns the recorded topics sorted by name.
func (r *Reader) Topics(ctx context.Context) ([]Topic, error) {
	seen := make(map[string]Topic)
	for i, db := range r.dbs {
		rows, err := db.QueryContext(ctx, `SELECT name, type, serialization_format FROM topics`)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to list topics: %w", r.files[i], err)
		}
		for rows.Next() {
			var t Topic
			if err := rows.Scan(&t.Name, &t.Type, &t.SerializationFormat); err != nil {
				rows.Close()
				return nil, err
			}
			seen[t.Name] = t
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	topics := make([]Topic, 0, len(seen))
	for _, t := range seen {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics, nil
}

// ReadMessages calls fn for every message in log order: split files in
// order, and within a file by timestamp then insertion order. Iteration stops
// at the first error from fn, which is returned.
func (r *Reader) ReadMessages(ctx context.Context, fn func(Message) error) error {
	for i, db := range r.dbs {
		if err := readFile(ctx, db, fn); err != nil {
			return fmt.Errorf("%s: %w", r.files[i], err)
		}
	}
	return nil
}

func readFile(ctx context.Context, db *sql.DB, fn func(Message) error) error {
	rows, err := db.QueryContext(ctx, `
		SELECT t.name, t.type, t.serialization_format, m.timestamp, m.data
		FROM messages m
		JOIN topics t ON t.id = m.topic_id
		ORDER BY m.timestamp, m.id`)
	if err != nil {
		return fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Topic, &m.Type, &m.Format, &m.LogTime, &m.Data); err != nil {
			return fmt.Errorf("failed to scan message: %w", err)
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close closes every storage file.
func (r *Reader) Close() error {
	var errs []error
	for _, db := range r.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.dbs = nil
	return errors.Join(errs...)
}
