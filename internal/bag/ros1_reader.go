package bag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/lherman-cs/go-rosbag"
)

// ROS1Reader reads a ROS 1 .bag file.
type ROS1Reader struct {
	path string
}

// OpenROS1 opens a ROS 1 .bag file.
func OpenROS1(path string) (*ROS1Reader, error) {
	ok, err := isROS1(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s is not a ROS 1 bag (want %q)", path, ros1Magic[:len(ros1Magic)-1])
	}
	return &ROS1Reader{path: path}, nil
}

type ros1Connection struct {
	topic string
	typ   string
}

// scan decodes every record of the file and reports connections and
// messages to the callbacks in file order.
func (r *ROS1Reader) scan(ctx context.Context, onConn func(id uint32, c ros1Connection), onMsg func(conn uint32, logTime int64, data []byte) error) error {
	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := rosbag.NewDecoder(f)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", r.path, err)
		}

		switch record := record.(type) {
		case *rosbag.RecordConnection:
			id, c, err := parseConnection(record.Header(), record.Data())
			if err != nil {
				return fmt.Errorf("%s: connection: %w", r.path, err)
			}
			onConn(id, c)
		case *rosbag.RecordMessageData:
			if onMsg == nil {
				continue
			}
			fields, err := parseFields(record.Header())
			if err != nil {
				return fmt.Errorf("%s: message: %w", r.path, err)
			}
			conn, err := fields.uint32("conn")
			if err != nil {
				return fmt.Errorf("%s: message: %w", r.path, err)
			}
			logTime, err := fields.time("time")
			if err != nil {
				return fmt.Errorf("%s: message: %w", r.path, err)
			}
			data := append([]byte(nil), record.Data()...)
			if err := onMsg(conn, logTime, data); err != nil {
				return err
			}
		}
	}
}

// parseConnection reads the connection id from the record header and the
// topic and type from the connection header in the record data.
func parseConnection(header, data []byte) (uint32, ros1Connection, error) {
	fields, err := parseFields(header)
	if err != nil {
		return 0, ros1Connection{}, err
	}
	id, err := fields.uint32("conn")
	if err != nil {
		return 0, ros1Connection{}, err
	}
	topic, err := fields.string("topic")
	if err != nil {
		return 0, ros1Connection{}, err
	}

	connHeader, err := parseFields(data)
	if err != nil {
		return 0, ros1Connection{}, err
	}
	typ, err := connHeader.string("type")
	if err != nil {
		return 0, ros1Connection{}, err
	}
	return id, ros1Connection{topic: topic, typ: typ}, nil
}

// Topics returns the recorded topics sorted by name.
func (r *ROS1Reader) Topics(ctx context.Context) ([]Topic, error) {
	seen := make(map[string]Topic)
	err := r.scan(ctx, func(_ uint32, c ros1Connection) {
		seen[c.topic] = Topic{Name: c.topic, Type: c.typ, SerializationFormat: SerializationROS1}
	}, nil)
	if err != nil {
		return nil, err
	}

	topics := make([]Topic, 0, len(seen))
	for _, t := range seen {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics, nil
}

// ReadMessages calls fn for every message in log order: by receive time,
// ties kept in file order. Iteration stops at the first error from fn,
// which is returned.
func (r *ROS1Reader) ReadMessages(ctx context.Context, fn func(Message) error) error {
	conns := make(map[uint32]ros1Connection)
	var msgs []Message
	err := r.scan(ctx, func(id uint32, c ros1Connection) {
		conns[id] = c
	}, func(conn uint32, logTime int64, data []byte) error {
		c, ok := conns[conn]
		if !ok {
			return fmt.Errorf("%s: %w: message on unknown connection %d", r.path, ErrMalformedRecord, conn)
		}
		msgs = append(msgs, Message{
			Topic:   c.topic,
			Type:    c.typ,
			Format:  SerializationROS1,
			LogTime: logTime,
			Data:    data,
		})
		return nil
	})
	if err != nil {
		return err
	}

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].LogTime < msgs[j].LogTime })
	for _, m := range msgs {
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Log. The file is only open while scanning.
func (r *ROS1Reader) Close() error {
	return nil
}
