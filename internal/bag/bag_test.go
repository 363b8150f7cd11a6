package bag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSample(t *testing.T, dir string) {
	t.Helper()
	w, err := Create(dir)
	require.NoError(t, err)

	base := time.Unix(100, 0)
	require.NoError(t, w.Write("/tf", "tf2_msgs/msg/TFMessage", base.Add(2*time.Second), []byte{2}))
	require.NoError(t, w.Write("/cf1/cmd_position", "crazyflie_interfaces/msg/Position", base, []byte{0}))
	require.NoError(t, w.Write("/tf", "tf2_msgs/msg/TFMessage", base.Add(time.Second), []byte{1}))
	// same timestamp keeps insertion order
	require.NoError(t, w.Write("/cf1/cmd_position", "crazyflie_interfaces/msg/Position", base.Add(time.Second), []byte{11}))
	assert.Equal(t, int64(4), w.Count())
	require.NoError(t, w.Close())
}

func readAll(t *testing.T, r Log) []Message {
	t.Helper()
	var msgs []Message
	require.NoError(t, r.ReadMessages(context.Background(), func(m Message) error {
		msgs = append(msgs, m)
		return nil
	}))
	return msgs
}

func TestWriteRead_Directory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "flight")
	writeSample(t, dir)

	r, err := OpenSQLite(dir)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{filepath.Join(dir, "flight_0.db3")}, r.Files())

	msgs := readAll(t, r)
	require.Len(t, msgs, 4)
	var payloads []byte
	for _, m := range msgs {
		payloads = append(payloads, m.Data[0])
		assert.Equal(t, SerializationCDR, m.Format)
	}
	assert.Equal(t, []byte{0, 1, 11, 2}, payloads)
	assert.Equal(t, "/cf1/cmd_position", msgs[0].Topic)
	assert.Equal(t, "crazyflie_interfaces/msg/Position", msgs[0].Type)
	assert.Equal(t, time.Unix(100, 0).UnixNano(), msgs[0].LogTime)

	topics, err := r.Topics(context.Background())
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "/cf1/cmd_position", topics[0].Name)
	assert.Equal(t, "/tf", topics[1].Name)
}

func TestWriter_Metadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "flight")
	writeSample(t, dir)

	md, err := ReadMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, StorageSQLite3, md.Info.StorageIdentifier)
	assert.Equal(t, int64(4), md.Info.MessageCount)
	assert.Equal(t, int64(2*time.Second), md.Info.Duration.Nanoseconds)
	assert.Equal(t, time.Unix(100, 0).UnixNano(), md.Info.StartingTime.NanosecondsSinceEpoch)
	assert.Equal(t, []string{"flight_0.db3"}, md.Info.RelativeFilePaths)
	require.Len(t, md.Info.Topics, 2)
	assert.Equal(t, int64(2), md.Info.Topics[1].MessageCount)
}

func TestOpen_SingleFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "flight")
	writeSample(t, dir)

	r, err := Open(filepath.Join(dir, "flight_0.db3"))
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, readAll(t, r), 4)
}

func TestOpen_DirectoryWithoutMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "flight")
	writeSample(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, MetadataFile)))

	r, err := Open(dir)
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, readAll(t, r), 4)
}

func TestOpen_Errors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope.db3"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("mcap storage", func(t *testing.T) {
		dir := t.TempDir()
		md := &Metadata{Info: BagInfo{StorageIdentifier: "mcap", RelativeFilePaths: []string{"x.mcap"}}}
		require.NoError(t, WriteMetadata(dir, md))
		_, err := Open(dir)
		assert.ErrorIs(t, err, ErrUnsupportedStorage)
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := Open(t.TempDir())
		assert.Error(t, err)
	})
}

func TestCreate_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(dir)
	assert.Error(t, err, "existing directory must be rejected")

	w, err := Create(filepath.Join(dir, "b"))
	require.NoError(t, err)
	require.NoError(t, w.Write("/tf", "a/msg/A", time.Unix(1, 0), []byte{0}))
	assert.Error(t, w.Write("/tf", "b/msg/B", time.Unix(2, 0), []byte{0}), "type change on a topic")
	require.NoError(t, w.Close())
	assert.Error(t, w.Write("/tf", "a/msg/A", time.Unix(3, 0), []byte{0}), "write after close")
}

func TestReadMessages_StopsOnCallbackError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "flight")
	writeSample(t, dir)

	r, err := Open(dir)
	require.NoError(t, err)
	defer r.Close()

	stop := errors.New("stop")
	calls := 0
	err = r.ReadMessages(context.Background(), func(Message) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
