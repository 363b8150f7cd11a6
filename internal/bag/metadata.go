package bag

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MetadataFile is the name of the bag description inside a bag directory.
const MetadataFile = "metadata.yaml"

// StorageSQLite3 is the only storage plugin this package reads.
const StorageSQLite3 = "sqlite3"

// Metadata is the top level of metadata.yaml.
type Metadata struct {
	Info BagInfo `yaml:"rosbag2_bagfile_information"`
}

// BagInfo describes a recorded bag.
type BagInfo struct {
	Version           int                     `yaml:"version"`
	StorageIdentifier string                  `yaml:"storage_identifier"`
	Duration          Nanoseconds             `yaml:"duration"`
	StartingTime      NanosecondsSinceEpoch   `yaml:"starting_time"`
	MessageCount      int64                   `yaml:"message_count"`
	Topics            []TopicWithMessageCount `yaml:"topics_with_message_count"`
	CompressionFormat string                  `yaml:"compression_format"`
	CompressionMode   string                  `yaml:"compression_mode"`
	RelativeFilePaths []string                `yaml:"relative_file_paths"`
}

type Nanoseconds struct {
	Nanoseconds int64 `yaml:"nanoseconds"`
}

type NanosecondsSinceEpoch struct {
	NanosecondsSinceEpoch int64 `yaml:"nanoseconds_since_epoch"`
}

type TopicWithMessageCount struct {
	Topic        Topic `yaml:"topic_metadata"`
	MessageCount int64 `yaml:"message_count"`
}

// ReadMetadata parses dir/metadata.yaml.
func ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, err
	}
	var md Metadata
	if err := yaml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", MetadataFile, err)
	}
	return &md, nil
}

// WriteMetadata writes md to dir/metadata.yaml.
func WriteMetadata(dir string, md *Metadata) error {
	data, err := yaml.Marshal(md)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", MetadataFile, err)
	}
	return os.WriteFile(filepath.Join(dir, MetadataFile), data, 0644)
}
