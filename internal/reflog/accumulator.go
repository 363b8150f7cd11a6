package reflog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/swarm.tools/internal/bag"
	"github.com/banshee-data/swarm.tools/internal/monitoring"
	"github.com/banshee-data/swarm.tools/internal/rosmsg"
)

var (
	// ErrEmptyTransforms is returned in strict mode for a pose message
	// without any transform.
	ErrEmptyTransforms = errors.New("pose message has no transforms")
	// ErrBadVehicleID is returned in strict mode for a vehicle id that
	// cannot name a table group, such as an empty child frame.
	ErrBadVehicleID = errors.New("invalid vehicle id")
)

// Policy decides what happens to records that look like ours but cannot be
// used.
type Policy int

const (
	// Lenient skips them, warning once per kind and counting them.
	Lenient Policy = iota
	// Strict fails the conversion.
	Strict
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// Ignored keys for records that are not counted by command kind.
const (
	ignoredEmptyPose = "<empty transforms>"
	ignoredBadID     = "<invalid vehicle id>"
)

// VehicleID normalises a frame or topic segment to a vehicle id: a leading
// slash is dropped, as tf does. ok is false when the result is empty or has
// an empty path segment.
func VehicleID(frame string) (id string, ok bool) {
	id = strings.TrimPrefix(frame, "/")
	if id == "" {
		return "", false
	}
	for _, seg := range strings.Split(id, "/") {
		if seg == "" {
			return "", false
		}
	}
	return id, true
}

// Record is one recorded message. LogTime is the receive time and is only
// used for error messages; samples are stamped from message headers.
type Record struct {
	Topic   string
	Type    string
	LogTime int64
	Data    []byte
}

// Options configure an Accumulator. Zero fields take the defaults of
// DefaultClassifier.
type Options struct {
	Policy     Policy
	Classifier Classifier
}

// Accumulator consumes records in log order and fills a Bucket.
type Accumulator struct {
	policy     Policy
	classifier Classifier
	bucket     *Bucket
	ignored    map[string]int
	records    int
}

func NewAccumulator(opts Options) *Accumulator {
	c := opts.Classifier
	def := DefaultClassifier()
	if c.PoseTopic == "" {
		c.PoseTopic = def.PoseTopic
	}
	if c.VehiclePrefix == "" {
		c.VehiclePrefix = def.VehiclePrefix
	}
	return &Accumulator{
		policy:     opts.Policy,
		classifier: c,
		bucket:     NewBucket(),
		ignored:    make(map[string]int),
	}
}

// Bucket returns the samples accumulated so far.
func (a *Accumulator) Bucket() *Bucket {
	return a.bucket
}

// Records returns how many records were passed to Add.
func (a *Accumulator) Records() int {
	return a.records
}

// Ignored returns how many records of each unusable kind were skipped.
func (a *Accumulator) Ignored() map[string]int {
	out := make(map[string]int, len(a.ignored))
	for k, n := range a.ignored {
		out[k] = n
	}
	return out
}

// Add classifies one record and appends its samples. Topics that are
// neither the pose channel nor a vehicle command topic are skipped without
// decoding.
func (a *Accumulator) Add(r Record) error {
	a.records++
	class, vehicle, kind := a.classifier.Classify(r.Topic)
	switch class {
	case TopicPose:
		return a.addPose(r)
	case TopicCommand:
		return a.addCommand(r, vehicle, kind)
	}
	return nil
}

func (a *Accumulator) addPose(r Record) error {
	m, err := rosmsg.Decode(r.Type, r.Data)
	if err != nil {
		return fmt.Errorf("%s at %d: %w", r.Topic, r.LogTime, err)
	}
	tf, ok := m.(*rosmsg.TFMessage)
	if !ok {
		return fmt.Errorf("%s at %d: pose topic carries %s", r.Topic, r.LogTime, r.Type)
	}
	if len(tf.Transforms) == 0 {
		return a.skip(ignoredEmptyPose, r, ErrEmptyTransforms)
	}

	// only the first transform of a message is used
	first := tf.Transforms[0]
	vehicle, ok := VehicleID(first.ChildFrameID)
	if !ok {
		return a.skip(ignoredBadID, r, fmt.Errorf("%w %q", ErrBadVehicleID, first.ChildFrameID))
	}
	a.bucket.Append(vehicle, SeriesPos, sample(
		first.Header.Stamp.Seconds(),
		first.Transform.Translation.Vec(),
	))
	return nil
}

func (a *Accumulator) addCommand(r Record, vehicle, kind string) error {
	if !KnownCommand(kind) {
		return a.skip(kind, r, fmt.Errorf("%w %q", ErrUnknownCommand, kind))
	}
	vehicle, ok := VehicleID(vehicle)
	if !ok {
		return a.skip(ignoredBadID, r, ErrBadVehicleID)
	}
	m, err := rosmsg.Decode(r.Type, r.Data)
	if err != nil {
		return fmt.Errorf("%s at %d: %w", r.Topic, r.LogTime, err)
	}
	cmd, err := ParseCommand(kind, m)
	if err != nil {
		return fmt.Errorf("%s at %d: %w", r.Topic, r.LogTime, err)
	}
	cmd.apply(a.bucket, vehicle)
	return nil
}

func (a *Accumulator) skip(key string, r Record, strictErr error) error {
	if a.policy == Strict {
		return fmt.Errorf("%s at %d: %w", r.Topic, r.LogTime, strictErr)
	}
	if a.ignored[key] == 0 {
		monitoring.Warnf("reflog: ignoring %s (%s), first seen on %s", key, strictErr, r.Topic)
	}
	a.ignored[key]++
	return nil
}

// LogIgnored reports the skip counts, one line per kind.
func (a *Accumulator) LogIgnored() {
	keys := make([]string, 0, len(a.ignored))
	for k := range a.ignored {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		monitoring.Logf("reflog: ignored %d records of %s", a.ignored[k], k)
	}
}

// MessageReader is the part of bag.Log Convert needs.
type MessageReader interface {
	ReadMessages(ctx context.Context, fn func(bag.Message) error) error
}

// Convert feeds every message of r to acc in log order.
func Convert(ctx context.Context, r MessageReader, acc *Accumulator) error {
	err := r.ReadMessages(ctx, func(m bag.Message) error {
		return acc.Add(Record{Topic: m.Topic, Type: m.Type, LogTime: m.LogTime, Data: m.Data})
	})
	if err != nil {
		return err
	}
	acc.LogIgnored()
	return nil
}
