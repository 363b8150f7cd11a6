// Package reflog extracts measured poses and commanded references from a
// recorded flight log and groups them per vehicle.
//
// Every sample is a (t, a, b, c) tuple. Poses come from the motion capture
// channel (/tf by default); references come from the per-vehicle command
// topics /<vehicle>/<kind>. The result is a Bucket that WriteTables turns
// into one N×4 table per vehicle and series.
package reflog

import (
	"fmt"
	"sort"
)

// Series names one of the per-vehicle time series.
type Series int

const (
	SeriesPos Series = iota
	SeriesPosRef
	SeriesVelRef
	SeriesAccRef
)

var seriesNames = [...]string{
	SeriesPos:    "pos",
	SeriesPosRef: "pos_ref",
	SeriesVelRef: "vel_ref",
	SeriesAccRef: "acc_ref",
}

func (s Series) String() string {
	if s < 0 || int(s) >= len(seriesNames) {
		return fmt.Sprintf("Series(%d)", int(s))
	}
	return seriesNames[s]
}

// ParseSeries maps a table name back to its series.
func ParseSeries(name string) (Series, error) {
	for i, n := range seriesNames {
		if n == name {
			return Series(i), nil
		}
	}
	return 0, fmt.Errorf("unknown series %q", name)
}

// AllSeries lists every series in table order.
func AllSeries() []Series {
	return []Series{SeriesPos, SeriesPosRef, SeriesVelRef, SeriesAccRef}
}

// Sample is one (t, a, b, c) row; t is in seconds.
type Sample [4]float64

// Bucket maps vehicle id to series to samples in arrival order. Entries are
// created on first append and only ever grow.
type Bucket struct {
	vehicles map[string]map[Series][]Sample
}

func NewBucket() *Bucket {
	return &Bucket{vehicles: make(map[string]map[Series][]Sample)}
}

// Append adds s to the series of vehicle.
func (b *Bucket) Append(vehicle string, series Series, s Sample) {
	v, ok := b.vehicles[vehicle]
	if !ok {
		v = make(map[Series][]Sample)
		b.vehicles[vehicle] = v
	}
	v[series] = append(v[series], s)
}

// VehicleIDs returns the vehicles seen, sorted.
func (b *Bucket) VehicleIDs() []string {
	ids := make([]string, 0, len(b.vehicles))
	for id := range b.vehicles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SeriesOf returns the populated series of a vehicle in table order.
func (b *Bucket) SeriesOf(vehicle string) []Series {
	v := b.vehicles[vehicle]
	var out []Series
	for _, s := range AllSeries() {
		if len(v[s]) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// Samples returns the samples of one series; nil if none were recorded.
func (b *Bucket) Samples(vehicle string, series Series) []Sample {
	return b.vehicles[vehicle][series]
}

// Len returns the total number of samples across all series.
func (b *Bucket) Len() int {
	n := 0
	for _, v := range b.vehicles {
		for _, s := range v {
			n += len(s)
		}
	}
	return n
}
