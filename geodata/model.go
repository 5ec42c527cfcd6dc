/*
	Timelinize
	Copyright (c) 2013 Matthew Holt

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package geodata contains the canonical location model that every source
// format is parsed into and every target format is serialized from, along
// with the machinery to convert between formats.
package geodata

import (
	"errors"
	"fmt"
	"time"
)

// PointType classifies a Point by where it came from. The set of types is
// closed; every switch over PointType must handle all of AllPointTypes().
type PointType uint8

// The point types. The zero value is deliberately invalid.
const (
	PlaceVisit PointType = iota + 1
	LocationRecord
	ActivityStart
	ActivityEnd
	PlaceAggregate
	RawSignal
	Waypoint
	Trackpoint
)

var pointTypeNames = map[PointType]string{
	PlaceVisit:     "place_visit",
	LocationRecord: "location_record",
	ActivityStart:  "activity_start",
	ActivityEnd:    "activity_end",
	PlaceAggregate: "place_aggregate",
	RawSignal:      "raw_signal",
	Waypoint:       "waypoint",
	Trackpoint:     "trackpoint",
}

// AllPointTypes returns every valid PointType in declaration order.
func AllPointTypes() []PointType {
	return []PointType{
		PlaceVisit,
		LocationRecord,
		ActivityStart,
		ActivityEnd,
		PlaceAggregate,
		RawSignal,
		Waypoint,
		Trackpoint,
	}
}

func (pt PointType) String() string {
	if name, ok := pointTypeNames[pt]; ok {
		return name
	}
	return fmt.Sprintf("PointType(%d)", uint8(pt))
}

// Valid returns true if pt is one of the known point types.
func (pt PointType) Valid() bool {
	_, ok := pointTypeNames[pt]
	return ok
}

// MarshalText encodes pt as its snake_case name.
func (pt PointType) MarshalText() ([]byte, error) {
	if !pt.Valid() {
		return nil, fmt.Errorf("invalid point type: %d", uint8(pt))
	}
	return []byte(pt.String()), nil
}

// UnmarshalText decodes a snake_case point type name.
func (pt *PointType) UnmarshalText(text []byte) error {
	parsed, err := ParsePointType(string(text))
	if err != nil {
		return err
	}
	*pt = parsed
	return nil
}

// ParsePointType returns the PointType with the given snake_case name.
func ParsePointType(name string) (PointType, error) {
	for pt, n := range pointTypeNames {
		if n == name {
			return pt, nil
		}
	}
	return 0, fmt.Errorf("unknown point type: %q", name)
}

// Point is a single geographic observation.
//
// Points should be made with NewPoint so that their coordinates are
// guaranteed to be valid.
type Point struct {
	ID        string
	Lat, Lng  float64
	Timestamp time.Time // zero if unknown
	Type      PointType

	Altitude     *float64 // meters
	Name         string
	Address      string
	ActivityType string
	Accuracy     *float64 // meters; higher values are less accurate
	Confidence   string
}

// NewPoint returns a point of the given type at lat, lng. It returns an
// error if either coordinate is out of range or not a finite number.
func NewPoint(lat, lng float64, pt PointType) (Point, error) {
	if !pt.Valid() {
		return Point{}, fmt.Errorf("invalid point type: %d", uint8(pt))
	}
	if err := ValidateLatLng(lat, lng); err != nil {
		return Point{}, err
	}
	return Point{Lat: lat, Lng: lng, Type: pt}, nil
}

// LatLng is a bare coordinate pair, in degrees.
type LatLng struct {
	Lat, Lng float64
}

// Path is an ordered series of coordinates traveled during one activity.
// Coordinates are in temporal order and are never reordered.
type Path struct {
	ID             string
	Coordinates    []LatLng
	StartTimestamp time.Time
	EndTimestamp   time.Time
	ActivityType   string
	DistanceMeters *float64
}

// NewPath returns a path through the given coordinates. A path needs at
// least two coordinates, all of which must be valid.
func NewPath(coords []LatLng) (Path, error) {
	const minCoords = 2
	if len(coords) < minCoords {
		return Path{}, fmt.Errorf("path needs at least %d coordinates, got %d", minCoords, len(coords))
	}
	for i, c := range coords {
		if err := ValidateLatLng(c.Lat, c.Lng); err != nil {
			return Path{}, fmt.Errorf("coordinate %d: %w", i, err)
		}
	}
	return Path{Coordinates: coords}, nil
}

// Dataset is the result of parsing one input: standalone points, paths,
// format-level metadata, and any non-fatal warnings encountered.
type Dataset struct {
	Format   Format
	Points   []Point
	Paths    []Path
	Metadata Metadata

	// Warnings are problems that did not prevent parsing, such as
	// skipped records or a bad checksum.
	Warnings []error
}

// Warn records a non-fatal problem.
func (ds *Dataset) Warn(err error) {
	if err == nil {
		return
	}
	ds.Warnings = append(ds.Warnings, err)
}

// Empty returns true if the dataset has no points and no paths.
func (ds *Dataset) Empty() bool {
	return ds == nil || (len(ds.Points) == 0 && len(ds.Paths) == 0)
}

// CoordinateCount returns the number of standalone points plus the
// number of coordinates across all paths.
func (ds *Dataset) CoordinateCount() int {
	n := len(ds.Points)
	for _, p := range ds.Paths {
		n += len(p.Coordinates)
	}
	return n
}

// SetMeta sets a metadata value, allocating the map if needed.
func (ds *Dataset) SetMeta(key string, val any) {
	if ds.Metadata == nil {
		ds.Metadata = make(Metadata)
	}
	ds.Metadata[key] = val
}

// validate checks every point and path in the dataset.
func (ds *Dataset) validate() error {
	var errs []error
	for i, p := range ds.Points {
		if !p.Type.Valid() {
			errs = append(errs, fmt.Errorf("point %d: invalid type %d", i, uint8(p.Type)))
		}
		if err := ValidateLatLng(p.Lat, p.Lng); err != nil {
			errs = append(errs, fmt.Errorf("point %d: %w", i, err))
		}
	}
	for i, p := range ds.Paths {
		if _, err := NewPath(p.Coordinates); err != nil {
			errs = append(errs, fmt.Errorf("path %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Metadata is a map of arbitrary extra information associated with a
// dataset. Keys should be human-readable.
type Metadata map[string]any

// MetadataMergePolicy specifies how to handle a key conflict when merging.
type MetadataMergePolicy int

const (
	// MetaMergeReplace replaces any existing value with the incoming one.
	MetaMergeReplace MetadataMergePolicy = iota

	// MetaMergeSkip will skip any incoming value if the key already exists.
	MetaMergeSkip
)

// Merge adds the incoming metadata to m according to the specified conflict policy.
func (m Metadata) Merge(incoming Metadata, policy MetadataMergePolicy) {
	for key, val := range incoming {
		if _, ok := m[key]; ok && policy == MetaMergeSkip {
			continue
		}
		m[key] = val
	}
}

// Float64 returns a pointer to v. Handy for optional fields.
func Float64(v float64) *float64 { return &v }
