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

package geodata

import "math"

// Summary describes the result of a conversion.
type Summary struct {
	SourceFormat Format `json:"source_format"`
	TargetFormat Format `json:"target_format"`

	// Number of standalone points.
	PointCount int `json:"point_count"`

	// Number of paths.
	PathCount int `json:"path_count"`

	// Standalone points plus all path coordinates.
	CoordinateCount int `json:"coordinate_count"`

	DistanceKm   float64  `json:"distance_km"`
	ActivityType string   `json:"activity_type,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`

	// Hex BLAKE3 digest of the input bytes.
	InputHash string `json:"input_hash,omitempty"`
}

// MetaSport is the metadata key formats use for a file-level sport or
// activity type, such as the sport of a FIT session.
const MetaSport = "Sport"

// Summarize computes statistics for ds.
func Summarize(ds *Dataset) Summary {
	sum := Summary{
		SourceFormat:    ds.Format,
		PointCount:      len(ds.Points),
		PathCount:       len(ds.Paths),
		CoordinateCount: ds.CoordinateCount(),
		DistanceKm:      roundTo(DistanceMetersOf(ds)/1000, 3),
		ActivityType:    dominantActivity(ds),
	}
	for _, w := range ds.Warnings {
		sum.Warnings = append(sum.Warnings, w.Error())
	}
	return sum
}

// DistanceMetersOf returns the total distance covered by ds: each path's
// reported distance (or its great-circle length if not reported), plus
// the length of the sequence of track-like standalone points.
func DistanceMetersOf(ds *Dataset) float64 {
	var total float64
	for _, p := range ds.Paths {
		if p.DistanceMeters != nil && *p.DistanceMeters > 0 {
			total += *p.DistanceMeters
		} else {
			total += PathLengthMeters(p.Coordinates)
		}
	}

	var trail []LatLng
	for _, p := range ds.Points {
		if tracklike(p.Type) {
			trail = append(trail, LatLng{Lat: p.Lat, Lng: p.Lng})
		}
	}
	total += PathLengthMeters(trail)

	return total
}

// tracklike returns true for point types that form a continuous trail
// when taken in order.
func tracklike(pt PointType) bool {
	switch pt {
	case LocationRecord, RawSignal, Trackpoint:
		return true
	case PlaceVisit, ActivityStart, ActivityEnd, PlaceAggregate, Waypoint:
		return false
	}
	return false
}

// dominantActivity returns the most frequent non-empty activity type among
// paths and points; ties go to the first one seen. If none, the dataset's
// sport metadata is used.
func dominantActivity(ds *Dataset) string {
	counts := make(map[string]int)
	var order []string
	count := func(act string) {
		if act == "" {
			return
		}
		if counts[act] == 0 {
			order = append(order, act)
		}
		counts[act]++
	}
	for _, p := range ds.Paths {
		count(p.ActivityType)
	}
	for _, p := range ds.Points {
		count(p.ActivityType)
	}

	var best string
	for _, act := range order {
		if counts[act] > counts[best] {
			best = act
		}
	}
	if best == "" {
		if sport, ok := ds.Metadata[MetaSport].(string); ok {
			best = sport
		}
	}
	return best
}

func roundTo(v float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(v*mult) / mult
}
