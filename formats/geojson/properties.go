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

package geojson

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/timelinize/geoconvert/geodata"
)

// see https://datatracker.ietf.org/doc/html/rfc7946#section-3.2
type feature struct {
	Type       string         `json:"type"`
	ID         any            `json:"id,omitempty"`
	Properties map[string]any `json:"properties"`
	Geometry   geometry       `json:"geometry"`
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// properties holds the values of well-known (obvious or common) keys in
// a feature's properties. The same keys are written by Serialize.
type properties struct {
	id           string
	pointType    geodata.PointType
	name         string
	address      string
	activityType string
	confidence   string
	time         time.Time
	endTime      time.Time
	altitude     *float64
	accuracy     *float64
	distance     *float64
}

func (f feature) knownProperties() properties {
	var p properties

	switch id := f.ID.(type) {
	case string:
		p.id = id
	case float64:
		p.id = fmt.Sprint(id)
	}
	if id, ok := f.Properties[propID].(string); ok && p.id == "" {
		p.id = id
	}

	if typ, ok := f.Properties[propType].(string); ok {
		if pt, err := geodata.ParsePointType(typ); err == nil {
			p.pointType = pt
		}
	}
	p.name = stringProp(f.Properties, propName, "title")
	p.address = stringProp(f.Properties, propAddress, "description", "desc")
	p.activityType = stringProp(f.Properties, propActivityType, "activity", "sport")
	p.confidence = stringProp(f.Properties, propConfidence)

	p.time = timeProp(f.Properties, propTimestamp, propStartTime, "time", "time_long", "datetime", "date_time")
	p.endTime = timeProp(f.Properties, propEndTime)

	p.altitude = numberProp(f.Properties, propAltitude, "elevation", "ele", "height")
	p.accuracy = numberProp(f.Properties, propAccuracy)
	p.distance = numberProp(f.Properties, propDistance)

	return p
}

func (p properties) point(pos position, lenient bool, defaultType geodata.PointType) (geodata.Point, error) {
	ll, alt, ts, err := pos.decode(lenient)
	if err != nil {
		return geodata.Point{}, err
	}

	pt := p.pointType
	if !pt.Valid() {
		pt = defaultType
		// unnamed points are trackpoints
		if pt == geodata.Waypoint && p.name == "" {
			pt = geodata.Trackpoint
		}
	}

	point, err := geodata.NewPoint(ll.Lat, ll.Lng, pt)
	if err != nil {
		return geodata.Point{}, err
	}
	point.ID = p.id
	point.Name = p.name
	point.Address = p.address
	point.ActivityType = p.activityType
	point.Confidence = p.confidence
	point.Accuracy = p.accuracy
	point.Timestamp = p.time
	if point.Timestamp.IsZero() {
		point.Timestamp = ts
	}
	point.Altitude = p.altitude
	if point.Altitude == nil {
		point.Altitude = alt
	}
	return point, nil
}

func (p properties) path(positions []position) (geodata.Path, error) {
	coords := make([]geodata.LatLng, 0, len(positions))
	for i, pos := range positions {
		ll, _, _, err := pos.decode(false)
		if err != nil {
			return geodata.Path{}, fmt.Errorf("position %d: %w", i, err)
		}
		coords = append(coords, ll)
	}
	path, err := geodata.NewPath(coords)
	if err != nil {
		return geodata.Path{}, err
	}
	path.ID = p.id
	path.StartTimestamp = p.time
	path.EndTimestamp = p.endTime
	path.ActivityType = p.activityType
	path.DistanceMeters = p.distance
	return path, nil
}

// https://datatracker.ietf.org/doc/html/rfc7946#section-3.1.1
type position []float64

// decode returns the coordinates of the position, and, if present, the
// altitude and (only in lenient mode) timestamp.
func (pos position) decode(lenient bool) (geodata.LatLng, *float64, time.Time, error) {
	const minDimensions = 2
	if count := len(pos); count < minDimensions {
		return geodata.LatLng{}, nil, time.Time{}, fmt.Errorf("expected at least two values for position, got %d: %v", count, pos)
	}
	if err := geodata.ValidateLatLng(pos[1], pos[0]); err != nil {
		return geodata.LatLng{}, nil, time.Time{}, err
	}
	ll := geodata.LatLng{Lat: pos[1], Lng: pos[0]}

	if len(pos) == minDimensions {
		return ll, nil, time.Time{}, nil
	}

	if !lenient {
		// third element is optional but must be altitude in meters if present
		return ll, geodata.Float64(pos[2]), time.Time{}, nil
	}

	// Some non-compliant data puts a timestamp in the third element and
	// sometimes altitude in the fourth. A value too big to be an altitude
	// is taken as a Unix timestamp in any position; altitude must come
	// right after the coordinates.
	var (
		alt *float64
		ts  time.Time
	)
	const minAltitude, maxAltitude = -100.0, 20000.0 // meters
	for i, v := range pos[minDimensions:] {
		if v > maxAltitude {
			ts = unixTime(v)
		} else if i == 0 && v > minAltitude {
			alt = geodata.Float64(v)
		}
	}
	return ll, alt, ts, nil
}

// well-known property keys
const (
	propID           = "id"
	propType         = "type"
	propName         = "name"
	propAddress      = "address"
	propActivityType = "activity_type"
	propConfidence   = "confidence"
	propTimestamp    = "timestamp"
	propStartTime    = "start_time"
	propEndTime      = "end_time"
	propAltitude     = "altitude"
	propAccuracy     = "accuracy"
	propDistance     = "distance_meters"
)

func stringProp(props map[string]any, names ...string) string {
	for _, name := range names {
		if s, ok := props[name].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func numberProp(props map[string]any, names ...string) *float64 {
	for _, name := range names {
		if v, ok := props[name].(float64); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return geodata.Float64(v)
		}
	}
	return nil
}

func timeProp(props map[string]any, names ...string) time.Time {
	for _, name := range names {
		switch val := props[name].(type) {
		case string:
			if t, err := geodata.ParseTimestamp(val); err == nil {
				return t
			}
			for _, layout := range []string{
				time.RFC850,
				time.RFC822,
				time.RFC822Z,
				time.RFC1123,
				time.RFC1123Z,
			} {
				if t, err := time.Parse(layout, val); err == nil {
					return t.UTC()
				}
			}
		case float64:
			return unixTime(val)
		}
	}
	return time.Time{}
}

// unixTime interprets v as Unix seconds, or milliseconds if it is too
// large to be seconds.
func unixTime(v float64) time.Time {
	// we use this to guess whether the timestamp is in seconds or milliseconds
	const year2286ApproxUnixSec = 10000000000

	sec, frac := math.Modf(v)
	if sec < year2286ApproxUnixSec {
		return time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return time.UnixMilli(int64(sec)).UTC()
}
