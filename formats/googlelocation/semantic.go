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

package googlelocation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/timelinize/geoconvert/geodata"
)

type semanticFile struct {
	TimelineObjects []timelineObject `json:"timelineObjects"`
}

// timelineObject has exactly one of its fields set.
type timelineObject struct {
	ActivitySegment *activitySegment `json:"activitySegment,omitempty"`
	PlaceVisit      *placeVisit      `json:"placeVisit,omitempty"`
}

type placeVisit struct {
	Location        semanticLocation `json:"location"`
	CenterLatE7     *int64           `json:"centerLatE7"`
	CenterLngE7     *int64           `json:"centerLngE7"`
	Duration        duration         `json:"duration"`
	PlaceConfidence string           `json:"placeConfidence"`
	VisitConfidence int              `json:"visitConfidence"`
}

type activitySegment struct {
	StartLocation     semanticLocation `json:"startLocation"`
	EndLocation       semanticLocation `json:"endLocation"`
	Duration          duration         `json:"duration"`
	Distance          *float64         `json:"distance"`
	ActivityType      string           `json:"activityType"`
	Confidence        string           `json:"confidence"`
	WaypointPath      waypointPath     `json:"waypointPath"`
	SimplifiedRawPath simplifiedPath   `json:"simplifiedRawPath"`
}

type semanticLocation struct {
	LatitudeE7         *int64  `json:"latitudeE7"`
	LongitudeE7        *int64  `json:"longitudeE7"`
	Name               string  `json:"name"`
	Address            string  `json:"address"`
	PlaceID            string  `json:"placeId"`
	SemanticType       string  `json:"semanticType"`
	LocationConfidence float64 `json:"locationConfidence"`
}

func (l semanticLocation) latLng() (geodata.LatLng, bool) {
	return e7LatLng(l.LatitudeE7, l.LongitudeE7)
}

type waypointPath struct {
	Waypoints []e7Point `json:"waypoints"`
}

type simplifiedPath struct {
	Points []e7Point `json:"points"`
}

type e7Point struct {
	LatE7       *int64 `json:"latE7"`
	LngE7       *int64 `json:"lngE7"`
	Timestamp   string `json:"timestamp"`
	TimestampMs string `json:"timestampMs"`
}

// duration is written with either RFC 3339 strings or (in older files)
// milliseconds since the epoch as strings.
type duration struct {
	StartTimestamp   string `json:"startTimestamp"`
	EndTimestamp     string `json:"endTimestamp"`
	StartTimestampMs string `json:"startTimestampMs"`
	EndTimestampMs   string `json:"endTimestampMs"`
}

func (d duration) start() time.Time { return firstTime(d.StartTimestamp, d.StartTimestampMs) }
func (d duration) end() time.Time   { return firstTime(d.EndTimestamp, d.EndTimestampMs) }

// firstTime returns the first of the candidate timestamp strings that
// parses, or the zero time.
func firstTime(candidates ...string) time.Time {
	for _, s := range candidates {
		if s == "" {
			continue
		}
		if t, err := geodata.ParseTimestamp(s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// e7LatLng converts a pair of E7 coordinates; ok is false if either is
// missing or out of range.
func e7LatLng(latE7, lngE7 *int64) (geodata.LatLng, bool) {
	if latE7 == nil || lngE7 == nil {
		return geodata.LatLng{}, false
	}
	ll := geodata.LatLng{
		Lat: geodata.E7ToDecimal(*latE7),
		Lng: geodata.E7ToDecimal(*lngE7),
	}
	if geodata.ValidateLatLng(ll.Lat, ll.Lng) != nil {
		return geodata.LatLng{}, false
	}
	return ll, true
}

// sortTime is the time an entry is ordered by: the visit start, else the
// segment start, else the Unix epoch.
func (o timelineObject) sortTime() time.Time {
	if o.PlaceVisit != nil {
		if t := o.PlaceVisit.Duration.start(); !t.IsZero() {
			return t
		}
	}
	if o.ActivitySegment != nil {
		if t := o.ActivitySegment.Duration.start(); !t.IsZero() {
			return t
		}
	}
	return time.Unix(0, 0)
}

// sortTimelineObjects sorts entries by time; entries with equal times
// keep their relative order.
func sortTimelineObjects(objs []timelineObject) {
	sort.SliceStable(objs, func(i, j int) bool {
		return objs[i].sortTime().Before(objs[j].sortTime())
	})
}

// pathExtractor gets the coordinates of an activity segment's path from
// one of its possible sources.
type pathExtractor func(seg *activitySegment) []geodata.LatLng

// pathExtractors are tried in order; the first one that yields any
// coordinates is used and the rest are ignored.
var pathExtractors = []pathExtractor{
	func(seg *activitySegment) []geodata.LatLng { return e7Coords(seg.WaypointPath.Waypoints) },
	func(seg *activitySegment) []geodata.LatLng { return e7Coords(seg.SimplifiedRawPath.Points) },
	func(seg *activitySegment) []geodata.LatLng {
		var coords []geodata.LatLng
		for _, loc := range []semanticLocation{seg.StartLocation, seg.EndLocation} {
			if ll, ok := loc.latLng(); ok {
				coords = append(coords, ll)
			}
		}
		return coords
	},
}

func e7Coords(pts []e7Point) []geodata.LatLng {
	var coords []geodata.LatLng
	for _, p := range pts {
		if ll, ok := e7LatLng(p.LatE7, p.LngE7); ok {
			coords = append(coords, ll)
		}
	}
	return coords
}

func (seg *activitySegment) pathCoordinates() []geodata.LatLng {
	for _, extract := range pathExtractors {
		if coords := extract(seg); len(coords) > 0 {
			return coords
		}
	}
	return nil
}

func parseSemantic(ctx context.Context, data []byte, ds *geodata.Dataset) error {
	var file semanticFile
	if err := decodeJSON(data, &file); err != nil {
		return err
	}

	sortTimelineObjects(file.TimelineObjects)

	var drops dropCounter
	for i, obj := range file.TimelineObjects {
		if err := checkCtx(ctx, i); err != nil {
			return err
		}
		n := i + 1
		switch {
		case obj.PlaceVisit != nil:
			pt, ok := obj.PlaceVisit.point(n)
			if !ok {
				drops.add("place visit")
				continue
			}
			ds.Points = append(ds.Points, pt)

		case obj.ActivitySegment != nil:
			points, path := obj.ActivitySegment.toGeodata(n)
			if len(points) == 0 && path == nil {
				drops.add("activity segment")
				continue
			}
			ds.Points = append(ds.Points, points...)
			if path != nil {
				ds.Paths = append(ds.Paths, *path)
			}
		}
	}
	drops.report(ds)

	return nil
}

func (v *placeVisit) point(n int) (geodata.Point, bool) {
	ll, ok := v.Location.latLng()
	if !ok {
		ll, ok = e7LatLng(v.CenterLatE7, v.CenterLngE7)
	}
	if !ok {
		return geodata.Point{}, false
	}
	pt, err := geodata.NewPoint(ll.Lat, ll.Lng, geodata.PlaceVisit)
	if err != nil {
		return geodata.Point{}, false
	}
	pt.ID = fmt.Sprintf("visit-%d", n)
	pt.Timestamp = v.Duration.start()
	pt.Name = v.Location.Name
	pt.Address = v.Location.Address
	pt.Confidence = v.PlaceConfidence
	return pt, true
}

// toGeodata returns the segment's start and end points (those that have
// coordinates) and its path, if it has at least two coordinates.
func (seg *activitySegment) toGeodata(n int) ([]geodata.Point, *geodata.Path) {
	var points []geodata.Point
	for _, end := range []struct {
		loc  semanticLocation
		kind geodata.PointType
		ts   time.Time
		id   string
	}{
		{seg.StartLocation, geodata.ActivityStart, seg.Duration.start(), fmt.Sprintf("activity-%d-start", n)},
		{seg.EndLocation, geodata.ActivityEnd, seg.Duration.end(), fmt.Sprintf("activity-%d-end", n)},
	} {
		ll, ok := end.loc.latLng()
		if !ok {
			continue
		}
		pt, err := geodata.NewPoint(ll.Lat, ll.Lng, end.kind)
		if err != nil {
			continue
		}
		pt.ID = end.id
		pt.Timestamp = end.ts
		pt.ActivityType = seg.ActivityType
		pt.Confidence = seg.Confidence
		points = append(points, pt)
	}

	path, err := geodata.NewPath(seg.pathCoordinates())
	if err != nil {
		return points, nil
	}
	path.ID = fmt.Sprintf("path-%d", n)
	path.StartTimestamp = seg.Duration.start()
	path.EndTimestamp = seg.Duration.end()
	path.ActivityType = seg.ActivityType
	if seg.Distance != nil && *seg.Distance > 0 {
		path.DistanceMeters = geodata.Float64(*seg.Distance)
	}

	return points, &path
}
