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

import (
	"fmt"
	"time"
)

// Mark is a point in the shape that track-oriented formats (GPX, KML,
// FIT) expect: a bare coordinate with optional name and description.
type Mark struct {
	Lat, Lng     float64
	Altitude     *float64
	Time         time.Time
	Name         string
	Description  string
	ActivityType string
}

// Track is a dataset flattened into named waypoints and one ordered
// sequence of unnamed trackpoints.
type Track struct {
	Waypoints   []Mark
	Trackpoints []Mark
}

// Normalize flattens a dataset into a Track. Place visits and waypoints
// become named waypoints; every other point becomes a trackpoint. The
// coordinates of each path are then appended to the trackpoints, with
// the first and last coordinate carrying the path's start and end times.
func Normalize(ds *Dataset) (*Track, error) {
	tr := new(Track)

	for i, p := range ds.Points {
		m := Mark{
			Lat:          p.Lat,
			Lng:          p.Lng,
			Altitude:     p.Altitude,
			Time:         p.Timestamp,
			ActivityType: p.ActivityType,
		}
		switch p.Type {
		case PlaceVisit, Waypoint:
			m.Name = p.Name
			m.Description = p.Address
			tr.Waypoints = append(tr.Waypoints, m)
		case LocationRecord, ActivityStart, ActivityEnd, PlaceAggregate, RawSignal, Trackpoint:
			tr.Trackpoints = append(tr.Trackpoints, m)
		default:
			return nil, fmt.Errorf("point %d has unhandled type %s", i, p.Type)
		}
	}

	for _, path := range ds.Paths {
		tr.Trackpoints = append(tr.Trackpoints, PathMarks(path)...)
	}

	return tr, nil
}

// PathMarks returns the coordinates of path as marks; the first and last
// inherit the path's start and end timestamps.
func PathMarks(path Path) []Mark {
	marks := make([]Mark, len(path.Coordinates))
	for i, c := range path.Coordinates {
		marks[i] = Mark{Lat: c.Lat, Lng: c.Lng, ActivityType: path.ActivityType}
	}
	if len(marks) > 0 {
		marks[0].Time = path.StartTimestamp
		marks[len(marks)-1].Time = path.EndTimestamp
	}
	return marks
}
