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

package gpx

import (
	"context"
	"fmt"

	"github.com/timelinize/geoconvert/geodata"
	"github.com/tkrajina/gpxgo/gpx"
)

const creator = "geoconvert"

// Serialize writes ds as a GPX 1.1 document: named waypoints as <wpt> and
// all trackpoints as one <trk> with one <trkseg>.
func Serialize(_ context.Context, ds *geodata.Dataset, opt geodata.SerializeOptions) ([]byte, error) {
	tr, err := geodata.Normalize(ds)
	if err != nil {
		return nil, err
	}

	generated := opt.GeneratedAt
	doc := &gpx.GPX{
		Version:     "1.1",
		Creator:     creator,
		Name:        opt.Name,
		Description: opt.Description,
		Time:        &generated,
	}

	for _, m := range tr.Waypoints {
		doc.Waypoints = append(doc.Waypoints, gpxPoint(m))
	}

	if len(tr.Trackpoints) > 0 {
		seg := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(tr.Trackpoints))}
		for _, m := range tr.Trackpoints {
			seg.Points = append(seg.Points, gpxPoint(m))
		}
		doc.Tracks = []gpx.GPXTrack{{
			Name:     opt.Name,
			Type:     geodata.Summarize(ds).ActivityType,
			Segments: []gpx.GPXTrackSegment{seg},
		}}
	}

	out, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("converting GPX to XML: %w", err)
	}
	return out, nil
}

func gpxPoint(m geodata.Mark) gpx.GPXPoint {
	var p gpx.GPXPoint
	p.Latitude = m.Lat
	p.Longitude = m.Lng
	if m.Altitude != nil {
		p.Elevation = *gpx.NewNullableFloat64(*m.Altitude)
	}
	if !m.Time.IsZero() {
		p.Timestamp = m.Time.UTC()
	}
	p.Name = m.Name
	p.Description = m.Description
	return p
}
