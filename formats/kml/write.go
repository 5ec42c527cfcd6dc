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

package kml

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/timelinize/geoconvert/geodata"
)

const (
	namespaceKML = "http://www.opengis.net/kml/2.2"
	namespaceGX  = "http://www.google.com/kml/ext/2.2"
)

type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	XMLNS    string      `xml:"xmlns,attr"`
	XMLNSGX  string      `xml:"xmlns:gx,attr,omitempty"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name         string          `xml:"name,omitempty"`
	Description  string          `xml:"description,omitempty"`
	ExtendedData kmlExtendedData `xml:"ExtendedData"`
	Placemarks   []kmlPlacemark  `xml:"Placemark"`
}

type kmlExtendedData struct {
	Data []kmlData `xml:"Data"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlPlacemark struct {
	Name        string        `xml:"name,omitempty"`
	Description string        `xml:"description,omitempty"`
	TimeStamp   *kmlTimeStamp `xml:"TimeStamp,omitempty"`
	Point       *kmlGeometry  `xml:"Point,omitempty"`
	LineString  *kmlGeometry  `xml:"LineString,omitempty"`
	Track       *kmlTrack     `xml:"gx:Track,omitempty"`
}

type kmlTimeStamp struct {
	When string `xml:"when"`
}

type kmlGeometry struct {
	Tessellate  int    `xml:"tessellate,omitempty"`
	Coordinates string `xml:"coordinates"`
}

type kmlTrack struct {
	When  []string `xml:"when"`
	Coord []string `xml:"gx:coord"`
}

// Serialize writes ds as a KML 2.2 document. Named waypoints become Point
// placemarks; trackpoints become one gx:Track if all of them have
// timestamps, otherwise one LineString (or a Point, if there is only one).
func Serialize(_ context.Context, ds *geodata.Dataset, opt geodata.SerializeOptions) ([]byte, error) {
	tr, err := geodata.Normalize(ds)
	if err != nil {
		return nil, err
	}

	root := kmlRoot{
		XMLNS: namespaceKML,
		Document: kmlDocument{
			Name:        opt.Name,
			Description: opt.Description,
			ExtendedData: kmlExtendedData{Data: []kmlData{
				{Name: "generated", Value: geodata.FormatTimestamp(opt.GeneratedAt)},
			}},
		},
	}

	for _, m := range tr.Waypoints {
		pm := kmlPlacemark{
			Name:        m.Name,
			Description: m.Description,
			Point:       &kmlGeometry{Coordinates: formatTuple(m, ",")},
		}
		if !m.Time.IsZero() {
			pm.TimeStamp = &kmlTimeStamp{When: geodata.FormatTimestamp(m.Time)}
		}
		root.Document.Placemarks = append(root.Document.Placemarks, pm)
	}

	if len(tr.Trackpoints) > 0 {
		pm := kmlPlacemark{Name: firstNonEmpty(opt.Name, "Track")}
		switch {
		case len(tr.Trackpoints) == 1:
			m := tr.Trackpoints[0]
			pm.Point = &kmlGeometry{Coordinates: formatTuple(m, ",")}
			if !m.Time.IsZero() {
				pm.TimeStamp = &kmlTimeStamp{When: geodata.FormatTimestamp(m.Time)}
			}
		case allTimestamped(tr.Trackpoints):
			root.XMLNSGX = namespaceGX
			pm.Track = new(kmlTrack)
			for _, m := range tr.Trackpoints {
				pm.Track.When = append(pm.Track.When, geodata.FormatTimestamp(m.Time))
				pm.Track.Coord = append(pm.Track.Coord, formatTuple(m, " "))
			}
		default:
			tuples := make([]string, len(tr.Trackpoints))
			for i, m := range tr.Trackpoints {
				tuples[i] = formatTuple(m, ",")
			}
			pm.LineString = &kmlGeometry{Tessellate: 1, Coordinates: strings.Join(tuples, " ")}
		}
		root.Document.Placemarks = append(root.Document.Placemarks, pm)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encoding KML: %w", err)
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// formatTuple renders m as lon,lat[,alt] with the given separator.
func formatTuple(m geodata.Mark, sep string) string {
	s := formatFloat(m.Lng) + sep + formatFloat(m.Lat)
	if m.Altitude != nil {
		s += sep + formatFloat(*m.Altitude)
	}
	return s
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func allTimestamped(marks []geodata.Mark) bool {
	for _, m := range marks {
		if m.Time.IsZero() {
			return false
		}
	}
	return true
}
