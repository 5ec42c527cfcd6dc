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

// Package kml reads and writes Keyhole Markup Language documents,
// including the Google extensions (gx) for timestamped tracks, and
// their zipped form, KMZ.
package kml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/timelinize/geoconvert/geodata"
	"go.uber.org/zap"
)

func init() {
	err := geodata.RegisterCodec(geodata.Codec{
		Format:      geodata.FormatKML,
		Title:       "Keyhole (KML)",
		Description: "A .kml file containing placemarks, lines, or gx:Track tracks.",
		Extensions:  []string{".kml"},
		MIMEType:    "application/vnd.google-earth.kml+xml",
		Recognize:   recognizeKML,
		Parse:       Parse,
		Serialize:   Serialize,
	})
	if err != nil {
		geodata.Log.Fatal("registering codec", zap.Error(err))
	}

	err = geodata.RegisterCodec(geodata.Codec{
		Format:      geodata.FormatKMZ,
		Title:       "Zipped KML (KMZ)",
		Description: "A .kmz archive with a KML document inside.",
		Extensions:  []string{".kmz"},
		MIMEType:    "application/vnd.google-earth.kmz",
		Recognize:   recognizeKMZ,
		Parse:       ParseKMZ,
		Serialize:   SerializeKMZ,
	})
	if err != nil {
		geodata.Log.Fatal("registering codec", zap.Error(err))
	}
}

func recognizeKML(filename string, data []byte) geodata.Recognition {
	if geodata.XMLRootElement(data) != "kml" {
		return geodata.Recognition{}
	}
	if geodata.HasExtension(filename, []string{".kml"}) {
		return geodata.Recognition{Confidence: 1}
	}
	return geodata.Recognition{Confidence: 0.9}
}

// Parse reads placemarks from a KML document. Points, including those in
// a MultiGeometry, become waypoints; the coordinates of lines and gx:Tracks
// become trackpoints. A placemark that can't be read is skipped with a warning.
func Parse(ctx context.Context, data []byte, opt geodata.ParseOptions) (*geodata.Dataset, error) {
	d := &decoder{
		Decoder: geodata.NewXMLDecoder(data),
		ds:      new(geodata.Dataset),
	}
	if opt.Lenient {
		d.Strict = false
	}

	if err := d.decode(ctx); err != nil {
		var syntaxErr *xml.SyntaxError
		if opt.Lenient && errors.As(err, &syntaxErr) && !d.ds.Empty() {
			d.ds.Warn(fmt.Errorf("stopped reading at malformed XML: %w", err))
			return d.ds, nil
		}
		return nil, err
	}

	return d.ds, nil
}

// decoder streams through the document and decodes each Placemark whole,
// wherever it appears (Documents and Folders may nest arbitrarily).
type decoder struct {
	*xml.Decoder
	stack      geodata.XMLNesting
	ds         *geodata.Dataset
	placemarks int
	sawRoot    bool
}

func (d *decoder) decode(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tkn, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return geodata.FormatError{Format: geodata.FormatKML, Msg: "decoding next XML token", Err: err}
		}

		switch elem := tkn.(type) {
		case xml.StartElement:
			if !d.sawRoot {
				if elem.Name.Local != "kml" {
					return geodata.FormatError{Format: geodata.FormatKML, Msg: "root element is " + elem.Name.Local}
				}
				d.sawRoot = true
			}

			switch {
			case elem.Name.Local == "Placemark":
				var pm placemark
				if err := d.DecodeElement(&pm, &elem); err != nil {
					return geodata.FormatError{Format: geodata.FormatKML, Msg: "decoding Placemark", Err: err}
				}
				idx := d.placemarks
				d.placemarks++
				if err := pm.addTo(d.ds, idx); err != nil {
					d.ds.Warn(geodata.SkippedRecordWarning{Kind: "Placemark", Index: idx, Err: err})
				}
				continue

			case d.stack.Path() == "kml/Document" && (elem.Name.Local == "name" || elem.Name.Local == "description"):
				var text string
				if err := d.DecodeElement(&text, &elem); err != nil {
					return geodata.FormatError{Format: geodata.FormatKML, Msg: "decoding document " + elem.Name.Local, Err: err}
				}
				if text = strings.TrimSpace(text); text != "" {
					key := "Name"
					if elem.Name.Local == "description" {
						key = "Description"
					}
					d.ds.SetMeta(key, text)
				}
				continue
			}

			d.stack.Push(elem)

		case xml.EndElement:
			if !d.stack.Pop() {
				return geodata.FormatError{Format: geodata.FormatKML, Msg: "encountered end tag without opening: " + elem.Name.Local}
			}
		}
	}

	if !d.sawRoot {
		return geodata.FormatError{Format: geodata.FormatKML, Msg: "no kml element"}
	}
	return nil
}

type placemark struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Address     string `xml:"address"`
	TimeStamp   struct {
		When string `xml:"when"`
	} `xml:"TimeStamp"`
	TimeSpan struct {
		Begin string `xml:"begin"`
		End   string `xml:"end"`
	} `xml:"TimeSpan"`

	Point         *coordinates   `xml:"Point"`
	LineString    *coordinates   `xml:"LineString"`
	MultiGeometry *multiGeometry `xml:"MultiGeometry"`
	Track         *track         `xml:"Track"`
	MultiTrack    *struct {
		Tracks []track `xml:"Track"`
	} `xml:"MultiTrack"`
}

type coordinates struct {
	Coordinates string `xml:"coordinates"`
}

type multiGeometry struct {
	Points      []coordinates `xml:"Point"`
	LineStrings []coordinates `xml:"LineString"`
	Tracks      []track       `xml:"Track"`
}

// track is a gx:Track: parallel lists of timestamps and "lon lat alt" coordinates.
type track struct {
	When  []string `xml:"when"`
	Coord []string `xml:"coord"`
}

// addTo adds the placemark's geometry to ds. It returns an error if the
// placemark has no usable geometry; bad tuples within an otherwise good
// line are skipped with a warning, and a bad time or altitude only loses
// that field.
func (pm placemark) addTo(ds *geodata.Dataset, idx int) error {
	when := strings.TrimSpace(pm.TimeStamp.When)
	if when == "" {
		when = strings.TrimSpace(pm.TimeSpan.Begin)
	}
	ts, err := parseOptionalTime(when)
	if err != nil {
		ds.Warn(geodata.SkippedRecordWarning{Kind: "Placemark time", Index: idx, Err: err})
		ts = time.Time{}
	}
	badAltitude := func(err error) {
		ds.Warn(geodata.SkippedRecordWarning{Kind: "Placemark altitude", Index: idx, Err: err})
	}

	var added int

	if pm.Point != nil {
		p, err := pm.waypoint(*pm.Point, ts, badAltitude)
		if err != nil {
			return err
		}
		ds.Points = append(ds.Points, p)
		added++
	}

	var lines []coordinates
	if pm.LineString != nil {
		lines = append(lines, *pm.LineString)
	}
	var tracks []track
	if pm.Track != nil {
		tracks = append(tracks, *pm.Track)
	}
	if pm.MultiTrack != nil {
		tracks = append(tracks, pm.MultiTrack.Tracks...)
	}
	if mg := pm.MultiGeometry; mg != nil {
		// each Point of a MultiGeometry is a place of its own, not part of a line
		for _, pt := range mg.Points {
			p, err := pm.waypoint(pt, ts, badAltitude)
			if err != nil {
				ds.Warn(geodata.SkippedRecordWarning{Kind: "Placemark Point", Index: idx, Err: err})
				continue
			}
			ds.Points = append(ds.Points, p)
			added++
		}
		lines = append(lines, mg.LineStrings...)
		tracks = append(tracks, mg.Tracks...)
	}

	for _, line := range lines {
		tuples, err := parseCoordinates(line.Coordinates)
		if err != nil {
			ds.Warn(geodata.SkippedRecordWarning{Kind: "Placemark coordinates", Index: idx, Err: err})
			continue
		}
		for _, tuple := range tuples {
			p, err := tuple.point(geodata.Trackpoint, badAltitude)
			if err != nil {
				ds.Warn(geodata.SkippedRecordWarning{Kind: "Placemark coordinates", Index: idx, Err: err})
				continue
			}
			ds.Points = append(ds.Points, p)
			added++
		}
	}

	for _, tr := range tracks {
		n, err := tr.addTo(ds, idx)
		if err != nil {
			ds.Warn(geodata.SkippedRecordWarning{Kind: "gx:Track", Index: idx, Err: err})
		}
		added += n
	}

	if added == 0 {
		return errors.New("no usable geometry")
	}
	return nil
}

// waypoint makes a named waypoint of one Point geometry of the placemark.
func (pm placemark) waypoint(c coordinates, ts time.Time, badAltitude func(error)) (geodata.Point, error) {
	tuples, err := parseCoordinates(c.Coordinates)
	if err != nil {
		return geodata.Point{}, err
	}
	if len(tuples) != 1 {
		return geodata.Point{}, fmt.Errorf("point has %d coordinates", len(tuples))
	}
	p, err := tuples[0].point(geodata.Waypoint, badAltitude)
	if err != nil {
		return geodata.Point{}, err
	}
	p.Name = strings.TrimSpace(pm.Name)
	p.Address = firstNonEmpty(strings.TrimSpace(pm.Address), strings.TrimSpace(pm.Description))
	p.Timestamp = ts
	return p, nil
}

func (tr track) addTo(ds *geodata.Dataset, idx int) (int, error) {
	if len(tr.When) > 0 && len(tr.When) != len(tr.Coord) {
		return 0, fmt.Errorf("number of timestamps (%d) does not match number of coordinates (%d)", len(tr.When), len(tr.Coord))
	}
	var added int
	for i, coord := range tr.Coord {
		fields := strings.Fields(coord)
		if len(fields) < 2 {
			ds.Warn(geodata.SkippedRecordWarning{Kind: "gx:coord", Index: i, Err: fmt.Errorf("placemark %d: malformed coordinate %q", idx, coord)})
			continue
		}
		p, err := newTuple(fields).point(geodata.Trackpoint, func(err error) {
			ds.Warn(geodata.SkippedRecordWarning{Kind: "gx:coord altitude", Index: i, Err: fmt.Errorf("placemark %d: %w", idx, err)})
		})
		if err != nil {
			ds.Warn(geodata.SkippedRecordWarning{Kind: "gx:coord", Index: i, Err: fmt.Errorf("placemark %d: %w", idx, err)})
			continue
		}
		if len(tr.When) > 0 {
			ts, err := parseOptionalTime(strings.TrimSpace(tr.When[i]))
			if err != nil {
				ds.Warn(geodata.SkippedRecordWarning{Kind: "gx:when", Index: i, Err: fmt.Errorf("placemark %d: %w", idx, err)})
			} else {
				p.Timestamp = ts
			}
		}
		ds.Points = append(ds.Points, p)
		added++
	}
	return added, nil
}

// tuple is one KML coordinate; note the axis order: longitude first.
type tuple struct {
	lon, lat, alt string
}

func newTuple(fields []string) tuple {
	t := tuple{lon: fields[0], lat: fields[1]}
	if len(fields) > 2 {
		t.alt = fields[2]
	}
	return t
}

// point fails only on bad coordinates; a malformed altitude goes to
// badAltitude and is left unset.
func (t tuple) point(kind geodata.PointType, badAltitude func(error)) (geodata.Point, error) {
	ll, err := geodata.ParseLatLng(t.lat, t.lon)
	if err != nil {
		return geodata.Point{}, err
	}
	p, err := geodata.NewPoint(ll.Lat, ll.Lng, kind)
	if err != nil {
		return geodata.Point{}, err
	}
	if t.alt != "" {
		if alt, err := strconv.ParseFloat(t.alt, 64); err != nil {
			badAltitude(fmt.Errorf("bad altitude %q: %w", t.alt, err))
		} else {
			p.Altitude = &alt
		}
	}
	return p, nil
}

// parseCoordinates splits the text of a <coordinates> element, which is a
// whitespace-separated list of "lon,lat[,alt]" tuples.
func parseCoordinates(text string) ([]tuple, error) {
	var tuples []tuple
	for _, field := range strings.Fields(text) {
		parts := strings.Split(field, ",")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("malformed coordinate tuple %q", field)
		}
		tuples = append(tuples, newTuple(parts))
	}
	if len(tuples) == 0 {
		return nil, errors.New("no coordinates")
	}
	return tuples, nil
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return geodata.ParseTimestamp(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
