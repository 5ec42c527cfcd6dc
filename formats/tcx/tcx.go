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

// Package tcx reads Garmin Training Center XML files: activities (with
// laps and tracks) and courses (with course points).
package tcx

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/timelinize/geoconvert/geodata"
	"go.uber.org/zap"
)

func init() {
	err := geodata.RegisterCodec(geodata.Codec{
		Format:      geodata.FormatTCX,
		Title:       "Training Center XML",
		Description: "A Garmin .tcx activity or course file.",
		Extensions:  []string{".tcx"},
		Recognize:   recognize,
		Parse:       Parse,
	})
	if err != nil {
		geodata.Log.Fatal("registering codec", zap.Error(err))
	}
}

const rootElement = "TrainingCenterDatabase"

func recognize(filename string, data []byte) geodata.Recognition {
	if geodata.XMLRootElement(data) != rootElement {
		return geodata.Recognition{}
	}
	if geodata.HasExtension(filename, []string{".tcx"}) {
		return geodata.Recognition{Confidence: 1}
	}
	return geodata.Recognition{Confidence: 0.9}
}

// Parse reads the trackpoints of every activity and course, and course
// points as waypoints. Lap totals are summed into metadata.
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
			d.finish()
			return d.ds, nil
		}
		return nil, err
	}
	d.finish()

	return d.ds, nil
}

type decoder struct {
	*xml.Decoder
	stack   geodata.XMLNesting
	ds      *geodata.Dataset
	sawRoot bool

	sport string // Sport attribute of the current Activity

	trackpoints, coursePoints int
	noPosition                int

	laps          int
	totalDistance float64
	totalSeconds  float64
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
			return geodata.FormatError{Format: geodata.FormatTCX, Msg: "decoding next XML token", Err: err}
		}

		switch elem := tkn.(type) {
		case xml.StartElement:
			if !d.sawRoot {
				if elem.Name.Local != rootElement {
					return geodata.FormatError{Format: geodata.FormatTCX, Msg: "root element is " + elem.Name.Local}
				}
				d.sawRoot = true
			}
			handled, err := d.startElement(elem)
			if err != nil {
				return err
			}
			if !handled {
				d.stack.Push(elem)
			}

		case xml.EndElement:
			if !d.stack.Pop() {
				return geodata.FormatError{Format: geodata.FormatTCX, Msg: "encountered end tag without opening: " + elem.Name.Local}
			}
			if elem.Name.Local == "Activity" {
				d.sport = ""
			}
		}
	}

	if !d.sawRoot {
		return geodata.FormatError{Format: geodata.FormatTCX, Msg: "no " + rootElement + " element"}
	}
	return nil
}

func (d *decoder) startElement(elem xml.StartElement) (bool, error) {
	where := d.stack.Path()
	name := elem.Name.Local

	switch {
	case name == "Activity":
		for _, attr := range elem.Attr {
			if attr.Name.Local == "Sport" {
				d.sport = attr.Value
				d.ds.SetMeta(geodata.MetaSport, attr.Value)
			}
		}
		return false, nil

	case name == "Trackpoint" && strings.HasSuffix(where, "/Track"):
		var tp trackpoint
		if err := d.DecodeElement(&tp, &elem); err != nil {
			return true, geodata.FormatError{Format: geodata.FormatTCX, Msg: "decoding Trackpoint", Err: err}
		}
		idx := d.trackpoints
		d.trackpoints++
		if tp.Position == nil {
			d.noPosition++
			return true, nil
		}
		p, err := tp.toPoint(geodata.Trackpoint, func(field string, err error) {
			d.ds.Warn(geodata.SkippedRecordWarning{Kind: "Trackpoint " + field, Index: idx, Err: err})
		})
		if err != nil {
			d.ds.Warn(geodata.SkippedRecordWarning{Kind: "Trackpoint", Index: idx, Err: err})
			return true, nil
		}
		p.ActivityType = d.sport
		d.ds.Points = append(d.ds.Points, p)
		return true, nil

	case name == "CoursePoint" && strings.HasSuffix(where, "/Course"):
		var cp trackpoint
		if err := d.DecodeElement(&cp, &elem); err != nil {
			return true, geodata.FormatError{Format: geodata.FormatTCX, Msg: "decoding CoursePoint", Err: err}
		}
		idx := d.coursePoints
		d.coursePoints++
		if cp.Position == nil {
			d.ds.Warn(geodata.SkippedRecordWarning{Kind: "CoursePoint", Index: idx, Err: errors.New("no position")})
			return true, nil
		}
		p, err := cp.toPoint(geodata.Waypoint, func(field string, err error) {
			d.ds.Warn(geodata.SkippedRecordWarning{Kind: "CoursePoint " + field, Index: idx, Err: err})
		})
		if err != nil {
			d.ds.Warn(geodata.SkippedRecordWarning{Kind: "CoursePoint", Index: idx, Err: err})
			return true, nil
		}
		p.Name = strings.TrimSpace(cp.Name)
		p.Address = strings.TrimSpace(cp.Notes)
		d.ds.Points = append(d.ds.Points, p)
		return true, nil

	case name == "Name" && strings.HasSuffix(where, "/Course"):
		var text string
		if err := d.DecodeElement(&text, &elem); err != nil {
			return true, geodata.FormatError{Format: geodata.FormatTCX, Msg: "decoding course name", Err: err}
		}
		if text = strings.TrimSpace(text); text != "" {
			d.ds.SetMeta("Name", text)
		}
		return true, nil

	case name == "Lap":
		d.laps++
		return false, nil

	case strings.HasSuffix(where, "/Lap") && (name == "DistanceMeters" || name == "TotalTimeSeconds"):
		var text string
		if err := d.DecodeElement(&text, &elem); err != nil {
			return true, geodata.FormatError{Format: geodata.FormatTCX, Msg: "decoding lap " + name, Err: err}
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			d.ds.Warn(geodata.SkippedRecordWarning{Kind: "Lap " + name, Index: d.laps - 1, Err: err})
			return true, nil
		}
		if name == "DistanceMeters" {
			d.totalDistance += v
		} else {
			d.totalSeconds += v
		}
		return true, nil
	}

	return false, nil
}

// finish records lap totals and the count of position-less trackpoints.
func (d *decoder) finish() {
	if d.laps > 0 {
		d.ds.SetMeta("Laps", d.laps)
		d.ds.SetMeta("Total distance (m)", d.totalDistance)
		d.ds.SetMeta("Total time (s)", d.totalSeconds)
	}
	if d.noPosition > 0 {
		d.ds.Warn(geodata.DroppedEntriesWarning{
			Kind:   "trackpoint",
			Count:  d.noPosition,
			Reason: "no position (e.g. indoor or paused recording)",
		})
	}
}

// trackpoint is a Trackpoint or CoursePoint; they share these fields.
type trackpoint struct {
	Time     string `xml:"Time"`
	Position *struct {
		LatitudeDegrees  string `xml:"LatitudeDegrees"`
		LongitudeDegrees string `xml:"LongitudeDegrees"`
	} `xml:"Position"`
	AltitudeMeters string `xml:"AltitudeMeters"`
	Name           string `xml:"Name"`
	Notes          string `xml:"Notes"`
}

// toPoint fails only on bad coordinates; a malformed altitude or time is
// reported to badField and left unset.
func (tp trackpoint) toPoint(kind geodata.PointType, badField func(field string, err error)) (geodata.Point, error) {
	ll, err := geodata.ParseLatLng(tp.Position.LatitudeDegrees, tp.Position.LongitudeDegrees)
	if err != nil {
		return geodata.Point{}, err
	}
	p, err := geodata.NewPoint(ll.Lat, ll.Lng, kind)
	if err != nil {
		return geodata.Point{}, err
	}
	if alt := strings.TrimSpace(tp.AltitudeMeters); alt != "" {
		if v, err := strconv.ParseFloat(alt, 64); err != nil {
			badField("AltitudeMeters", fmt.Errorf("bad altitude %q: %w", alt, err))
		} else {
			p.Altitude = &v
		}
	}
	if ts := strings.TrimSpace(tp.Time); ts != "" {
		if t, err := geodata.ParseTimestamp(ts); err != nil {
			badField("Time", err)
		} else {
			p.Timestamp = t
		}
	}
	return p, nil
}
