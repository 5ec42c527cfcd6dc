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

// Package gpx reads and writes GPS Exchange Format (https://en.wikipedia.org/wiki/GPS_Exchange_Format).
package gpx

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
		Format:      geodata.FormatGPX,
		Title:       "GPS Exchange",
		Description: "A .gpx file containing waypoints, routes, or tracks.",
		Extensions:  []string{".gpx"},
		MIMEType:    "application/gpx+xml",
		Recognize:   recognize,
		Parse:       Parse,
		Serialize:   Serialize,
	})
	if err != nil {
		geodata.Log.Fatal("registering codec", zap.Error(err))
	}
}

func recognize(filename string, data []byte) geodata.Recognition {
	if geodata.XMLRootElement(data) != "gpx" {
		return geodata.Recognition{}
	}
	if geodata.HasExtension(filename, []string{".gpx"}) {
		return geodata.Recognition{Confidence: 1}
	}
	return geodata.Recognition{Confidence: 0.9}
}

// Parse reads waypoints (as waypoint points), and track and route points
// (as trackpoints) from a GPX 1.0 or 1.1 document. A record with bad
// coordinates is skipped with a warning; a bad elevation or time only
// loses that field.
func Parse(ctx context.Context, data []byte, opt geodata.ParseOptions) (*geodata.Dataset, error) {
	d := &decoder{
		Decoder: geodata.NewXMLDecoder(data),
		ds:      new(geodata.Dataset),
		counts:  make(map[string]int),
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

// decoder wraps the XML decoder to get the points from the document.
// It tracks nesting state so we can be sure we're in the right part of the tree.
type decoder struct {
	*xml.Decoder
	stack geodata.XMLNesting
	ds    *geodata.Dataset

	// zero-based index of the next record of each kind, for warnings
	counts map[string]int

	// <type> of the current <trk> or <rte>, if any
	activityType string
	sawRoot      bool
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
			return geodata.FormatError{Format: geodata.FormatGPX, Msg: "decoding next XML token", Err: err}
		}

		switch elem := tkn.(type) {
		case xml.StartElement:
			if !d.sawRoot {
				if elem.Name.Local != "gpx" {
					return geodata.FormatError{Format: geodata.FormatGPX, Msg: "root element is " + elem.Name.Local}
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
				return geodata.FormatError{Format: geodata.FormatGPX, Msg: "encountered end tag without opening: " + elem.Name.Local}
			}
			if elem.Name.Local == "trk" || elem.Name.Local == "rte" {
				d.activityType = ""
			}
		}
	}

	if !d.sawRoot {
		return geodata.FormatError{Format: geodata.FormatGPX, Msg: "no gpx element"}
	}
	return nil
}

// startElement handles elem if it is one we care about, in which case the
// entire element is consumed and handled is true.
func (d *decoder) startElement(elem xml.StartElement) (handled bool, err error) {
	where := d.stack.Path()
	name := elem.Name.Local

	switch {
	case where == "gpx" && name == "metadata":
		var meta metadata
		if err := d.DecodeElement(&meta, &elem); err != nil {
			return true, geodata.FormatError{Format: geodata.FormatGPX, Msg: "decoding metadata", Err: err}
		}
		d.setMeta(meta.Name, meta.Desc, meta.Time)
		return true, nil

	// GPX 1.0 puts these directly in the root
	case where == "gpx" && (name == "name" || name == "desc" || name == "time"):
		var text string
		if err := d.DecodeElement(&text, &elem); err != nil {
			return true, geodata.FormatError{Format: geodata.FormatGPX, Msg: "decoding " + name, Err: err}
		}
		switch name {
		case "name":
			d.setMeta(text, "", "")
		case "desc":
			d.setMeta("", text, "")
		case "time":
			d.setMeta("", "", text)
		}
		return true, nil

	case (where == "gpx/trk" || where == "gpx/rte") && name == "type":
		var text string
		if err := d.DecodeElement(&text, &elem); err != nil {
			return true, geodata.FormatError{Format: geodata.FormatGPX, Msg: "decoding type", Err: err}
		}
		d.activityType = strings.TrimSpace(text)
		return true, nil

	case where == "gpx" && name == "wpt",
		where == "gpx/trk/trkseg" && name == "trkpt",
		where == "gpx/rte" && name == "rtept":
		var pt point
		if err := d.DecodeElement(&pt, &elem); err != nil {
			return true, geodata.FormatError{Format: geodata.FormatGPX, Msg: "decoding " + name, Err: err}
		}
		idx := d.counts[name]
		d.counts[name]++

		p, err := pt.toPoint(name == "wpt", func(field string, err error) {
			d.ds.Warn(geodata.SkippedRecordWarning{Kind: name + " " + field, Index: idx, Err: err})
		})
		if err != nil {
			d.ds.Warn(geodata.SkippedRecordWarning{Kind: name, Index: idx, Err: err})
			return true, nil
		}
		if name != "wpt" {
			p.ActivityType = d.activityType
		}
		d.ds.Points = append(d.ds.Points, p)
		return true, nil
	}

	return false, nil
}

func (d *decoder) setMeta(name, desc, ts string) {
	if name = strings.TrimSpace(name); name != "" {
		d.ds.SetMeta("Name", name)
	}
	if desc = strings.TrimSpace(desc); desc != "" {
		d.ds.SetMeta("Description", desc)
	}
	if t, err := geodata.ParseTimestamp(strings.TrimSpace(ts)); err == nil {
		d.ds.SetMeta("Time", t)
	}
}

type metadata struct {
	Name string `xml:"name"`
	Desc string `xml:"desc"`
	Time string `xml:"time"`
}

// point is a wpt, trkpt, or rtept. Everything is decoded as strings so
// that one bad value can be reported without failing the whole document.
type point struct {
	Lat  string `xml:"lat,attr"`
	Lon  string `xml:"lon,attr"`
	Ele  string `xml:"ele"`
	Time string `xml:"time"`
	Name string `xml:"name"`
	Desc string `xml:"desc"`
	Type string `xml:"type"`
}

// toPoint fails only if the coordinates are bad. A malformed ele or time
// is left unset and passed to badField.
func (pt point) toPoint(waypoint bool, badField func(field string, err error)) (geodata.Point, error) {
	ll, err := geodata.ParseLatLng(pt.Lat, pt.Lon)
	if err != nil {
		return geodata.Point{}, err
	}
	kind := geodata.Trackpoint
	if waypoint {
		kind = geodata.Waypoint
	}
	p, err := geodata.NewPoint(ll.Lat, ll.Lng, kind)
	if err != nil {
		return geodata.Point{}, err
	}

	if ele := strings.TrimSpace(pt.Ele); ele != "" {
		if alt, err := strconv.ParseFloat(ele, 64); err != nil {
			badField("ele", fmt.Errorf("bad elevation %q: %w", ele, err))
		} else {
			p.Altitude = &alt
		}
	}
	if ts := strings.TrimSpace(pt.Time); ts != "" {
		if t, err := geodata.ParseTimestamp(ts); err != nil {
			badField("time", err)
		} else {
			p.Timestamp = t
		}
	}
	p.Name = strings.TrimSpace(pt.Name)
	p.Address = strings.TrimSpace(pt.Desc)
	if waypoint {
		p.ActivityType = strings.TrimSpace(pt.Type)
	}

	return p, nil
}
