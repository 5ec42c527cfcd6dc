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

// Package geojson reads and writes GeoJSON (RFC 7946): https://geojson.org/
package geojson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/tidwall/gjson"
	"github.com/timelinize/geoconvert/geodata"
	"go.uber.org/zap"
)

func init() {
	err := geodata.RegisterCodec(geodata.Codec{
		Format:      geodata.FormatGeoJSON,
		Title:       "GeoJSON",
		Description: "A GeoJSON FeatureCollection, Feature, or geometry of points and lines.",
		Extensions:  []string{".geojson"},
		MIMEType:    "application/geo+json",
		Recognize:   recognize,
		Parse:       Parse,
		Serialize:   Serialize,
	})
	if err != nil {
		geodata.Log.Fatal("registering codec", zap.Error(err))
	}
}

func recognize(filename string, data []byte) geodata.Recognition {
	if !geodata.LooksLikeJSON(data) {
		return geodata.Recognition{}
	}
	if geodata.HasExtension(filename, []string{".geojson"}) {
		return geodata.Recognition{Confidence: 1}
	}
	switch gjson.GetBytes(data, "type").String() {
	case "FeatureCollection", "Feature":
		return geodata.Recognition{Confidence: 0.9}
	case "Point", "MultiPoint", "LineString", "MultiLineString":
		return geodata.Recognition{Confidence: 0.7}
	}
	return geodata.Recognition{}
}

// Parse reads Point and MultiPoint geometries as points, and LineString
// and MultiLineString geometries as paths. Each feature is independent:
// one that can't be read is skipped with a warning. Other geometry types
// (polygons, collections) are counted and dropped.
//
// With opt.Lenient, a position's third and fourth elements may be
// interpreted as a Unix timestamp or altitude depending on magnitude,
// and a truncated document yields the features read so far.
func Parse(ctx context.Context, data []byte, opt geodata.ParseOptions) (*geodata.Dataset, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	p := &parser{ds: new(geodata.Dataset), lenient: opt.Lenient, dropped: make(map[string]int)}

	var err error
	switch typ := gjson.GetBytes(data, "type").String(); typ {
	case "FeatureCollection":
		err = p.collection(ctx, data)
	case "Feature":
		var f feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, geodata.FormatError{Format: geodata.FormatGeoJSON, Msg: "invalid Feature", Err: err}
		}
		p.feature(f, 0)
	case "Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon", "GeometryCollection":
		var f feature
		if err := json.Unmarshal(data, &f.Geometry); err != nil {
			return nil, geodata.FormatError{Format: geodata.FormatGeoJSON, Msg: "invalid geometry", Err: err}
		}
		p.feature(f, 0)
	case "":
		return nil, geodata.FormatError{Format: geodata.FormatGeoJSON, Msg: "not a GeoJSON object (no type member)"}
	default:
		return nil, geodata.FormatError{Format: geodata.FormatGeoJSON, Msg: fmt.Sprintf("unknown GeoJSON type %q", typ)}
	}
	if err != nil {
		var syntaxErr *json.SyntaxError
		truncated := errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &syntaxErr)
		if opt.Lenient && truncated && !p.ds.Empty() {
			p.ds.Warn(fmt.Errorf("stopped reading at malformed JSON: %w", err))
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		} else {
			return nil, geodata.FormatError{Format: geodata.FormatGeoJSON, Err: err}
		}
	}

	for _, typ := range slices.Sorted(maps.Keys(p.dropped)) {
		p.ds.Warn(geodata.DroppedEntriesWarning{
			Kind:   "feature",
			Count:  p.dropped[typ],
			Reason: "unsupported geometry type " + typ,
		})
	}

	return p.ds, nil
}

// collection decodes the features of a FeatureCollection one at a time
// without loading the whole document into structures. Members of the
// collection that are not features (name, bbox, etc.) are skipped,
// except name and description which go to metadata.
func (p *parser) collection(ctx context.Context, data []byte) error {
	if name := gjson.GetBytes(data, "name"); name.Type == gjson.String {
		p.ds.SetMeta("Name", name.String())
	}
	if desc := gjson.GetBytes(data, "description"); desc.Type == gjson.String {
		p.ds.SetMeta("Description", desc.String())
	}

	dec := json.NewDecoder(bytes.NewReader(data))

	// find the features array
	for depth := 0; ; {
		tkn, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decoding next JSON token: %w", err)
		}
		switch v := tkn.(type) {
		case json.Delim:
			if v == '{' || v == '[' {
				depth++
			} else {
				depth--
			}
			continue
		case string:
			if depth != 1 || v != "features" {
				continue
			}
		default:
			continue
		}

		tkn, err = dec.Token()
		if err != nil {
			return fmt.Errorf("decoding token after features key: %w", err)
		}
		if delim, ok := tkn.(json.Delim); !ok || delim != '[' {
			return fmt.Errorf("features member is not an array")
		}
		break
	}

	for i := 0; dec.More(); i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decoding feature %d: %w", i, err)
		}
		var f feature
		if err := json.Unmarshal(raw, &f); err != nil {
			p.ds.Warn(geodata.SkippedRecordWarning{Kind: "feature", Index: i, Err: err})
			continue
		}
		p.feature(f, i)
	}

	return nil
}

type parser struct {
	ds      *geodata.Dataset
	lenient bool
	dropped map[string]int
}

// feature adds the points or paths of one feature. Problems with it are
// reported as a SkippedRecordWarning and nothing from it is added.
func (p *parser) feature(f feature, idx int) {
	skip := func(err error) {
		p.ds.Warn(geodata.SkippedRecordWarning{Kind: "feature", Index: idx, Err: err})
	}

	props := f.knownProperties()
	geom := f.Geometry

	switch geom.Type {
	case "Point":
		var pos position
		if err := json.Unmarshal(geom.Coordinates, &pos); err != nil {
			skip(fmt.Errorf("invalid Point coordinates: %w", err))
			return
		}
		pt, err := props.point(pos, p.lenient, geodata.Waypoint)
		if err != nil {
			skip(err)
			return
		}
		p.ds.Points = append(p.ds.Points, pt)

	case "MultiPoint":
		var positions []position
		if err := json.Unmarshal(geom.Coordinates, &positions); err != nil {
			skip(fmt.Errorf("invalid MultiPoint coordinates: %w", err))
			return
		}
		points := make([]geodata.Point, 0, len(positions))
		for i, pos := range positions {
			pt, err := props.point(pos, p.lenient, geodata.Trackpoint)
			if err != nil {
				skip(fmt.Errorf("position %d: %w", i, err))
				return
			}
			points = append(points, pt)
		}
		p.ds.Points = append(p.ds.Points, points...)

	case "LineString":
		var positions []position
		if err := json.Unmarshal(geom.Coordinates, &positions); err != nil {
			skip(fmt.Errorf("invalid LineString coordinates: %w", err))
			return
		}
		path, err := props.path(positions)
		if err != nil {
			skip(err)
			return
		}
		p.ds.Paths = append(p.ds.Paths, path)

	case "MultiLineString":
		var lines [][]position
		if err := json.Unmarshal(geom.Coordinates, &lines); err != nil {
			skip(fmt.Errorf("invalid MultiLineString coordinates: %w", err))
			return
		}
		paths := make([]geodata.Path, 0, len(lines))
		for i, line := range lines {
			path, err := props.path(line)
			if err != nil {
				skip(fmt.Errorf("line %d: %w", i, err))
				return
			}
			if len(lines) > 1 && path.ID != "" {
				path.ID = fmt.Sprintf("%s-%d", path.ID, i+1)
			}
			paths = append(paths, path)
		}
		p.ds.Paths = append(p.ds.Paths, paths...)

	case "":
		skip(errors.New("feature has no geometry"))

	default:
		p.dropped[geom.Type]++
	}
}
