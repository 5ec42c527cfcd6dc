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
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/timelinize/geoconvert/geodata"
)

// Serialize writes ds as a FeatureCollection: each point as a Point
// feature and each path as a LineString feature, with every other field
// in the feature's properties. The collection has a bbox and name,
// description, and generated members.
func Serialize(ctx context.Context, ds *geodata.Dataset, opt geodata.SerializeOptions) ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	var (
		bound    orb.Bound
		hasBound bool
	)
	extend := func(p orb.Point) {
		if !hasBound {
			bound, hasBound = p.Bound(), true
			return
		}
		bound = bound.Extend(p)
	}

	for i, p := range ds.Points {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		pt := orb.Point{p.Lng, p.Lat}
		extend(pt)
		f := geojson.NewFeature(pt)
		setPointProperties(f.Properties, p)
		fc.Append(f)
	}

	for _, path := range ds.Paths {
		line := make(orb.LineString, 0, len(path.Coordinates))
		for _, c := range path.Coordinates {
			pt := orb.Point{c.Lng, c.Lat}
			extend(pt)
			line = append(line, pt)
		}
		f := geojson.NewFeature(line)
		setPathProperties(f.Properties, path)
		fc.Append(f)
	}

	if hasBound {
		fc.BBox = geojson.NewBBox(bound)
	}

	fc.ExtraMembers = geojson.Properties{
		"generated": geodata.FormatTimestamp(opt.GeneratedAt),
	}
	if opt.Name != "" {
		fc.ExtraMembers["name"] = opt.Name
	}
	if opt.Description != "" {
		fc.ExtraMembers["description"] = opt.Description
	}

	compact, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding GeoJSON: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("indenting GeoJSON: %w", err)
	}
	out.WriteByte('\n')

	return out.Bytes(), nil
}

func setPointProperties(props geojson.Properties, p geodata.Point) {
	props[propType] = p.Type.String()
	setString(props, propID, p.ID)
	setString(props, propName, p.Name)
	setString(props, propAddress, p.Address)
	setString(props, propActivityType, p.ActivityType)
	setString(props, propConfidence, p.Confidence)
	setString(props, propTimestamp, geodata.FormatTimestamp(p.Timestamp))
	setNumber(props, propAltitude, p.Altitude)
	setNumber(props, propAccuracy, p.Accuracy)
}

func setPathProperties(props geojson.Properties, path geodata.Path) {
	props[propType] = "path"
	setString(props, propID, path.ID)
	setString(props, propActivityType, path.ActivityType)
	setString(props, propStartTime, geodata.FormatTimestamp(path.StartTimestamp))
	setString(props, propEndTime, geodata.FormatTimestamp(path.EndTimestamp))
	setNumber(props, propDistance, path.DistanceMeters)
}

func setString(props geojson.Properties, key, val string) {
	if val != "" {
		props[key] = val
	}
}

func setNumber(props geojson.Properties, key string, val *float64) {
	if val != nil {
		props[key] = *val
	}
}
