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

// Package csv reads and writes location points as comma-separated values
// with one row per point.
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
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
		Format:      geodata.FormatCSV,
		Title:       "CSV",
		Description: "Comma-separated values with one row per point and a header row naming the columns.",
		Extensions:  []string{".csv"},
		MIMEType:    "text/csv",
		Recognize:   recognize,
		Parse:       Parse,
		Serialize:   Serialize,
	})
	if err != nil {
		geodata.Log.Fatal("registering codec", zap.Error(err))
	}
}

// Columns written by Serialize, in order.
const (
	colLatitude     = "latitude"
	colLongitude    = "longitude"
	colTimestamp    = "timestamp"
	colType         = "type"
	colName         = "name"
	colAddress      = "address"
	colActivityType = "activity_type"
	colAltitude     = "altitude"
	colAccuracy     = "accuracy"
)

var header = []string{
	colLatitude,
	colLongitude,
	colTimestamp,
	colType,
	colName,
	colAddress,
	colActivityType,
	colAltitude,
	colAccuracy,
}

// alternative header names accepted when reading
var columnAliases = map[string]string{
	"lat":       colLatitude,
	"lng":       colLongitude,
	"lon":       colLongitude,
	"long":      colLongitude,
	"time":      colTimestamp,
	"date_time": colTimestamp,
	"datetime":  colTimestamp,
	"elevation": colAltitude,
	"ele":       colAltitude,
}

func recognize(filename string, data []byte) geodata.Recognition {
	r := csv.NewReader(bytes.NewReader(data))
	row, err := r.Read()
	if err != nil {
		return geodata.Recognition{} // most likely a syntax error, nbd
	}
	cols := columnMapping(row)
	if _, ok := cols[colLatitude]; !ok {
		return geodata.Recognition{}
	}
	if _, ok := cols[colLongitude]; !ok {
		return geodata.Recognition{}
	}
	if geodata.HasExtension(filename, []string{".csv"}) {
		return geodata.Recognition{Confidence: 1}
	}
	return geodata.Recognition{Confidence: 0.8}
}

// columnMapping maps canonical column names to their index in the header
// row. Header names are case-insensitive and may use aliases.
func columnMapping(headerRow []string) map[string]int {
	cols := make(map[string]int)
	for i, name := range headerRow {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		name = strings.ReplaceAll(name, " ", "_")
		if canonical, ok := columnAliases[name]; ok {
			name = canonical
		}
		if _, seen := cols[name]; !seen {
			cols[name] = i
		}
	}
	return cols
}

// Parse reads one point per row. The header row must name latitude and
// longitude columns; other columns are optional. A row that can't be
// read is skipped with a warning.
func Parse(ctx context.Context, data []byte, _ geodata.ParseOptions) (*geodata.Dataset, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true // with this enabled, DO NOT MODIFY THE SLICE RETURNED FROM Read()

	headerRow, err := r.Read()
	if err != nil {
		return nil, geodata.FormatError{Format: geodata.FormatCSV, Msg: "reading header row", Err: err}
	}
	cols := columnMapping(headerRow)
	for _, required := range []string{colLatitude, colLongitude} {
		if _, ok := cols[required]; !ok {
			return nil, geodata.FormatError{Format: geodata.FormatCSV, Msg: "header row has no " + required + " column"}
		}
	}

	ds := new(geodata.Dataset)

	for i := 0; ; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// the reader resumes at the next line
			ds.Warn(geodata.SkippedRecordWarning{Kind: "row", Index: i, Err: err})
			continue
		}

		p, err := rowToPoint(row, cols)
		if err != nil {
			ds.Warn(geodata.SkippedRecordWarning{Kind: "row", Index: i, Err: err})
			continue
		}
		ds.Points = append(ds.Points, p)
	}

	return ds, nil
}

func rowToPoint(row []string, cols map[string]int) (geodata.Point, error) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	ll, err := geodata.ParseLatLng(field(colLatitude), field(colLongitude))
	if err != nil {
		return geodata.Point{}, err
	}

	pt := geodata.Trackpoint
	if typ := field(colType); typ != "" {
		pt, err = geodata.ParsePointType(typ)
		if err != nil {
			return geodata.Point{}, err
		}
	}

	p, err := geodata.NewPoint(ll.Lat, ll.Lng, pt)
	if err != nil {
		return geodata.Point{}, err
	}

	if ts := field(colTimestamp); ts != "" {
		p.Timestamp, err = geodata.ParseTimestamp(ts)
		if err != nil {
			return geodata.Point{}, err
		}
	}
	p.Name = field(colName)
	p.Address = field(colAddress)
	p.ActivityType = field(colActivityType)
	if p.Altitude, err = optionalFloat(field(colAltitude)); err != nil {
		return geodata.Point{}, fmt.Errorf("altitude: %w", err)
	}
	if p.Accuracy, err = optionalFloat(field(colAccuracy)); err != nil {
		return geodata.Point{}, fmt.Errorf("accuracy: %w", err)
	}

	return p, nil
}

func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
