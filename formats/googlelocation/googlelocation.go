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

// Package googlelocation parses location history exported from Google
// (aka Google Maps Timeline): the Takeout files Records.json, Settings.json,
// Timeline Edits.json, and the monthly Semantic Location History files, as
// well as the newer on-device exports from iOS (2024) and Android (2025).
//
// I found this website very helpful as documentation of the Takeout format:
// https://locationhistoryformat.com/
package googlelocation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/timelinize/geoconvert/geodata"
	"go.uber.org/zap"
)

func init() {
	err := geodata.RegisterCodec(geodata.Codec{
		Format:      geodata.FormatGoogleTimeline,
		Title:       "Google Location History",
		Description: "A Google Takeout or on-device location history JSON file.",
		Extensions:  []string{".json"},
		Recognize:   recognize,
		Parse:       Parse,
	})
	if err != nil {
		geodata.Log.Fatal("registering codec", zap.Error(err))
	}
}

// Parse parses any of the supported Google location history variants.
func Parse(ctx context.Context, data []byte, opt geodata.ParseOptions) (*geodata.Dataset, error) {
	v := detectVariant(data)

	if opt.Log != nil {
		opt.Log.Debug("detected schema variant",
			zap.String("filename", opt.Filename),
			zap.Stringer("variant", v))
	}

	var p parser
	switch v {
	case variantSemantic:
		p = parseSemantic
	case variantRecords:
		p = parseRecords
	case variantTimelineEdits:
		p = parseTimelineEdits
	case variantSettings:
		p = parseSettings
	case variantiOS2024:
		p = parseOnDeviceiOS
	case variantAndroid2025:
		p = parseOnDeviceAndroid
	case variantUnknown:
		return nil, geodata.FormatError{
			Format: geodata.FormatGoogleTimeline,
			Msg:    "unrecognized schema variant",
		}
	default:
		return nil, fmt.Errorf("unhandled schema variant: %d", v)
	}

	ds := new(geodata.Dataset)
	if err := p(ctx, data, ds); err != nil {
		return nil, err
	}
	ds.SetMeta("Schema variant", v.String())

	return ds, nil
}

// parser fills ds from a file of one schema variant.
type parser func(ctx context.Context, data []byte, ds *geodata.Dataset) error

// decodeJSON decodes data into v, returning a FormatError on failure.
func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return geodata.FormatError{Format: geodata.FormatGoogleTimeline, Err: err}
	}
	return nil
}

// dropCounter tallies entries that had to be dropped, by kind, and
// reports them as warnings once parsing is done.
type dropCounter struct {
	order  []string
	counts map[string]int
}

func (d *dropCounter) add(kind string) {
	if d.counts == nil {
		d.counts = make(map[string]int)
	}
	if d.counts[kind] == 0 {
		d.order = append(d.order, kind)
	}
	d.counts[kind]++
}

func (d *dropCounter) report(ds *geodata.Dataset) {
	for _, kind := range d.order {
		ds.Warn(geodata.DroppedEntriesWarning{
			Kind:   kind,
			Count:  d.counts[kind],
			Reason: "no resolvable coordinates",
		})
	}
}

// checkCtx returns ctx's error every so often while iterating over a large
// file; i is the loop index.
func checkCtx(ctx context.Context, i int) error {
	const every = 1000
	if i%every == 0 {
		return ctx.Err()
	}
	return nil
}
