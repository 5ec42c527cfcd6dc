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

package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/timelinize/geoconvert/geodata"
)

// Serialize writes a header row, then one row per point, then one row
// per path coordinate. Path rows have type trackpoint; the first and
// last coordinate of each path carry its start and end times. Fields
// containing a comma, quote, or newline are quoted.
func Serialize(ctx context.Context, ds *geodata.Dataset, _ geodata.SerializeOptions) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, err
	}

	for i, p := range ds.Points {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		err := w.Write([]string{
			formatFloat(p.Lat),
			formatFloat(p.Lng),
			geodata.FormatTimestamp(p.Timestamp),
			p.Type.String(),
			p.Name,
			p.Address,
			p.ActivityType,
			formatOptionalFloat(p.Altitude),
			formatOptionalFloat(p.Accuracy),
		})
		if err != nil {
			return nil, err
		}
	}

	trackpoint := geodata.Trackpoint.String()
	for _, path := range ds.Paths {
		for _, m := range geodata.PathMarks(path) {
			err := w.Write([]string{
				formatFloat(m.Lat),
				formatFloat(m.Lng),
				geodata.FormatTimestamp(m.Time),
				trackpoint,
				"",
				"",
				m.ActivityType,
				"",
				"",
			})
			if err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("writing CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
