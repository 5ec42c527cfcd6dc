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

// Package nmea reads NMEA 0183 logs from GPS receivers and marine
// electronics.
//
// Here are some free reference manuals that have the most important information:
// - https://receiverhelp.trimble.com/alloy-gnss/en-us/NMEA-0183messages_MessageOverview.html
// - https://www.sparkfun.com/datasheets/GPS/NMEA%20Reference%20Manual-Rev2.1-Dec07.pdf
package nmea

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/timelinize/geoconvert/geodata"
	"go.uber.org/zap"
)

func init() {
	err := geodata.RegisterCodec(geodata.Codec{
		Format:      geodata.FormatNMEA,
		Title:       "NMEA-0183",
		Description: "A log of NMEA 0183 sentences from a GPS receiver, radio, or other marine electronics.",
		Extensions:  extensions,
		Recognize:   recognize,
		Parse:       Parse,
	})
	if err != nil {
		geodata.Log.Fatal("registering codec", zap.Error(err))
	}
}

var extensions = []string{".nmea", ".nme"}

func recognize(filename string, data []byte) geodata.Recognition {
	if geodata.HasExtension(filename, extensions) {
		return geodata.Recognition{Confidence: 1}
	}
	line := bytes.TrimSpace(data)
	if i := bytes.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	if len(line) > 6 && (line[0] == '$' || line[0] == '!') && bytes.IndexByte(line, '*') > 0 {
		if _, err := nmea.Parse(string(line)); err == nil {
			return geodata.Recognition{Confidence: 0.9}
		}
	}
	return geodata.Recognition{}
}

// Parse reads positions from RMC, GGA, and GLL sentences as trackpoints.
// GGA and GLL sentences have no date, so they take the date of the last
// RMC sentence; a GGA that repeats the fix of the preceding RMC adds its
// altitude to that point instead of making a new one. Anything else is
// counted and dropped, grouped by reason.
func Parse(ctx context.Context, data []byte, opt geodata.ParseOptions) (*geodata.Dataset, error) {
	d := &decoder{
		ds:      new(geodata.Dataset),
		refYear: time.Now().UTC().Year(),
		logger:  opt.Log,
		dropped: make(map[string]int),
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))

	// some receivers end lines with only \r
	scanner.Split(scanLines)

	for i := 0; scanner.Scan(); i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		d.sentence(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, geodata.FormatError{Format: geodata.FormatNMEA, Msg: "reading lines", Err: err}
	}

	if d.ds.Empty() && d.dropped[reasonUnparsable] > 0 && d.parsed == 0 {
		return nil, geodata.FormatError{Format: geodata.FormatNMEA, Msg: "no valid NMEA sentences"}
	}

	for _, reason := range []string{reasonNoFix, reasonNoDate, reasonNotPosition, reasonUnparsable} {
		if n := d.dropped[reason]; n > 0 {
			d.ds.Warn(geodata.DroppedEntriesWarning{Kind: "sentence", Count: n, Reason: reason})
		}
	}

	return d.ds, nil
}

const (
	reasonNoFix       = "no valid fix"
	reasonNoDate      = "no date received yet"
	reasonNotPosition = "not a position sentence"
	reasonUnparsable  = "not a valid sentence"
)

type decoder struct {
	ds      *geodata.Dataset
	refYear int
	logger  *zap.Logger

	// GGA and GLL sentences don't include the date
	lastDate nmea.Date

	// time of the fix of the most recent point
	lastTime nmea.Time

	parsed  int
	dropped map[string]int
}

func (d *decoder) sentence(line string) {
	sentence, err := nmea.Parse(line)
	if err != nil {
		d.dropped[reasonUnparsable]++
		if d.logger != nil {
			d.logger.Debug("unparsable line", zap.String("line", line), zap.Error(err))
		}
		return
	}
	d.parsed++

	switch s := sentence.(type) {
	case nmea.RMC:
		if s.Date.Valid {
			d.lastDate = s.Date
		}
		if s.Validity != nmea.ValidRMC {
			d.dropped[reasonNoFix]++
			return
		}
		d.add(s.Latitude, s.Longitude, nil, s.Date, s.Time)

	case nmea.GGA:
		if s.FixQuality == nmea.Invalid || s.FixQuality == "" {
			d.dropped[reasonNoFix]++
			return
		}
		alt := geodata.Float64(s.Altitude)
		if d.sameFix(s.Latitude, s.Longitude, s.Time) {
			last := &d.ds.Points[len(d.ds.Points)-1]
			last.Altitude = alt
			return
		}
		d.addUndated(s.Latitude, s.Longitude, alt, s.Time)

	case nmea.GLL:
		if s.Validity != nmea.ValidGLL {
			d.dropped[reasonNoFix]++
			return
		}
		if d.sameFix(s.Latitude, s.Longitude, s.Time) {
			return
		}
		d.addUndated(s.Latitude, s.Longitude, nil, s.Time)

	default:
		d.dropped[reasonNotPosition]++
	}
}

// addUndated adds a point from a sentence without a date, using the date
// of the last RMC sentence. If there hasn't been one, we don't know which
// day the time is on, so the point is dropped.
func (d *decoder) addUndated(lat, lng float64, alt *float64, t nmea.Time) {
	if !d.lastDate.Valid {
		d.dropped[reasonNoDate]++
		return
	}
	d.add(lat, lng, alt, d.lastDate, t)
}

func (d *decoder) add(lat, lng float64, alt *float64, date nmea.Date, t nmea.Time) {
	p, err := geodata.NewPoint(lat, lng, geodata.Trackpoint)
	if err != nil {
		d.ds.Warn(geodata.SkippedRecordWarning{Kind: "sentence", Index: d.parsed - 1, Err: fmt.Errorf("position: %w", err)})
		return
	}
	if date.Valid && t.Valid {
		p.Timestamp = nmea.DateTime(d.refYear, date, t)
	}
	p.Altitude = alt
	d.ds.Points = append(d.ds.Points, p)
	d.lastTime = t
}

// sameFix returns true if the most recent point is at the same time and
// place; receivers typically emit several sentences per fix.
func (d *decoder) sameFix(lat, lng float64, t nmea.Time) bool {
	if len(d.ds.Points) == 0 || !t.Valid || t != d.lastTime {
		return false
	}
	last := d.ds.Points[len(d.ds.Points)-1]
	return last.Lat == lat && last.Lng == lng
}

// scanLines splits on \n, \r\n, or a lone \r.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	i := bytes.IndexAny(data, "\r\n")
	switch {
	case i < 0 && atEOF:
		return len(data), data, nil
	case i < 0:
		return 0, nil, nil
	case data[i] == '\n':
		return i + 1, data[:i], nil
	case i+1 == len(data) && !atEOF:
		// need to see whether a \n follows
		return 0, nil, nil
	case i+1 < len(data) && data[i+1] == '\n':
		return i + 2, data[:i], nil
	}
	return i + 1, data[:i], nil
}
