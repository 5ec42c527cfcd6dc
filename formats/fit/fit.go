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

// Package fit decodes Garmin FIT activity files and writes FIT course files.
package fit

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/basetype"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"
	"github.com/timelinize/geoconvert/geodata"
	"go.uber.org/zap"
)

func init() {
	err := geodata.RegisterCodec(geodata.Codec{
		Format:      geodata.FormatFIT,
		Title:       "Flexible and Interoperable Data Transfer (FIT)",
		Description: "A binary .fit activity file from a GPS watch or bike computer; written as a course file.",
		Extensions:  []string{".fit"},
		MIMEType:    "application/vnd.ant.fit",
		Recognize:   recognize,
		Parse:       Parse,
		Serialize:   Serialize,
	})
	if err != nil {
		geodata.Log.Fatal("registering codec", zap.Error(err))
	}
}

// The header is 12 or 14 bytes; bytes 8-11 are always ".FIT".
const minHeaderSize = 12

func hasFITSignature(data []byte) bool {
	return len(data) >= minHeaderSize && string(data[8:12]) == ".FIT"
}

func recognize(_ string, data []byte) geodata.Recognition {
	if hasFITSignature(data) {
		return geodata.Recognition{Confidence: 1}
	}
	return geodata.Recognition{}
}

// Decode decodes every FIT file in data (FIT files may be chained). If the
// checksum doesn't match, it is decoded again without verifying checksums
// (relying on the record length fields alone) and a ChecksumWarning is
// returned along with the messages.
func Decode(ctx context.Context, data []byte) ([]*proto.FIT, *geodata.ChecksumWarning, error) {
	if !hasFITSignature(data) {
		return nil, nil, geodata.FormatError{Format: geodata.FormatFIT, Msg: "missing .FIT signature in header"}
	}

	fits, err := decodeAll(ctx, data)
	if errors.Is(err, decoder.ErrCRCChecksumMismatch) {
		warning := &geodata.ChecksumWarning{Err: err}
		fits, err = decodeAll(ctx, data, decoder.WithIgnoreChecksum())
		if err != nil {
			return nil, warning, geodata.FormatError{Format: geodata.FormatFIT, Err: err}
		}
		return fits, warning, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, geodata.FormatError{Format: geodata.FormatFIT, Err: err}
	}

	return fits, nil, nil
}

func decodeAll(ctx context.Context, data []byte, opts ...decoder.Option) ([]*proto.FIT, error) {
	dec := decoder.New(bytes.NewReader(data), opts...)
	var fits []*proto.FIT
	for dec.Next() {
		fit, err := dec.DecodeWithContext(ctx)
		if err != nil {
			return nil, err
		}
		fits = append(fits, fit)
	}
	if len(fits) == 0 {
		return nil, errors.New("no FIT data")
	}
	return fits, nil
}

// Parse turns record messages into trackpoints, course points into
// waypoints, and session, lap, and file_id messages into metadata.
func Parse(ctx context.Context, data []byte, opt geodata.ParseOptions) (*geodata.Dataset, error) {
	fits, warning, err := Decode(ctx, data)
	if err != nil {
		return nil, err
	}

	ds := new(geodata.Dataset)
	if warning != nil {
		ds.Warn(*warning)
	}

	m := &mapper{ds: ds, skipped: make(map[typedef.MesgNum]int)}
	m.sport = sessionSport(fits)
	for _, fit := range fits {
		for i := range fit.Messages {
			m.message(&fit.Messages[i])
		}
	}
	m.finish()

	if opt.Log != nil && len(m.skipped) > 0 {
		opt.Log.Debug("skipped messages of unused types",
			zap.String("filename", opt.Filename),
			zap.Int("message_types", len(m.skipped)))
	}

	return ds, nil
}

// mapper maps decoded messages into a dataset.
type mapper struct {
	ds *geodata.Dataset

	sport      string
	noPosition int
	laps       int
	coursePts  int
	skipped    map[typedef.MesgNum]int

	// lap sums stand in for session totals; some devices only write laps
	lapDistance, lapElapsed        uint64
	lapsWithDistance, lapsWithTime int
}

func (m *mapper) message(mesg *proto.Message) {
	switch mesg.Num {
	case typedef.MesgNumRecord:
		m.record(mesgdef.NewRecord(mesg))
	case typedef.MesgNumCoursePoint:
		m.coursePoint(mesgdef.NewCoursePoint(mesg))
	case typedef.MesgNumSession:
		s := mesgdef.NewSession(mesg)
		if s.Sport != typedef.SportInvalid {
			m.ds.SetMeta(geodata.MetaSport, s.Sport.String())
		}
		if s.SubSport != typedef.SubSportInvalid {
			m.ds.SetMeta("Sub sport", s.SubSport.String())
		}
		setTotals(m.ds, s.TotalDistance, s.TotalElapsedTime)
	case typedef.MesgNumLap:
		m.laps++
		l := mesgdef.NewLap(mesg)
		if l.TotalDistance != basetype.Uint32Invalid {
			m.lapDistance += uint64(l.TotalDistance)
			m.lapsWithDistance++
		}
		if l.TotalElapsedTime != basetype.Uint32Invalid {
			m.lapElapsed += uint64(l.TotalElapsedTime)
			m.lapsWithTime++
		}
	case typedef.MesgNumFileId:
		f := mesgdef.NewFileId(mesg)
		if f.Type != typedef.FileInvalid {
			m.ds.SetMeta("File type", f.Type.String())
		}
		if f.Manufacturer != typedef.ManufacturerInvalid {
			m.ds.SetMeta("Manufacturer", f.Manufacturer.String())
		}
		if f.ProductName != "" {
			m.ds.SetMeta("Product", f.ProductName)
		}
		if !f.TimeCreated.IsZero() {
			m.ds.SetMeta("Time created", f.TimeCreated.UTC())
		}
	case typedef.MesgNumCourse:
		c := mesgdef.NewCourse(mesg)
		if c.Name != "" {
			m.ds.SetMeta("Name", c.Name)
		}
	default:
		m.skipped[mesg.Num]++
	}
}

func (m *mapper) record(rec *mesgdef.Record) {
	p, ok := toPoint(rec.PositionLat, rec.PositionLong, geodata.Trackpoint)
	if !ok {
		m.noPosition++
		return
	}
	p.Timestamp = utc(rec.Timestamp)
	p.Altitude = altitude(rec.EnhancedAltitude, rec.Altitude)
	p.ActivityType = m.sport
	m.ds.Points = append(m.ds.Points, p)
}

func (m *mapper) coursePoint(cp *mesgdef.CoursePoint) {
	idx := m.coursePts
	m.coursePts++
	p, ok := toPoint(cp.PositionLat, cp.PositionLong, geodata.Waypoint)
	if !ok {
		m.ds.Warn(geodata.SkippedRecordWarning{Kind: "course_point", Index: idx, Err: errors.New("no valid position")})
		return
	}
	p.Timestamp = utc(cp.Timestamp)
	p.Name = cp.Name
	m.ds.Points = append(m.ds.Points, p)
}

func (m *mapper) finish() {
	if m.laps > 0 {
		m.ds.SetMeta("Laps", m.laps)

		lapTotals := make(geodata.Metadata)
		if m.lapsWithDistance > 0 {
			lapTotals[metaTotalDistance] = float64(m.lapDistance) / 100
		}
		if m.lapsWithTime > 0 {
			lapTotals[metaTotalTime] = float64(m.lapElapsed) / 1000
		}
		// session totals take precedence
		m.ds.Metadata.Merge(lapTotals, geodata.MetaMergeSkip)
	}
	if m.noPosition > 0 {
		m.ds.Warn(geodata.DroppedEntriesWarning{
			Kind:   "record",
			Count:  m.noPosition,
			Reason: "no valid position",
		})
	}
	var other int
	for _, n := range m.skipped {
		other += n
	}
	if other > 0 {
		m.ds.SetMeta("Other messages", other)
	}
}

// sessionSport returns the sport of the first session that has one.
// Sessions are usually written after the records they summarize.
func sessionSport(fits []*proto.FIT) string {
	for _, fit := range fits {
		for i := range fit.Messages {
			if fit.Messages[i].Num != typedef.MesgNumSession {
				continue
			}
			if s := mesgdef.NewSession(&fit.Messages[i]); s.Sport != typedef.SportInvalid {
				return s.Sport.String()
			}
		}
	}
	return ""
}

func toPoint(lat, lng int32, kind geodata.PointType) (geodata.Point, bool) {
	if lat == basetype.Sint32Invalid || lng == basetype.Sint32Invalid {
		return geodata.Point{}, false
	}
	p, err := geodata.NewPoint(
		geodata.SemicirclesToDegrees(int64(lat)),
		geodata.SemicirclesToDegrees(int64(lng)),
		kind)
	if err != nil {
		return geodata.Point{}, false
	}
	return p, true
}

// altitude prefers the enhanced (32-bit) altitude; both are in units of
// 1/5 meter with an offset of 500 m.
func altitude(enhanced uint32, alt uint16) *float64 {
	const scale, offset = 5, 500
	switch {
	case enhanced != basetype.Uint32Invalid:
		return geodata.Float64(float64(enhanced)/scale - offset)
	case alt != basetype.Uint16Invalid:
		return geodata.Float64(float64(alt)/scale - offset)
	}
	return nil
}

// setTotals records total distance (stored in centimeters) and total
// elapsed time (stored in milliseconds).
func setTotals(ds *geodata.Dataset, distance, elapsed uint32) {
	if distance != basetype.Uint32Invalid {
		ds.SetMeta(metaTotalDistance, float64(distance)/100)
	}
	if elapsed != basetype.Uint32Invalid {
		ds.SetMeta(metaTotalTime, float64(elapsed)/1000)
	}
}

const (
	metaTotalDistance = "Total distance (m)"
	metaTotalTime     = "Total time (s)"
)

// utc returns t in UTC; a zero (invalid) FIT timestamp stays zero.
func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
