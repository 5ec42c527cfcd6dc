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

package fit

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/kit/scaleoffset"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"
	"github.com/timelinize/geoconvert/geodata"
)

// Altitude field range: (value+500)*5 must fit in a uint16.
const (
	minAltitude = -500
	maxAltitude = (1<<16-2)/5 - 500
)

// Serialize writes ds as a FIT course file. Trackpoints become record
// messages (with cumulative distance) and named waypoints become course
// points, which follow the records and carry a timestamp. If there are no trackpoints, the waypoints are also used as the
// course's records so that devices can still navigate it.
func Serialize(ctx context.Context, ds *geodata.Dataset, opt geodata.SerializeOptions) ([]byte, error) {
	tr, err := geodata.Normalize(ds)
	if err != nil {
		return nil, err
	}

	route := tr.Trackpoints
	if len(route) == 0 {
		route = tr.Waypoints
	}
	if len(route) == 0 {
		return nil, fmt.Errorf("no coordinates to write")
	}
	first, last := route[0], route[len(route)-1]

	start := firstTime(route)
	if start.IsZero() {
		start = opt.GeneratedAt
	}

	name := opt.Name
	if name == "" {
		name = "Untitled Course"
	}

	fileID := mesgdef.NewFileId(nil).
		SetType(typedef.FileCourse).
		SetTimeCreated(opt.GeneratedAt).
		SetManufacturer(typedef.ManufacturerDevelopment).
		SetProduct(0).
		SetProductName("geoconvert")

	courseMesg := mesgdef.NewCourse(nil).
		SetName(name).
		SetCapabilities(typedef.CourseCapabilitiesPosition)

	timerStart := mesgdef.NewEvent(nil).
		SetTimestamp(start).
		SetEvent(typedef.EventTimer).
		SetEventType(typedef.EventTypeStart)

	// devices read a course front to back: records, then the lap
	// summarizing them, then course points placed along them
	messages := make([]proto.Message, 0, len(route)+len(tr.Waypoints)+4)
	messages = append(messages,
		fileID.ToMesg(nil),
		courseMesg.ToMesg(nil),
		timerStart.ToMesg(nil))

	var total float64
	for i, m := range route {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if i > 0 {
			prev := route[i-1]
			total += geodata.DistanceMeters(
				geodata.LatLng{Lat: prev.Lat, Lng: prev.Lng},
				geodata.LatLng{Lat: m.Lat, Lng: m.Lng})
		}
		messages = append(messages, record(m, total).ToMesg(nil))
	}

	lap := mesgdef.NewLap(nil).
		SetStartTime(start).
		SetTimestamp(lastTime(route, start)).
		SetStartPositionLat(semicircles(first.Lat)).
		SetStartPositionLong(semicircles(first.Lng)).
		SetEndPositionLat(semicircles(last.Lat)).
		SetEndPositionLong(semicircles(last.Lng)).
		SetTotalDistance(uint32(math.Round(scaleoffset.Discard(total, 100, 0))))
	messages = append(messages, lap.ToMesg(nil))

	for _, w := range tr.Waypoints {
		cp := mesgdef.NewCoursePoint(nil).
			SetTimestamp(coursePointTime(w, route, start)).
			SetName(w.Name).
			SetPositionLat(semicircles(w.Lat)).
			SetPositionLong(semicircles(w.Lng)).
			SetType(typedef.CoursePointGeneric)
		messages = append(messages, cp.ToMesg(nil))
	}

	fit := proto.FIT{Messages: messages}

	var buf bytes.Buffer
	if err := encoder.New(&buf).EncodeWithContext(ctx, &fit); err != nil {
		return nil, fmt.Errorf("encoding FIT: %w", err)
	}
	return buf.Bytes(), nil
}

// coursePointTime returns the waypoint's own time, else the time of the
// nearest timestamped route record, else fallback. Devices place course
// points along the course by timestamp.
func coursePointTime(w geodata.Mark, route []geodata.Mark, fallback time.Time) time.Time {
	if !w.Time.IsZero() {
		return w.Time
	}
	best, bestDist := fallback, math.Inf(1)
	for _, m := range route {
		if m.Time.IsZero() {
			continue
		}
		d := geodata.DistanceMeters(
			geodata.LatLng{Lat: w.Lat, Lng: w.Lng},
			geodata.LatLng{Lat: m.Lat, Lng: m.Lng})
		if d < bestDist {
			best, bestDist = m.Time, d
		}
	}
	return best
}

// semicircles converts degrees for a FIT position field; +180 is one
// semicircle past the int32 range, so it is clamped.
func semicircles(deg float64) int32 {
	sc := geodata.DegreesToSemicircles(deg)
	if sc > math.MaxInt32 {
		sc = math.MaxInt32
	}
	return int32(sc)
}

func record(m geodata.Mark, distance float64) *mesgdef.Record {
	rec := mesgdef.NewRecord(nil).
		SetPositionLat(semicircles(m.Lat)).
		SetPositionLong(semicircles(m.Lng)).
		SetDistance(uint32(math.Round(scaleoffset.Discard(distance, 100, 0))))
	if !m.Time.IsZero() {
		rec.SetTimestamp(m.Time)
	}
	if m.Altitude != nil && *m.Altitude >= minAltitude && *m.Altitude <= maxAltitude {
		rec.SetAltitude(uint16(math.Round(scaleoffset.Discard(*m.Altitude, 5, 500))))
	}
	return rec
}

func firstTime(marks []geodata.Mark) time.Time {
	for _, m := range marks {
		if !m.Time.IsZero() {
			return m.Time
		}
	}
	return time.Time{}
}

func lastTime(marks []geodata.Mark, fallback time.Time) time.Time {
	for i := len(marks) - 1; i >= 0; i-- {
		if !marks[i].Time.IsZero() {
			return marks[i].Time
		}
	}
	return fallback
}
