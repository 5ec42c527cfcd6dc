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

package media

import (
	"bytes"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cozy/goexif2/exif"
	"github.com/ringsaturn/tzf"
	"github.com/timelinize/geoconvert/geodata"
	"go.uber.org/zap"
)

const exifTimeLayout = "2006:01:02 15:04:05"

func extractEXIF(data []byte, logger *zap.Logger) (*Geodata, error) {
	ex, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (ex == nil || exif.IsCriticalError(err)) {
		logger.Debug("no usable EXIF metadata", zap.Error(err))
		return nil, nil
	}

	lat, lng, err := ex.LatLong()
	if err != nil {
		logger.Debug("no GPS coordinates in EXIF", zap.Error(err))
		return nil, nil
	}
	if err := geodata.ValidateLatLng(lat, lng); err != nil {
		return nil, geodata.FormatError{Format: geodata.FormatImage, Msg: "EXIF GPS coordinates", Err: err}
	}

	g := &Geodata{Lat: lat, Lng: lng, Source: "exif"}
	g.Altitude = exifAltitude(ex)
	g.Timestamp, g.TimeZone = exifTimestamp(ex, lat, lng, logger)

	return g, nil
}

// exifAltitude returns the GPS altitude, which is below sea level if
// GPSAltitudeRef is 1.
func exifAltitude(ex *exif.Exif) *float64 {
	tag, err := ex.Get(exif.GPSAltitude)
	if err != nil {
		return nil
	}
	rat, err := tag.Rat(0)
	if err != nil {
		return nil
	}
	alt, _ := rat.Float64()
	if math.IsInf(alt, 0) || math.IsNaN(alt) {
		return nil
	}
	if ref, err := ex.Get(exif.GPSAltitudeRef); err == nil {
		if v, err := ref.Int(0); err == nil && v == 1 {
			alt = -alt
		}
	}
	return &alt
}

// exifTimestamp returns the best timestamp available: when the photo was
// taken, then when it was digitized, then when the file was last
// modified, then the GPS fix time. The first three have no time zone and
// are interpreted in the zone at lat, lng, whose name is also returned.
func exifTimestamp(ex *exif.Exif, lat, lng float64, logger *zap.Logger) (time.Time, string) {
	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		tag, err := ex.Get(field)
		if err != nil {
			continue
		}
		val, err := tag.StringVal()
		if err != nil {
			continue
		}
		val = strings.TrimRight(strings.TrimSpace(val), "\x00")

		loc, zone := locationAt(lat, lng, logger)
		ts, err := time.ParseInLocation(exifTimeLayout, val, loc)
		if err != nil {
			logger.Debug("unparsable EXIF timestamp",
				zap.String("field", string(field)),
				zap.String("value", val),
				zap.Error(err))
			continue
		}
		return ts.UTC(), zone
	}

	if ts, ok := gpsTimestamp(ex); ok {
		return ts, ""
	}
	return time.Time{}, ""
}

// gpsTimestamp combines GPSDateStamp and GPSTimeStamp, which are UTC.
func gpsTimestamp(ex *exif.Exif) (time.Time, bool) {
	dateTag, err := ex.Get(exif.GPSDateStamp)
	if err != nil {
		return time.Time{}, false
	}
	dateStr, err := dateTag.StringVal()
	if err != nil {
		return time.Time{}, false
	}
	date, err := time.Parse("2006:01:02", strings.TrimRight(strings.TrimSpace(dateStr), "\x00"))
	if err != nil {
		return time.Time{}, false
	}

	timeTag, err := ex.Get(exif.GPSTimeStamp)
	if err != nil || timeTag.Count < 3 {
		return date, true
	}
	var hms [3]float64
	for i := range hms {
		rat, err := timeTag.Rat(i)
		if err != nil {
			return date, true
		}
		hms[i], _ = rat.Float64()
	}
	offset := time.Duration(hms[0])*time.Hour +
		time.Duration(hms[1])*time.Minute +
		time.Duration(hms[2]*float64(time.Second))

	return date.Add(offset), true
}

var (
	tzFinder     tzf.F
	tzFinderErr  error
	tzFinderOnce sync.Once
)

// locationAt returns the time zone at lat, lng, or UTC if it can't be
// determined.
func locationAt(lat, lng float64, logger *zap.Logger) (*time.Location, string) {
	tzFinderOnce.Do(func() {
		tzFinder, tzFinderErr = tzf.NewDefaultFinder()
	})
	if tzFinderErr != nil {
		logger.Warn("time zone finder unavailable; assuming UTC", zap.Error(tzFinderErr))
		return time.UTC, ""
	}
	name := tzFinder.GetTimezoneName(lng, lat)
	if name == "" {
		return time.UTC, ""
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Debug("loading time zone", zap.String("zone", name), zap.Error(err))
		return time.UTC, ""
	}
	return loc, name
}
