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

package googlelocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/timelinize/geoconvert/geodata"
)

// onDeviceLocationiOS2024 is one entry of the top-level array of the
// location-history.json file that iOS devices export.
type onDeviceLocationiOS2024 struct {
	StartTime time.Time `json:"startTime"` // e.g. 2024-06-21T19:51:13.014-06:00
	EndTime   time.Time `json:"endTime"`
	Activity  *struct {
		Start          geoString `json:"start"`
		End            geoString `json:"end"`
		DistanceMeters string    `json:"distanceMeters"`
		TopCandidate   struct {
			Type        string `json:"type"`
			Probability string `json:"probability"`
		} `json:"topCandidate"`
	} `json:"activity,omitempty"`
	Visit *struct {
		Probability  string `json:"probability"`
		TopCandidate struct {
			SemanticType  string    `json:"semanticType"`
			PlaceID       string    `json:"placeID"`
			PlaceLocation geoString `json:"placeLocation"`
		} `json:"topCandidate"`
	} `json:"visit,omitempty"`
	TimelinePath []struct {
		Point                              geoString `json:"point"`
		DurationMinutesOffsetFromStartTime string    `json:"durationMinutesOffsetFromStartTime"`
	} `json:"timelinePath,omitempty"`
}

type geoString string // EXAMPLE: "geo:30.123456,-105.987654"

func (g geoString) parse() (geodata.LatLng, error) {
	const prefix = "geo:"
	if !strings.HasPrefix(string(g), prefix) {
		return geodata.LatLng{}, errors.New("not a valid geo string: missing prefix")
	}
	latStr, lngStr, ok := strings.Cut(string(g[len(prefix):]), ",")
	if !ok {
		return geodata.LatLng{}, errors.New("not a valid geo string: missing comma separator")
	}
	return geodata.ParseLatLng(latStr, lngStr)
}

type degreeString string // EXAMPLE: "31.1234567°, -73.1234567°"

func (d degreeString) parse() (geodata.LatLng, error) {
	str := strings.ReplaceAll(string(d), "°", "")
	latStr, lngStr, ok := strings.Cut(str, ",")
	if !ok {
		return geodata.LatLng{}, errors.New("not a valid degree string: missing comma separator")
	}
	return geodata.ParseLatLng(strings.TrimSpace(latStr), strings.TrimSpace(lngStr))
}

// onDevice accumulates points and paths from either of the on-device
// formats, which are structured alike.
type onDevice struct {
	ds               *geodata.Dataset
	drops            dropCounter
	visits, activity int
	paths            int
}

func (od *onDevice) visit(ll geodata.LatLng, err error, ts time.Time, semanticType, confidence string) {
	if err != nil {
		od.drops.add("visit")
		return
	}
	pt, err := geodata.NewPoint(ll.Lat, ll.Lng, geodata.PlaceVisit)
	if err != nil {
		od.drops.add("visit")
		return
	}
	od.visits++
	pt.ID = fmt.Sprintf("visit-%d", od.visits)
	pt.Timestamp = ts
	pt.Name = semanticType
	pt.Confidence = confidence
	od.ds.Points = append(od.ds.Points, pt)
}

// segment adds an activity's endpoints and a path between them.
func (od *onDevice) segment(start, end geodata.LatLng, startErr, endErr error, startTime, endTime time.Time, activityType string, distance *float64) {
	if startErr != nil && endErr != nil {
		od.drops.add("activity")
		return
	}
	od.activity++
	var coords []geodata.LatLng
	for _, e := range []struct {
		ll   geodata.LatLng
		err  error
		kind geodata.PointType
		ts   time.Time
		id   string
	}{
		{start, startErr, geodata.ActivityStart, startTime, fmt.Sprintf("activity-%d-start", od.activity)},
		{end, endErr, geodata.ActivityEnd, endTime, fmt.Sprintf("activity-%d-end", od.activity)},
	} {
		if e.err != nil {
			continue
		}
		pt, err := geodata.NewPoint(e.ll.Lat, e.ll.Lng, e.kind)
		if err != nil {
			continue
		}
		pt.ID = e.id
		pt.Timestamp = e.ts
		pt.ActivityType = activityType
		od.ds.Points = append(od.ds.Points, pt)
		coords = append(coords, e.ll)
	}
	od.path(coords, startTime, endTime, activityType, distance)
}

func (od *onDevice) path(coords []geodata.LatLng, start, end time.Time, activityType string, distance *float64) {
	path, err := geodata.NewPath(coords)
	if err != nil {
		return
	}
	od.paths++
	path.ID = fmt.Sprintf("path-%d", od.paths)
	path.StartTimestamp = start
	path.EndTimestamp = end
	path.ActivityType = activityType
	path.DistanceMeters = distance
	od.ds.Paths = append(od.ds.Paths, path)
}

func parseOnDeviceiOS(ctx context.Context, data []byte, ds *geodata.Dataset) error {
	var entries []onDeviceLocationiOS2024
	if err := decodeJSON(data, &entries); err != nil {
		return err
	}

	od := &onDevice{ds: ds}
	for i, e := range entries {
		if err := checkCtx(ctx, i); err != nil {
			return err
		}
		switch {
		case e.Visit != nil:
			ll, err := e.Visit.TopCandidate.PlaceLocation.parse()
			od.visit(ll, err, e.StartTime, e.Visit.TopCandidate.SemanticType, e.Visit.Probability)

		case e.Activity != nil:
			start, startErr := e.Activity.Start.parse()
			end, endErr := e.Activity.End.parse()
			var dist *float64
			if d, err := strconv.ParseFloat(e.Activity.DistanceMeters, 64); err == nil && d > 0 {
				dist = &d
			}
			actType := e.Activity.TopCandidate.Type
			if actType == "unknown" {
				actType = ""
			}
			od.segment(start, end, startErr, endErr, e.StartTime, e.EndTime, actType, dist)

		case len(e.TimelinePath) > 0:
			var coords []geodata.LatLng
			for _, tp := range e.TimelinePath {
				if ll, err := tp.Point.parse(); err == nil {
					coords = append(coords, ll)
				}
			}
			if len(coords) < 2 {
				od.drops.add("timeline path")
				continue
			}
			od.path(coords, e.StartTime, e.EndTime, "", nil)
		}
	}
	od.drops.report(ds)

	return nil
}

// semanticSegmentAndroid2025 is one of the semanticSegments in the
// Timeline.json file that Android devices export.
type semanticSegmentAndroid2025 struct {
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	TimelinePath []struct {
		Point degreeString `json:"point"`
		Time  time.Time    `json:"time"`
	} `json:"timelinePath,omitempty"`
	Visit *struct {
		Probability  float64 `json:"probability"`
		TopCandidate struct {
			SemanticType  string `json:"semanticType"`
			PlaceID       string `json:"placeId"`
			PlaceLocation struct {
				LatLng degreeString `json:"latLng"`
			} `json:"placeLocation"`
		} `json:"topCandidate"`
	} `json:"visit,omitempty"`
	Activity *struct {
		Start struct {
			LatLng degreeString `json:"latLng"`
		} `json:"start"`
		End struct {
			LatLng degreeString `json:"latLng"`
		} `json:"end"`
		DistanceMeters float64 `json:"distanceMeters"`
		TopCandidate   struct {
			Type        string  `json:"type"`
			Probability float64 `json:"probability"`
		} `json:"topCandidate"`
	} `json:"activity,omitempty"`
}

type rawSignalAndroid2025 struct {
	Position *struct {
		LatLng         degreeString `json:"LatLng"`
		AccuracyMeters *float64     `json:"accuracyMeters"`
		AltitudeMeters *float64     `json:"altitudeMeters"`
		Timestamp      string       `json:"timestamp"`
	} `json:"position,omitempty"`
}

type timelineAndroid2025 struct {
	SemanticSegments []semanticSegmentAndroid2025 `json:"semanticSegments"`
	RawSignals       []rawSignalAndroid2025       `json:"rawSignals"`
}

func parseOnDeviceAndroid(ctx context.Context, data []byte, ds *geodata.Dataset) error {
	var file timelineAndroid2025
	if err := decodeJSON(data, &file); err != nil {
		return err
	}

	od := &onDevice{ds: ds}
	for i, seg := range file.SemanticSegments {
		if err := checkCtx(ctx, i); err != nil {
			return err
		}
		switch {
		case seg.Visit != nil:
			ll, err := seg.Visit.TopCandidate.PlaceLocation.LatLng.parse()
			conf := strconv.FormatFloat(seg.Visit.Probability, 'f', -1, 64)
			od.visit(ll, err, seg.StartTime, seg.Visit.TopCandidate.SemanticType, conf)

		case seg.Activity != nil:
			start, startErr := seg.Activity.Start.LatLng.parse()
			end, endErr := seg.Activity.End.LatLng.parse()
			var dist *float64
			if seg.Activity.DistanceMeters > 0 {
				dist = geodata.Float64(seg.Activity.DistanceMeters)
			}
			actType := seg.Activity.TopCandidate.Type
			if actType == "UNKNOWN_ACTIVITY_TYPE" {
				actType = ""
			}
			od.segment(start, end, startErr, endErr, seg.StartTime, seg.EndTime, actType, dist)

		case len(seg.TimelinePath) > 0:
			var coords []geodata.LatLng
			for _, tp := range seg.TimelinePath {
				if ll, err := tp.Point.parse(); err == nil {
					coords = append(coords, ll)
				}
			}
			if len(coords) < 2 {
				od.drops.add("timeline path")
				continue
			}
			od.path(coords, seg.StartTime, seg.EndTime, "", nil)
		}
	}

	for i, sig := range file.RawSignals {
		if sig.Position == nil {
			continue
		}
		ll, err := sig.Position.LatLng.parse()
		if err != nil {
			od.drops.add("raw signal")
			continue
		}
		pt, err := geodata.NewPoint(ll.Lat, ll.Lng, geodata.RawSignal)
		if err != nil {
			od.drops.add("raw signal")
			continue
		}
		pt.ID = fmt.Sprintf("signal-%d", i+1)
		pt.Timestamp = firstTime(sig.Position.Timestamp)
		pt.Accuracy = sig.Position.AccuracyMeters
		pt.Altitude = sig.Position.AltitudeMeters
		ds.Points = append(ds.Points, pt)
	}
	od.drops.report(ds)

	return nil
}
