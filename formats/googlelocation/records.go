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
	"fmt"
	"strconv"

	"github.com/timelinize/geoconvert/geodata"
)

type recordsFile struct {
	Locations []location `json:"locations"`
}

type location struct {
	LatitudeE7       *int64   `json:"latitudeE7"`
	LongitudeE7      *int64   `json:"longitudeE7"`
	Accuracy         *float64 `json:"accuracy"` // meters; higher values are less accurate
	Altitude         *float64 `json:"altitude"` // meters
	VerticalAccuracy *float64 `json:"verticalAccuracy"`
	Timestamp        string   `json:"timestamp"`
	TimestampMs      string   `json:"timestampMs"`
	Source           string   `json:"source"`
	DeviceTag        int64    `json:"deviceTag"`
	Activity         []struct {
		Activity []struct {
			Type       string `json:"type"`
			Confidence int    `json:"confidence"`
		} `json:"activity"`
	} `json:"activity"`
}

// topActivity returns the most confident activity type across all of the
// location's activity readings. The first one wins ties.
func (l location) topActivity() (string, int) {
	var best string
	bestConf := -1
	for _, reading := range l.Activity {
		for _, act := range reading.Activity {
			if act.Confidence > bestConf {
				best, bestConf = act.Type, act.Confidence
			}
		}
	}
	return best, bestConf
}

func parseRecords(ctx context.Context, data []byte, ds *geodata.Dataset) error {
	var file recordsFile
	if err := decodeJSON(data, &file); err != nil {
		return err
	}

	var drops dropCounter
	for i, l := range file.Locations {
		if err := checkCtx(ctx, i); err != nil {
			return err
		}
		ll, ok := e7LatLng(l.LatitudeE7, l.LongitudeE7)
		if !ok {
			drops.add("location record")
			continue
		}
		pt, err := geodata.NewPoint(ll.Lat, ll.Lng, geodata.LocationRecord)
		if err != nil {
			drops.add("location record")
			continue
		}
		pt.ID = fmt.Sprintf("record-%d", i+1)
		pt.Timestamp = firstTime(l.Timestamp, l.TimestampMs)
		pt.Accuracy = l.Accuracy
		pt.Altitude = l.Altitude
		if act, conf := l.topActivity(); act != "" {
			pt.ActivityType = act
			pt.Confidence = strconv.Itoa(conf)
		}
		ds.Points = append(ds.Points, pt)
	}
	drops.report(ds)

	return nil
}

type timelineEditsFile struct {
	TimelineEdits []timelineEdit `json:"timelineEdits"`
}

type timelineEdit struct {
	DeviceID        string `json:"deviceId"`
	PlaceAggregates *struct {
		PlaceAggregateInfo []struct {
			Score         float64 `json:"score"`
			PlaceID       string  `json:"placeId"`
			PlaceLocation e7Point `json:"placeLocation"`
			Point         e7Point `json:"point"`
		} `json:"placeAggregateInfo"`
		ProcessWindow struct {
			StartTime string `json:"startTime"`
			EndTime   string `json:"endTime"`
		} `json:"processWindow"`
	} `json:"placeAggregates,omitempty"`
	RawSignal *struct {
		Signal struct {
			Position *struct {
				Point          e7Point  `json:"point"`
				AccuracyMm     *float64 `json:"accuracyMm"`
				AltitudeMeters *float64 `json:"altitudeMeters"`
				Source         string   `json:"source"`
				Timestamp      string   `json:"timestamp"`
			} `json:"position,omitempty"`
		} `json:"signal"`
	} `json:"rawSignal,omitempty"`
}

func parseTimelineEdits(ctx context.Context, data []byte, ds *geodata.Dataset) error {
	var file timelineEditsFile
	if err := decodeJSON(data, &file); err != nil {
		return err
	}

	var drops dropCounter
	var aggregates, signals int
	for i, edit := range file.TimelineEdits {
		if err := checkCtx(ctx, i); err != nil {
			return err
		}

		if agg := edit.PlaceAggregates; agg != nil {
			start := firstTime(agg.ProcessWindow.StartTime)
			for _, info := range agg.PlaceAggregateInfo {
				ll, ok := e7LatLng(info.PlaceLocation.LatE7, info.PlaceLocation.LngE7)
				if !ok {
					ll, ok = e7LatLng(info.Point.LatE7, info.Point.LngE7)
				}
				if !ok {
					drops.add("place aggregate")
					continue
				}
				pt, err := geodata.NewPoint(ll.Lat, ll.Lng, geodata.PlaceAggregate)
				if err != nil {
					drops.add("place aggregate")
					continue
				}
				aggregates++
				pt.ID = fmt.Sprintf("aggregate-%d", aggregates)
				pt.Timestamp = start
				pt.Confidence = strconv.FormatFloat(info.Score, 'f', -1, 64)
				ds.Points = append(ds.Points, pt)
			}
		}

		if raw := edit.RawSignal; raw != nil && raw.Signal.Position != nil {
			pos := raw.Signal.Position
			ll, ok := e7LatLng(pos.Point.LatE7, pos.Point.LngE7)
			if !ok {
				drops.add("raw signal")
				continue
			}
			pt, err := geodata.NewPoint(ll.Lat, ll.Lng, geodata.RawSignal)
			if err != nil {
				drops.add("raw signal")
				continue
			}
			signals++
			pt.ID = fmt.Sprintf("signal-%d", signals)
			pt.Timestamp = firstTime(pos.Timestamp)
			pt.Altitude = pos.AltitudeMeters
			if pos.AccuracyMm != nil {
				pt.Accuracy = geodata.Float64(*pos.AccuracyMm / 1000)
			}
			ds.Points = append(ds.Points, pt)
		}
	}
	drops.report(ds)

	return nil
}
