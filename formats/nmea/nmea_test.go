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

package nmea

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/timelinize/geoconvert/geodata"
)

var sampleLog = strings.Join([]string{
	"$GPGGA,123510,4807.000,N,01131.000,E,1,08,0.9,545.0,M,46.9,M,,*41",
	"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,140723,003.1,W*66",
	"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
	"$GPRMC,123529,A,4807.138,N,01131.100,E,022.4,084.4,140723,003.1,W*65",
	"$GPGGA,123529,4807.138,N,01131.100,E,1,08,0.9,546.0,M,46.9,M,,*43",
	"$GPRMC,123539,V,4807.238,N,01131.200,E,022.4,084.4,140723,003.1,W*73",
	"$GPGLL,4807.338,N,01131.300,E,123549,A,A*4D",
	"$GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*39",
	"$GPGGA,123600,4807.438,N,01131.400,E,0,00,,,M,,M,,*59",
	"$GPRMC,garbage*00",
}, "\r\n")

func TestParse(t *testing.T) {
	ds, err := Parse(context.Background(), []byte(sampleLog), geodata.ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expect := []struct {
		lat, lng float64
		alt      float64
		ts       time.Time
	}{
		{lat: 48.1173, lng: 11.0 + 31.0/60, alt: 545.4, ts: time.Date(2023, 7, 14, 12, 35, 19, 0, time.UTC)},
		{lat: 48.0 + 7.138/60, lng: 11.0 + 31.1/60, alt: 546.0, ts: time.Date(2023, 7, 14, 12, 35, 29, 0, time.UTC)},
		{lat: 48.0 + 7.338/60, lng: 11.0 + 31.3/60, ts: time.Date(2023, 7, 14, 12, 35, 49, 0, time.UTC)},
	}
	if len(ds.Points) != len(expect) {
		t.Fatalf("expected %d points, got %d: %+v", len(expect), len(ds.Points), ds.Points)
	}
	for i, want := range expect {
		p := ds.Points[i]
		if p.Type != geodata.Trackpoint {
			t.Errorf("point %d: expected trackpoint, got %s", i, p.Type)
		}
		if math.Abs(p.Lat-want.lat) > 1e-9 || math.Abs(p.Lng-want.lng) > 1e-9 {
			t.Errorf("point %d: expected (%v, %v), got (%v, %v)", i, want.lat, want.lng, p.Lat, p.Lng)
		}
		if !p.Timestamp.Equal(want.ts) {
			t.Errorf("point %d: expected time %v, got %v", i, want.ts, p.Timestamp)
		}
		switch {
		case want.alt == 0 && p.Altitude != nil:
			t.Errorf("point %d: expected no altitude, got %v", i, *p.Altitude)
		case want.alt != 0 && (p.Altitude == nil || math.Abs(*p.Altitude-want.alt) > 1e-9):
			t.Errorf("point %d: expected altitude %v, got %v", i, want.alt, p.Altitude)
		}
	}

	dropped := make(map[string]int)
	for _, w := range ds.Warnings {
		var d geodata.DroppedEntriesWarning
		if !errors.As(w, &d) {
			t.Errorf("unexpected warning: %v", w)
			continue
		}
		dropped[d.Reason] = d.Count
	}
	for reason, count := range map[string]int{
		reasonNoDate:      1,
		reasonNoFix:       2,
		reasonNotPosition: 1,
		reasonUnparsable:  1,
	} {
		if dropped[reason] != count {
			t.Errorf("expected %d sentences dropped for %q, got %d", count, reason, dropped[reason])
		}
	}
}

func TestParseCarriageReturnOnly(t *testing.T) {
	log := "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,140723,003.1,W*66\r" +
		"$GPRMC,123529,A,4807.138,N,01131.100,E,022.4,084.4,140723,003.1,W*65\r"
	ds, err := Parse(context.Background(), []byte(log), geodata.ParseOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Points) != 2 {
		t.Errorf("expected 2 points, got %d", len(ds.Points))
	}
}

func TestParseBadInput(t *testing.T) {
	ctx := context.Background()

	_, err := Parse(ctx, []byte("hello\nworld\n"), geodata.ParseOptions{})
	var formatErr geodata.FormatError
	if !errors.As(err, &formatErr) {
		t.Errorf("expected FormatError for garbage, got %v", err)
	}

	// valid sentences, but none with a usable position
	_, err = geodata.Parse(ctx, geodata.FormatNMEA,
		[]byte("$GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*39\n"), geodata.ParseOptions{})
	var noGeo geodata.NoGeodataError
	if !errors.As(err, &noGeo) {
		t.Errorf("expected NoGeodataError, got %v", err)
	}
}

func TestRecognize(t *testing.T) {
	for i, tc := range []struct {
		filename string
		data     string
		expect   float64
	}{
		{filename: "drive.nmea", expect: 1},
		{filename: "DRIVE.NME", expect: 1},
		{filename: "drive.log", data: "$GPGLL,4807.338,N,01131.300,E,123549,A,A*4D\n", expect: 0.9},
		{filename: "drive.log", data: "$GPGLL,nothing\n", expect: 0},
		{filename: "notes.txt", data: "just some text", expect: 0},
	} {
		if actual := recognize(tc.filename, []byte(tc.data)); actual.Confidence != tc.expect {
			t.Errorf("Test %d: expected confidence %v, got %v", i, tc.expect, actual.Confidence)
		}
	}
}
