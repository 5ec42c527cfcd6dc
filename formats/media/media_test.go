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
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/timelinize/geoconvert/geodata"
)

type ifdEntry struct {
	tag, typ uint16
	count    uint32
	val      []byte
}

func asciiTag(tag uint16, s string) ifdEntry {
	b := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: 2, count: uint32(len(b)), val: b}
}

func rationalTag(tag uint16, vals ...[2]uint32) ifdEntry {
	var b []byte
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint32(b, v[0])
		b = binary.LittleEndian.AppendUint32(b, v[1])
	}
	return ifdEntry{tag: tag, typ: 5, count: uint32(len(vals)), val: b}
}

func byteTag(tag uint16, v byte) ifdEntry {
	return ifdEntry{tag: tag, typ: 1, count: 1, val: []byte{v}}
}

func longTag(tag uint16, v uint32) ifdEntry {
	return ifdEntry{tag: tag, typ: 4, count: 1, val: binary.LittleEndian.AppendUint32(nil, v)}
}

func padded(n int) int { return n + n%2 }

func ifdSize(entries []ifdEntry) uint32 {
	n := 2 + 12*len(entries) + 4
	for _, e := range entries {
		if len(e.val) > 4 {
			n += padded(len(e.val))
		}
	}
	return uint32(n)
}

func encodeIFD(start uint32, entries []ifdEntry) []byte {
	var b, data []byte
	b = binary.LittleEndian.AppendUint16(b, uint16(len(entries)))
	dataOffset := start + uint32(2+12*len(entries)+4)
	for _, e := range entries {
		b = binary.LittleEndian.AppendUint16(b, e.tag)
		b = binary.LittleEndian.AppendUint16(b, e.typ)
		b = binary.LittleEndian.AppendUint32(b, e.count)
		if len(e.val) <= 4 {
			v := make([]byte, 4)
			copy(v, e.val)
			b = append(b, v...)
			continue
		}
		b = binary.LittleEndian.AppendUint32(b, dataOffset+uint32(len(data)))
		data = append(data, e.val...)
		if len(data)%2 == 1 {
			data = append(data, 0)
		}
	}
	b = binary.LittleEndian.AppendUint32(b, 0) // no next IFD
	return append(b, data...)
}

// buildTIFF returns a little-endian TIFF containing only metadata:
// IFD0, an Exif IFD, and a GPS IFD (either of the latter may be nil).
func buildTIFF(ifd0, exifIFD, gpsIFD []ifdEntry) []byte {
	const (
		exifPointer = 0x8769
		gpsPointer  = 0x8825
	)
	if exifIFD != nil {
		ifd0 = append(ifd0, longTag(exifPointer, 0))
	}
	if gpsIFD != nil {
		ifd0 = append(ifd0, longTag(gpsPointer, 0))
	}

	start0 := uint32(8)
	startExif := start0 + ifdSize(ifd0)
	startGPS := startExif
	if exifIFD != nil {
		startGPS += ifdSize(exifIFD)
	}
	for i, e := range ifd0 {
		switch e.tag {
		case exifPointer:
			ifd0[i] = longTag(exifPointer, startExif)
		case gpsPointer:
			ifd0[i] = longTag(gpsPointer, startGPS)
		}
	}

	out := []byte("II*\x00")
	out = binary.LittleEndian.AppendUint32(out, start0)
	out = append(out, encodeIFD(start0, ifd0)...)
	if exifIFD != nil {
		out = append(out, encodeIFD(startExif, exifIFD)...)
	}
	if gpsIFD != nil {
		out = append(out, encodeIFD(startGPS, gpsIFD)...)
	}
	return out
}

// Eiffel Tower: 48°51'30.24"N 2°17'40.2"E, 35.5 m below sea level (for the test)
func eiffelGPS(extra ...ifdEntry) []ifdEntry {
	return append([]ifdEntry{
		asciiTag(0x0001, "N"),
		rationalTag(0x0002, [2]uint32{48, 1}, [2]uint32{51, 1}, [2]uint32{3024, 100}),
		asciiTag(0x0003, "E"),
		rationalTag(0x0004, [2]uint32{2, 1}, [2]uint32{17, 1}, [2]uint32{4020, 100}),
		byteTag(0x0005, 1),
		rationalTag(0x0006, [2]uint32{355, 10}),
	}, extra...)
}

func TestExtractEXIF(t *testing.T) {
	data := buildTIFF(
		[]ifdEntry{asciiTag(0x0132, "2023:08:01 10:00:00")},
		[]ifdEntry{asciiTag(0x9003, "2023:07:14 09:30:00")},
		eiffelGPS(),
	)

	g, err := Extract(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g == nil {
		t.Fatal("expected geodata")
	}
	if g.Source != "exif" {
		t.Errorf("expected exif source, got %s", g.Source)
	}
	if math.Abs(g.Lat-48.8584) > 1e-6 || math.Abs(g.Lng-2.2945) > 1e-6 {
		t.Errorf("unexpected coordinates: %v, %v", g.Lat, g.Lng)
	}
	if g.Altitude == nil || *g.Altitude != -35.5 {
		t.Errorf("expected altitude -35.5, got %v", g.Altitude)
	}

	// taken at 09:30 local time in Paris, which is UTC+2 in July
	want := time.Date(2023, 7, 14, 7, 30, 0, 0, time.UTC)
	if !g.Timestamp.Equal(want) {
		t.Errorf("expected %v, got %v", want, g.Timestamp)
	}
	if g.TimeZone != "Europe/Paris" {
		t.Errorf("expected Europe/Paris, got %q", g.TimeZone)
	}
}

func TestExtractEXIFGPSTime(t *testing.T) {
	data := buildTIFF(nil, nil, eiffelGPS(
		rationalTag(0x0007, [2]uint32{12, 1}, [2]uint32{5, 1}, [2]uint32{30, 1}),
		asciiTag(0x001D, "2023:07:14"),
	))

	g, err := Extract(context.Background(), data, nil)
	if err != nil || g == nil {
		t.Fatalf("expected geodata, got %v (error: %v)", g, err)
	}
	want := time.Date(2023, 7, 14, 12, 5, 30, 0, time.UTC)
	if !g.Timestamp.Equal(want) {
		t.Errorf("expected %v, got %v", want, g.Timestamp)
	}
	if g.TimeZone != "" {
		t.Errorf("GPS time is UTC; expected no zone, got %q", g.TimeZone)
	}
}

func TestExtractNoGPS(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatal(err)
	}

	for i, data := range [][]byte{
		buf.Bytes(),
		buildTIFF([]ifdEntry{asciiTag(0x0132, "2023:08:01 10:00:00")}, nil, nil),
	} {
		g, err := Extract(context.Background(), data, nil)
		if err != nil {
			t.Errorf("Test %d: unexpected error: %v", i, err)
		}
		if g != nil {
			t.Errorf("Test %d: expected nil, got %+v", i, g)
		}
	}

	_, err := Parse(context.Background(), buf.Bytes(), geodata.ParseOptions{Filename: "blank.png"})
	var noGeo geodata.NoGeodataError
	if !errors.As(err, &noGeo) {
		t.Errorf("expected NoGeodataError, got %v", err)
	}
}

func TestParse(t *testing.T) {
	data := buildTIFF(nil, []ifdEntry{asciiTag(0x9003, "2023:07:14 09:30:00")}, eiffelGPS())

	if r := recognize("IMG_0001.tif", data); r.Confidence != 1 {
		t.Errorf("expected confidence 1, got %v", r.Confidence)
	}

	ds, err := Parse(context.Background(), data, geodata.ParseOptions{Filename: "photos/IMG_0001.tif"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(ds.Points))
	}
	p := ds.Points[0]
	if p.Type != geodata.Waypoint || p.Name != "IMG_0001.tif" {
		t.Errorf("unexpected point: %+v", p)
	}
	if ds.Metadata["Location source"] != "exif" {
		t.Errorf("unexpected metadata: %v", ds.Metadata)
	}
}

func box(typ string, payload ...[]byte) []byte {
	body := bytes.Join(payload, nil)
	b := binary.BigEndian.AppendUint32(nil, uint32(8+len(body)))
	b = append(b, typ...)
	return append(b, body...)
}

func TestExtractMP4Location(t *testing.T) {
	xyz := "+48.8584+002.2945/"
	xyzPayload := binary.BigEndian.AppendUint16(nil, uint16(len(xyz)))
	xyzPayload = append(xyzPayload, 0x15, 0xC7) // language
	xyzPayload = append(xyzPayload, xyz...)

	data := append(
		box("ftyp", []byte("isom"), []byte{0, 0, 2, 0}, []byte("isom")),
		box("moov", box("udta", box("\xa9xyz", xyzPayload)))...)

	g, err := Extract(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g == nil {
		t.Fatal("expected geodata")
	}
	if g.Source != "mp4" || g.Lat != 48.8584 || g.Lng != 2.2945 {
		t.Errorf("unexpected geodata: %+v", g)
	}
}

func TestParseISO6709(t *testing.T) {
	for i, tc := range []struct {
		input     string
		lat, lng  float64
		alt       *float64
		shouldErr bool
	}{
		{input: "+50.1234-101.1234+000.000/", lat: 50.1234, lng: -101.1234, alt: geodata.Float64(0)},
		{input: "\x00\x12\x15\xc7+35.6586+139.7454/", lat: 35.6586, lng: 139.7454},
		{input: "+91.0000+000.0000/", shouldErr: true},
		{input: "nowhere", shouldErr: true},
	} {
		ll, alt, err := parseISO6709(tc.input)
		if tc.shouldErr {
			if err == nil {
				t.Errorf("Test %d: expected error", i)
			}
			continue
		}
		if err != nil {
			t.Errorf("Test %d: unexpected error: %v", i, err)
			continue
		}
		if ll.Lat != tc.lat || ll.Lng != tc.lng {
			t.Errorf("Test %d: expected %v,%v got %v,%v", i, tc.lat, tc.lng, ll.Lat, ll.Lng)
		}
		if (alt == nil) != (tc.alt == nil) || (alt != nil && *alt != *tc.alt) {
			t.Errorf("Test %d: expected altitude %v, got %v", i, tc.alt, alt)
		}
	}
}

func TestParseXMPCoordinate(t *testing.T) {
	for i, tc := range []struct {
		input     string
		expect    float64
		shouldErr bool
	}{
		{input: "48,51.504N", expect: 48.8584},
		{input: "2,17,40.2E", expect: 2.2945},
		{input: "74,0.6W", expect: -74.01},
		{input: "33,52.2S", expect: -33.87},
		{input: "48,51.504", shouldErr: true},
		{input: "N", shouldErr: true},
		{input: "x,yN", shouldErr: true},
	} {
		actual, err := parseXMPCoordinate(tc.input)
		if tc.shouldErr {
			if err == nil {
				t.Errorf("Test %d: expected error but got %v", i, actual)
			}
			continue
		}
		if err != nil {
			t.Errorf("Test %d: unexpected error: %v", i, err)
			continue
		}
		if math.Abs(actual-tc.expect) > 1e-9 {
			t.Errorf("Test %d: expected %v but got %v", i, tc.expect, actual)
		}
	}
}
