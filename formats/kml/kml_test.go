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

package kml

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/timelinize/geoconvert/geodata"
)

func TestParseCoordinatesAxisOrder(t *testing.T) {
	const input = `<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
		<Placemark><name>Spot</name><Point><coordinates>10.0,20.0,5</coordinates></Point></Placemark>
	</Document></kml>`

	ds, err := Parse(context.Background(), []byte(input), geodata.ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(ds.Points))
	}
	p := ds.Points[0]
	if p.Lat != 20 || p.Lng != 10 || p.Altitude == nil || *p.Altitude != 5 {
		t.Errorf("expected lat=20 lng=10 alt=5, got lat=%v lng=%v alt=%v", p.Lat, p.Lng, p.Altitude)
	}
	if p.Type != geodata.Waypoint || p.Name != "Spot" {
		t.Errorf("unexpected point: %+v", p)
	}
}

func TestParseGeometries(t *testing.T) {
	const input = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2" xmlns:gx="http://www.google.com/kml/ext/2.2">
<Document>
  <name>Trip</name>
  <Folder>
    <Placemark>
      <name>Home</name>
      <description>Where the heart is</description>
      <TimeStamp><when>2020-05-01T10:00:00Z</when></TimeStamp>
      <Point><coordinates>-0.1276,51.5072</coordinates></Point>
    </Placemark>
    <Placemark>
      <name>Bad</name>
      <Point><coordinates>abc,def</coordinates></Point>
    </Placemark>
    <Placemark>
      <LineString><coordinates>
        -0.1,51.5,10 -0.2,51.6,11
        -0.3,51.7
      </coordinates></LineString>
    </Placemark>
  </Folder>
  <Placemark>
    <name>Sights</name>
    <TimeStamp><when>2020-05-01T10:30:00Z</when></TimeStamp>
    <MultiGeometry>
      <Point><coordinates>1,2</coordinates></Point>
      <LineString><coordinates>3,4 5,6</coordinates></LineString>
    </MultiGeometry>
  </Placemark>
  <Placemark>
    <gx:Track>
      <when>2020-05-01T11:00:00Z</when>
      <when>2020-05-01T11:00:05Z</when>
      <gx:coord>-122.207881 37.371915 156.0</gx:coord>
      <gx:coord>-122.205712 37.373288 152.0</gx:coord>
    </gx:Track>
  </Placemark>
</Document>
</kml>`

	ds, err := Parse(context.Background(), []byte(input), geodata.ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 1 waypoint + 3 line + 1 multigeometry waypoint + 2 multigeometry line + 2 track
	if len(ds.Points) != 9 {
		t.Fatalf("expected 9 points, got %d", len(ds.Points))
	}

	home := ds.Points[0]
	if home.Name != "Home" || home.Address != "Where the heart is" ||
		!home.Timestamp.Equal(time.Date(2020, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected waypoint: %+v", home)
	}
	if ds.Points[3].Altitude != nil {
		t.Errorf("tuple without altitude should have nil altitude, got %v", *ds.Points[3].Altitude)
	}
	for i, p := range ds.Points[1:] {
		want := geodata.Trackpoint
		if i+1 == 4 {
			want = geodata.Waypoint
		}
		if p.Type != want {
			t.Errorf("Point %d: expected %s, got %s", i+1, want, p.Type)
		}
	}
	sight := ds.Points[4]
	if sight.Name != "Sights" || sight.Lat != 2 || sight.Lng != 1 ||
		!sight.Timestamp.Equal(time.Date(2020, 5, 1, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected multigeometry waypoint: %+v", sight)
	}
	track := ds.Points[7]
	if track.Lat != 37.371915 || track.Lng != -122.207881 || *track.Altitude != 156 {
		t.Errorf("unexpected gx:Track point: %+v", track)
	}
	if !ds.Points[8].Timestamp.Equal(time.Date(2020, 5, 1, 11, 0, 5, 0, time.UTC)) {
		t.Errorf("unexpected gx:Track time: %v", ds.Points[8].Timestamp)
	}

	if len(ds.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", ds.Warnings)
	}
	var skipped geodata.SkippedRecordWarning
	if !errors.As(ds.Warnings[0], &skipped) || skipped.Index != 1 {
		t.Errorf("unexpected warning: %v", ds.Warnings[0])
	}
	if ds.Metadata["Name"] != "Trip" {
		t.Errorf("unexpected document name: %v", ds.Metadata["Name"])
	}
}

func TestParseKeepsPlacemarkWithBadField(t *testing.T) {
	const input = `<kml xmlns:gx="http://www.google.com/kml/ext/2.2">
  <Placemark>
    <name>Cabin</name>
    <TimeStamp><when>last summer</when></TimeStamp>
    <Point><coordinates>7.5,46.2,high</coordinates></Point>
  </Placemark>
  <Placemark><gx:Track>
    <when>2020-05-01T11:00:00Z</when>
    <when>not a time</when>
    <gx:coord>1 2 3</gx:coord>
    <gx:coord>4 5 6</gx:coord>
  </gx:Track></Placemark>
</kml>`

	ds, err := Parse(context.Background(), []byte(input), geodata.ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(ds.Points))
	}
	cabin := ds.Points[0]
	if cabin.Name != "Cabin" || cabin.Lat != 46.2 || cabin.Altitude != nil || !cabin.Timestamp.IsZero() {
		t.Errorf("unexpected waypoint: %+v", cabin)
	}
	if ds.Points[2].Altitude == nil || !ds.Points[2].Timestamp.IsZero() {
		t.Errorf("gx:coord with a bad time should keep its position and altitude: %+v", ds.Points[2])
	}

	expected := []struct {
		kind  string
		index int
	}{{"Placemark time", 0}, {"Placemark altitude", 0}, {"gx:when", 1}}
	if len(ds.Warnings) != len(expected) {
		t.Fatalf("expected %d warnings, got %v", len(expected), ds.Warnings)
	}
	for i, want := range expected {
		var skipped geodata.SkippedRecordWarning
		if !errors.As(ds.Warnings[i], &skipped) || skipped.Kind != want.kind || skipped.Index != want.index {
			t.Errorf("Warning %d: expected %s #%d, got %v", i, want.kind, want.index, ds.Warnings[i])
		}
	}
}

func TestParseMismatchedTrack(t *testing.T) {
	const input = `<kml xmlns:gx="http://www.google.com/kml/ext/2.2"><Placemark><gx:Track>
		<when>2020-05-01T11:00:00Z</when>
		<gx:coord>1 2 3</gx:coord><gx:coord>4 5 6</gx:coord>
	</gx:Track></Placemark></kml>`

	_, err := geodata.Parse(context.Background(), geodata.FormatKML, []byte(input), geodata.ParseOptions{})
	var noGeo geodata.NoGeodataError
	if !errors.As(err, &noGeo) {
		t.Errorf("expected NoGeodataError, got %v", err)
	}
}

func TestParseBadInput(t *testing.T) {
	for i, input := range []string{"", "garbage", `<gpx></gpx>`, `<kml><Placemark></kml>`} {
		_, err := Parse(context.Background(), []byte(input), geodata.ParseOptions{})
		var formatErr geodata.FormatError
		if !errors.As(err, &formatErr) {
			t.Errorf("Test %d: expected FormatError, got %v", i, err)
		}
	}
}

func testDataset() *geodata.Dataset {
	wpt, _ := geodata.NewPoint(48.8584, 2.2945, geodata.Waypoint)
	wpt.Name = "Eiffel Tower & Friends"
	wpt.Timestamp = time.Date(2022, 8, 1, 12, 0, 0, 0, time.UTC)
	var points []geodata.Point
	points = append(points, wpt)
	for i, lat := range []float64{48.85, 48.86, 48.87} {
		p, _ := geodata.NewPoint(lat, 2.3, geodata.Trackpoint)
		p.Timestamp = time.Date(2022, 8, 1, 13, i, 0, 0, time.UTC)
		p.Altitude = geodata.Float64(35)
		points = append(points, p)
	}
	return &geodata.Dataset{Points: points}
}

func TestSerialize(t *testing.T) {
	ds := testDataset()
	opt := geodata.SerializeOptions{Name: "Paris", GeneratedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	out, err := Serialize(context.Background(), ds, opt)
	if err != nil {
		t.Fatal(err)
	}
	doc := string(out)
	for _, expect := range []string{
		`xmlns="http://www.opengis.net/kml/2.2"`,
		`xmlns:gx="http://www.google.com/kml/ext/2.2"`,
		`<coordinates>2.2945,48.8584</coordinates>`,
		`<when>2022-08-01T12:00:00Z</when>`,
		`<gx:coord>2.3 48.86 35</gx:coord>`,
		`Eiffel Tower &amp; Friends`,
		`2024-01-01T00:00:00Z`,
	} {
		if !strings.Contains(doc, expect) {
			t.Errorf("expected output to contain %q:\n%s", expect, doc)
		}
	}

	back, err := Parse(context.Background(), out, geodata.ParseOptions{})
	if err != nil {
		t.Fatalf("parsing own output: %v", err)
	}
	if len(back.Points) != len(ds.Points) {
		t.Fatalf("expected %d points back, got %d", len(ds.Points), len(back.Points))
	}
	for i := range ds.Points {
		if back.Points[i].Lat != ds.Points[i].Lat || back.Points[i].Lng != ds.Points[i].Lng ||
			!back.Points[i].Timestamp.Equal(ds.Points[i].Timestamp) {
			t.Errorf("point %d: expected %+v, got %+v", i, ds.Points[i], back.Points[i])
		}
	}

	// without timestamps, a LineString is written instead
	for i := range ds.Points[1:] {
		ds.Points[i+1].Timestamp = time.Time{}
	}
	out, err = Serialize(context.Background(), ds, opt)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `<coordinates>2.3,48.85,35 2.3,48.86,35 2.3,48.87,35</coordinates>`) {
		t.Errorf("expected LineString coordinates:\n%s", out)
	}
}

func TestKMZRoundTrip(t *testing.T) {
	ds := testDataset()
	opt := geodata.SerializeOptions{Name: "Paris", GeneratedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	kmz, err := SerializeKMZ(context.Background(), ds, opt)
	if err != nil {
		t.Fatal(err)
	}

	zr, err := zip.NewReader(bytes.NewReader(kmz), int64(len(kmz)))
	if err != nil {
		t.Fatalf("output is not a zip file: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "doc.kml" || zr.File[0].Method != zip.Deflate {
		t.Errorf("expected single deflated doc.kml entry, got %+v", zr.File)
	}

	if rec := recognizeKMZ("trip.kmz", kmz); rec.Confidence != 1 {
		t.Errorf("expected KMZ to be recognized, got %v", rec.Confidence)
	}

	back, err := ParseKMZ(context.Background(), kmz, geodata.ParseOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Points) != len(ds.Points) {
		t.Errorf("expected %d points, got %d", len(ds.Points), len(back.Points))
	}
}

func TestUnpackKMZEntrySelection(t *testing.T) {
	mkZip := func(entries ...string) []byte {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		for _, name := range entries {
			w, err := zw.Create(name)
			if err != nil {
				t.Fatal(err)
			}
			_, _ = w.Write([]byte("<kml><!--" + name + "--></kml>"))
		}
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	for i, tc := range []struct {
		entries []string
		expect  string
	}{
		{entries: []string{"files/a.kml", "other.kml", "doc.kml"}, expect: "doc.kml"},
		{entries: []string{"files/a.kml", "first.kml", "second.kml"}, expect: "first.kml"},
		{entries: []string{"images/icon.png", "files/nested.kml"}, expect: "files/nested.kml"},
	} {
		doc, err := UnpackKMZ(context.Background(), mkZip(tc.entries...))
		if err != nil {
			t.Errorf("Test %d: unexpected error: %v", i, err)
			continue
		}
		if !strings.Contains(string(doc), tc.expect) {
			t.Errorf("Test %d: expected %s, got %s", i, tc.expect, doc)
		}
	}

	_, err := UnpackKMZ(context.Background(), mkZip("images/icon.png"))
	var archiveErr geodata.ArchiveError
	if !errors.As(err, &archiveErr) {
		t.Errorf("expected ArchiveError for archive without KML, got %v", err)
	}

	_, err = UnpackKMZ(context.Background(), []byte("definitely not a zip"))
	if !errors.As(err, &archiveErr) {
		t.Errorf("expected ArchiveError for garbage, got %v", err)
	}
}
