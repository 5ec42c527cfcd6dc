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

package gpx

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/timelinize/geoconvert/geodata"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <metadata>
    <name>Verbier to Chamonix</name>
    <time>2023-04-01T17:16:10Z</time>
  </metadata>
  <wpt lat="48.8584" lon="2.2945"><name>Eiffel Tower</name><desc>Champ de Mars</desc><ele>35</ele></wpt>
  <trk>
    <name>Morning Ride</name>
    <type>cycling</type>
    <trkseg>
      <trkpt lat="46.0960" lon="7.2288"><ele>1500.5</ele><time>2023-04-01T17:16:10Z</time></trkpt>
      <trkpt lat="north" lon="7.2290"><time>2023-04-01T17:16:20Z</time></trkpt>
      <trkpt lat="46.0970" lon="7.2300"><time>2023-04-01T17:16:30Z</time><extensions><speed>3</speed></extensions></trkpt>
    </trkseg>
  </trk>
  <rte><rtept lat="45.9237" lon="6.8694"/></rte>
</gpx>`

func TestParse(t *testing.T) {
	ds, err := Parse(context.Background(), []byte(sampleGPX), geodata.ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ds.Points) != 4 {
		t.Fatalf("expected 4 points, got %d: %+v", len(ds.Points), ds.Points)
	}

	wpt := ds.Points[0]
	if wpt.Type != geodata.Waypoint || wpt.Name != "Eiffel Tower" || wpt.Address != "Champ de Mars" {
		t.Errorf("unexpected waypoint: %+v", wpt)
	}
	if wpt.Lat != 48.8584 || wpt.Lng != 2.2945 || wpt.Altitude == nil || *wpt.Altitude != 35 {
		t.Errorf("unexpected waypoint position: %+v", wpt)
	}

	trkpt := ds.Points[1]
	if trkpt.Type != geodata.Trackpoint || trkpt.ActivityType != "cycling" {
		t.Errorf("unexpected trackpoint: %+v", trkpt)
	}
	if !trkpt.Timestamp.Equal(time.Date(2023, 4, 1, 17, 16, 10, 0, time.UTC)) {
		t.Errorf("unexpected timestamp: %v", trkpt.Timestamp)
	}

	rtept := ds.Points[3]
	if rtept.Type != geodata.Trackpoint || rtept.ActivityType != "" {
		t.Errorf("route point should not inherit the track's type: %+v", rtept)
	}

	if len(ds.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", ds.Warnings)
	}
	var skipped geodata.SkippedRecordWarning
	if !errors.As(ds.Warnings[0], &skipped) || skipped.Kind != "trkpt" || skipped.Index != 1 {
		t.Errorf("unexpected warning: %v", ds.Warnings[0])
	}

	if ds.Metadata["Name"] != "Verbier to Chamonix" {
		t.Errorf("unexpected name metadata: %v", ds.Metadata["Name"])
	}
}

func TestParseKeepsPointWithBadField(t *testing.T) {
	input := `<gpx version="1.1"><trk><trkseg>
<trkpt lat="46.0960" lon="7.2288"><ele>1500</ele><time>2023-04-01T17:16:10Z</time></trkpt>
<trkpt lat="46.0965" lon="7.2290"><ele>1501</ele><time>yesterday</time></trkpt>
<trkpt lat="46.0970" lon="7.2300"><ele>n/a</ele><time>2023-04-01T17:16:30Z</time></trkpt>
</trkseg></trk></gpx>`

	ds, err := Parse(context.Background(), []byte(input), geodata.ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(ds.Points))
	}
	if !ds.Points[1].Timestamp.IsZero() || ds.Points[1].Altitude == nil || *ds.Points[1].Altitude != 1501 {
		t.Errorf("point with bad time should keep only its other fields: %+v", ds.Points[1])
	}
	if ds.Points[2].Altitude != nil || ds.Points[2].Timestamp.IsZero() {
		t.Errorf("point with bad elevation should keep only its other fields: %+v", ds.Points[2])
	}

	expected := []struct {
		kind  string
		index int
	}{{"trkpt time", 1}, {"trkpt ele", 2}}
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

func TestParseGPX10AndCharset(t *testing.T) {
	// "Zürich" encoded as ISO-8859-1
	input := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<gpx version=\"1.0\"><name>Z\xfcrich</name><wpt lat=\"47.3769\" lon=\"8.5417\"><name>Z\xfcrich HB</name></wpt></gpx>"

	ds, err := Parse(context.Background(), []byte(input), geodata.ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Points) != 1 || ds.Points[0].Name != "Zürich HB" {
		t.Errorf("unexpected points: %+v", ds.Points)
	}
	if ds.Metadata["Name"] != "Zürich" {
		t.Errorf("unexpected name metadata: %v", ds.Metadata["Name"])
	}
}

func TestParseBadInput(t *testing.T) {
	for i, input := range []string{
		"not xml at all",
		`<kml xmlns="http://www.opengis.net/kml/2.2"></kml>`,
		`<gpx><wpt lat="1" lon="2"></gpx>`,
	} {
		_, err := Parse(context.Background(), []byte(input), geodata.ParseOptions{})
		var formatErr geodata.FormatError
		if !errors.As(err, &formatErr) {
			t.Errorf("Test %d: expected FormatError, got %v", i, err)
		}
	}

	// a valid but empty document is not a format error, just no data
	_, err := geodata.Parse(context.Background(), geodata.FormatGPX, []byte(`<gpx version="1.1"></gpx>`), geodata.ParseOptions{})
	var noGeo geodata.NoGeodataError
	if !errors.As(err, &noGeo) {
		t.Errorf("expected NoGeodataError, got %v", err)
	}
}

func TestParseLenientTruncated(t *testing.T) {
	input := `<gpx><trk><trkseg><trkpt lat="1" lon="2"></trkpt><trkpt lat="3" lon="4"></trkpt><trkpt lat=`

	if _, err := Parse(context.Background(), []byte(input), geodata.ParseOptions{}); err == nil {
		t.Error("expected error in strict mode")
	}

	ds, err := Parse(context.Background(), []byte(input), geodata.ParseOptions{Lenient: true})
	if err != nil {
		t.Fatalf("unexpected error in lenient mode: %v", err)
	}
	if len(ds.Points) != 2 || len(ds.Warnings) != 1 {
		t.Errorf("expected 2 points and 1 warning, got %d and %v", len(ds.Points), ds.Warnings)
	}
}

func TestSerialize(t *testing.T) {
	visit, _ := geodata.NewPoint(40.785091, -73.968285, geodata.PlaceVisit)
	visit.Name = `Tom & Jerry's <Place>`
	visit.Address = "Central Park, NYC"
	path, _ := geodata.NewPath([]geodata.LatLng{{Lat: 40.1, Lng: -73.1}, {Lat: 40.2, Lng: -73.2}})
	path.StartTimestamp = time.Date(2021, 7, 4, 9, 0, 0, 0, time.UTC)

	ds := &geodata.Dataset{Points: []geodata.Point{visit}, Paths: []geodata.Path{path}}
	opt := geodata.SerializeOptions{
		Name:        "My <trip>",
		GeneratedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	out, err := Serialize(context.Background(), ds, opt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := string(out)
	for _, expect := range []string{
		`http://www.topografix.com/GPX/1/1`,
		`Tom &amp; Jerry`,
		`&lt;Place&gt;`,
		`My &lt;trip&gt;`,
		`2021-07-04T09:00:00Z`,
	} {
		if !strings.Contains(doc, expect) {
			t.Errorf("expected output to contain %q:\n%s", expect, doc)
		}
	}

	again, err := Serialize(context.Background(), ds, opt)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != doc {
		t.Error("output is not deterministic")
	}

	// and it reads back
	back, err := Parse(context.Background(), out, geodata.ParseOptions{})
	if err != nil {
		t.Fatalf("parsing own output: %v", err)
	}
	if len(back.Points) != 3 {
		t.Fatalf("expected 3 points back, got %d", len(back.Points))
	}
	if back.Points[0].Name != visit.Name || back.Points[0].Address != visit.Address {
		t.Errorf("waypoint text did not survive: %+v", back.Points[0])
	}
}
