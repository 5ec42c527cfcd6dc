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

package gccmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	_ "github.com/timelinize/geoconvert/formats/csv"
	_ "github.com/timelinize/geoconvert/formats/geojson"
	_ "github.com/timelinize/geoconvert/formats/gpx"
	_ "github.com/timelinize/geoconvert/formats/kml"
	"github.com/timelinize/geoconvert/geodata"
)

const sampleCSV = "latitude,longitude,timestamp,type,name\n" +
	"40.7829,-73.9654,2024-03-01T10:00:00Z,waypoint,Central Park\n" +
	"40.7484,-73.9857,2024-03-01T11:00:00Z,trackpoint,\n"

func noEnv(string) string { return "" }

func writeFile(t *testing.T, name, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(name, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	if _, err := loadConfigFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing config file that was asked for")
	}

	cfgPath := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, cfgPath, `{"target": "kml", "concurrency": 3, "simplification": 1.5}`)
	cfg, err := loadConfigFile(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target != geodata.FormatKML || cfg.Concurrency != 3 || cfg.Simplification != 1.5 {
		t.Errorf("unexpected config: %+v", cfg)
	}

	writeFile(t, cfgPath, `{"target": `)
	if _, err := loadConfigFile(cfgPath); err == nil {
		t.Error("expected error for malformed config file")
	}
}

func TestConfigPrecedence(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, cfgPath, `{"output_dir": "from-file", "concurrency": 2, "name": "File name", "target": "kml"}`)

	var f cliFlags
	fs := newFlagSet(&f, new(bytes.Buffer))
	if err := fs.Parse([]string{"-config", cfgPath, "-concurrency", "5"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfigFile(f.configFile)
	if err != nil {
		t.Fatal(err)
	}
	env := map[string]string{envOutputDir: "from-env", envConcurrency: "4"}
	if err := cfg.applyEnv(func(key string) string { return env[key] }); err != nil {
		t.Fatal(err)
	}
	f.applyTo(fs, cfg)
	cfg.fillDefaults()

	if cfg.OutputDir != "from-env" {
		t.Errorf("environment should override file, got output dir %q", cfg.OutputDir)
	}
	if cfg.Concurrency != 5 {
		t.Errorf("flag should override environment, got concurrency %d", cfg.Concurrency)
	}
	if cfg.Name != "File name" || cfg.Target != geodata.FormatKML {
		t.Errorf("unset flags should not override file: %+v", cfg)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level, got %q", cfg.LogLevel)
	}

	if err := cfg.applyEnv(func(key string) string {
		if key == envConcurrency {
			return "lots"
		}
		return ""
	}); err == nil {
		t.Error("expected error for non-numeric concurrency")
	}
}

func TestConfigValidate(t *testing.T) {
	for i, tc := range []struct {
		cfg       Config
		shouldErr bool
	}{
		{cfg: Config{Target: geodata.FormatGeoJSON, Concurrency: 1}},
		{cfg: Config{Target: "shapefile", Concurrency: 1}, shouldErr: true},
		{cfg: Config{Target: geodata.FormatNMEA, Concurrency: 1}, shouldErr: true},
		{cfg: Config{Target: geodata.FormatGPX, Concurrency: 1, Simplification: 11}, shouldErr: true},
	} {
		err := tc.cfg.validate()
		if tc.shouldErr && err == nil {
			t.Errorf("Test %d: expected error", i)
		}
		if !tc.shouldErr && err != nil {
			t.Errorf("Test %d: unexpected error: %v", i, err)
		}
	}
}

func TestGatherInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"track10.gpx",
		"track2.gpx",
		".hidden.gpx",
		filepath.Join(".git", "track1.gpx"),
		"notes.txt",
		filepath.Join("sub", "track1.csv"),
	} {
		writeFile(t, filepath.Join(dir, name), "x")
	}
	explicit := filepath.Join(dir, "notes.txt")

	files, err := gatherInputs([]string{dir, explicit, filepath.Join(dir, "track2.gpx")})
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{
		filepath.Join(dir, "sub", "track1.csv"),
		filepath.Join(dir, "track2.gpx"),
		filepath.Join(dir, "track10.gpx"),
		explicit,
	}
	if !slices.Equal(files, expected) {
		t.Errorf("expected %v but got %v", expected, files)
	}

	if _, err := gatherInputs([]string{filepath.Join(dir, "nope")}); err == nil {
		t.Error("expected error for missing input")
	}
}

func TestOutputNamer(t *testing.T) {
	o := newOutputNamer("", []string{filepath.Join("a", "walk.gpx")})
	if p := o.next(filepath.Join("a", "walk.gpx"), "walk.gpx"); p != filepath.Join("a", "walk-2.gpx") {
		t.Errorf("output must not overwrite its input, got %s", p)
	}

	o = newOutputNamer("out", []string{filepath.Join("a", "walk.csv"), filepath.Join("b", "walk.kml")})
	first := o.next(filepath.Join("a", "walk.csv"), "walk.geojson")
	second := o.next(filepath.Join("b", "walk.kml"), "walk.geojson")
	if first != filepath.Join("out", "walk.geojson") || second != filepath.Join("out", "walk-2.geojson") {
		t.Errorf("unexpected output names: %s, %s", first, second)
	}

	// another input of the same run is never overwritten either
	o = newOutputNamer("", []string{"a.gpx", "a.kml"})
	if p := o.next("a.kml", "a.gpx"); p != "a-2.gpx" {
		t.Errorf("output must not overwrite another input, got %s", p)
	}
}

func TestRunKeepsInputsSharingAName(t *testing.T) {
	dir := t.TempDir()
	gpxInput := filepath.Join(dir, "a.gpx")
	const original = `<gpx version="1.1" creator="test"><wpt lat="1" lon="2"><name>orig</name></wpt></gpx>`
	writeFile(t, gpxInput, original)
	writeFile(t, filepath.Join(dir, "a.kml"), `<kml xmlns="http://www.opengis.net/kml/2.2">`+
		`<Placemark><name>k</name><Point><coordinates>10,20</coordinates></Point></Placemark></kml>`)
	cfgPath := filepath.Join(dir, "config.json")
	writeFile(t, cfgPath, `{"log_level": "error"}`)

	err := run(context.Background(), []string{
		"-config", cfgPath,
		"-to", "gpx",
		"-progress=false",
		dir,
	}, new(bytes.Buffer), noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := os.ReadFile(gpxInput)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != original {
		t.Errorf("input was overwritten: %s", got)
	}
	fromKML, err := os.ReadFile(filepath.Join(dir, "a-3.gpx"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(fromKML), "<name>k</name>") {
		t.Errorf("expected the KML placemark in a-3.gpx, got %s", fromKML)
	}
	if _, err := os.Stat(filepath.Join(dir, "a-2.gpx")); err != nil {
		t.Errorf("expected a-2.gpx from a.gpx: %v", err)
	}
}

func TestRunContinuesPastUnreadableInput(t *testing.T) {
	const unreadable = "/proc/self/mem"
	if runtime.GOOS != "linux" {
		t.Skip("needs a file that exists but cannot be read")
	}
	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	writeFile(t, good, sampleCSV)
	cfgPath := filepath.Join(dir, "config.json")
	writeFile(t, cfgPath, `{"log_level": "fatal"}`)

	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"-config", cfgPath,
		"-progress=false",
		"-summary",
		good, unreadable,
	}, &stdout, noEnv)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 files failed") {
		t.Errorf("expected one failure, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "good.gpx")); err != nil {
		t.Errorf("readable file should still be converted: %v", err)
	}

	var reports []fileReport
	if err := json.Unmarshal(stdout.Bytes(), &reports); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if len(reports) != 2 || reports[0].Output == "" || !strings.Contains(reports[1].Error, "reading input") {
		t.Errorf("unexpected reports: %+v", reports)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in", "walk.csv")
	writeFile(t, input, sampleCSV)
	cfgPath := filepath.Join(dir, "config.json")
	writeFile(t, cfgPath, `{"log_level": "error"}`)
	outDir := filepath.Join(dir, "out")

	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"-config", cfgPath,
		"-to", "geojson",
		"-out", outDir,
		"-progress=false",
		"-summary",
		input,
	}, &stdout, noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var reports []fileReport
	if err := json.Unmarshal(stdout.Bytes(), &reports); err != nil {
		t.Fatalf("decoding summary: %v\n%s", err, stdout.String())
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	rep := reports[0]
	expectedOut := filepath.Join(outDir, "walk.geojson")
	if rep.Output != expectedOut || rep.Error != "" {
		t.Errorf("unexpected report: %+v", rep)
	}
	if rep.Summary == nil || rep.Summary.PointCount != 2 || rep.Summary.SourceFormat != geodata.FormatCSV {
		t.Errorf("unexpected summary: %+v", rep.Summary)
	}

	out, err := os.ReadFile(expectedOut)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"Central Park"`) {
		t.Errorf("output is missing the waypoint: %s", out)
	}
}

func TestRunReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.csv"), sampleCSV)
	writeFile(t, filepath.Join(dir, "bad.csv"), "latitude,longitude\n")
	cfgPath := filepath.Join(dir, "config.json")
	writeFile(t, cfgPath, `{"log_level": "error"}`)

	err := run(context.Background(), []string{
		"-config", cfgPath,
		"-progress=false",
		dir,
	}, new(bytes.Buffer), noEnv)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 files failed") {
		t.Errorf("expected one failure, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "good.gpx")); err != nil {
		t.Errorf("good file should still be converted: %v", err)
	}
}

func TestRunFormats(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, cfgPath, `{}`)

	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"-config", cfgPath, "formats"}, &stdout, noEnv); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"FORMAT", "gpx", "geojson", "csv"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("formats output is missing %q:\n%s", want, stdout.String())
		}
	}
}
