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

package geodata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Format names a file format.
type Format string

// Known formats. Only formats whose packages are imported are registered.
const (
	FormatGoogleTimeline Format = "google-timeline-json"
	FormatGPX            Format = "gpx"
	FormatKML            Format = "kml"
	FormatKMZ            Format = "kmz"
	FormatTCX            Format = "tcx"
	FormatFIT            Format = "fit"
	FormatImage          Format = "image-exif"
	FormatGeoJSON        Format = "geojson"
	FormatCSV            Format = "csv"
	FormatNMEA           Format = "nmea"
)

// ParseFunc parses raw bytes into a dataset. It should return a
// FormatError if the input is not valid for the format. It need not
// check for an empty result; Parse does that.
type ParseFunc func(ctx context.Context, data []byte, opt ParseOptions) (*Dataset, error)

// SerializeFunc renders a dataset. It must be deterministic for a given
// dataset and options.
type SerializeFunc func(ctx context.Context, ds *Dataset, opt SerializeOptions) ([]byte, error)

// RecognizeFunc reports how confident a codec is that it can parse the
// input, given its filename (may be empty) and contents.
type RecognizeFunc func(filename string, data []byte) Recognition

// Recognition is the result of a RecognizeFunc.
type Recognition struct {
	// Confidence is in [0, 1].
	Confidence float64
}

// ParseOptions configures parsing.
type ParseOptions struct {
	// Original filename, if known. Some formats use it for naming.
	Filename string

	// If true, formats that support it will accept non-compliant
	// input where it can be interpreted sensibly.
	Lenient bool

	// Optional; defaults to a logger named after the format.
	Log *zap.Logger
}

// SerializeOptions configures serialization.
type SerializeOptions struct {
	// Document-level name and description.
	Name        string
	Description string

	// The one timestamp embedded in output that does not come from the
	// data. Defaults to the current time when zero.
	GeneratedAt time.Time

	// Optional; defaults to a logger named after the format.
	Log *zap.Logger
}

// Codec has information about a file format that can be registered.
// A codec may be a source (Parse), a target (Serialize), or both.
type Codec struct {
	// A unique, kebab-cased name of the format.
	Format Format

	// The human-readable name of the format.
	Title string

	// Information that helps the user choose a format.
	Description string

	// Lowercased file extensions including the dot, such as ".gpx".
	// The first one is used when naming output files.
	Extensions []string

	// The MIME type of serialized output.
	MIMEType string

	Recognize RecognizeFunc `json:"-"`
	Parse     ParseFunc     `json:"-"`
	Serialize SerializeFunc `json:"-"`
}

// CanParse returns true if the codec is a source format.
func (c Codec) CanParse() bool { return c.Parse != nil }

// CanSerialize returns true if the codec is a target format.
func (c Codec) CanSerialize() bool { return c.Serialize != nil }

// Extension returns the preferred file extension, or "" if none.
func (c Codec) Extension() string {
	if len(c.Extensions) == 0 {
		return ""
	}
	return c.Extensions[0]
}

// RegisterCodec registers c as a format. It should be called from init.
func RegisterCodec(c Codec) error {
	if c.Format == "" {
		return errors.New("missing format name")
	}
	if c.Title == "" {
		return errors.New("missing title")
	}
	if c.Parse == nil && c.Serialize == nil {
		return fmt.Errorf("codec %s can neither parse nor serialize", c.Format)
	}
	if c.Serialize != nil && c.MIMEType == "" {
		return fmt.Errorf("codec %s serializes but has no MIME type", c.Format)
	}
	for i, ext := range c.Extensions {
		c.Extensions[i] = strings.ToLower(ext)
	}

	if _, ok := codecs[c.Format]; ok {
		return fmt.Errorf("format already registered: %s", c.Format)
	}
	codecs[c.Format] = c

	return nil
}

// GetCodec gets the codec registered for the given format.
func GetCodec(format Format) (Codec, error) {
	c, ok := codecs[format]
	if !ok {
		return Codec{}, fmt.Errorf("format not registered: %s", format)
	}
	return c, nil
}

// AllCodecs returns all registered codecs sorted by format name.
func AllCodecs() []Codec {
	all := make([]Codec, 0, len(codecs))
	for _, c := range codecs {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Format < all[j].Format
	})
	return all
}

// codecs is written only during init, so reads need no lock.
var codecs = make(map[Format]Codec)
