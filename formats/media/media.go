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

// Package media extracts embedded geodata from photos and videos.
package media

import (
	"bytes"
	"context"
	"image"
	"path"
	"strings"
	"time"

	// image formats whose dimensions we report
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	// zone-less EXIF times are localized by zone name
	_ "time/tzdata"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/timelinize/geoconvert/geodata"
	"go.uber.org/zap"
)

func init() {
	err := geodata.RegisterCodec(geodata.Codec{
		Format:      geodata.FormatImage,
		Title:       "Photo or video location",
		Description: "The GPS location embedded in a photo or video (EXIF, XMP, or QuickTime metadata).",
		Extensions:  extensions,
		Recognize:   recognize,
		Parse:       Parse,
	})
	if err != nil {
		geodata.Log.Fatal("registering codec", zap.Error(err))
	}
}

var extensions = []string{
	".jpg", ".jpeg", ".jpe", ".png", ".tif", ".tiff", ".dng", ".webp",
	".heic", ".heif", ".avif", ".mp4", ".m4v", ".mov", ".3gp",
}

// Geodata is the location information found in a media file.
type Geodata struct {
	Lat, Lng  float64
	Altitude  *float64  // meters
	Timestamp time.Time // zero if unknown

	// Where the coordinates were found: "exif", "xmp", or "mp4".
	Source string

	// IANA name of the time zone at the coordinates, if it was needed to
	// interpret a local timestamp.
	TimeZone string

	// Pixel dimensions, if the file is a decodable image.
	Width, Height int
}

// Extract returns the geodata embedded in data, or nil if there is
// none. EXIF is consulted first, then XMP, then (for MP4/QuickTime
// files) the ©xyz location box. Unreadable metadata is not an error;
// coordinates that are present but out of range are.
func Extract(ctx context.Context, data []byte, logger *zap.Logger) (*Geodata, error) {
	if logger == nil {
		logger = geodata.Log.Named(string(geodata.FormatImage))
	}

	g, err := extractEXIF(data, logger)
	if err != nil {
		return nil, err
	}
	if g == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, err = extractXMP(data, logger)
		if err != nil {
			return nil, err
		}
	}
	if g == nil && isISOBMFF(data) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, err = extractMP4(data, logger)
		if err != nil {
			return nil, err
		}
	}
	if g == nil {
		return nil, nil
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		g.Width, g.Height = cfg.Width, cfg.Height
	}

	return g, nil
}

// Parse returns a dataset with one waypoint, named after the file, at
// the location embedded in data.
func Parse(ctx context.Context, data []byte, opt geodata.ParseOptions) (*geodata.Dataset, error) {
	g, err := Extract(ctx, data, opt.Log)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, geodata.NoGeodataError{Format: geodata.FormatImage, Reason: "no GPS location embedded"}
	}

	p, err := geodata.NewPoint(g.Lat, g.Lng, geodata.Waypoint)
	if err != nil {
		return nil, geodata.FormatError{Format: geodata.FormatImage, Msg: "embedded location", Err: err}
	}
	p.Name = path.Base(strings.ReplaceAll(opt.Filename, `\`, "/"))
	if opt.Filename == "" {
		p.Name = "Photo"
	}
	p.Timestamp = g.Timestamp
	p.Altitude = g.Altitude

	ds := &geodata.Dataset{Points: []geodata.Point{p}}
	ds.SetMeta("Location source", g.Source)
	if g.TimeZone != "" {
		ds.SetMeta("Time zone", g.TimeZone)
	}
	if g.Width > 0 && g.Height > 0 {
		ds.SetMeta("Width", g.Width)
		ds.SetMeta("Height", g.Height)
	}

	return ds, nil
}

func recognize(filename string, data []byte) geodata.Recognition {
	if !hasMediaMagic(data) {
		return geodata.Recognition{}
	}
	if geodata.HasExtension(filename, extensions) {
		return geodata.Recognition{Confidence: 1}
	}
	return geodata.Recognition{Confidence: 0.8}
}

func hasMediaMagic(data []byte) bool {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}): // JPEG
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")): // TIFF, DNG
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
	case isISOBMFF(data): // HEIC, AVIF, MP4, MOV
	default:
		return false
	}
	return true
}

// isISOBMFF returns true if data starts with an ISO base media file
// format "ftyp" box.
func isISOBMFF(data []byte) bool {
	return len(data) >= 12 && string(data[4:8]) == "ftyp"
}
