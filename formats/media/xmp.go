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
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mholt/go-xmp/xmp"
	"github.com/timelinize/geoconvert/geodata"
	"go.uber.org/zap"
)

func extractXMP(data []byte, logger *zap.Logger) (*Geodata, error) {
	packets, err := xmp.ScanPackets(bytes.NewReader(data))
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Debug("scanning for XMP packets", zap.Error(err))
		}
		return nil, nil
	}

	for _, packet := range packets {
		var doc xmp.Document
		if err := xmp.Unmarshal(packet, &doc); err != nil {
			logger.Debug("unmarshaling XMP document", zap.Error(err))
			continue
		}
		paths, err := doc.ListPaths()
		if err != nil {
			logger.Debug("listing XMP paths", zap.Error(err))
			continue
		}

		var latStr, lngStr, altStr, altRef string
		for _, p := range paths {
			switch string(p.Path) {
			case "exif:GPSLatitude":
				latStr = p.Value
			case "exif:GPSLongitude":
				lngStr = p.Value
			case "exif:GPSAltitude":
				altStr = p.Value
			case "exif:GPSAltitudeRef":
				altRef = p.Value
			}
		}
		if latStr == "" || lngStr == "" {
			continue
		}

		lat, err := parseXMPCoordinate(latStr)
		if err != nil {
			return nil, geodata.FormatError{Format: geodata.FormatImage, Msg: "XMP GPS latitude", Err: err}
		}
		lng, err := parseXMPCoordinate(lngStr)
		if err != nil {
			return nil, geodata.FormatError{Format: geodata.FormatImage, Msg: "XMP GPS longitude", Err: err}
		}
		if err := geodata.ValidateLatLng(lat, lng); err != nil {
			return nil, geodata.FormatError{Format: geodata.FormatImage, Msg: "XMP GPS coordinates", Err: err}
		}

		g := &Geodata{Lat: lat, Lng: lng, Source: "xmp"}
		if alt, err := parseXMPRational(altStr); err == nil {
			if altRef == "1" {
				alt = -alt
			}
			g.Altitude = &alt
		}
		return g, nil
	}

	return nil, nil
}

// parseXMPCoordinate parses an XMP GPSCoordinate, which is either
// "DDD,MM,SSk" or "DDD,MM.mmk" where k is N, S, E, or W.
func parseXMPCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("malformed coordinate: %q", s)
	}

	var sign float64
	switch s[len(s)-1] {
	case 'N', 'n', 'E', 'e':
		sign = 1
	case 'S', 's', 'W', 'w':
		sign = -1
	default:
		return 0, fmt.Errorf("coordinate %q has no direction", s)
	}

	parts := strings.Split(s[:len(s)-1], ",")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed coordinate: %q", s)
	}

	var deg float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, fmt.Errorf("coordinate %q: %w", s, err)
		}
		switch i {
		case 0:
			deg += v
		case 1:
			deg += v / 60
		case 2:
			deg += v / 3600
		}
	}

	return sign * deg, nil
}

// parseXMPRational parses an XMP rational like "1234/10".
func parseXMPRational(s string) (float64, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	if !ok {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, errors.New("zero denominator")
	}
	return n / d, nil
}
