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
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/abema/go-mp4"
	"github.com/timelinize/geoconvert/geodata"
	"go.uber.org/zap"
)

// extractMP4 reads the location that cameras (notably Google and Apple
// devices) store in the ©xyz box under udta, and the creation time from
// the movie header.
func extractMP4(data []byte, logger *zap.Logger) (*Geodata, error) {
	var (
		xyz     string
		created time.Time
	)

	_, err := mp4.ReadBoxStructure(bytes.NewReader(data), func(h *mp4.ReadHandle) (any, error) {
		if h.BoxInfo.IsSupportedType() && h.BoxInfo.Type != mp4.BoxTypeMdat() {
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, fmt.Errorf("reading payload of %s box: %w", h.BoxInfo.Type, err)
			}
			if mvhd, ok := box.(*mp4.Mvhd); ok && created.IsZero() {
				created = isoIEC14496Timestamp(mvhd.GetCreationTime())
			}
			return h.Expand()
		}
		if h.BoxInfo.Context.UnderUdta && h.BoxInfo.Type == [4]byte{'©', 'x', 'y', 'z'} {
			var buf bytes.Buffer
			if _, err := h.ReadData(&buf); err != nil {
				return nil, fmt.Errorf("reading ©xyz box data: %w", err)
			}
			xyz = buf.String()
		}
		return nil, nil
	})
	if err != nil {
		logger.Debug("reading MP4 box structure", zap.Error(err))
	}
	if xyz == "" {
		return nil, nil
	}

	ll, alt, err := parseISO6709(xyz)
	if err != nil {
		return nil, geodata.FormatError{Format: geodata.FormatImage, Msg: "MP4 ©xyz location", Err: err}
	}

	return &Geodata{
		Lat:       ll.Lat,
		Lng:       ll.Lng,
		Altitude:  alt,
		Timestamp: created,
		Source:    "mp4",
	}, nil
}

// parseISO6709 parses the ©xyz box, which is formatted like
// "+50.1234-101.1234+000.000/" (latitude, longitude, optional altitude),
// sometimes preceded by a few bytes of box header.
func parseISO6709(raw string) (geodata.LatLng, *float64, error) {
	matches := xyzCoordsRegex.FindStringSubmatch(raw)
	if matches == nil {
		return geodata.LatLng{}, nil, fmt.Errorf("lat+lon not found in expected format in %q", raw)
	}

	ll, err := geodata.ParseLatLng(matches[1], matches[2])
	if err != nil {
		return geodata.LatLng{}, nil, err
	}

	var alt *float64
	if matches[3] != "" {
		if v, err := strconv.ParseFloat(matches[3], 64); err == nil {
			alt = &v
		}
	}

	return ll, alt, nil
}

var xyzCoordsRegex = regexp.MustCompile(`([+-]\d+(?:\.\d+)?)([+-]\d+(?:\.\d+)?)([+-]\d+(?:\.\d+)?)?`)

// isoIEC14496Timestamp converts seconds since 1904-01-01 (the MP4 epoch)
// to a time.Time. Zero means unset.
func isoIEC14496Timestamp(ts uint64) time.Time {
	if ts <= mp4EpochToUnixEpochSeconds {
		return time.Time{}
	}
	return time.Unix(int64(ts-mp4EpochToUnixEpochSeconds), 0).UTC() //nolint:gosec
}

// Seconds between 1904-01-01 and 1970-01-01.
const mp4EpochToUnixEpochSeconds uint64 = 2082844800
