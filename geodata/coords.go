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
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/s2"
)

// E7ToDecimal converts a coordinate stored as an integer scaled by 10^7
// (as in Google location history) to decimal degrees.
func E7ToDecimal(e7 int64) float64 {
	return float64(e7) / placesMult
}

// SemicirclesToDegrees converts a FIT semicircle value to degrees, where
// 2^31 semicircles is 180 degrees. It takes int64 so that the full
// range, including 2^31 itself, is representable.
func SemicirclesToDegrees(sc int64) float64 {
	return float64(sc) * (180.0 / semicirclesPer180)
}

// DegreesToSemicircles is the inverse of SemicirclesToDegrees.
func DegreesToSemicircles(deg float64) int64 {
	return int64(math.Round(deg * (semicirclesPer180 / 180.0)))
}

// ValidateLatLng returns an error if lat or lng is not a finite number
// within [-90, 90] and [-180, 180] respectively.
func ValidateLatLng(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude out of range: %v", lat)
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) || lng < -180 || lng > 180 {
		return fmt.Errorf("longitude out of range: %v", lng)
	}
	return nil
}

// ParseLatLng parses decimal-degree strings into a validated coordinate.
func ParseLatLng(latStr, lngStr string) (LatLng, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return LatLng{}, fmt.Errorf("bad latitude %q: %w", latStr, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return LatLng{}, fmt.Errorf("bad longitude %q: %w", lngStr, err)
	}
	if err := ValidateLatLng(lat, lng); err != nil {
		return LatLng{}, err
	}
	return LatLng{Lat: lat, Lng: lng}, nil
}

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b LatLng) float64 {
	angle := s2.LatLngFromDegrees(a.Lat, a.Lng).Distance(s2.LatLngFromDegrees(b.Lat, b.Lng))
	return angle.Radians() * earthRadiusMeters
}

// PathLengthMeters returns the sum of great-circle distances between
// consecutive coordinates.
func PathLengthMeters(coords []LatLng) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += DistanceMeters(coords[i-1], coords[i])
	}
	return total
}

const (
	placesMult = 1e7

	semicirclesPer180 = 1 << 31

	earthRadiusMeters = 6371008.8
)
