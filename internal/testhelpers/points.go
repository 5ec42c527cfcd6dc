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

// Package testhelpers has assertions shared by the format packages' tests.
package testhelpers

import (
	"fmt"
	"math"
	"testing"

	"github.com/timelinize/geoconvert/geodata"
)

// ValidatePoints fails the test if actual does not have the same number
// of points as expected, or if any point's type or coordinates differ
// beyond the given number of decimal places.
func ValidatePoints(t *testing.T, expected, actual []geodata.Point, places int, errorMessage string, errorArgs ...any) {
	t.Helper()
	errMsg := fmt.Sprintf(errorMessage, errorArgs...)

	if len(actual) != len(expected) {
		t.Fatalf("%s; expected %d points but got %d", errMsg, len(expected), len(actual))
	}
	for i := range expected {
		if actual[i].Type != expected[i].Type {
			t.Errorf("%s; point %d: expected type %s but got %s", errMsg, i, expected[i].Type, actual[i].Type)
		}
		if !SameCoordinate(expected[i].Lat, actual[i].Lat, places) || !SameCoordinate(expected[i].Lng, actual[i].Lng, places) {
			t.Errorf("%s; point %d: expected (%v, %v) but got (%v, %v)",
				errMsg, i, expected[i].Lat, expected[i].Lng, actual[i].Lat, actual[i].Lng)
		}
	}
}

// SameCoordinate reports whether a and b differ by less than half a unit
// in the given decimal place.
func SameCoordinate(a, b float64, places int) bool {
	return math.Abs(a-b) < 0.5/math.Pow(10, float64(places))
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
