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
)

// SimplificationEpsilon maps a user-facing simplification factor in
// [0, 10] to an RDP epsilon in E7 coordinate units. Zero disables
// simplification.
func SimplificationEpsilon(factor float64) (float64, error) {
	if factor < 0 || factor > 10 {
		return 0, fmt.Errorf("invalid simplification factor; must be in [0,10]: %f", factor)
	}
	if factor == 0 {
		return 0, nil
	}
	// To scale a number x into range [a,b]:
	// x_scaled = (b-a) * ((x - x_min) / (x_max - x_min)) + a
	//
	// ~1000 (a factor of ~1.0) keeps the essence of most paths while
	// thinning them out noticeably.
	const xMin, xMax = 0.0, 10.0
	const epsMin, epsMax = 10.0, 10000.0
	return (epsMax-epsMin)*((factor-xMin)/(xMax-xMin)) + epsMin, nil
}

// SimplifyPath reduces the number of coordinates in a path with the
// Ramer-Douglas-Peucker algorithm (https://karthaus.nl/rdp/). The first
// and last coordinates are always kept, and order is preserved.
func SimplifyPath(coords []LatLng, epsilon float64) []LatLng {
	if epsilon <= 0 || len(coords) <= 2 {
		return coords
	}
	pts := make([]e7Point, len(coords))
	for i, c := range coords {
		pts[i] = e7Point{
			lat: int64(math.Round(c.Lat * placesMult)),
			lng: int64(math.Round(c.Lng * placesMult)),
			idx: i,
		}
	}
	kept := simplifyPath(pts, epsilon)
	out := make([]LatLng, len(kept))
	for i, p := range kept {
		out[i] = coords[p.idx]
	}
	return out
}

type e7Point struct {
	lat, lng int64
	idx      int
}

func simplifyPath(points []e7Point, ep float64) []e7Point {
	const dimensions = 2
	if len(points) <= dimensions {
		return points
	}

	l := line{points[0], points[len(points)-1]}

	idx, maxDist := seekMostDistantPoint(l, points)
	if maxDist >= ep {
		left := simplifyPath(points[:idx+1], ep)
		right := simplifyPath(points[idx:], ep)
		return append(left[:len(left)-1:len(left)-1], right...)
	}

	// if the most distant point is still too close, then just return the two end points
	return []e7Point{points[0], points[len(points)-1]}
}

// seekMostDistantPoint returns the index of the most distant point from the line,
// using perpendicular distance.
func seekMostDistantPoint(l line, points []e7Point) (idx int, maxDist float64) {
	// start at 1 and stop before the end; the endpoints define the line
	for i := 1; i < len(points)-1; i++ {
		if d := l.distanceToPoint(points[i]); d > maxDist {
			maxDist = d
			idx = i
		}
	}
	return idx, maxDist
}

type line struct {
	start, end e7Point
}

// distanceToPoint returns the perpendicular distance of a point to the line.
// Coordinates are treated as cartesian, which is good enough at path scale.
func (l line) distanceToPoint(pt e7Point) float64 {
	a, b, c := l.coefficients()
	denom := math.Hypot(float64(a), float64(b))
	if denom == 0 {
		// start and end coincide; use the distance to that point
		return math.Hypot(float64(pt.lat-l.start.lat), float64(pt.lng-l.start.lng))
	}
	return math.Abs(float64(a)*float64(pt.lat)+float64(b)*float64(pt.lng)+float64(c)) / denom
}

// coefficients returns the three coefficients that define a line.
// A line can represent by the following equation.
//
//	ax + by + c = 0
func (l line) coefficients() (a, b, c int64) {
	a = l.start.lng - l.end.lng
	b = l.end.lat - l.start.lat
	c = l.start.lat*l.end.lng - l.end.lat*l.start.lng
	return a, b, c
}
