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

package main

// plug in all the formats
import (
	_ "github.com/timelinize/geoconvert/formats/csv"
	_ "github.com/timelinize/geoconvert/formats/fit"
	_ "github.com/timelinize/geoconvert/formats/geojson"
	_ "github.com/timelinize/geoconvert/formats/googlelocation"
	_ "github.com/timelinize/geoconvert/formats/gpx"
	_ "github.com/timelinize/geoconvert/formats/kml"
	_ "github.com/timelinize/geoconvert/formats/media"
	_ "github.com/timelinize/geoconvert/formats/nmea"
	_ "github.com/timelinize/geoconvert/formats/tcx"
)
