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

package googlelocation

import (
	"github.com/tidwall/gjson"
	"github.com/timelinize/geoconvert/geodata"
)

// variant is a schema variant of Google location history.
type variant int

const (
	variantUnknown       variant = iota
	variantSemantic              // Semantic Location History/YYYY/YYYY_MONTH.json
	variantRecords               // Records.json (formerly Location History.json)
	variantTimelineEdits         // Timeline Edits.json
	variantSettings              // Settings.json
	variantiOS2024               // location-history.json exported from iOS
	variantAndroid2025           // Timeline.json exported from Android
)

func (v variant) String() string {
	switch v {
	case variantSemantic:
		return "Semantic"
	case variantRecords:
		return "Records"
	case variantTimelineEdits:
		return "TimelineEdits"
	case variantSettings:
		return "Settings"
	case variantiOS2024:
		return "On-device iOS"
	case variantAndroid2025:
		return "On-device Android"
	case variantUnknown:
	}
	return "Unknown"
}

// detectVariant looks at the top-level keys (or the shape of the first
// array element) to decide which variant data is.
func detectVariant(data []byte) variant {
	if !geodata.LooksLikeJSON(data) || !gjson.ValidBytes(data) {
		return variantUnknown
	}
	root := gjson.ParseBytes(data)

	if root.IsArray() {
		first := root.Get("0")
		if first.Get("startTime").Exists() && first.Get("endTime").Exists() &&
			(first.Get("visit").Exists() || first.Get("activity").Exists() || first.Get("timelinePath").Exists()) {
			return variantiOS2024
		}
		return variantUnknown
	}

	switch {
	case root.Get("timelineObjects").IsArray():
		return variantSemantic
	case root.Get("locations").IsArray():
		return variantRecords
	case root.Get("timelineEdits").IsArray():
		return variantTimelineEdits
	case root.Get("semanticSegments").IsArray(), root.Get("rawSignals").IsArray():
		return variantAndroid2025
	case root.Get("deviceSettings").IsArray():
		return variantSettings
	}

	return variantUnknown
}

func recognize(filename string, data []byte) geodata.Recognition {
	if detectVariant(data) == variantUnknown {
		return geodata.Recognition{}
	}
	if geodata.HasExtension(filename, []string{".json"}) || filename == "" {
		return geodata.Recognition{Confidence: 1}
	}
	return geodata.Recognition{Confidence: 0.9}
}
