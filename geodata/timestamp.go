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
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp parses the timestamp formats found across location
// history and track files: RFC 3339 (with or without fractional seconds),
// ISO 8601 without a zone (assumed UTC), a handful of RFC 822/1123
// variants, and integer epoch milliseconds. An empty string is an error.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	// all digits means epoch milliseconds, as in the old "timestampMs" fields
	if isDigits(s) {
		return TimeFromMillis(s)
	}

	for _, format := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC850,
	} {
		// formats without a zone are parsed as UTC by time.Parse
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// TimeFromMillis parses a string of Unix epoch milliseconds.
func TimeFromMillis(ms string) (time.Time, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(ms), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing epoch milliseconds %q: %w", ms, err)
	}
	return time.UnixMilli(n).UTC(), nil
}

// FormatTimestamp renders t as RFC 3339 in UTC, including fractional
// seconds only when present. It returns "" for the zero time.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
