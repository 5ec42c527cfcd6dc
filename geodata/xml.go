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
	"bytes"
	"encoding/xml"
	"strings"

	"golang.org/x/net/html/charset"
)

// NewXMLDecoder returns a decoder over data that understands the common
// non-UTF-8 encodings declared in XML prologs (ISO-8859-1, Windows-1252...),
// which GPS devices still produce.
func NewXMLDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(trimBOM(data)))
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// XMLNesting tracks the local names of the currently open elements.
type XMLNesting []string

// Path returns the open elements joined by slashes, such as "gpx/trk/trkseg".
func (n XMLNesting) Path() string {
	return strings.Join(n, "/")
}

// Push records that elem was opened.
func (n *XMLNesting) Push(elem xml.StartElement) {
	*n = append(*n, elem.Name.Local)
}

// Pop records that the innermost element was closed. It returns false if
// no element was open.
func (n *XMLNesting) Pop() bool {
	if len(*n) == 0 {
		return false
	}
	*n = (*n)[:len(*n)-1]
	return true
}
