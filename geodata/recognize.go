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
	"io"
	"path"
	"slices"
	"strings"
)

// DetectFormat asks every registered source codec how confident it is
// that it can parse the input and returns the most confident one.
func DetectFormat(filename string, data []byte) (Format, error) {
	var best Format
	var bestConfidence float64
	for _, c := range AllCodecs() {
		if !c.CanParse() || c.Recognize == nil {
			continue
		}
		rec := c.Recognize(filename, data)
		if rec.Confidence > bestConfidence {
			best, bestConfidence = c.Format, rec.Confidence
		}
	}
	if best == "" {
		return "", FormatError{Msg: "unable to recognize input format"}
	}
	return best, nil
}

// HasExtension returns true if filename ends with one of exts
// (case-insensitive; exts include the dot).
func HasExtension(filename string, exts []string) bool {
	if filename == "" {
		return false
	}
	return slices.Contains(exts, strings.ToLower(path.Ext(filename)))
}

// XMLRootElement returns the local name of the first element in data,
// or "" if data does not start like an XML document.
func XMLRootElement(data []byte) string {
	head := bytes.TrimSpace(trimBOM(data))
	if !bytes.HasPrefix(head, []byte("<")) {
		return ""
	}
	dec := xml.NewDecoder(bytes.NewReader(head))
	dec.Strict = false
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		// only the element name matters here, not the text encoding
		return input, nil
	}
	for {
		tkn, err := dec.Token()
		if err != nil {
			return ""
		}
		if start, ok := tkn.(xml.StartElement); ok {
			return start.Name.Local
		}
	}
}

// LooksLikeJSON returns true if data begins with a JSON object or array.
func LooksLikeJSON(data []byte) bool {
	head := bytes.TrimSpace(trimBOM(data))
	return len(head) > 0 && (head[0] == '{' || head[0] == '[')
}

func trimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}
