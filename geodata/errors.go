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
	"strings"
)

// FormatError is returned when the input is not syntactically valid for
// its declared or detected format, or the schema variant is unrecognized.
type FormatError struct {
	Format Format
	Msg    string // optional; a human-readable explanation
	Err    error
}

func (e FormatError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid ")
	if e.Format != "" {
		sb.WriteString(string(e.Format))
	} else {
		sb.WriteString("input")
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e FormatError) Unwrap() error { return e.Err }

// NoGeodataError is returned when parsing succeeded but yielded zero
// points and zero paths.
type NoGeodataError struct {
	Format Format
	Reason string
}

func (e NoGeodataError) Error() string {
	msg := "no location data found"
	if e.Format != "" {
		msg += " in " + string(e.Format) + " input"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ArchiveError is returned when a container archive (KMZ) cannot be
// opened or lacks the expected entry.
type ArchiveError struct {
	Archive string // archive format, such as "kmz"
	Msg     string
	Err     error
}

func (e ArchiveError) Error() string {
	msg := e.Archive + " archive"
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e ArchiveError) Unwrap() error { return e.Err }

// ChecksumWarning records that a file's integrity checksum did not match
// but decoding proceeded anyway. It is never returned as a fatal error.
type ChecksumWarning struct {
	Err error
}

func (w ChecksumWarning) Error() string {
	if w.Err == nil {
		return "checksum mismatch; data may be corrupt"
	}
	return "checksum mismatch; data may be corrupt: " + w.Err.Error()
}

func (w ChecksumWarning) Unwrap() error { return w.Err }

// SkippedRecordWarning records that one record (an element, line, or
// message) was malformed and skipped without aborting the whole file.
type SkippedRecordWarning struct {
	Kind  string // e.g. "trkpt"
	Index int    // zero-based position of the record among its kind
	Err   error
}

func (w SkippedRecordWarning) Error() string {
	return fmt.Sprintf("skipped %s #%d: %v", w.Kind, w.Index, w.Err)
}

func (w SkippedRecordWarning) Unwrap() error { return w.Err }

// DroppedEntriesWarning records that some number of entries were dropped
// because they could not be resolved, for example timeline entries with
// no coordinates at all.
type DroppedEntriesWarning struct {
	Kind   string
	Count  int
	Reason string
}

func (w DroppedEntriesWarning) Error() string {
	noun := w.Kind
	if w.Count != 1 {
		noun += "s"
	}
	return fmt.Sprintf("dropped %d %s: %s", w.Count, noun, w.Reason)
}
