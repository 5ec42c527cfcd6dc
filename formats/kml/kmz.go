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

package kml

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/mholt/archives"
	"github.com/timelinize/geoconvert/geodata"
)

// kmzDocName is the conventional name of the KML entry in a KMZ archive.
const kmzDocName = "doc.kml"

func recognizeKMZ(filename string, data []byte) geodata.Recognition {
	format, _, err := archives.Identify(context.Background(), filename, bytes.NewReader(data))
	if err != nil {
		return geodata.Recognition{}
	}
	if _, ok := format.(archives.Zip); !ok {
		return geodata.Recognition{}
	}
	if geodata.HasExtension(filename, []string{".kmz"}) {
		return geodata.Recognition{Confidence: 1}
	}
	// could be any zip file
	return geodata.Recognition{Confidence: 0.5}
}

// UnpackKMZ returns the text of the KML document inside a KMZ archive:
// doc.kml at the top level if present, otherwise the first top-level .kml
// entry, otherwise the first .kml entry anywhere, in archive order.
func UnpackKMZ(ctx context.Context, data []byte) ([]byte, error) {
	var (
		chosen  []byte
		quality int // 3 = doc.kml at root, 2 = other root .kml, 1 = nested .kml
	)

	err := archives.Zip{}.Extract(ctx, bytes.NewReader(data), func(_ context.Context, f archives.FileInfo) error {
		if f.IsDir() {
			return nil
		}
		name := strings.TrimPrefix(path.Clean(strings.ReplaceAll(f.NameInArchive, `\`, "/")), "/")
		if !strings.EqualFold(path.Ext(name), ".kml") {
			return nil
		}

		q := 1
		if !strings.Contains(name, "/") {
			q = 2
			if strings.EqualFold(name, kmzDocName) {
				q = 3
			}
		}
		if q <= quality {
			return nil
		}

		file, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", name, err)
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		chosen, quality = content, q

		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, geodata.ArchiveError{Archive: string(geodata.FormatKMZ), Msg: "opening archive", Err: err}
	}
	if quality == 0 {
		return nil, geodata.ArchiveError{Archive: string(geodata.FormatKMZ), Msg: "no KML document in archive"}
	}

	return chosen, nil
}

// ParseKMZ unpacks the KML document from a KMZ archive and parses it.
func ParseKMZ(ctx context.Context, data []byte, opt geodata.ParseOptions) (*geodata.Dataset, error) {
	doc, err := UnpackKMZ(ctx, data)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, doc, opt)
}

// PackKMZ wraps a KML document as the single entry doc.kml of a zip archive.
func PackKMZ(ctx context.Context, doc []byte, modTime time.Time) ([]byte, error) {
	info := memFileInfo{name: kmzDocName, size: int64(len(doc)), modTime: modTime}
	files := []archives.FileInfo{{
		FileInfo:      info,
		NameInArchive: kmzDocName,
		Open: func() (fs.File, error) {
			return memFile{Reader: bytes.NewReader(doc), info: info}, nil
		},
	}}

	var buf bytes.Buffer
	if err := (archives.Zip{Compression: zip.Deflate}).Archive(ctx, &buf, files); err != nil {
		return nil, fmt.Errorf("creating KMZ archive: %w", err)
	}
	return buf.Bytes(), nil
}

// SerializeKMZ writes ds as KML and packs it into a KMZ archive.
func SerializeKMZ(ctx context.Context, ds *geodata.Dataset, opt geodata.SerializeOptions) ([]byte, error) {
	doc, err := Serialize(ctx, ds, opt)
	if err != nil {
		return nil, err
	}
	return PackKMZ(ctx, doc, opt.GeneratedAt)
}

// memFile is an in-memory fs.File.
type memFile struct {
	*bytes.Reader
	info fs.FileInfo
}

func (f memFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (memFile) Close() error                  { return nil }

type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (fi memFileInfo) Name() string       { return fi.name }
func (fi memFileInfo) Size() int64        { return fi.size }
func (memFileInfo) Mode() fs.FileMode     { return 0o644 }
func (fi memFileInfo) ModTime() time.Time { return fi.modTime }
func (memFileInfo) IsDir() bool           { return false }
func (memFileInfo) Sys() any              { return nil }

var _ fs.File = memFile{}

