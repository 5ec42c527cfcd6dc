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
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// Input is one file to convert.
type Input struct {
	// Original filename; used for format detection and output naming.
	Filename string

	Data []byte

	// Declared source format. If empty, it is detected.
	Format Format
}

// Options configures a conversion.
type Options struct {
	// Document name and description for the output.
	Name        string
	Description string

	// Optional path simplification factor in [0, 10]; 0 disables it.
	Simplification float64

	// Accept non-compliant input where a format supports it.
	Lenient bool

	// Timestamp to embed in output; defaults to now.
	GeneratedAt time.Time

	// Optional; defaults to Log.
	Log *zap.Logger
}

// Result is the output of a conversion.
type Result struct {
	Output   []byte
	MIMEType string

	// Suggested output filename.
	Filename string

	Summary Summary
}

// Parse parses data as the given format. It returns a NoGeodataError if
// the input is empty or yields no points or paths.
func Parse(ctx context.Context, format Format, data []byte, opt ParseOptions) (*Dataset, error) {
	codec, err := GetCodec(format)
	if err != nil {
		return nil, err
	}
	if !codec.CanParse() {
		return nil, fmt.Errorf("%s is not a source format", format)
	}
	if len(data) == 0 {
		return nil, NoGeodataError{Format: format, Reason: "input is empty"}
	}
	opt.Log = loggerOr(opt.Log, string(format))

	ds, err := codec.Parse(ctx, data, opt)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		ds = new(Dataset)
	}
	ds.Format = format

	if err := ds.validate(); err != nil {
		return nil, fmt.Errorf("%s parser produced invalid data: %w", format, err)
	}
	if ds.Empty() {
		reason := "no points or paths"
		if len(ds.Warnings) > 0 {
			reason = fmt.Sprintf("no points or paths (%d warnings: %v)", len(ds.Warnings), ds.Warnings[0])
		}
		return nil, NoGeodataError{Format: format, Reason: reason}
	}
	for _, w := range ds.Warnings {
		opt.Log.Warn("parsing", zap.String("filename", opt.Filename), zap.Error(w))
	}

	return ds, nil
}

// Serialize renders ds as the given target format. Producing no output
// is an error.
func Serialize(ctx context.Context, format Format, ds *Dataset, opt SerializeOptions) ([]byte, error) {
	codec, err := GetCodec(format)
	if err != nil {
		return nil, err
	}
	if !codec.CanSerialize() {
		return nil, fmt.Errorf("%s is not a target format", format)
	}
	if ds.Empty() {
		return nil, NoGeodataError{Format: ds.Format, Reason: "nothing to serialize"}
	}
	if opt.GeneratedAt.IsZero() {
		opt.GeneratedAt = time.Now()
	}
	opt.GeneratedAt = opt.GeneratedAt.UTC().Truncate(time.Second)
	opt.Log = loggerOr(opt.Log, string(format))

	out, err := codec.Serialize(ctx, ds, opt)
	if err != nil {
		return nil, fmt.Errorf("serializing %s: %w", format, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("serializing %s: produced no output", format)
	}
	return out, nil
}

// Convert parses in and serializes it as target. It is synchronous and
// keeps no state between calls.
func Convert(ctx context.Context, in Input, target Format, opt Options) (*Result, error) {
	logger := loggerOr(opt.Log, "convert")

	targetCodec, err := GetCodec(target)
	if err != nil {
		return nil, err
	}

	format := in.Format
	if format == "" {
		if len(in.Data) == 0 {
			return nil, NoGeodataError{Reason: "input is empty"}
		}
		format, err = DetectFormat(in.Filename, in.Data)
		if err != nil {
			return nil, err
		}
		logger.Debug("detected input format",
			zap.String("filename", in.Filename),
			zap.String("format", string(format)))
	}

	ds, err := Parse(ctx, format, in.Data, ParseOptions{
		Filename: in.Filename,
		Lenient:  opt.Lenient,
		Log:      opt.Log,
	})
	if err != nil {
		return nil, err
	}

	if opt.Simplification != 0 {
		if err := simplifyDataset(ds, opt.Simplification); err != nil {
			return nil, err
		}
	}

	out, err := Serialize(ctx, target, ds, SerializeOptions{
		Name:        firstNonEmpty(opt.Name, baseName(in.Filename)),
		Description: opt.Description,
		GeneratedAt: opt.GeneratedAt,
		Log:         opt.Log,
	})
	if err != nil {
		return nil, err
	}

	sum := Summarize(ds)
	sum.TargetFormat = target
	sum.InputHash = HashInput(in.Data)

	return &Result{
		Output:   out,
		MIMEType: targetCodec.MIMEType,
		Filename: OutputFilename(in.Filename, targetCodec),
		Summary:  sum,
	}, nil
}

// HashInput returns the hex BLAKE3 digest of data.
func HashInput(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// OutputFilename suggests a filename for converted output.
func OutputFilename(inputFilename string, target Codec) string {
	name := baseName(inputFilename)
	if name == "" {
		name = "converted"
	}
	return name + target.Extension()
}

func simplifyDataset(ds *Dataset, factor float64) error {
	epsilon, err := SimplificationEpsilon(factor)
	if err != nil {
		return err
	}
	for i := range ds.Paths {
		ds.Paths[i].Coordinates = SimplifyPath(ds.Paths[i].Coordinates, epsilon)
	}
	return nil
}

// baseName returns the file's name without directory or extension.
func baseName(filename string) string {
	if filename == "" {
		return ""
	}
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsInputError returns true if err describes a problem with the input
// itself rather than with the program or environment.
func IsInputError(err error) bool {
	var (
		formatErr  FormatError
		noGeoErr   NoGeodataError
		archiveErr ArchiveError
	)
	return errors.As(err, &formatErr) || errors.As(err, &noGeoErr) || errors.As(err, &archiveErr)
}
