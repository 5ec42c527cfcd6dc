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
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchOptions configures ConvertBatch.
type BatchOptions struct {
	// Maximum number of files converted at once. Defaults to GOMAXPROCS.
	Concurrency int

	// Optional; called after each file finishes (successfully or not),
	// possibly from multiple goroutines at once.
	OnDone func(BatchResult)
}

// BatchResult is the outcome of converting one file of a batch.
type BatchResult struct {
	// Identifies this conversion in logs.
	JobID string

	// Position of the input in the batch.
	Index int

	Input  Input
	Result *Result
	Err    error

	// Index of an earlier input with identical bytes, or -1.
	DuplicateOf int

	Duration time.Duration
}

// ConvertBatch converts each input independently and concurrently. One
// file's failure never affects the others. If ctx is canceled, files
// that have not started are not converted (their Err is the context
// error); files already in progress run to completion. Results are in
// the same order as inputs.
func ConvertBatch(ctx context.Context, inputs []Input, target Format, opt Options, batchOpt BatchOptions) []BatchResult {
	limit := batchOpt.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	logger := loggerOr(opt.Log, "batch")
	summaryLog := Log.Named("batch.summary")

	results := make([]BatchResult, len(inputs))
	hashes := make(map[string]int)

	// in-flight conversions are not interrupted by cancellation
	workCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(limit)

	for i, in := range inputs {
		results[i] = BatchResult{
			JobID:       uuid.NewString(),
			Index:       i,
			Input:       in,
			DuplicateOf: -1,
		}
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			if batchOpt.OnDone != nil {
				batchOpt.OnDone(results[i])
			}
			continue
		}

		hash := HashInput(in.Data)
		if first, ok := hashes[hash]; ok {
			results[i].DuplicateOf = first
		} else {
			hashes[hash] = i
		}

		g.Go(func() error {
			res := &results[i]

			// we may have waited a while for a free slot
			if err := ctx.Err(); err != nil {
				res.Err = err
				if batchOpt.OnDone != nil {
					batchOpt.OnDone(*res)
				}
				return nil
			}

			start := time.Now()
			jobLog := logger.With(
				zap.String("job_id", res.JobID),
				zap.String("filename", in.Filename))

			if res.DuplicateOf >= 0 {
				jobLog.Info("input is identical to another input in this batch",
					zap.Int("duplicate_of", res.DuplicateOf))
			}

			fileOpt := opt
			fileOpt.Log = jobLog
			res.Result, res.Err = Convert(workCtx, in, target, fileOpt)
			res.Duration = time.Since(start)

			if res.Err != nil {
				summaryLog.Error("conversion failed",
					zap.String("job_id", res.JobID),
					zap.String("filename", in.Filename),
					zap.Error(res.Err))
			} else {
				sum := res.Result.Summary
				summaryLog.Info("converted",
					zap.String("job_id", res.JobID),
					zap.String("filename", in.Filename),
					zap.String("from", string(sum.SourceFormat)),
					zap.String("to", string(sum.TargetFormat)),
					zap.Int("points", sum.PointCount),
					zap.Int("paths", sum.PathCount),
					zap.Float64("distance_km", sum.DistanceKm),
					zap.Int("warnings", len(sum.Warnings)),
					zap.Duration("duration", res.Duration))
			}

			if batchOpt.OnDone != nil {
				batchOpt.OnDone(*res)
			}

			// per-file errors are reported in results
			return nil
		})
	}

	_ = g.Wait()

	return results
}
