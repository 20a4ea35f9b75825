package output

import (
	"context"

	"github.com/3leaps/nimbusdir/pkg/folder"
)

// WriteReport emits r as JSONL: an error record for a failed listing, one
// step record per step followed by an error record when it failed, then a
// summary record.
func WriteReport(ctx context.Context, w Writer, r *folder.Report) error {
	if r.List != nil && !r.List.IsSuccess() {
		if err := w.WriteError(ctx, r.OperationID, &ErrorRecord{
			Code:    ErrorCode(r.List.Kind()),
			Message: r.List.AnyErrorString(),
			Prefix:  r.Source,
			Payload: string(r.List.Payload()),
		}); err != nil {
			return err
		}
	}

	for _, s := range r.Steps {
		rec := &StepRecord{
			Action:      string(s.Action),
			Source:      s.Source,
			Destination: s.Destination,
			Folder:      s.Folder,
			Skipped:     s.Skipped,
			Success:     s.Succeeded(),
		}
		failed := !s.Skipped && !s.Outcome.IsSuccess()
		if failed {
			rec.Kind = s.Outcome.Kind().String()
		}
		if err := w.WriteStep(ctx, r.OperationID, rec); err != nil {
			return err
		}
		if !failed {
			continue
		}
		if err := w.WriteError(ctx, r.OperationID, &ErrorRecord{
			Code:    ErrorCode(s.Outcome.Kind()),
			Message: s.Outcome.AnyErrorString(),
			Key:     s.Source,
			Payload: string(s.Outcome.Payload()),
		}); err != nil {
			return err
		}
	}

	return w.WriteSummary(ctx, r.OperationID, &SummaryRecord{
		Op:            r.Op,
		Bucket:        r.Bucket,
		Source:        r.Source,
		Destination:   r.Destination,
		Noop:          r.Noop,
		Succeeded:     r.Succeeded(),
		Pages:         r.Pages,
		Truncated:     r.Truncated,
		Steps:         len(r.Steps),
		Failed:        len(r.Failed()),
		Skipped:       len(r.Skipped()),
		FailedEntries: r.FailedEntries(),
		Duration:      r.Duration,
		DurationHuman: r.Duration.String(),
	})
}
