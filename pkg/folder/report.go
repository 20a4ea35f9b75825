package folder

import (
	"errors"
	"time"

	"github.com/3leaps/nimbusdir/pkg/provider"
)

// Operation names carried in Report.Op and the "op" metric label.
const (
	OpRemoveFolder = "RemoveFolder"
	OpCopyFolder   = "CopyFolder"
	OpRenameFolder = "RenameFolder"
	OpCopyFile     = "CopyFile"
	OpRenameFile   = "RenameFile"
)

// Action is the primitive a Step performed.
type Action string

const (
	ActionCopy   Action = "copy"
	ActionDelete Action = "delete"
)

// Step is one attempted per-entry primitive call.
type Step struct {
	Action Action

	// Source is the key the step acted on.
	Source string

	// Destination is the copy target; empty for deletes.
	Destination string

	// Folder marks steps on folder marker keys.
	Folder bool

	// Outcome is the primitive's result. It is unset when Skipped.
	Outcome provider.Outcome

	// Skipped marks a step that was not attempted because the step it
	// depends on failed. A rename never deletes a source whose copy failed.
	Skipped bool
}

// Succeeded reports whether the step ran and succeeded.
func (s Step) Succeeded() bool {
	return !s.Skipped && s.Outcome.IsSuccess()
}

// Report is the full record of one folder or file operation.
//
// Multi-entry operations are best effort: every entry is attempted and every
// result is kept, so a Report can describe partial completion.
type Report struct {
	// OperationID correlates log lines and the report.
	OperationID string

	Op          string
	Bucket      string
	Source      string
	Destination string

	// Noop is set when source and destination are equal and nothing ran.
	Noop bool

	// List is the outcome of the last list page, nil when the operation
	// needs no listing. A failed listing ends the operation with no steps.
	List *provider.Outcome

	// Pages is the number of list pages fetched.
	Pages int

	// Truncated is set when Config.PageLimit stopped the listing while the
	// store still reported more entries. Those entries were not processed.
	Truncated bool

	Steps []Step

	Started  time.Time
	Duration time.Duration
}

// Succeeded reports whether the listing (if any) and every attempted step
// succeeded. A truncated listing still counts as success for the entries
// that were processed.
func (r *Report) Succeeded() bool {
	if r.List != nil && !r.List.IsSuccess() {
		return false
	}
	for _, s := range r.Steps {
		if !s.Skipped && !s.Outcome.IsSuccess() {
			return false
		}
	}
	return true
}

// Failed returns the attempted steps that failed.
func (r *Report) Failed() []Step {
	var out []Step
	for _, s := range r.Steps {
		if !s.Skipped && !s.Outcome.IsSuccess() {
			out = append(out, s)
		}
	}
	return out
}

// Skipped returns the steps that were not attempted.
func (r *Report) Skipped() []Step {
	var out []Step
	for _, s := range r.Steps {
		if s.Skipped {
			out = append(out, s)
		}
	}
	return out
}

// FailedEntries returns the source keys of failed steps, without repeats.
func (r *Report) FailedEntries() []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range r.Failed() {
		if !seen[s.Source] {
			seen[s.Source] = true
			out = append(out, s.Source)
		}
	}
	return out
}

// Err joins the errors of the listing and every failed step; nil on success.
func (r *Report) Err() error {
	var errs []error
	if r.List != nil {
		if err := r.List.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range r.Failed() {
		errs = append(errs, s.Outcome.Err())
	}
	return errors.Join(errs...)
}
