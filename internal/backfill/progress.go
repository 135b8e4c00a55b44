// Package backfill walks a whole collection through the pipeline, one
// page per task, continuing itself through the task queue until the
// collection is exhausted.
//
// The job is a chain of dispatch tasks. Each carries a Progress; Step
// processes the page at Progress.Offset and either returns the next
// Progress (the page was full) or a terminal Report. Page results are
// recorded in the docstore ledger keyed by (job, offset), so a redelivered
// dispatch reuses the recorded counts instead of counting the page twice.
package backfill

import (
	"fmt"
	"time"
)

// DefaultBatchSize is the number of documents read per dispatch.
const DefaultBatchSize = 250

// QueueName is the task queue dispatches are sent through.
const QueueName = "backfill"

// Progress is the payload of one dispatch task.
type Progress struct {
	JobID        string `json:"jobId,omitempty"`
	Offset       int    `json:"offset"`
	SuccessCount int    `json:"successCount"`
	ErrorCount   int    `json:"errorCount"`

	// StartTime is when the job's first dispatch ran, in unix
	// milliseconds. Zero means "now".
	StartTime int64 `json:"startTime,omitempty"`
}

// DedupeKey identifies the dispatch for a page of a job.
func (p Progress) DedupeKey() string {
	return fmt.Sprintf("%s:%d", p.JobID, p.Offset)
}

// Started returns StartTime as a time.
func (p Progress) Started() time.Time {
	return time.UnixMilli(p.StartTime)
}

// State is a terminal processing state.
type State string

const (
	StateComplete State = "PROCESSING_COMPLETE"
	StateWarning  State = "PROCESSING_WARNING"
	StateFailed   State = "PROCESSING_FAILED"
)

// DisabledMessage is reported when backfill is turned off.
const DisabledMessage = `Existing documents were not processed because "Process existing documents?" is configured to false. ` +
	"If you want to fill in missing translations, reconfigure this instance."

// Report is the terminal status of a job.
type Report struct {
	State   State
	Message string
}

// Outcome is the result of one Step: exactly one of Next and Report is
// set.
type Outcome struct {
	Next   *Progress
	Report *Report
}

// Summarize builds the terminal report for the final totals of a job.
func Summarize(success, failed int, elapsed time.Duration) Report {
	ms := elapsed.Milliseconds()
	switch {
	case failed == 0:
		return Report{
			State:   StateComplete,
			Message: fmt.Sprintf("Successfully processed %d documents in %dms.", success, ms),
		}
	case success > 0:
		return Report{
			State:   StateWarning,
			Message: errorSummary(success, failed, ms),
		}
	default:
		return Report{
			State:   StateFailed,
			Message: errorSummary(success, failed, ms),
		}
	}
}

func errorSummary(success, failed int, ms int64) string {
	return fmt.Sprintf("Successfully processed %d documents, %d errors in %dms. See function logs for specific error messages.",
		success, failed, ms)
}
