package submission

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a submission batch.
type Status string

const (
	StatusNotReady     Status = "not_ready"
	StatusReady        Status = "ready"
	StatusQueued       Status = "queued"
	StatusSubmitting   Status = "submitting"
	StatusSubmitted    Status = "submitted"
	StatusAccepted     Status = "accepted"
	StatusRejected     Status = "rejected"
	StatusRetryPending Status = "retry_pending"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Terminal reports whether no further automatic transition leaves s.
// Failed batches can still be re-queued by an operator.
func (s Status) Terminal() bool {
	switch s {
	case StatusSubmitted, StatusAccepted, StatusRejected, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Method records how a batch entered the queue.
type Method string

const (
	MethodManual    Method = "manual"
	MethodAutomatic Method = "automatic"
	MethodRetry     Method = "retry"
)

// Priority orders queue draining. High drains before normal, normal before low.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// LogAction labels an audit log entry.
type LogAction string

const (
	ActionCreated        LogAction = "created"
	ActionQueued         LogAction = "queued"
	ActionSubmitting     LogAction = "submitting"
	ActionSubmitted      LogAction = "submitted"
	ActionAccepted       LogAction = "accepted"
	ActionRejected       LogAction = "rejected"
	ActionFailed         LogAction = "failed"
	ActionRetryScheduled LogAction = "retry_scheduled"
	ActionRetryAttempted LogAction = "retry_attempted"
	ActionCancelled      LogAction = "cancelled"
)

// ErrorDetail is the structured error recorded in log entries for failed
// submission attempts.
type ErrorDetail struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// LogEntry is one line of a batch's append-only audit log. Entries are never
// updated or removed once written.
type LogEntry struct {
	Timestamp time.Time    `json:"timestamp"`
	Action    LogAction    `json:"action"`
	Status    Status       `json:"status"`
	Details   string       `json:"details,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
	UserID    string       `json:"user_id"`
	UserRole  string       `json:"user_role"`
}

// Batch groups finalized reports for one calendar month into a single
// government submission.
type Batch struct {
	ID                  uuid.UUID   `json:"id"`
	Month               string      `json:"month"` // YYYY-MM
	ReportIDs           []uuid.UUID `json:"report_ids"`
	Status              Status      `json:"status"`
	Method              Method      `json:"submission_method,omitempty"`
	RetryCount          int         `json:"retry_count"`
	NextRetryAt         *time.Time  `json:"next_retry_at,omitempty"`
	GovernmentReference *string     `json:"government_reference,omitempty"`
	ConfirmationID      *string     `json:"confirmation_id,omitempty"`
	Log                 []LogEntry  `json:"submission_log"`
	CreatedBy           string      `json:"created_by"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// AppendLog adds an entry to the audit log. The log grows only through this
// method; existing entries stay untouched.
func (b *Batch) AppendLog(e LogEntry) {
	b.Log = append(b.Log, e)
}

// CanRetry reports whether an operator may manually re-queue the batch.
// Only failed and retry-pending batches qualify; a rejected batch carries a
// government verdict and needs a new batch, not a retry.
func (b *Batch) CanRetry() bool {
	return b.Status == StatusFailed || b.Status == StatusRetryPending
}

// QueueItemStatus is the lifecycle state of a queue item.
type QueueItemStatus string

const (
	QueuePending    QueueItemStatus = "pending"
	QueueProcessing QueueItemStatus = "processing"
	QueueCompleted  QueueItemStatus = "completed"
	QueueFailed     QueueItemStatus = "failed"
)

// QueueItem is a unit of pending work: one attempt-chain of one batch.
// At most one item per batch may be processing at any time.
type QueueItem struct {
	ID          uuid.UUID       `json:"id"`
	BatchID     uuid.UUID       `json:"batch_id"`
	Priority    Priority        `json:"priority"`
	Status      QueueItemStatus `json:"status"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	RetryCount  int             `json:"retry_count"`
	LastError   *string         `json:"last_error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Receipt is the proof-of-submission stored after a successful government
// acknowledgement. Immutable once written.
type Receipt struct {
	ID                  uuid.UUID       `json:"id"`
	BatchID             uuid.UUID       `json:"batch_id"`
	GovernmentReference string          `json:"government_reference"`
	ConfirmationID      string          `json:"confirmation_id"`
	SubmittedAt         time.Time       `json:"submitted_at"`
	SubmittedBy         string          `json:"submitted_by"`
	ReportCount         int             `json:"report_count"`
	Checksum            string          `json:"checksum"`
	ResponseData        json.RawMessage `json:"response_data,omitempty"`
}

// Stats is the rolling submission aggregate. It is maintained incrementally
// on every state transition so reads never scan batches or audit logs.
type Stats struct {
	TotalBatches     int64   `json:"total_batches"`
	Pending          int64   `json:"pending"`
	Successful       int64   `json:"successful"`
	Failed           int64   `json:"failed"`
	Retrying         int64   `json:"retrying"`
	AvgSubmitSeconds float64 `json:"avg_time_to_submission_seconds"`
}

// StatsDelta is one transition's contribution to the rolling aggregate.
type StatsDelta struct {
	TotalBatches int64
	Pending      int64
	Successful   int64
	Failed       int64
	Retrying     int64
	// SubmitSeconds and Submissions feed the average time-to-submission.
	SubmitSeconds float64
	Submissions   int64
}

// statsBucket maps a batch status to the aggregate counter it occupies.
// Statuses outside the submission pipeline occupy no counter.
func statsBucket(s Status) *string {
	var b string
	switch s {
	case StatusQueued, StatusSubmitting:
		b = "pending"
	case StatusRetryPending:
		b = "retrying"
	case StatusSubmitted, StatusAccepted:
		b = "successful"
	case StatusFailed, StatusRejected:
		b = "failed"
	default:
		return nil
	}
	return &b
}

// TransitionDelta computes the aggregate change for a from→to status change.
func TransitionDelta(from, to Status) StatsDelta {
	var d StatsDelta
	apply := func(bucket *string, n int64) {
		if bucket == nil {
			return
		}
		switch *bucket {
		case "pending":
			d.Pending += n
		case "retrying":
			d.Retrying += n
		case "successful":
			d.Successful += n
		case "failed":
			d.Failed += n
		}
	}
	apply(statsBucket(from), -1)
	apply(statsBucket(to), 1)
	if from == StatusReady && to == StatusQueued {
		d.TotalBatches = 1
	}
	return d
}

// StatusView is the read model for the status endpoint: current state plus
// full audit trail and, when present, the stored receipt.
type StatusView struct {
	BatchID             uuid.UUID  `json:"batch_id"`
	Month               string     `json:"month"`
	Status              Status     `json:"status"`
	Method              Method     `json:"submission_method,omitempty"`
	RetryCount          int        `json:"retry_count"`
	NextRetryAt         *time.Time `json:"next_retry_at,omitempty"`
	GovernmentReference *string    `json:"government_reference,omitempty"`
	ConfirmationID      *string    `json:"confirmation_id,omitempty"`
	ReportCount         int        `json:"report_count"`
	Log                 []LogEntry `json:"submission_log"`
	Receipt             *Receipt   `json:"receipt,omitempty"`
}

// Filter narrows batch listings.
type Filter struct {
	Month  string
	Status Status
}
