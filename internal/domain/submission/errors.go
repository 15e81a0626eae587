package submission

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Submission error codes as recorded in audit log entries and API responses.
const (
	CodeNetworkError       = "network_error"
	CodeTimeout            = "timeout"
	CodeServerError        = "server_error"
	CodeClientError        = "client_error"
	CodeRejected           = "rejected"
	CodeValidationError    = "validation_error"
	CodeMaxRetriesExceeded = "max_retries_exceeded"
)

// ErrBatchNotFound is returned when the referenced batch does not exist.
var ErrBatchNotFound = errors.New("submission batch not found")

// ErrReceiptNotFound is returned when a batch has no stored receipt.
var ErrReceiptNotFound = errors.New("submission receipt not found")

// ErrQueueItemNotFound is returned when the referenced queue item does not exist.
var ErrQueueItemNotFound = errors.New("submission queue item not found")

// SubmissionError is a failed government API attempt. Recoverable failures
// (timeouts, network errors, 5xx) are retried by the engine; unrecoverable
// ones still consume the retry budget but flag the entry for operators.
type SubmissionError struct {
	Code        string
	Message     string
	Recoverable bool
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("government submission failed (%s): %s", e.Code, e.Message)
}

// Detail converts the error to its audit log representation.
func (e *SubmissionError) Detail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message, Recoverable: e.Recoverable}
}

// InvalidStateError is returned when an operation is not allowed from the
// batch's current status. The batch and its audit log are left untouched.
type InvalidStateError struct {
	BatchID uuid.UUID
	Status  Status
	Op      string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s batch %s in status %q", e.Op, e.BatchID, e.Status)
}

// MaxRetriesExceededError marks the end of a batch's automatic retry chain.
type MaxRetriesExceededError struct {
	BatchID    uuid.UUID
	RetryCount int
	Last       *SubmissionError
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("batch %s failed after %d retries: %v", e.BatchID, e.RetryCount, e.Last)
}

func (e *MaxRetriesExceededError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// StoreError wraps a persistence failure. Unlike submission failures these
// propagate to the caller; nothing is silently dropped on a bad write.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("submission store: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
