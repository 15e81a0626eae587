package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinichub/clinichub/internal/domain/anonymizer"
	"github.com/clinichub/clinichub/internal/domain/report"
	"github.com/clinichub/clinichub/internal/platform/backoff"
	"github.com/clinichub/clinichub/internal/platform/pubsub"
	"github.com/clinichub/clinichub/internal/platform/window"
)

// StatusPublisher receives every batch status change. The in-process bus and
// the websocket hub both satisfy it.
type StatusPublisher interface {
	Publish(evt pubsub.Event)
}

// StatusEvent is the payload carried in published status events.
type StatusEvent struct {
	BatchID             uuid.UUID    `json:"batch_id"`
	Status              Status       `json:"status"`
	RetryCount          int          `json:"retry_count"`
	NextRetryAt         *time.Time   `json:"next_retry_at,omitempty"`
	GovernmentReference *string      `json:"government_reference,omitempty"`
	Error               *ErrorDetail `json:"error,omitempty"`
}

// QueueOptions control how a batch enters the queue.
type QueueOptions struct {
	Method      Method
	Priority    Priority
	ScheduledAt *time.Time
	UserID      string
	UserRole    string
}

// EngineConfig carries the tunables of the submission workflow.
type EngineConfig struct {
	MaxRetries      int
	WorkerPoolSize  int
	LockExpiry      time.Duration
	QueueItemMaxAge time.Duration
}

// EngineParams bundles the collaborators of an Engine.
type EngineParams struct {
	Batches    BatchRepository
	Queue      QueueRepository
	Receipts   ReceiptRepository
	Stats      StatsRepository
	Reports    report.Repository
	Tx         TxRunner
	Anonymizer *anonymizer.Anonymizer
	Gov        GovernmentClient
	Gate       *window.Gate
	Backoff    *backoff.Scheduler
	Bus        *pubsub.Bus
	Publishers []StatusPublisher
	Logger     zerolog.Logger
	Config     EngineConfig
}

// Engine drives submission batches through the queue, the government API,
// the retry chain and the audit log. All state lives in the repositories;
// the engine itself is stateless and safe for concurrent use.
type Engine struct {
	batches  BatchRepository
	queue    QueueRepository
	receipts ReceiptRepository
	stats    StatsRepository
	reports  report.Repository
	tx       TxRunner
	anon     *anonymizer.Anonymizer
	gov      GovernmentClient
	gate     *window.Gate
	backoff  *backoff.Scheduler
	bus      *pubsub.Bus
	pubs     []StatusPublisher
	log      zerolog.Logger
	cfg      EngineConfig

	// now is swappable for tests.
	now func() time.Time
}

func NewEngine(p EngineParams) *Engine {
	if p.Config.WorkerPoolSize < 1 {
		p.Config.WorkerPoolSize = 1
	}
	pubs := p.Publishers
	if p.Bus != nil {
		pubs = append([]StatusPublisher{p.Bus}, pubs...)
	}
	return &Engine{
		batches:  p.Batches,
		queue:    p.Queue,
		receipts: p.Receipts,
		stats:    p.Stats,
		reports:  p.Reports,
		tx:       p.Tx,
		anon:     p.Anonymizer,
		gov:      p.Gov,
		gate:     p.Gate,
		backoff:  p.Backoff,
		bus:      p.Bus,
		pubs:     pubs,
		log:      p.Logger.With().Str("component", "submission_engine").Logger(),
		cfg:      p.Config,
		now:      time.Now,
	}
}

// QueueBatch moves a ready batch into the submission queue and returns the
// batch together with its queue item. Reports are validated first; a batch
// that cannot be anonymized is never queued.
func (e *Engine) QueueBatch(ctx context.Context, batchID uuid.UUID, opts QueueOptions) (*Batch, *QueueItem, error) {
	batch, err := e.batches.Get(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	if batch.Status != StatusReady {
		return nil, nil, &InvalidStateError{BatchID: batchID, Status: batch.Status, Op: "queue"}
	}

	reports, err := e.reports.GetByIDs(ctx, batch.ReportIDs)
	if err != nil {
		return nil, nil, storeErr("load batch reports", err)
	}
	if err := e.anon.Validate(reports); err != nil {
		return nil, nil, err
	}

	item, err := e.enqueue(ctx, batch, opts, nil)
	if err != nil {
		return nil, nil, err
	}
	e.publish(batch, nil)
	return batch, item, nil
}

// enqueue transitions the batch to queued and creates (or reschedules) its
// queue item, atomically. preLog entries are appended before the queued entry.
func (e *Engine) enqueue(ctx context.Context, batch *Batch, opts QueueOptions, preLog []LogEntry) (*QueueItem, error) {
	now := e.now()
	scheduledAt := now
	if opts.ScheduledAt != nil {
		scheduledAt = *opts.ScheduledAt
	}
	if opts.Priority == "" {
		opts.Priority = PriorityNormal
	}

	delta := TransitionDelta(batch.Status, StatusQueued)
	for _, le := range preLog {
		batch.AppendLog(le)
	}
	batch.Status = StatusQueued
	batch.Method = opts.Method
	batch.NextRetryAt = nil
	batch.UpdatedAt = now
	batch.AppendLog(LogEntry{
		Timestamp: now,
		Action:    ActionQueued,
		Status:    StatusQueued,
		Details:   fmt.Sprintf("queued with priority %s", opts.Priority),
		UserID:    opts.UserID,
		UserRole:  opts.UserRole,
	})

	var item *QueueItem
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.batches.Update(ctx, batch); err != nil {
			return storeErr("update batch", err)
		}

		existing, err := e.queue.PendingForBatch(ctx, batch.ID)
		if err != nil {
			return storeErr("find pending item", err)
		}
		if existing != nil {
			existing.Priority = opts.Priority
			existing.ScheduledAt = scheduledAt
			existing.UpdatedAt = now
			if err := e.queue.Update(ctx, existing); err != nil {
				return storeErr("reschedule queue item", err)
			}
			item = existing
		} else {
			item = &QueueItem{
				ID:          uuid.New(),
				BatchID:     batch.ID,
				Priority:    opts.Priority,
				Status:      QueuePending,
				ScheduledAt: scheduledAt,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := e.queue.Create(ctx, item); err != nil {
				return storeErr("create queue item", err)
			}
		}

		if err := e.stats.Apply(ctx, delta); err != nil {
			return storeErr("apply stats", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ProcessQueue drains due queue items through a bounded worker pool. It is
// safe to call from multiple processes: the per-item claim is atomic, so a
// contended item is processed exactly once and losers no-op. Submission
// failures are absorbed into the retry chain and never returned.
func (e *Engine) ProcessQueue(ctx context.Context) (int, error) {
	items, err := e.queue.Due(ctx, e.now(), e.cfg.WorkerPoolSize*4)
	if err != nil {
		return 0, storeErr("list due items", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, e.cfg.WorkerPoolSize)
	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(it *QueueItem) {
			defer wg.Done()
			defer func() { <-sem }()
			e.processItem(ctx, it)
		}(item)
	}
	wg.Wait()
	return len(items), nil
}

// processItem runs one submission attempt end to end.
func (e *Engine) processItem(ctx context.Context, item *QueueItem) {
	log := e.log.With().Str("item_id", item.ID.String()).Str("batch_id", item.BatchID.String()).Logger()

	claimed, err := e.queue.Claim(ctx, item.ID, item.BatchID, e.now())
	if err != nil {
		log.Error().Err(err).Msg("claim failed")
		return
	}
	if !claimed {
		// Another worker holds this item or the batch is already in flight.
		return
	}

	batch, err := e.batches.Get(ctx, item.BatchID)
	if errors.Is(err, ErrBatchNotFound) {
		log.Warn().Msg("dropping queue item for missing batch")
		if derr := e.queue.Delete(ctx, item.ID); derr != nil {
			log.Error().Err(derr).Msg("delete orphaned item")
		}
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("load batch")
		e.releaseItem(ctx, item, err.Error())
		return
	}
	if batch.Status.Terminal() {
		e.finishItem(ctx, item, QueueCompleted, "batch already in terminal state")
		return
	}

	if err := e.markSubmitting(ctx, batch); err != nil {
		log.Error().Err(err).Msg("mark submitting")
		e.releaseItem(ctx, item, err.Error())
		return
	}
	e.publish(batch, nil)

	reports, err := e.reports.GetByIDs(ctx, batch.ReportIDs)
	if err != nil {
		e.handleFailure(ctx, batch, item, &SubmissionError{
			Code: CodeValidationError, Message: err.Error(), Recoverable: false,
		})
		return
	}

	payload, meta, err := e.anon.Prepare(batch.Month, reports)
	if err != nil {
		var verr *anonymizer.ValidationError
		se := &SubmissionError{Code: CodeValidationError, Message: err.Error(), Recoverable: false}
		if !errors.As(err, &verr) {
			se.Code = CodeClientError
		}
		e.handleFailure(ctx, batch, item, se)
		return
	}

	actor := batch.lastActor()
	resp, err := e.gov.Submit(ctx, GovRequest{
		BatchID:          batch.ID,
		Month:            batch.Month,
		ReportCount:      len(reports),
		SubmittedBy:      actor,
		SubmittedAt:      e.now(),
		EncryptedPayload: payload,
		Encryption:       meta,
		ComplianceFlags:  []string{"anonymized", "encrypted", "gdpr_consent_verified"},
	})
	if err != nil {
		var se *SubmissionError
		if !errors.As(err, &se) {
			se = &SubmissionError{Code: CodeNetworkError, Message: err.Error(), Recoverable: true}
		}
		e.handleFailure(ctx, batch, item, se)
		return
	}

	if err := e.handleSuccess(ctx, batch, item, resp, meta, len(reports), actor); err != nil {
		log.Error().Err(err).Msg("persist successful submission")
	}
}

func (e *Engine) markSubmitting(ctx context.Context, batch *Batch) error {
	now := e.now()
	delta := TransitionDelta(batch.Status, StatusSubmitting)
	batch.Status = StatusSubmitting
	batch.UpdatedAt = now
	batch.AppendLog(LogEntry{
		Timestamp: now,
		Action:    ActionSubmitting,
		Status:    StatusSubmitting,
		Details:   fmt.Sprintf("attempt %d", batch.RetryCount+1),
		UserID:    "system",
		UserRole:  "system",
	})
	return e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.batches.Update(ctx, batch); err != nil {
			return storeErr("update batch", err)
		}
		return storeErr("apply stats", e.stats.Apply(ctx, delta))
	})
}

func (e *Engine) handleSuccess(ctx context.Context, batch *Batch, item *QueueItem,
	resp *GovResponse, meta anonymizer.Metadata, reportCount int, actor string) error {

	now := e.now()
	delta := TransitionDelta(batch.Status, StatusSubmitted)
	delta.SubmitSeconds = now.Sub(batch.CreatedAt).Seconds()
	delta.Submissions = 1

	batch.Status = StatusSubmitted
	batch.GovernmentReference = &resp.Reference
	batch.ConfirmationID = &resp.ConfirmationID
	batch.NextRetryAt = nil
	batch.UpdatedAt = now
	batch.AppendLog(LogEntry{
		Timestamp: now,
		Action:    ActionSubmitted,
		Status:    StatusSubmitted,
		Details:   fmt.Sprintf("government reference %s", resp.Reference),
		UserID:    "system",
		UserRole:  "system",
	})

	receipt := &Receipt{
		ID:                  uuid.New(),
		BatchID:             batch.ID,
		GovernmentReference: resp.Reference,
		ConfirmationID:      resp.ConfirmationID,
		SubmittedAt:         now,
		SubmittedBy:         actor,
		ReportCount:         reportCount,
		Checksum:            meta.Checksum,
		ResponseData:        resp.Raw,
	}

	item.Status = QueueCompleted
	item.UpdatedAt = now

	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.batches.Update(ctx, batch); err != nil {
			return storeErr("update batch", err)
		}
		if err := e.receipts.Create(ctx, receipt); err != nil {
			return storeErr("store receipt", err)
		}
		if err := e.queue.Update(ctx, item); err != nil {
			return storeErr("complete queue item", err)
		}
		return storeErr("apply stats", e.stats.Apply(ctx, delta))
	})
	if err != nil {
		return err
	}

	e.log.Info().
		Str("batch_id", batch.ID.String()).
		Str("reference", resp.Reference).
		Int("report_count", reportCount).
		Msg("batch submitted")
	e.publish(batch, nil)
	return nil
}

// handleFailure schedules a retry with exponential backoff, or marks the
// batch failed once the retry budget is spent. Validation failures skip the
// retry chain entirely: retrying cannot fix a malformed report.
func (e *Engine) handleFailure(ctx context.Context, batch *Batch, item *QueueItem, se *SubmissionError) {
	now := e.now()
	log := e.log.With().Str("batch_id", batch.ID.String()).Logger()

	exhausted := batch.RetryCount >= e.cfg.MaxRetries
	if exhausted || se.Code == CodeValidationError {
		detail := se.Detail()
		detail.Recoverable = false
		details := "submission failed"
		if exhausted {
			detail.Code = CodeMaxRetriesExceeded
			details = fmt.Sprintf("gave up after %d retries", batch.RetryCount)
		}

		delta := TransitionDelta(batch.Status, StatusFailed)
		batch.Status = StatusFailed
		batch.NextRetryAt = nil
		batch.UpdatedAt = now
		batch.AppendLog(LogEntry{
			Timestamp: now,
			Action:    ActionFailed,
			Status:    StatusFailed,
			Details:   details,
			Error:     detail,
			UserID:    "system",
			UserRole:  "system",
		})

		item.Status = QueueFailed
		msg := se.Message
		item.LastError = &msg
		item.UpdatedAt = now

		err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := e.batches.Update(ctx, batch); err != nil {
				return storeErr("update batch", err)
			}
			if err := e.queue.Update(ctx, item); err != nil {
				return storeErr("fail queue item", err)
			}
			return storeErr("apply stats", e.stats.Apply(ctx, delta))
		})
		if err != nil {
			log.Error().Err(err).Msg("persist terminal failure")
			return
		}
		log.Warn().Str("code", detail.Code).Int("retry_count", batch.RetryCount).Msg("batch failed, manual retry required")
		e.publish(batch, detail)
		return
	}

	delay := e.backoff.Delay(batch.RetryCount)
	nextAt := now.Add(delay)

	detail := se.Detail()
	detail.Recoverable = true

	delta := TransitionDelta(batch.Status, StatusRetryPending)
	batch.Status = StatusRetryPending
	batch.RetryCount++
	batch.NextRetryAt = &nextAt
	batch.UpdatedAt = now
	batch.AppendLog(LogEntry{
		Timestamp: now,
		Action:    ActionRetryScheduled,
		Status:    StatusRetryPending,
		Details:   fmt.Sprintf("retry %d of %d in %s", batch.RetryCount, e.cfg.MaxRetries, delay.Round(time.Second)),
		Error:     detail,
		UserID:    "system",
		UserRole:  "system",
	})

	msg := se.Message
	item.Status = QueuePending
	item.ScheduledAt = nextAt
	item.RetryCount++
	item.LastError = &msg
	item.StartedAt = nil
	item.UpdatedAt = now

	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.batches.Update(ctx, batch); err != nil {
			return storeErr("update batch", err)
		}
		if err := e.queue.Update(ctx, item); err != nil {
			return storeErr("reschedule queue item", err)
		}
		return storeErr("apply stats", e.stats.Apply(ctx, delta))
	})
	if err != nil {
		log.Error().Err(err).Msg("persist retry schedule")
		return
	}
	log.Info().
		Str("code", se.Code).
		Int("retry_count", batch.RetryCount).
		Time("next_retry_at", nextAt).
		Msg("submission failed, retry scheduled")
	e.publish(batch, detail)
}

// RetryFailed re-queues a failed or retry-pending batch at high priority on
// behalf of a human operator. Any other state is rejected without touching
// the audit log.
func (e *Engine) RetryFailed(ctx context.Context, batchID uuid.UUID, userID, userRole string) (*Batch, error) {
	batch, err := e.batches.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.CanRetry() {
		return nil, &InvalidStateError{BatchID: batchID, Status: batch.Status, Op: "retry"}
	}

	attempted := LogEntry{
		Timestamp: e.now(),
		Action:    ActionRetryAttempted,
		Status:    batch.Status,
		Details:   "manual retry requested",
		UserID:    userID,
		UserRole:  userRole,
	}
	opts := QueueOptions{
		Method:   MethodRetry,
		Priority: PriorityHigh,
		UserID:   userID,
		UserRole: userRole,
	}
	if _, err := e.enqueue(ctx, batch, opts, []LogEntry{attempted}); err != nil {
		return nil, err
	}
	e.publish(batch, nil)
	return batch, nil
}

// Cancel halts a queued or retry-pending batch. In-flight submissions are
// not interrupted; they run to completion or timeout first.
func (e *Engine) Cancel(ctx context.Context, batchID uuid.UUID, userID, userRole string) (*Batch, error) {
	batch, err := e.batches.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != StatusQueued && batch.Status != StatusRetryPending {
		return nil, &InvalidStateError{BatchID: batchID, Status: batch.Status, Op: "cancel"}
	}

	now := e.now()
	delta := TransitionDelta(batch.Status, StatusCancelled)
	batch.Status = StatusCancelled
	batch.NextRetryAt = nil
	batch.UpdatedAt = now
	batch.AppendLog(LogEntry{
		Timestamp: now,
		Action:    ActionCancelled,
		Status:    StatusCancelled,
		Details:   "cancelled by operator",
		UserID:    userID,
		UserRole:  userRole,
	})

	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.batches.Update(ctx, batch); err != nil {
			return storeErr("update batch", err)
		}
		item, err := e.queue.PendingForBatch(ctx, batch.ID)
		if err != nil {
			return storeErr("find pending item", err)
		}
		if item != nil {
			msg := "cancelled by operator"
			item.Status = QueueCompleted
			item.LastError = &msg
			item.UpdatedAt = now
			if err := e.queue.Update(ctx, item); err != nil {
				return storeErr("close queue item", err)
			}
		}
		return storeErr("apply stats", e.stats.Apply(ctx, delta))
	})
	if err != nil {
		return nil, err
	}
	e.publish(batch, nil)
	return batch, nil
}

// PromoteReady queues every ready batch, but only inside the legal
// submission window. Outside the window it is a no-op.
func (e *Engine) PromoteReady(ctx context.Context) (int, error) {
	now := e.now()
	if !e.gate.Contains(now) {
		next := e.gate.Next(now)
		e.log.Debug().Time("window_start", next.Start).Msg("outside submission window")
		return 0, nil
	}

	ready, err := e.batches.ListByStatus(ctx, StatusReady)
	if err != nil {
		return 0, storeErr("list ready batches", err)
	}

	queued := 0
	for _, b := range ready {
		_, _, err := e.QueueBatch(ctx, b.ID, QueueOptions{
			Method:   MethodAutomatic,
			Priority: PriorityNormal,
			UserID:   "system",
			UserRole: "system",
		})
		if err != nil {
			e.log.Warn().Err(err).Str("batch_id", b.ID.String()).Msg("skipping batch during window promotion")
			continue
		}
		queued++
	}
	return queued, nil
}

// Reclaim releases processing locks older than the configured expiry so work
// owned by a crashed worker becomes claimable again.
func (e *Engine) Reclaim(ctx context.Context) (int64, error) {
	cutoff := e.now().Add(-e.cfg.LockExpiry)
	n, err := e.queue.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, storeErr("reclaim stale items", err)
	}
	if n > 0 {
		e.log.Warn().Int64("reclaimed", n).Msg("reclaimed stale processing locks")
	}
	return n, nil
}

// Cleanup removes finished queue items older than the configured maximum age.
// Batches, audit logs and receipts are never cleaned up.
func (e *Engine) Cleanup(ctx context.Context) (int64, error) {
	cutoff := e.now().Add(-e.cfg.QueueItemMaxAge)
	n, err := e.queue.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, storeErr("cleanup queue", err)
	}
	if n > 0 {
		e.log.Info().Int64("removed", n).Msg("cleaned up finished queue items")
	}
	return n, nil
}

// Status assembles the read model for one batch: current state, the full
// audit log, and the receipt when the batch has been submitted.
func (e *Engine) Status(ctx context.Context, batchID uuid.UUID) (*StatusView, error) {
	batch, err := e.batches.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	view := &StatusView{
		BatchID:             batch.ID,
		Month:               batch.Month,
		Status:              batch.Status,
		Method:              batch.Method,
		RetryCount:          batch.RetryCount,
		NextRetryAt:         batch.NextRetryAt,
		GovernmentReference: batch.GovernmentReference,
		ConfirmationID:      batch.ConfirmationID,
		ReportCount:         len(batch.ReportIDs),
		Log:                 batch.Log,
	}
	receipt, err := e.receipts.GetByBatch(ctx, batchID)
	if err != nil && !errors.Is(err, ErrReceiptNotFound) {
		return nil, err
	}
	view.Receipt = receipt
	return view, nil
}

// List returns batches matching the filter plus the total match count.
func (e *Engine) List(ctx context.Context, f Filter, limit, offset int) ([]*Batch, int, error) {
	return e.batches.List(ctx, f, limit, offset)
}

// ReceiptFor returns the stored receipt of a submitted batch.
func (e *Engine) ReceiptFor(ctx context.Context, batchID uuid.UUID) (*Receipt, error) {
	return e.receipts.GetByBatch(ctx, batchID)
}

// Statistics returns the rolling submission aggregate.
func (e *Engine) Statistics(ctx context.Context) (*Stats, error) {
	return e.stats.Get(ctx)
}

// SubmissionPeriod returns the relevant legal window and whether now falls
// inside it.
func (e *Engine) SubmissionPeriod() (window.Period, bool) {
	now := e.now()
	return e.gate.Next(now), e.gate.Contains(now)
}

// Subscribe registers a callback for one batch's status events.
func (e *Engine) Subscribe(batchID uuid.UUID, cb pubsub.Callback) pubsub.UnsubscribeFunc {
	return e.bus.Subscribe(batchID.String(), cb)
}

func (e *Engine) publish(batch *Batch, detail *ErrorDetail) {
	evt := StatusEvent{
		BatchID:             batch.ID,
		Status:              batch.Status,
		RetryCount:          batch.RetryCount,
		NextRetryAt:         batch.NextRetryAt,
		GovernmentReference: batch.GovernmentReference,
		Error:               detail,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		e.log.Error().Err(err).Msg("marshal status event")
		return
	}
	out := pubsub.Event{
		Topic:     batch.ID.String(),
		Status:    string(batch.Status),
		Timestamp: e.now(),
		Data:      data,
	}
	for _, p := range e.pubs {
		p.Publish(out)
	}
}

func (e *Engine) releaseItem(ctx context.Context, item *QueueItem, reason string) {
	item.Status = QueuePending
	item.StartedAt = nil
	item.LastError = &reason
	item.UpdatedAt = e.now()
	if err := e.queue.Update(ctx, item); err != nil {
		e.log.Error().Err(err).Str("item_id", item.ID.String()).Msg("release queue item")
	}
}

func (e *Engine) finishItem(ctx context.Context, item *QueueItem, status QueueItemStatus, reason string) {
	item.Status = status
	item.LastError = &reason
	item.UpdatedAt = e.now()
	if err := e.queue.Update(ctx, item); err != nil {
		e.log.Error().Err(err).Str("item_id", item.ID.String()).Msg("finish queue item")
	}
}

// lastActor returns the user behind the most recent human-attributed log
// entry, falling back to "system" for fully automatic submissions.
func (b *Batch) lastActor() string {
	for i := len(b.Log) - 1; i >= 0; i-- {
		if b.Log[i].UserID != "" && b.Log[i].UserID != "system" {
			return b.Log[i].UserID
		}
	}
	return "system"
}
