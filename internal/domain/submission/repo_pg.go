package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinichub/clinichub/internal/platform/db"
)

// queryable is satisfied by both *pgxpool.Pool and pgx.Tx, so repositories
// transparently join a transaction started by PGTxRunner.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func querier(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// PGTxRunner implements TxRunner over a pgx pool.
type PGTxRunner struct{ pool *pgxpool.Pool }

func NewPGTxRunner(pool *pgxpool.Pool) *PGTxRunner { return &PGTxRunner{pool: pool} }

func (r *PGTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

type batchRepoPG struct{ pool *pgxpool.Pool }

func NewBatchRepoPG(pool *pgxpool.Pool) BatchRepository { return &batchRepoPG{pool: pool} }

const batchCols = `id, month, report_ids, status, submission_method, retry_count,
	next_retry_at, government_reference, confirmation_id, submission_log,
	created_by, created_at, updated_at`

func scanBatch(row pgx.Row) (*Batch, error) {
	var b Batch
	var method *string
	var logRaw []byte
	err := row.Scan(&b.ID, &b.Month, &b.ReportIDs, &b.Status, &method, &b.RetryCount,
		&b.NextRetryAt, &b.GovernmentReference, &b.ConfirmationID, &logRaw,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if method != nil {
		b.Method = Method(*method)
	}
	if len(logRaw) > 0 {
		if err := json.Unmarshal(logRaw, &b.Log); err != nil {
			return nil, fmt.Errorf("decode submission log: %w", err)
		}
	}
	return &b, nil
}

func (r *batchRepoPG) Get(ctx context.Context, id uuid.UUID) (*Batch, error) {
	row := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+batchCols+` FROM submission_batch WHERE id = $1`, id)
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *batchRepoPG) Update(ctx context.Context, b *Batch) error {
	logRaw, err := json.Marshal(b.Log)
	if err != nil {
		return fmt.Errorf("encode submission log: %w", err)
	}
	var method *string
	if b.Method != "" {
		m := string(b.Method)
		method = &m
	}
	tag, err := querier(ctx, r.pool).Exec(ctx, `
		UPDATE submission_batch SET
			status = $2, submission_method = $3, retry_count = $4,
			next_retry_at = $5, government_reference = $6, confirmation_id = $7,
			submission_log = $8, updated_at = $9
		WHERE id = $1`,
		b.ID, b.Status, method, b.RetryCount,
		b.NextRetryAt, b.GovernmentReference, b.ConfirmationID,
		logRaw, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *batchRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Batch, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.Month != "" {
		args = append(args, f.Month)
		where += fmt.Sprintf(` AND month = $%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	q := querier(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM submission_batch`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := q.Query(ctx, `SELECT `+batchCols+` FROM submission_batch`+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (r *batchRepoPG) ListByStatus(ctx context.Context, status Status) ([]*Batch, error) {
	rows, err := querier(ctx, r.pool).Query(ctx,
		`SELECT `+batchCols+` FROM submission_batch WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type queueRepoPG struct{ pool *pgxpool.Pool }

func NewQueueRepoPG(pool *pgxpool.Pool) QueueRepository { return &queueRepoPG{pool: pool} }

const itemCols = `id, batch_id, priority, status, scheduled_at, retry_count,
	last_error, started_at, created_at, updated_at`

func scanItem(row pgx.Row) (*QueueItem, error) {
	var it QueueItem
	err := row.Scan(&it.ID, &it.BatchID, &it.Priority, &it.Status, &it.ScheduledAt,
		&it.RetryCount, &it.LastError, &it.StartedAt, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *queueRepoPG) Create(ctx context.Context, item *QueueItem) error {
	_, err := querier(ctx, r.pool).Exec(ctx, `
		INSERT INTO submission_queue
			(id, batch_id, priority, status, scheduled_at, retry_count, last_error, started_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.BatchID, item.Priority, item.Status, item.ScheduledAt,
		item.RetryCount, item.LastError, item.StartedAt, item.CreatedAt, item.UpdatedAt)
	return err
}

func (r *queueRepoPG) Get(ctx context.Context, id uuid.UUID) (*QueueItem, error) {
	it, err := scanItem(querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+itemCols+` FROM submission_queue WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQueueItemNotFound
	}
	return it, err
}

func (r *queueRepoPG) Due(ctx context.Context, now time.Time, limit int) ([]*QueueItem, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, `
		SELECT `+itemCols+` FROM submission_queue
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END, scheduled_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Claim is the mutual exclusion point of the whole pipeline: a single
// conditional UPDATE that both takes the item and verifies no sibling item
// of the same batch is processing. Concurrent workers race on the row; the
// loser sees zero rows affected and walks away.
func (r *queueRepoPG) Claim(ctx context.Context, itemID, batchID uuid.UUID, now time.Time) (bool, error) {
	tag, err := querier(ctx, r.pool).Exec(ctx, `
		UPDATE submission_queue SET status = 'processing', started_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM submission_queue
			WHERE batch_id = $2 AND status = 'processing'
		  )`, itemID, batchID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *queueRepoPG) Update(ctx context.Context, item *QueueItem) error {
	tag, err := querier(ctx, r.pool).Exec(ctx, `
		UPDATE submission_queue SET
			priority = $2, status = $3, scheduled_at = $4, retry_count = $5,
			last_error = $6, started_at = $7, updated_at = $8
		WHERE id = $1`,
		item.ID, item.Priority, item.Status, item.ScheduledAt, item.RetryCount,
		item.LastError, item.StartedAt, item.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}

func (r *queueRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := querier(ctx, r.pool).Exec(ctx, `DELETE FROM submission_queue WHERE id = $1`, id)
	return err
}

func (r *queueRepoPG) PendingForBatch(ctx context.Context, batchID uuid.UUID) (*QueueItem, error) {
	it, err := scanItem(querier(ctx, r.pool).QueryRow(ctx, `
		SELECT `+itemCols+` FROM submission_queue
		WHERE batch_id = $1 AND status = 'pending'
		ORDER BY created_at LIMIT 1`, batchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

func (r *queueRepoPG) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := querier(ctx, r.pool).Exec(ctx, `
		UPDATE submission_queue SET status = 'pending', started_at = NULL
		WHERE status = 'processing' AND started_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *queueRepoPG) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := querier(ctx, r.pool).Exec(ctx, `
		DELETE FROM submission_queue
		WHERE status IN ('completed', 'failed') AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type receiptRepoPG struct{ pool *pgxpool.Pool }

func NewReceiptRepoPG(pool *pgxpool.Pool) ReceiptRepository { return &receiptRepoPG{pool: pool} }

func (r *receiptRepoPG) Create(ctx context.Context, rc *Receipt) error {
	_, err := querier(ctx, r.pool).Exec(ctx, `
		INSERT INTO submission_receipt
			(id, batch_id, government_reference, confirmation_id, submitted_at,
			 submitted_by, report_count, checksum, response_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rc.ID, rc.BatchID, rc.GovernmentReference, rc.ConfirmationID, rc.SubmittedAt,
		rc.SubmittedBy, rc.ReportCount, rc.Checksum, rc.ResponseData)
	return err
}

func (r *receiptRepoPG) GetByBatch(ctx context.Context, batchID uuid.UUID) (*Receipt, error) {
	row := querier(ctx, r.pool).QueryRow(ctx, `
		SELECT id, batch_id, government_reference, confirmation_id, submitted_at,
		       submitted_by, report_count, checksum, response_data
		FROM submission_receipt WHERE batch_id = $1`, batchID)
	var rc Receipt
	err := row.Scan(&rc.ID, &rc.BatchID, &rc.GovernmentReference, &rc.ConfirmationID,
		&rc.SubmittedAt, &rc.SubmittedBy, &rc.ReportCount, &rc.Checksum, &rc.ResponseData)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

// statsRepoPG maintains the single-row rolling aggregate. Apply folds counter
// deltas in place so statistics reads never scan batches or audit logs.
type statsRepoPG struct{ pool *pgxpool.Pool }

func NewStatsRepoPG(pool *pgxpool.Pool) StatsRepository { return &statsRepoPG{pool: pool} }

func (r *statsRepoPG) Get(ctx context.Context) (*Stats, error) {
	row := querier(ctx, r.pool).QueryRow(ctx, `
		SELECT total_batches, pending, successful, failed, retrying,
		       submit_seconds_total, submissions_total
		FROM submission_stats WHERE id = 1`)
	var st Stats
	var seconds float64
	var subs int64
	err := row.Scan(&st.TotalBatches, &st.Pending, &st.Successful, &st.Failed,
		&st.Retrying, &seconds, &subs)
	if err != nil {
		return nil, err
	}
	if subs > 0 {
		st.AvgSubmitSeconds = seconds / float64(subs)
	}
	return &st, nil
}

func (r *statsRepoPG) Apply(ctx context.Context, d StatsDelta) error {
	_, err := querier(ctx, r.pool).Exec(ctx, `
		UPDATE submission_stats SET
			total_batches = total_batches + $1,
			pending = pending + $2,
			successful = successful + $3,
			failed = failed + $4,
			retrying = retrying + $5,
			submit_seconds_total = submit_seconds_total + $6,
			submissions_total = submissions_total + $7,
			updated_at = now()
		WHERE id = 1`,
		d.TotalBatches, d.Pending, d.Successful, d.Failed, d.Retrying,
		d.SubmitSeconds, d.Submissions)
	return err
}
