package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/token"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("storage: not found")
)

const (
	sampleColumns = `id, token, price::text, sampled_at`

	insertSampleSQL = `INSERT INTO price_samples (token, price, sampled_at) VALUES ($1, $2, $3);`

	latestSampleSQL = `SELECT ` + sampleColumns + `
    FROM price_samples
    WHERE token = $1
    ORDER BY sampled_at DESC, id DESC
    LIMIT 1;`

	latestSampleAtOrBeforeSQL = `SELECT ` + sampleColumns + `
    FROM price_samples
    WHERE token = $1
      AND sampled_at <= $2
    ORDER BY sampled_at DESC, id DESC
    LIMIT 1;`

	listRecentSamplesSQL = `SELECT ` + sampleColumns + `
    FROM price_samples
    ORDER BY sampled_at DESC, id DESC
    LIMIT $1;`

	listTokenSamplesSQL = `SELECT ` + sampleColumns + `
    FROM price_samples
    WHERE token = $1
    ORDER BY sampled_at DESC, id DESC
    LIMIT $2;`

	listSamplesBetweenSQL = `SELECT ` + sampleColumns + `
    FROM price_samples
    WHERE sampled_at >= $1
      AND sampled_at < $2
    ORDER BY sampled_at, id;`

	countSamplesSQL = `SELECT COUNT(*) FROM price_samples;`

	alertColumns = `id, token, target_price::text, email, triggered, created_at`

	insertAlertSQL = `INSERT INTO price_alerts (id, token, target_price, email, triggered)
    VALUES ($1, $2, $3, $4, false)
    RETURNING ` + alertColumns + `;`

	listPendingAlertsSQL = `SELECT ` + alertColumns + `
    FROM price_alerts
    WHERE NOT triggered
    ORDER BY created_at, id;`

	markAlertTriggeredSQL = `UPDATE price_alerts
    SET triggered = true
    WHERE id = $1 AND NOT triggered;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PriceStore defines operations for price sample persistence.
type PriceStore interface {
	InsertSamples(ctx context.Context, samples []PriceSample) error
	LatestSample(ctx context.Context, tok token.Token) (PriceSample, error)
	LatestSampleAtOrBefore(ctx context.Context, tok token.Token, cutoff time.Time) (PriceSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error)
	ListTokenSamples(ctx context.Context, tok token.Token, limit int) ([]PriceSample, error)
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PriceSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// AlertStore defines operations for target alerts.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert Alert) (Alert, error)
	ListPendingAlerts(ctx context.Context) ([]Alert, error)
	MarkAlertTriggered(ctx context.Context, id uuid.UUID) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to samples and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// A failed unlock is released with the session when the connection closes.
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

// InsertSamples appends all samples in one transaction.
func (s *Store) InsertSamples(ctx context.Context, samples []PriceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, sample := range samples {
			if sample.Price.IsNegative() {
				return fmt.Errorf("negative price for %s", sample.Token)
			}
			if _, err := tx.Exec(ctx, insertSampleSQL, string(sample.Token), sample.Price.String(), sample.Timestamp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert samples: %w", err)
	}
	return nil
}

// LatestSample returns the newest sample for tok.
func (s *Store) LatestSample(ctx context.Context, tok token.Token) (PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceSample{}, err
	}
	sample, err := scanSample(pool.QueryRow(ctx, latestSampleSQL, string(tok)))
	if err != nil {
		return PriceSample{}, wrapLookup("latest sample", err)
	}
	return sample, nil
}

// LatestSampleAtOrBefore returns the newest sample for tok not later than cutoff.
func (s *Store) LatestSampleAtOrBefore(ctx context.Context, tok token.Token, cutoff time.Time) (PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceSample{}, err
	}
	sample, err := scanSample(pool.QueryRow(ctx, latestSampleAtOrBeforeSQL, string(tok), cutoff))
	if err != nil {
		return PriceSample{}, wrapLookup("sample at or before", err)
	}
	return sample, nil
}

// ListRecentSamples lists the newest samples across tokens.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listRecentSamplesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent samples: %w", err)
	}
	return collectSamples(rows, limit)
}

// ListTokenSamples lists the newest samples for tok.
func (s *Store) ListTokenSamples(ctx context.Context, tok token.Token, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listTokenSamplesSQL, string(tok), limit)
	if err != nil {
		return nil, fmt.Errorf("list token samples: %w", err)
	}
	return collectSamples(rows, limit)
}

// ListSamplesBetween lists samples within [from, to), oldest first.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("list samples between: %w", err)
	}
	return collectSamples(rows, 0)
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return count, nil
}

// InsertAlert persists a new untriggered alert.
func (s *Store) InsertAlert(ctx context.Context, alert Alert) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		pgtype.UUID{Bytes: alert.ID, Valid: true},
		string(alert.Token),
		alert.TargetPrice.String(),
		alert.Email,
	)
	rec, err := scanAlert(row)
	if err != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return rec, nil
}

// ListPendingAlerts lists untriggered alerts in creation order.
func (s *Store) ListPendingAlerts(ctx context.Context) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listPendingAlertsSQL)
	if err != nil {
		return nil, fmt.Errorf("list pending alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending alerts: %w", err)
	}
	return alerts, nil
}

// MarkAlertTriggered flips the one-shot flag. Already triggered or unknown
// ids yield ErrNotFound.
func (s *Store) MarkAlertTriggered(ctx context.Context, id uuid.UUID) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, markAlertTriggeredSQL, pgtype.UUID{Bytes: id, Valid: true})
	if err != nil {
		return fmt.Errorf("mark alert triggered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark alert %s triggered: %w", id, ErrNotFound)
	}
	return nil
}

func wrapLookup(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func collectSamples(rows pgx.Rows, capacity int) ([]PriceSample, error) {
	defer rows.Close()

	samples := make([]PriceSample, 0, capacity)
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

func scanSample(row pgx.Row) (PriceSample, error) {
	var (
		id        int64
		tok       string
		priceStr  string
		sampledAt time.Time
	)
	if err := row.Scan(&id, &tok, &priceStr, &sampledAt); err != nil {
		return PriceSample{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse price: %w", err)
	}

	return PriceSample{
		ID:        id,
		Token:     token.Token(tok),
		Price:     price,
		Timestamp: sampledAt.UTC(),
	}, nil
}

func scanAlert(row pgx.Row) (Alert, error) {
	var (
		id        pgtype.UUID
		tok       string
		targetStr string
		rec       Alert
	)
	if err := row.Scan(&id, &tok, &targetStr, &rec.Email, &rec.Triggered, &rec.CreatedAt); err != nil {
		return Alert{}, err
	}

	target, err := decimal.NewFromString(targetStr)
	if err != nil {
		return Alert{}, fmt.Errorf("parse target price: %w", err)
	}

	rec.ID = uuid.UUID(id.Bytes)
	rec.Token = token.Token(tok)
	rec.TargetPrice = target
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

var (
	_ PriceStore     = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
