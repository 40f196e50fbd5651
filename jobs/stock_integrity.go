package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-crm/meridian-crm/internal/jobs"
	"github.com/meridian-crm/meridian-crm/internal/observability"
	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// IntegrityScanner verifies that every product's stored quantity equals the
// net of its approved movements. Drift means stock was changed outside the
// ledger and is logged per product, never silently corrected.
type IntegrityScanner struct {
	pool       *pgxpool.Pool
	metrics    *observability.Metrics
	jobMetrics *jobmetrics.Metrics
	logger     *slog.Logger
}

// NewIntegrityScanner builds IntegrityScanner.
func NewIntegrityScanner(pool *pgxpool.Pool, metrics *observability.Metrics, jm *jobmetrics.Metrics, logger *slog.Logger) *IntegrityScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrityScanner{pool: pool, metrics: metrics, jobMetrics: jm, logger: logger}
}

type driftRow struct {
	CompanyID uuid.UUID
	ProductID uuid.UUID
	Name      string
	Stored    int64
	Replayed  int64
}

// Scan returns the number of drifted products.
func (s *IntegrityScanner) Scan(ctx context.Context, companyID uuid.UUID) (int, error) {
	query := `SELECT p.company_id, p.id, p.product_name, p.stock_quantity, COALESCE(m.net, 0)
FROM products p
LEFT JOIN (
	SELECT company_id, product_id,
		SUM(CASE WHEN movement_type = 'inward' THEN quantity ELSE -quantity END) AS net
	FROM stock_movements
	GROUP BY company_id, product_id
) m ON m.company_id = p.company_id AND m.product_id = p.id
WHERE p.stock_quantity <> COALESCE(m.net, 0)`
	args := []interface{}{}
	if companyID != uuid.Nil {
		query += ` AND p.company_id = $1`
		args = append(args, companyID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var drifted []driftRow
	for rows.Next() {
		var d driftRow
		if err := rows.Scan(&d.CompanyID, &d.ProductID, &d.Name, &d.Stored, &d.Replayed); err != nil {
			return 0, err
		}
		drifted = append(drifted, d)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, d := range drifted {
		s.logger.Error("stock integrity drift",
			slog.String("company_id", d.CompanyID.String()),
			slog.String("product_id", d.ProductID.String()),
			slog.String("product", d.Name),
			slog.Int64("stored", d.Stored),
			slog.Int64("replayed", d.Replayed))
	}
	if s.metrics != nil && companyID == uuid.Nil {
		s.metrics.SetIntegrityDrift(len(drifted))
	}
	s.logger.Info("stock integrity scan finished", slog.Int("drifted", len(drifted)))
	return len(drifted), nil
}

// HandleTask processes TaskStockIntegrity tasks.
func (s *IntegrityScanner) HandleTask(ctx context.Context, t *asynq.Task) error {
	tracker := s.jobMetrics.Track(TaskStockIntegrity)
	var payload StockIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
	}
	companyID := uuid.Nil
	if payload.CompanyID != "" {
		id, err := uuid.Parse(payload.CompanyID)
		if err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		companyID = id
	}
	_, err := s.Scan(ctx, companyID)
	return tracker.End(err)
}

// IdempotencyJanitor prunes processed keys past the retention window.
type IdempotencyJanitor struct {
	store      *shared.IdempotencyStore
	retention  time.Duration
	jobMetrics *jobmetrics.Metrics
	logger     *slog.Logger
}

// NewIdempotencyJanitor builds IdempotencyJanitor.
func NewIdempotencyJanitor(store *shared.IdempotencyStore, retention time.Duration, jm *jobmetrics.Metrics, logger *slog.Logger) *IdempotencyJanitor {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &IdempotencyJanitor{store: store, retention: retention, jobMetrics: jm, logger: logger}
}

// HandleTask processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyJanitor) HandleTask(ctx context.Context, _ *asynq.Task) error {
	tracker := j.jobMetrics.Track(TaskIdempotencyCleanup)
	if err := j.store.Cleanup(ctx, j.retention); err != nil {
		j.logger.Error("idempotency cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("idempotency cleanup finished", slog.Duration("retention", j.retention))
	return tracker.End(nil)
}
