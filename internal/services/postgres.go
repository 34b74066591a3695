package services

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rocjay1/rm-recurring/internal/models"
	"github.com/rocjay1/rm-recurring/internal/recurring"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// processorLockKey identifies the due-payment run in pg_try_advisory_lock.
const processorLockKey int64 = 0x5245435552 // "RECUR"

const scheduleColumns = `id, kind, category, description, amount::text, frequency, anchor_day_of_month,
	start_date, end_date, next_due_date, payments_processed, payment_limit, is_active,
	COALESCE(customer_id, ''), COALESCE(interaction_id, ''), created_at`

// PostgresStore stores schedules and ledger transactions in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and applies pending migrations.
func NewPostgresStore(ctx context.Context, databaseURI string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURI)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("postgres store initialized successfully")
	return store, nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// Migrate applies the embedded SQL migrations that have not run yet.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, filename := range files {
		var exists bool
		err := p.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			filename,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if exists {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + filename)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}
		if _, err := p.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
		if _, err := p.pool.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", filename); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", filename, err)
		}
		slog.Info("applied migration", "version", filename)
	}
	return nil
}

func scanSchedule(row pgx.Row) (models.RecurringSchedule, error) {
	var (
		s               models.RecurringSchedule
		kind, category  string
		freq, amountStr string
		start, next     time.Time
		end             *time.Time
	)
	err := row.Scan(&s.ID, &kind, &category, &s.Description, &amountStr, &freq, &s.AnchorDayOfMonth,
		&start, &end, &next, &s.PaymentsProcessed, &s.PaymentLimit, &s.IsActive,
		&s.CustomerID, &s.InteractionID, &s.CreatedAt)
	if err != nil {
		return s, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return s, &badRowError{id: s.ID, err: fmt.Errorf("schedule %s: invalid amount %q: %w", s.ID, amountStr, err)}
	}
	s.Amount = amount
	s.Kind = models.Kind(kind)
	s.Category = models.Category(category)
	s.Frequency = models.Frequency(freq)
	s.StartDate = models.DateOf(start, time.UTC)
	s.NextDueDate = models.DateOf(next, time.UTC)
	if end != nil {
		d := models.DateOf(*end, time.UTC)
		s.EndDate = &d
	}
	s.ETag = scheduleVersion(s.NextDueDate, s.PaymentsProcessed)
	return s, nil
}

// scheduleVersion stands in for an ETag: the lifecycle fields only move
// forward, so the pair identifies the row state an update was computed from.
func scheduleVersion(next models.Date, processed int) string {
	return fmt.Sprintf("%s/%d", next, processed)
}

// badRowError is a row that was read but holds values a schedule cannot
// carry. Unlike a scan error it does not end the result set.
type badRowError struct {
	id  string
	err error
}

func (e *badRowError) Error() string { return e.err.Error() }
func (e *badRowError) Unwrap() error { return e.err }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// InsertSchedule adds a new schedule row.
func (p *PostgresStore) InsertSchedule(ctx context.Context, s *models.RecurringSchedule) error {
	var end *time.Time
	if s.EndDate != nil {
		end = &s.EndDate.Time
	}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO recurring_schedules (id, kind, category, description, amount, frequency, anchor_day_of_month,
			start_date, end_date, next_due_date, payments_processed, payment_limit, is_active, customer_id, interaction_id)
		 VALUES ($1, $2, $3, $4, CAST($5::text AS NUMERIC), $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING created_at`,
		s.ID, string(s.Kind), string(s.Category), s.Description, s.Amount.String(), string(s.Frequency), s.AnchorDayOfMonth,
		s.StartDate.Time, end, s.NextDueDate.Time, s.PaymentsProcessed, s.PaymentLimit, s.IsActive,
		nullIfEmpty(s.CustomerID), nullIfEmpty(s.InteractionID),
	).Scan(&s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("schedule %s: %w", s.ID, recurring.ErrScheduleExists)
		}
		return fmt.Errorf("failed to insert schedule %s: %w", s.ID, err)
	}
	s.ETag = scheduleVersion(s.NextDueDate, s.PaymentsProcessed)
	return nil
}

// FindActiveDueOn returns active schedules due on or before today, and the
// matching rows that could not be decoded.
func (p *PostgresStore) FindActiveDueOn(ctx context.Context, today models.Date) ([]models.RecurringSchedule, []recurring.UnreadableSchedule, error) {
	return p.querySchedules(ctx,
		`SELECT `+scheduleColumns+` FROM recurring_schedules
		 WHERE is_active AND next_due_date <= $1
		 ORDER BY next_due_date, id`,
		today.Time,
	)
}

// ListSchedules returns every schedule, newest first. Rows that cannot be
// decoded are logged and left out.
func (p *PostgresStore) ListSchedules(ctx context.Context) ([]models.RecurringSchedule, error) {
	schedules, unreadable, err := p.querySchedules(ctx, `SELECT `+scheduleColumns+` FROM recurring_schedules ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	for _, u := range unreadable {
		slog.Warn("skipping invalid schedule row", "schedule_id", u.ID, "error", u.Err)
	}
	return schedules, nil
}

func (p *PostgresStore) querySchedules(ctx context.Context, sql string, args ...any) ([]models.RecurringSchedule, []recurring.UnreadableSchedule, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	schedules := []models.RecurringSchedule{}
	var unreadable []recurring.UnreadableSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		var bad *badRowError
		if errors.As(err, &bad) {
			unreadable = append(unreadable, recurring.UnreadableSchedule{ID: bad.id, Err: bad.err})
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read schedules: %w", err)
	}
	return schedules, unreadable, nil
}

// GetSchedule fetches one schedule by id.
func (p *PostgresStore) GetSchedule(ctx context.Context, id string) (*models.RecurringSchedule, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM recurring_schedules WHERE id = $1`, id)
	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get schedule %s: %w", id, err)
	}
	return &s, nil
}

// UpdateAfterProcessing writes the advanced state of a schedule if it still
// holds the state it was read with.
func (p *PostgresStore) UpdateAfterProcessing(ctx context.Context, s *models.RecurringSchedule, adv models.ScheduleAdvance) error {
	return writeScheduleAdvance(ctx, p.pool, s, adv)
}

// UpdateAfterImmediateCreation records the occurrence written at creation.
func (p *PostgresStore) UpdateAfterImmediateCreation(ctx context.Context, s *models.RecurringSchedule, adv models.ScheduleAdvance) error {
	return writeScheduleAdvance(ctx, p.pool, s, adv)
}

// execer is the part of a pool or connection that runs a statement.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// writeScheduleAdvance updates a schedule only while it still holds the due
// date and count it was read with.
func writeScheduleAdvance(ctx context.Context, db execer, s *models.RecurringSchedule, adv models.ScheduleAdvance) error {
	tag, err := db.Exec(ctx,
		`UPDATE recurring_schedules
		 SET next_due_date = $1, payments_processed = $2, is_active = $3, updated_at = NOW()
		 WHERE id = $4 AND next_due_date = $5 AND payments_processed = $6`,
		adv.NextDueDate.Time, adv.PaymentsProcessed, adv.IsActive,
		s.ID, s.NextDueDate.Time, s.PaymentsProcessed,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule %s: %w", s.ID, ErrConcurrentUpdate)
	}
	s.ETag = scheduleVersion(adv.NextDueDate, adv.PaymentsProcessed)
	return nil
}

// DeleteSchedule removes a schedule row. Ledger rows it produced are kept.
func (p *PostgresStore) DeleteSchedule(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM recurring_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendTransaction inserts an immutable ledger row and returns its id.
func (p *PostgresStore) AppendTransaction(ctx context.Context, tx models.LedgerTransaction) (string, error) {
	id := uuid.New().String()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO ledger_transactions (id, kind, category, description, amount, date, source,
			recurring_schedule_id, customer_id, interaction_id)
		 VALUES ($1, $2, $3, $4, CAST($5::text AS NUMERIC), $6, $7, $8, $9, $10)`,
		id, string(tx.Kind), string(tx.Category), tx.Description, tx.Amount.String(), tx.Date.Time, string(tx.Source),
		nullIfEmpty(tx.RecurringScheduleID), nullIfEmpty(tx.CustomerID), nullIfEmpty(tx.InteractionID),
	)
	if err != nil {
		return "", fmt.Errorf("failed to append transaction: %w", err)
	}
	return id, nil
}

// ListLedgerTransactions returns the ledger rows dated within a YYYY-MM month.
func (p *PostgresStore) ListLedgerTransactions(ctx context.Context, month string) ([]models.LedgerTransaction, error) {
	first, err := models.ParseDate(month + "-01")
	if err != nil {
		return nil, fmt.Errorf("invalid month %q: %w", month, err)
	}
	next := models.NewDate(first.Year(), first.Month()+1, 1)

	rows, err := p.pool.Query(ctx,
		`SELECT id, kind, category, description, amount::text, date, source,
			COALESCE(recurring_schedule_id, ''), COALESCE(customer_id, ''), COALESCE(interaction_id, ''), created_at
		 FROM ledger_transactions
		 WHERE date >= $1 AND date < $2
		 ORDER BY date, created_at`,
		first.Time, next.Time,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger transactions: %w", err)
	}
	defer rows.Close()

	txs := []models.LedgerTransaction{}
	for rows.Next() {
		var (
			tx                     models.LedgerTransaction
			kind, category, source string
			amountStr              string
			date                   time.Time
		)
		if err := rows.Scan(&tx.ID, &kind, &category, &tx.Description, &amountStr, &date, &source,
			&tx.RecurringScheduleID, &tx.CustomerID, &tx.InteractionID, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger transaction: %w", err)
		}
		if tx.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("transaction %s: invalid amount %q: %w", tx.ID, amountStr, err)
		}
		tx.Kind = models.Kind(kind)
		tx.Category = models.Category(category)
		tx.Source = models.Source(source)
		tx.Date = models.DateOf(date, time.UTC)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger transactions: %w", err)
	}
	return txs, nil
}

// TryLock takes a session-level advisory lock on a dedicated connection so
// that only one due-payment run proceeds across all instances.
func (p *PostgresStore) TryLock(ctx context.Context) (func(), error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for processor lock: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", processorLockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to take processor lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, recurring.ErrProcessorBusy
	}

	return func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", processorLockKey); err != nil {
			slog.Error("failed to release processor lock", "error", err)
		}
		conn.Release()
	}, nil
}
