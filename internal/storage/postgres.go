package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/cloudetl/pipeline-runner/internal/config"
	"github.com/cloudetl/pipeline-runner/internal/models"
)

// PostgreSQLStorage implements Storage using PostgreSQL via lib/pq.
type PostgreSQLStorage struct {
	db        *sql.DB
	tableName string
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance and
// ensures the target table exists.
func NewPostgreSQLStorage(cfg config.Storage) (*PostgreSQLStorage, error) {
	if cfg.PostgresURI == "" {
		return nil, fmt.Errorf("POSTGRES_URI is required for postgresql storage")
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	storage := &PostgreSQLStorage{
		db:        db,
		tableName: cfg.TableName,
	}

	if err := storage.ensureTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure table exists: %w", err)
	}
	return storage, nil
}

// ensureTable creates the records table if it doesn't exist.
func (p *PostgreSQLStorage) ensureTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id           TEXT NOT NULL,
			"timestamp"  TEXT NOT NULL,
			title        TEXT NOT NULL,
			body         TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			source_url   TEXT NOT NULL,
			processed_at TEXT NOT NULL,
			PRIMARY KEY (id, "timestamp")
		)`, pq.QuoteIdentifier(p.tableName))

	_, err := p.db.Exec(query)
	return err
}

// HealthCheck verifies the database is reachable.
func (p *PostgreSQLStorage) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return nil
}

// WriteBatch upserts one chunk of records inside a transaction.
func (p *PostgreSQLStorage) WriteBatch(ctx context.Context, records []models.NormalizedRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, "timestamp", title, body, user_id, source_url, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id, "timestamp") DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			user_id = EXCLUDED.user_id,
			source_url = EXCLUDED.source_url,
			processed_at = EXCLUDED.processed_at`, pq.QuoteIdentifier(p.tableName))

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		_, err := stmt.ExecContext(ctx,
			record.ID, record.Timestamp, record.Title, record.Body,
			record.UserID, record.SourceURL, record.ProcessedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", record.ID, err)
		}
	}

	return tx.Commit()
}

// GetRecords retrieves stored records with pagination.
func (p *PostgreSQLStorage) GetRecords(ctx context.Context, limit int, offset int) ([]models.NormalizedRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, "timestamp", title, body, user_id, source_url, processed_at
		FROM %s
		ORDER BY id, "timestamp" DESC
		LIMIT $1 OFFSET $2`, pq.QuoteIdentifier(p.tableName))

	rows, err := p.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []models.NormalizedRecord
	for rows.Next() {
		var r models.NormalizedRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Title, &r.Body, &r.UserID, &r.SourceURL, &r.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetRecordByID returns the most recently processed record for an id.
func (p *PostgreSQLStorage) GetRecordByID(ctx context.Context, id string) (*models.NormalizedRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, "timestamp", title, body, user_id, source_url, processed_at
		FROM %s
		WHERE id = $1
		ORDER BY "timestamp" DESC
		LIMIT 1`, pq.QuoteIdentifier(p.tableName))

	var r models.NormalizedRecord
	err := p.db.QueryRowContext(ctx, query, id).
		Scan(&r.ID, &r.Timestamp, &r.Title, &r.Body, &r.UserID, &r.SourceURL, &r.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query record %s: %w", id, err)
	}
	return &r, nil
}

// Close closes the database connection.
func (p *PostgreSQLStorage) Close() error {
	return p.db.Close()
}
