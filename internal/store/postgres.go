package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/thumbnailflow/internal/models"
	"github.com/Lllllllleong/thumbnailflow/internal/services"
)

// DefaultTable is used when the store URI names no table.
const DefaultTable = "images"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Postgres stores one row per image keyed by identifier.
type Postgres struct {
	pool  *pgxpool.Pool
	table string

	upsertSQL   string
	existingSQL string
	countSQL    string
	listSQL     string
	thumbSQL    string
}

// NewPostgres uses table on pool. Call EnsureSchema before the first write.
func NewPostgres(pool *pgxpool.Pool, table string) (*Postgres, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	t := pgx.Identifier{table}.Sanitize()
	return &Postgres{
		pool:  pool,
		table: table,
		upsertSQL: `INSERT INTO ` + t + `
			(identifier, sequence_index, thumbnail, status, error_message, processed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (identifier) DO UPDATE SET
				sequence_index = EXCLUDED.sequence_index,
				thumbnail = EXCLUDED.thumbnail,
				status = EXCLUDED.status,
				error_message = EXCLUDED.error_message,
				processed_at = EXCLUDED.processed_at,
				updated_at = now()`,
		existingSQL: `SELECT identifier FROM ` + t + ` WHERE identifier = ANY($1)`,
		countSQL:    `SELECT count(*) FROM ` + t,
		listSQL: `SELECT identifier, sequence_index, status FROM ` + t + `
			ORDER BY sequence_index, identifier OFFSET $1 LIMIT $2`,
		thumbSQL: `SELECT thumbnail FROM ` + t + ` WHERE identifier = $1`,
	}, nil
}

// EnsureSchema creates the table and its indexes if they are missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	t := pgx.Identifier{p.table}.Sanitize()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + t + ` (
			identifier     TEXT PRIMARY KEY,
			sequence_index BIGINT NOT NULL,
			thumbnail      BYTEA NOT NULL,
			status         TEXT NOT NULL,
			error_message  TEXT,
			processed_at   TIMESTAMPTZ NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{p.table + "_sequence_index_idx"}.Sanitize() + ` ON ` + t + ` (sequence_index)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{p.table + "_status_idx"}.Sanitize() + ` ON ` + t + ` (status)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare schema for %s: %w", p.table, err)
		}
	}
	return nil
}

// Existing reports which ids already have a row.
func (p *Postgres) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	rows, err := p.pool.Query(ctx, p.existingSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up rows in %s: %w", p.table, err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to look up rows in %s: %w", p.table, err)
	}
	out := make(map[string]bool, len(found))
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

// UpsertAll runs one autocommit upsert per image, concurrently up to the
// pool size. A failed statement leaves the other rows committed.
func (p *Postgres) UpsertAll(ctx context.Context, images []models.ProcessedImage) ([]error, error) {
	errs := make([]error, len(images))

	var g errgroup.Group
	g.SetLimit(int(p.pool.Config().MaxConns))
	for i, img := range images {
		g.Go(func() error {
			var errMsg *string
			if img.ErrorMessage != "" {
				errMsg = &img.ErrorMessage
			}
			thumb := img.Thumbnail
			if thumb == nil {
				thumb = []byte{}
			}
			if _, err := p.pool.Exec(ctx, p.upsertSQL,
				img.Identifier, img.SequenceIndex, thumb, string(img.Status), errMsg, img.ProcessedAt,
			); err != nil {
				errs[i] = fmt.Errorf("failed to upsert %q: %w", img.Identifier, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errs, nil
}

// Count returns the number of rows.
func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, p.countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", p.table, err)
	}
	return n, nil
}

// List pages through the rows ordered by sequence index.
func (p *Postgres) List(ctx context.Context, offset, limit int) ([]models.ImageSummary, error) {
	rows, err := p.pool.Query(ctx, p.listSQL, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows in %s: %w", p.table, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ImageSummary, error) {
		var s models.ImageSummary
		var st string
		err := row.Scan(&s.Identifier, &s.SequenceIndex, &st)
		s.Status = models.Status(st)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list rows in %s: %w", p.table, err)
	}
	return out, nil
}

// Thumbnail returns the stored bytes for id.
func (p *Postgres) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	var thumb []byte
	err := p.pool.QueryRow(ctx, p.thumbSQL, id).Scan(&thumb)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("image %q: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image %q: %w", id, err)
	}
	return thumb, nil
}
