// Package criteria: repository.go работает с таблицей criteria.
package criteria

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/db/postgres"
)

const columns = `id, name, description, weight, created_at, updated_at`

// Repository работает с таблицей criteria.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// List возвращает критерии, самые весомые первыми.
func (r *Repository) List(ctx context.Context) ([]*Criteria, error) {
	rows, err := r.db.Query(ctx, `SELECT `+columns+` FROM criteria ORDER BY weight DESC, name`)
	if err != nil {
		return nil, common.NewStorageError("list criteria", err)
	}
	defer rows.Close()

	var out []*Criteria
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, common.NewStorageError("scan criteria", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewStorageError("list criteria", err)
	}
	return out, nil
}

// GetByID: если не найден, ErrCriteriaNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (*Criteria, error) {
	c, err := scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM criteria WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrCriteriaNotFound
		}
		return nil, common.NewStorageError("get criteria", err)
	}
	return c, nil
}

// Create вставляет критерий.
func (r *Repository) Create(ctx context.Context, c *Criteria) (*Criteria, error) {
	created, err := scan(r.db.QueryRow(ctx, `
		INSERT INTO criteria (id, name, description, weight)
		VALUES ($1, $2, $3, $4)
		RETURNING `+columns, uuid.NewString(), c.Name, c.Description, c.Weight))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, common.ErrCriteriaExists
		}
		return nil, common.NewStorageError("create criteria", err)
	}
	return created, nil
}

// Update сохраняет критерий.
func (r *Repository) Update(ctx context.Context, c *Criteria) (*Criteria, error) {
	updated, err := scan(r.db.QueryRow(ctx, `
		UPDATE criteria SET name = $2, description = $3, weight = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+columns, c.ID, c.Name, c.Description, c.Weight))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrCriteriaNotFound
		}
		if postgres.IsUniqueViolation(err) {
			return nil, common.ErrCriteriaExists
		}
		return nil, common.NewStorageError("update criteria", err)
	}
	return updated, nil
}

// Count возвращает число критериев.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM criteria`).Scan(&n); err != nil {
		return 0, common.NewStorageError("count criteria", err)
	}
	return n, nil
}

func scan(row pgx.Row) (*Criteria, error) {
	var c Criteria
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Weight, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
