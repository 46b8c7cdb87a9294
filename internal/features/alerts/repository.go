// Package alerts: repository.go работает с таблицей alerts.
package alerts

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/db/postgres"
	"serotonyl.ru/monad-curator/internal/features/projects"
)

// Columns: колонки алерта, общие с пакетом voting.
const Columns = `id, project_id, message, alert_type, created_at`

// Repository работает с таблицей alerts.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Querier: общее у пула и транзакции.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Insert вставляет алерт через пул или транзакцию.
func Insert(ctx context.Context, q Querier, projectID string, alertType projects.Status, message string) (*Alert, error) {
	a, err := Scan(q.QueryRow(ctx, `
		INSERT INTO alerts (id, project_id, message, alert_type)
		VALUES ($1, $2, $3, $4)
		RETURNING `+Columns,
		uuid.NewString(), projectID, message, string(alertType),
	))
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return nil, common.ErrProjectNotFound
		}
		return nil, common.NewStorageError("insert alert", err)
	}
	return a, nil
}

// Create вставляет ручной алерт.
func (r *Repository) Create(ctx context.Context, projectID string, alertType projects.Status, message string) (*Alert, error) {
	return Insert(ctx, r.db, projectID, alertType, message)
}

// List возвращает алерты, новые первыми; пустой projectID: все.
func (r *Repository) List(ctx context.Context, projectID string, limit int) ([]*Alert, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+Columns+` FROM alerts
		WHERE ($1 = '' OR project_id = $1)
		ORDER BY created_at DESC
		LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, common.NewStorageError("list alerts", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		a, err := Scan(rows)
		if err != nil {
			return nil, common.NewStorageError("scan alert", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewStorageError("list alerts", err)
	}
	return out, nil
}

// Scan читает строку в порядке Columns.
func Scan(row pgx.Row) (*Alert, error) {
	var a Alert
	var alertType string
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Message, &alertType, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.AlertType = projects.Status(alertType)
	return &a, nil
}
