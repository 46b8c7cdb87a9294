// Package admin: repository.go работает с таблицей admin_login_attempts.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/monad-curator/internal/common"
)

// Repository работает с попытками входа.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, userID string, success bool) error {
	query := `INSERT INTO admin_login_attempts (user_id, success) VALUES ($1, $2)`
	if _, err := r.db.Exec(ctx, query, userID, success); err != nil {
		return common.NewStorageError("admin.log_attempt", fmt.Errorf("ошибка записи попытки входа: %w", err))
	}
	return nil
}

// FailedAttemptsSince возвращает число неудачных попыток начиная с since.
func (r *Repository) FailedAttemptsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE user_id = $1 AND success = FALSE AND attempt_time >= $2
	`
	var count int
	if err := r.db.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, common.NewStorageError("admin.failed_attempts", fmt.Errorf("ошибка подсчёта попыток входа: %w", err))
	}
	return count, nil
}
