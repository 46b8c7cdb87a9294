// Package projects: repository.go работает с таблицей projects.
package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/db/postgres"
)

// Columns: список колонок проекта, общий с пакетом voting.
const Columns = `id, name, description, website, github, twitter, telegram, discord,
	contract_address, status, verified, verified_at, votes_for, votes_against,
	creator_id, created_at, updated_at`

// Repository работает с таблицей projects.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create вставляет проект со статусом PENDING.
func (r *Repository) Create(ctx context.Context, f Fields, creatorID string) (*Project, error) {
	p, err := Scan(r.db.QueryRow(ctx, `
		INSERT INTO projects (id, name, description, website, github, twitter, telegram, discord,
		                      contract_address, creator_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''))
		RETURNING `+Columns,
		uuid.NewString(), f.Name, f.Description, f.Website, f.Github, f.Twitter, f.Telegram, f.Discord,
		f.ContractAddress, creatorID,
	))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, common.ErrProjectExists
		}
		return nil, common.NewStorageError("create project", err)
	}
	return p, nil
}

// GetByID: если не найден, common.ErrProjectNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (*Project, error) {
	p, err := Scan(r.db.QueryRow(ctx, `SELECT `+Columns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w (id=%s)", common.ErrProjectNotFound, id)
		}
		return nil, common.NewStorageError("get project", err)
	}
	return p, nil
}

// List возвращает проекты, новые первыми; пустой status: все.
func (r *Repository) List(ctx context.Context, status Status) ([]*Project, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+Columns+` FROM projects
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC`, string(status))
	if err != nil {
		return nil, common.NewStorageError("list projects", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := Scan(rows)
		if err != nil {
			return nil, common.NewStorageError("scan project", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewStorageError("list projects", err)
	}
	return out, nil
}

// Update сохраняет описательные поля проекта.
func (r *Repository) Update(ctx context.Context, p *Project) (*Project, error) {
	updated, err := Scan(r.db.QueryRow(ctx, `
		UPDATE projects
		SET name = $2, description = $3, website = $4, github = $5, twitter = $6,
		    telegram = $7, discord = $8, contract_address = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING `+Columns,
		p.ID, p.Name, p.Description, p.Website, p.Github, p.Twitter, p.Telegram, p.Discord, p.ContractAddress,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrProjectNotFound
		}
		if postgres.IsUniqueViolation(err) {
			return nil, common.ErrProjectExists
		}
		return nil, common.NewStorageError("update project", err)
	}
	return updated, nil
}

// SiteStats считает уникальных голосующих, голоса и проекты.
func (r *Repository) SiteStats(ctx context.Context) (*SiteStats, error) {
	var s SiteStats
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT user_id) FROM votes),
			(SELECT COUNT(*) FROM votes),
			(SELECT COUNT(*) FROM projects)
	`).Scan(&s.UniqueVoters, &s.TotalVotes, &s.TotalProjects)
	if err != nil {
		return nil, common.NewStorageError("site stats", err)
	}
	return &s, nil
}

// Scan читает строку в порядке Columns.
func Scan(row pgx.Row) (*Project, error) {
	var p Project
	var status string
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Website, &p.Github, &p.Twitter, &p.Telegram, &p.Discord,
		&p.ContractAddress, &status, &p.Verified, &p.VerifiedAt, &p.VotesFor, &p.VotesAgainst,
		&p.CreatorID, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	return &p, nil
}
