// Package members: repository.go отвечает за операции с таблицей users.
package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/db/postgres"
)

const userColumns = `id, discord_id, twitter_id, username, avatar, wallet_address, role,
	is_admin, is_trusted_voter, created_at, updated_at`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert создаёт участника или обновляет профиль по discord_id/twitter_id.
// Флаги администратора и доверенного не трогает.
func (r *Repository) Upsert(ctx context.Context, in UpsertInput) (*User, error) {
	conflict := "discord_id"
	if in.DiscordID == "" {
		conflict = "twitter_id"
	}
	query := fmt.Sprintf(`
		INSERT INTO users (id, discord_id, twitter_id, username, avatar, role)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6)
		ON CONFLICT (%s) DO UPDATE
		SET username = EXCLUDED.username,
		    avatar = EXCLUDED.avatar,
		    role = EXCLUDED.role,
		    updated_at = NOW()
		RETURNING %s
	`, conflict, userColumns)

	role := in.Role
	if role == "" {
		role = auth.RoleNone
	}
	u, err := scanUser(r.db.QueryRow(ctx, query,
		uuid.NewString(), in.DiscordID, in.TwitterID, in.Username, in.Avatar, string(role),
	))
	if err != nil {
		return nil, common.NewStorageError("upsert user", err)
	}
	return u, nil
}

// GetByID: если не найден, common.ErrUserNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w (id=%s)", common.ErrUserNotFound, id)
		}
		return nil, common.NewStorageError("get user", err)
	}
	return u, nil
}

// UpdateWallet привязывает кошелёк. Занятый адрес: ErrWalletTaken.
func (r *Repository) UpdateWallet(ctx context.Context, id, wallet string) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `
		UPDATE users SET wallet_address = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, wallet))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		if postgres.IsUniqueViolation(err) {
			return nil, common.ErrWalletTaken
		}
		return nil, common.NewStorageError("update wallet", err)
	}
	return u, nil
}

// IsWalletTaken: адрес привязан к другому участнику.
func (r *Repository) IsWalletTaken(ctx context.Context, wallet, exceptUserID string) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(wallet_address) = LOWER($1) AND id <> $2)`,
		wallet, exceptUserID,
	).Scan(&taken)
	if err != nil {
		return false, common.NewStorageError("check wallet", err)
	}
	return taken, nil
}

// UpdateRoles меняет роль и/или флаг доверенного.
func (r *Repository) UpdateRoles(ctx context.Context, id string, role *auth.Role, trusted *bool) (*User, error) {
	var roleArg *string
	if role != nil {
		s := string(*role)
		roleArg = &s
	}
	u, err := scanUser(r.db.QueryRow(ctx, `
		UPDATE users
		SET role = COALESCE($2, role),
		    is_trusted_voter = COALESCE($3, is_trusted_voter),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, roleArg, trusted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, common.NewStorageError("update roles", err)
	}
	return u, nil
}

// SetAdmin выставляет флаг администратора.
func (r *Repository) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET is_admin = $2, updated_at = NOW() WHERE id = $1`, id, isAdmin)
	if err != nil {
		return common.NewStorageError("set admin", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(
		&u.ID, &u.DiscordID, &u.TwitterID, &u.Username, &u.Avatar, &u.WalletAddress, &role,
		&u.IsAdmin, &u.IsTrustedVoter, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}
