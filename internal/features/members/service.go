// Package members: service.go содержит бизнес-логику участников:
// загрузку снимка для проверки прав, привязку кошелька и смену ролей.
package members

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/auth"
	apperr "serotonyl.ru/monad-curator/internal/common"
)

// Store: хранилище участников (реализация *Repository).
type Store interface {
	Upsert(ctx context.Context, in UpsertInput) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	UpdateWallet(ctx context.Context, id, wallet string) (*User, error)
	IsWalletTaken(ctx context.Context, wallet, exceptUserID string) (bool, error)
	UpdateRoles(ctx context.Context, id string, role *auth.Role, trusted *bool) (*User, error)
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
}

// Service управляет участниками.
type Service struct {
	repo Store
}

// NewService создаёт сервис участников.
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// ActorByID возвращает актуальный снимок участника (для мидлвари аутентификации).
func (s *Service) ActorByID(ctx context.Context, userID string) (auth.Actor, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return auth.Actor{}, err
	}
	return u.Actor(), nil
}

// GetByID возвращает участника.
func (s *Service) GetByID(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}

// Profile возвращает профиль с вычисленными правами.
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: u, CanVote: u.CanVote(), HasMonRole: u.Role == auth.RoleMON}, nil
}

// EnsureUser создаёт или обновляет участника по данным OAuth.
// Роль вычисляется снаружи (по ролям Discord) и приходит готовой.
func (s *Service) EnsureUser(ctx context.Context, in UpsertInput) (*User, error) {
	if in.DiscordID == "" && in.TwitterID == "" {
		return nil, fmt.Errorf("%w: нужен discord_id или twitter_id", apperr.ErrValidation)
	}
	if in.Role != "" && !in.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidRole, in.Role)
	}
	u, err := s.repo.Upsert(ctx, in)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"user_id": u.ID, "role": u.Role}).Info("Участник синхронизирован")
	return u, nil
}

// LinkWallet привязывает EVM-кошелёк к участнику.
// Адрес хранится в checksum-форме, один адрес: один участник.
func (s *Service) LinkWallet(ctx context.Context, actor auth.Actor, address string) (*User, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return nil, apperr.ErrInvalidAddress
	}
	checksummed := common.HexToAddress(address).Hex()

	taken, err := s.repo.IsWalletTaken(ctx, checksummed, actor.UserID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.ErrWalletTaken
	}

	u, err := s.repo.UpdateWallet(ctx, actor.UserID, checksummed)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"user_id": u.ID, "wallet": checksummed}).Info("Кошелёк привязан")
	return u, nil
}

// UpdateRoles меняет роль и флаг доверенного. Только администратор или доверенный;
// снять или выдать флаг доверенного может только администратор.
func (s *Service) UpdateRoles(ctx context.Context, actor auth.Actor, userID string, upd RolesUpdate) (*User, error) {
	if !actor.CanModerate() {
		return nil, apperr.ErrNotAdmin
	}
	if upd.IsTrustedVoter != nil && !actor.IsAdmin {
		return nil, apperr.ErrNotAdmin
	}

	var role *auth.Role
	if upd.Role != nil {
		r, err := auth.ParseRole(*upd.Role)
		if err != nil {
			return nil, err
		}
		role = &r
	}
	if role == nil && upd.IsTrustedVoter == nil {
		return nil, fmt.Errorf("%w: нечего обновлять", apperr.ErrValidation)
	}

	u, err := s.repo.UpdateRoles(ctx, userID, role, upd.IsTrustedVoter)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"by":      actor.UserID,
		"user_id": u.ID,
		"role":    u.Role,
		"trusted": u.IsTrustedVoter,
	}).Info("Роли участника обновлены")
	return u, nil
}

// GrantAdmin выдаёт флаг администратора (после проверки пароля в admin).
func (s *Service) GrantAdmin(ctx context.Context, userID string) error {
	return s.repo.SetAdmin(ctx, userID, true)
}
