// service.go (package admin): вход администратора с блокировкой перебора.
package admin

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
)

// AttemptStore: журнал попыток входа.
type AttemptStore interface {
	LogAttempt(ctx context.Context, userID string, success bool) error
	FailedAttemptsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Elevator выдаёт права администратора (members.Service).
type Elevator interface {
	GrantAdmin(ctx context.Context, userID string) error
}

// Service проверяет пароль администратора.
type Service struct {
	attempts     AttemptStore
	members      Elevator
	passwordHash string
	now          func() time.Time
}

// NewService создаёт сервис. Пустой passwordHash выключает вход.
func NewService(attempts AttemptStore, members Elevator, passwordHash string) *Service {
	return &Service{
		attempts:     attempts,
		members:      members,
		passwordHash: passwordHash,
		now:          time.Now,
	}
}

// Login проверяет пароль и выдаёт участнику is_admin.
// MaxFailedAttempts неудач за LockoutPeriod блокируют вход до конца окна.
func (s *Service) Login(ctx context.Context, actor auth.Actor, password string) error {
	if s.passwordHash == "" {
		return fmt.Errorf("%w: вход администратора выключен", common.ErrForbidden)
	}
	if password == "" {
		return fmt.Errorf("%w: пароль обязателен", common.ErrValidation)
	}

	logger := log.WithField("user_id", actor.UserID)

	failed, err := s.attempts.FailedAttemptsSince(ctx, actor.UserID, s.now().Add(-LockoutPeriod))
	if err != nil {
		return err
	}
	if failed >= MaxFailedAttempts {
		logger.Warn("Вход администратора заблокирован")
		return common.ErrTooManyAttempts
	}

	match := VerifyPassword(password, s.passwordHash)
	if err := s.attempts.LogAttempt(ctx, actor.UserID, match); err != nil {
		logger.WithError(err).Warn("Не удалось записать попытку входа")
	}
	if !match {
		logger.WithField("failed", failed+1).Info("Неверный пароль администратора")
		return common.ErrWrongPassword
	}

	if actor.IsAdmin {
		return nil
	}
	if err := s.members.GrantAdmin(ctx, actor.UserID); err != nil {
		return err
	}
	logger.Info("Участник повышен до администратора")
	return nil
}
