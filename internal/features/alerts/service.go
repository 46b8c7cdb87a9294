// service.go (package alerts): ручные алерты и выборка.
package alerts

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/features/projects"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxMessageLen    = 1000
)

// Store: хранилище алертов (реализация *Repository).
type Store interface {
	Create(ctx context.Context, projectID string, alertType projects.Status, message string) (*Alert, error)
	List(ctx context.Context, projectID string, limit int) ([]*Alert, error)
}

// ProjectGetter: чтение проекта.
type ProjectGetter interface {
	Get(ctx context.Context, id string) (*projects.Project, error)
}

// Service: алерты.
type Service struct {
	repo      Store
	projects  ProjectGetter
	publisher *Publisher
}

func NewService(repo Store, pg ProjectGetter, publisher *Publisher) *Service {
	return &Service{repo: repo, projects: pg, publisher: publisher}
}

// Create: ручной алерт модератора. Статус проекта не меняется.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Alert, error) {
	if !actor.CanModerate() {
		return nil, fmt.Errorf("%w: создавать алерты может только модератор", common.ErrForbidden)
	}
	alertType, err := projects.ParseStatus(in.AlertType)
	if err != nil {
		return nil, err
	}
	message := strings.TrimSpace(in.Message)
	if len([]rune(message)) > maxMessageLen {
		return nil, fmt.Errorf("%w: сообщение длиннее %d символов", common.ErrValidation, maxMessageLen)
	}

	p, err := s.projects.Get(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = ManualMessage(p.Name, alertType)
	}

	a, err := s.repo.Create(ctx, p.ID, alertType, message)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"alert_id":   a.ID,
		"project_id": p.ID,
		"type":       a.AlertType,
		"by":         actor.UserID,
	}).Info("Создан ручной алерт")

	s.publisher.Publish(a, p)
	return a, nil
}

// List: последние алерты, опционально по проекту.
func (s *Service) List(ctx context.Context, projectID string, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	list, err := s.repo.List(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Alert{}
	}
	return list, nil
}
