package criteria

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
)

// Store: хранилище критериев (реализация *Repository).
type Store interface {
	List(ctx context.Context) ([]*Criteria, error)
	GetByID(ctx context.Context, id string) (*Criteria, error)
	Create(ctx context.Context, c *Criteria) (*Criteria, error)
	Update(ctx context.Context, c *Criteria) (*Criteria, error)
	Count(ctx context.Context) (int64, error)
}

// Service управляет справочником критериев.
type Service struct {
	repo Store
}

func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// SeedDefaults заполняет пустой справочник набором Defaults.
func (s *Service) SeedDefaults(ctx context.Context) error {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for i := range Defaults {
		if _, err := s.repo.Create(ctx, &Defaults[i]); err != nil {
			return fmt.Errorf("критерий %q: %w", Defaults[i].Name, err)
		}
	}
	log.WithField("count", len(Defaults)).Info("Критерии по умолчанию созданы")
	return nil
}

func (s *Service) List(ctx context.Context) ([]*Criteria, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Criteria{}
	}
	return list, nil
}

// Create добавляет критерий. Только администратор.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in Input) (*Criteria, error) {
	if !actor.IsAdmin {
		return nil, common.ErrNotAdmin
	}
	c := &Criteria{Weight: 1.0}
	if err := apply(c, in); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, c)
}

// Update меняет критерий. Только администратор.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, in Input) (*Criteria, error) {
	if !actor.IsAdmin {
		return nil, common.ErrNotAdmin
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(c, in); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, c)
}

func apply(c *Criteria, in Input) error {
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.Weight != nil {
		c.Weight = *in.Weight
	}
	if c.Name == "" {
		return fmt.Errorf("%w: название критерия обязательно", common.ErrValidation)
	}
	if c.Weight < MinWeight || c.Weight > MaxWeight {
		return common.ErrInvalidWeight
	}
	return nil
}
