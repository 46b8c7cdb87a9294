// service.go (package projects): валидация и права на изменение карточек.
package projects

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	ethcommon "github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
)

const (
	maxNameLen        = 100
	maxDescriptionLen = 5000
)

// Store: хранилище проектов (реализация *Repository).
type Store interface {
	Create(ctx context.Context, f Fields, creatorID string) (*Project, error)
	GetByID(ctx context.Context, id string) (*Project, error)
	List(ctx context.Context, status Status) ([]*Project, error)
	Update(ctx context.Context, p *Project) (*Project, error)
	SiteStats(ctx context.Context) (*SiteStats, error)
}

// Service управляет карточками проектов.
type Service struct {
	repo Store
}

// NewService создаёт сервис проектов.
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// Create создаёт проект со статусом PENDING. Только администратор.
func (s *Service) Create(ctx context.Context, actor auth.Actor, f Fields) (*Project, error) {
	if !actor.IsAdmin {
		return nil, common.ErrNotAdmin
	}
	f, err := normalize(f)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.Create(ctx, f, actor.UserID)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"project_id": p.ID, "name": p.Name, "by": actor.UserID}).Info("Проект создан")
	return p, nil
}

// Update меняет описательные поля. Автор, доверенный или администратор.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, patch Patch) (*Project, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	isCreator := p.CreatorID != nil && *p.CreatorID == actor.UserID
	if !isCreator && !actor.CanModerate() {
		return nil, fmt.Errorf("%w: редактировать проект может автор или модератор", common.ErrForbidden)
	}

	f := Fields{
		Name: p.Name, Description: p.Description, Website: p.Website, Github: p.Github,
		Twitter: p.Twitter, Telegram: p.Telegram, Discord: p.Discord, ContractAddress: p.Contract(),
	}
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&f.Name, patch.Name)
	apply(&f.Description, patch.Description)
	apply(&f.Website, patch.Website)
	apply(&f.Github, patch.Github)
	apply(&f.Twitter, patch.Twitter)
	apply(&f.Telegram, patch.Telegram)
	apply(&f.Discord, patch.Discord)
	apply(&f.ContractAddress, patch.ContractAddress)

	if f, err = normalize(f); err != nil {
		return nil, err
	}
	p.Name, p.Description, p.Website, p.Github = f.Name, f.Description, f.Website, f.Github
	p.Twitter, p.Telegram, p.Discord = f.Twitter, f.Telegram, f.Discord
	p.ContractAddress = nil
	if f.ContractAddress != "" {
		p.ContractAddress = &f.ContractAddress
	}

	return s.repo.Update(ctx, p)
}

// Get возвращает проект.
func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	return s.repo.GetByID(ctx, id)
}

// List возвращает проекты; rawStatus пустой: все.
func (s *Service) List(ctx context.Context, rawStatus string) ([]*Project, error) {
	var status Status
	if rawStatus != "" {
		st, err := ParseStatus(rawStatus)
		if err != nil {
			return nil, err
		}
		status = st
	}
	list, err := s.repo.List(ctx, status)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Project{}
	}
	return list, nil
}

// SiteStats: общая статистика площадки.
func (s *Service) SiteStats(ctx context.Context) (*SiteStats, error) {
	return s.repo.SiteStats(ctx)
}

// normalize обрезает пробелы и проверяет поля.
// Адрес контракта приводится к checksum-форме EIP-55.
func normalize(f Fields) (Fields, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	if f.Name == "" || utf8.RuneCountInString(f.Name) > maxNameLen {
		return f, fmt.Errorf("%w: название обязательно (до %d символов)", common.ErrValidation, maxNameLen)
	}
	if f.Description == "" || utf8.RuneCountInString(f.Description) > maxDescriptionLen {
		return f, fmt.Errorf("%w: описание обязательно (до %d символов)", common.ErrValidation, maxDescriptionLen)
	}

	for _, link := range []*string{&f.Website, &f.Github, &f.Twitter, &f.Telegram, &f.Discord} {
		*link = strings.TrimSpace(*link)
		if *link == "" {
			continue
		}
		u, err := url.Parse(*link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return f, fmt.Errorf("%w: некорректная ссылка %q", common.ErrValidation, *link)
		}
	}

	f.ContractAddress = strings.TrimSpace(f.ContractAddress)
	if f.ContractAddress != "" {
		if !ethcommon.IsHexAddress(f.ContractAddress) {
			return f, common.ErrInvalidAddress
		}
		f.ContractAddress = ethcommon.HexToAddress(f.ContractAddress).Hex()
	}
	return f, nil
}
