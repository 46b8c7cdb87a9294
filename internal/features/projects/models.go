// Package projects управляет карточками проектов: создание, редактирование,
// выборка по статусу и общая статистика площадки.
// Статус и флаг verified меняет только голосование (пакет voting).
package projects

import (
	"fmt"
	"strings"
	"time"

	"serotonyl.ru/monad-curator/internal/common"
)

// Status: статус доверия проекта.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusVerified   Status = "VERIFIED"
	StatusUnverified Status = "UNVERIFIED"
	StatusScam       Status = "SCAM"
	StatusRug        Status = "RUG"
)

// Valid: статус из известного списка.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusUnverified, StatusScam, StatusRug:
		return true
	}
	return false
}

// Alarming: переход в этот статус порождает алерт.
func (s Status) Alarming() bool {
	return s == StatusScam || s == StatusRug
}

// ParseStatus разбирает статус без учёта регистра.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidStatus, raw)
	}
	return s, nil
}

// Project: проект в базе.
type Project struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Website         string     `json:"website,omitempty"`
	Github          string     `json:"github,omitempty"`
	Twitter         string     `json:"twitter,omitempty"`
	Telegram        string     `json:"telegram,omitempty"`
	Discord         string     `json:"discord,omitempty"`
	ContractAddress *string    `json:"contractAddress,omitempty"`
	Status          Status     `json:"status"`
	Verified        bool       `json:"verified"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty"`
	VotesFor        int64      `json:"votesFor"`
	VotesAgainst    int64      `json:"votesAgainst"`
	CreatorID       *string    `json:"creatorId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Contract возвращает адрес контракта или пустую строку.
func (p *Project) Contract() string {
	if p.ContractAddress == nil {
		return ""
	}
	return *p.ContractAddress
}

// Fields: редактируемые описательные поля.
type Fields struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Website         string `json:"website"`
	Github          string `json:"github"`
	Twitter         string `json:"twitter"`
	Telegram        string `json:"telegram"`
	Discord         string `json:"discord"`
	ContractAddress string `json:"contractAddress"`
}

// Patch: частичное обновление, nil-поле не меняется.
type Patch struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	Website         *string `json:"website"`
	Github          *string `json:"github"`
	Twitter         *string `json:"twitter"`
	Telegram        *string `json:"telegram"`
	Discord         *string `json:"discord"`
	ContractAddress *string `json:"contractAddress"`
}

// SiteStats: общая статистика площадки.
type SiteStats struct {
	UniqueVoters  int64 `json:"uniqueVoters"`
	TotalVotes    int64 `json:"totalVotes"`
	TotalProjects int64 `json:"totalProjects"`
}
