// Package voting: ядро голосования.
//
// Голос участника (FOR/AGAINST) хранится один на пару (участник, проект)
// вместе со снимком роли на момент голосования. Каждая мутация (создание,
// смена, отзыв) в одной транзакции обновляет голос, счётчики по ролям
// (RoleTally), агрегаты проекта, пересчитывает статус и флаг verified
// и при переходе в SCAM/RUG создаёт алерт. События и уведомления
// рассылаются после коммита.
package voting

import (
	"fmt"
	"strings"
	"time"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/features/projects"
)

// VoteType: направление голоса.
type VoteType string

const (
	VoteFor     VoteType = "FOR"
	VoteAgainst VoteType = "AGAINST"
)

// ParseVoteType разбирает тип голоса без учёта регистра.
func ParseVoteType(raw string) (VoteType, error) {
	switch t := VoteType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case VoteFor, VoteAgainst:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrInvalidVoteType, raw)
}

// CriteriaValue: ответ по критерию.
type CriteriaValue string

const (
	ValueYes CriteriaValue = "YES"
	ValueNo  CriteriaValue = "NO"
)

// ParseCriteriaValue разбирает YES/NO без учёта регистра.
func ParseCriteriaValue(raw string) (CriteriaValue, error) {
	switch v := CriteriaValue(strings.ToUpper(strings.TrimSpace(raw))); v {
	case ValueYes, ValueNo:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrInvalidVoteValue, raw)
}

// VoteType: YES ≡ FOR, NO ≡ AGAINST.
func (v CriteriaValue) VoteType() VoteType {
	if v == ValueYes {
		return VoteFor
	}
	return VoteAgainst
}

// Vote: голос участника за проект.
type Vote struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	ProjectID      string         `json:"projectId"`
	VoteType       VoteType       `json:"voteType"`
	Role           auth.Role      `json:"role"`
	Comment        string         `json:"comment,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastModifiedAt time.Time      `json:"lastModifiedAt"`
	CriteriaVotes  []CriteriaVote `json:"criteriaVotes,omitempty"`
}

// CriteriaVote: ответ по одному критерию внутри голоса.
type CriteriaVote struct {
	ID         string        `json:"id"`
	VoteID     string        `json:"voteId"`
	CriteriaID string        `json:"criteriaId"`
	Value      CriteriaValue `json:"value"`
	Comment    string        `json:"comment,omitempty"`
}

// CriteriaVoteInput: ответ по критерию в запросе.
type CriteriaVoteInput struct {
	CriteriaID string `json:"criteriaId"`
	Value      string `json:"value"`
	Comment    string `json:"comment"`
}

// ReviewInput: отзыв по критериям. Пустой UserID означает голос от своего имени.
type ReviewInput struct {
	ProjectID     string              `json:"projectId"`
	UserID        string              `json:"userId"`
	Value         string              `json:"value"`
	Comment       string              `json:"comment"`
	CriteriaVotes []CriteriaVoteInput `json:"criteriaVotes"`
}

// Stats: итог голосования по проекту.
type Stats struct {
	VotesFor     int64 `json:"votesFor"`
	VotesAgainst int64 `json:"votesAgainst"`
	Total        int64 `json:"total"`
	Score        int64 `json:"score"`
}

// StatsOf считает итог по агрегатам проекта.
func StatsOf(p *projects.Project) Stats {
	return Stats{
		VotesFor:     p.VotesFor,
		VotesAgainst: p.VotesAgainst,
		Total:        p.VotesFor + p.VotesAgainst,
		Score:        p.VotesFor - p.VotesAgainst,
	}
}

// RoleCount: строка разбивки по ролям.
type RoleCount struct {
	Role         auth.Role `json:"role"`
	VotesFor     int64     `json:"votesFor"`
	VotesAgainst int64     `json:"votesAgainst"`
}

// SubmitResult: ответ на голосование.
// После отзыва повторным голосом (политика toggle) Vote == nil.
type SubmitResult struct {
	Vote           *Vote       `json:"vote"`
	Retracted      bool        `json:"retracted"`
	Stats          Stats       `json:"stats"`
	VotesBreakdown []RoleCount `json:"votesBreakdown"`
}

// CheckResult: голосовал ли участник.
type CheckResult struct {
	HasVoted bool      `json:"hasVoted"`
	VoteType *VoteType `json:"voteType"`
}

// ProjectDetail: карточка проекта с разбивкой голосов.
type ProjectDetail struct {
	*projects.Project
	VotesBreakdown []RoleCount `json:"votesBreakdown"`
	ReviewsCount   int64       `json:"reviewsCount"`
	AverageScore   *float64    `json:"averageScore"`
}
