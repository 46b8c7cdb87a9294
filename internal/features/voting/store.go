// store.go (package voting): хранилище голосов.
// Реализации: *Repository (PostgreSQL) и *MemStore (память, для тестов и CLI).
package voting

import (
	"context"

	"serotonyl.ru/monad-curator/internal/features/alerts"
	"serotonyl.ru/monad-curator/internal/features/projects"
)

// Store: хранилище голосов, счётчиков и агрегатов проекта.
type Store interface {
	// InProjectTx выполняет fn в транзакции, удерживая блокировку проекта.
	// Ошибка fn откатывает все изменения. Неизвестный проект: ErrProjectNotFound.
	InProjectTx(ctx context.Context, projectID string, fn func(tx Tx) error) error

	// GetVote: если голоса нет, common.ErrVoteNotFound.
	GetVote(ctx context.Context, userID, projectID string) (*Vote, error)
	ListVotesByUser(ctx context.Context, userID string) ([]*Vote, error)
	// ListVotesByProject возвращает голоса вместе с ответами по критериям.
	ListVotesByProject(ctx context.Context, projectID string) ([]*Vote, error)
	RoleTallies(ctx context.Context, projectID string) (Tally, error)
	ProjectIDs(ctx context.Context) ([]string, error)
}

// Tx: операции внутри транзакции одного проекта.
type Tx interface {
	// Project: заблокированная строка проекта на начало транзакции.
	Project() *projects.Project

	// FindVote возвращает голос участника или nil.
	FindVote(ctx context.Context, userID string) (*Vote, error)
	InsertVote(ctx context.Context, v *Vote) error
	UpdateVote(ctx context.Context, v *Vote) error
	DeleteVote(ctx context.Context, voteID string) error
	InsertCriteriaVotes(ctx context.Context, voteID string, cvs []CriteriaVote) error

	ApplyDeltas(ctx context.Context, deltas []Delta) error
	RoleTallies(ctx context.Context) (Tally, error)
	// CountCriterionYes: число голосов с ответом YES по критерию с таким названием.
	CountCriterionYes(ctx context.Context, criterionName string) (int64, error)
	// RecountTallies пересчитывает счётчики по таблице голосов.
	RecountTallies(ctx context.Context) (Tally, error)
	ReplaceTallies(ctx context.Context, t Tally) error

	// SaveProject сохраняет status, verified, verified_at и агрегаты.
	SaveProject(ctx context.Context, p *projects.Project) error
	InsertAlert(ctx context.Context, alertType projects.Status, message string) (*alerts.Alert, error)
}
