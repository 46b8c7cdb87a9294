// engine.go (package voting): атомарное применение одной мутации голоса.
package voting

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/db/postgres"
	"serotonyl.ru/monad-curator/internal/features/alerts"
	"serotonyl.ru/monad-curator/internal/features/projects"
	"serotonyl.ru/monad-curator/internal/metrics"
)

// SamePolicy: что делать с повтором того же голоса.
type SamePolicy string

const (
	// SameReject: отклонить с ErrSameVote
	SameReject SamePolicy = "reject"
	// SameToggle: считать повтор отзывом
	SameToggle SamePolicy = "toggle"
)

const defaultScamCriterion = "Scam Detection"

// Submission: одна подача голоса.
type Submission struct {
	UserID        string
	ProjectID     string
	Role          auth.Role
	VoteType      VoteType
	Comment       string
	CriteriaVotes []CriteriaVote
	// Strict: любой существующий голос даёт ErrAlreadyVoted (отзыв по критериям)
	Strict bool
}

// Outcome: состояние после коммита.
type Outcome struct {
	Vote      *Vote
	Retracted bool
	Project   *projects.Project
	Tally     Tally

	PreviousStatus  projects.Status
	StatusChanged   bool
	VerifiedChanged bool
	Alert           *alerts.Alert
	// Drift: при пересборке хранимые счётчики разошлись с пересчётом
	Drift bool
}

// EngineConfig: настройки движка.
type EngineConfig struct {
	Policy        SamePolicy
	ScamCriterion string
	// Retries: попыток при конфликте сериализации или дедлоке
	Retries uint
}

// Engine применяет мутации голосов.
type Engine struct {
	store   Store
	eval    *Evaluator
	locks   *KeyLock
	cfg     EngineConfig
	metrics *metrics.MetricService
	now     func() time.Time
}

func NewEngine(store Store, eval *Evaluator, cfg EngineConfig, m *metrics.MetricService) *Engine {
	if cfg.Policy != SameToggle {
		cfg.Policy = SameReject
	}
	if cfg.ScamCriterion == "" {
		cfg.ScamCriterion = defaultScamCriterion
	}
	if cfg.Retries == 0 {
		cfg.Retries = 1
	}
	return &Engine{
		store:   store,
		eval:    eval,
		locks:   NewKeyLock(),
		cfg:     cfg,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Apply создаёт, меняет или (политика toggle) отзывает голос.
func (e *Engine) Apply(ctx context.Context, s Submission) (*Outcome, error) {
	unlock := e.locks.Lock(s.UserID + "|" + s.ProjectID)
	defer unlock()

	var out *Outcome
	err := e.run(ctx, s.ProjectID, func(tx Tx) error {
		out = newOutcome(tx)
		existing, err := tx.FindVote(ctx, s.UserID)
		if err != nil {
			return err
		}

		var deltas []Delta
		now := e.now()
		switch {
		case existing == nil:
			v := &Vote{
				ID:             uuid.NewString(),
				UserID:         s.UserID,
				ProjectID:      s.ProjectID,
				VoteType:       s.VoteType,
				Role:           s.Role,
				Comment:        s.Comment,
				CreatedAt:      now,
				LastModifiedAt: now,
			}
			if err := tx.InsertVote(ctx, v); err != nil {
				return err
			}
			if len(s.CriteriaVotes) > 0 {
				cvs := make([]CriteriaVote, len(s.CriteriaVotes))
				for i, cv := range s.CriteriaVotes {
					cv.ID = uuid.NewString()
					cv.VoteID = v.ID
					cvs[i] = cv
				}
				if err := tx.InsertCriteriaVotes(ctx, v.ID, cvs); err != nil {
					return err
				}
				v.CriteriaVotes = cvs
			}
			deltas = Deltas(nil, v)
			out.Vote = v

		case s.Strict:
			return common.ErrAlreadyVoted

		case existing.VoteType == s.VoteType && existing.Role == s.Role:
			if e.cfg.Policy == SameReject {
				return common.ErrSameVote
			}
			if err := tx.DeleteVote(ctx, existing.ID); err != nil {
				return err
			}
			deltas = Deltas(existing, nil)
			out.Retracted = true

		default:
			updated := *existing
			updated.VoteType = s.VoteType
			updated.Role = s.Role
			updated.Comment = s.Comment
			updated.LastModifiedAt = now
			if err := tx.UpdateVote(ctx, &updated); err != nil {
				return err
			}
			deltas = Deltas(existing, &updated)
			out.Vote = &updated
		}

		return e.settle(ctx, tx, deltas, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Retract удаляет голос. Голоса нет: ErrVoteNotFound.
func (e *Engine) Retract(ctx context.Context, userID, projectID string) (*Outcome, error) {
	unlock := e.locks.Lock(userID + "|" + projectID)
	defer unlock()

	var out *Outcome
	err := e.run(ctx, projectID, func(tx Tx) error {
		out = newOutcome(tx)
		existing, err := tx.FindVote(ctx, userID)
		if err != nil {
			return err
		}
		if existing == nil {
			return common.ErrVoteNotFound
		}
		if err := tx.DeleteVote(ctx, existing.ID); err != nil {
			return err
		}
		out.Retracted = true
		return e.settle(ctx, tx, Deltas(existing, nil), out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetStatus: ручная смена статуса в обход оценки.
// Для SCAM и RUG алерт создаётся всегда, даже если статус не изменился.
func (e *Engine) SetStatus(ctx context.Context, projectID string, status projects.Status) (*Outcome, error) {
	var out *Outcome
	err := e.run(ctx, projectID, func(tx Tx) error {
		out = newOutcome(tx)
		tally, err := tx.RoleTallies(ctx)
		if err != nil {
			return err
		}
		out.Tally = tally

		p := out.Project
		p.Status = status
		out.StatusChanged = p.Status != out.PreviousStatus
		if err := tx.SaveProject(ctx, p); err != nil {
			return err
		}
		if status.Alarming() {
			a, err := tx.InsertAlert(ctx, status, alerts.ManualMessage(p.Name, status))
			if err != nil {
				return err
			}
			out.Alert = a
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rebuild пересчитывает счётчики и агрегаты по таблице голосов.
func (e *Engine) Rebuild(ctx context.Context, projectID string) (*Outcome, error) {
	var out *Outcome
	err := e.run(ctx, projectID, func(tx Tx) error {
		out = newOutcome(tx)
		stored, err := tx.RoleTallies(ctx)
		if err != nil {
			return err
		}
		recount, err := tx.RecountTallies(ctx)
		if err != nil {
			return err
		}

		totals := recount.Totals()
		p := out.Project
		out.Drift = !stored.Equal(recount) || p.VotesFor != totals.For || p.VotesAgainst != totals.Against
		if out.Drift {
			if err := tx.ReplaceTallies(ctx, recount); err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"project_id": projectID,
				"stored":     stored.Totals(),
				"recount":    totals,
			}).Warn("Счётчики голосов разошлись с таблицей голосов, пересобраны")
		}
		p.VotesFor, p.VotesAgainst = totals.For, totals.Against
		return e.evaluate(ctx, tx, recount, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// settle применяет изменения счётчиков и пересчитывает статус
// по счётчикам после записи в этой же транзакции.
func (e *Engine) settle(ctx context.Context, tx Tx, deltas []Delta, out *Outcome) error {
	if err := tx.ApplyDeltas(ctx, deltas); err != nil {
		return err
	}
	sum := sumDeltas(deltas)
	out.Project.VotesFor += sum.For
	out.Project.VotesAgainst += sum.Against

	tally, err := tx.RoleTallies(ctx)
	if err != nil {
		return err
	}
	return e.evaluate(ctx, tx, tally, out)
}

func (e *Engine) evaluate(ctx context.Context, tx Tx, tally Tally, out *Outcome) error {
	scamFlags, err := tx.CountCriterionYes(ctx, e.cfg.ScamCriterion)
	if err != nil {
		return err
	}

	p := out.Project
	wasVerified := p.Verified
	verdict := e.eval.Evaluate(Input{Tally: tally, Current: p.Status, ScamFlags: scamFlags})

	p.Status = verdict.Status
	p.Verified = verdict.Verified
	switch {
	case verdict.Verified && !wasVerified:
		now := e.now()
		p.VerifiedAt = &now
	case !verdict.Verified:
		p.VerifiedAt = nil
	}
	out.Tally = tally
	out.StatusChanged = p.Status != out.PreviousStatus
	out.VerifiedChanged = p.Verified != wasVerified

	if err := tx.SaveProject(ctx, p); err != nil {
		return err
	}
	if out.StatusChanged && p.Status.Alarming() {
		a, err := tx.InsertAlert(ctx, p.Status, alerts.AutoMessage(p.Name, p.Status))
		if err != nil {
			return err
		}
		out.Alert = a
	}
	return nil
}

// run выполняет транзакцию, повторяя её при конфликте сериализации или дедлоке.
func (e *Engine) run(ctx context.Context, projectID string, fn func(tx Tx) error) error {
	return retry.Do(
		func() error { return e.store.InProjectTx(ctx, projectID, fn) },
		retry.Context(ctx),
		retry.Attempts(e.cfg.Retries),
		retry.Delay(10*time.Millisecond),
		retry.MaxJitter(20*time.Millisecond),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.RetryIf(postgres.IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			e.metrics.VoteRetried()
			log.WithError(err).WithFields(log.Fields{
				"project_id": projectID,
				"attempt":    n + 1,
			}).Warn("Конфликт транзакции голосования, повтор")
		}),
	)
}

func newOutcome(tx Tx) *Outcome {
	p := *tx.Project()
	return &Outcome{Project: &p, PreviousStatus: p.Status}
}
