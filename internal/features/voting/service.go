// service.go (package voting): проверки прав, вызов движка и рассылка после коммита.
package voting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/events"
	"serotonyl.ru/monad-curator/internal/features/alerts"
	"serotonyl.ru/monad-curator/internal/features/criteria"
	"serotonyl.ru/monad-curator/internal/features/projects"
	"serotonyl.ru/monad-curator/internal/metrics"
)

const maxCommentLen = 2000

// ProjectGetter: чтение проекта (реализация *projects.Service).
type ProjectGetter interface {
	Get(ctx context.Context, id string) (*projects.Project, error)
}

// CriteriaLister: каталог критериев (реализация *criteria.Service).
type CriteriaLister interface {
	List(ctx context.Context) ([]*criteria.Criteria, error)
}

// ActorLoader: участник по id (реализация *members.Service).
type ActorLoader interface {
	ActorByID(ctx context.Context, userID string) (auth.Actor, error)
}

// AlertPublisher: рассылка созданного алерта (реализация *alerts.Publisher).
type AlertPublisher interface {
	Publish(a *alerts.Alert, p *projects.Project)
}

// Deps: зависимости сервиса.
type Deps struct {
	Engine   *Engine
	Store    Store
	Projects ProjectGetter
	Criteria CriteriaLister
	Actors   ActorLoader
	Sink     events.Sink
	Alerts   AlertPublisher
	Metrics  *metrics.MetricService
}

// Service: голосование.
type Service struct {
	engine   *Engine
	store    Store
	projects ProjectGetter
	criteria CriteriaLister
	actors   ActorLoader
	sink     events.Sink
	alerts   AlertPublisher
	metrics  *metrics.MetricService
}

func NewService(d Deps) *Service {
	return &Service{
		engine:   d.Engine,
		store:    d.Store,
		projects: d.Projects,
		criteria: d.Criteria,
		actors:   d.Actors,
		sink:     d.Sink,
		alerts:   d.Alerts,
		metrics:  d.Metrics,
	}
}

// SubmitVote: голос FOR/AGAINST с ролью участника на момент запроса.
func (s *Service) SubmitVote(ctx context.Context, actor auth.Actor, projectID, rawType string) (*SubmitResult, error) {
	if !actor.CanVote() {
		s.metrics.VoteFailed("forbidden")
		return nil, common.ErrCannotVote
	}
	voteType, err := ParseVoteType(rawType)
	if err != nil {
		s.metrics.VoteFailed("validation")
		return nil, err
	}

	started := time.Now()
	out, err := s.engine.Apply(ctx, Submission{
		UserID:    actor.UserID,
		ProjectID: projectID,
		Role:      actor.Role,
		VoteType:  voteType,
	})
	if err != nil {
		s.failed(err)
		return nil, err
	}

	op := "vote"
	if out.Retracted {
		op = "toggle"
	}
	s.afterCommit(actor.UserID, op, "vote", out, time.Since(started))

	return &SubmitResult{
		Vote:           out.Vote,
		Retracted:      out.Retracted,
		Stats:          StatsOf(out.Project),
		VotesBreakdown: out.Tally.Breakdown(),
	}, nil
}

// RetractVote удаляет голос участника.
func (s *Service) RetractVote(ctx context.Context, actor auth.Actor, projectID string) (*Stats, error) {
	started := time.Now()
	out, err := s.engine.Retract(ctx, actor.UserID, projectID)
	if err != nil {
		s.failed(err)
		return nil, err
	}
	s.afterCommit(actor.UserID, "retract", "vote", out, time.Since(started))

	stats := StatsOf(out.Project)
	return &stats, nil
}

// CheckVote: голосовал ли участник за проект.
func (s *Service) CheckVote(ctx context.Context, actor auth.Actor, projectID string) (*CheckResult, error) {
	v, err := s.store.GetVote(ctx, actor.UserID, projectID)
	if err != nil {
		if errors.Is(err, common.ErrVoteNotFound) {
			return &CheckResult{HasVoted: false}, nil
		}
		return nil, err
	}
	voteType := v.VoteType
	return &CheckResult{HasVoted: true, VoteType: &voteType}, nil
}

// SubmitReview: голос YES/NO с ответами по критериям.
// Повторный отзыв запрещён. Голосовать за другого может только доверенный;
// сам голосующий должен быть MON или доверенным.
func (s *Service) SubmitReview(ctx context.Context, actor auth.Actor, in ReviewInput) (*Vote, error) {
	voter := actor
	if in.UserID != "" && in.UserID != actor.UserID {
		if !actor.IsTrustedVoter {
			s.metrics.VoteFailed("forbidden")
			return nil, common.ErrVoteOnBehalf
		}
		loaded, err := s.actors.ActorByID(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		voter = loaded
	}
	if !voter.HasMonRole() && !voter.IsTrustedVoter {
		s.metrics.VoteFailed("forbidden")
		return nil, common.ErrNotMonOrTrusted
	}

	value, err := ParseCriteriaValue(in.Value)
	if err != nil {
		s.metrics.VoteFailed("validation")
		return nil, err
	}
	comment, err := checkComment(in.Comment)
	if err != nil {
		return nil, err
	}
	cvs, err := s.criteriaVotes(ctx, in.CriteriaVotes)
	if err != nil {
		s.metrics.VoteFailed("validation")
		return nil, err
	}

	started := time.Now()
	out, err := s.engine.Apply(ctx, Submission{
		UserID:        voter.UserID,
		ProjectID:     in.ProjectID,
		Role:          voter.Role,
		VoteType:      value.VoteType(),
		Comment:       comment,
		CriteriaVotes: cvs,
		Strict:        true,
	})
	if err != nil {
		s.failed(err)
		return nil, err
	}
	s.afterCommit(voter.UserID, "review", "vote", out, time.Since(started))
	return out.Vote, nil
}

// ChangeProjectStatus: ручная смена статуса модератором.
func (s *Service) ChangeProjectStatus(ctx context.Context, actor auth.Actor, projectID, rawStatus string) (*projects.Project, error) {
	if !actor.CanModerate() {
		return nil, fmt.Errorf("%w: менять статус может только модератор", common.ErrForbidden)
	}
	status, err := projects.ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	out, err := s.engine.SetStatus(ctx, projectID, status)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"project_id": projectID,
		"from":       out.PreviousStatus,
		"to":         status,
		"by":         actor.UserID,
	}).Info("Статус проекта изменён вручную")

	s.afterCommit(actor.UserID, "", "manual", out, 0)
	return out.Project, nil
}

// Rebuild пересобирает счётчики проекта; true: было расхождение.
func (s *Service) Rebuild(ctx context.Context, projectID string) (bool, error) {
	out, err := s.engine.Rebuild(ctx, projectID)
	if err != nil {
		return false, err
	}
	s.afterCommit("", "", "reconcile", out, 0)
	return out.Drift, nil
}

// RebuildAll пересобирает все проекты; возвращает число проектов с расхождением.
func (s *Service) RebuildAll(ctx context.Context) (int, error) {
	ids, err := s.store.ProjectIDs(ctx)
	if err != nil {
		s.metrics.ReconcileRun(0, err)
		return 0, err
	}

	drifted := 0
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		drift, err := s.Rebuild(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrProjectNotFound) {
				continue // удалён во время сверки
			}
			errs = append(errs, fmt.Errorf("project %s: %w", id, err))
			continue
		}
		if drift {
			drifted++
		}
	}
	err = errors.Join(errs...)
	s.metrics.ReconcileRun(drifted, err)
	return drifted, err
}

// MyVotes: голоса участника.
func (s *Service) MyVotes(ctx context.Context, actor auth.Actor) ([]*Vote, error) {
	list, err := s.store.ListVotesByUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Vote{}
	}
	return list, nil
}

// ProjectVotes: голоса проекта с ответами по критериям.
func (s *Service) ProjectVotes(ctx context.Context, projectID string) ([]*Vote, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	list, err := s.store.ListVotesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Vote{}
	}
	return list, nil
}

// Breakdown: разбивка голосов проекта по ролям.
func (s *Service) Breakdown(ctx context.Context, projectID string) ([]RoleCount, error) {
	tally, err := s.store.RoleTallies(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return tally.Breakdown(), nil
}

// ProjectDetail: карточка проекта для GET /api/projects/{id}.
func (s *Service) ProjectDetail(ctx context.Context, projectID string) (*ProjectDetail, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.Breakdown(ctx, projectID)
	if err != nil {
		return nil, err
	}

	d := &ProjectDetail{
		Project:        p,
		VotesBreakdown: breakdown,
		ReviewsCount:   p.VotesFor + p.VotesAgainst,
	}
	if d.ReviewsCount > 0 {
		avg := float64(p.VotesFor) / float64(d.ReviewsCount)
		d.AverageScore = &avg
	}
	return d, nil
}

func (s *Service) criteriaVotes(ctx context.Context, in []CriteriaVoteInput) ([]CriteriaVote, error) {
	if len(in) == 0 {
		return nil, nil
	}
	catalogue, err := s.criteria.List(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(catalogue))
	for _, c := range catalogue {
		known[c.ID] = true
	}

	out := make([]CriteriaVote, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, cv := range in {
		id := strings.TrimSpace(cv.CriteriaID)
		if !known[id] {
			return nil, fmt.Errorf("%w: %q", common.ErrUnknownCriteria, cv.CriteriaID)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: %q", common.ErrDuplicateCriteria, id)
		}
		seen[id] = true

		value, err := ParseCriteriaValue(cv.Value)
		if err != nil {
			return nil, err
		}
		comment, err := checkComment(cv.Comment)
		if err != nil {
			return nil, err
		}
		out = append(out, CriteriaVote{CriteriaID: id, Value: value, Comment: comment})
	}
	return out, nil
}

// afterCommit: метрики, события и уведомления. Ошибки здесь не возвращаются.
func (s *Service) afterCommit(userID, op, source string, out *Outcome, took time.Duration) {
	p := out.Project
	if op != "" {
		s.metrics.VoteApplied(op, took)
		s.publish(events.TopicVote, map[string]interface{}{
			"projectId": p.ID,
			"userId":    userID,
			"vote":      out.Vote,
			"retracted": out.Retracted,
			"stats":     StatsOf(p),
		})
	}

	if out.StatusChanged || out.VerifiedChanged {
		if out.StatusChanged {
			s.metrics.StatusChanged(string(p.Status), source)
		}
		if out.VerifiedChanged {
			s.metrics.VerifiedChanged(p.Verified)
		}
		log.WithFields(log.Fields{
			"project_id": p.ID,
			"from":       out.PreviousStatus,
			"to":         p.Status,
			"verified":   p.Verified,
			"source":     source,
		}).Info("Статус проекта пересчитан")
		s.publish(events.TopicStatusChanged, map[string]interface{}{
			"projectId":      p.ID,
			"name":           p.Name,
			"previousStatus": out.PreviousStatus,
			"status":         p.Status,
			"verified":       p.Verified,
			"verifiedAt":     p.VerifiedAt,
			"source":         source,
		})
	}

	if out.Alert != nil && s.alerts != nil {
		s.alerts.Publish(out.Alert, p)
	}
}

func (s *Service) publish(topic string, payload interface{}) {
	if s.sink == nil {
		return
	}
	s.sink.Publish(topic, payload)
}

func (s *Service) failed(err error) {
	switch common.Kind(err) {
	case common.ErrForbidden:
		s.metrics.VoteFailed("forbidden")
	case common.ErrNotFound:
		s.metrics.VoteFailed("not_found")
	case common.ErrConflict:
		s.metrics.VoteFailed("conflict")
	case common.ErrValidation:
		s.metrics.VoteFailed("validation")
	default:
		s.metrics.VoteFailed("storage")
		log.WithError(err).Error("Ошибка транзакции голосования, изменения откачены")
	}
}

func checkComment(raw string) (string, error) {
	c := strings.TrimSpace(raw)
	if len([]rune(c)) > maxCommentLen {
		return "", fmt.Errorf("%w: комментарий длиннее %d символов", common.ErrValidation, maxCommentLen)
	}
	return c, nil
}
