// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает периодическую сверку агрегатов голосования
// с таблицей голосов.
package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/common"
)

// Reconciler пересчитывает агрегаты всех проектов (voting.Service).
type Reconciler interface {
	RebuildAll(ctx context.Context) (int, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	spec       string
	timezone   string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewScheduler создаёт планировщик в часовом поясе timezone.
func NewScheduler(reconciler Reconciler, spec, timezone string) *Scheduler {
	c := cron.New(
		cron.WithLocation(common.LoadLocation(timezone)),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.StandardLogger()))),
	)

	return &Scheduler{
		cron:       c,
		reconciler: reconciler,
		spec:       spec,
		timezone:   timezone,
	}
}

// Start регистрирует задачи и запускает планировщик.
// ctx задач отменяется в Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	jobCtx, cancel := context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.spec, func() { s.reconcile(jobCtx) }); err != nil {
		cancel()
		return fmt.Errorf("некорректное расписание RECONCILE_CRON %q: %w", s.spec, err)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.cron.Start()
	log.WithFields(log.Fields{
		"spec":     s.spec,
		"timezone": s.timezone,
	}).Info("Планировщик задач запущен")
	return nil
}

// reconcile: одна сверка агрегатов.
func (s *Scheduler) reconcile(ctx context.Context) {
	log.Debug("[CRON] Сверка агрегатов голосования")

	drifted, err := s.reconciler.RebuildAll(ctx)
	if err != nil {
		log.WithError(err).WithField("drifted", drifted).Error("[CRON] Ошибка сверки агрегатов")
		return
	}
	if drifted > 0 {
		log.WithField("drifted", drifted).Warn("[CRON] Агрегаты расходились с голосами и пересчитаны")
		return
	}
	log.Debug("[CRON] Агрегаты сходятся")
}

// Stop останавливает планировщик и ждёт текущую задачу.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
