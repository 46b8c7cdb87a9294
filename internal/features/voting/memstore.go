// memstore.go (package voting): хранилище в памяти.
//
// Транзакция работает со снимком данных проекта и публикует его целиком
// только при успехе fn, поэтому ошибка посередине ничего не меняет.
// Проекты блокируются по отдельности, как строки в PostgreSQL.
package voting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/features/alerts"
	"serotonyl.ru/monad-curator/internal/features/projects"
)

// MemStore: Store в памяти.
type MemStore struct {
	mu            sync.RWMutex
	projects      map[string]*projects.Project
	votes         map[string]map[string]*Vote // projectID → userID → голос
	tallies       map[string]Tally
	alerts        []*alerts.Alert
	criteriaNames map[string]string

	projectLocks *KeyLock
}

func NewMemStore() *MemStore {
	return &MemStore{
		projects:      make(map[string]*projects.Project),
		votes:         make(map[string]map[string]*Vote),
		tallies:       make(map[string]Tally),
		criteriaNames: make(map[string]string),
		projectLocks:  NewKeyLock(),
	}
}

// AddProject добавляет проект.
func (s *MemStore) AddProject(p *projects.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	if cp.Status == "" {
		cp.Status = projects.StatusPending
	}
	s.projects[cp.ID] = &cp
}

// AddCriterion регистрирует критерий (нужен для подсчёта «Scam Detection»).
func (s *MemStore) AddCriterion(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteriaNames[id] = name
}

// Project: копия проекта.
func (s *MemStore) Project(id string) (*projects.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// Alerts: алерты проекта в порядке создания.
func (s *MemStore) Alerts(projectID string) []*alerts.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*alerts.Alert
	for _, a := range s.alerts {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out
}

// SetTally перезаписывает счётчики в обход голосов.
func (s *MemStore) SetTally(projectID string, t Tally) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tallies[projectID] = t.Clone()
}

// CountVotes: число голосов проекта.
func (s *MemStore) CountVotes(projectID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.votes[projectID])
}

func (s *MemStore) InProjectTx(ctx context.Context, projectID string, fn func(tx Tx) error) error {
	unlock := s.projectLocks.Lock(projectID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return common.NewStorageError("begin tx", err)
	}

	s.mu.RLock()
	p, ok := s.projects[projectID]
	if !ok {
		s.mu.RUnlock()
		return common.ErrProjectNotFound
	}
	snapshot := *p
	tx := &memTx{
		store:   s,
		project: &snapshot,
		votes:   make(map[string]*Vote, len(s.votes[projectID])),
		tally:   s.tallies[projectID].Clone(),
	}
	for userID, v := range s.votes[projectID] {
		tx.votes[userID] = cloneVote(v)
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.saved != nil {
		s.projects[projectID] = tx.saved
	}
	s.votes[projectID] = tx.votes
	s.tallies[projectID] = tx.tally
	s.alerts = append(s.alerts, tx.newAlerts...)
	return nil
}

func (s *MemStore) GetVote(_ context.Context, userID, projectID string) (*Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[projectID][userID]
	if !ok {
		return nil, common.ErrVoteNotFound
	}
	return cloneVote(v), nil
}

func (s *MemStore) ListVotesByUser(_ context.Context, userID string) ([]*Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Vote
	for _, byUser := range s.votes {
		if v, ok := byUser[userID]; ok {
			out = append(out, cloneVote(v))
		}
	}
	sortVotes(out)
	return out, nil
}

func (s *MemStore) ListVotesByProject(_ context.Context, projectID string) ([]*Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Vote, 0, len(s.votes[projectID]))
	for _, v := range s.votes[projectID] {
		out = append(out, cloneVote(v))
	}
	sortVotes(out)
	return out, nil
}

func (s *MemStore) RoleTallies(_ context.Context, projectID string) (Tally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tallies[projectID].Clone(), nil
}

func (s *MemStore) ProjectIDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// memTx: снимок одного проекта.
type memTx struct {
	store     *MemStore
	project   *projects.Project
	saved     *projects.Project
	votes     map[string]*Vote
	tally     Tally
	newAlerts []*alerts.Alert
}

func (t *memTx) Project() *projects.Project {
	cp := *t.project
	return &cp
}

func (t *memTx) FindVote(_ context.Context, userID string) (*Vote, error) {
	v, ok := t.votes[userID]
	if !ok {
		return nil, nil
	}
	return cloneVote(v), nil
}

func (t *memTx) InsertVote(_ context.Context, v *Vote) error {
	if _, ok := t.votes[v.UserID]; ok {
		return common.ErrAlreadyVoted
	}
	t.votes[v.UserID] = cloneVote(v)
	return nil
}

func (t *memTx) UpdateVote(_ context.Context, v *Vote) error {
	existing, ok := t.votes[v.UserID]
	if !ok || existing.ID != v.ID {
		return common.ErrVoteNotFound
	}
	cp := cloneVote(v)
	cp.CriteriaVotes = existing.CriteriaVotes
	t.votes[v.UserID] = cp
	return nil
}

func (t *memTx) DeleteVote(_ context.Context, voteID string) error {
	for userID, v := range t.votes {
		if v.ID == voteID {
			delete(t.votes, userID)
			return nil
		}
	}
	return common.ErrVoteNotFound
}

func (t *memTx) InsertCriteriaVotes(_ context.Context, voteID string, cvs []CriteriaVote) error {
	for _, v := range t.votes {
		if v.ID != voteID {
			continue
		}
		seen := make(map[string]bool, len(v.CriteriaVotes))
		for _, cv := range v.CriteriaVotes {
			seen[cv.CriteriaID] = true
		}
		for _, cv := range cvs {
			if seen[cv.CriteriaID] {
				return common.ErrDuplicateCriteria
			}
			seen[cv.CriteriaID] = true
			v.CriteriaVotes = append(v.CriteriaVotes, cv)
		}
		return nil
	}
	return common.ErrVoteNotFound
}

func (t *memTx) ApplyDeltas(_ context.Context, deltas []Delta) error {
	next := t.tally.Clone()
	next.Apply(deltas...)
	for role, c := range next {
		if c.For < 0 || c.Against < 0 {
			return common.NewStorageError("apply tally", fmt.Errorf("отрицательный счётчик роли %s", role))
		}
	}
	t.tally = next
	return nil
}

func (t *memTx) RoleTallies(context.Context) (Tally, error) {
	return t.tally.Clone(), nil
}

func (t *memTx) CountCriterionYes(_ context.Context, criterionName string) (int64, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	var n int64
	for _, v := range t.votes {
		for _, cv := range v.CriteriaVotes {
			if cv.Value == ValueYes && t.store.criteriaNames[cv.CriteriaID] == criterionName {
				n++
				break
			}
		}
	}
	return n, nil
}

func (t *memTx) RecountTallies(context.Context) (Tally, error) {
	out := make(Tally)
	for _, v := range t.votes {
		out.Apply(Deltas(nil, v)...)
	}
	return out, nil
}

func (t *memTx) ReplaceTallies(_ context.Context, tally Tally) error {
	t.tally = tally.Clone()
	return nil
}

func (t *memTx) SaveProject(_ context.Context, p *projects.Project) error {
	if p.VotesFor < 0 || p.VotesAgainst < 0 {
		return common.NewStorageError("save project", fmt.Errorf("отрицательный агрегат проекта %s", p.ID))
	}
	cp := *p
	cp.UpdatedAt = time.Now().UTC()
	t.saved = &cp
	t.project = &cp
	return nil
}

func (t *memTx) InsertAlert(_ context.Context, alertType projects.Status, message string) (*alerts.Alert, error) {
	a := &alerts.Alert{
		ID:        uuid.NewString(),
		ProjectID: t.project.ID,
		Message:   message,
		AlertType: alertType,
		CreatedAt: time.Now().UTC(),
	}
	t.newAlerts = append(t.newAlerts, a)
	return a, nil
}

func cloneVote(v *Vote) *Vote {
	cp := *v
	cp.CriteriaVotes = append([]CriteriaVote(nil), v.CriteriaVotes...)
	return &cp
}

func sortVotes(vs []*Vote) {
	sort.Slice(vs, func(i, j int) bool {
		if !vs[i].CreatedAt.Equal(vs[j].CreatedAt) {
			return vs[i].CreatedAt.Before(vs[j].CreatedAt)
		}
		return vs[i].ID < vs[j].ID
	})
}
