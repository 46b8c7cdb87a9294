package voting

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/db/postgres/pgtest"
	"serotonyl.ru/monad-curator/internal/features/projects"
)

// RepositorySuite гоняет движок на настоящем PostgreSQL.
type RepositorySuite struct {
	suite.Suite
	db     *pgtest.Database
	repo   *Repository
	engine *Engine
	ctx    context.Context

	projectID string
	scamID    string
}

func TestRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("интеграционный тест")
	}
	ctx := context.Background()
	db, err := pgtest.Run(ctx)
	if err != nil {
		t.Skipf("PostgreSQL недоступен: %v", err)
	}
	defer db.Stop()

	suite.Run(t, &RepositorySuite{db: db, ctx: ctx})
}

func (s *RepositorySuite) SetupTest() {
	s.Require().NoError(s.db.Truncate(s.ctx))
	s.repo = NewRepository(s.db.Pool)
	s.engine = NewEngine(s.repo, NewEvaluator(DefaultThresholds()), EngineConfig{Policy: SameReject, Retries: 5}, nil)

	s.projectID = "11111111-1111-1111-1111-111111111111"
	s.scamID = "22222222-2222-2222-2222-222222222222"
	_, err := s.db.Pool.Exec(s.ctx, `INSERT INTO projects (id, name, description) VALUES ($1, 'Nad Swap', 'DEX')`, s.projectID)
	s.Require().NoError(err)
	_, err = s.db.Pool.Exec(s.ctx, `INSERT INTO criteria (id, name) VALUES ($1, 'Scam Detection')`, s.scamID)
	s.Require().NoError(err)
	for i := 0; i < 60; i++ {
		_, err = s.db.Pool.Exec(s.ctx, `INSERT INTO users (id, username) VALUES ($1, $1)`, s.user(i))
		s.Require().NoError(err)
	}
}

func (s *RepositorySuite) user(i int) string { return fmt.Sprintf("user-%02d", i) }

func (s *RepositorySuite) submit(i int, role auth.Role, t VoteType) (*Outcome, error) {
	return s.engine.Apply(s.ctx, Submission{UserID: s.user(i), ProjectID: s.projectID, Role: role, VoteType: t})
}

func (s *RepositorySuite) state() (*projects.Project, Tally) {
	var p *projects.Project
	err := s.repo.InProjectTx(s.ctx, s.projectID, func(tx Tx) error {
		p = tx.Project()
		return nil
	})
	s.Require().NoError(err)
	tally, err := s.repo.RoleTallies(s.ctx, s.projectID)
	s.Require().NoError(err)
	return p, tally
}

func (s *RepositorySuite) TestVoteLifecycle() {
	_, err := s.submit(0, auth.RoleNAD, VoteFor)
	s.Require().NoError(err)
	_, err = s.submit(0, auth.RoleNAD, VoteFor)
	s.Require().ErrorIs(err, common.ErrSameVote)

	_, err = s.submit(0, auth.RoleOG, VoteAgainst)
	s.Require().NoError(err)
	p, tally := s.state()
	s.Equal(int64(0), p.VotesFor)
	s.Equal(int64(1), p.VotesAgainst)
	s.Equal(Counts{}, tally[auth.RoleNAD])
	s.Equal(Counts{Against: 1}, tally[auth.RoleOG])

	v, err := s.repo.GetVote(s.ctx, s.user(0), s.projectID)
	s.Require().NoError(err)
	s.Equal(auth.RoleOG, v.Role)

	_, err = s.engine.Retract(s.ctx, s.user(0), s.projectID)
	s.Require().NoError(err)
	_, err = s.repo.GetVote(s.ctx, s.user(0), s.projectID)
	s.ErrorIs(err, common.ErrVoteNotFound)
}

func (s *RepositorySuite) TestUnknownProject() {
	_, err := s.engine.Apply(s.ctx, Submission{UserID: s.user(0), ProjectID: "missing", Role: auth.RoleNAD, VoteType: VoteFor})
	s.ErrorIs(err, common.ErrProjectNotFound)
}

func (s *RepositorySuite) TestConcurrentVoters() {
	var wg sync.WaitGroup
	errs := make([]error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.submit(i, auth.RoleMON, VoteFor)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		s.Require().NoError(err)
	}

	p, tally := s.state()
	s.Equal(int64(50), p.VotesFor)
	s.Equal(Counts{For: 50}, tally[auth.RoleMON])
	s.Equal(projects.StatusVerified, p.Status)
}

func (s *RepositorySuite) TestScamAlertAndCriteriaVotes() {
	for i := 0; i < 3; i++ {
		out, err := s.engine.Apply(s.ctx, Submission{
			UserID: s.user(i), ProjectID: s.projectID, Role: auth.RoleMON, VoteType: VoteAgainst,
			CriteriaVotes: []CriteriaVote{{CriteriaID: s.scamID, Value: ValueYes}},
			Strict:        true,
		})
		s.Require().NoError(err)
		if i == 2 {
			s.Require().NotNil(out.Alert)
			s.Equal(projects.StatusScam, out.Alert.AlertType)
		}
	}

	var alertCount int
	s.Require().NoError(s.db.Pool.QueryRow(s.ctx, `SELECT COUNT(*) FROM alerts WHERE project_id = $1`, s.projectID).Scan(&alertCount))
	s.Equal(1, alertCount)

	votes, err := s.repo.ListVotesByProject(s.ctx, s.projectID)
	s.Require().NoError(err)
	s.Len(votes, 3)
	for _, v := range votes {
		s.Len(v.CriteriaVotes, 1)
	}
}

func (s *RepositorySuite) TestUnknownCriteriaRollsBack() {
	_, err := s.engine.Apply(s.ctx, Submission{
		UserID: s.user(0), ProjectID: s.projectID, Role: auth.RoleMON, VoteType: VoteFor,
		CriteriaVotes: []CriteriaVote{{CriteriaID: "missing", Value: ValueYes}},
	})
	s.Require().ErrorIs(err, common.ErrUnknownCriteria)

	_, err = s.repo.GetVote(s.ctx, s.user(0), s.projectID)
	s.ErrorIs(err, common.ErrVoteNotFound)
	p, tally := s.state()
	s.Zero(p.VotesFor)
	s.Empty(tally.Breakdown())
}

func (s *RepositorySuite) TestRebuildRepairsDrift() {
	for i := 0; i < 3; i++ {
		_, err := s.submit(i, auth.RoleNAD, VoteFor)
		s.Require().NoError(err)
	}
	_, err := s.db.Pool.Exec(s.ctx, `UPDATE role_tallies SET votes_for = 10 WHERE project_id = $1`, s.projectID)
	s.Require().NoError(err)

	out, err := s.engine.Rebuild(s.ctx, s.projectID)
	s.Require().NoError(err)
	s.True(out.Drift)

	_, tally := s.state()
	s.True(tally.Equal(Tally{auth.RoleNAD: {For: 3}}))

	out, err = s.engine.Rebuild(s.ctx, s.projectID)
	s.Require().NoError(err)
	s.False(out.Drift)
}

func (s *RepositorySuite) TestProjectIDs() {
	ids, err := s.repo.ProjectIDs(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{s.projectID}, ids)
}
