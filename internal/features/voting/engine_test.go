package voting

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/features/alerts"
	"serotonyl.ru/monad-curator/internal/features/projects"
)

const (
	testProject   = "p1"
	scamCriterion = "c-scam"
	teamCriterion = "c-team"
)

func newTestStore() *MemStore {
	store := NewMemStore()
	store.AddProject(&projects.Project{ID: testProject, Name: "Nad Swap"})
	store.AddCriterion(scamCriterion, "Scam Detection")
	store.AddCriterion(teamCriterion, "Team")
	return store
}

func newTestEngine(store Store, policy SamePolicy) *Engine {
	return NewEngine(store, NewEvaluator(DefaultThresholds()), EngineConfig{Policy: policy, Retries: 3}, nil)
}

func vote(user string, role auth.Role, t VoteType) Submission {
	return Submission{UserID: user, ProjectID: testProject, Role: role, VoteType: t}
}

func loadState(t *testing.T, store *MemStore) (*projects.Project, Tally) {
	t.Helper()
	p, ok := store.Project(testProject)
	require.True(t, ok)
	tally, err := store.RoleTallies(context.Background(), testProject)
	require.NoError(t, err)
	return p, tally
}

func TestApplyFirstVote(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)

	out, err := engine.Apply(context.Background(), vote("u1", auth.RoleNAD, VoteFor))
	require.NoError(t, err)
	require.NotEmpty(t, out.Vote.ID)
	require.Equal(t, int64(1), out.Project.VotesFor)

	p, tally := loadState(t, store)
	require.Equal(t, int64(1), p.VotesFor)
	require.Equal(t, Counts{For: 1}, tally[auth.RoleNAD])
	require.Equal(t, projects.StatusPending, p.Status)
}

func TestUnknownProject(t *testing.T) {
	engine := newTestEngine(newTestStore(), SameReject)
	s := vote("u1", auth.RoleNAD, VoteFor)
	s.ProjectID = "missing"

	_, err := engine.Apply(context.Background(), s)
	require.ErrorIs(t, err, common.ErrProjectNotFound)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestRejectPolicyTenResubmissions(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := engine.Apply(ctx, vote("u1", auth.RoleOG, VoteFor))
		if i == 0 {
			require.NoError(t, err)
			continue
		}
		require.ErrorIs(t, err, common.ErrSameVote, "попытка %d", i+1)
		require.ErrorIs(t, err, common.ErrConflict)
	}

	p, tally := loadState(t, store)
	require.Equal(t, 1, store.CountVotes(testProject))
	require.Equal(t, int64(1), p.VotesFor)
	require.Equal(t, Counts{For: 1}, tally[auth.RoleOG])
}

func TestTogglePolicyTenResubmissions(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameToggle)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		out, err := engine.Apply(ctx, vote("u1", auth.RoleOG, VoteFor))
		require.NoError(t, err)
		if i%2 == 0 {
			require.False(t, out.Retracted, "попытка %d создаёт голос", i+1)
			require.Equal(t, 1, store.CountVotes(testProject))
		} else {
			require.True(t, out.Retracted, "попытка %d отзывает голос", i+1)
			require.Nil(t, out.Vote)
			require.Equal(t, 0, store.CountVotes(testProject))
		}
	}

	p, tally := loadState(t, store)
	require.Equal(t, int64(0), p.VotesFor+p.VotesAgainst)
	require.Equal(t, Counts{}, tally[auth.RoleOG])
}

func TestChangeVoteType(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)
	ctx := context.Background()

	first, err := engine.Apply(ctx, vote("u1", auth.RoleNAD, VoteFor))
	require.NoError(t, err)
	second, err := engine.Apply(ctx, vote("u1", auth.RoleNAD, VoteAgainst))
	require.NoError(t, err)
	require.Equal(t, first.Vote.ID, second.Vote.ID, "голос меняется на месте")

	p, tally := loadState(t, store)
	require.Equal(t, int64(0), p.VotesFor)
	require.Equal(t, int64(1), p.VotesAgainst)
	require.Equal(t, Counts{Against: 1}, tally[auth.RoleNAD])
}

func TestRoleMigration(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)
	ctx := context.Background()

	_, err := engine.Apply(ctx, vote("other", auth.RoleNAD, VoteFor))
	require.NoError(t, err)
	_, before := loadState(t, store)

	_, err = engine.Apply(ctx, vote("u1", auth.RoleNAD, VoteFor))
	require.NoError(t, err)
	out, err := engine.Apply(ctx, vote("u1", auth.RoleOG, VoteAgainst))
	require.NoError(t, err)
	require.Equal(t, auth.RoleOG, out.Vote.Role)

	p, tally := loadState(t, store)
	require.Equal(t, before[auth.RoleNAD], tally[auth.RoleNAD], "старая роль вернулась к исходному значению")
	require.Equal(t, Counts{Against: 1}, tally[auth.RoleOG])
	require.Equal(t, int64(1), p.VotesFor)
	require.Equal(t, int64(1), p.VotesAgainst)
}

func TestSameTypeNewRoleIsNotIdentical(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)
	ctx := context.Background()

	_, err := engine.Apply(ctx, vote("u1", auth.RoleNAD, VoteFor))
	require.NoError(t, err)
	_, err = engine.Apply(ctx, vote("u1", auth.RoleMON, VoteFor))
	require.NoError(t, err)

	p, tally := loadState(t, store)
	require.Equal(t, Counts{}, tally[auth.RoleNAD])
	require.Equal(t, Counts{For: 1}, tally[auth.RoleMON])
	require.Equal(t, int64(1), p.VotesFor)
}

func TestRetract(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)
	ctx := context.Background()

	_, err := engine.Retract(ctx, "u1", testProject)
	require.ErrorIs(t, err, common.ErrVoteNotFound)

	_, err = engine.Apply(ctx, vote("u1", auth.RoleMON, VoteAgainst))
	require.NoError(t, err)
	out, err := engine.Retract(ctx, "u1", testProject)
	require.NoError(t, err)
	require.True(t, out.Retracted)

	p, tally := loadState(t, store)
	require.Equal(t, int64(0), p.VotesAgainst)
	require.Equal(t, Counts{}, tally[auth.RoleMON])

	_, err = engine.Retract(ctx, "u1", testProject)
	require.ErrorIs(t, err, common.ErrVoteNotFound)
}

func TestTallyConservation(t *testing.T) {
	for _, policy := range []SamePolicy{SameReject, SameToggle} {
		t.Run(string(policy), func(t *testing.T) {
			store := newTestStore()
			engine := newTestEngine(store, policy)
			ctx := context.Background()
			rnd := rand.New(rand.NewSource(42))
			types := []VoteType{VoteFor, VoteAgainst}

			for i := 0; i < 500; i++ {
				user := fmt.Sprintf("u%d", rnd.Intn(15))
				var err error
				if rnd.Intn(4) == 0 {
					_, err = engine.Retract(ctx, user, testProject)
				} else {
					role := auth.AllRoles[rnd.Intn(len(auth.AllRoles))]
					_, err = engine.Apply(ctx, vote(user, role, types[rnd.Intn(2)]))
				}
				if err != nil {
					require.True(t, errors.Is(err, common.ErrSameVote) || errors.Is(err, common.ErrVoteNotFound), err.Error())
				}

				p, tally := loadState(t, store)
				totals := tally.Totals()
				require.Equal(t, totals.For, p.VotesFor, "шаг %d", i)
				require.Equal(t, totals.Against, p.VotesAgainst, "шаг %d", i)

				votes, err := store.ListVotesByProject(ctx, testProject)
				require.NoError(t, err)
				recount := Tally{}
				for _, v := range votes {
					recount.Apply(Deltas(nil, v)...)
				}
				require.True(t, recount.Equal(tally), "шаг %d", i)
			}
		})
	}
}

func TestStatusAlertExactlyOnce(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)
	ctx := context.Background()

	scamYes := []CriteriaVote{{CriteriaID: scamCriterion, Value: ValueYes}}
	var alertsSeen int
	for i := 1; i <= 3; i++ {
		s := vote(fmt.Sprintf("u%d", i), auth.RoleMON, VoteAgainst)
		s.CriteriaVotes = scamYes
		s.Strict = true
		out, err := engine.Apply(ctx, s)
		require.NoError(t, err)
		if out.Alert != nil {
			alertsSeen++
			require.Equal(t, 3, i, "алерт появляется на третьем голосе")
			require.Equal(t, projects.StatusScam, out.Alert.AlertType)
			require.Equal(t, alerts.AutoMessage("Nad Swap", projects.StatusScam), out.Alert.Message)
			require.True(t, out.StatusChanged)
		}
	}

	out, err := engine.Apply(ctx, vote("u4", auth.RoleMON, VoteAgainst))
	require.NoError(t, err)
	require.Nil(t, out.Alert, "статус не изменился")
	require.False(t, out.StatusChanged)

	require.Equal(t, 1, alertsSeen)
	require.Len(t, store.Alerts(testProject), 1)
	p, _ := loadState(t, store)
	require.Equal(t, projects.StatusScam, p.Status)
}

func TestUnverifiedWithoutScamFlags(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		s := vote(fmt.Sprintf("u%d", i), auth.RoleNAD, VoteAgainst)
		s.CriteriaVotes = []CriteriaVote{{CriteriaID: teamCriterion, Value: ValueYes}}
		_, err := engine.Apply(ctx, s)
		require.NoError(t, err)
	}

	p, _ := loadState(t, store)
	require.Equal(t, projects.StatusUnverified, p.Status)
	require.Empty(t, store.Alerts(testProject))
}

func TestVerifiedTransitionNoAlert(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := engine.Apply(ctx, vote(fmt.Sprintf("u%d", i), auth.RoleFullAccess, VoteFor))
		require.NoError(t, err)
	}
	p, _ := loadState(t, store)
	require.Equal(t, projects.StatusVerified, p.Status)
	require.False(t, p.Verified, "младшие роли не дают флаг verified")
	require.Empty(t, store.Alerts(testProject))
}

func TestVerifiedFlagAndTimestamp(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)
	ctx := context.Background()

	for i := 1; i <= 99; i++ {
		out, err := engine.Apply(ctx, vote(fmt.Sprintf("u%d", i), auth.RoleNAD, VoteFor))
		require.NoError(t, err)
		require.False(t, out.Project.Verified)
	}

	out, err := engine.Apply(ctx, vote("u100", auth.RoleNAD, VoteFor))
	require.NoError(t, err)
	require.True(t, out.Project.Verified)
	require.True(t, out.VerifiedChanged)
	require.NotNil(t, out.Project.VerifiedAt)
	verifiedAt := *out.Project.VerifiedAt

	out, err = engine.Apply(ctx, vote("u101", auth.RoleOG, VoteFor))
	require.NoError(t, err)
	require.False(t, out.VerifiedChanged)
	require.Equal(t, verifiedAt, *out.Project.VerifiedAt, "метка не сдвигается")

	for _, u := range []string{"u100", "u101"} {
		out, err = engine.Retract(ctx, u, testProject)
		require.NoError(t, err)
	}
	require.False(t, out.Project.Verified)
	require.True(t, out.VerifiedChanged)
	require.Nil(t, out.Project.VerifiedAt)
}

func TestStrictSubmission(t *testing.T) {
	engine := newTestEngine(newTestStore(), SameToggle)
	ctx := context.Background()

	s := vote("u1", auth.RoleMON, VoteFor)
	s.Strict = true
	_, err := engine.Apply(ctx, s)
	require.NoError(t, err)

	s.VoteType = VoteAgainst
	_, err = engine.Apply(ctx, s)
	require.ErrorIs(t, err, common.ErrAlreadyVoted)
}

func TestSetStatusAlerts(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)
	ctx := context.Background()

	out, err := engine.SetStatus(ctx, testProject, projects.StatusVerified)
	require.NoError(t, err)
	require.Nil(t, out.Alert)
	require.True(t, out.StatusChanged)

	out, err = engine.SetStatus(ctx, testProject, projects.StatusRug)
	require.NoError(t, err)
	require.NotNil(t, out.Alert)
	require.Equal(t, projects.StatusRug, out.Alert.AlertType)

	out, err = engine.SetStatus(ctx, testProject, projects.StatusRug)
	require.NoError(t, err)
	require.NotNil(t, out.Alert, "ручной SCAM/RUG всегда создаёт алерт")
	require.False(t, out.StatusChanged)

	require.Len(t, store.Alerts(testProject), 2)
	p, _ := loadState(t, store)
	require.Equal(t, projects.StatusRug, p.Status)
}

func TestConcurrentDistinctVoters(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Apply(context.Background(), vote(fmt.Sprintf("u%d", i), auth.RoleNAD, VoteFor))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p, tally := loadState(t, store)
	require.Equal(t, int64(50), p.VotesFor)
	require.Equal(t, Counts{For: 50}, tally[auth.RoleNAD])
	require.Equal(t, 50, store.CountVotes(testProject))
	require.Zero(t, engine.locks.size())
}

func TestConcurrentSameVoter(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)

	var ok, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Apply(context.Background(), vote("u1", auth.RoleOG, VoteFor))
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, common.ErrSameVote):
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), ok)
	require.Equal(t, int32(19), conflicts)
	require.Equal(t, 1, store.CountVotes(testProject))
	p, _ := loadState(t, store)
	require.Equal(t, int64(1), p.VotesFor)
}

// failingStore подменяет одну операцию транзакции ошибкой хранилища.
type failingStore struct {
	Store
	failOn string
}

func (f *failingStore) InProjectTx(ctx context.Context, projectID string, fn func(tx Tx) error) error {
	return f.Store.InProjectTx(ctx, projectID, func(tx Tx) error {
		return fn(&failingTx{Tx: tx, failOn: f.failOn})
	})
}

type failingTx struct {
	Tx
	failOn string
}

var errConnReset = errors.New("connection reset by peer")

func (t *failingTx) SaveProject(ctx context.Context, p *projects.Project) error {
	if t.failOn == "save" {
		return common.NewStorageError("save project", errConnReset)
	}
	return t.Tx.SaveProject(ctx, p)
}

func (t *failingTx) InsertAlert(ctx context.Context, alertType projects.Status, message string) (*alerts.Alert, error) {
	if t.failOn == "alert" {
		return nil, common.NewStorageError("insert alert", errConnReset)
	}
	return t.Tx.InsertAlert(ctx, alertType, message)
}

func TestRollbackOnStorageFailure(t *testing.T) {
	// Третий голос против с флагом скама переводит проект в SCAM:
	// падение на сохранении проекта или на вставке алерта откатывает всё.
	for _, failOn := range []string{"save", "alert"} {
		t.Run(failOn, func(t *testing.T) {
			store := newTestStore()
			ctx := context.Background()
			scamVote := func(user string) Submission {
				s := vote(user, auth.RoleNAD, VoteAgainst)
				s.CriteriaVotes = []CriteriaVote{{CriteriaID: scamCriterion, Value: ValueYes}}
				return s
			}

			good := newTestEngine(store, SameReject)
			for _, u := range []string{"u1", "u2"} {
				_, err := good.Apply(ctx, scamVote(u))
				require.NoError(t, err)
			}
			beforeProject, beforeTally := loadState(t, store)

			bad := newTestEngine(&failingStore{Store: store, failOn: failOn}, SameReject)
			_, err := bad.Apply(ctx, scamVote("u3"))
			require.ErrorIs(t, err, common.ErrStorage)
			require.ErrorIs(t, err, errConnReset)

			afterProject, afterTally := loadState(t, store)
			require.Equal(t, beforeProject.VotesAgainst, afterProject.VotesAgainst)
			require.Equal(t, projects.StatusPending, afterProject.Status)
			require.True(t, beforeTally.Equal(afterTally))
			require.Equal(t, 2, store.CountVotes(testProject))
			require.Empty(t, store.Alerts(testProject))
			_, err = store.GetVote(ctx, "u3", testProject)
			require.ErrorIs(t, err, common.ErrVoteNotFound)

			// после сбоя тот же голос проходит и даёт ровно один алерт
			out, err := good.Apply(ctx, scamVote("u3"))
			require.NoError(t, err)
			require.NotNil(t, out.Alert)
			require.Len(t, store.Alerts(testProject), 1)
		})
	}
}

func TestRebuildRepairsDrift(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store, SameReject)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := engine.Apply(ctx, vote(fmt.Sprintf("u%d", i), auth.RoleOG, VoteFor))
		require.NoError(t, err)
	}
	store.SetTally(testProject, Tally{auth.RoleOG: {For: 7}, auth.RoleNAD: {Against: 2}})

	out, err := engine.Rebuild(ctx, testProject)
	require.NoError(t, err)
	require.True(t, out.Drift)

	p, tally := loadState(t, store)
	require.True(t, tally.Equal(Tally{auth.RoleOG: {For: 3}}))
	require.Equal(t, int64(3), p.VotesFor)
	require.Equal(t, projects.StatusVerified, p.Status)

	out, err = engine.Rebuild(ctx, testProject)
	require.NoError(t, err)
	require.False(t, out.Drift)
}

// flakyStore отвечает ошибкой PostgreSQL первые fails вызовов.
type flakyStore struct {
	Store
	code  string
	fails int32
	calls int32
}

func (f *flakyStore) InProjectTx(ctx context.Context, projectID string, fn func(tx Tx) error) error {
	if atomic.AddInt32(&f.calls, 1) <= f.fails {
		return common.NewStorageError("vote tx", &pgconn.PgError{Code: f.code})
	}
	return f.Store.InProjectTx(ctx, projectID, fn)
}

func TestRetryOnSerializationFailure(t *testing.T) {
	store := newTestStore()
	flaky := &flakyStore{Store: store, code: "40001", fails: 2}
	engine := newTestEngine(flaky, SameReject)

	_, err := engine.Apply(context.Background(), vote("u1", auth.RoleNAD, VoteFor))
	require.NoError(t, err)
	require.Equal(t, int32(3), flaky.calls)
	require.Equal(t, 1, store.CountVotes(testProject))
}

func TestNoRetryOnOtherErrors(t *testing.T) {
	flaky := &flakyStore{Store: newTestStore(), code: "23514", fails: 5}
	engine := newTestEngine(flaky, SameReject)

	_, err := engine.Apply(context.Background(), vote("u1", auth.RoleNAD, VoteFor))
	require.ErrorIs(t, err, common.ErrStorage)
	require.Equal(t, int32(1), flaky.calls)
}

func TestRetriesAreBounded(t *testing.T) {
	flaky := &flakyStore{Store: newTestStore(), code: "40P01", fails: 10}
	engine := newTestEngine(flaky, SameReject)

	_, err := engine.Apply(context.Background(), vote("u1", auth.RoleNAD, VoteFor))
	require.ErrorIs(t, err, common.ErrStorage)
	require.Equal(t, int32(3), flaky.calls)
}
