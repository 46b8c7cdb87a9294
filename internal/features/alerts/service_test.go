package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/events"
	"serotonyl.ru/monad-curator/internal/features/projects"
)

type memStore struct {
	mu   sync.Mutex
	list []*Alert
}

func (s *memStore) Create(_ context.Context, projectID string, t projects.Status, msg string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &Alert{ID: projectID + "-" + string(t), ProjectID: projectID, AlertType: t, Message: msg, CreatedAt: time.Now()}
	s.list = append(s.list, a)
	return a, nil
}

func (s *memStore) List(_ context.Context, projectID string, limit int) ([]*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Alert
	for _, a := range s.list {
		if projectID == "" || a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type projectsStub map[string]*projects.Project

func (p projectsStub) Get(_ context.Context, id string) (*projects.Project, error) {
	if pr, ok := p[id]; ok {
		return pr, nil
	}
	return nil, common.ErrProjectNotFound
}

type recordingSink struct {
	mu     sync.Mutex
	topics []string
}

func (s *recordingSink) Publish(topic string, _ interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (n *countingNotifier) NotifyAlert(context.Context, *Alert, *projects.Project) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

func newTestService(notifier Notifier) (*Service, *memStore, *recordingSink, *Publisher) {
	store := &memStore{}
	sink := &recordingSink{}
	pub := NewPublisher(sink, notifier, nil)
	svc := NewService(store, projectsStub{"p1": {ID: "p1", Name: "Nad Swap"}}, pub)
	return svc, store, sink, pub
}

func TestManualAlertRequiresModerator(t *testing.T) {
	svc, store, _, _ := newTestService(nil)

	_, err := svc.Create(context.Background(), auth.Actor{UserID: "u", Role: auth.RoleMON}, CreateInput{ProjectID: "p1", AlertType: "SCAM"})
	require.ErrorIs(t, err, common.ErrForbidden)
	require.Empty(t, store.list)
}

func TestManualAlertValidation(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	mod := auth.Actor{UserID: "m", IsTrustedVoter: true}

	_, err := svc.Create(context.Background(), mod, CreateInput{ProjectID: "p1", AlertType: "HACKED"})
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Create(context.Background(), mod, CreateInput{ProjectID: "nope", AlertType: "RUG"})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestManualAlertPublishedAndNotified(t *testing.T) {
	notifier := &countingNotifier{err: errors.New("telegram down")}
	svc, store, sink, pub := newTestService(notifier)

	a, err := svc.Create(context.Background(), auth.Actor{UserID: "a", IsAdmin: true}, CreateInput{ProjectID: "p1", AlertType: "rug"})
	require.NoError(t, err, "ошибка доставки не влияет на результат")
	require.Equal(t, projects.StatusRug, a.AlertType)
	require.Equal(t, ManualMessage("Nad Swap", projects.StatusRug), a.Message)
	require.Len(t, store.list, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pub.Wait(ctx))
	require.Equal(t, 1, notifier.calls)
	require.Equal(t, []string{events.TopicAlertCreated}, sink.topics)
}

func TestListLimits(t *testing.T) {
	svc, store, _, _ := newTestService(nil)
	for i := 0; i < 3; i++ {
		_, _ = store.Create(context.Background(), "p1", projects.StatusScam, "x")
	}
	_, _ = store.Create(context.Background(), "p2", projects.StatusScam, "x")

	list, err := svc.List(context.Background(), "p1", 0)
	require.NoError(t, err)
	require.Len(t, list, 3)

	list, err = svc.List(context.Background(), "", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)

	list, err = svc.List(context.Background(), "missing", 10)
	require.NoError(t, err)
	require.NotNil(t, list)
	require.Empty(t, list)
}
