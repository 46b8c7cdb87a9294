package criteria

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
)

type fakeStore struct {
	items map[string]*Criteria
}

func (s *fakeStore) List(context.Context) ([]*Criteria, error) {
	var out []*Criteria
	for _, c := range s.items {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*Criteria, error) {
	c, ok := s.items[id]
	if !ok {
		return nil, common.ErrCriteriaNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) Create(_ context.Context, c *Criteria) (*Criteria, error) {
	for _, existing := range s.items {
		if existing.Name == c.Name {
			return nil, common.ErrCriteriaExists
		}
	}
	cp := *c
	cp.ID = fmt.Sprintf("c%d", len(s.items)+1)
	s.items[cp.ID] = &cp
	return &cp, nil
}

func (s *fakeStore) Update(_ context.Context, c *Criteria) (*Criteria, error) {
	s.items[c.ID] = c
	return c, nil
}

func (s *fakeStore) Count(context.Context) (int64, error) { return int64(len(s.items)), nil }

func TestSeedDefaultsOnce(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{items: map[string]*Criteria{}}
	svc := NewService(store)

	require.NoError(t, svc.SeedDefaults(ctx))
	require.Len(t, store.items, len(Defaults))

	require.NoError(t, svc.SeedDefaults(ctx))
	require.Len(t, store.items, len(Defaults), "повторный запуск ничего не добавляет")
}

func TestCreateAndUpdateCriteria(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&fakeStore{items: map[string]*Criteria{}})
	admin := auth.Actor{UserID: "a", IsAdmin: true}

	name := "Audit"
	_, err := svc.Create(ctx, auth.Actor{UserID: "u", IsTrustedVoter: true}, Input{Name: &name})
	require.ErrorIs(t, err, common.ErrForbidden)

	c, err := svc.Create(ctx, admin, Input{Name: &name})
	require.NoError(t, err)
	require.Equal(t, 1.0, c.Weight)

	for _, w := range []float64{0.09, 10.01, -1} {
		w := w
		_, err = svc.Update(ctx, admin, c.ID, Input{Weight: &w})
		require.ErrorIs(t, err, common.ErrInvalidWeight, "вес %v", w)
	}

	for _, w := range []float64{MinWeight, MaxWeight} {
		w := w
		updated, err := svc.Update(ctx, admin, c.ID, Input{Weight: &w})
		require.NoError(t, err)
		require.Equal(t, w, updated.Weight)
	}

	_, err = svc.Create(ctx, admin, Input{Name: &name})
	require.ErrorIs(t, err, common.ErrConflict)

	_, err = svc.Update(ctx, admin, "missing", Input{Name: &name})
	require.ErrorIs(t, err, common.ErrNotFound)
}
