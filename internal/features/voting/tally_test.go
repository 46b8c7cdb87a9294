package voting

import (
	"testing"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/monad-curator/internal/auth"
)

func TestDeltas(t *testing.T) {
	forNAD := &Vote{Role: auth.RoleNAD, VoteType: VoteFor}
	againstNAD := &Vote{Role: auth.RoleNAD, VoteType: VoteAgainst}
	forOG := &Vote{Role: auth.RoleOG, VoteType: VoteFor}

	cases := []struct {
		name      string
		old, next *Vote
		want      []Delta
	}{
		{"создание", nil, forNAD, []Delta{{Role: auth.RoleNAD, For: 1}}},
		{"отзыв", againstNAD, nil, []Delta{{Role: auth.RoleNAD, Against: -1}}},
		{"смена типа", forNAD, againstNAD, []Delta{{Role: auth.RoleNAD, For: -1, Against: 1}}},
		{"смена роли", forNAD, forOG, []Delta{{Role: auth.RoleNAD, For: -1}, {Role: auth.RoleOG, For: 1}}},
		{"без изменений", forNAD, forNAD, []Delta{}},
		{"пусто", nil, nil, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Deltas(c.old, c.next)
			if len(c.want) == 0 {
				require.Empty(t, got)
				return
			}
			require.Equal(t, c.want, got)
		})
	}
}

func TestTallySums(t *testing.T) {
	tally := Tally{}
	tally.Apply(
		Delta{Role: auth.RoleFullAccess, For: 5},
		Delta{Role: auth.RoleNAD, For: 2, Against: 1},
		Delta{Role: auth.RoleMON, Against: 3},
		Delta{Role: auth.RoleOG},
	)

	require.Equal(t, Counts{For: 7, Against: 4}, tally.Totals())
	require.Equal(t, Counts{For: 2, Against: 4}, tally.Sum([]auth.Role{auth.RoleNAD, auth.RoleOG, auth.RoleMON}))

	require.Equal(t, []RoleCount{
		{Role: auth.RoleMON, VotesAgainst: 3},
		{Role: auth.RoleNAD, VotesFor: 2, VotesAgainst: 1},
		{Role: auth.RoleFullAccess, VotesFor: 5},
	}, tally.Breakdown())
}

func TestTallyEqualIgnoresZeroRows(t *testing.T) {
	a := Tally{auth.RoleNAD: {For: 1}, auth.RoleOG: {}}
	b := Tally{auth.RoleNAD: {For: 1}}
	require.True(t, a.Equal(b))
	require.True(t, b.Equal(a))

	b[auth.RoleMON] = Counts{Against: 1}
	require.False(t, a.Equal(b))
}

func TestCloneIsIndependent(t *testing.T) {
	a := Tally{auth.RoleNAD: {For: 1}}
	b := a.Clone()
	b.Apply(Delta{Role: auth.RoleNAD, For: 1})
	require.Equal(t, int64(1), a[auth.RoleNAD].For)
	require.Equal(t, int64(2), b[auth.RoleNAD].For)
}
