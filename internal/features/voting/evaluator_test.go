package voting

import (
	"testing"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/features/projects"
)

func TestVerifiedThreshold(t *testing.T) {
	eval := NewEvaluator(DefaultThresholds())

	cases := []struct {
		name  string
		tally Tally
		want  bool
	}{
		{"99 голосов, все за", Tally{auth.RoleNAD: {For: 99}}, false},
		{"100 голосов, ровно 0.8", Tally{auth.RoleNAD: {For: 80, Against: 20}}, true},
		{"100000 голосов, 0.79999", Tally{auth.RoleOG: {For: 79999, Against: 20001}}, false},
		{"роли суммируются", Tally{auth.RoleNAD: {For: 40}, auth.RoleOG: {For: 30}, auth.RoleMON: {For: 10, Against: 20}}, true},
		{"младшие роли не учитываются", Tally{auth.RoleFullAccess: {For: 500}, auth.RoleNAD: {For: 99}}, false},
		{"нет голосов", Tally{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := eval.Evaluate(Input{Tally: c.tally, Current: projects.StatusPending})
			require.Equal(t, c.want, v.Verified)
		})
	}
}

func TestStatusDerivation(t *testing.T) {
	eval := NewEvaluator(DefaultThresholds())

	cases := []struct {
		name      string
		tally     Tally
		current   projects.Status
		scamFlags int64
		want      projects.Status
	}{
		{"3 из 4 за", Tally{auth.RoleFullAccess: {For: 3, Against: 1}}, projects.StatusPending, 0, projects.StatusVerified},
		{"1 из 4, скам у половины", Tally{auth.RoleNAD: {For: 1, Against: 3}}, projects.StatusPending, 2, projects.StatusScam},
		{"1 из 4, скам у одного", Tally{auth.RoleNAD: {For: 1, Against: 3}}, projects.StatusPending, 1, projects.StatusUnverified},
		{"2 голоса ниже минимума", Tally{auth.RoleMON: {Against: 2}}, projects.StatusPending, 2, projects.StatusPending},
		{"ниже минимума статус сохраняется", Tally{auth.RoleMON: {For: 1}}, projects.StatusRug, 0, projects.StatusRug},
		{"середина сохраняет статус", Tally{auth.RoleOG: {For: 2, Against: 2}}, projects.StatusScam, 0, projects.StatusScam},
		{"середина из PENDING", Tally{auth.RoleOG: {For: 2, Against: 2}}, projects.StatusPending, 0, projects.StatusPending},
		{"учитываются все роли", Tally{auth.RoleNone: {For: 2}, auth.RoleFullAccess: {For: 1}}, projects.StatusPending, 0, projects.StatusVerified},
		{"из SCAM обратно в VERIFIED", Tally{auth.RoleNAD: {For: 9, Against: 1}}, projects.StatusScam, 1, projects.StatusVerified},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := eval.Evaluate(Input{Tally: c.tally, Current: c.current, ScamFlags: c.scamFlags})
			require.Equal(t, c.want, v.Status)
		})
	}
}

func TestCustomThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.RelevantRoles = []auth.Role{auth.RoleMON}
	th.MinForVerification = 2
	th.MinForStatus = 1
	eval := NewEvaluator(th)

	v := eval.Evaluate(Input{Tally: Tally{auth.RoleMON: {For: 2}}, Current: projects.StatusPending})
	require.True(t, v.Verified)
	require.Equal(t, projects.StatusVerified, v.Status)

	v = eval.Evaluate(Input{Tally: Tally{auth.RoleOG: {For: 2}}, Current: projects.StatusPending})
	require.False(t, v.Verified)
}
