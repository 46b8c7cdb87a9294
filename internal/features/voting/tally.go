// tally.go (package voting): счётчики голосов по ролям.
package voting

import (
	"sort"

	"serotonyl.ru/monad-curator/internal/auth"
)

// Counts: голоса за и против.
type Counts struct {
	For     int64
	Against int64
}

func (c Counts) Total() int64 { return c.For + c.Against }

// Tally: счётчики одного проекта по ролям.
type Tally map[auth.Role]Counts

// Delta: изменение счётчиков одной роли.
type Delta struct {
	Role    auth.Role
	For     int64
	Against int64
}

// Apply прибавляет изменения.
func (t Tally) Apply(deltas ...Delta) {
	for _, d := range deltas {
		c := t[d.Role]
		c.For += d.For
		c.Against += d.Against
		t[d.Role] = c
	}
}

// Totals: сумма по всем ролям.
func (t Tally) Totals() Counts {
	var sum Counts
	for _, c := range t {
		sum.For += c.For
		sum.Against += c.Against
	}
	return sum
}

// Sum: сумма только по перечисленным ролям.
func (t Tally) Sum(roles []auth.Role) Counts {
	var sum Counts
	for _, r := range roles {
		c := t[r]
		sum.For += c.For
		sum.Against += c.Against
	}
	return sum
}

// Breakdown: непустые строки, от старшей роли к младшей.
func (t Tally) Breakdown() []RoleCount {
	out := make([]RoleCount, 0, len(t))
	for role, c := range t {
		if c.Total() == 0 {
			continue
		}
		out = append(out, RoleCount{Role: role, VotesFor: c.For, VotesAgainst: c.Against})
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Role.Rank(), out[j].Role.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].Role < out[j].Role
	})
	return out
}

// Equal сравнивает счётчики; нулевые строки не учитываются.
func (t Tally) Equal(other Tally) bool {
	for role, c := range t {
		if other[role] != c {
			return false
		}
	}
	for role, c := range other {
		if t[role] != c {
			return false
		}
	}
	return true
}

// Clone: независимая копия.
func (t Tally) Clone() Tally {
	out := make(Tally, len(t))
	for role, c := range t {
		out[role] = c
	}
	return out
}

// Deltas считает изменения счётчиков при переходе голоса old → next.
// old == nil означает новый голос, next == nil означает отзыв. Смена роли даёт две
// строки даже при том же типе голоса; изменения одной роли складываются,
// нулевые отбрасываются.
func Deltas(old, next *Vote) []Delta {
	var deltas []Delta
	add := func(role auth.Role, voteType VoteType, n int64) {
		for i := range deltas {
			if deltas[i].Role == role {
				deltas[i].add(voteType, n)
				return
			}
		}
		d := Delta{Role: role}
		d.add(voteType, n)
		deltas = append(deltas, d)
	}
	if old != nil {
		add(old.Role, old.VoteType, -1)
	}
	if next != nil {
		add(next.Role, next.VoteType, 1)
	}

	out := deltas[:0]
	for _, d := range deltas {
		if d.For != 0 || d.Against != 0 {
			out = append(out, d)
		}
	}
	return out
}

func (d *Delta) add(voteType VoteType, n int64) {
	if voteType == VoteFor {
		d.For += n
	} else {
		d.Against += n
	}
}

// sumDeltas: итоговое изменение агрегатов проекта.
func sumDeltas(deltas []Delta) Counts {
	var c Counts
	for _, d := range deltas {
		c.For += d.For
		c.Against += d.Against
	}
	return c
}
