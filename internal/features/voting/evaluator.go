// evaluator.go (package voting): вывод статуса и флага verified из счётчиков.
//
// Две модели считаются независимо по одним и тем же данным:
//   - verified учитывает только авторитетные роли (по умолчанию NAD, OG, MON);
//   - status учитывает все голоса и ответы по критерию «Scam Detection».
//
// Функция без памяти: результат зависит только от текущих счётчиков
// и текущего статуса (он сохраняется, если правило не сработало).
package voting

import (
	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/features/projects"
)

// Thresholds: пороги автоматических решений.
type Thresholds struct {
	RelevantRoles      []auth.Role
	MinForVerification int64
	VerifyThreshold    float64
	MinForStatus       int64
	VerifiedFraction   float64
	UnverifiedFraction float64
	ScamFraction       float64
}

// DefaultThresholds: значения по умолчанию.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RelevantRoles:      []auth.Role{auth.RoleNAD, auth.RoleOG, auth.RoleMON},
		MinForVerification: 100,
		VerifyThreshold:    0.8,
		MinForStatus:       3,
		VerifiedFraction:   0.75,
		UnverifiedFraction: 0.25,
		ScamFraction:       0.5,
	}
}

// Input: данные для оценки.
type Input struct {
	Tally   Tally
	Current projects.Status
	// ScamFlags: число голосов проекта с ответом YES по критерию «Scam Detection»
	ScamFlags int64
}

// Verdict: результат оценки.
type Verdict struct {
	Status   projects.Status
	Verified bool
}

// Evaluator применяет пороги.
type Evaluator struct {
	th Thresholds
}

func NewEvaluator(th Thresholds) *Evaluator {
	return &Evaluator{th: th}
}

// Thresholds возвращает действующие пороги.
func (e *Evaluator) Thresholds() Thresholds { return e.th }

// Evaluate вычисляет статус и флаг verified.
func (e *Evaluator) Evaluate(in Input) Verdict {
	return Verdict{
		Status:   e.status(in),
		Verified: e.verified(in.Tally),
	}
}

func (e *Evaluator) verified(t Tally) bool {
	relevant := t.Sum(e.th.RelevantRoles)
	total := relevant.Total()
	if total == 0 || total < e.th.MinForVerification {
		return false
	}
	return fraction(relevant.For, total) >= e.th.VerifyThreshold
}

func (e *Evaluator) status(in Input) projects.Status {
	all := in.Tally.Totals()
	total := all.Total()
	if total == 0 || total < e.th.MinForStatus {
		return in.Current
	}

	yes := fraction(all.For, total)
	switch {
	case yes >= e.th.VerifiedFraction:
		return projects.StatusVerified
	case yes <= e.th.UnverifiedFraction:
		if fraction(in.ScamFlags, total) >= e.th.ScamFraction {
			return projects.StatusScam
		}
		return projects.StatusUnverified
	default:
		return in.Current
	}
}

// fraction считает долю делением, 80/100 даёт ровно 0.8.
func fraction(part, total int64) float64 {
	return float64(part) / float64(total)
}
