// Package auth описывает участника запроса (Actor), уровни ролей
// и выпуск/проверку JWT.
//
// roles.go: упорядоченные уровни ролей сообщества.
// Порядок: NONE < FULL_ACCESS < NAD < OG < MON.
package auth

import (
	"fmt"
	"strings"

	"serotonyl.ru/monad-curator/internal/common"
)

// Role: уровень роли участника.
type Role string

const (
	RoleNone       Role = "NONE"
	RoleFullAccess Role = "FULL_ACCESS"
	RoleNAD        Role = "NAD"
	RoleOG         Role = "OG"
	RoleMON        Role = "MON"
)

// AllRoles: все роли по возрастанию.
var AllRoles = []Role{RoleNone, RoleFullAccess, RoleNAD, RoleOG, RoleMON}

var roleRank = map[Role]int{
	RoleNone:       0,
	RoleFullAccess: 1,
	RoleNAD:        2,
	RoleOG:         3,
	RoleMON:        4,
}

// Rank возвращает порядковый номер роли; неизвестная роль = -1.
func (r Role) Rank() int {
	rank, ok := roleRank[r]
	if !ok {
		return -1
	}
	return rank
}

// AtLeast: роль не ниже other.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

// Valid: роль из известного списка.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// ParseRole разбирает строку роли без учёта регистра.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidRole, s)
	}
	return r, nil
}

// ParseRoles разбирает список ролей.
func ParseRoles(raw []string) ([]Role, error) {
	out := make([]Role, 0, len(raw))
	for _, s := range raw {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
