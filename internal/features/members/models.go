// Package members управляет участниками сообщества: профилем, ролью,
// флагами администратора и доверенного голосующего, привязкой кошелька.
// models.go описывает структуры данных таблицы users.
package members

import (
	"time"

	"serotonyl.ru/monad-curator/internal/auth"
)

// User: участник в базе данных.
// Аутентификация (Discord/Twitter OAuth) происходит снаружи,
// сюда приходит уже готовый профиль.
type User struct {
	ID             string    `json:"id"`
	DiscordID      *string   `json:"discordId,omitempty"`
	TwitterID      *string   `json:"twitterId,omitempty"`
	Username       string    `json:"username"`
	Avatar         string    `json:"avatar,omitempty"`
	WalletAddress  *string   `json:"walletAddress,omitempty"`
	Role           auth.Role `json:"role"`
	IsAdmin        bool      `json:"isAdmin"`
	IsTrustedVoter bool      `json:"isTrustedVoter"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CanVote: право голоса выводится из роли.
func (u *User) CanVote() bool {
	return u.Role.AtLeast(auth.RoleFullAccess)
}

// Actor: снимок участника для проверки прав.
func (u *User) Actor() auth.Actor {
	return auth.Actor{
		UserID:         u.ID,
		Username:       u.Username,
		Role:           u.Role,
		IsAdmin:        u.IsAdmin,
		IsTrustedVoter: u.IsTrustedVoter,
	}
}

// Profile: ответ /api/auth/me.
type Profile struct {
	*User
	CanVote    bool `json:"canVote"`
	HasMonRole bool `json:"hasMonRole"`
}

// UpsertInput: данные профиля от внешнего OAuth.
type UpsertInput struct {
	DiscordID string
	TwitterID string
	Username  string
	Avatar    string
	Role      auth.Role
}

// RolesUpdate: изменение роли и флага доверенного голосующего.
// nil-поле не меняется.
type RolesUpdate struct {
	Role           *string `json:"role"`
	IsTrustedVoter *bool   `json:"isTrustedVoter"`
}
