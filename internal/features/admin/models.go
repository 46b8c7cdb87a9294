// Package admin: повышение участника до администратора по паролю.
// Пароль хранится только как хеш Argon2id (ADMIN_PASSWORD_HASH),
// неудачные попытки пишутся в admin_login_attempts для блокировки перебора.
package admin

import "time"

// Параметры защиты от перебора
const (
	MaxFailedAttempts = 3
	LockoutPeriod     = time.Hour
)

// LoginAttempt: попытка входа.
type LoginAttempt struct {
	ID          int64     `db:"id"`
	UserID      string    `db:"user_id"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}

// LoginInput: тело POST /api/admin/login.
type LoginInput struct {
	Password string `json:"password"`
}
