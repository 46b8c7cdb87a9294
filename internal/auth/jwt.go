package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "monad-curator"

// ErrTokenExpired: срок действия токена истёк.
var ErrTokenExpired = errors.New("срок действия токена истёк")

// Claims: содержимое токена. Роль и флаги в токен не кладём,
// они читаются из БД при каждом запросе.
type Claims struct {
	UserID    string `json:"user_id"`
	DiscordID string `json:"discord_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken выпускает HS256-токен на ttl.
func GenerateToken(secret, userID, discordID string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expireAt := now.Add(ttl)
	claims := &Claims{
		UserID:    userID,
		DiscordID: discordID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expireAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return tokenStr, expireAt, nil
}

// ParseToken проверяет подпись и срок действия.
func ParseToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("недействительный токен")
	}
	return claims, nil
}
