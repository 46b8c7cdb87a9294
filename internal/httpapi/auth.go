package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
)

// ActorLoader загружает актуальный снимок участника по ID из токена.
type ActorLoader interface {
	ActorByID(ctx context.Context, userID string) (auth.Actor, error)
}

// Authenticate разбирает Bearer-токен (или ?token= для EventSource)
// и кладёт участника в контекст. Запрос без токена проходит анонимно,
// недействительный токен отклоняется с 401.
func Authenticate(secret string, loader ActorLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				Unauthorized(w, 40101, "некорректный формат токена")
				return
			}
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, tokenStr)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					Unauthorized(w, 40102, "срок действия токена истёк")
				} else {
					Unauthorized(w, 40103, "недействительный токен")
				}
				return
			}

			actor, err := loader.ActorByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					Unauthorized(w, 40103, "пользователь не найден")
					return
				}
				Error(w, r, err)
				return
			}

			log.WithFields(log.Fields{"user_id": actor.UserID, "role": actor.Role}).Trace("authenticated")
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

// RequireUser отклоняет анонимные запросы.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.ActorFrom(r.Context()); !ok {
			Unauthorized(w, 40101, "требуется авторизация")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin пропускает только администраторов.
func RequireAdmin(next http.Handler) http.Handler {
	return requireCapability(next, func(a auth.Actor) bool { return a.IsAdmin })
}

// RequireModerator пропускает администраторов и доверенных участников.
func RequireModerator(next http.Handler) http.Handler {
	return requireCapability(next, auth.Actor.CanModerate)
}

func requireCapability(next http.Handler, allowed func(auth.Actor) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFrom(r.Context())
		if !ok {
			Unauthorized(w, 40101, "требуется авторизация")
			return
		}
		if !allowed(actor) {
			Error(w, r, common.ErrNotAdmin)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MustActor возвращает участника; вызывается только за RequireUser.
func MustActor(r *http.Request) auth.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return r.URL.Query().Get("token"), true
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return "", false
	}
	return strings.TrimSpace(token), true
}
