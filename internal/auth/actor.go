package auth

import "context"

// Actor: участник, от имени которого выполняется операция.
// Снимок берётся из БД на каждый запрос, поэтому смена роли
// или флагов действует сразу, без перевыпуска токена.
type Actor struct {
	UserID         string
	Username       string
	Role           Role
	IsAdmin        bool
	IsTrustedVoter bool
}

// CanVote: роль не ниже FULL_ACCESS.
func (a Actor) CanVote() bool {
	return a.Role.AtLeast(RoleFullAccess)
}

// HasMonRole: высший уровень роли.
func (a Actor) HasMonRole() bool {
	return a.Role == RoleMON
}

// CanModerate: администратор или доверенный участник.
func (a Actor) CanModerate() bool {
	return a.IsAdmin || a.IsTrustedVoter
}

type actorKey struct{}

// WithActor кладёт участника в контекст.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom достаёт участника из контекста.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
