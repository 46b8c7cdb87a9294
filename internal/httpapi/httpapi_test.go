package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
)

type stubLoader map[string]auth.Actor

func (s stubLoader) ActorByID(_ context.Context, id string) (auth.Actor, error) {
	a, ok := s[id]
	if !ok {
		return auth.Actor{}, common.ErrUserNotFound
	}
	return a, nil
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{common.ErrInvalidVoteType, http.StatusBadRequest},
		{common.ErrCannotVote, http.StatusForbidden},
		{fmt.Errorf("wrap: %w", common.ErrProjectNotFound), http.StatusNotFound},
		{common.ErrSameVote, http.StatusConflict},
		{common.NewStorageError("op", errors.New("db down")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		status, _ := StatusFor(c.err)
		require.Equal(t, c.status, status, c.err.Error())
	}
}

func TestErrorHidesStorageDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), common.NewStorageError("insert", errors.New("password=hunter2")))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "hunter2")
}

func TestDecode(t *testing.T) {
	var dst struct {
		VoteType string `json:"voteType"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"voteType":"FOR"}`))
	require.NoError(t, Decode(r, &dst))
	require.Equal(t, "FOR", dst.VoteType)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"other":1}`))
	require.ErrorIs(t, Decode(r, &dst), common.ErrValidation)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	require.ErrorIs(t, Decode(r, &dst), common.ErrValidation)
}

func TestAuthenticate(t *testing.T) {
	loader := stubLoader{"u1": {UserID: "u1", Role: auth.RoleOG}}
	var seen auth.Actor
	var seenOK bool
	h := Authenticate("secret", loader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, seenOK = auth.ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, _, err := auth.GenerateToken("secret", "u1", "", time.Hour)
	require.NoError(t, err)

	t.Run("valid bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.True(t, seenOK)
		require.Equal(t, auth.RoleOG, seen.Role)
	})

	t.Run("query token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?token="+token, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.False(t, seenOK)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		other, _, err := auth.GenerateToken("secret", "ghost", "", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+other)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var env Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.Equal(t, 40103, env.Code)
	})
}

func TestRequireModerator(t *testing.T) {
	h := RequireModerator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(a *auth.Actor) int {
		req := httptest.NewRequest(http.MethodPut, "/", nil)
		if a != nil {
			req = req.WithContext(auth.WithActor(req.Context(), *a))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusUnauthorized, serve(nil))
	require.Equal(t, http.StatusForbidden, serve(&auth.Actor{UserID: "u", Role: auth.RoleMON}))
	require.Equal(t, http.StatusNoContent, serve(&auth.Actor{UserID: "u", IsTrustedVoter: true}))
	require.Equal(t, http.StatusNoContent, serve(&auth.Actor{UserID: "u", IsAdmin: true}))
}
