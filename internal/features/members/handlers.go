// handlers.go (package members): HTTP-обработчики профиля, кошелька и ролей.
package members

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/monad-curator/internal/httpapi"
)

// Handler обрабатывает HTTP-запросы участников.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Me: GET /api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Profile(r.Context(), httpapi.MustActor(r).UserID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.OK(w, p)
}

// LinkWallet: POST /api/wallet {"address": "0x..."}.
func (h *Handler) LinkWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	u, err := h.service.LinkWallet(r.Context(), httpapi.MustActor(r), req.Address)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.Message(w, "Кошелёк привязан", u)
}

// UpdateRoles: PUT /api/admin/users/{id}/roles.
func (h *Handler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	var req RolesUpdate
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	u, err := h.service.UpdateRoles(r.Context(), httpapi.MustActor(r), chi.URLParam(r, "id"), req)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.OK(w, u)
}
