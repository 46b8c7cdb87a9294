package admin

import (
	"net/http"

	"serotonyl.ru/monad-curator/internal/httpapi"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Login: POST /api/admin/login {"password": "..."}.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpapi.Decode(r, &in); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	if err := h.service.Login(r.Context(), httpapi.MustActor(r), in.Password); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.Message(w, "Права администратора выданы", map[string]bool{"isAdmin": true})
}
