package alerts

import (
	"net/http"
	"strconv"

	"serotonyl.ru/monad-curator/internal/httpapi"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List: GET /api/alerts?projectId=&limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.service.List(r.Context(), r.URL.Query().Get("projectId"), limit)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.OK(w, list)
}

// Create: POST /api/alerts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpapi.Decode(r, &in); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	a, err := h.service.Create(r.Context(), httpapi.MustActor(r), in)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.Created(w, "Алерт создан", a)
}
