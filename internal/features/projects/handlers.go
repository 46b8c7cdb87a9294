// handlers.go (package projects): HTTP-обработчики карточек проектов.
// Детальная карточка с разбивкой голосов отдаётся из пакета voting.
package projects

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/monad-curator/internal/httpapi"
)

// Handler обрабатывает HTTP-запросы проектов.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List: GET /api/projects?status=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.OK(w, list)
}

// Create: POST /api/projects.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var f Fields
	if err := httpapi.Decode(r, &f); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	p, err := h.service.Create(r.Context(), httpapi.MustActor(r), f)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.Created(w, "Проект создан", p)
}

// Update: PUT /api/projects/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var patch Patch
	if err := httpapi.Decode(r, &patch); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	p, err := h.service.Update(r.Context(), httpapi.MustActor(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.OK(w, p)
}

// Stats: GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.SiteStats(r.Context())
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.OK(w, s)
}
