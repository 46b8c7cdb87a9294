package criteria

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/monad-curator/internal/httpapi"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List: GET /api/criteria.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.OK(w, list)
}

// Create: POST /api/criteria.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpapi.Decode(r, &in); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	c, err := h.service.Create(r.Context(), httpapi.MustActor(r), in)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.Created(w, "Критерий создан", c)
}

// Update: PUT /api/criteria/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpapi.Decode(r, &in); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	c, err := h.service.Update(r.Context(), httpapi.MustActor(r), chi.URLParam(r, "id"), in)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.OK(w, c)
}
