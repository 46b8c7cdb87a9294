// handlers.go (package voting): HTTP-обработчики голосования.
package voting

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/monad-curator/internal/httpapi"
)

// Handler обрабатывает HTTP-запросы голосования.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Submit: POST /api/votes/{projectId} {"voteType": "FOR"}.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VoteType string `json:"voteType"`
	}
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	res, err := h.service.SubmitVote(r.Context(), httpapi.MustActor(r), chi.URLParam(r, "projectId"), req.VoteType)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	message := "Голос учтён"
	if res.Retracted {
		message = "Голос отозван"
	}
	httpapi.Message(w, message, res)
}

// Retract: DELETE /api/votes/{projectId}.
func (h *Handler) Retract(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.RetractVote(r.Context(), httpapi.MustActor(r), chi.URLParam(r, "projectId"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.Message(w, "Голос отозван", map[string]interface{}{"stats": stats})
}

// Check: GET /api/votes/{projectId}/check.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CheckVote(r.Context(), httpapi.MustActor(r), chi.URLParam(r, "projectId"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.OK(w, res)
}

// Mine: GET /api/votes/me.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.MyVotes(r.Context(), httpapi.MustActor(r))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.OK(w, list)
}

// Review: POST /api/projects/{id}/reviews.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	var in ReviewInput
	if err := httpapi.Decode(r, &in); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	in.ProjectID = chi.URLParam(r, "id")
	v, err := h.service.SubmitReview(r.Context(), httpapi.MustActor(r), in)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.Created(w, "Отзыв сохранён", v)
}

// ProjectVotes: GET /api/projects/{id}/votes.
func (h *Handler) ProjectVotes(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ProjectVotes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.OK(w, list)
}

// Detail: GET /api/projects/{id}.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.ProjectDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.OK(w, d)
}

// ChangeStatus: PUT /api/projects/{id}/status {"status": "SCAM"}.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	p, err := h.service.ChangeProjectStatus(r.Context(), httpapi.MustActor(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.Message(w, "Статус проекта обновлён", p)
}
