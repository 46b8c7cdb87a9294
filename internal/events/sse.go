package events

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

const keepAliveInterval = 25 * time.Second

// ServeHTTP: GET /api/events?topic=... (Server-Sent Events).
// После переподключения клиент присылает Last-Event-ID и получает пропущенное.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	topic := r.URL.Query().Get("topic")
	lastID := parseLastEventID(r.Header.Get("Last-Event-ID"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Подписываемся до чтения истории, чтобы не потерять события между ними
	ch, unsub := h.Subscribe(topic)
	defer unsub()

	history, err := h.Replay(r.Context(), topic, lastID)
	if err != nil {
		log.WithError(err).Warn("Не удалось восстановить историю событий")
	}
	for _, ev := range history {
		writeEvent(w, ev)
		lastID = ev.ID
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.ID <= lastID {
				continue
			}
			writeEvent(w, ev)
			lastID = ev.ID
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) {
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Topic, ev.Data)
}

func parseLastEventID(header string) int64 {
	if header == "" {
		return 0
	}
	id, _ := strconv.ParseInt(header, 10, 64)
	return id
}
