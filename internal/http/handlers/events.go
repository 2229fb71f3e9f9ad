package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"genstudio/internal/domain"
)

const defaultHeartbeat = 15 * time.Second

// GenerationEvents answers GET /v1/generations/{id}/events with a
// Server-Sent Events stream. The first event is the current snapshot and the
// stream ends after the terminal event.
func (a *App) GenerationEvents(w http.ResponseWriter, r *http.Request) {
	sub, err := a.Orchestrator.Subscribe(r.Context(), a.ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, r, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		a.Logger.Warn().Err(err).Msg("sse: flush unsupported")
		return
	}

	heartbeat := a.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			seq++
			if err := writeEvent(w, seq, ev); err != nil {
				a.Logger.Debug().Err(err).Str("job_id", ev.JobID).Msg("sse: client gone")
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
			if ev.Status.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, seq int, ev domain.JobProgress) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	name := "progress"
	if ev.Status.Terminal() {
		name = string(ev.Status)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, name, data)
	return err
}
