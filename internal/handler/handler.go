package handler

import (
	"encoding/json"
	"net/http"

	"github.com/philipphutterer/metube/internal/models"
	"github.com/philipphutterer/metube/internal/queue"
)

// AddHandler accepts a download request and hands it to the queue. The
// resolution outcome always comes back as a structured {status, msg} body.
func AddHandler(q *queue.DownloadQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.DownloadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid json"})
			return
		}
		if req.URL == "" || req.Quality == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "url and quality are required"})
			return
		}

		result := q.Add(r.Context(), &req)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// DeleteHandler cancels pending downloads or clears archived ones, depending
// on which store the caller names.
func DeleteHandler(q *queue.DownloadQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs   []string `json:"ids"`
			Where string   `json:"where"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid json"})
			return
		}
		if len(req.IDs) == 0 || (req.Where != "queue" && req.Where != "done") {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "ids and where ('queue' or 'done') are required"})
			return
		}

		var result models.Result
		if req.Where == "queue" {
			result = q.Cancel(req.IDs)
		} else {
			result = q.Clear(req.IDs)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// DownloadsHandler returns the current pending and archived jobs, for clients
// that poll instead of subscribing to the websocket.
func DownloadsHandler(q *queue.DownloadQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(q.Get()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": "failed to encode downloads"}`))
		}
	}
}
