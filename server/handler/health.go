package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// PlayerCounter は現在のプレイヤー数。ルームのループ外から呼ばれる。
type PlayerCounter interface {
	PlayerCount() int
}

type healthResponse struct {
	Status    string  `json:"status"`
	Uptime    float64 `json:"uptime"`
	Timestamp string  `json:"timestamp"`
	Players   int     `json:"players"`
}

// NewHealthHandler は稼働時間と人数を返す。now は省略時 time.Now。
func NewHealthHandler(counter PlayerCounter, startedAt time.Time, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		t := now()
		body := healthResponse{
			Status:    "ok",
			Uptime:    t.Sub(startedAt).Seconds(),
			Timestamp: t.UTC().Format(time.RFC3339),
			Players:   counter.PlayerCount(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.WarnContext(r.Context(), "failed to write health response", "err", err)
		}
	}
}

// NewRootHandler は静的な生存確認文字列を返す。
func NewRootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Game server is running"))
	}
}
