package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	core "skirmish/domain"
	adapterwebsocket "skirmish/server/adapter/websocket"
	"skirmish/server/domain"
)

type AcceptOptions struct {
	RoomID         domain.RoomID
	OriginPatterns []string
	ReadLimit      int64
	PingInterval   time.Duration
	IdleTimeout    time.Duration
}

// AcceptHandler は WebSocket を受け付け、稼働中のエンドポイントを覚えておく。
// ハイジャックした接続は http.Server.Shutdown では閉じられないため CloseAll で閉じる。
type AcceptHandler struct {
	pubsub domain.PubSub
	opts   AcceptOptions

	mu        sync.Mutex
	endpoints map[*domain.SessionEndpoint]struct{}
}

func NewAcceptHandler(pubsub domain.PubSub, opts AcceptOptions) *AcceptHandler {
	if opts.RoomID.IsEmpty() {
		opts.RoomID = domain.DefaultRoomID
	}
	return &AcceptHandler{
		pubsub:    pubsub,
		opts:      opts,
		endpoints: make(map[*domain.SessionEndpoint]struct{}),
	}
}

// Active は稼働中のエンドポイント数。
func (h *AcceptHandler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.endpoints)
}

// CloseAll は稼働中の全エンドポイントへ終了を依頼し、全て抜けるか ctx が終わるまで待つ。
func (h *AcceptHandler) CloseAll(ctx context.Context) error {
	h.mu.Lock()
	endpoints := make([]*domain.SessionEndpoint, 0, len(h.endpoints))
	for se := range h.endpoints {
		endpoints = append(endpoints, se)
	}
	h.mu.Unlock()

	slog.InfoContext(ctx, "closing websocket sessions", "count", len(endpoints))
	for _, se := range endpoints {
		se.Close(ctx)
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for h.Active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (h *AcceptHandler) track(se *domain.SessionEndpoint) func() {
	h.mu.Lock()
	h.endpoints[se] = struct{}{}
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.endpoints, se)
		h.mu.Unlock()
	}
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to accept", "err", err)
		return
	}

	session := core.NewSession()
	transport := adapterwebsocket.NewTransportFrom(conn, h.opts.ReadLimit)
	connection := domain.NewConnection(session.ID(), transport)
	endpoint, err := domain.NewSessionEndpoint(ctx, session, connection, h.pubsub, h.opts.RoomID,
		domain.WithPingInterval(h.opts.PingInterval),
		domain.WithIdleTimeout(h.opts.IdleTimeout),
	)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create session endpoint", "err", err)
		connection.Close()
		return
	}
	slog.DebugContext(ctx, "accepted new connection", "session_id", session.ID(), "remote", r.RemoteAddr)
	untrack := h.track(endpoint)
	defer untrack()
	if err := endpoint.Run(); err != nil {
		slog.ErrorContext(ctx, "failed to run session endpoint", "session_id", session.ID(), "err", err)
		return
	}
	slog.DebugContext(ctx, "connection closed", "session_id", session.ID(), "uptime", time.Since(session.CreatedAt()))
}
