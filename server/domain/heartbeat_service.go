package domain

import (
	"context"
	"log/slog"
	"time"

	core "skirmish/domain"
)

// Pinger は ping を送り pong を待つ。
type Pinger interface {
	Ping(ctx context.Context) error
}

// HeartbeatService は定期的にpingを送信する死活監視サービスです。
// pong を受け取るたびに onPong を呼び、判定は SessionEndpoint の ownerLoop が行います。
type HeartbeatService struct {
	pingInterval time.Duration
	session      *core.Session
	pinger       Pinger
	onPong       func(ctx context.Context)
}

type HeartbeatOption func(*HeartbeatService)

// WithPongHandler は pong 受信時の処理を差し替える。既定は Session.TouchPong。
func WithPongHandler(fn func(ctx context.Context)) HeartbeatOption {
	return func(h *HeartbeatService) {
		if fn != nil {
			h.onPong = fn
		}
	}
}

// NewHeartbeatService は新しいHeartbeatServiceを生成します。
func NewHeartbeatService(pingInterval time.Duration, session *core.Session, pinger Pinger, opts ...HeartbeatOption) *HeartbeatService {
	h := &HeartbeatService{
		pingInterval: pingInterval,
		session:      session,
		pinger:       pinger,
		onPong:       func(context.Context) { session.TouchPong() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run はpingInterval間隔でpingを送信します。
// ctxがキャンセルされると終了します。pingInterval<=0 の場合は何もしません。
func (h *HeartbeatService) Run(ctx context.Context) {
	if h.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.ping(ctx)
		}
	}
}

func (h *HeartbeatService) ping(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, h.pingInterval)
	defer cancel()
	if err := h.pinger.Ping(pingCtx); err != nil {
		if ctx.Err() == nil {
			slog.DebugContext(ctx, "heartbeat: ping failed", "sessionID", h.session.ID(), "err", err)
		}
		return
	}
	h.onPong(ctx)
}
