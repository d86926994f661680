package server

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/metric"

	"skirmish/application/service"
	"skirmish/application/state/memory"
	"skirmish/server/application"
	"skirmish/server/config"
	"skirmish/server/domain"
	"skirmish/server/handler"
	"skirmish/server/telemetry"
)

// Arena は1ルーム分のゲームを組み立てたもの。Room.Run と HTTP ハンドラを持つ。
type Arena struct {
	Room    *domain.Room
	Store   *memory.Store
	Accept  *handler.AcceptHandler
	Handler http.Handler
}

type ArenaOption func(*arenaOptions)

type arenaOptions struct {
	clock         service.Clock
	meterProvider metric.MeterProvider
}

// WithMeterProvider は計器の作成元を指定する。既定はグローバルの MeterProvider。
func WithMeterProvider(mp metric.MeterProvider) ArenaOption {
	return func(o *arenaOptions) { o.meterProvider = mp }
}

// WithClock はテスト用に時計を差し替える。
func WithClock(c service.Clock) ArenaOption {
	return func(o *arenaOptions) { o.clock = c }
}

// NewArena はストア・レジストリ・イベントルーター・ルーム・HTTP ルートを設定から組み立てる。
func NewArena(cfg config.Config, opts ...ArenaOption) (*Arena, error) {
	o := arenaOptions{clock: service.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	store := memory.NewStore(cfg.Game.ProjectileTTL)
	metrics, err := telemetry.NewMetrics(o.meterProvider, store)
	if err != nil {
		return nil, fmt.Errorf("build metrics: %w", err)
	}

	scheduler := domain.NewTimerScheduler(64)
	svc, err := service.NewGameService(service.Dependencies{
		State:     store,
		Registry:  memory.NewRegistry(),
		Metrics:   metrics,
		Clock:     o.clock,
		Validator: service.SimpleValidator{},
		Scheduler: scheduler,
	}, service.Rules{
		MaxHealth:         cfg.Game.MaxHealth,
		RespawnDelay:      cfg.Game.RespawnDelay,
		StaleAfter:        cfg.Game.StaleAfter,
		SpawnRange:        cfg.Game.SpawnRange,
		SpawnHeight:       cfg.Game.SpawnHeight,
		MaxNicknameLength: cfg.Game.MaxNicknameLength,
		MaxChatLength:     cfg.Game.MaxChatLength,
	})
	if err != nil {
		return nil, fmt.Errorf("build game service: %w", err)
	}

	pubsub := domain.NewSimplePubSub()
	pubsub.SetBuffer(domain.RoomTopic(domain.DefaultRoomID), 4096)
	app := application.NewArenaApplication(svc, o.clock)
	room := domain.NewRoom(domain.DefaultRoomID, pubsub, app,
		domain.WithScheduler(scheduler),
		domain.WithSweepInterval(cfg.Game.SweepInterval),
	)

	accept := handler.NewAcceptHandler(pubsub, handler.AcceptOptions{
		RoomID:         domain.DefaultRoomID,
		OriginPatterns: cfg.AllowedOrigins,
		ReadLimit:      cfg.Session.ReadLimit,
		PingInterval:   cfg.Session.PingInterval,
		IdleTimeout:    cfg.Session.IdleTimeout,
	})

	return &Arena{
		Room:    room,
		Store:   store,
		Accept:  accept,
		Handler: Route(DefaultRoutes(store, accept, cfg.AllowedOrigins)),
	}, nil
}
