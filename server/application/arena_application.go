package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"skirmish/application/request"
	"skirmish/application/service"
	core "skirmish/domain"
	"skirmish/server/domain"
)

var ErrUndecodablePayload = errors.New("application: undecodable payload")

const tracerName = "skirmish/server/application"

// EventRouter はイベントごとのハンドラ。service.GameService が実装する。
type EventRouter interface {
	Connect(ctx context.Context, id core.SessionID) []core.Outbound
	Disconnect(ctx context.Context, id core.SessionID) []core.Outbound
	Join(ctx context.Context, req request.Join) ([]core.Outbound, error)
	Update(ctx context.Context, req request.Update) ([]core.Outbound, error)
	Shoot(ctx context.Context, req request.Shoot) ([]core.Outbound, error)
	Hit(ctx context.Context, req request.Hit) ([]core.Outbound, error)
	UpdateTurrets(ctx context.Context, req request.Turrets) ([]core.Outbound, error)
	Chat(ctx context.Context, req request.Chat) ([]core.Outbound, error)
	Sweep(ctx context.Context) []core.Outbound
}

// ArenaApplication は受信フレームの封筒を開き、イベント名で EventRouter に振り分ける Application。
type ArenaApplication struct {
	router EventRouter
	clock  service.Clock
	tracer trace.Tracer
}

func NewArenaApplication(router EventRouter, clock service.Clock) *ArenaApplication {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &ArenaApplication{
		router: router,
		clock:  clock,
		tracer: otel.Tracer(tracerName),
	}
}

func (app *ArenaApplication) Connect(ctx context.Context, sessionID core.SessionID) []core.Outbound {
	ctx, span := app.tracer.Start(ctx, "arena.connect", trace.WithAttributes(attribute.String("session.id", sessionID.String())))
	defer span.End()
	return app.router.Connect(ctx, sessionID)
}

func (app *ArenaApplication) Disconnect(ctx context.Context, sessionID core.SessionID) []core.Outbound {
	ctx, span := app.tracer.Start(ctx, "arena.disconnect", trace.WithAttributes(attribute.String("session.id", sessionID.String())))
	defer span.End()
	return app.router.Disconnect(ctx, sessionID)
}

func (app *ArenaApplication) Tick(ctx context.Context) []core.Outbound {
	return app.router.Sweep(ctx)
}

// HandleMessage はフレームを処理する。ルーターが拒否したイベントはログに残して捨て、エラーにはしない。
func (app *ArenaApplication) HandleMessage(ctx context.Context, sessionID core.SessionID, data []byte) ([]core.Outbound, error) {
	env, err := domain.Decode(data)
	if err != nil {
		return nil, err
	}

	ctx, span := app.tracer.Start(ctx, "arena."+env.Event, trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
		attribute.Int("payload.bytes", len(env.Data)),
	))
	defer span.End()

	meta := request.Meta{SessionID: sessionID, ReceivedAt: app.clock.Now()}
	out, err := app.route(ctx, meta, env)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrUndecodablePayload) {
			span.SetStatus(codes.Error, "undecodable payload")
			return nil, err
		}
		app.logRejected(ctx, env.Event, sessionID, err)
		return nil, nil
	}
	span.SetAttributes(attribute.Int("outbound.count", len(out)))
	return out, nil
}

func (app *ArenaApplication) route(ctx context.Context, meta request.Meta, env domain.Envelope) ([]core.Outbound, error) {
	switch env.Event {
	case core.EventPlayerJoin:
		var req request.Join
		if err := decodeData(env, &req); err != nil {
			return nil, err
		}
		req.Meta = meta
		return app.router.Join(ctx, req)
	case core.EventPlayerUpdate:
		var req request.Update
		if err := decodeData(env, &req); err != nil {
			return nil, err
		}
		req.Meta = meta
		return app.router.Update(ctx, req)
	case core.EventPlayerShoot:
		var req request.Shoot
		if err := decodeData(env, &req); err != nil {
			return nil, err
		}
		req.Meta = meta
		return app.router.Shoot(ctx, req)
	case core.EventPlayerHit:
		var req request.Hit
		if err := decodeData(env, &req); err != nil {
			return nil, err
		}
		req.Meta = meta
		return app.router.Hit(ctx, req)
	case core.EventTurretUpdate:
		return app.router.UpdateTurrets(ctx, request.Turrets{Meta: meta, Snapshot: env.Data})
	case core.EventChatMessage, core.EventChat:
		var req request.Chat
		if err := decodeData(env, &req); err != nil {
			return nil, err
		}
		req.Meta = meta
		return app.router.Chat(ctx, req)
	default:
		slog.DebugContext(ctx, "unknown event ignored", "event", env.Event, "session_id", meta.SessionID)
		return nil, nil
	}
}

// decodeData は data が無い、もしくは null の場合は v をゼロ値のままにする。
func decodeData(env domain.Envelope, v any) error {
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUndecodablePayload, env.Event, err)
	}
	return nil
}

func (app *ArenaApplication) logRejected(ctx context.Context, event string, sessionID core.SessionID, err error) {
	level := slog.LevelDebug
	if errors.Is(err, service.ErrInvalidPayload) {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "event rejected", "event", event, "session_id", sessionID, "err", err)
}

var _ domain.Application = (*ArenaApplication)(nil)
