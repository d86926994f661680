package domain

import (
	"context"
	"log/slog"
	"time"

	core "skirmish/domain"
)

type RoomID string

func (id RoomID) String() string { return string(id) }

func (id RoomID) IsEmpty() bool { return id == "" }

// DefaultRoomID はサーバーが起動時に作るルーム。
const DefaultRoomID RoomID = "arena"

const defaultSweepInterval = 60 * time.Second

type RoomOption func(*Room)

// WithSweepInterval は Application.Tick を呼ぶ間隔を変える。
func WithSweepInterval(d time.Duration) RoomOption {
	return func(r *Room) {
		if d > 0 {
			r.sweepInterval = d
		}
	}
}

// WithScheduler は遅延タスクの受け取り元を指定する。
func WithScheduler(s *TimerScheduler) RoomOption {
	return func(r *Room) { r.scheduler = s }
}

// Room は1つのゲームセッションを表す。Run のループが唯一の実行者で、
// Application の呼び出しと送信先集合の更新はすべてそこで直列に行われる。
type Room struct {
	ID       RoomID
	sessions map[core.SessionID]struct{}

	pubsub      PubSub
	application Application // 外部からアプリケーションロジックを注入できる
	scheduler   *TimerScheduler

	sweepInterval time.Duration
}

func NewRoom(id RoomID, pubsub PubSub, application Application, opts ...RoomOption) *Room {
	r := &Room{
		ID:            id,
		sessions:      make(map[core.SessionID]struct{}),
		pubsub:        pubsub,
		application:   application,
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Room) Broadcast(ctx context.Context, data []byte) {
	for sessionID := range r.sessions {
		r.SendTo(ctx, sessionID, data)
	}
}

func (r *Room) BroadcastExcept(ctx context.Context, except core.SessionID, data []byte) {
	for sessionID := range r.sessions {
		if sessionID == except {
			continue
		}
		r.SendTo(ctx, sessionID, data)
	}
}

func (r *Room) SendTo(ctx context.Context, sessionID core.SessionID, data []byte) {
	if err := r.pubsub.Publish(ctx, SessionTopic(sessionID), Message{Kind: MessageData, SessionID: sessionID, Data: data}); err != nil {
		slog.WarnContext(ctx, "room send dropped", "room_id", r.ID, "session_id", sessionID, "err", err)
	}
}

func (r *Room) Run(ctx context.Context) error {
	// room宛のメッセージを購読
	inbox := r.pubsub.Subscribe(RoomTopic(r.ID))
	defer r.pubsub.Unsubscribe(RoomTopic(r.ID), inbox)

	var tasks <-chan core.Task
	if r.scheduler != nil {
		tasks = r.scheduler.Tasks()
		defer r.scheduler.Stop()
	}

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "room started", "room_id", r.ID, "sweep_interval", r.sweepInterval)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "room stopped", "room_id", r.ID, "sessions", len(r.sessions))
			return nil
		case msg, ok := <-inbox:
			if !ok {
				return nil
			}
			r.handleMessage(ctx, msg)
		case task := <-tasks:
			r.dispatch(ctx, task(ctx))
		case <-ticker.C:
			r.dispatch(ctx, r.application.Tick(ctx))
		}
	}
}

func (r *Room) handleMessage(ctx context.Context, msg Message) {
	switch msg.Kind {
	case MessageJoin:
		if _, ok := r.sessions[msg.SessionID]; ok {
			return
		}
		r.sessions[msg.SessionID] = struct{}{}
		slog.DebugContext(ctx, "session joined room", "room_id", r.ID, "session_id", msg.SessionID, "sessions", len(r.sessions))
		r.dispatch(ctx, r.application.Connect(ctx, msg.SessionID))
	case MessageLeave:
		if _, ok := r.sessions[msg.SessionID]; !ok {
			return
		}
		delete(r.sessions, msg.SessionID)
		slog.DebugContext(ctx, "session left room", "room_id", r.ID, "session_id", msg.SessionID, "sessions", len(r.sessions))
		r.dispatch(ctx, r.application.Disconnect(ctx, msg.SessionID))
	case MessageData:
		if _, ok := r.sessions[msg.SessionID]; !ok {
			slog.WarnContext(ctx, "data from session outside room", "room_id", r.ID, "session_id", msg.SessionID)
			return
		}
		out, err := r.application.HandleMessage(ctx, msg.SessionID, msg.Data)
		if err != nil {
			slog.WarnContext(ctx, "room handle message failed", "room_id", r.ID, "session_id", msg.SessionID, "err", err)
			return
		}
		r.dispatch(ctx, out)
	default:
		slog.WarnContext(ctx, "unknown room message kind", "kind", msg.Kind)
	}
}

func (r *Room) dispatch(ctx context.Context, out []core.Outbound) {
	for _, o := range out {
		data, err := Encode(o.Event, o.Payload)
		if err != nil {
			slog.ErrorContext(ctx, "failed to encode outbound", "event", o.Event, "err", err)
			continue
		}
		switch o.Audience {
		case core.ToSession:
			r.SendTo(ctx, o.SessionID, data)
		case core.ToAll:
			r.Broadcast(ctx, data)
		case core.ToOthers:
			r.BroadcastExcept(ctx, o.SessionID, data)
		default:
			slog.WarnContext(ctx, "unknown audience", "audience", o.Audience, "event", o.Event)
		}
	}
}
