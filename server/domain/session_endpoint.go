package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	core "skirmish/domain"
)

var (
	// ErrBackpressure は書き込みチャネルが満杯の場合に返されるエラーです。
	ErrBackpressure = errors.New("write channel is full, apply backpressure")
	// ErrInitializationFailed はセッションエンドポイントの初期化に失敗した場合に返されるエラーです。
	ErrInitializationFailed = errors.New("failed to initialize session endpoint")
	// ErrRoomUnavailable はルームの受信箱へ join を渡せなかった場合に返されるエラーです。
	ErrRoomUnavailable = errors.New("room did not accept the session")
)

const (
	defaultWriteBuffer  = 1024
	defaultIdleTimeout  = 60 * time.Second
	defaultPingInterval = 25 * time.Second
	controlPublishWait  = 5 * time.Second
	idleCheckInterval   = time.Second
)

type EndpointOption func(*SessionEndpoint)

// WithIdleTimeout は pong が途絶えてから切断するまでの時間。0 以下で無効。
func WithIdleTimeout(d time.Duration) EndpointOption {
	return func(se *SessionEndpoint) { se.idleTimeout = d }
}

// WithPingInterval は ping の送信間隔。0 以下で ping を送らない。
func WithPingInterval(d time.Duration) EndpointOption {
	return func(se *SessionEndpoint) { se.pingInterval = d }
}

func WithWriteBuffer(n int) EndpointOption {
	return func(se *SessionEndpoint) {
		if n > 0 {
			se.writeCh = make(chan []byte, n)
		}
	}
}

type SessionEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	session    *core.Session
	connection *Connection
	pubsub     PubSub
	roomID     RoomID

	idleTimeout  time.Duration
	pingInterval time.Duration

	ctrlCh  chan endpointEvent // 制御用チャネル
	writeCh chan []byte        // 書き込み用チャネル

	// lifecycle
	closed atomic.Bool
}

func NewSessionEndpoint(ctx context.Context, session *core.Session, connection *Connection, pubsub PubSub, roomID RoomID, opts ...EndpointOption) (*SessionEndpoint, error) {
	if session == nil || connection == nil || pubsub == nil || roomID.IsEmpty() {
		return nil, ErrInitializationFailed
	}
	ctx, cancel := context.WithCancel(ctx)
	se := &SessionEndpoint{
		ctx:          ctx,
		cancel:       cancel,
		session:      session,
		connection:   connection,
		pubsub:       pubsub,
		roomID:       roomID,
		idleTimeout:  defaultIdleTimeout,
		pingInterval: defaultPingInterval,
		ctrlCh:       make(chan endpointEvent, 16),
		writeCh:      make(chan []byte, defaultWriteBuffer),
	}
	for _, opt := range opts {
		opt(se)
	}
	return se, nil
}

// Run は接続が閉じるまでブロックする。終了時には必ずルームへ leave を通知する。
func (se *SessionEndpoint) Run() error {
	defer se.close()

	// 自分宛のメッセージを購読してから join する。sessionAssigned を取りこぼさないため。
	sessionTopic := SessionTopic(se.session.ID())
	msgCh := se.pubsub.Subscribe(sessionTopic)
	defer se.pubsub.Unsubscribe(sessionTopic, msgCh)

	if err := se.publishControl(se.ctx, MessageJoin); err != nil {
		return fmt.Errorf("%w: %v", ErrRoomUnavailable, err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(se.ctx), controlPublishWait)
		defer cancel()
		if err := se.publishControl(ctx, MessageLeave); err != nil {
			slog.ErrorContext(ctx, "failed to publish leave", "sessionID", se.session.ID(), "err", err)
		}
	}()

	heartbeat := NewHeartbeatService(se.pingInterval, se.session, se.connection,
		WithPongHandler(func(ctx context.Context) {
			se.sendCtrlEvent(ctx, endpointEvent{kind: evPong})
		}),
	)

	eg, ctx := errgroup.WithContext(se.ctx)
	eg.Go(func() error {
		se.ownerLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.readLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.writeLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.subscribeLoop(ctx, msgCh)
		return nil
	})
	eg.Go(func() error {
		heartbeat.Run(ctx)
		return nil
	})

	return eg.Wait()
}

func (se *SessionEndpoint) Send(data []byte) error {
	select {
	case se.writeCh <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close は ownerLoop に終了を依頼し、接続を正常終了コードで閉じる。
func (se *SessionEndpoint) Close(ctx context.Context) {
	se.sendCtrlEvent(ctx, endpointEvent{kind: evClose})
}

func (se *SessionEndpoint) ForceClose() {
	se.close()
}

// ownerLoop は論理セッションの状態を監視し、必要に応じて接続の管理を行います。
func (se *SessionEndpoint) ownerLoop(ctx context.Context) {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-se.ctrlCh:
			se.handleControlEvent(ctx, ev)
		case <-ticker.C:
			if idle, reason := se.session.IsIdle(se.idleTimeout, core.IdlePong); idle {
				se.handleControlEvent(ctx, endpointEvent{
					kind: evIdle,
					err:  errors.New(reason.String()),
				})
			}
		}
	}
}

func (se *SessionEndpoint) readLoop(ctx context.Context) {
	for {
		data, err := se.connection.Read(ctx)
		if err != nil {
			se.sendCtrlEvent(ctx, endpointEvent{kind: evReadError, err: err})
			return
		}
		se.session.TouchRead()
		se.handleData(ctx, data)
	}
}

func (se *SessionEndpoint) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-se.writeCh:
			if err := se.connection.Write(ctx, data); err != nil {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evWriteError, err: err})
				return
			}
			se.session.TouchWrite()
		}
	}
}

// subscribeLoop はpubsubからのメッセージをwriteChに転送します。
func (se *SessionEndpoint) subscribeLoop(ctx context.Context, msgCh <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			if err := se.Send(msg.Data); err != nil {
				slog.WarnContext(ctx, "subscribeLoop: writeCh full, message dropped", "sessionID", se.session.ID())
			}
		}
	}
}

// handleData は受信フレームをそのままルームの受信箱へ渡す。解釈はルーム側の Application が行う。
func (se *SessionEndpoint) handleData(ctx context.Context, data []byte) {
	err := se.pubsub.Publish(ctx, RoomTopic(se.roomID), Message{
		Kind:      MessageData,
		SessionID: se.session.ID(),
		Data:      data,
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to forward message to room", "sessionID", se.session.ID(), "roomID", se.roomID, "err", err)
	}
}

// publishControl は join/leave を取りこぼさないよう、受信箱が空くまで ctx の範囲で再送する。
func (se *SessionEndpoint) publishControl(ctx context.Context, kind MessageKind) error {
	msg := Message{Kind: kind, SessionID: se.session.ID()}
	backoff := 5 * time.Millisecond
	for {
		err := se.pubsub.Publish(ctx, RoomTopic(se.roomID), msg)
		if !errors.Is(err, ErrTopicBusy) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 200*time.Millisecond)
	}
}

func (se *SessionEndpoint) close() {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	// close フレームを先に送る。Read が生きていないとハンドシェイクが終わらない。
	se.connection.Close()
	se.session.Close()
	se.cancel()
}

func (se *SessionEndpoint) closeWithReason(reason string) {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	se.connection.CloseWithReason(reason)
	se.session.Close()
	se.cancel()
}

// handleControlEvent は制御チャネルからのイベントを処理し論理セッションの状態を更新する唯一の関数です。
func (se *SessionEndpoint) handleControlEvent(ctx context.Context, ev endpointEvent) {
	switch ev.kind {
	case evClose:
		se.close()
	case evPong:
		se.session.TouchPong()
	case evIdle:
		slog.InfoContext(ctx, "closing idle session", "sessionID", se.session.ID(), "reason", ev.err)
		se.closeWithReason("idle timeout")
	case evReadError:
		slog.DebugContext(ctx, "read failed, closing session", "sessionID", se.session.ID(), "err", ev.err)
		se.close()
	case evWriteError:
		slog.WarnContext(ctx, "write failed, closing session", "sessionID", se.session.ID(), "err", ev.err)
		se.close()
	default:
		slog.WarnContext(ctx, "unknown endpoint event kind", "kind", ev.kind)
	}
}

func (se *SessionEndpoint) sendCtrlEvent(ctx context.Context, ev endpointEvent) {
	select {
	case se.ctrlCh <- ev:
	case <-ctx.Done():
	}
}
