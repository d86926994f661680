package domain_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	core "skirmish/domain"
	coremocks "skirmish/domain/mocks"
	domain "skirmish/server/domain"
	"skirmish/server/domain/mocks"
)

// 初期化時にリソースが正しくセットアップされることを確認
func TestNewSessionEndpoint_InitializesDefaults(t *testing.T) {
	ctrl := gomock.NewController(t)

	s := core.NewSession()
	tr := coremocks.NewMockTransport(ctrl)
	c := domain.NewConnection(s.ID(), tr)
	ps := mocks.NewMockPubSub(ctrl)

	se, err := domain.NewSessionEndpoint(context.Background(), s, c, ps, domain.DefaultRoomID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if se == nil {
		t.Fatalf("endpoint is nil")
	}
}

func TestNewSessionEndpoint_RequiresDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := core.NewSession()
	c := domain.NewConnection(s.ID(), coremocks.NewMockTransport(ctrl))

	if _, err := domain.NewSessionEndpoint(context.Background(), s, c, nil, domain.DefaultRoomID); !errors.Is(err, domain.ErrInitializationFailed) {
		t.Fatalf("expected ErrInitializationFailed, got %v", err)
	}
	if _, err := domain.NewSessionEndpoint(context.Background(), s, c, mocks.NewMockPubSub(ctrl), ""); !errors.Is(err, domain.ErrInitializationFailed) {
		t.Fatalf("expected ErrInitializationFailed for empty room, got %v", err)
	}
}

// 受信フレームが join → data → leave の順でルームへ流れ、読み込みエラーで接続が閉じることを確認
func TestSessionEndpoint_ReadErrorPublishesLeave(t *testing.T) {
	ctrl := gomock.NewController(t)

	s := core.NewSession()
	tr := coremocks.NewMockTransport(ctrl)
	gomock.InOrder(
		tr.EXPECT().Read(gomock.Any()).Return([]byte(`{"event":"chat","data":{"message":"hi"}}`), nil),
		tr.EXPECT().Read(gomock.Any()).Return(nil, io.EOF),
	)
	tr.EXPECT().Close(int32(1000), "").Return(nil).Times(1)
	tr.EXPECT().Ping(gomock.Any()).Return(nil).AnyTimes()

	ps := domain.NewSimplePubSub()
	inbox := ps.Subscribe(domain.RoomTopic(domain.DefaultRoomID))

	se, err := domain.NewSessionEndpoint(context.Background(), s, domain.NewConnection(s.ID(), tr), ps, domain.DefaultRoomID, domain.WithPingInterval(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- se.Run() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint did not stop after read error")
	}

	want := []domain.MessageKind{domain.MessageJoin, domain.MessageData, domain.MessageLeave}
	for i, kind := range want {
		select {
		case msg := <-inbox:
			if msg.Kind != kind || msg.SessionID != s.ID() {
				t.Fatalf("message %d = %s from %s, want %s", i, msg.Kind, msg.SessionID, kind)
			}
		default:
			t.Fatalf("missing message %d (%s)", i, kind)
		}
	}
	if !s.IsClosed() {
		t.Error("session should be closed")
	}
}

// セッション宛の publish がトランスポートへ書き込まれることを確認
func TestSessionEndpoint_ForwardsSubscribedMessages(t *testing.T) {
	ctrl := gomock.NewController(t)

	s := core.NewSession()
	tr := coremocks.NewMockTransport(ctrl)
	tr.EXPECT().Read(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}).AnyTimes()
	written := make(chan []byte, 1)
	tr.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, data []byte) error {
		written <- data
		return nil
	}).Times(1)
	tr.EXPECT().Close(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	ps := domain.NewSimplePubSub()
	inbox := ps.Subscribe(domain.RoomTopic(domain.DefaultRoomID))

	se, err := domain.NewSessionEndpoint(context.Background(), s, domain.NewConnection(s.ID(), tr), ps, domain.DefaultRoomID, domain.WithPingInterval(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- se.Run() }()

	// join が届いた時点で購読済み
	select {
	case msg := <-inbox:
		if msg.Kind != domain.MessageJoin {
			t.Fatalf("expected join, got %s", msg.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("join was not published")
	}

	if err := ps.Publish(context.Background(), domain.SessionTopic(s.ID()), domain.Message{Data: []byte("frame")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case data := <-written:
		if string(data) != "frame" {
			t.Fatalf("written = %q", data)
		}
	case <-time.After(time.Second):
		t.Fatal("message was not written")
	}

	se.ForceClose()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint did not stop after ForceClose")
	}
}

// pong が途絶えたセッションが理由付きで閉じられることを確認
func TestSessionEndpoint_ClosesIdleSession(t *testing.T) {
	ctrl := gomock.NewController(t)

	s := core.NewSession()
	tr := coremocks.NewMockTransport(ctrl)
	tr.EXPECT().Read(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}).AnyTimes()
	tr.EXPECT().Close(int32(1008), "idle timeout").Return(nil).Times(1)

	ps := domain.NewSimplePubSub()
	se, err := domain.NewSessionEndpoint(context.Background(), s, domain.NewConnection(s.ID(), tr), ps, domain.DefaultRoomID,
		domain.WithPingInterval(0), domain.WithIdleTimeout(time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- se.Run() }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("idle session was not closed")
	}
}

// ping が成功し続ける限り、アイドル判定で切断されないことを確認
func TestSessionEndpoint_PongKeepsSessionAlive(t *testing.T) {
	ctrl := gomock.NewController(t)

	s := core.NewSession()
	tr := coremocks.NewMockTransport(ctrl)
	tr.EXPECT().Read(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}).AnyTimes()
	tr.EXPECT().Ping(gomock.Any()).Return(nil).MinTimes(1)
	tr.EXPECT().Close(int32(1000), "").Return(nil).Times(1)

	ps := domain.NewSimplePubSub()
	se, err := domain.NewSessionEndpoint(context.Background(), s, domain.NewConnection(s.ID(), tr), ps, domain.DefaultRoomID,
		domain.WithPingInterval(20*time.Millisecond), domain.WithIdleTimeout(300*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- se.Run() }()

	// 最初のアイドル判定は 1 秒後
	select {
	case <-done:
		t.Fatal("endpoint closed while pongs were arriving")
	case <-time.After(1300 * time.Millisecond):
	}
	if idle, _ := s.IsIdle(300*time.Millisecond, core.IdlePong); idle {
		t.Fatal("pong did not refresh the session")
	}

	se.ForceClose()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint did not stop after ForceClose")
	}
}

// Close は ownerLoop 経由で正常終了コードの close を送ることを確認
func TestSessionEndpoint_CloseSendsNormalClosure(t *testing.T) {
	ctrl := gomock.NewController(t)

	s := core.NewSession()
	tr := coremocks.NewMockTransport(ctrl)
	tr.EXPECT().Read(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}).AnyTimes()
	tr.EXPECT().Close(int32(1000), "").Return(nil).Times(1)

	ps := domain.NewSimplePubSub()
	inbox := ps.Subscribe(domain.RoomTopic(domain.DefaultRoomID))
	se, err := domain.NewSessionEndpoint(context.Background(), s, domain.NewConnection(s.ID(), tr), ps, domain.DefaultRoomID, domain.WithPingInterval(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- se.Run() }()
	if msg := <-inbox; msg.Kind != domain.MessageJoin {
		t.Fatalf("expected join, got %s", msg.Kind)
	}

	se.Close(context.Background())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint did not stop after Close")
	}
	select {
	case msg := <-inbox:
		if msg.Kind != domain.MessageLeave {
			t.Fatalf("expected leave, got %s", msg.Kind)
		}
	default:
		t.Fatal("leave was not published")
	}
}
