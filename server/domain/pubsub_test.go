package domain

import (
	"context"
	"errors"
	"testing"
)

func TestSimplePubSub_PublishSubscribe(t *testing.T) {
	ps := NewSimplePubSub()
	ctx := context.Background()

	a := ps.Subscribe("room:arena")
	b := ps.Subscribe("room:arena")
	other := ps.Subscribe("session:x")

	msg := Message{Kind: MessageData, SessionID: "s1", Data: []byte("hi")}
	if err := ps.Publish(ctx, "room:arena", msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for i, ch := range []<-chan Message{a, b} {
		select {
		case got := <-ch:
			if got.SessionID != "s1" || string(got.Data) != "hi" {
				t.Errorf("subscriber %d got %+v", i, got)
			}
		default:
			t.Fatalf("subscriber %d did not receive", i)
		}
	}
	select {
	case got := <-other:
		t.Fatalf("unrelated topic received %+v", got)
	default:
	}
}

func TestSimplePubSub_UnsubscribeClosesChannel(t *testing.T) {
	ps := NewSimplePubSub()
	ch := ps.Subscribe("t")
	ps.Unsubscribe("t", ch)

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
	if err := ps.Publish(context.Background(), "t", Message{}); err != nil {
		t.Fatalf("publish without subscribers should succeed, got %v", err)
	}
}

func TestSimplePubSub_BusySubscriber(t *testing.T) {
	ps := NewSimplePubSub()
	ps.SetBuffer("t", 1)
	ch := ps.Subscribe("t")
	ctx := context.Background()

	if err := ps.Publish(ctx, "t", Message{Data: []byte("1")}); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}
	if err := ps.Publish(ctx, "t", Message{Data: []byte("2")}); !errors.Is(err, ErrTopicBusy) {
		t.Fatalf("expected ErrTopicBusy, got %v", err)
	}
	if got := <-ch; string(got.Data) != "1" {
		t.Errorf("expected first message to be kept, got %s", got.Data)
	}
}

func TestSimplePubSub_CancelledContext(t *testing.T) {
	ps := NewSimplePubSub()
	ps.Subscribe("t")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ps.Publish(ctx, "t", Message{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTopics(t *testing.T) {
	if got := RoomTopic("arena"); got != "room:arena" {
		t.Errorf("RoomTopic = %s", got)
	}
	if got := SessionTopic("abc"); got != "session:abc" {
		t.Errorf("SessionTopic = %s", got)
	}
}
