package domain

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	core "skirmish/domain"
)

type recordingApp struct {
	mu     sync.Mutex
	events []string
	ticks  int
}

func (a *recordingApp) record(ev string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingApp) Connect(_ context.Context, id core.SessionID) []core.Outbound {
	a.record("connect:" + id.String())
	return []core.Outbound{
		core.SendTo(id, core.EventSessionAssigned, map[string]string{"id": id.String()}),
		core.BroadcastExcept(id, core.EventPlayerJoined, map[string]string{"id": id.String()}),
	}
}

func (a *recordingApp) Disconnect(_ context.Context, id core.SessionID) []core.Outbound {
	a.record("disconnect:" + id.String())
	return []core.Outbound{core.BroadcastExcept(id, core.EventPlayerLeft, map[string]string{"id": id.String()})}
}

func (a *recordingApp) HandleMessage(_ context.Context, id core.SessionID, data []byte) ([]core.Outbound, error) {
	if string(data) == "bad" {
		return nil, errors.New("bad frame")
	}
	a.record("data:" + id.String() + ":" + string(data))
	return []core.Outbound{core.Broadcast(core.EventChatMessage, string(data))}, nil
}

func (a *recordingApp) Tick(context.Context) []core.Outbound {
	a.mu.Lock()
	a.ticks++
	a.mu.Unlock()
	return nil
}

func (a *recordingApp) snapshot() ([]string, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...), a.ticks
}

func receive(t *testing.T, ch <-chan Message) Envelope {
	t.Helper()
	select {
	case msg := <-ch:
		env, err := Decode(msg.Data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Envelope{}
}

func expectSilence(t *testing.T, ch <-chan Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message: %s", msg.Data)
	case <-time.After(30 * time.Millisecond):
	}
}

func startRoom(t *testing.T, app Application, opts ...RoomOption) (*SimplePubSub, func()) {
	t.Helper()
	ps := NewSimplePubSub()
	room := NewRoom("test", ps, app, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		room.Run(ctx)
		close(done)
	}()
	// Run が受信箱を購読するまで待つ
	deadline := time.Now().Add(time.Second)
	for {
		ps.mu.RLock()
		n := len(ps.subs[RoomTopic("test")])
		ps.mu.RUnlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("room did not subscribe to inbox")
		}
		time.Sleep(time.Millisecond)
	}
	return ps, func() {
		cancel()
		<-done
	}
}

func TestRoom_JoinDataLeaveFanOut(t *testing.T) {
	app := &recordingApp{}
	ps, stop := startRoom(t, app)
	defer stop()
	ctx := context.Background()

	a := ps.Subscribe(SessionTopic("a"))
	b := ps.Subscribe(SessionTopic("b"))

	ps.Publish(ctx, RoomTopic("test"), Message{Kind: MessageJoin, SessionID: "a"})
	if env := receive(t, a); env.Event != core.EventSessionAssigned {
		t.Fatalf("a expected sessionAssigned, got %s", env.Event)
	}

	ps.Publish(ctx, RoomTopic("test"), Message{Kind: MessageJoin, SessionID: "b"})
	if env := receive(t, b); env.Event != core.EventSessionAssigned {
		t.Fatalf("b expected sessionAssigned, got %s", env.Event)
	}
	if env := receive(t, a); env.Event != core.EventPlayerJoined {
		t.Fatalf("a expected playerJoined for b, got %s", env.Event)
	}
	expectSilence(t, b)

	ps.Publish(ctx, RoomTopic("test"), Message{Kind: MessageData, SessionID: "a", Data: []byte("gg")})
	for _, ch := range []<-chan Message{a, b} {
		env := receive(t, ch)
		var msg string
		if err := json.Unmarshal(env.Data, &msg); err != nil || env.Event != core.EventChatMessage || msg != "gg" {
			t.Fatalf("unexpected broadcast %+v (%v)", env, err)
		}
	}

	ps.Publish(ctx, RoomTopic("test"), Message{Kind: MessageLeave, SessionID: "a"})
	if env := receive(t, b); env.Event != core.EventPlayerLeft {
		t.Fatalf("b expected playerLeft, got %s", env.Event)
	}
	expectSilence(t, a)

	events, _ := app.snapshot()
	want := []string{"connect:a", "connect:b", "data:a:gg", "disconnect:a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestRoom_IgnoresDataFromUnknownSessionAndBadFrames(t *testing.T) {
	app := &recordingApp{}
	ps, stop := startRoom(t, app)
	defer stop()
	ctx := context.Background()

	a := ps.Subscribe(SessionTopic("a"))
	ps.Publish(ctx, RoomTopic("test"), Message{Kind: MessageData, SessionID: "a", Data: []byte("early")})
	ps.Publish(ctx, RoomTopic("test"), Message{Kind: MessageJoin, SessionID: "a"})
	receive(t, a)
	ps.Publish(ctx, RoomTopic("test"), Message{Kind: MessageData, SessionID: "a", Data: []byte("bad")})
	ps.Publish(ctx, RoomTopic("test"), Message{Kind: MessageLeave, SessionID: "ghost"})
	expectSilence(t, a)

	events, _ := app.snapshot()
	if len(events) != 1 || events[0] != "connect:a" {
		t.Fatalf("unexpected events: %v", events)
	}
}

func TestRoom_RunsScheduledTasksAndTicks(t *testing.T) {
	app := &recordingApp{}
	sched := NewTimerScheduler(4)
	ps, stop := startRoom(t, app, WithScheduler(sched), WithSweepInterval(10*time.Millisecond))
	defer stop()
	ctx := context.Background()

	a := ps.Subscribe(SessionTopic("a"))
	ps.Publish(ctx, RoomTopic("test"), Message{Kind: MessageJoin, SessionID: "a"})
	receive(t, a)

	sched.Schedule(5*time.Millisecond, func(context.Context) []core.Outbound {
		return []core.Outbound{core.Broadcast(core.EventPlayerRespawned, map[string]int{"health": 100})}
	})
	if env := receive(t, a); env.Event != core.EventPlayerRespawned {
		t.Fatalf("expected playerRespawned, got %s", env.Event)
	}

	deadline := time.Now().Add(time.Second)
	for {
		if _, ticks := app.snapshot(); ticks > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Tick was never called")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
