package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skirmish/server/config"
	"skirmish/server/domain"
)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, ctx context.Context, url string) *wsClient {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(ctx context.Context, event string, payload any) {
	c.t.Helper()
	frame, err := domain.Encode(event, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.Write(ctx, websocket.MessageText, frame))
}

// expect は次のフレームを読み、イベント名を確かめてから data を out へ戻す。
func (c *wsClient) expect(ctx context.Context, event string, out any) {
	c.t.Helper()
	_, frame, err := c.conn.Read(ctx)
	require.NoError(c.t, err)
	env, err := domain.Decode(frame)
	require.NoError(c.t, err)
	require.Equal(c.t, event, env.Event, "frame: %s", frame)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(env.Data, out))
	}
}

type assigned struct {
	ID   string `json:"id"`
	Host bool   `json:"host"`
}

type joined struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Health   int    `json:"health"`
}

func startArena(t *testing.T) *httptest.Server {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	arena, err := NewArena(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = arena.Room.Run(ctx)
	}()

	srv := httptest.NewServer(arena.Handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv
}

func TestArenaJoinAndLeave(t *testing.T) {
	srv := startArena(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := dial(t, ctx, srv.URL)
	var aInfo assigned
	a.expect(ctx, "sessionAssigned", &aInfo)
	assert.True(t, aInfo.Host)
	a.expect(ctx, "gameState", nil)
	var authority struct {
		ID string `json:"id"`
	}
	a.expect(ctx, "turretAuthority", &authority)
	assert.Equal(t, aInfo.ID, authority.ID)

	b := dial(t, ctx, srv.URL)
	var bInfo assigned
	b.expect(ctx, "sessionAssigned", &bInfo)
	assert.False(t, bInfo.Host)
	assert.NotEqual(t, aInfo.ID, bInfo.ID)
	b.expect(ctx, "gameState", nil)

	a.send(ctx, "playerJoin", map[string]any{"nickname": "Ace"})
	var aJoined joined
	b.expect(ctx, "playerJoined", &aJoined)
	assert.Equal(t, aInfo.ID, aJoined.ID)
	assert.Equal(t, "Ace", aJoined.Nickname)
	assert.Equal(t, 100, aJoined.Health)

	b.send(ctx, "playerJoin", map[string]any{})
	var bJoined joined
	a.expect(ctx, "playerJoined", &bJoined)
	assert.Equal(t, "Pilot", bJoined.Nickname)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var health struct {
		Status  string `json:"status"`
		Players int    `json:"players"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.Players)

	require.NoError(t, b.conn.Close(websocket.StatusNormalClosure, "bye"))
	var left struct {
		ID string `json:"id"`
	}
	a.expect(ctx, "playerLeft", &left)
	assert.Equal(t, bInfo.ID, left.ID)
}

func TestArenaChatRoundTrip(t *testing.T) {
	srv := startArena(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := dial(t, ctx, srv.URL)
	a.expect(ctx, "sessionAssigned", nil)
	a.expect(ctx, "gameState", nil)
	a.expect(ctx, "turretAuthority", nil)

	a.send(ctx, "playerJoin", map[string]any{"nickname": "Ace"})
	a.send(ctx, "chat", map[string]any{"message": "hello"})

	var msg struct {
		Nickname string `json:"nickname"`
		Message  string `json:"message"`
	}
	a.expect(ctx, "chatMessage", &msg)
	assert.Equal(t, "Ace", msg.Nickname)
	assert.Equal(t, "hello", msg.Message)
}
