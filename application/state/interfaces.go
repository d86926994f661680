package state

import (
	"context"
	"encoding/json"
	"time"

	"skirmish/domain"
)

// GameState はルーム1つ分の権威的なゲーム状態です。
// Room のループからのみ呼ばれる前提で、内部にロックを持ちません。
type GameState interface {
	UpsertPlayer(id domain.SessionID, patch domain.PlayerPatch, now time.Time) (domain.Player, error)
	Player(id domain.SessionID) (domain.Player, bool)
	AdjustHealth(id domain.SessionID, damage int, now time.Time) (player domain.Player, lethal bool, err error)
	Respawn(id domain.SessionID, pos domain.Vec3, now time.Time) (domain.Player, error)
	RemovePlayer(id domain.SessionID) bool
	ReplaceTurrets(snapshot json.RawMessage, now time.Time)
	AppendProjectile(p domain.Projectile, now time.Time)
	AllPlayers() []domain.Player
	StaleSince(cutoff time.Time) []domain.Player
	Snapshot() domain.GameSnapshot
	// PlayerCount は他の goroutine からも呼べます。
	PlayerCount() int
}

// SessionRegistry は接続中セッションの参加順とタレット権限を管理します。
type SessionRegistry interface {
	// Admit はセッションを登録し、権限保持者がいなければ付与します。
	Admit(id domain.SessionID) (hostChanged bool)
	// Release はセッションを外し、権限保持者だった場合は最古のセッションへ移します。
	Release(id domain.SessionID) (newHost domain.SessionID, hostChanged bool)
	Host() (domain.SessionID, bool)
	IsHost(id domain.SessionID) bool
	Contains(id domain.SessionID) bool
	Sessions() []domain.SessionID
}

type MetricsRecorder interface {
	RecordLatency(ctx context.Context, event string, duration time.Duration)
	IncrementCounter(ctx context.Context, name string, delta int)
}
