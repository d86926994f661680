package domain

import (
	"context"
	"time"
)

// クライアント → サーバー
const (
	EventPlayerJoin   = "playerJoin"
	EventPlayerUpdate = "playerUpdate"
	EventPlayerShoot  = "playerShoot"
	EventPlayerHit    = "playerHit"
	EventTurretUpdate = "turretUpdate"
	EventChat         = "chat"
)

// サーバー → クライアント
const (
	EventSessionAssigned   = "sessionAssigned"
	EventGameState         = "gameState"
	EventPlayerJoined      = "playerJoined"
	EventPlayerMoved       = "playerMoved"
	EventProjectileCreated = "projectileCreated"
	EventPlayerDamaged     = "playerDamaged"
	EventPlayerDied        = "playerDied"
	EventPlayerRespawned   = "playerRespawned"
	EventTurretsUpdated    = "turretsUpdated"
	EventTurretAuthority   = "turretAuthority"
	EventPlayerLeft        = "playerLeft"
)

// EventChatMessage は双方向で使われます。
const EventChatMessage = "chatMessage"

// Audience は送信先の範囲です。
type Audience uint8

const (
	// ToSession は SessionID のセッションのみ。
	ToSession Audience = iota + 1
	// ToAll は接続中の全セッション。
	ToAll
	// ToOthers は SessionID 以外の全セッション。
	ToOthers
)

func (a Audience) String() string {
	switch a {
	case ToSession:
		return "session"
	case ToAll:
		return "all"
	case ToOthers:
		return "others"
	default:
		return "unknown"
	}
}

// Outbound はイベントルーターが決定した1件の送信です。エンコードはサーバー層が行います。
type Outbound struct {
	Audience  Audience
	SessionID SessionID
	Event     string
	Payload   any
}

func SendTo(id SessionID, event string, payload any) Outbound {
	return Outbound{Audience: ToSession, SessionID: id, Event: event, Payload: payload}
}

func Broadcast(event string, payload any) Outbound {
	return Outbound{Audience: ToAll, Event: event, Payload: payload}
}

func BroadcastExcept(id SessionID, event string, payload any) Outbound {
	return Outbound{Audience: ToOthers, SessionID: id, Event: event, Payload: payload}
}

// Task は Room のループ上で実行される遅延処理です。
type Task func(ctx context.Context) []Outbound

// TaskHandle は予約済み Task の取り消しハンドル。
type TaskHandle interface {
	// Cancel は未実行の Task を取り消します。取り消せた場合のみ true。
	Cancel() bool
}

// Scheduler は delay 経過後に Room のループへ Task を投入します。
type Scheduler interface {
	Schedule(delay time.Duration, task Task) TaskHandle
}
