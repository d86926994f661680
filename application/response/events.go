// Package response はサーバーからクライアントへ送るイベントのペイロードを定義します。
// gameState / playerJoined / projectileCreated / turretsUpdated は domain の型をそのまま送ります。
package response

import "skirmish/domain"

type SessionAssigned struct {
	ID   domain.SessionID `json:"id"`
	Host bool             `json:"host"`
}

// PlayerMoved は playerUpdate で受け取ったフィールドに送信者の id を付けたもの。
type PlayerMoved struct {
	ID       domain.SessionID `json:"id"`
	Position *domain.Vec3     `json:"position,omitempty"`
	Rotation *float64         `json:"rotation,omitempty"`
	Velocity *domain.Vec3     `json:"velocity,omitempty"`
	Health   *int             `json:"health,omitempty"`
}

type PlayerDamaged struct {
	ID       domain.SessionID `json:"id"`
	Health   int              `json:"health"`
	Damage   int              `json:"damage"`
	SourceID domain.SessionID `json:"sourceId"`
}

type PlayerDied struct {
	ID       domain.SessionID `json:"id"`
	KilledBy domain.SessionID `json:"killedBy"`
}

type PlayerRespawned struct {
	ID       domain.SessionID `json:"id"`
	Position domain.Vec3      `json:"position"`
	Health   int              `json:"health"`
}

type PlayerLeft struct {
	ID domain.SessionID `json:"id"`
}

// TurretAuthority はタレット権限の保持者。保持者がいない場合は id が空。
type TurretAuthority struct {
	ID domain.SessionID `json:"id"`
}

type ChatMessage struct {
	PlayerID  domain.SessionID `json:"playerId"`
	Nickname  string           `json:"nickname"`
	Message   string           `json:"message"`
	Timestamp int64            `json:"timestamp"`
}
