package domain

import (
	"encoding/json"
	"errors"
	"time"
)

const DefaultMaxHealth = 100

var (
	// ErrPlayerDead は死亡中のプレイヤーに移動・被弾を適用しようとした場合に返されます。
	ErrPlayerDead = errors.New("player is dead")
	// ErrPlayerAlive は生存中のプレイヤーをリスポーンさせようとした場合に返されます。
	ErrPlayerAlive = errors.New("player is not dead")
)

// Vec3 はワールド座標です。
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DefaultSpawnPosition は playerJoin に position が無い場合の初期位置です。
var DefaultSpawnPosition = Vec3{X: 0, Y: 0.5, Z: 0}

// LifeState はプレイヤーの状態遷移を表します。
// Unjoined はストアにレコードが無い状態、Removed はレコード削除後の状態なので値を持ちません。
type LifeState uint8

const (
	LifeActive LifeState = iota + 1
	LifeDead
)

func (l LifeState) String() string {
	switch l {
	case LifeActive:
		return "active"
	case LifeDead:
		return "dead"
	default:
		return "unknown"
	}
}

func (l LifeState) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Player はアプリケーションが扱うプレイヤーの権威的な状態。
type Player struct {
	ID          SessionID `json:"id"`
	Nickname    string    `json:"nickname"`
	Position    Vec3      `json:"position"`
	Rotation    float64   `json:"rotation"`
	Velocity    *Vec3     `json:"velocity,omitempty"`
	Color       string    `json:"color"`
	MachineType string    `json:"machineType"`
	Health      int       `json:"health"`
	MaxHealth   int       `json:"maxHealth"`
	State       LifeState `json:"state"`
	LastUpdate  int64     `json:"lastUpdate"`

	lastUpdated time.Time
}

// LastUpdated はサーバー側で最後に更新された時刻を返します。
func (p Player) LastUpdated() time.Time { return p.lastUpdated }

// Touch は最終更新時刻を刻みます。
func (p *Player) Touch(now time.Time) {
	p.lastUpdated = now
	p.LastUpdate = now.UnixMilli()
}

// PlayerPatch は playerJoin / playerUpdate で部分的に上書きするフィールド。nil は変更なし。
type PlayerPatch struct {
	Nickname    *string
	Position    *Vec3
	Rotation    *float64
	Velocity    *Vec3
	Color       *string
	MachineType *string
	Health      *int
	MaxHealth   *int
}

// NewPlayer は Unjoined → Active の遷移で生成されるレコードを返します。
func NewPlayer(id SessionID, now time.Time) Player {
	p := Player{
		ID:        id,
		Position:  DefaultSpawnPosition,
		Health:    DefaultMaxHealth,
		MaxHealth: DefaultMaxHealth,
		State:     LifeActive,
	}
	p.Touch(now)
	return p
}

// ApplyPatch は Active → Active の遷移です。死亡中は ErrPlayerDead を返し何も変更しません。
// クライアント申告の体力は 1 で止めます。0 になるのは ApplyDamage だけです。
func (p *Player) ApplyPatch(patch PlayerPatch, now time.Time) error {
	if p.State == LifeDead {
		return ErrPlayerDead
	}
	if patch.Nickname != nil {
		p.Nickname = *patch.Nickname
	}
	if patch.Position != nil {
		p.Position = *patch.Position
	}
	if patch.Rotation != nil {
		p.Rotation = *patch.Rotation
	}
	if patch.Velocity != nil {
		v := *patch.Velocity
		p.Velocity = &v
	}
	if patch.Color != nil {
		p.Color = *patch.Color
	}
	if patch.MachineType != nil {
		p.MachineType = *patch.MachineType
	}
	if patch.MaxHealth != nil && *patch.MaxHealth >= 1 {
		p.MaxHealth = *patch.MaxHealth
	}
	if patch.Health != nil {
		p.Health = *patch.Health
	}
	p.Health = max(clampHealth(p.Health, p.MaxHealth), 1)
	p.Touch(now)
	return nil
}

// ApplyDamage は health を減らし、0 以下になった場合は Dead へ遷移して lethal=true を返します。
// 体力は 0 で止めます。
func (p *Player) ApplyDamage(damage int) (lethal bool, err error) {
	if p.State == LifeDead {
		return false, ErrPlayerDead
	}
	p.Health = clampHealth(p.Health-damage, p.MaxHealth)
	if p.Health <= 0 {
		p.State = LifeDead
		return true, nil
	}
	return false, nil
}

// Respawn は Dead → Active の遷移です。
func (p *Player) Respawn(pos Vec3, now time.Time) error {
	if p.State != LifeDead {
		return ErrPlayerAlive
	}
	p.State = LifeActive
	p.Health = p.MaxHealth
	p.Position = pos
	p.Velocity = nil
	p.Touch(now)
	return nil
}

func clampHealth(health, maxHealth int) int {
	if health < 0 {
		return 0
	}
	if health > maxHealth {
		return maxHealth
	}
	return health
}

// Projectile は発射された弾のブロードキャスト用の短命な記録です。
type Projectile struct {
	ID        string    `json:"id"`
	PlayerID  SessionID `json:"playerId"`
	Position  Vec3      `json:"position"`
	Direction Vec3      `json:"direction"`
	Speed     float64   `json:"speed"`
	Damage    int       `json:"damage"`
	Timestamp int64     `json:"timestamp"`
}

// CreatedAt は Timestamp（ミリ秒）を時刻に戻します。
func (p Projectile) CreatedAt() time.Time { return time.UnixMilli(p.Timestamp) }

// GameSnapshot は gameState メッセージで新規接続へ送る全体状態。
type GameSnapshot struct {
	Players     map[SessionID]Player `json:"players"`
	Turrets     json.RawMessage      `json:"turrets"`
	Projectiles []Projectile         `json:"projectiles"`
	LastUpdate  int64                `json:"lastUpdate"`
}
