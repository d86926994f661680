package request

import (
	"encoding/json"
	"time"

	"skirmish/domain"
)

// Meta はメッセージ共通の情報を保持する。JSON には含まれず、サーバー側で埋める。
type Meta struct {
	// SessionID は送信元セッション。
	SessionID domain.SessionID
	// ReceivedAt はルームのループがメッセージを受け取った時刻。
	ReceivedAt time.Time
}

// Join は playerJoin のペイロード。省略されたフィールドはデフォルト値で補う。
type Join struct {
	Meta        Meta         `json:"-"`
	Nickname    string       `json:"nickname"`
	Position    *domain.Vec3 `json:"position"`
	Rotation    *float64     `json:"rotation"`
	Color       string       `json:"color"`
	MachineType string       `json:"machineType"`
	Health      *int         `json:"health"`
	MaxHealth   *int         `json:"maxHealth"`
}

// Update は playerUpdate のペイロード。nil のフィールドは変更しない。
type Update struct {
	Meta     Meta         `json:"-"`
	Position *domain.Vec3 `json:"position"`
	Rotation *float64     `json:"rotation"`
	Velocity *domain.Vec3 `json:"velocity"`
	Health   *int         `json:"health"`
}

// Shoot は playerShoot のペイロード。
type Shoot struct {
	Meta      Meta        `json:"-"`
	Position  domain.Vec3 `json:"position"`
	Direction domain.Vec3 `json:"direction"`
	Speed     float64     `json:"speed"`
	Damage    int         `json:"damage"`
}

// Hit は playerHit のペイロード。SourceID が空なら送信元セッションを使う。
type Hit struct {
	Meta     Meta             `json:"-"`
	PlayerID domain.SessionID `json:"playerId"`
	Damage   int              `json:"damage"`
	SourceID domain.SessionID `json:"sourceId"`
}

// Turrets は turretUpdate のペイロード。中身は解釈しない。
type Turrets struct {
	Meta     Meta
	Snapshot json.RawMessage
}

// Chat は chatMessage / chat のペイロード。
type Chat struct {
	Meta     Meta   `json:"-"`
	Message  string `json:"message"`
	Nickname string `json:"nickname"`
}
