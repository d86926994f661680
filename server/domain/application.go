package domain

import (
	"context"

	core "skirmish/domain"
)

// Application はルームに注入されるゲームロジック。すべて Room のループから呼ばれる。
type Application interface {
	Connect(ctx context.Context, sessionID core.SessionID) []core.Outbound
	Disconnect(ctx context.Context, sessionID core.SessionID) []core.Outbound
	// HandleMessage は受信フレームを処理する。エラーはフレームを解釈できなかった場合のみ。
	HandleMessage(ctx context.Context, sessionID core.SessionID, data []byte) ([]core.Outbound, error)
	// Tick は sweep 間隔ごとに呼ばれる。
	Tick(ctx context.Context) []core.Outbound
}
