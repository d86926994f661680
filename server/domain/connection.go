package domain

import (
	"context"

	core "skirmish/domain"
)

const (
	closeNormal      int32 = 1000
	closePolicyError int32 = 1008
)

// Connection は物理的な接続を表します。
type Connection struct {
	SessionID core.SessionID
	transport core.Transport
}

func NewConnection(sessionID core.SessionID, transport core.Transport) *Connection {
	return &Connection{
		SessionID: sessionID,
		transport: transport,
	}
}

func (c *Connection) Write(ctx context.Context, data []byte) error {
	return c.transport.Write(ctx, data)
}

func (c *Connection) Read(ctx context.Context) ([]byte, error) {
	return c.transport.Read(ctx)
}

func (c *Connection) Ping(ctx context.Context) error {
	return c.transport.Ping(ctx)
}

func (c *Connection) Close() {
	_ = c.transport.Close(closeNormal, "")
}

// CloseWithReason はアイドル切断など理由付きで閉じる。
func (c *Connection) CloseWithReason(reason string) {
	_ = c.transport.Close(closePolicyError, reason)
}
