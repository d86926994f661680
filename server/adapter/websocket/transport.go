package adapterwebsocket

import (
	"context"

	"github.com/coder/websocket"

	core "skirmish/domain"
)

type wsTransport struct {
	conn *websocket.Conn
}

// NewTransportFrom は coder/websocket の接続を Transport に包む。readLimit>0 なら1フレームの上限を設定する。
func NewTransportFrom(conn *websocket.Conn, readLimit int64) core.Transport {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// Ping は pong を受け取るまでブロックする。pong の受信には並行して Read が呼ばれている必要がある。
func (t *wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *wsTransport) Close(code int32, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}
