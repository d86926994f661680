package domain

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SessionID は1接続を識別する不透明なIDです。プレイヤーIDと同じ値を使います。
type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

func (id SessionID) String() string { return string(id) }

func (id SessionID) IsEmpty() bool { return id == "" }

// IdleReason はどの方向のアクティビティが途絶えたかをビットマスクで表します。
type IdleReason uint8

const (
	IdleNone     IdleReason = 0
	IdleRead     IdleReason = 1 << 0
	IdleWrite    IdleReason = 1 << 1
	IdlePong     IdleReason = 1 << 2
	IdleDisabled IdleReason = 1 << 7 // timeout<=0 のとき
)

func (r IdleReason) Has(x IdleReason) bool { return r&x != 0 }

func (r IdleReason) String() string {
	switch r {
	case IdleNone:
		return "none"
	case IdleDisabled:
		return "disabled"
	}
	out := ""
	for _, f := range []struct {
		bit  IdleReason
		name string
	}{{IdleRead, "read"}, {IdleWrite, "write"}, {IdlePong, "pong"}} {
		if !r.Has(f.bit) {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += f.name
	}
	if out == "" {
		return fmt.Sprintf("unknown(%d)", r)
	}
	return out
}

// Session は1接続の論理的な接続状態を表す構造体です。
type Session struct {
	id        SessionID
	createdAt time.Time

	// activity
	lastRead  atomic.Int64
	lastWrite atomic.Int64
	lastPong  atomic.Int64

	// lifecycle
	closed atomic.Bool
}

func NewSession() *Session {
	return newSessionAt(NewSessionID(), time.Now())
}

func newSessionAt(id SessionID, now time.Time) *Session {
	s := &Session{id: id, createdAt: now}
	ts := now.UnixNano()
	s.lastRead.Store(ts)
	s.lastWrite.Store(ts)
	s.lastPong.Store(ts)
	return s
}

func (s *Session) ID() SessionID { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) TouchRead() {
	s.lastRead.Store(time.Now().UnixNano())
}

func (s *Session) TouchWrite() {
	s.lastWrite.Store(time.Now().UnixNano())
}

func (s *Session) TouchPong() {
	s.lastPong.Store(time.Now().UnixNano())
}

// Close はセッションを閉じます。最初の呼び出しのみ true を返します。
func (s *Session) Close() bool {
	return s.closed.CompareAndSwap(false, true)
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// IsIdle は mask で指定した方向のうち timeout を超えて途絶えているものを返します。
func (s *Session) IsIdle(timeout time.Duration, mask IdleReason) (bool, IdleReason) {
	if timeout <= 0 {
		return false, IdleDisabled
	}
	var reason IdleReason
	if mask.Has(IdleRead) && isIdleSince(s.lastRead.Load(), timeout) {
		reason |= IdleRead
	}
	if mask.Has(IdleWrite) && isIdleSince(s.lastWrite.Load(), timeout) {
		reason |= IdleWrite
	}
	if mask.Has(IdlePong) && isIdleSince(s.lastPong.Load(), timeout) {
		reason |= IdlePong
	}
	return reason != IdleNone, reason
}

func isIdleSince(lastNano int64, timeout time.Duration) bool {
	return time.Since(time.Unix(0, lastNano)) > timeout
}
