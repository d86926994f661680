package domain

import (
	"context"
	"errors"
	"sync"

	core "skirmish/domain"
)

//go:generate go tool mockgen -destination=./mocks/pubsub_mock.go -package=mocks . PubSub

var ErrTopicBusy = errors.New("pubsub: subscriber channel is full")

const defaultSubscriberBuffer = 256

type Topic string

// RoomTopic はルームの受信箱。join/data/leave を同じトピックに流し、セッションごとの順序を保つ。
func RoomTopic(id RoomID) Topic { return Topic("room:" + string(id)) }

// SessionTopic はセッション宛の送信トピック。
func SessionTopic(id core.SessionID) Topic { return Topic("session:" + id.String()) }

type MessageKind uint8

const (
	MessageData MessageKind = iota + 1
	MessageJoin
	MessageLeave
)

func (k MessageKind) String() string {
	switch k {
	case MessageData:
		return "data"
	case MessageJoin:
		return "join"
	case MessageLeave:
		return "leave"
	default:
		return "unknown"
	}
}

type Message struct {
	Kind      MessageKind
	SessionID core.SessionID
	Data      []byte
}

type PubSub interface {
	Subscribe(topic Topic) <-chan Message
	Unsubscribe(topic Topic, ch <-chan Message)
	// Publish はブロックしない。受け取れなかった購読者がいれば ErrTopicBusy を返す。
	Publish(ctx context.Context, topic Topic, msg Message) error
}

// SimplePubSub はプロセス内のチャネルだけで動く PubSub 実装。
type SimplePubSub struct {
	mu     sync.RWMutex
	subs   map[Topic][]chan Message
	buffer map[Topic]int
	def    int
}

func NewSimplePubSub() *SimplePubSub {
	return &SimplePubSub{
		subs:   make(map[Topic][]chan Message),
		buffer: make(map[Topic]int),
		def:    defaultSubscriberBuffer,
	}
}

// SetBuffer は以後の Subscribe で作るチャネルのバッファ長をトピック単位で指定する。
func (p *SimplePubSub) SetBuffer(topic Topic, size int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer[topic] = size
}

func (p *SimplePubSub) Subscribe(topic Topic) <-chan Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	size, ok := p.buffer[topic]
	if !ok {
		size = p.def
	}
	ch := make(chan Message, size)
	p.subs[topic] = append(p.subs[topic], ch)
	return ch
}

func (p *SimplePubSub) Unsubscribe(topic Topic, ch <-chan Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs := p.subs[topic]
	for i, c := range subs {
		if c == ch {
			close(c)
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(p.subs, topic)
		return
	}
	p.subs[topic] = subs
}

func (p *SimplePubSub) Publish(ctx context.Context, topic Topic, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	var err error
	for _, ch := range p.subs[topic] {
		select {
		case ch <- msg:
		default:
			err = ErrTopicBusy
		}
	}
	return err
}

var _ PubSub = (*SimplePubSub)(nil)
