package memory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"skirmish/application/state"
	"skirmish/domain"
)

var (
	ErrPlayerNotFound = errors.New("memory: player not found")
)

var emptyTurrets = json.RawMessage("[]")

// DefaultProjectileTTL は弾の記録を保持する期間です。
const DefaultProjectileTTL = 10 * time.Second

// Store はインメモリのゲーム状態を保持するストレージ。
// ルームのループが唯一の書き手なのでロックは持たない。人数だけは health エンドポイントから読まれるため atomic。
type Store struct {
	players     map[domain.SessionID]*domain.Player
	turrets     json.RawMessage
	projectiles []domain.Projectile
	lastUpdate  time.Time

	projectileTTL time.Duration
	count         atomic.Int64
}

// NewStore は空のストアを生成する。ttl<=0 なら DefaultProjectileTTL。
func NewStore(projectileTTL time.Duration) *Store {
	if projectileTTL <= 0 {
		projectileTTL = DefaultProjectileTTL
	}
	return &Store{
		players:       make(map[domain.SessionID]*domain.Player),
		turrets:       emptyTurrets,
		projectileTTL: projectileTTL,
	}
}

// UpsertPlayer は既存レコードへ patch をマージし、無ければデフォルト値で生成してからマージする。
func (s *Store) UpsertPlayer(id domain.SessionID, patch domain.PlayerPatch, now time.Time) (domain.Player, error) {
	player, ok := s.players[id]
	if !ok {
		p := domain.NewPlayer(id, now)
		player = &p
	}
	if err := player.ApplyPatch(patch, now); err != nil {
		return copyPlayer(player), fmt.Errorf("upsert %s: %w", id, err)
	}
	if !ok {
		s.players[id] = player
		s.count.Add(1)
	}
	s.lastUpdate = now
	return copyPlayer(player), nil
}

func (s *Store) Player(id domain.SessionID) (domain.Player, bool) {
	player, ok := s.players[id]
	if !ok {
		return domain.Player{}, false
	}
	return copyPlayer(player), true
}

// AdjustHealth は damage を体力から引く。体力は 0 で止まり、同時に Dead へ遷移する。
func (s *Store) AdjustHealth(id domain.SessionID, damage int, now time.Time) (domain.Player, bool, error) {
	player, err := s.getPlayer(id)
	if err != nil {
		return domain.Player{}, false, err
	}
	lethal, err := player.ApplyDamage(damage)
	if err != nil {
		return copyPlayer(player), false, fmt.Errorf("damage %s: %w", id, err)
	}
	s.lastUpdate = now
	return copyPlayer(player), lethal, nil
}

func (s *Store) Respawn(id domain.SessionID, pos domain.Vec3, now time.Time) (domain.Player, error) {
	player, err := s.getPlayer(id)
	if err != nil {
		return domain.Player{}, err
	}
	if err := player.Respawn(pos, now); err != nil {
		return copyPlayer(player), fmt.Errorf("respawn %s: %w", id, err)
	}
	s.lastUpdate = now
	return copyPlayer(player), nil
}

func (s *Store) RemovePlayer(id domain.SessionID) bool {
	if _, ok := s.players[id]; !ok {
		return false
	}
	delete(s.players, id)
	s.count.Add(-1)
	return true
}

// ReplaceTurrets はタレット状態を丸ごと置き換える。中身は検証しない。空と null は [] として持つ。
func (s *Store) ReplaceTurrets(snapshot json.RawMessage, now time.Time) {
	snapshot = bytes.TrimSpace(snapshot)
	if len(snapshot) == 0 || bytes.Equal(snapshot, []byte("null")) {
		snapshot = emptyTurrets
	}
	s.turrets = slices.Clone(snapshot)
	s.lastUpdate = now
}

// AppendProjectile は弾を追加し、同じ操作の中で TTL を過ぎた弾を取り除く。
func (s *Store) AppendProjectile(p domain.Projectile, now time.Time) {
	s.projectiles = append(s.projectiles, p)
	s.projectiles = slices.DeleteFunc(s.projectiles, func(existing domain.Projectile) bool {
		return now.Sub(existing.CreatedAt()) >= s.projectileTTL
	})
	s.lastUpdate = now
}

// AllPlayers は ID 順のコピーを返す。
func (s *Store) AllPlayers() []domain.Player {
	out := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, copyPlayer(p))
	}
	slices.SortFunc(out, func(a, b domain.Player) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

// StaleSince は cutoff より前に最終更新されたプレイヤーを返す。
func (s *Store) StaleSince(cutoff time.Time) []domain.Player {
	var out []domain.Player
	for _, p := range s.AllPlayers() {
		if p.LastUpdated().Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) Snapshot() domain.GameSnapshot {
	players := make(map[domain.SessionID]domain.Player, len(s.players))
	for id, p := range s.players {
		players[id] = copyPlayer(p)
	}
	projectiles := make([]domain.Projectile, len(s.projectiles))
	copy(projectiles, s.projectiles)
	var last int64
	if !s.lastUpdate.IsZero() {
		last = s.lastUpdate.UnixMilli()
	}
	return domain.GameSnapshot{
		Players:     players,
		Turrets:     slices.Clone(s.turrets),
		Projectiles: projectiles,
		LastUpdate:  last,
	}
}

func (s *Store) PlayerCount() int {
	return int(s.count.Load())
}

func (s *Store) getPlayer(id domain.SessionID) (*domain.Player, error) {
	player, ok := s.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}
	return player, nil
}

func copyPlayer(p *domain.Player) domain.Player {
	c := *p
	if p.Velocity != nil {
		v := *p.Velocity
		c.Velocity = &v
	}
	return c
}

var _ state.GameState = (*Store)(nil)
