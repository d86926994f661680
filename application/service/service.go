package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"skirmish/application/request"
	"skirmish/application/response"
	"skirmish/application/state"
	"skirmish/domain"
	"skirmish/utils"
)

var (
	ErrInvalidPayload     = errors.New("service: invalid payload")
	ErrUnknownPlayer      = errors.New("service: unknown player")
	ErrNotTurretAuthority = errors.New("service: sender does not hold turret authority")
)

const defaultNickname = "Pilot"

// Rules はゲームの定数群。
type Rules struct {
	MaxHealth         int
	RespawnDelay      time.Duration
	StaleAfter        time.Duration
	SpawnRange        float64
	SpawnHeight       float64
	MaxNicknameLength int
	MaxChatLength     int
}

func DefaultRules() Rules {
	return Rules{
		MaxHealth:         domain.DefaultMaxHealth,
		RespawnDelay:      5 * time.Second,
		StaleAfter:        60 * time.Second,
		SpawnRange:        150,
		SpawnHeight:       0.5,
		MaxNicknameLength: 24,
		MaxChatLength:     500,
	}
}

// Dependencies は GameService に注入するもの。Rand は省略可能。
type Dependencies struct {
	State     state.GameState
	Registry  state.SessionRegistry
	Metrics   state.MetricsRecorder
	Clock     Clock
	Validator Validator
	Scheduler domain.Scheduler
	Rand      *rand.Rand
}

// GameService はクライアントイベントごとのハンドラを持つイベントルーター。
// Room のループからのみ呼ばれるため、内部状態はロックしない。
type GameService struct {
	state     state.GameState
	registry  state.SessionRegistry
	metrics   state.MetricsRecorder
	clock     Clock
	validate  Validator
	scheduler domain.Scheduler
	rng       *rand.Rand
	rules     Rules

	respawns map[domain.SessionID]domain.TaskHandle
}

func NewGameService(deps Dependencies, rules Rules) (*GameService, error) {
	if deps.State == nil || deps.Registry == nil || deps.Metrics == nil || deps.Clock == nil || deps.Validator == nil || deps.Scheduler == nil {
		return nil, fmt.Errorf("service: missing dependencies: %+v", deps)
	}
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if rules.MaxHealth < 1 {
		rules.MaxHealth = domain.DefaultMaxHealth
	}
	return &GameService{
		state:     deps.State,
		registry:  deps.Registry,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		validate:  deps.Validator,
		scheduler: deps.Scheduler,
		rng:       rng,
		rules:     rules,
		respawns:  make(map[domain.SessionID]domain.TaskHandle),
	}, nil
}

// Connect はセッションを登録し、本人へ sessionAssigned と gameState を送る。
func (s *GameService) Connect(ctx context.Context, id domain.SessionID) []domain.Outbound {
	start := s.clock.Now()
	defer s.record(ctx, "connect", start)

	hostChanged := s.registry.Admit(id)
	out := []domain.Outbound{
		domain.SendTo(id, domain.EventSessionAssigned, response.SessionAssigned{ID: id, Host: s.registry.IsHost(id)}),
		domain.SendTo(id, domain.EventGameState, s.state.Snapshot()),
	}
	if hostChanged {
		host, _ := s.registry.Host()
		out = append(out, domain.Broadcast(domain.EventTurretAuthority, response.TurretAuthority{ID: host}))
	}
	return out
}

// Disconnect はプレイヤーを削除し、保留中のリスポーンを取り消す。
func (s *GameService) Disconnect(ctx context.Context, id domain.SessionID) []domain.Outbound {
	start := s.clock.Now()
	defer s.record(ctx, "disconnect", start)

	s.cancelRespawn(id)
	var out []domain.Outbound
	if s.state.RemovePlayer(id) {
		out = append(out, domain.BroadcastExcept(id, domain.EventPlayerLeft, response.PlayerLeft{ID: id}))
	}
	if newHost, changed := s.registry.Release(id); changed && !newHost.IsEmpty() {
		out = append(out, domain.Broadcast(domain.EventTurretAuthority, response.TurretAuthority{ID: newHost}))
	}
	return out
}

func (s *GameService) Join(ctx context.Context, req request.Join) ([]domain.Outbound, error) {
	start := s.clock.Now()
	defer s.record(ctx, domain.EventPlayerJoin, start)

	if err := s.validate.Join(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	id := req.Meta.SessionID
	player, err := s.state.UpsertPlayer(id, s.joinPatch(req), req.Meta.ReceivedAt)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "player joined", "session_id", id, "nickname", player.Nickname, "machine", player.MachineType)
	return []domain.Outbound{domain.BroadcastExcept(id, domain.EventPlayerJoined, player)}, nil
}

func (s *GameService) joinPatch(req request.Join) domain.PlayerPatch {
	nickname := utils.Truncate(req.Nickname, s.rules.MaxNicknameLength)
	if nickname == "" {
		nickname = defaultNickname
	}
	position := domain.DefaultSpawnPosition
	if req.Position != nil {
		position = *req.Position
	}
	var rotation float64
	if req.Rotation != nil {
		rotation = *req.Rotation
	}
	maxHealth := s.rules.MaxHealth
	if req.MaxHealth != nil {
		maxHealth = *req.MaxHealth
	}
	health := maxHealth
	if req.Health != nil {
		health = *req.Health
	}
	return domain.PlayerPatch{
		Nickname:    &nickname,
		Position:    &position,
		Rotation:    &rotation,
		Color:       &req.Color,
		MachineType: &req.MachineType,
		Health:      &health,
		MaxHealth:   &maxHealth,
	}
}

// Update は移動情報をマージし、送信者以外へ playerMoved を送る。死亡中は拒否する。
func (s *GameService) Update(ctx context.Context, req request.Update) ([]domain.Outbound, error) {
	start := s.clock.Now()
	defer s.record(ctx, domain.EventPlayerUpdate, start)

	if err := s.validate.Update(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	id := req.Meta.SessionID
	if _, ok := s.state.Player(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	player, err := s.state.UpsertPlayer(id, domain.PlayerPatch{
		Position: req.Position,
		Rotation: req.Rotation,
		Velocity: req.Velocity,
		Health:   req.Health,
	}, req.Meta.ReceivedAt)
	if err != nil {
		return nil, err
	}
	moved := response.PlayerMoved{
		ID:       id,
		Position: req.Position,
		Rotation: req.Rotation,
		Velocity: req.Velocity,
	}
	if req.Health != nil {
		health := player.Health
		moved.Health = &health
	}
	return []domain.Outbound{domain.BroadcastExcept(id, domain.EventPlayerMoved, moved)}, nil
}

// Shoot は弾を記録し、送信者を含む全員へ projectileCreated を送る。
func (s *GameService) Shoot(ctx context.Context, req request.Shoot) ([]domain.Outbound, error) {
	start := s.clock.Now()
	defer s.record(ctx, domain.EventPlayerShoot, start)

	if err := s.validate.Shoot(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	id := req.Meta.SessionID
	shooter, ok := s.state.Player(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	if shooter.State == domain.LifeDead {
		return nil, fmt.Errorf("shoot %s: %w", id, domain.ErrPlayerDead)
	}
	now := req.Meta.ReceivedAt
	projectile := domain.Projectile{
		ID:        fmt.Sprintf("%s-%d", id, now.UnixMilli()),
		PlayerID:  id,
		Position:  req.Position,
		Direction: req.Direction,
		Speed:     req.Speed,
		Damage:    req.Damage,
		Timestamp: now.UnixMilli(),
	}
	s.state.AppendProjectile(projectile, now)
	return []domain.Outbound{domain.Broadcast(domain.EventProjectileCreated, projectile)}, nil
}

// Hit は対象の体力を減らす。致死なら playerDied を送りリスポーンを予約する。
func (s *GameService) Hit(ctx context.Context, req request.Hit) ([]domain.Outbound, error) {
	start := s.clock.Now()
	defer s.record(ctx, domain.EventPlayerHit, start)

	if err := s.validate.Hit(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	source := req.SourceID
	if source.IsEmpty() {
		source = req.Meta.SessionID
	}
	if _, ok := s.state.Player(req.PlayerID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, req.PlayerID)
	}
	target, lethal, err := s.state.AdjustHealth(req.PlayerID, req.Damage, req.Meta.ReceivedAt)
	if err != nil {
		return nil, err
	}
	if !lethal {
		return []domain.Outbound{domain.Broadcast(domain.EventPlayerDamaged, response.PlayerDamaged{
			ID:       target.ID,
			Health:   target.Health,
			Damage:   req.Damage,
			SourceID: source,
		})}, nil
	}

	slog.InfoContext(ctx, "player killed", "player_id", target.ID, "killed_by", source)
	s.scheduleRespawn(target.ID)
	return []domain.Outbound{domain.Broadcast(domain.EventPlayerDied, response.PlayerDied{ID: target.ID, KilledBy: source})}, nil
}

// UpdateTurrets はタレット権限を持つセッションからのみ受け付ける。
func (s *GameService) UpdateTurrets(ctx context.Context, req request.Turrets) ([]domain.Outbound, error) {
	start := s.clock.Now()
	defer s.record(ctx, domain.EventTurretUpdate, start)

	id := req.Meta.SessionID
	if !s.registry.IsHost(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotTurretAuthority, id)
	}
	if isEmptyJSON(req.Snapshot) {
		return nil, fmt.Errorf("%w: empty turret snapshot", ErrInvalidPayload)
	}
	s.state.ReplaceTurrets(req.Snapshot, req.Meta.ReceivedAt)
	return []domain.Outbound{domain.BroadcastExcept(id, domain.EventTurretsUpdated, s.state.Snapshot().Turrets)}, nil
}

// Chat は送信者が名乗ったニックネームのまま全員へ中継する。
func (s *GameService) Chat(ctx context.Context, req request.Chat) ([]domain.Outbound, error) {
	start := s.clock.Now()
	defer s.record(ctx, domain.EventChat, start)

	if err := s.validate.Chat(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	id := req.Meta.SessionID
	nickname := utils.Truncate(req.Nickname, s.rules.MaxNicknameLength)
	if nickname == "" {
		if player, ok := s.state.Player(id); ok {
			nickname = player.Nickname
		} else {
			nickname = defaultNickname
		}
	}
	return []domain.Outbound{domain.Broadcast(domain.EventChatMessage, response.ChatMessage{
		PlayerID:  id,
		Nickname:  nickname,
		Message:   utils.Truncate(req.Message, s.rules.MaxChatLength),
		Timestamp: req.Meta.ReceivedAt.UnixMilli(),
	})}, nil
}

// Sweep は StaleAfter を超えて更新の無いプレイヤーを削除し、1人につき1回 playerLeft を送る。
func (s *GameService) Sweep(ctx context.Context) []domain.Outbound {
	start := s.clock.Now()
	defer s.record(ctx, "sweep", start)

	stale := s.state.StaleSince(start.Add(-s.rules.StaleAfter))
	if len(stale) == 0 {
		return nil
	}
	out := make([]domain.Outbound, 0, len(stale))
	for _, p := range stale {
		s.cancelRespawn(p.ID)
		if !s.state.RemovePlayer(p.ID) {
			continue
		}
		slog.InfoContext(ctx, "evicted stale player", "player_id", p.ID, "idle", start.Sub(p.LastUpdated()))
		out = append(out, domain.Broadcast(domain.EventPlayerLeft, response.PlayerLeft{ID: p.ID}))
	}
	return out
}

func (s *GameService) scheduleRespawn(id domain.SessionID) {
	s.cancelRespawn(id)
	s.respawns[id] = s.scheduler.Schedule(s.rules.RespawnDelay, func(ctx context.Context) []domain.Outbound {
		return s.respawn(ctx, id)
	})
}

func (s *GameService) respawn(ctx context.Context, id domain.SessionID) []domain.Outbound {
	delete(s.respawns, id)
	player, ok := s.state.Player(id)
	if !ok || player.State != domain.LifeDead {
		return nil
	}
	player, err := s.state.Respawn(id, s.spawnPosition(), s.clock.Now())
	if err != nil {
		slog.WarnContext(ctx, "respawn failed", "player_id", id, "error", err)
		return nil
	}
	return []domain.Outbound{domain.Broadcast(domain.EventPlayerRespawned, response.PlayerRespawned{
		ID:       id,
		Position: player.Position,
		Health:   player.Health,
	})}
}

func (s *GameService) cancelRespawn(id domain.SessionID) {
	if handle, ok := s.respawns[id]; ok {
		handle.Cancel()
		delete(s.respawns, id)
	}
}

func (s *GameService) spawnPosition() domain.Vec3 {
	r := s.rules.SpawnRange
	return domain.Vec3{
		X: (s.rng.Float64()*2 - 1) * r,
		Y: s.rules.SpawnHeight,
		Z: (s.rng.Float64()*2 - 1) * r,
	}
}

// PendingRespawns は予約中のリスポーン数を返す。
func (s *GameService) PendingRespawns() int {
	return len(s.respawns)
}

func (s *GameService) record(ctx context.Context, event string, started time.Time) {
	duration := s.clock.Since(started)
	s.metrics.RecordLatency(ctx, event, duration)
	s.metrics.IncrementCounter(ctx, "events."+event, 1)
}

// isEmptyJSON は空または null の値を空とみなす。
func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

type Clock interface {
	Now() time.Time
	Since(time.Time) time.Duration
}

// SystemClock は time パッケージの時計。
type SystemClock struct{}

func (SystemClock) Now() time.Time                  { return time.Now() }
func (SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }

type Validator interface {
	Join(request.Join) error
	Update(request.Update) error
	Shoot(request.Shoot) error
	Hit(request.Hit) error
	Chat(request.Chat) error
}
