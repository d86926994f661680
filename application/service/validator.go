package service

import (
	"errors"
	"fmt"
	"strings"

	"skirmish/application/request"
	"skirmish/utils"
)

// SimpleValidator は最低限の入力検証を提供するデフォルト実装。
// 欠けたフィールドはサービス側で補うので、ここでは数値の妥当性と必須 ID だけを見る。
type SimpleValidator struct{}

func (SimpleValidator) Join(req request.Join) error {
	if req.Position != nil && !utils.FiniteVec(*req.Position) {
		return fmt.Errorf("invalid position: %+v", *req.Position)
	}
	if req.Rotation != nil && !utils.IsFinite(*req.Rotation) {
		return errors.New("invalid rotation")
	}
	if req.MaxHealth != nil && *req.MaxHealth < 1 {
		return errors.New("maxHealth must be at least 1")
	}
	return nil
}

func (SimpleValidator) Update(req request.Update) error {
	if req.Position != nil && !utils.FiniteVec(*req.Position) {
		return fmt.Errorf("invalid position: %+v", *req.Position)
	}
	if req.Velocity != nil && !utils.FiniteVec(*req.Velocity) {
		return fmt.Errorf("invalid velocity: %+v", *req.Velocity)
	}
	if req.Rotation != nil && !utils.IsFinite(*req.Rotation) {
		return errors.New("invalid rotation")
	}
	return nil
}

func (SimpleValidator) Shoot(req request.Shoot) error {
	if !utils.FiniteVec(req.Position) || !utils.FiniteVec(req.Direction) {
		return errors.New("invalid position or direction")
	}
	if !utils.IsFinite(req.Speed) || req.Speed < 0 {
		return errors.New("speed must be a non-negative number")
	}
	if req.Damage < 0 {
		return errors.New("damage must not be negative")
	}
	return nil
}

func (SimpleValidator) Hit(req request.Hit) error {
	if req.PlayerID.IsEmpty() {
		return errors.New("player id is required")
	}
	if req.Damage <= 0 {
		return errors.New("damage must be positive")
	}
	return nil
}

func (SimpleValidator) Chat(req request.Chat) error {
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("message is required")
	}
	return nil
}
