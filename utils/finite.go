package utils

import (
	"math"

	"skirmish/domain"
)

// FiniteVec は全成分が NaN/Inf でない場合に true を返します。
func FiniteVec(v domain.Vec3) bool {
	return IsFinite(v.X) && IsFinite(v.Y) && IsFinite(v.Z)
}

func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
