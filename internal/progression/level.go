// Package progression holds the pure rules that turn workout activity into
// experience, stat growth and levels.
package progression

import "math"

const (
	levelExponent    = 1.8
	levelCoefficient = 16

	statLevelCoefficient = 100

	// Past this the requirement saturates int64.
	maxSearchLevel = 1 << 40
)

// XPRequiredForLevel returns the cumulative experience needed to reach level.
// Levels 1 and below require nothing.
func XPRequiredForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	v := math.Floor(math.Pow(float64(level-1), levelExponent) * levelCoefficient)
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// LevelFromXP returns the highest level whose requirement is covered by xp.
// Negative experience maps to level 1.
func LevelFromXP(xp int64) int {
	if xp <= 0 {
		return 1
	}

	// Find an upper bound that is out of reach, then bisect.
	lo, hi := 1, 2
	for hi < maxSearchLevel && XPRequiredForLevel(hi) <= xp {
		lo = hi
		hi *= 2
	}

	// Invariant: XPRequiredForLevel(lo) <= xp < XPRequiredForLevel(hi)
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if XPRequiredForLevel(mid) <= xp {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// levelFromXPScan is the straightforward upward scan LevelFromXP must agree with.
func levelFromXPScan(xp int64) int {
	level := 1
	for XPRequiredForLevel(level+1) <= xp {
		level++
	}
	return level
}

// LevelProgress describes where a total sits inside its level.
type LevelProgress struct {
	Level       int   `json:"level"`
	TotalXP     int64 `json:"total_xp"`
	IntoLevel   int64 `json:"into_level"`
	LevelSpan   int64 `json:"level_span"`
	NextLevelAt int64 `json:"next_level_at"`
}

// Progress returns the character level breakdown for xp.
func Progress(xp int64) LevelProgress {
	if xp < 0 {
		xp = 0
	}
	level := LevelFromXP(xp)
	floor := XPRequiredForLevel(level)
	next := XPRequiredForLevel(level + 1)
	return LevelProgress{
		Level:       level,
		TotalXP:     xp,
		IntoLevel:   xp - floor,
		LevelSpan:   next - floor,
		NextLevelAt: next,
	}
}

// StatXPRequiredForLevel is the per-stat curve. It is tuned separately from
// the character curve and must not be merged with it.
func StatXPRequiredForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	n := int64(level - 1)
	return n * n * statLevelCoefficient
}

// StatLevelFromXP returns the stat sub-level for xp. Zero means the stat has
// not been trained yet.
func StatLevelFromXP(xp int64) int {
	if xp <= 0 {
		return 0
	}
	level := int(math.Sqrt(float64(xp)/statLevelCoefficient)) + 1
	for level > 1 && StatXPRequiredForLevel(level) > xp {
		level--
	}
	for StatXPRequiredForLevel(level+1) <= xp {
		level++
	}
	return level
}

// StatLevelsGained returns how many stat sub-levels adding delta to xp crosses.
func StatLevelsGained(xp, delta int64) int {
	if delta <= 0 {
		return 0
	}
	return StatLevelFromXP(xp+delta) - StatLevelFromXP(xp)
}
