package progression

import (
	"fmt"
	"math"
)

const (
	// StreakBonusThreshold is the streak length at which the bonus starts.
	StreakBonusThreshold = 3
	streakMultiplier     = 1.5
)

// StreakBonusInfo describes the multiplier that was applied.
type StreakBonusInfo struct {
	Streak     int     `json:"streak"`
	Multiplier float64 `json:"multiplier"`
	Active     bool    `json:"active"`
	Label      string  `json:"label,omitempty"`
}

// StreakBonus is the result of ApplyStreakBonus.
type StreakBonus struct {
	FinalXP int64           `json:"final_xp"`
	BonusXP int64           `json:"bonus_xp"`
	Info    StreakBonusInfo `json:"info"`
}

// ApplyStreakBonus multiplies base XP by 1.5 once the streak reaches three days.
func ApplyStreakBonus(baseXP int64, currentStreak int) StreakBonus {
	info := StreakBonusInfo{Streak: currentStreak, Multiplier: 1}
	if currentStreak >= StreakBonusThreshold {
		info.Multiplier = streakMultiplier
		info.Active = true
		info.Label = fmt.Sprintf("%d-day streak x%.1f", currentStreak, streakMultiplier)
	}

	final := int64(math.Floor(float64(baseXP) * info.Multiplier))
	return StreakBonus{
		FinalXP: final,
		BonusXP: final - baseXP,
		Info:    info,
	}
}
