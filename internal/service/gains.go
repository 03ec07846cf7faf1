package service

import (
	"errors"
	"math"

	"guild-bot/internal/model"
	"guild-bot/internal/progression"
)

// Gains is everything one workout adds to a character.
type Gains struct {
	// XP is added to overall experience, streak bonus included.
	XP int64
	// StatXP grows per-stat XP; each stat rises by the sub-levels crossed.
	StatXP progression.SessionXP
	// Stats are added to the stats directly.
	Stats progression.StatGains
}

// IsZero reports whether the gains change nothing.
func (g Gains) IsZero() bool {
	return g.XP == 0 && g.StatXP.IsZero() && g.Stats.IsZero()
}

// ErrInvalidGains is returned for negative gains or gains that would
// overflow a character's totals. Experience never goes down.
var ErrInvalidGains = errors.New("invalid gains")

func (g Gains) validate(u *model.User) error {
	amounts := []struct{ have, add int64 }{
		{u.Experience, g.XP},
		{u.StrengthXP, g.StatXP.XPStr},
		{u.StaminaXP, g.StatXP.XPSta},
		{u.AgilityXP, g.StatXP.XPAgi},
	}
	for _, a := range amounts {
		if a.add < 0 || a.have > math.MaxInt64-a.add {
			return ErrInvalidGains
		}
	}
	if g.Stats.Strength < 0 || g.Stats.Stamina < 0 || g.Stats.Agility < 0 {
		return ErrInvalidGains
	}
	return nil
}

// ApplyGains adds g to u as of the local date today and returns the stat
// points gained. Zero gains and rejected gains leave u untouched; otherwise
// level is recomputed from experience and the streak is credited for today.
func ApplyGains(u *model.User, g Gains, today string) (progression.StatGains, error) {
	if g.IsZero() {
		return progression.StatGains{}, nil
	}
	if err := g.validate(u); err != nil {
		return progression.StatGains{}, err
	}

	u.Experience += g.XP
	u.Level = progression.LevelFromXP(u.Experience)

	gained := progression.StatGains{
		Strength: progression.StatLevelsGained(u.StrengthXP, g.StatXP.XPStr) + g.Stats.Strength,
		Stamina:  progression.StatLevelsGained(u.StaminaXP, g.StatXP.XPSta) + g.Stats.Stamina,
		Agility:  progression.StatLevelsGained(u.AgilityXP, g.StatXP.XPAgi) + g.Stats.Agility,
	}
	u.StrengthXP += g.StatXP.XPStr
	u.StaminaXP += g.StatXP.XPSta
	u.AgilityXP += g.StatXP.XPAgi
	u.Strength += gained.Strength
	u.Stamina += gained.Stamina
	u.Agility += gained.Agility

	creditStreak(u, today)
	return gained, nil
}

// creditStreak counts today toward the streak. It reports whether the
// streak changed; crediting the same day twice is a no-op.
func creditStreak(u *model.User, today string) bool {
	u.LastActivityDate = today
	if u.LastStreakDate == today {
		return false
	}

	if yesterday, err := ShiftDate(today, -1); err == nil && u.LastStreakDate == yesterday {
		u.CurrentStreak++
	} else {
		u.CurrentStreak = 1
	}
	u.LastStreakDate = today
	if u.CurrentStreak > u.LongestStreak {
		u.LongestStreak = u.CurrentStreak
	}
	return true
}
