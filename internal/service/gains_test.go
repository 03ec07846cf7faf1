package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"guild-bot/internal/model"
	"guild-bot/internal/progression"
)

func genUser() *rapid.Generator[model.User] {
	return rapid.Custom(func(t *rapid.T) model.User {
		xp := rapid.Int64Range(0, 5_000_000).Draw(t, "xp")
		streak := rapid.IntRange(0, 400).Draw(t, "streak")
		return model.User{
			ID:                rapid.Int64Range(1, 1<<40).Draw(t, "id"),
			Experience:        xp,
			Level:             progression.LevelFromXP(xp),
			Strength:          rapid.IntRange(1, 500).Draw(t, "str"),
			Stamina:           rapid.IntRange(1, 500).Draw(t, "sta"),
			Agility:           rapid.IntRange(1, 500).Draw(t, "agi"),
			StrengthXP:        rapid.Int64Range(0, 1_000_000).Draw(t, "strXP"),
			StaminaXP:         rapid.Int64Range(0, 1_000_000).Draw(t, "staXP"),
			AgilityXP:         rapid.Int64Range(0, 1_000_000).Draw(t, "agiXP"),
			CurrentStreak:     streak,
			LongestStreak:     streak + rapid.IntRange(0, 100).Draw(t, "longestExtra"),
			LastStreakDate:    rapid.SampledFrom([]string{"", twoAgo, yesterday, today}).Draw(t, "lastStreak"),
			StreakFreezeCount: rapid.IntRange(0, 3).Draw(t, "freezes"),
		}
	})
}

func TestApplyZeroGainsRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		u := genUser().Draw(t, "user")
		before := u

		gained, err := ApplyGains(&u, Gains{}, today)
		if err != nil {
			t.Fatal(err)
		}

		if u != before {
			t.Fatalf("zero gains changed user: %+v -> %+v", before, u)
		}
		if !gained.IsZero() {
			t.Fatalf("zero gains reported %+v", gained)
		}
	})
}

func TestApplyGainsKeepsLevelInvariantProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		u := genUser().Draw(t, "user")
		g := Gains{
			XP: rapid.Int64Range(1, 10_000).Draw(t, "xp"),
			StatXP: progression.SessionXP{
				XPStr: rapid.Int64Range(0, 1000).Draw(t, "str"),
				XPSta: rapid.Int64Range(0, 1000).Draw(t, "sta"),
				XPAgi: rapid.Int64Range(0, 1000).Draw(t, "agi"),
			},
		}
		before := u

		if _, err := ApplyGains(&u, g, today); err != nil {
			t.Fatal(err)
		}

		if u.Level != progression.LevelFromXP(u.Experience) {
			t.Fatalf("level %d does not match xp %d", u.Level, u.Experience)
		}
		if u.Level < before.Level || u.Strength < before.Strength || u.Stamina < before.Stamina || u.Agility < before.Agility {
			t.Fatalf("progress went backwards: %+v -> %+v", before, u)
		}
		if u.LastStreakDate != today || u.LastActivityDate != today {
			t.Fatalf("streak not credited for today: %+v", u)
		}
		if u.LongestStreak < u.CurrentStreak {
			t.Fatalf("longest %d < current %d", u.LongestStreak, u.CurrentStreak)
		}
	})
}

func TestApplyGains_DetailedStats(t *testing.T) {
	u := model.User{Level: 1, Strength: 1, Stamina: 1, Agility: 1}

	gained, err := ApplyGains(&u, Gains{
		XP:     45,
		StatXP: progression.SessionXP{XPTotal: 45, XPStr: 31, XPSta: 9, XPAgi: 5},
	}, today)
	require.NoError(t, err)

	assert.Equal(t, progression.StatGains{Strength: 1, Stamina: 1, Agility: 1}, gained)
	assert.Equal(t, int64(45), u.Experience)
	assert.Equal(t, 2, u.Level)
	assert.Equal(t, 2, u.Strength)
	assert.Equal(t, int64(31), u.StrengthXP)
	assert.Equal(t, 1, u.CurrentStreak)

	// 31 -> 131 crosses the 100 XP second stat level only for strength.
	gained, err = ApplyGains(&u, Gains{XP: 100, StatXP: progression.SessionXP{XPStr: 100}}, today)
	require.NoError(t, err)
	assert.Equal(t, progression.StatGains{Strength: 1}, gained)
	assert.Equal(t, 3, u.Strength)
	assert.Equal(t, 2, u.Stamina)
}

func TestApplyGains_LegacyStats(t *testing.T) {
	u := model.User{Level: 1, Strength: 1, Stamina: 1, Agility: 1}

	gained, err := ApplyGains(&u, Gains{XP: 150, Stats: progression.StatGains{Strength: 1, Stamina: 2, Agility: 1}}, today)
	require.NoError(t, err)

	assert.Equal(t, progression.StatGains{Strength: 1, Stamina: 2, Agility: 1}, gained)
	assert.Equal(t, 2, u.Strength)
	assert.Equal(t, 3, u.Stamina)
	assert.Equal(t, 2, u.Agility)
	assert.Zero(t, u.StaminaXP)
}

func TestApplyGains_RejectsNegativeAndOverflow(t *testing.T) {
	tests := []struct {
		name  string
		user  model.User
		gains Gains
	}{
		{"negative xp", model.User{Experience: 5000}, Gains{XP: -1}},
		{"min int stat xp", model.User{Experience: 5000}, Gains{XP: 10, StatXP: progression.SessionXP{XPAgi: math.MinInt64}}},
		{"negative stat points", model.User{Experience: 5000}, Gains{XP: 10, Stats: progression.StatGains{Stamina: -2}}},
		{"experience overflow", model.User{Experience: math.MaxInt64 - 5}, Gains{XP: 10}},
		{"stat xp overflow", model.User{StrengthXP: math.MaxInt64}, Gains{XP: 1, StatXP: progression.SessionXP{XPStr: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			u.Level = progression.LevelFromXP(u.Experience)
			before := u

			gained, err := ApplyGains(&u, tt.gains, today)
			assert.ErrorIs(t, err, ErrInvalidGains)
			assert.True(t, gained.IsZero())
			assert.Equal(t, before, u)
		})
	}
}

func TestCreditStreak(t *testing.T) {
	tests := []struct {
		name        string
		streak      int
		longest     int
		last        string
		wantStreak  int
		wantLongest int
		wantChanged bool
	}{
		{"first ever", 0, 0, "", 1, 1, true},
		{"continues from yesterday", 4, 4, yesterday, 5, 5, true},
		{"same day is a no-op", 4, 6, today, 4, 6, false},
		{"gap restarts", 9, 9, twoAgo, 1, 9, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := model.User{CurrentStreak: tt.streak, LongestStreak: tt.longest, LastStreakDate: tt.last}
			changed := creditStreak(&u, today)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantStreak, u.CurrentStreak)
			assert.Equal(t, tt.wantLongest, u.LongestStreak)
			assert.Equal(t, today, u.LastStreakDate)
			assert.Equal(t, today, u.LastActivityDate)
		})
	}
}

func TestShiftDate(t *testing.T) {
	d, err := ShiftDate("2024-03-01", -1)
	assert.NoError(t, err)
	assert.Equal(t, "2024-02-29", d)

	d, err = ShiftDate("2023-12-31", 1)
	assert.NoError(t, err)
	assert.Equal(t, "2024-01-01", d)

	_, err = ShiftDate("03/10/2024", 1)
	assert.ErrorIs(t, err, ErrInvalidDate)
}
