package progression

import "strings"

const (
	minWorkoutXP      = 50
	xpPerMinute       = 5
	xpPerExercise     = 5
	volumePerStrength = 2500
	minutesPerStamina = 20
	exercisesPerAgi   = 4
)

// WorkoutSummary is the coarse description of a workout used when no
// per-set data is available.
type WorkoutSummary struct {
	DurationMinutes int     `json:"duration_minutes"`
	TotalVolumeKg   float64 `json:"total_volume_kg"`
	ExerciseCount   int     `json:"exercise_count"`
	Category        string  `json:"category"`
}

// StatGains are whole-point stat increases.
type StatGains struct {
	Strength int `json:"strength"`
	Stamina  int `json:"stamina"`
	Agility  int `json:"agility"`
}

// IsZero reports whether no stat grows.
func (g StatGains) IsZero() bool {
	return g.Strength == 0 && g.Stamina == 0 && g.Agility == 0
}

func (s WorkoutSummary) clamped() WorkoutSummary {
	if s.DurationMinutes < 0 {
		s.DurationMinutes = 0
	}
	if s.TotalVolumeKg < 0 || s.TotalVolumeKg != s.TotalVolumeKg {
		s.TotalVolumeKg = 0
	}
	if s.ExerciseCount < 0 {
		s.ExerciseCount = 0
	}
	return s
}

func volumeBonus(volume float64) int64 {
	switch {
	case volume >= 10000:
		return 100
	case volume >= 5000:
		return 50
	case volume >= 1000:
		return 25
	default:
		return 0
	}
}

// CalculateXPReward is the fallback reward for a workout without set data.
// It never returns less than 50.
func CalculateXPReward(s WorkoutSummary) int64 {
	s = s.clamped()
	xp := int64(s.DurationMinutes)*xpPerMinute +
		volumeBonus(s.TotalVolumeKg) +
		int64(s.ExerciseCount)*xpPerExercise
	if xp < minWorkoutXP {
		return minWorkoutXP
	}
	return xp
}

// CalculateStatGains is the fallback stat reward. Every stat grows by at
// least one point; the workout category tilts one extra point.
func CalculateStatGains(s WorkoutSummary) StatGains {
	s = s.clamped()
	g := StatGains{
		Strength: 1 + int(s.TotalVolumeKg/volumePerStrength),
		Stamina:  1 + s.DurationMinutes/minutesPerStamina,
		Agility:  1 + s.ExerciseCount/exercisesPerAgi,
	}

	switch MovementTypeFor(strings.ToLower(s.Category)) {
	case MovementResistance:
		g.Strength++
	case MovementCardio:
		g.Stamina++
	default:
		if s.Category != "" {
			g.Agility++
		}
	}
	return g
}
