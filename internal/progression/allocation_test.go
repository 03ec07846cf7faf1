package progression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMovementTypeFor(t *testing.T) {
	assert.Equal(t, MovementResistance, MovementTypeFor("strength"))
	assert.Equal(t, MovementResistance, MovementTypeFor(" Core "))
	assert.Equal(t, MovementCardio, MovementTypeFor("CARDIO"))
	assert.Equal(t, MovementSkill, MovementTypeFor("mobility"))
	assert.Equal(t, MovementSkill, MovementTypeFor(""))
}

func TestAllocateSessionXP_Empty(t *testing.T) {
	xp, err := AllocateSessionXP(nil)
	require.NoError(t, err)
	assert.Equal(t, SessionXP{}, xp)
	assert.True(t, xp.IsZero())

	xp, err = AllocateSessionXP([]ActivityInput{})
	require.NoError(t, err)
	assert.Equal(t, SessionXP{}, xp)
}

func TestAllocateSessionXP_MovementTypes(t *testing.T) {
	tests := []struct {
		name     string
		activity ActivityInput
		expected SessionXP
	}{
		{
			name:     "weighted set leans on strength",
			activity: ActivityInput{Category: "strength", Reps: 10, LoadKg: 100, RPE: 8, Completed: true},
			expected: SessionXP{XPTotal: 45, XPStr: 31, XPSta: 9, XPAgi: 5},
		},
		{
			name:     "cardio leans on stamina",
			activity: ActivityInput{Category: "cardio", DurationSeconds: 1800, Completed: true},
			expected: SessionXP{XPTotal: 132, XPStr: 13, XPSta: 92, XPAgi: 27},
		},
		{
			name:     "skill work leans on agility",
			activity: ActivityInput{Category: "yoga", DurationSeconds: 600, RPE: 10, Completed: true},
			expected: SessionXP{XPTotal: 75, XPStr: 15, XPSta: 15, XPAgi: 45},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xp, err := AllocateSessionXP([]ActivityInput{tt.activity})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, xp)
		})
	}
}

func TestAllocateSessionXP_SkipsIncompleteSets(t *testing.T) {
	done := ActivityInput{Category: "strength", Reps: 10, LoadKg: 100, RPE: 8, Completed: true}
	skipped := ActivityInput{Category: "strength", Reps: 10, LoadKg: 100, RPE: 8}
	// Incomplete placeholders are not validated either.
	empty := ActivityInput{Category: "cardio"}

	xp, err := AllocateSessionXP([]ActivityInput{done, skipped, empty, done})
	require.NoError(t, err)
	assert.Equal(t, int64(90), xp.XPTotal)
}

func TestAllocateSessionXP_BodyweightAndHolds(t *testing.T) {
	pushups := ActivityInput{Category: "strength", Reps: 20, BodyweightKg: 80, Completed: true}
	xp, err := AllocateSessionXP([]ActivityInput{pushups})
	require.NoError(t, err)
	assert.Positive(t, xp.XPTotal)

	plank := ActivityInput{Category: "core", DurationSeconds: 60, RPE: 10, Completed: true}
	xp, err = AllocateSessionXP([]ActivityInput{plank})
	require.NoError(t, err)
	assert.Equal(t, int64(18), xp.XPTotal)
}

func TestAllocateSessionXP_Validation(t *testing.T) {
	tests := []struct {
		name     string
		activity ActivityInput
		field    string
	}{
		{"weighted reps without load", ActivityInput{Category: "strength", Reps: 5, Completed: true}, "load_kg"},
		{"strength without reps or duration", ActivityInput{Category: "strength", LoadKg: 50, Completed: true}, "reps"},
		{"cardio without duration", ActivityInput{Category: "cardio", Reps: 10, Completed: true}, "duration_seconds"},
		{"skill without volume", ActivityInput{Category: "balance", Completed: true}, "duration_seconds"},
		{"NaN load", ActivityInput{Category: "strength", Reps: 5, LoadKg: math.NaN(), Completed: true}, "load_kg"},
		{"infinite duration", ActivityInput{Category: "cardio", DurationSeconds: math.Inf(1), Completed: true}, "duration_seconds"},
		{"negative reps", ActivityInput{Category: "strength", Reps: -1, LoadKg: 10, Completed: true}, "reps"},
		{"rpe too high", ActivityInput{Category: "cardio", DurationSeconds: 60, RPE: 11, Completed: true}, "rpe"},
		{"rpe below scale", ActivityInput{Category: "cardio", DurationSeconds: 60, RPE: 0.5, Completed: true}, "rpe"},
		{"huge cardio duration", ActivityInput{Category: "cardio", DurationSeconds: 1e300, Completed: true}, "duration_seconds"},
		{"duration over a day", ActivityInput{Category: "yoga", DurationSeconds: 86401, Completed: true}, "duration_seconds"},
		{"huge load", ActivityInput{Category: "strength", Reps: 5, LoadKg: 1e18, Completed: true}, "load_kg"},
		{"huge bodyweight", ActivityInput{Category: "core", Reps: 5, BodyweightKg: 1e12, Completed: true}, "bodyweight_kg"},
		{"too many reps", ActivityInput{Category: "strength", Reps: math.MaxInt32, LoadKg: 10, Completed: true}, "reps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok := ActivityInput{Category: "cardio", DurationSeconds: 600, Completed: true}
			xp, err := AllocateSessionXP([]ActivityInput{ok, tt.activity})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidActivity)
			assert.Equal(t, SessionXP{}, xp)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, 1, verr.Index)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestAllocateSessionXP_LargestValidActivityStaysPositive(t *testing.T) {
	activities := []ActivityInput{
		{Category: "strength", Reps: maxReps, LoadKg: maxLoadKg, RPE: 10, Completed: true},
		{Category: "cardio", DurationSeconds: maxDurationSeconds, RPE: 10, Completed: true},
		{Category: "yoga", Reps: maxReps, RPE: 10, Completed: true},
	}

	xp, err := AllocateSessionXP(activities)
	require.NoError(t, err)
	assert.Positive(t, xp.XPTotal)
	assert.Equal(t, xp.XPTotal, xp.XPStr+xp.XPSta+xp.XPAgi)
	assert.GreaterOrEqual(t, xp.XPAgi, int64(0))
}

func TestSessionXPAdd_Overflow(t *testing.T) {
	big := SessionXP{XPTotal: math.MaxInt64 - 1, XPStr: math.MaxInt64 - 1}

	_, err := big.add(SessionXP{XPTotal: 2, XPStr: 2})
	assert.ErrorIs(t, err, ErrXPOverflow)

	_, err = SessionXP{}.add(SessionXP{XPTotal: -1})
	assert.ErrorIs(t, err, ErrXPOverflow)

	sum, err := SessionXP{XPTotal: 3, XPSta: 3}.add(SessionXP{XPTotal: 4, XPAgi: 4})
	require.NoError(t, err)
	assert.Equal(t, SessionXP{XPTotal: 7, XPSta: 3, XPAgi: 4}, sum)
}

func genActivity() *rapid.Generator[ActivityInput] {
	return rapid.Custom(func(t *rapid.T) ActivityInput {
		category := rapid.SampledFrom([]string{"strength", "core", "cardio", "yoga", "sport"}).Draw(t, "category")
		a := ActivityInput{
			Category:  category,
			RPE:       float64(rapid.IntRange(0, 10).Draw(t, "rpe")),
			Completed: rapid.Bool().Draw(t, "completed"),
		}
		switch MovementTypeFor(category) {
		case MovementResistance:
			a.Reps = rapid.IntRange(1, 50).Draw(t, "reps")
			a.LoadKg = float64(rapid.IntRange(1, 300).Draw(t, "load"))
		default:
			a.DurationSeconds = float64(rapid.IntRange(1, 7200).Draw(t, "duration"))
		}
		return a
	})
}

// TestAllocationSplitProperty checks that stat XP always adds up to the
// session total and nothing goes negative.
func TestAllocationSplitProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		activities := rapid.SliceOfN(genActivity(), 0, 30).Draw(t, "activities")

		xp, err := AllocateSessionXP(activities)
		if err != nil {
			t.Fatalf("valid activities rejected: %v", err)
		}
		if xp.XPStr+xp.XPSta+xp.XPAgi != xp.XPTotal {
			t.Fatalf("split %+v does not add up", xp)
		}
		if xp.XPStr < 0 || xp.XPSta < 0 || xp.XPAgi < 0 {
			t.Fatalf("negative stat xp: %+v", xp)
		}
	})
}

// TestAllocationAdditiveProperty checks that a session is the sum of its parts.
func TestAllocationAdditiveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		first := rapid.SliceOfN(genActivity(), 0, 10).Draw(t, "first")
		second := rapid.SliceOfN(genActivity(), 0, 10).Draw(t, "second")

		a, err := AllocateSessionXP(first)
		if err != nil {
			t.Fatal(err)
		}
		b, err := AllocateSessionXP(second)
		if err != nil {
			t.Fatal(err)
		}
		both, err := AllocateSessionXP(append(append([]ActivityInput{}, first...), second...))
		if err != nil {
			t.Fatal(err)
		}
		sum, err := a.add(b)
		if err != nil {
			t.Fatal(err)
		}
		if both != sum {
			t.Fatalf("combined %+v != %+v + %+v", both, a, b)
		}
	})
}
