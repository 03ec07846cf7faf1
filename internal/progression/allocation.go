package progression

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidActivity is wrapped by every ValidationError.
var ErrInvalidActivity = errors.New("invalid activity")

// MovementType decides how an activity's XP is computed and split.
type MovementType string

const (
	MovementResistance MovementType = "resistance"
	MovementCardio     MovementType = "cardio"
	MovementSkill      MovementType = "skill"
)

const (
	defaultRPE = 6

	// Effective load of a bodyweight rep as a share of bodyweight.
	bodyweightLoadFactor = 0.65
	secondsPerRep        = 3
	secondsPerSkillRep   = 4

	cardioXPPerMinute = 4
	skillXPPerMinute  = 5

	// Upper bounds for one logged activity.
	maxReps            = 10_000
	maxLoadKg          = 1_000
	maxBodyweightKg    = 500
	maxDurationSeconds = 24 * 60 * 60

	// maxActivityXP keeps the percentage split and session sums inside int64.
	maxActivityXP = math.MaxInt64 / 100
)

// ErrXPOverflow is returned when a session's XP does not fit in an int64.
var ErrXPOverflow = errors.New("session xp overflows")

// statWeights are percentages and always sum to 100.
type statWeights struct {
	Str, Sta, Agi int64
}

var allocationWeights = map[MovementType]statWeights{
	MovementResistance: {Str: 70, Sta: 20, Agi: 10},
	MovementCardio:     {Str: 10, Sta: 70, Agi: 20},
	MovementSkill:      {Str: 20, Sta: 20, Agi: 60},
}

// ActivityInput is one logged set or cardio interval.
type ActivityInput struct {
	Category        string  `json:"category"`
	Reps            int     `json:"reps"`
	LoadKg          float64 `json:"load_kg"`
	BodyweightKg    float64 `json:"bodyweight_kg"`
	DurationSeconds float64 `json:"duration_seconds"`
	RPE             float64 `json:"rpe"`
	Completed       bool    `json:"completed"`
}

// SessionXP is the XP of a whole session and its split across stats.
// XPTotal always equals XPStr + XPSta + XPAgi.
type SessionXP struct {
	XPTotal int64 `json:"xp_total"`
	XPStr   int64 `json:"xp_str"`
	XPSta   int64 `json:"xp_sta"`
	XPAgi   int64 `json:"xp_agi"`
}

// IsZero reports whether the session earned nothing.
func (s SessionXP) IsZero() bool {
	return s.XPTotal == 0
}

func (s SessionXP) add(o SessionXP) (SessionXP, error) {
	var sum SessionXP
	var ok [4]bool
	sum.XPTotal, ok[0] = addXP(s.XPTotal, o.XPTotal)
	sum.XPStr, ok[1] = addXP(s.XPStr, o.XPStr)
	sum.XPSta, ok[2] = addXP(s.XPSta, o.XPSta)
	sum.XPAgi, ok[3] = addXP(s.XPAgi, o.XPAgi)
	for _, v := range ok {
		if !v {
			return SessionXP{}, ErrXPOverflow
		}
	}
	return sum, nil
}

// addXP adds two non-negative amounts, reporting false on overflow.
func addXP(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// ValidationError points at the offending activity and field.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("activity %d: %s %s", e.Index, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidActivity
}

// MovementTypeFor maps an exercise category to its movement type.
func MovementTypeFor(category string) MovementType {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "strength", "core":
		return MovementResistance
	case "cardio":
		return MovementCardio
	default:
		return MovementSkill
	}
}

// AllocateSessionXP sums the XP of every completed activity and splits it
// across strength, stamina and agility. Incomplete sets are ignored. The
// first malformed completed activity aborts the whole session.
func AllocateSessionXP(activities []ActivityInput) (SessionXP, error) {
	var total SessionXP
	for i, a := range activities {
		if !a.Completed {
			continue
		}
		xp, err := activityXP(i, a)
		if err != nil {
			return SessionXP{}, err
		}
		if total, err = total.add(xp); err != nil {
			return SessionXP{}, err
		}
	}
	return total, nil
}

func activityXP(index int, a ActivityInput) (SessionXP, error) {
	if err := validateNumbers(index, a); err != nil {
		return SessionXP{}, err
	}

	movement := MovementTypeFor(a.Category)
	raw, err := rawXP(index, movement, a)
	if err != nil {
		return SessionXP{}, err
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 {
		return SessionXP{}, &ValidationError{Index: index, Field: "xp", Reason: "is not a finite amount"}
	}
	if raw > maxActivityXP {
		return SessionXP{}, &ValidationError{Index: index, Field: "xp", Reason: "is too large"}
	}

	return split(int64(math.Floor(raw)), allocationWeights[movement]), nil
}

func validateNumbers(index int, a ActivityInput) error {
	fields := []struct {
		name  string
		value float64
		max   float64
	}{
		{"load_kg", a.LoadKg, maxLoadKg},
		{"bodyweight_kg", a.BodyweightKg, maxBodyweightKg},
		{"duration_seconds", a.DurationSeconds, maxDurationSeconds},
		{"rpe", a.RPE, 10},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &ValidationError{Index: index, Field: f.name, Reason: "must be a finite number"}
		}
		if f.value < 0 {
			return &ValidationError{Index: index, Field: f.name, Reason: "must not be negative"}
		}
		if f.value > f.max {
			return &ValidationError{Index: index, Field: f.name, Reason: fmt.Sprintf("must not exceed %g", f.max)}
		}
	}
	if a.Reps < 0 {
		return &ValidationError{Index: index, Field: "reps", Reason: "must not be negative"}
	}
	if a.Reps > maxReps {
		return &ValidationError{Index: index, Field: "reps", Reason: fmt.Sprintf("must not exceed %d", maxReps)}
	}
	// 0 means the user skipped the effort rating.
	if a.RPE != 0 && (a.RPE < 1 || a.RPE > 10) {
		return &ValidationError{Index: index, Field: "rpe", Reason: "must be between 1 and 10"}
	}
	return nil
}

func effort(rpe float64) float64 {
	if rpe == 0 {
		rpe = defaultRPE
	}
	return 0.5 + rpe/10
}

func rawXP(index int, movement MovementType, a ActivityInput) (float64, error) {
	e := effort(a.RPE)

	switch movement {
	case MovementResistance:
		if a.Reps > 0 {
			load := a.LoadKg
			if load == 0 {
				load = a.BodyweightKg * bodyweightLoadFactor
			}
			if load == 0 {
				return 0, &ValidationError{Index: index, Field: "load_kg", Reason: "or bodyweight_kg is required for weighted reps"}
			}
			volume := float64(a.Reps) * load
			underTension := float64(a.Reps * secondsPerRep)
			return (math.Sqrt(volume) + underTension/10) * e, nil
		}
		if a.DurationSeconds > 0 {
			// isometric hold
			return a.DurationSeconds / 5 * e, nil
		}
		return 0, &ValidationError{Index: index, Field: "reps", Reason: "or duration_seconds is required"}

	case MovementCardio:
		if a.DurationSeconds <= 0 {
			return 0, &ValidationError{Index: index, Field: "duration_seconds", Reason: "is required for cardio"}
		}
		return a.DurationSeconds / 60 * cardioXPPerMinute * e, nil

	default:
		interval := a.DurationSeconds
		if interval == 0 {
			interval = float64(a.Reps * secondsPerSkillRep)
		}
		if interval <= 0 {
			return 0, &ValidationError{Index: index, Field: "duration_seconds", Reason: "or reps is required"}
		}
		return interval / 60 * skillXPPerMinute * e, nil
	}
}

func split(xp int64, w statWeights) SessionXP {
	str := xp * w.Str / 100
	sta := xp * w.Sta / 100
	return SessionXP{
		XPTotal: xp,
		XPStr:   str,
		XPSta:   sta,
		XPAgi:   xp - str - sta,
	}
}
