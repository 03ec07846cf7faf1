// Package model defines the data models for the guild bot.
package model

import "time"

// DateLayout is the calendar date format used for every stored date.
const DateLayout = "2006-01-02"

// User is a guild member and their character progression.
// Level is always derived from Experience.
type User struct {
	ID                int64     `db:"id" json:"id"`
	Username          string    `db:"username" json:"username"`
	Level             int       `db:"level" json:"level"`
	Experience        int64     `db:"experience" json:"experience"`
	Strength          int       `db:"strength" json:"strength"`
	Stamina           int       `db:"stamina" json:"stamina"`
	Agility           int       `db:"agility" json:"agility"`
	StrengthXP        int64     `db:"strength_xp" json:"strength_xp"`
	StaminaXP         int64     `db:"stamina_xp" json:"stamina_xp"`
	AgilityXP         int64     `db:"agility_xp" json:"agility_xp"`
	CurrentStreak     int       `db:"current_streak" json:"current_streak"`
	LongestStreak     int       `db:"longest_streak" json:"longest_streak"`
	LastActivityDate  string    `db:"last_activity_date" json:"last_activity_date"`
	LastStreakDate    string    `db:"last_streak_date" json:"last_streak_date"`
	StreakFreezeCount int       `db:"streak_freeze_count" json:"streak_freeze_count"`
	Timezone          string    `db:"timezone" json:"timezone"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Quest is one of the four daily quests.
type Quest string

const (
	QuestHydration Quest = "hydration"
	QuestSteps     Quest = "steps"
	QuestProtein   Quest = "protein"
	QuestSleep     Quest = "sleep"
)

// AllQuests lists the daily quests in display order.
func AllQuests() []Quest {
	return []Quest{QuestHydration, QuestSteps, QuestProtein, QuestSleep}
}

// ParseQuest returns the quest named s.
func ParseQuest(s string) (Quest, bool) {
	for _, q := range AllQuests() {
		if string(q) == s {
			return q, true
		}
	}
	return "", false
}

// DailyProgress is a user's quest sheet for one local calendar date.
// At most one row exists per (UserID, Date).
type DailyProgress struct {
	UserID              int64     `db:"user_id" json:"user_id"`
	Date                string    `db:"date" json:"date"`
	Hydration           bool      `db:"hydration" json:"hydration"`
	Steps               bool      `db:"steps" json:"steps"`
	Protein             bool      `db:"protein" json:"protein"`
	Sleep               bool      `db:"sleep" json:"sleep"`
	XPAwarded           bool      `db:"xp_awarded" json:"xp_awarded"`
	StreakFreezeAwarded bool      `db:"streak_freeze_awarded" json:"streak_freeze_awarded"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// Done reports whether quest q is complete.
func (p *DailyProgress) Done(q Quest) bool {
	switch q {
	case QuestHydration:
		return p.Hydration
	case QuestSteps:
		return p.Steps
	case QuestProtein:
		return p.Protein
	case QuestSleep:
		return p.Sleep
	}
	return false
}

// CompletedCount returns how many of the four quests are done.
func (p *DailyProgress) CompletedCount() int {
	n := 0
	for _, q := range AllQuests() {
		if p.Done(q) {
			n++
		}
	}
	return n
}

// Awards reports which all-quest rewards a caller won for a day. Each flag
// is true for exactly one caller.
type Awards struct {
	XP           bool
	StreakFreeze bool
}

// Workout sources describe how a session's XP was computed.
const (
	SourceDetailed = "detailed" // per-set allocation
	SourceLegacy   = "legacy"   // duration/volume fallback
	SourceTimed    = "timed"    // workout timer
)

// WorkoutSession is a completed workout as recorded for history and streaks.
type WorkoutSession struct {
	ID               string    `db:"id" json:"id"`
	UserID           int64     `db:"user_id" json:"user_id"`
	Date             string    `db:"date" json:"date"`
	Source           string    `db:"source" json:"source"`
	DurationMinutes  int       `db:"duration_minutes" json:"duration_minutes"`
	EstimatedMinutes int       `db:"estimated_minutes" json:"estimated_minutes"`
	XPTotal          int64     `db:"xp_total" json:"xp_total"`
	XPStr            int64     `db:"xp_str" json:"xp_str"`
	XPSta            int64     `db:"xp_sta" json:"xp_sta"`
	XPAgi            int64     `db:"xp_agi" json:"xp_agi"`
	BonusXP          int64     `db:"bonus_xp" json:"bonus_xp"`
	Completed        bool      `db:"completed" json:"completed"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// UserRef is the minimum needed to run per-user batch jobs.
type UserRef struct {
	ID       int64  `db:"id"`
	Timezone string `db:"timezone"`
}
