package handler

import (
	"fmt"
	"math"
	"strings"

	"guild-bot/internal/model"
	"guild-bot/internal/progression"
	"guild-bot/internal/regen"
	"guild-bot/internal/service"
)

const (
	divider  = "━━━━━━━━━━━━━━━"
	barWidth = 10
)

func progressBar(done, total float64) string {
	filled := 0
	if total > 0 {
		filled = int(math.Round(done / total * barWidth))
	}
	filled = min(max(filled, 0), barWidth)
	return strings.Repeat("▰", filled) + strings.Repeat("▱", barWidth-filled)
}

func formatProfile(p *service.Profile) string {
	u := p.User
	var b strings.Builder
	b.WriteString("📊 Character\n" + divider + "\n")
	fmt.Fprintf(&b, "👤 @%s\n", u.Username)
	fmt.Fprintf(&b, "⭐ Level %d  %d/%d XP\n", p.Progress.Level, p.Progress.IntoLevel, p.Progress.LevelSpan)
	fmt.Fprintf(&b, "%s\n", progressBar(float64(p.Progress.IntoLevel), float64(p.Progress.LevelSpan)))
	fmt.Fprintf(&b, "💪 STR %d  🫀 STA %d  🤸 AGI %d\n", u.Strength, u.Stamina, u.Agility)
	fmt.Fprintf(&b, "🔥 Streak %d days (best %d)", u.CurrentStreak, u.LongestStreak)
	if p.Streak.Active {
		fmt.Fprintf(&b, "  x%.1f", p.Streak.Multiplier)
	}
	fmt.Fprintf(&b, "\n🧊 Freezes %d\n", u.StreakFreezeCount)
	if len(p.Recent) > 0 {
		b.WriteString(divider + "\nRecent:\n")
		for _, s := range p.Recent {
			fmt.Fprintf(&b, "• %s %s +%d XP\n", s.Date, s.Source, s.XPTotal)
		}
	}
	b.WriteString(divider)
	return b.String()
}

func formatWorkoutResult(r *service.WorkoutResult) string {
	var b strings.Builder
	if r.AlreadyRecorded {
		fmt.Fprintf(&b, "✅ This workout was already recorded\n⭐ Level %d %s", r.Progress.Level,
			progressBar(float64(r.Progress.IntoLevel), float64(r.Progress.LevelSpan)))
		return b.String()
	}
	fmt.Fprintf(&b, "🏋️ Workout logged: +%d XP", r.Bonus.FinalXP)
	if r.Bonus.BonusXP > 0 {
		fmt.Fprintf(&b, " (%s, +%d)", r.Bonus.Info.Label, r.Bonus.BonusXP)
	}
	b.WriteString("\n")

	g := r.StatGains
	if !g.IsZero() {
		fmt.Fprintf(&b, "💪 +%d  🫀 +%d  🤸 +%d\n", g.Strength, g.Stamina, g.Agility)
	}
	if r.LevelUp {
		fmt.Fprintf(&b, "🎉 Level up! %d → %d\n", r.LevelBefore, r.Progress.Level)
	}
	fmt.Fprintf(&b, "⭐ Level %d %s", r.Progress.Level,
		progressBar(float64(r.Progress.IntoLevel), float64(r.Progress.LevelSpan)))
	return b.String()
}

var questLabels = map[model.Quest]string{
	model.QuestHydration: "💧 Hydration",
	model.QuestSteps:     "👟 Steps",
	model.QuestProtein:   "🥩 Protein",
	model.QuestSleep:     "😴 Sleep",
}

func formatQuests(p *model.DailyProgress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 Quests for %s\n%s\n", p.Date, divider)
	for _, q := range model.AllQuests() {
		mark := "⬜"
		if p.Done(q) {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, questLabels[q])
	}
	fmt.Fprintf(&b, "%s\n%d/4 done", divider, p.CompletedCount())
	return b.String()
}

func formatLeaderboard(users []*model.User) string {
	var b strings.Builder
	b.WriteString("🏆 Guild TOP 10\n" + divider + "\n")

	medals := []string{"🥇", "🥈", "🥉"}
	for i, u := range users {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		name := u.Username
		if name == "" {
			name = fmt.Sprintf("User%d", u.ID)
		}
		fmt.Fprintf(&b, "%s @%s: Lv %d (%d XP)\n", rank, name, progression.LevelFromXP(u.Experience), u.Experience)
	}
	b.WriteString(divider)
	return b.String()
}

func formatHP(s regen.State, route string) string {
	where := route
	if where == "" {
		where = RouteTown
	}
	return fmt.Sprintf("❤️ HP %.0f/%.0f %s\n📍 %s", math.Floor(s.HP), s.MaxHP, progressBar(s.HP, s.MaxHP), where)
}
