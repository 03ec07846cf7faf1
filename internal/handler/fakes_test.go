package handler

import (
	"context"
	"sync"

	tele "gopkg.in/telebot.v3"

	"guild-bot/internal/model"
	"guild-bot/internal/progression"
	"guild-bot/internal/repository"
	"guild-bot/internal/service"
)

// fakeContext implements the parts of tele.Context the handlers touch.
type fakeContext struct {
	tele.Context

	sender    *tele.User
	chat      *tele.Chat
	text      string
	args      []string
	callback  *tele.Callback
	replies   []string
	markups   []*tele.ReplyMarkup
	responses []*tele.CallbackResponse
}

func newContext(userID int64, args ...string) *fakeContext {
	return &fakeContext{
		sender: &tele.User{ID: userID, Username: "alice"},
		chat:   &tele.Chat{ID: -100, Type: tele.ChatGroup},
		args:   args,
	}
}

func (c *fakeContext) Sender() *tele.User       { return c.sender }
func (c *fakeContext) Chat() *tele.Chat         { return c.chat }
func (c *fakeContext) Text() string             { return c.text }
func (c *fakeContext) Args() []string           { return c.args }
func (c *fakeContext) Callback() *tele.Callback { return c.callback }

func (c *fakeContext) Reply(what interface{}, opts ...interface{}) error {
	c.replies = append(c.replies, what.(string))
	for _, o := range opts {
		if m, ok := o.(*tele.ReplyMarkup); ok {
			c.markups = append(c.markups, m)
		}
	}
	return nil
}

func (c *fakeContext) Respond(resp ...*tele.CallbackResponse) error {
	c.responses = append(c.responses, resp...)
	return nil
}

func (c *fakeContext) lastReply() string {
	if len(c.replies) == 0 {
		return ""
	}
	return c.replies[len(c.replies)-1]
}

type fakeProgress struct {
	mu          sync.Mutex
	users       map[int64]*model.User
	submissions []service.WorkoutSubmission
	timed       []service.TimedWorkout
	timezones   map[int64]string
	failTimed   bool
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{users: map[int64]*model.User{}, timezones: map[int64]string{}}
}

func (f *fakeProgress) EnsureUser(_ context.Context, id int64, username string) (*model.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, false, nil
	}
	u := &model.User{ID: id, Username: username, Level: 1, Strength: 1, Stamina: 1, Agility: 1}
	f.users[id] = u
	return u, true, nil
}

func (f *fakeProgress) GetProfile(_ context.Context, id int64) (*service.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &service.Profile{
		User:     u,
		Progress: progression.Progress(u.Experience),
		Streak:   progression.ApplyStreakBonus(0, u.CurrentStreak).Info,
	}, nil
}

func (f *fakeProgress) SetTimezone(_ context.Context, id int64, tz string) error {
	if tz != "Europe/Berlin" && tz != "Asia/Tokyo" {
		return service.ErrInvalidTimezone
	}
	f.mu.Lock()
	f.timezones[id] = tz
	f.mu.Unlock()
	return nil
}

func (f *fakeProgress) Resolve(_ context.Context, id int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timezones[id], nil
}

func (f *fakeProgress) Leaderboard(_ context.Context, limit int) ([]*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.User
	for _, u := range f.users {
		if len(out) < limit {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeProgress) SubmitWorkout(_ context.Context, id int64, sub service.WorkoutSubmission) (*service.WorkoutResult, error) {
	var base int64
	if len(sub.Activities) > 0 {
		xp, err := progression.AllocateSessionXP(sub.Activities)
		if err != nil {
			return nil, err
		}
		base = xp.XPTotal
	} else {
		base = progression.CalculateXPReward(sub.Summary)
	}
	f.mu.Lock()
	f.submissions = append(f.submissions, sub)
	f.mu.Unlock()
	return result(id, base), nil
}

func (f *fakeProgress) CompleteTimedWorkout(_ context.Context, id int64, tw service.TimedWorkout) (*service.WorkoutResult, error) {
	if f.failTimed {
		return nil, context.DeadlineExceeded
	}
	f.mu.Lock()
	f.timed = append(f.timed, tw)
	f.mu.Unlock()
	return result(id, 5*int64(tw.EstimatedMinutes)), nil
}

func result(id int64, base int64) *service.WorkoutResult {
	return &service.WorkoutResult{
		User:        &model.User{ID: id},
		BaseXP:      base,
		Bonus:       progression.ApplyStreakBonus(base, 0),
		LevelBefore: 1,
		LevelUp:     progression.LevelFromXP(base) > 1,
		Progress:    progression.Progress(base),
	}
}

type fakeDaily struct {
	completed []model.Quest
	lastTZ    string
}

func (f *fakeDaily) TodayProgress(_ context.Context, id int64, tz string) (*model.DailyProgress, error) {
	f.lastTZ = tz
	return &model.DailyProgress{UserID: id, Date: "2024-03-10", Hydration: true}, nil
}

func (f *fakeDaily) CompleteQuest(_ context.Context, id int64, tz string, q model.Quest) (*service.QuestResult, error) {
	f.lastTZ = tz
	f.completed = append(f.completed, q)
	p := &model.DailyProgress{UserID: id, Date: "2024-03-10", Hydration: true, Steps: true, Protein: true, Sleep: true}
	return &service.QuestResult{
		Progress:       p,
		User:           &model.User{ID: id, CurrentStreak: 4},
		StreakCredited: true,
		BonusXP:        50,
		FreezeAwarded:  true,
	}, nil
}
