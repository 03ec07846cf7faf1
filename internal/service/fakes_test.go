package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"guild-bot/internal/model"
	"guild-bot/internal/repository"
)

var errStoreDown = errors.New("store down")

// memStore implements every store interface in memory with the same
// conditional-update semantics as the Postgres repositories.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]*model.User
	progress map[int64]map[string]*model.DailyProgress
	sessions []*model.WorkoutSession

	failUpdate      error
	failListing     error
	failProgressFor int64
	userGets        int
	workoutWrites   int
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[int64]*model.User),
		progress: make(map[int64]map[string]*model.DailyProgress),
	}
}

func (m *memStore) put(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Level == 0 {
		u.Level = 1
	}
	for _, p := range []*int{&u.Strength, &u.Stamina, &u.Agility} {
		if *p == 0 {
			*p = 1
		}
	}
	m.users[u.ID] = &u
}

func (m *memStore) putProgress(p model.DailyProgress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.progress[p.UserID] == nil {
		m.progress[p.UserID] = make(map[string]*model.DailyProgress)
	}
	m.progress[p.UserID][p.Date] = &p
}

func (m *memStore) putSession(s model.WorkoutSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.sessions = append(m.sessions, &s)
}

func (m *memStore) user(id int64) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *memStore) progressCount(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.progress[userID])
}

// UserStore

func (m *memStore) GetByID(_ context.Context, userID int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userGets++
	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetOrCreate(ctx context.Context, userID int64, username string) (*model.User, bool, error) {
	if u, err := m.GetByID(ctx, userID); err == nil {
		return u, false, nil
	}
	m.put(model.User{ID: userID, Username: username, CreatedAt: time.Now()})
	u, err := m.GetByID(ctx, userID)
	return u, true, err
}

func (m *memStore) UpdateUsername(_ context.Context, userID int64, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Username = username
	return nil
}

func (m *memStore) SetTimezone(_ context.Context, userID int64, tz string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Timezone = tz
	return nil
}

func (m *memStore) Update(_ context.Context, userID int64, fn func(u *model.User) error) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(userID, fn)
}

func (m *memStore) updateLocked(userID int64, fn func(u *model.User) error) (*model.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	if err := fn(&cp); err != nil {
		return nil, err
	}
	if m.failUpdate != nil {
		return nil, m.failUpdate
	}
	m.users[userID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) UpdateWithWorkout(_ context.Context, userID int64, session *model.WorkoutSession, fn func(u *model.User) error) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	for _, s := range m.sessions {
		if s.ID == session.ID {
			return nil, repository.ErrDuplicateWorkout
		}
	}
	u, err := m.updateLocked(userID, fn)
	if err != nil {
		return nil, err
	}
	cp := *session
	m.sessions = append(m.sessions, &cp)
	m.workoutWrites++
	return u, nil
}

func (m *memStore) UpdateWithAwards(_ context.Context, userID int64, date string, fn func(u *model.User, won model.Awards) error) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var won model.Awards
	p, ok := m.progress[userID][date]
	if ok {
		won = model.Awards{XP: !p.XPAwarded, StreakFreeze: !p.StreakFreezeAwarded}
	}
	u, err := m.updateLocked(userID, func(u *model.User) error {
		return fn(u, won)
	})
	if err != nil {
		return nil, err
	}
	if ok {
		p.XPAwarded = true
		p.StreakFreezeAwarded = true
	}
	return u, nil
}

func (m *memStore) ApplyStreakFreeze(_ context.Context, userID int64, date string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.StreakFreezeCount <= 0 || u.CurrentStreak <= 0 || u.LastStreakDate >= date {
		return false, nil
	}
	u.StreakFreezeCount--
	u.LastActivityDate = date
	u.LastStreakDate = date
	return true, nil
}

func (m *memStore) BreakStreak(_ context.Context, userID int64, since string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.CurrentStreak <= 0 || u.LastStreakDate >= since {
		return false, nil
	}
	u.CurrentStreak = 0
	return true, nil
}

func (m *memStore) ListRefs(context.Context) ([]model.UserRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failListing != nil {
		return nil, m.failListing
	}
	refs := make([]model.UserRef, 0, len(m.users))
	for _, u := range m.users {
		refs = append(refs, model.UserRef{ID: u.ID, Timezone: u.Timezone})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

func (m *memStore) GetTopUsers(_ context.Context, limit int) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]*model.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Experience > users[j].Experience })
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// DailyProgressStore

func (m *memStore) Get(_ context.Context, userID int64, date string) (*model.DailyProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if userID == m.failProgressFor {
		return nil, errStoreDown
	}
	p, ok := m.progress[userID][date]
	if !ok {
		return nil, repository.ErrDailyProgressNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) Latest(_ context.Context, userID int64) (*model.DailyProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.DailyProgress
	for _, p := range m.progress[userID] {
		if latest == nil || p.Date > latest.Date {
			latest = p
		}
	}
	if latest == nil {
		return nil, repository.ErrDailyProgressNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) Insert(_ context.Context, userID int64, date string) (*model.DailyProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.progress[userID][date]; ok {
		return nil, repository.ErrDuplicateDailyProgress
	}
	if m.progress[userID] == nil {
		m.progress[userID] = make(map[string]*model.DailyProgress)
	}
	p := &model.DailyProgress{UserID: userID, Date: date, CreatedAt: time.Now()}
	m.progress[userID][date] = p
	cp := *p
	return &cp, nil
}

func (m *memStore) SetQuest(_ context.Context, userID int64, date string, q model.Quest) (*model.DailyProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[userID][date]
	if !ok {
		return nil, repository.ErrDailyProgressNotFound
	}
	switch q {
	case model.QuestHydration:
		p.Hydration = true
	case model.QuestSteps:
		p.Steps = true
	case model.QuestProtein:
		p.Protein = true
	case model.QuestSleep:
		p.Sleep = true
	}
	cp := *p
	return &cp, nil
}

// WorkoutStore

func (m *memStore) GetByUserAndDate(_ context.Context, userID int64, date string) ([]*model.WorkoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WorkoutSession
	for _, s := range m.sessions {
		if s.UserID == userID && s.Date == date {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) GetRecent(_ context.Context, userID int64, limit int) ([]*model.WorkoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WorkoutSession
	for i := len(m.sessions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.sessions[i].UserID == userID {
			cp := *m.sessions[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}
