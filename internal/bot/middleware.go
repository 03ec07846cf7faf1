// Package bot provides middleware for the Telegram bot.
package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"guild-bot/internal/config"
	"guild-bot/internal/handler"
	"guild-bot/internal/metrics"
)

const (
	dailyResetTimeout = 5 * time.Second
	tzResolveTimeout  = 2 * time.Second

	// ctxTimezone holds the sender's resolved IANA zone for later middleware.
	ctxTimezone = "guild.tz"
)

// privateUserCache tracks users who have used the bot in whitelisted groups.
// This allows them to use the bot in private chat.
var (
	privateUserCache = make(map[int64]bool)
	privateUserMu    sync.RWMutex
)

// AllowPrivateUser marks a user as allowed to use private chat.
func AllowPrivateUser(userID int64) {
	privateUserMu.Lock()
	defer privateUserMu.Unlock()
	privateUserCache[userID] = true
}

// IsPrivateUserAllowed checks if a user is allowed to use private chat.
func IsPrivateUserAllowed(userID int64) bool {
	privateUserMu.RLock()
	defer privateUserMu.RUnlock()
	return privateUserCache[userID]
}

// WhitelistMiddleware drops updates from chats outside the whitelist.
// Members of a whitelisted guild chat may also talk to the bot privately.
func WhitelistMiddleware(cfg *config.Config, m *metrics.Manager) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			sender := c.Sender()

			if chat == nil || sender == nil {
				m.UpdateIgnored("anonymous")
				return nil
			}

			if chat.Type == tele.ChatPrivate {
				if IsPrivateUserAllowed(sender.ID) || len(cfg.Whitelist.Chats) == 0 {
					return next(c)
				}
				log.Debug().
					Int64("user_id", sender.ID).
					Msg("Ignoring private chat from user not seen in a guild chat")
				m.UpdateIgnored("private")
				return nil
			}

			if !cfg.IsChatAllowed(chat.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Msg("Ignoring command from non-whitelisted chat")
				m.UpdateIgnored("chat")
				return nil
			}

			AllowPrivateUser(sender.ID)
			return next(c)
		}
	}
}

// resolveZone returns the sender's zone, reusing one stored on c by an
// earlier middleware.
func resolveZone(c tele.Context, tz handler.Timezones, userID int64) (string, error) {
	if zone, ok := c.Get(ctxTimezone).(string); ok && zone != "" {
		return zone, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), tzResolveTimeout)
	defer cancel()
	zone, err := tz.Resolve(ctx, userID)
	if err != nil {
		return "", err
	}
	c.Set(ctxTimezone, zone)
	return zone, nil
}

// commandOf returns the leading /command of text without a @botname suffix,
// or "" for plain messages.
func commandOf(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd
}

// DailyResetter rolls a user's quest sheet over to their new local day.
type DailyResetter interface {
	CheckAndResetDailyQuests(ctx context.Context, userID int64, tz string) (bool, error)
}

// DailyResetMiddleware resets the sender's daily quests before any command
// runs, so the first interaction of a local day sees a fresh sheet. Failures
// are logged and the command still runs.
func DailyResetMiddleware(daily DailyResetter, tz handler.Timezones) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return next(c)
			}

			zone, err := resolveZone(c, tz, sender.ID)
			if err != nil {
				log.Warn().Err(err).Int64("user_id", sender.ID).Msg("Failed to resolve timezone for daily reset")
				return next(c)
			}

			ctx, cancel := context.WithTimeout(context.Background(), dailyResetTimeout)
			defer cancel()
			reset, err := daily.CheckAndResetDailyQuests(ctx, sender.ID, zone)
			if err != nil {
				log.Warn().Err(err).Int64("user_id", sender.ID).Msg("Daily reset failed")
			} else if reset {
				log.Debug().Int64("user_id", sender.ID).Str("tz", zone).Msg("Daily quests reset")
			}
			return next(c)
		}
	}
}

// LoggingMiddleware logs each update with the sender's local timezone.
// Only the command is logged; workout notes and free text are not.
// A nil tz logs without the zone.
func LoggingMiddleware(tz handler.Timezones) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
				if tz != nil {
					if zone, err := resolveZone(c, tz, sender.ID); err == nil {
						logEvent = logEvent.Str("tz", zone)
					}
				}
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			if cmd := commandOf(c.Text()); cmd != "" {
				logEvent = logEvent.Str("command", cmd)
			}
			logEvent.Msg("Received update")

			return next(c)
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware(m *metrics.Manager) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					m.HandlerPanic()
					err = c.Reply("❌ Something went wrong, please try again later")
				}
			}()
			return next(c)
		}
	}
}
