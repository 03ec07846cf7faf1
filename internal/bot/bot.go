// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"guild-bot/internal/config"
	"guild-bot/internal/handler"
	"guild-bot/internal/metrics"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot     *tele.Bot
	cfg     *config.Config
	guild   *handler.GuildHandler
	daily   DailyResetter
	tz      handler.Timezones
	metrics *metrics.Manager
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config    *config.Config
	Guild     *handler.GuildHandler
	Daily     DailyResetter
	Timezones handler.Timezones
	Metrics   *metrics.Manager
	// Offline skips the getMe call; used in tests.
	Offline bool
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" && !deps.Offline {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:   deps.Config.Bot.Token,
		Poller:  &tele.LongPoller{Timeout: 10 * time.Second},
		Offline: deps.Offline,
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Telegram handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:     teleBot,
		cfg:     deps.Config,
		guild:   deps.Guild,
		daily:   deps.Daily,
		tz:      deps.Timezones,
		metrics: deps.Metrics,
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware(b.metrics))
	b.bot.Use(WhitelistMiddleware(b.cfg, b.metrics))
	b.bot.Use(LoggingMiddleware(b.tz))
	if b.daily != nil && b.tz != nil {
		b.bot.Use(DailyResetMiddleware(b.daily, b.tz))
	}
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.guild.HandleStart)
	b.bot.Handle("/help", b.guild.HandleStart)
	b.bot.Handle("/me", b.guild.HandleMe)
	b.bot.Handle("/timezone", b.guild.HandleTimezone)
	b.bot.Handle("/top", b.guild.HandleTop)

	b.bot.Handle("/lift", b.guild.HandleLift)
	b.bot.Handle("/cardio", b.guild.HandleCardio)

	b.bot.Handle("/train", b.guild.HandleTrain)
	b.bot.Handle("/done", b.guild.HandleDone)
	b.bot.Handle("/manual", b.guild.HandleManual)
	b.bot.Handle("/cancel", b.guild.HandleCancel)

	b.bot.Handle("/quests", b.guild.HandleQuests)
	b.bot.Handle("/quest", b.guild.HandleQuest)

	b.bot.Handle("/hp", b.guild.HandleHP)
	b.bot.Handle("/dungeon", b.guild.HandleDungeon)
	b.bot.Handle("/town", b.guild.HandleTown)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// splitCallback returns the unique prefix and payload of button data.
// Telebot prefixes data buttons with \f and joins the payload with |.
func splitCallback(data string) (unique, payload string) {
	data = strings.TrimPrefix(data, "\f")
	unique, payload, _ = strings.Cut(data, "|")
	return unique, payload
}

func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	unique, payload := splitCallback(callback.Data)
	log.Debug().Str("unique", unique).Str("payload", payload).Msg("Callback received")

	switch unique {
	case handler.CallbackTimerConfirm:
		return b.guild.HandleTimerCallback(c, payload)
	default:
		return c.Respond(&tele.CallbackResponse{Text: "❌ Unknown action"})
	}
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
