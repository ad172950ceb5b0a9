// Package dispatch classifies inbound Telegram updates and runs exactly one
// handler per update. Webhook and long-polling transports share it.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tma_demo_bot/internal/config"
	"tma_demo_bot/internal/domain"
	"tma_demo_bot/internal/logging"
	"tma_demo_bot/internal/metrics"
	"tma_demo_bot/internal/render"
	"tma_demo_bot/internal/session"
)

// Messenger is the subset of *bot.Bot the dispatcher calls.
type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Settings is the immutable configuration a Dispatcher is built with.
type Settings struct {
	AdminUserIDs []int64
	WebAppURL    string
	// BotUsername is matched against "/start@name". Empty accepts only the bare command.
	BotUsername  string
	Integrations config.Integrations
	// CallTimeout bounds every Bot API and session store call. Zero disables it.
	CallTimeout time.Duration
	Now         func() time.Time
}

// SettingsFromConfig derives Settings from the loaded configuration.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		AdminUserIDs: append([]int64(nil), cfg.AdminUserIDs...),
		WebAppURL:    cfg.WebAppURL,
		Integrations: cfg.Integrations(),
		CallTimeout:  cfg.CallTimeout,
	}
}

// Kind names the handler that ran for an update.
type Kind string

const (
	KindNoop       Kind = "noop"
	KindCallback   Kind = "callback_query"
	KindStart      Kind = "start"
	KindWebAppData Kind = "web_app_data"
)

const (
	rejectAdminText = "❌ Admin access required"
	activeWindow    = 24 * time.Hour
)

// Result reports what Dispatch did.
type Result struct {
	Kind Kind
	// Acknowledged is true when the callback acknowledgement succeeded.
	Acknowledged bool
}

// Dispatcher routes updates to handlers.
type Dispatcher struct {
	settings Settings
	admins   map[int64]struct{}
	renderer render.Renderer
	store    session.Store
	api      Messenger
	logger   *logrus.Entry
}

// New constructs a Dispatcher. A nil api leaves the dispatcher able to serve
// read-only lookups while every Bot API path reports a configuration error.
func New(settings Settings, store session.Store, api Messenger, logger *logrus.Entry) *Dispatcher {
	if logger == nil {
		logger = logging.Logger()
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	admins := make(map[int64]struct{}, len(settings.AdminUserIDs))
	for _, id := range settings.AdminUserIDs {
		admins[id] = struct{}{}
	}

	return &Dispatcher{
		settings: settings,
		admins:   admins,
		renderer: render.Renderer{WebAppURL: settings.WebAppURL},
		store:    store,
		api:      api,
		logger:   logger,
	}
}

// IsAdmin reports whether userID is on the admin allow-list.
func (d *Dispatcher) IsAdmin(userID int64) bool {
	_, ok := d.admins[userID]
	return ok
}

// Dispatch classifies update and runs its handler. Classification order is
// callback query, /start, web app data; anything else is a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, update *models.Update) (Result, error) {
	if d == nil {
		return Result{}, errors.New("dispatcher is not initialized")
	}
	if ctx == nil {
		return Result{}, errors.New("context is required")
	}
	if update == nil {
		return d.count(Result{Kind: KindNoop}), nil
	}

	switch {
	case update.CallbackQuery != nil:
		res, err := d.handleCallback(ctx, update.ID, update.CallbackQuery)
		return d.count(res), err

	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		switch {
		case isStartCommand(msg.Text, d.settings.BotUsername):
			return d.count(Result{Kind: KindStart}), d.handleStart(ctx, update.ID, msg)
		case msg.WebAppData != nil:
			return d.count(Result{Kind: KindWebAppData}), d.handleWebAppData(ctx, update.ID, msg)
		}
	}

	return d.count(Result{Kind: KindNoop}), nil
}

func (d *Dispatcher) count(res Result) Result {
	metrics.UpdatesTotal.WithLabelValues(string(res.Kind)).Inc()
	return res
}

// isStartCommand accepts "/start" and "/start payload". "/start@name" counts
// only when name is this bot; in groups it may address another bot.
func isStartCommand(text, botUsername string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	command, target, addressed := strings.Cut(fields[0], "@")
	if command != "/start" {
		return false
	}
	if !addressed {
		return true
	}
	return botUsername != "" && strings.EqualFold(target, strings.TrimPrefix(botUsername, "@"))
}

func (d *Dispatcher) entry(ctx context.Context, updateID, userID, chatID int64, event string) *logrus.Entry {
	return logging.Entry(d.logger, logging.Context{
		UserID:    userID,
		ChatID:    chatID,
		UpdateID:  updateID,
		RequestID: logging.RequestID(ctx),
		Event:     event,
	})
}

func (d *Dispatcher) requireMessenger(op string) error {
	if d.api == nil {
		return domain.ConfigurationError(op, "telegram bot token is not configured")
	}
	return nil
}

func (d *Dispatcher) requireStore(op string) error {
	if d.store == nil {
		return domain.ConfigurationError(op, "session store is not configured")
	}
	return nil
}

// call runs fn under the configured timeout and classifies any failure as an
// upstream error.
func (d *Dispatcher) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	callCtx := ctx
	if d.settings.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.settings.CallTimeout)
		defer cancel()
	}

	if err := fn(callCtx); err != nil {
		return domain.UpstreamError(op, err)
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, reply render.Reply) error {
	if err := d.requireMessenger("send message"); err != nil {
		return err
	}

	return d.call(ctx, "send message", func(ctx context.Context) error {
		_, err := d.api.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        reply.Caption,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: render.Markup(reply),
		})
		if err != nil {
			metrics.BotAPIErrorsTotal.WithLabelValues("sendMessage").Inc()
		}
		return err
	})
}

func (d *Dispatcher) edit(ctx context.Context, chatID int64, messageID int, reply render.Reply) error {
	if err := d.requireMessenger("edit message"); err != nil {
		return err
	}

	return d.call(ctx, "edit message", func(ctx context.Context) error {
		_, err := d.api.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      chatID,
			MessageID:   messageID,
			Text:        reply.Caption,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: render.Markup(reply),
		})
		// Refreshing an unchanged screen is not a failure.
		if err != nil && strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		if err != nil {
			metrics.BotAPIErrorsTotal.WithLabelValues("editMessageText").Inc()
		}
		return err
	})
}

func (d *Dispatcher) upsert(ctx context.Context, profile domain.UserProfile) error {
	if err := d.requireStore("upsert session"); err != nil {
		return err
	}

	return d.call(ctx, "upsert session", func(ctx context.Context) error {
		err := d.store.Upsert(ctx, profile)
		if err != nil {
			metrics.StoreErrorsTotal.WithLabelValues("upsert").Inc()
		}
		return err
	})
}

func (d *Dispatcher) lookup(ctx context.Context, userID int64) (domain.UserProfile, bool, error) {
	if err := d.requireStore("get session"); err != nil {
		return domain.UserProfile{}, false, err
	}

	var (
		profile domain.UserProfile
		found   bool
	)
	err := d.call(ctx, "get session", func(ctx context.Context) error {
		var err error
		profile, found, err = d.store.Get(ctx, userID)
		if err != nil {
			metrics.StoreErrorsTotal.WithLabelValues("get").Inc()
		}
		return err
	})

	return profile, found, err
}

func (d *Dispatcher) recent(ctx context.Context) ([]domain.UserProfile, error) {
	if err := d.requireStore("list sessions"); err != nil {
		return nil, err
	}

	var profiles []domain.UserProfile
	err := d.call(ctx, "list sessions", func(ctx context.Context) error {
		var err error
		profiles, err = d.store.Recent(ctx, 0)
		if err != nil {
			metrics.StoreErrorsTotal.WithLabelValues("recent").Inc()
		}
		return err
	})

	return profiles, err
}

func profileFrom(user *models.User, chatID int64) domain.UserProfile {
	return domain.UserProfile{
		UserID:    user.ID,
		ChatID:    chatID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}
