// Package telegram hosts the Bot API client and feeds long-polled updates to the dispatcher.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tma_demo_bot/internal/config"
	"tma_demo_bot/internal/dispatch"
	"tma_demo_bot/internal/logging"
)

// botAPI is the subset of *bot.Bot the client uses: polling, getMe and the
// calls the dispatcher makes.
type botAPI interface {
	Start(ctx context.Context)
	GetMe(ctx context.Context) (*models.User, error)
	dispatch.Messenger
}

// UpdateHandler receives every update delivered by long polling.
type UpdateHandler interface {
	Dispatch(ctx context.Context, update *models.Update) (dispatch.Result, error)
}

// allowedUpdates lists what the dispatcher can act on; Telegram filters the rest.
var allowedUpdates = bot.AllowedUpdates{
	"message",
	"edited_message",
	"callback_query",
}

var createBot = func(token string, options ...bot.Option) (botAPI, error) {
	return bot.New(token, options...)
}

// Client owns the bot instance and hands polled updates to the installed handler.
type Client struct {
	bot    botAPI
	logger *logrus.Entry
	now    func() time.Time

	mu      sync.RWMutex
	handler UpdateHandler
}

// NewClient creates the bot without contacting Telegram. Updates received
// before SetHandler is called are logged and dropped.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{logger: logger.WithField("component", "telegram"), now: time.Now}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(allowedUpdates),
		bot.WithDefaultHandler(client.handleUpdate),
		bot.WithErrorsHandler(client.handleError),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}
	client.bot = tgBot

	return client, nil
}

// Messenger exposes the Bot API calls used to reply to users.
func (c *Client) Messenger() dispatch.Messenger {
	return c.bot
}

// Username asks Telegram for the bot's own username.
func (c *Client) Username(ctx context.Context) (string, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("telegram getMe: %w", err)
	}
	if me == nil {
		return "", errors.New("telegram getMe: empty response")
	}
	return me.Username, nil
}

// SetHandler installs the handler for polled updates.
func (c *Client) SetHandler(handler UpdateHandler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

func (c *Client) currentHandler() UpdateHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler
}

// Start long-polls until ctx is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": allowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	requestID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, requestID)

	source := describeUpdate(update)
	log := logging.Entry(c.logger, logging.Context{
		UserID:    source.userID,
		ChatID:    source.chatID,
		UpdateID:  update.ID,
		RequestID: requestID,
		Event:     "telegram_update",
	}).WithField("update_type", source.kind)

	handler := c.currentHandler()
	if handler == nil {
		log.Warn("no update handler installed; update dropped")
		return
	}

	started := c.now()
	res, err := handler.Dispatch(ctx, update)
	log = log.WithFields(logging.Fields{
		"handled_as":  string(res.Kind),
		"duration_ms": c.now().Sub(started).Milliseconds(),
	})
	if err != nil {
		log.WithError(err).Error("failed to handle telegram update")
		return
	}
	log.Info("telegram update handled")
}

func (c *Client) handleError(err error) {
	if err == nil {
		return
	}
	c.logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
}

// updateSource identifies who sent an update and where, for logging.
type updateSource struct {
	kind   string
	userID int64
	chatID int64
}

func describeUpdate(update *models.Update) updateSource {
	if query := update.CallbackQuery; query != nil {
		src := updateSource{kind: "callback_query", userID: query.From.ID}
		switch {
		case query.Message.Message != nil:
			src.chatID = query.Message.Message.Chat.ID
		case query.Message.InaccessibleMessage != nil:
			src.chatID = query.Message.InaccessibleMessage.Chat.ID
		}
		return src
	}

	msg, kind := update.Message, "message"
	if msg == nil {
		msg, kind = update.EditedMessage, "edited_message"
	}
	if msg == nil {
		return updateSource{kind: "unknown"}
	}
	if msg.WebAppData != nil {
		kind = "web_app_data"
	}

	src := updateSource{kind: kind, chatID: msg.Chat.ID}
	if msg.From != nil {
		src.userID = msg.From.ID
	}
	return src
}
