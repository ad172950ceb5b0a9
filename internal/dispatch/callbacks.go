package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tma_demo_bot/internal/metrics"
	"tma_demo_bot/internal/render"
)

// handleCallback answers the callback query exactly once on every path.
func (d *Dispatcher) handleCallback(ctx context.Context, updateID int64, query *models.CallbackQuery) (Result, error) {
	res := Result{Kind: KindCallback}
	if err := d.requireMessenger("handle callback"); err != nil {
		return res, err
	}

	userID := query.From.ID
	chatID, messageID := originMessage(query.Message)
	log := d.entry(ctx, updateID, userID, chatID, "callback_query").WithField("data", query.Data)

	if strings.HasPrefix(query.Data, render.AdminTokenPrefix) && !d.IsAdmin(userID) {
		metrics.AdminRejectionsTotal.Inc()
		log.WithField("event", "admin_rejected").Warn("admin callback from non-admin user")

		err := d.answer(ctx, query.ID, rejectAdminText)
		res.Acknowledged = err == nil
		return res, err
	}

	var handlerErr error
	if messageID == 0 {
		log.WithField("event", "callback_origin_missing").Warn("callback origin message unavailable; skipping edit")
	} else {
		handlerErr = d.routeCallback(ctx, query.Data, userID, chatID, messageID)
		if handlerErr != nil {
			log.WithError(handlerErr).Error("callback handler failed")
		}
	}

	ackErr := d.answer(ctx, query.ID, "")
	res.Acknowledged = ackErr == nil

	return res, errors.Join(handlerErr, ackErr)
}

func (d *Dispatcher) routeCallback(ctx context.Context, token string, userID, chatID int64, messageID int) error {
	isAdmin := d.IsAdmin(userID)

	switch token {
	case render.TokenAboutMiniApps:
		return d.edit(ctx, chatID, messageID, d.renderer.Render(render.ScreenAbout, isAdmin))
	case render.TokenBackToStart:
		return d.edit(ctx, chatID, messageID, d.renderer.Render(render.ScreenStart, isAdmin))
	case render.TokenAdminPanel:
		return d.edit(ctx, chatID, messageID, d.adminPanel(ctx))
	case render.TokenAdminUsers:
		users, err := d.recent(ctx)
		if err != nil {
			return err
		}
		return d.edit(ctx, chatID, messageID, d.renderer.UserList(users, d.IsAdmin))
	default:
		d.entry(ctx, 0, userID, chatID, "callback_unknown").WithField("data", token).Debug("ignoring unknown callback token")
		return nil
	}
}

// adminPanel scans every session and counts those refreshed within the active
// window. A failed scan renders the panel with the database marked unavailable.
func (d *Dispatcher) adminPanel(ctx context.Context) render.Reply {
	now := d.settings.Now()
	stats := render.AdminStats{
		AdminUsers:      len(d.admins),
		DatabaseOnline:  true,
		GoogleServices:  d.settings.Integrations.Google,
		SpreadsheetSink: d.settings.Integrations.Sheets,
		GeneratedAt:     now,
	}

	users, err := d.recent(ctx)
	if err != nil {
		stats.DatabaseOnline = false
		d.entry(ctx, 0, 0, 0, "admin_panel_scan_failed").WithError(err).Warn("session scan failed")
	}

	cutoff := now.Add(-activeWindow)
	stats.TotalUsers = len(users)
	for _, user := range users {
		if !user.UpdatedAt.Before(cutoff) {
			stats.ActiveUsers++
		}
	}

	return d.renderer.AdminPanel(stats)
}

func (d *Dispatcher) answer(ctx context.Context, queryID, text string) error {
	err := d.call(ctx, "answer callback", func(ctx context.Context) error {
		_, err := d.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: queryID,
			Text:            text,
		})
		return err
	})

	if err != nil {
		metrics.CallbackAcksTotal.WithLabelValues("error").Inc()
		metrics.BotAPIErrorsTotal.WithLabelValues("answerCallbackQuery").Inc()
		return err
	}

	metrics.CallbackAcksTotal.WithLabelValues("ok").Inc()
	return nil
}

func originMessage(msg models.MaybeInaccessibleMessage) (int64, int) {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0, 0
		}
		return msg.Message.Chat.ID, msg.Message.ID
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0, 0
		}
		return msg.InaccessibleMessage.Chat.ID, msg.InaccessibleMessage.MessageID
	default:
		return 0, 0
	}
}
