package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot/models"

	"tma_demo_bot/internal/domain"
	"tma_demo_bot/internal/render"
)

// Web app payload types.
const (
	PayloadPing         = "ping"
	PayloadUserAction   = "user_action"
	PayloadFeatureClick = "feature_click"
)

// handleStart refreshes the sender's session and sends the start screen. A
// failed upsert is logged and does not suppress the reply.
func (d *Dispatcher) handleStart(ctx context.Context, updateID int64, msg *models.Message) error {
	if err := d.requireMessenger("handle start"); err != nil {
		return err
	}

	userID := msg.From.ID
	chatID := msg.Chat.ID
	log := d.entry(ctx, updateID, userID, chatID, "start_command")

	if err := d.upsert(ctx, profileFrom(msg.From, chatID)); err != nil {
		log.WithError(err).Warn("failed to save session before start reply")
	}

	if err := d.send(ctx, chatID, d.renderer.Render(render.ScreenStart, d.IsAdmin(userID))); err != nil {
		log.WithError(err).Error("failed to send start reply")
		return err
	}

	log.Info("sent start screen")
	return nil
}

// webAppPayload is the JSON object a Mini App sends through sendData.
type webAppPayload map[string]any

// parseWebAppPayload fails only on invalid JSON or null. Any other non-object
// value yields an empty payload, which is answered with the generic echo.
func parseWebAppPayload(raw string) (webAppPayload, error) {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, domain.ValidationError("parse web app data", "web app data must be valid JSON", err)
	}
	if decoded == nil {
		return nil, domain.ValidationError("parse web app data", "web app data must not be null", nil)
	}
	if object, ok := decoded.(map[string]any); ok {
		return webAppPayload(object), nil
	}
	return webAppPayload{}, nil
}

// str renders a payload field as text. Missing and null fields are "".
func (p webAppPayload) str(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

// handleWebAppData parses the payload before any side effect; a malformed
// payload fails the update without touching the store. The sender's session is
// refreshed before the reply is sent. Ping reads the prior session first so a
// first-time sender is greeted with the placeholder name.
func (d *Dispatcher) handleWebAppData(ctx context.Context, updateID int64, msg *models.Message) error {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	log := d.entry(ctx, updateID, userID, chatID, "web_app_data")

	payload, err := parseWebAppPayload(msg.WebAppData.Data)
	if err != nil {
		log.WithError(err).Warn("rejected web app data")
		return err
	}
	if err := d.requireMessenger("handle web app data"); err != nil {
		return err
	}

	kind := payload.str("type")
	log = log.WithField("payload_type", kind)

	var prior domain.UserProfile
	if kind == PayloadPing {
		profile, found, err := d.lookup(ctx, userID)
		switch {
		case err != nil:
			log.WithError(err).Warn("session lookup failed; greeting with placeholder")
		case found:
			prior = profile
		}
	}

	if err := d.upsert(ctx, profileFrom(msg.From, chatID)); err != nil {
		log.WithError(err).Warn("failed to save session before web app reply")
	}

	isAdmin := d.IsAdmin(userID)
	now := d.settings.Now()

	var reply render.Reply
	switch kind {
	case PayloadPing:
		reply = d.renderer.Ping(render.PingView{
			Name:           prior.FirstName,
			IsAdmin:        isAdmin,
			Action:         payload.str("action"),
			GoogleServices: d.settings.Integrations.Google,
			At:             now,
		})
	case PayloadUserAction:
		reply = d.renderer.UserAction(render.ActionView{
			Action:  payload.str("action"),
			Details: payload.str("details"),
			IsAdmin: isAdmin,
			At:      now,
		})
	case PayloadFeatureClick:
		reply = d.renderer.FeatureClick(render.FeatureView{
			Feature:  payload.str("feature"),
			UserName: payload.str("userName"),
			Action:   payload.str("action"),
			IsAdmin:  isAdmin,
		})
	default:
		reply = d.renderer.Echo(payload.str("message"))
	}

	if err := d.send(ctx, chatID, reply); err != nil {
		log.WithError(err).Error("failed to send web app reply")
		return err
	}

	log.Info("answered web app data")
	return nil
}
