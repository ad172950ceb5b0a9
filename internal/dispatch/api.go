package dispatch

import (
	"context"
	"errors"
	"time"

	"tma_demo_bot/internal/domain"
	"tma_demo_bot/internal/render"
)

// PingRequest is the body of POST /api/bot/ping after decoding.
type PingRequest struct {
	UserID  int64
	Action  string
	Message string
}

// PingResponse is returned to the Mini App after the chat message was sent.
type PingResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	UserType  string    `json:"userType"`
}

// UserView is the public profile returned by GET /api/user/{userId}.
type UserView struct {
	UserID    int64     `json:"userId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"isAdmin"`
	LastSeen  time.Time `json:"lastSeen"`
}

// APIPing sends the API ping message into the caller's stored chat.
func (d *Dispatcher) APIPing(ctx context.Context, req PingRequest) (PingResponse, error) {
	if d == nil {
		return PingResponse{}, errors.New("dispatcher is not initialized")
	}
	if ctx == nil {
		return PingResponse{}, errors.New("context is required")
	}
	if req.UserID == 0 {
		return PingResponse{}, domain.ValidationError("api ping", "User ID is required", nil)
	}
	if err := d.requireMessenger("api ping"); err != nil {
		return PingResponse{}, err
	}

	profile, found, err := d.lookup(ctx, req.UserID)
	if err != nil {
		return PingResponse{}, err
	}
	if !found {
		return PingResponse{}, domain.NotFoundError("api ping", "User session not found")
	}

	isAdmin := d.IsAdmin(profile.UserID)
	now := d.settings.Now()
	reply := d.renderer.APIPing(render.APIPingView{
		Name:    profile.FirstName,
		IsAdmin: isAdmin,
		Action:  req.Action,
		Message: req.Message,
		At:      now,
	})

	log := d.entry(ctx, 0, profile.UserID, profile.ChatID, "api_ping")
	if err := d.send(ctx, profile.ChatID, reply); err != nil {
		log.WithError(err).Error("failed to send api ping message")
		return PingResponse{}, err
	}
	log.Info("sent api ping message")

	return PingResponse{
		Success:   true,
		Message:   "Ping sent successfully",
		Timestamp: now.UTC(),
		UserType:  domain.RoleFor(isAdmin),
	}, nil
}

// LookupUser returns the stored profile for userID with its admin flag.
func (d *Dispatcher) LookupUser(ctx context.Context, userID int64) (UserView, error) {
	if d == nil {
		return UserView{}, errors.New("dispatcher is not initialized")
	}
	if ctx == nil {
		return UserView{}, errors.New("context is required")
	}
	if userID == 0 {
		return UserView{}, domain.ValidationError("lookup user", "User ID is required", nil)
	}

	profile, found, err := d.lookup(ctx, userID)
	if err != nil {
		return UserView{}, err
	}
	if !found {
		return UserView{}, domain.NotFoundError("lookup user", "User not found")
	}

	return UserView{
		UserID:    profile.UserID,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Username:  profile.Username,
		IsAdmin:   d.IsAdmin(profile.UserID),
		LastSeen:  profile.UpdatedAt,
	}, nil
}
