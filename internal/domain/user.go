package domain

import (
	"strings"
	"time"
)

// UserProfile is the session record kept for every Telegram user that has
// talked to the bot. UserID is the primary key; ChatID always holds the most
// recent conversation.
type UserProfile struct {
	UserID    int64     `bson:"user_id" json:"userId"`
	ChatID    int64     `bson:"chat_id" json:"chatId"`
	Username  string    `bson:"username,omitempty" json:"username,omitempty"`
	FirstName string    `bson:"first_name" json:"firstName"`
	LastName  string    `bson:"last_name,omitempty" json:"lastName,omitempty"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// DisplayName joins first and last name.
func (p UserProfile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// SameIdentity reports whether two profiles are equal in every field except
// UpdatedAt.
func (p UserProfile) SameIdentity(other UserProfile) bool {
	return p.UserID == other.UserID &&
		p.ChatID == other.ChatID &&
		p.Username == other.Username &&
		p.FirstName == other.FirstName &&
		p.LastName == other.LastName
}
