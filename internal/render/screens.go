package render

import (
	"fmt"
	"strings"
	"time"

	"tma_demo_bot/internal/domain"
)

// UserListLimit caps the number of users shown on the user list screen.
const UserListLimit = 10

// AdminStats feeds the admin panel.
type AdminStats struct {
	TotalUsers      int
	ActiveUsers     int
	AdminUsers      int
	DatabaseOnline  bool
	GoogleServices  bool
	SpreadsheetSink bool
	GeneratedAt     time.Time
}

// AdminPanel renders the statistics screen shown to admins.
func (r Renderer) AdminPanel(stats AdminStats) Reply {
	var b strings.Builder
	b.WriteString("👑 <b>Admin Panel</b>\n\n")
	b.WriteString("📊 <b>Statistics:</b>\n")
	fmt.Fprintf(&b, "• Total Users: %d\n", stats.TotalUsers)
	fmt.Fprintf(&b, "• Active (24h): %d\n", stats.ActiveUsers)
	b.WriteString("• Bot Status: ✅ Online\n")
	fmt.Fprintf(&b, "• Database: %s\n", check(stats.DatabaseOnline, "Connected", "Unavailable"))
	b.WriteString("• Environment: ✅ Configured\n\n")
	b.WriteString("🔧 <b>Configuration:</b>\n")
	fmt.Fprintf(&b, "• Webapp URL: %s\n", escape(r.WebAppURL))
	fmt.Fprintf(&b, "• Admin Users: %d\n", stats.AdminUsers)
	fmt.Fprintf(&b, "• Google Service: %s\n", check(stats.GoogleServices, "Configured", "Not set"))
	fmt.Fprintf(&b, "• Google Sheets: %s\n\n", check(stats.SpreadsheetSink, "Configured", "Not set"))
	fmt.Fprintf(&b, "<i>Last updated: %s</i>", formatTime(stats.GeneratedAt))

	return Reply{
		Caption: b.String(),
		Keyboard: [][]Button{
			{
				{Label: labelUserList, Action: Invoke(TokenAdminUsers)},
				{Label: labelRefreshStats, Action: Invoke(TokenAdminPanel)},
			},
			{{Label: labelTestMiniApp, Action: OpenView(r.WebAppURL)}},
			{{Label: labelBackToMain, Action: Invoke(TokenBackToStart)}},
		},
	}
}

// UserList renders the first UserListLimit users in the given order followed
// by a count of the remainder.
func (r Renderer) UserList(users []domain.UserProfile, isAdmin func(int64) bool) Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "👥 <b>User List</b> (%d total)\n\n", len(users))

	if len(users) == 0 {
		b.WriteString("<i>No users found</i>")
	}

	for i, user := range users {
		if i == UserListLimit {
			break
		}
		admin := isAdmin != nil && isAdmin(user.UserID)
		fmt.Fprintf(&b, "%d. <b>%s</b>%s\n", i+1, escape(user.DisplayName()), badge(admin))
		fmt.Fprintf(&b, "   @%s • ID: %d\n", escape(orDefault(user.Username, "no_username")), user.UserID)
		fmt.Fprintf(&b, "   Last seen: %s\n\n", user.UpdatedAt.UTC().Format("2006-01-02"))
	}

	if len(users) > UserListLimit {
		fmt.Fprintf(&b, "<i>... and %d more users</i>", len(users)-UserListLimit)
	}

	return Reply{
		Caption: strings.TrimRight(b.String(), "\n"),
		Keyboard: [][]Button{
			{{Label: labelBackToAdminPanel, Action: Invoke(TokenAdminPanel)}},
		},
	}
}

// PingView feeds the web-app-data ping reply.
type PingView struct {
	Name           string
	IsAdmin        bool
	Action         string
	GoogleServices bool
	At             time.Time
}

// Ping renders the reply to a Mini App ping.
func (r Renderer) Ping(view PingView) Reply {
	var b strings.Builder
	b.WriteString("🏓 <b>Ping Success!</b>\n\n")
	fmt.Fprintf(&b, "Hello <b>%s</b>%s! Your Mini App is working perfectly with our integrated stack.\n\n",
		escape(orDefault(view.Name, "User")), badge(view.IsAdmin))
	b.WriteString("📊 <b>Connection Details:</b>\n")
	fmt.Fprintf(&b, "• Action: %s\n", escape(orDefault(view.Action, "ping")))
	fmt.Fprintf(&b, "• Timestamp: %s\n", formatTime(view.At))
	b.WriteString("• Status: ✅ Connected\n")
	b.WriteString("• Database: ✅ Session store connected\n")
	b.WriteString("• Environment: ✅ Configured\n")
	if view.GoogleServices {
		b.WriteString("• Google Services: ✅ Available\n")
	}
	b.WriteString("\nThe communication between your Mini App and this bot is working flawlessly!")

	return Reply{
		Caption: b.String(),
		Keyboard: [][]Button{
			{{Label: labelOpenMiniAppAgain, Action: OpenView(r.WebAppURL)}},
		},
	}
}

// APIPingView feeds the reply sent for POST /api/bot/ping.
type APIPingView struct {
	Name    string
	IsAdmin bool
	Action  string
	Message string
	At      time.Time
}

// APIPing renders the chat message sent for an API ping.
func (r Renderer) APIPing(view APIPingView) Reply {
	var b strings.Builder
	b.WriteString("🏓 <b>API Ping Success!</b>\n\n")
	fmt.Fprintf(&b, "Hello <b>%s</b>%s! Your Mini App API call was successful.\n\n",
		escape(orDefault(view.Name, "User")), badge(view.IsAdmin))
	b.WriteString("📊 <b>Request Details:</b>\n")
	fmt.Fprintf(&b, "• Action: %s\n", escape(orDefault(view.Action, "api_ping")))
	fmt.Fprintf(&b, "• Message: %s\n", escape(orDefault(view.Message, "No message")))
	fmt.Fprintf(&b, "• Timestamp: %s\n", formatTime(view.At))
	b.WriteString("• Method: API Call\n")
	b.WriteString("• Status: ✅ Connected\n")
	fmt.Fprintf(&b, "• User Type: %s\n\n", userType(view.IsAdmin))
	b.WriteString("The API communication is working perfectly with full stack integration!")

	return Reply{Caption: b.String()}
}

// ActionView feeds the user_action acknowledgement.
type ActionView struct {
	Action  string
	Details string
	IsAdmin bool
	At      time.Time
}

// UserAction acknowledges a user_action payload.
func (r Renderer) UserAction(view ActionView) Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "🎯 <b>Action Received!</b>%s\n\n", badge(view.IsAdmin))
	b.WriteString(line("Action", escape(orDefault(view.Action, "Unknown"))))
	b.WriteString(line("Details", escape(orDefault(view.Details, "No additional details"))))
	b.WriteString(line("Time", formatTime(view.At)))
	b.WriteString(line("User Type", userType(view.IsAdmin)))
	b.WriteString("\nYour Mini App interaction was processed successfully!")

	return Reply{Caption: b.String()}
}

// FeatureView feeds the feature_click acknowledgement.
type FeatureView struct {
	Feature  string
	UserName string
	Action   string
	IsAdmin  bool
}

// FeatureClick acknowledges a feature_click payload.
func (r Renderer) FeatureClick(view FeatureView) Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "⚡ <b>Feature Interaction!</b>%s\n\n", badge(view.IsAdmin))
	b.WriteString(line("Feature", escape(orDefault(view.Feature, "Unknown"))))
	b.WriteString(line("User", escape(orDefault(view.UserName, "Unknown"))))
	b.WriteString(line("Action", escape(orDefault(view.Action, "click"))))
	b.WriteString(line("Access Level", userType(view.IsAdmin)))
	b.WriteString("\nThanks for exploring the Mini App features powered by our integrated stack!")

	return Reply{Caption: b.String()}
}

// Echo acknowledges any other Mini App payload.
func (r Renderer) Echo(message string) Reply {
	return Reply{
		Caption: "✅ Received data from Mini App: " + escape(orDefault(message, "Unknown action")),
	}
}
