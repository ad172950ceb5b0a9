// Package render turns screens and handler results into HTML captions and
// inline keyboards. Nothing here performs I/O; equal inputs always produce
// equal replies.
package render

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Screen names a navigable bot screen.
type Screen string

const (
	ScreenStart Screen = "start"
	ScreenAbout Screen = "about"
)

// Callback tokens carried by invoke buttons.
const (
	TokenAboutMiniApps = "about_mini_apps"
	TokenAdminPanel    = "admin_panel"
	TokenAdminUsers    = "admin_users"
	TokenBackToStart   = "back_to_start"

	// AdminTokenPrefix marks callback tokens restricted to the admin allow-list.
	AdminTokenPrefix = "admin_"
)

// ActionKind tells how Telegram should react when a button is pressed.
type ActionKind int

const (
	// ActionOpenView opens Target as a Mini App.
	ActionOpenView ActionKind = iota + 1
	// ActionInvoke sends Target back to the bot as callback data.
	ActionInvoke
)

// Action is what a button does.
type Action struct {
	Kind   ActionKind
	Target string
}

// OpenView returns an action opening url as a Mini App.
func OpenView(url string) Action {
	return Action{Kind: ActionOpenView, Target: url}
}

// Invoke returns an action sending token as callback data.
func Invoke(token string) Action {
	return Action{Kind: ActionInvoke, Target: token}
}

// Button is a single inline keyboard button.
type Button struct {
	Label  string
	Action Action
}

// Reply is a caption plus an ordered list of button rows.
type Reply struct {
	Caption  string
	Keyboard [][]Button
}

const (
	adminBadge = " 👑"
	timeLayout = "2006-01-02 15:04:05 MST"

	labelOpenMiniApp      = "🎯 Open Mini App"
	labelOpenMiniAppAgain = "🎯 Open Mini App Again"
	labelAboutMiniApps    = "📱 About Mini Apps"
	labelAdminPanel       = "👑 Admin Panel"
	labelBackToStart      = "🔙 Back to Start"
	labelUserList         = "📊 User List"
	labelRefreshStats     = "🔄 Refresh Stats"
	labelTestMiniApp      = "📱 Test Mini App"
	labelBackToMain       = "🔙 Back to Main"
	labelBackToAdminPanel = "🔙 Back to Admin Panel"
)

// Renderer holds the immutable values every screen needs.
type Renderer struct {
	WebAppURL string
}

// Render builds a navigable screen. Screens that support an admin row append
// it last when isAdmin is true. Unknown screens fall back to the start screen.
func (r Renderer) Render(screen Screen, isAdmin bool) Reply {
	switch screen {
	case ScreenAbout:
		return r.about()
	default:
		return r.start(isAdmin)
	}
}

// SupportsAdminRow reports whether screen gains a row for admins.
func SupportsAdminRow(screen Screen) bool {
	return screen != ScreenAbout
}

func (r Renderer) start(isAdmin bool) Reply {
	var b strings.Builder
	b.WriteString("🚀 <b>Welcome to TMA Demo Bot!</b>")
	b.WriteString(badge(isAdmin))
	b.WriteString("\n\nThis bot demonstrates Telegram Mini App integration with a Go backend and advanced features.\n\n")
	if isAdmin {
		b.WriteString("👑 <i>Admin privileges detected</i>\n\n")
	}
	b.WriteString("Click the button below to open the Mini App:")

	keyboard := [][]Button{
		{{Label: labelOpenMiniApp, Action: OpenView(r.WebAppURL)}},
		{{Label: labelAboutMiniApps, Action: Invoke(TokenAboutMiniApps)}},
	}
	if isAdmin {
		keyboard = append(keyboard, []Button{{Label: labelAdminPanel, Action: Invoke(TokenAdminPanel)}})
	}

	return Reply{Caption: b.String(), Keyboard: keyboard}
}

func (r Renderer) about() Reply {
	caption := `📱 <b>About Telegram Mini Apps</b>

Mini Apps are lightweight applications that run inside Telegram. They provide:

✅ Native Telegram integration
✅ Seamless user experience
✅ Access to user data (with permission)
✅ Haptic feedback
✅ Theme integration
✅ Payment processing
✅ Cloud storage
✅ Session storage backed by MongoDB or Redis
✅ Google Sheets metrics export

<b>This demo showcases:</b>
• React + TypeScript frontend
• Go bot backend with webhook and long polling transports
• Persistent user sessions
• Admin panel functionality
• Secure environment management

Try our demo Mini App to see these features in action!`

	return Reply{
		Caption: caption,
		Keyboard: [][]Button{
			{{Label: labelOpenMiniApp, Action: OpenView(r.WebAppURL)}},
			{{Label: labelBackToStart, Action: Invoke(TokenBackToStart)}},
		},
	}
}

func badge(isAdmin bool) string {
	if isAdmin {
		return adminBadge
	}
	return ""
}

func userType(isAdmin bool) string {
	if isAdmin {
		return "Admin"
	}
	return "User"
}

func check(ok bool, yes, no string) string {
	if ok {
		return "✅ " + yes
	}
	return "❌ " + no
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func escape(value string) string {
	return html.EscapeString(value)
}

func line(label, value string) string {
	return fmt.Sprintf("<b>%s:</b> %s\n", label, value)
}
