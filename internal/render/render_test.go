package render

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"

	"tma_demo_bot/internal/domain"
)

const testWebAppURL = "https://app.example.com"

func TestRenderIsPure(t *testing.T) {
	r := Renderer{WebAppURL: testWebAppURL}

	for _, screen := range []Screen{ScreenStart, ScreenAbout} {
		for _, isAdmin := range []bool{false, true} {
			first := r.Render(screen, isAdmin)
			second := r.Render(screen, isAdmin)
			if !reflect.DeepEqual(first, second) {
				t.Fatalf("render(%s, %t) is not deterministic", screen, isAdmin)
			}
		}
	}
}

func TestRenderAdminRowPresentOnlyForAdmins(t *testing.T) {
	r := Renderer{WebAppURL: testWebAppURL}

	for _, screen := range []Screen{ScreenStart, ScreenAbout} {
		user := r.Render(screen, false)
		admin := r.Render(screen, true)

		if hasAdminButton(user) {
			t.Fatalf("screen %s rendered an admin row for a regular user", screen)
		}
		if SupportsAdminRow(screen) {
			if len(admin.Keyboard) != len(user.Keyboard)+1 {
				t.Fatalf("expected admin keyboard for %s to gain one row, got %d vs %d", screen, len(admin.Keyboard), len(user.Keyboard))
			}
			last := admin.Keyboard[len(admin.Keyboard)-1]
			if len(last) != 1 || last[0].Action != Invoke(TokenAdminPanel) {
				t.Fatalf("expected admin panel row last, got %+v", last)
			}
		} else if !reflect.DeepEqual(user, admin) {
			t.Fatalf("screen %s should not depend on admin flag", screen)
		}
	}
}

func TestStartScreenCaptionCarriesBadge(t *testing.T) {
	r := Renderer{WebAppURL: testWebAppURL}

	admin := r.Render(ScreenStart, true)
	if !strings.Contains(admin.Caption, "👑") || !strings.Contains(admin.Caption, "Admin privileges detected") {
		t.Fatalf("expected admin caption markers, got %q", admin.Caption)
	}

	user := r.Render(ScreenStart, false)
	if strings.Contains(user.Caption, "👑") {
		t.Fatalf("expected no badge for regular user, got %q", user.Caption)
	}

	wantRows := []Button{
		{Label: "🎯 Open Mini App", Action: OpenView(testWebAppURL)},
		{Label: "📱 About Mini Apps", Action: Invoke(TokenAboutMiniApps)},
		{Label: "👑 Admin Panel", Action: Invoke(TokenAdminPanel)},
	}
	if len(admin.Keyboard) != len(wantRows) {
		t.Fatalf("expected %d rows, got %d", len(wantRows), len(admin.Keyboard))
	}
	for i, want := range wantRows {
		if admin.Keyboard[i][0] != want {
			t.Fatalf("row %d: expected %+v, got %+v", i, want, admin.Keyboard[i][0])
		}
	}
}

func TestUserListTruncatesAfterLimit(t *testing.T) {
	r := Renderer{WebAppURL: testWebAppURL}
	seen := time.Date(2026, 10, 10, 8, 0, 0, 0, time.UTC)

	users := make([]domain.UserProfile, 0, 12)
	for i := 1; i <= 12; i++ {
		users = append(users, domain.UserProfile{UserID: int64(i), FirstName: "U", UpdatedAt: seen})
	}

	reply := r.UserList(users, func(id int64) bool { return id == 1 })

	if !strings.Contains(reply.Caption, "(12 total)") {
		t.Fatalf("expected total count in caption, got %q", reply.Caption)
	}
	if !strings.Contains(reply.Caption, "... and 2 more users") {
		t.Fatalf("expected remainder line, got %q", reply.Caption)
	}
	if strings.Contains(reply.Caption, "11. ") {
		t.Fatalf("expected at most %d entries, got %q", UserListLimit, reply.Caption)
	}
	if !strings.Contains(reply.Caption, "1. <b>U</b> 👑") {
		t.Fatalf("expected admin badge on first user, got %q", reply.Caption)
	}
	if !strings.Contains(reply.Caption, "@no_username") {
		t.Fatalf("expected username placeholder, got %q", reply.Caption)
	}
}

func TestUserListEmpty(t *testing.T) {
	reply := Renderer{}.UserList(nil, nil)

	if !strings.Contains(reply.Caption, "No users found") {
		t.Fatalf("expected empty marker, got %q", reply.Caption)
	}
	if len(reply.Keyboard) != 1 || reply.Keyboard[0][0].Action != Invoke(TokenAdminPanel) {
		t.Fatalf("expected back to admin panel row, got %+v", reply.Keyboard)
	}
}

func TestPingUsesPlaceholderName(t *testing.T) {
	r := Renderer{WebAppURL: testWebAppURL}

	reply := r.Ping(PingView{At: time.Date(2026, 10, 10, 8, 0, 0, 0, time.UTC)})

	if !strings.Contains(reply.Caption, "Hello <b>User</b>") {
		t.Fatalf("expected placeholder name, got %q", reply.Caption)
	}
	if len(reply.Keyboard) != 1 || reply.Keyboard[0][0].Action != OpenView(testWebAppURL) {
		t.Fatalf("expected open again button, got %+v", reply.Keyboard)
	}
}

func TestPayloadStringsAreEscaped(t *testing.T) {
	r := Renderer{}

	reply := r.UserAction(ActionView{Action: "<script>", Details: "a & b"})
	if strings.Contains(reply.Caption, "<script>") {
		t.Fatalf("expected action to be escaped, got %q", reply.Caption)
	}
	if !strings.Contains(reply.Caption, "a &amp; b") {
		t.Fatalf("expected details to be escaped, got %q", reply.Caption)
	}
}

func TestDataRepliesDefaults(t *testing.T) {
	r := Renderer{}

	tests := []struct {
		name  string
		reply Reply
		want  string
	}{
		{name: "echo placeholder", reply: r.Echo(""), want: "Received data from Mini App: Unknown action"},
		{name: "echo message", reply: r.Echo("hi"), want: "Received data from Mini App: hi"},
		{name: "action details", reply: r.UserAction(ActionView{Action: "tap"}), want: "No additional details"},
		{name: "feature user", reply: r.FeatureClick(FeatureView{Feature: "theme"}), want: "<b>User:</b> Unknown"},
		{name: "feature action", reply: r.FeatureClick(FeatureView{Feature: "theme"}), want: "<b>Action:</b> click"},
		{name: "api ping action", reply: r.APIPing(APIPingView{Name: "Ann"}), want: "Action: api_ping"},
		{name: "api ping message", reply: r.APIPing(APIPingView{Name: "Ann"}), want: "Message: No message"},
		{name: "admin panel sheets", reply: r.AdminPanel(AdminStats{}), want: "Google Sheets: ❌ Not set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.reply.Caption, tt.want) {
				t.Fatalf("expected %q in %q", tt.want, tt.reply.Caption)
			}
		})
	}
}

func TestMarkupConvertsButtons(t *testing.T) {
	reply := Renderer{WebAppURL: testWebAppURL}.Render(ScreenStart, false)

	markup, ok := Markup(reply).(*models.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard markup, got %T", Markup(reply))
	}
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(markup.InlineKeyboard))
	}

	open := markup.InlineKeyboard[0][0]
	if open.WebApp == nil || open.WebApp.URL != testWebAppURL || open.CallbackData != "" {
		t.Fatalf("expected web app button, got %+v", open)
	}

	about := markup.InlineKeyboard[1][0]
	if about.WebApp != nil || about.CallbackData != TokenAboutMiniApps {
		t.Fatalf("expected callback button, got %+v", about)
	}
}

func TestMarkupOmitsEmptyKeyboard(t *testing.T) {
	if markup := Markup(Reply{Caption: "x"}); markup != nil {
		t.Fatalf("expected nil markup, got %#v", markup)
	}
}

func hasAdminButton(reply Reply) bool {
	for _, row := range reply.Keyboard {
		for _, button := range row {
			if button.Action.Kind == ActionInvoke && strings.HasPrefix(button.Action.Target, AdminTokenPrefix) {
				return true
			}
		}
	}
	return false
}
