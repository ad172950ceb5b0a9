package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tma_demo_bot/internal/config"
	"tma_demo_bot/internal/dispatch"
	"tma_demo_bot/internal/logging"
)

type fakeBot struct {
	startedWith context.Context
	me          *models.User
	meErr       error
}

func (f *fakeBot) GetMe(context.Context) (*models.User, error) {
	return f.me, f.meErr
}

func (f *fakeBot) Start(ctx context.Context) {
	f.startedWith = ctx
}

func (f *fakeBot) SendMessage(context.Context, *bot.SendMessageParams) (*models.Message, error) {
	return &models.Message{ID: 1}, nil
}

func (f *fakeBot) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*models.Message, error) {
	return &models.Message{ID: params.MessageID}, nil
}

func (f *fakeBot) AnswerCallbackQuery(context.Context, *bot.AnswerCallbackQueryParams) (bool, error) {
	return true, nil
}

type fakeHandler struct {
	updates    []*models.Update
	requestIDs []string
	kind       dispatch.Kind
	err        error
}

func (f *fakeHandler) Dispatch(ctx context.Context, update *models.Update) (dispatch.Result, error) {
	f.updates = append(f.updates, update)
	f.requestIDs = append(f.requestIDs, logging.RequestID(ctx))
	return dispatch.Result{Kind: f.kind}, f.err
}

func newTestClient(t *testing.T) (*Client, *logtest.Hook) {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	tick := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return &Client{
		bot:    &fakeBot{},
		logger: logrus.NewEntry(logger),
		now: func() time.Time {
			tick = tick.Add(15 * time.Millisecond)
			return tick
		},
	}, hook
}

func TestNewClientCreatesBot(t *testing.T) {
	prev := createBot
	t.Cleanup(func() { createBot = prev })

	var gotToken string
	var gotOptions []bot.Option
	b := &fakeBot{}
	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		gotToken = token
		gotOptions = options
		return b, nil
	}

	logger, _ := logtest.NewNullLogger()
	client, err := NewClient(config.Config{TelegramToken: "token-123"}, logrus.NewEntry(logger))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if client.Messenger() != b {
		t.Fatalf("expected messenger to be the created bot")
	}
	if gotToken != "token-123" {
		t.Fatalf("expected token token-123, got %q", gotToken)
	}
	if len(gotOptions) != 3 {
		t.Fatalf("expected allowed updates, default handler and error handler options, got %d", len(gotOptions))
	}
	if client.logger.Data["component"] != "telegram" {
		t.Fatalf("expected component field, got %v", client.logger.Data)
	}
}

func TestNewClientErrors(t *testing.T) {
	if _, err := NewClient(config.Config{TelegramToken: "  "}, nil); err == nil {
		t.Fatalf("expected error for empty token")
	}

	prev := createBot
	t.Cleanup(func() { createBot = prev })

	errCreate := errors.New("invalid token format")
	createBot = func(string, ...bot.Option) (botAPI, error) { return nil, errCreate }

	if _, err := NewClient(config.Config{TelegramToken: "token"}, nil); !errors.Is(err, errCreate) {
		t.Fatalf("expected wrapped create error, got %v", err)
	}
}

func TestClientStartLogsAroundPolling(t *testing.T) {
	client, hook := newTestClient(t)

	ctx := context.Background()
	client.Start(ctx)

	if client.bot.(*fakeBot).startedWith != ctx {
		t.Fatalf("expected bot to start with provided context")
	}

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected start and stop entries, got %d", len(entries))
	}
	if entries[0].Data["event"] != "telegram_listen" || entries[1].Data["event"] != "telegram_stopped" {
		t.Fatalf("unexpected events %v, %v", entries[0].Data["event"], entries[1].Data["event"])
	}
}

func TestDescribeUpdate(t *testing.T) {
	tests := []struct {
		name   string
		update *models.Update
		want   updateSource
	}{
		{
			name: "message",
			update: &models.Update{Message: &models.Message{
				From: &models.User{ID: 10},
				Chat: models.Chat{ID: 20},
				Text: "/start",
			}},
			want: updateSource{kind: "message", userID: 10, chatID: 20},
		},
		{
			name: "web app data",
			update: &models.Update{Message: &models.Message{
				From:       &models.User{ID: 15},
				Chat:       models.Chat{ID: 25},
				WebAppData: &models.WebAppData{Data: `{"action":"ping"}`, ButtonText: "Open"},
			}},
			want: updateSource{kind: "web_app_data", userID: 15, chatID: 25},
		},
		{
			name:   "channel post without sender",
			update: &models.Update{Message: &models.Message{Chat: models.Chat{ID: -100}}},
			want:   updateSource{kind: "message", chatID: -100},
		},
		{
			name: "edited message",
			update: &models.Update{EditedMessage: &models.Message{
				From: &models.User{ID: 11},
				Chat: models.Chat{ID: 21},
			}},
			want: updateSource{kind: "edited_message", userID: 11, chatID: 21},
		},
		{
			name: "callback query",
			update: &models.Update{CallbackQuery: &models.CallbackQuery{
				From: models.User{ID: 12},
				Data: "about_mini_apps",
				Message: models.MaybeInaccessibleMessage{
					Type:    models.MaybeInaccessibleMessageTypeMessage,
					Message: &models.Message{Chat: models.Chat{ID: 22}},
				},
			}},
			want: updateSource{kind: "callback_query", userID: 12, chatID: 22},
		},
		{
			name: "inaccessible callback message",
			update: &models.Update{CallbackQuery: &models.CallbackQuery{
				From: models.User{ID: 13},
				Message: models.MaybeInaccessibleMessage{
					Type:                models.MaybeInaccessibleMessageTypeInaccessibleMessage,
					InaccessibleMessage: &models.InaccessibleMessage{Chat: models.Chat{ID: 23}},
				},
			}},
			want: updateSource{kind: "callback_query", userID: 13, chatID: 23},
		},
		{
			name:   "inline callback without message",
			update: &models.Update{CallbackQuery: &models.CallbackQuery{From: models.User{ID: 14}}},
			want:   updateSource{kind: "callback_query", userID: 14},
		},
		{
			name:   "unknown",
			update: &models.Update{},
			want:   updateSource{kind: "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeUpdate(tt.update); got != tt.want {
				t.Fatalf("describeUpdate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHandleUpdateDispatchesWithRequestID(t *testing.T) {
	client, hook := newTestClient(t)
	handler := &fakeHandler{kind: dispatch.KindStart}
	client.SetHandler(handler)

	update := &models.Update{
		ID: 7,
		Message: &models.Message{
			From: &models.User{ID: 99},
			Chat: models.Chat{ID: 199},
			Text: "/start",
		},
	}
	client.handleUpdate(context.Background(), nil, update)

	if len(handler.updates) != 1 || handler.updates[0] != update {
		t.Fatalf("expected update to reach the handler, got %+v", handler.updates)
	}
	if handler.requestIDs[0] == "" {
		t.Fatalf("expected request id in dispatch context")
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.InfoLevel {
		t.Fatalf("expected info entry, got %+v", entry)
	}
	want := logging.Fields{
		"event":       "telegram_update",
		"update_type": "message",
		"update_id":   int64(7),
		"user_id":     int64(99),
		"chat_id":     int64(199),
		"request_id":  handler.requestIDs[0],
		"handled_as":  "start",
		"duration_ms": int64(15),
	}
	for key, value := range want {
		if entry.Data[key] != value {
			t.Fatalf("expected %s=%v, got %v", key, value, entry.Data[key])
		}
	}
}

func TestHandleUpdateLogsDispatchError(t *testing.T) {
	client, hook := newTestClient(t)
	client.SetHandler(&fakeHandler{kind: dispatch.KindStart, err: errors.New("send failed")})

	client.handleUpdate(context.Background(), nil, &models.Update{
		Message: &models.Message{From: &models.User{ID: 1}, Chat: models.Chat{ID: 1}, Text: "/start"},
	})

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected error entry, got %+v", entry)
	}
	if entry.Data[logrus.ErrorKey] == nil {
		t.Fatalf("expected error field, got %v", entry.Data)
	}
}

func TestHandleUpdateWithoutHandlerDropsUpdate(t *testing.T) {
	client, hook := newTestClient(t)

	client.handleUpdate(context.Background(), nil, &models.Update{ID: 3})
	client.handleUpdate(context.Background(), nil, nil)

	if len(hook.AllEntries()) != 1 {
		t.Fatalf("expected one entry for the dropped update, got %d", len(hook.AllEntries()))
	}
	if hook.LastEntry().Level != logrus.WarnLevel {
		t.Fatalf("expected warning for dropped update, got %s", hook.LastEntry().Level)
	}
}

func TestHandleErrorLogs(t *testing.T) {
	client, hook := newTestClient(t)

	client.handleError(nil)
	client.handleError(errors.New("conflict: terminated by other getUpdates request"))

	if len(hook.AllEntries()) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(hook.AllEntries()))
	}
	if hook.LastEntry().Data["event"] != "telegram_error" {
		t.Fatalf("expected telegram_error event, got %v", hook.LastEntry().Data["event"])
	}
}

func TestUsernameQueriesGetMe(t *testing.T) {
	client, _ := newTestClient(t)
	fb := client.bot.(*fakeBot)

	fb.me = &models.User{ID: 1, IsBot: true, Username: "tma_demo_bot"}
	name, err := client.Username(context.Background())
	if err != nil || name != "tma_demo_bot" {
		t.Fatalf("expected tma_demo_bot, got %q (err %v)", name, err)
	}

	fb.me, fb.meErr = nil, errors.New("unauthorized")
	if _, err := client.Username(context.Background()); !errors.Is(err, fb.meErr) {
		t.Fatalf("expected wrapped getMe error, got %v", err)
	}

	fb.meErr = nil
	if _, err := client.Username(context.Background()); err == nil {
		t.Fatalf("expected error for empty getMe response")
	}
}
