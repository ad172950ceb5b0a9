package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tma_demo_bot/internal/config"
	"tma_demo_bot/internal/domain"
	"tma_demo_bot/internal/session"
)

// eventLog records the order of side effects across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeMessenger struct {
	log *eventLog

	sent  []*bot.SendMessageParams
	edits []*bot.EditMessageTextParams
	acks  []*bot.AnswerCallbackQueryParams

	sendErr error
	editErr error
	ackErr  error
	// blockSend makes SendMessage wait for its context to end.
	blockSend bool
}

func newFakeMessenger(log *eventLog) *fakeMessenger {
	if log == nil {
		log = &eventLog{}
	}
	return &fakeMessenger{log: log}
}

func (f *fakeMessenger) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.log.add("send")
	if f.blockSend {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, params)
	return &models.Message{ID: len(f.sent)}, nil
}

func (f *fakeMessenger) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*models.Message, error) {
	f.log.add("edit")
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edits = append(f.edits, params)
	return &models.Message{ID: params.MessageID}, nil
}

func (f *fakeMessenger) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.log.add("ack")
	f.acks = append(f.acks, params)
	if f.ackErr != nil {
		return false, f.ackErr
	}
	return true, nil
}

// recordingStore wraps a MemoryStore and records calls.
type recordingStore struct {
	*session.MemoryStore
	log *eventLog

	upserts   []domain.UserProfile
	gets      int
	scans     int
	upsertErr error
	getErr    error
	recentErr error
}

func newRecordingStore(log *eventLog) *recordingStore {
	if log == nil {
		log = &eventLog{}
	}
	return &recordingStore{MemoryStore: session.NewMemoryStore(), log: log}
}

func (s *recordingStore) Upsert(ctx context.Context, profile domain.UserProfile) error {
	s.log.add("upsert")
	s.upserts = append(s.upserts, profile)
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.MemoryStore.Upsert(ctx, profile)
}

func (s *recordingStore) Get(ctx context.Context, userID int64) (domain.UserProfile, bool, error) {
	s.log.add("get")
	s.gets++
	if s.getErr != nil {
		return domain.UserProfile{}, false, s.getErr
	}
	return s.MemoryStore.Get(ctx, userID)
}

func (s *recordingStore) Recent(ctx context.Context, limit int) ([]domain.UserProfile, error) {
	s.log.add("recent")
	s.scans++
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	return s.MemoryStore.Recent(ctx, limit)
}

func (s *recordingStore) seed(profile domain.UserProfile) {
	if err := s.MemoryStore.Upsert(context.Background(), profile); err != nil {
		panic(err)
	}
}

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func testSettings(admins ...int64) Settings {
	return Settings{
		AdminUserIDs: admins,
		WebAppURL:    "https://app.example.com",
		CallTimeout:  time.Second,
		Now:          func() time.Time { return fixedNow },
	}
}

func startUpdate(userID int64, firstName string) *models.Update {
	return &models.Update{
		ID: 100,
		Message: &models.Message{
			ID:   10,
			From: &models.User{ID: userID, FirstName: firstName},
			Chat: models.Chat{ID: userID},
			Text: "/start",
		},
	}
}

func webAppUpdate(userID int64, firstName, data string) *models.Update {
	return &models.Update{
		ID: 101,
		Message: &models.Message{
			ID:         11,
			From:       &models.User{ID: userID, FirstName: firstName},
			Chat:       models.Chat{ID: userID},
			WebAppData: &models.WebAppData{Data: data, ButtonText: "Open"},
		},
	}
}

func callbackUpdate(userID int64, data string) *models.Update {
	return &models.Update{
		ID: 102,
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb-1",
			From: models.User{ID: userID, FirstName: "Cal"},
			Data: data,
			Message: models.MaybeInaccessibleMessage{
				Type:    models.MaybeInaccessibleMessageTypeMessage,
				Message: &models.Message{ID: 55, Chat: models.Chat{ID: userID}},
			},
		},
	}
}

func configWithAdmins(admins []int64) config.Config {
	return config.Config{AdminUserIDs: admins, WebAppURL: "https://app.example.com"}
}
