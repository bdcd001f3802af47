package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-coffee-bot/internal/domain"
	"github.com/tbourn/go-coffee-bot/internal/notify"
	"github.com/tbourn/go-coffee-bot/internal/repo"
	"github.com/tbourn/go-coffee-bot/internal/services"
)

// fakeAPI records everything sent through the Telegram client seam.
type fakeAPI struct {
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable

	endpoints []string
	params    []tgbotapi.Params
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.endpoints = append(f.endpoints, endpoint)
	f.params = append(f.params, params)
	return &tgbotapi.APIResponse{Ok: true, Result: json.RawMessage(`{"message_id": 777}`)}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	ch := make(chan tgbotapi.Update)
	close(ch)
	return ch
}

func (f *fakeAPI) StopReceivingUpdates() {}

// lastSentText extracts the text of the most recent Send.
func (f *fakeAPI) lastSentText(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	msg, ok := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("last send is %T, not MessageConfig", f.sent[len(f.sent)-1])
	}
	return msg.Text
}

// fakeGateway is an in-memory notify.Gateway for the DM side.
type fakeGateway struct {
	delivered map[int64][]string
	outcome   notify.Outcome
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{delivered: map[int64][]string{}, outcome: notify.Delivered}
}

func (g *fakeGateway) Deliver(_ context.Context, recipientID int64, text string, _ [][]notify.Choice) (notify.Outcome, error) {
	if g.outcome == notify.Delivered {
		g.delivered[recipientID] = append(g.delivered[recipientID], text)
	}
	return g.outcome, nil
}

func (g *fakeGateway) Announce(context.Context, int64, *int, string) (notify.Outcome, error) {
	return notify.Delivered, nil
}

func newTestBot(t *testing.T, adminIDs ...int64) (*Bot, *fakeAPI, *fakeGateway, *gorm.DB) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("bot_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	api := &fakeAPI{}
	gw := newFakeGateway()
	roster := services.NewRosterService(db)
	matching := services.NewMatchingService(db, gw, "", zerolog.Nop())
	followUp := services.NewFollowUpService(db, gw, zerolog.Nop())

	b := newBot(api, "coffee_bot", db, roster, matching, followUp, gw, adminIDs, zerolog.Nop())
	return b, api, gw, db
}

func command(userID int64, chatType, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, FirstName: "Ada", UserName: "ada"},
		Chat:      &tgbotapi.Chat{ID: userID, Type: chatType},
		Text:      text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])},
		},
	}
}

func callback(userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: userID, FirstName: "Ada", UserName: "ada"},
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: userID, Type: "private"}},
	}
}

func TestCmdJoin_SubscribesAndWelcomes(t *testing.T) {
	b, api, _, db := newTestBot(t)
	ctx := context.Background()

	b.handleCommand(ctx, command(10, "private", "/join"))

	m, err := repo.GetMember(ctx, db, 10)
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if !m.Subscribed || m.Username != "ada" {
		t.Fatalf("unexpected member: %+v", m)
	}
	if !strings.Contains(api.lastSentText(t), "You're in, Ada") {
		t.Fatalf("welcome reply: %q", api.lastSentText(t))
	}
}

func TestCmdLeave_Unsubscribes(t *testing.T) {
	b, api, _, db := newTestBot(t)
	ctx := context.Background()

	b.handleCommand(ctx, command(10, "private", "/join"))
	b.handleCommand(ctx, command(10, "private", "/leave"))

	m, _ := repo.GetMember(ctx, db, 10)
	if m.Subscribed {
		t.Fatalf("still subscribed after /leave")
	}
	if !strings.Contains(api.lastSentText(t), "won't receive any more") {
		t.Fatalf("leave reply: %q", api.lastSentText(t))
	}
}

func TestCallbackJoin_SubscribesAndDMsWelcome(t *testing.T) {
	b, api, gw, db := newTestBot(t)
	ctx := context.Background()

	b.handleCallback(ctx, callback(10, notify.CallbackJoin))

	m, err := repo.GetMember(ctx, db, 10)
	if err != nil || !m.Subscribed {
		t.Fatalf("member not subscribed: %+v, %v", m, err)
	}
	if len(gw.delivered[10]) != 1 || !strings.Contains(gw.delivered[10][0], "Welcome to Random Coffee") {
		t.Fatalf("welcome DM: %v", gw.delivered[10])
	}
	if len(api.requested) != 1 {
		t.Fatalf("callback not answered: %d requests", len(api.requested))
	}
}

func TestCallbackJoin_UnreachableDMClearsFlag(t *testing.T) {
	b, _, gw, db := newTestBot(t)
	gw.outcome = notify.PermanentRejection
	ctx := context.Background()

	b.handleCallback(ctx, callback(10, notify.CallbackJoin))

	m, _ := repo.GetMember(ctx, db, 10)
	if !m.Subscribed {
		t.Fatalf("join should stand even when the DM bounces")
	}
	if m.CanReceiveDM {
		t.Fatalf("delivery flag not cleared")
	}
}

func TestCallbackFollowUpYes_RecordsAndClearsButtons(t *testing.T) {
	b, api, _, db := newTestBot(t)
	ctx := context.Background()

	b.handleCommand(ctx, command(10, "private", "/join"))
	round, err := repo.CreateRoundAtomic(ctx, db, domain.PeriodKey(time.Now()))
	if err != nil {
		t.Fatalf("CreateRoundAtomic: %v", err)
	}
	grp, err := repo.CreateGroup(ctx, db, round.ID, []int64{10, 20})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	b.handleCallback(ctx, callback(10, fmt.Sprintf("%s_%d", notify.CallbackFollowUpYes, grp.ID)))

	f, err := repo.GetFollowUp(ctx, db, grp.ID, 10)
	if err != nil || !f.Answered() || *f.Response != domain.ResponseYes {
		t.Fatalf("follow-up not recorded: %+v, %v", f, err)
	}
	s, err := repo.GetStreak(ctx, db, 10)
	if err != nil || s.ConsecutiveMisses != 0 {
		t.Fatalf("streak = %+v, %v", s, err)
	}
	// Answer toast plus the keyboard-clearing edit.
	if len(api.requested) != 2 {
		t.Fatalf("requests = %d, want 2 (answer + edit)", len(api.requested))
	}
}

func TestCallbackFollowUp_UnknownGroup(t *testing.T) {
	b, api, _, db := newTestBot(t)
	ctx := context.Background()

	b.handleCallback(ctx, callback(10, "followup_no_999"))

	// Nothing recorded for a group that does not exist.
	if _, err := repo.GetFollowUp(ctx, db, 999, 10); err == nil {
		t.Fatalf("follow-up recorded for unknown group")
	}
	// The member gets the stale-match toast, not an error.
	if len(api.requested) != 1 {
		t.Fatalf("requests = %d, want 1 answer", len(api.requested))
	}
	cfg, ok := api.requested[0].(tgbotapi.CallbackConfig)
	if !ok || !strings.Contains(cfg.Text, "no longer active") {
		t.Fatalf("answer = %#v", api.requested[0])
	}
}

func TestCallbackRematch_NotifiesAdmins(t *testing.T) {
	b, _, gw, db := newTestBot(t, 555)
	ctx := context.Background()

	round, _ := repo.CreateRoundAtomic(ctx, db, "2024-06")
	grp, _ := repo.CreateGroup(ctx, db, round.ID, []int64{10, 20})

	b.handleCallback(ctx, callback(10, fmt.Sprintf("%s_%d", notify.CallbackRematch, grp.ID)))

	if len(gw.delivered[555]) != 1 || !strings.Contains(gw.delivered[555][0], "requested a different match") {
		t.Fatalf("admin notice: %v", gw.delivered[555])
	}
}

func TestCmdSetup_BindsAndPostsJoinMessage(t *testing.T) {
	b, api, _, db := newTestBot(t, 10)
	ctx := context.Background()

	b.handleCommand(ctx, command(10, "supergroup", "/setup 42"))

	binding, err := repo.GetBinding(ctx, db)
	if err != nil {
		t.Fatalf("GetBinding: %v", err)
	}
	if binding.ChatID != 10 || binding.TopicID == nil || *binding.TopicID != 42 || binding.BotUsername != "coffee_bot" {
		t.Fatalf("unexpected binding: %+v", binding)
	}
	if binding.InfoMessageID == nil || *binding.InfoMessageID != 777 {
		t.Fatalf("info message id not stored: %+v", binding)
	}
	if len(api.endpoints) != 1 || api.endpoints[0] != "sendMessage" {
		t.Fatalf("endpoints = %v", api.endpoints)
	}
	if api.params[0]["message_thread_id"] != "42" {
		t.Fatalf("params = %v", api.params[0])
	}
}

func TestCmdStatus_ReportsRosterAndLatestRound(t *testing.T) {
	b, api, _, db := newTestBot(t, 10)
	ctx := context.Background()

	b.handleCommand(ctx, command(10, "private", "/status"))
	if !strings.Contains(api.lastSentText(t), "No matching rounds") {
		t.Fatalf("empty status reply: %q", api.lastSentText(t))
	}

	round, err := repo.CreateRoundAtomic(ctx, db, "2024-06")
	if err != nil {
		t.Fatalf("CreateRoundAtomic: %v", err)
	}
	if err := repo.UpdateRoundStats(ctx, db, round.ID, 4, 2); err != nil {
		t.Fatalf("UpdateRoundStats: %v", err)
	}

	b.handleCommand(ctx, command(10, "private", "/status"))
	got := api.lastSentText(t)
	if !strings.Contains(got, "2024-06") || !strings.Contains(got, "2 group(s) from 4 subscriber(s)") {
		t.Fatalf("status reply: %q", got)
	}
}

func TestAdminCommands_RejectNonAdmins(t *testing.T) {
	b, api, _, _ := newTestBot(t, 555) // only 555 is admin
	ctx := context.Background()

	b.handleCommand(ctx, command(10, "private", "/force_match"))
	if !strings.Contains(api.lastSentText(t), "organizers only") {
		t.Fatalf("reply: %q", api.lastSentText(t))
	}
}

func TestCmdForceMatch_ReportsSummary(t *testing.T) {
	b, api, _, db := newTestBot(t) // empty admin list allows anyone
	ctx := context.Background()

	for _, id := range []int64{10, 20} {
		if _, err := repo.UpsertMember(ctx, db, id, "", "M", ""); err != nil {
			t.Fatalf("UpsertMember: %v", err)
		}
		if err := repo.Subscribe(ctx, db, id, time.Now()); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}

	b.handleCommand(ctx, command(10, "private", "/force_match"))
	if !strings.Contains(api.lastSentText(t), services.StatusMatched) {
		t.Fatalf("summary reply: %q", api.lastSentText(t))
	}
}

func TestHandleUpdate_RecoversPanics(t *testing.T) {
	b, _, _, _ := newTestBot(t)
	// A callback with a nil From would panic in a handler without the
	// guard; handleUpdate must survive either way.
	b.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "x"}})
}
