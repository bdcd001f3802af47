// Package bot implements the Telegram-facing surface: the long-poll update
// loop, command handlers, and inline-button callbacks. All state lives in
// the store; this layer translates Telegram updates into service calls and
// service results back into messages.
package bot

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-coffee-bot/internal/notify"
	"github.com/tbourn/go-coffee-bot/internal/repo"
	"github.com/tbourn/go-coffee-bot/internal/services"
)

// telegramAPI is the slice of *tgbotapi.BotAPI the bot uses, kept narrow so
// tests can substitute a fake.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot handles Telegram updates.
type Bot struct {
	api      telegramAPI
	username string

	db       *gorm.DB
	roster   *services.RosterService
	matching *services.MatchingService
	followUp *services.FollowUpService
	gateway  notify.Gateway

	adminIDs map[int64]struct{}
	log      zerolog.Logger
}

// New constructs a Bot around a live Telegram API client. An empty adminIDs
// list disables the admin check entirely, which is only sensible while
// bootstrapping a fresh deployment.
func New(
	api *tgbotapi.BotAPI,
	db *gorm.DB,
	roster *services.RosterService,
	matching *services.MatchingService,
	followUp *services.FollowUpService,
	gw notify.Gateway,
	adminIDs []int64,
	log zerolog.Logger,
) *Bot {
	return newBot(api, api.Self.UserName, db, roster, matching, followUp, gw, adminIDs, log)
}

func newBot(
	api telegramAPI,
	username string,
	db *gorm.DB,
	roster *services.RosterService,
	matching *services.MatchingService,
	followUp *services.FollowUpService,
	gw notify.Gateway,
	adminIDs []int64,
	log zerolog.Logger,
) *Bot {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Bot{
		api:      api,
		username: username,
		db:       db,
		roster:   roster,
		matching: matching,
		followUp: followUp,
		gateway:  gw,
		adminIDs: admins,
		log:      log,
	}
}

// Run long-polls Telegram for updates until ctx is cancelled. Updates are
// handled sequentially; handlers are quick (store writes plus at most a few
// sends) and ordering per chat matters more than throughput here.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	b.log.Info().Str("bot", b.username).Msg("update loop started")
	for update := range updates {
		b.handleUpdate(ctx, update)
	}
	b.log.Info().Msg("update loop stopped")
}

// handleUpdate dispatches one update, converting handler panics into error
// logs so a single bad update cannot kill the loop.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("panic handling update")
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

func (b *Bot) isAdmin(id int64) bool {
	if len(b.adminIDs) == 0 {
		return true
	}
	_, ok := b.adminIDs[id]
	return ok
}

// reply sends a plain text response into the chat the message came from.
func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, text)); err != nil {
		b.log.Error().Err(err).Int64("chat", msg.Chat.ID).Msg("reply failed")
	}
}

// answer acknowledges a callback query with a short toast.
func (b *Bot) answer(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		b.log.Error().Err(err).Msg("answer callback failed")
	}
}

// keyboard converts notify choice rows into a Telegram inline keyboard.
func keyboard(rows [][]notify.Choice) tgbotapi.InlineKeyboardMarkup {
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, ch := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(ch.Label, ch.Data))
		}
		kb = append(kb, btns)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: kb}
}

// postJoinInfo posts the join message with its live-count button into the
// bound chat (and topic, when set), recording the new message id so later
// joins can refresh the count in place.
func (b *Bot) postJoinInfo(ctx context.Context, chatID int64, topicID *int) error {
	count, err := b.roster.SubscriberCount(ctx)
	if err != nil {
		return err
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params["text"] = notify.JoinInfoMessage()
	if topicID != nil {
		params.AddNonZero("message_thread_id", *topicID)
	}
	if err := params.AddInterface("reply_markup", keyboard(notify.JoinChoices(count))); err != nil {
		return err
	}

	resp, err := b.api.MakeRequest("sendMessage", params)
	if err != nil {
		return err
	}
	var sent tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &sent); err != nil {
		return fmt.Errorf("decode sendMessage result: %w", err)
	}
	return repo.UpdateInfoMessage(ctx, b.db, sent.MessageID, topicID)
}

// refreshJoinInfo rewrites the pinned join message's button label with the
// current subscriber count. A missing binding or info message is a no-op.
func (b *Bot) refreshJoinInfo(ctx context.Context) {
	binding, err := repo.GetBinding(ctx, b.db)
	if err != nil || binding.InfoMessageID == nil {
		return
	}
	count, err := b.roster.SubscriberCount(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("count subscribers for join message")
		return
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", binding.ChatID)
	params.AddNonZero("message_id", *binding.InfoMessageID)
	params["text"] = notify.JoinInfoMessage()
	if err := params.AddInterface("reply_markup", keyboard(notify.JoinChoices(count))); err != nil {
		b.log.Error().Err(err).Msg("encode join keyboard")
		return
	}
	if _, err := b.api.MakeRequest("editMessageText", params); err != nil {
		// Telegram rejects edits that change nothing; harmless here.
		b.log.Debug().Err(err).Msg("refresh join message")
	}
}
