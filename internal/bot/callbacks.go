package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-coffee-bot/internal/domain"
	"github.com/tbourn/go-coffee-bot/internal/notify"
	"github.com/tbourn/go-coffee-bot/internal/repo"
	"github.com/tbourn/go-coffee-bot/internal/services"
)

// handleCallback routes one inline button press. Join/leave are bare kinds;
// everything else carries a group id in the payload.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	if _, err := b.roster.Touch(ctx, cb.From.ID, cb.From.UserName, cb.From.FirstName, cb.From.LastName); err != nil {
		b.log.Error().Err(err).Int64("member", cb.From.ID).Msg("touch member")
		return
	}

	switch cb.Data {
	case notify.CallbackJoin:
		b.cbJoin(ctx, cb)
		return
	case notify.CallbackLeave:
		b.cbLeave(ctx, cb)
		return
	}

	kind, groupID, ok := notify.ParseGroupCallback(cb.Data)
	if !ok {
		b.log.Warn().Str("data", cb.Data).Msg("unrecognized callback payload")
		b.answer(cb, "")
		return
	}

	switch kind {
	case notify.CallbackFollowUpYes:
		b.cbFollowUp(ctx, cb, groupID, domain.ResponseYes)
	case notify.CallbackFollowUpNo:
		b.cbFollowUp(ctx, cb, groupID, domain.ResponseNo)
	case notify.CallbackRematch:
		b.cbRematch(ctx, cb, groupID)
	}
}

func (b *Bot) cbJoin(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if err := b.roster.Join(ctx, cb.From.ID); err != nil {
		b.log.Error().Err(err).Int64("member", cb.From.ID).Msg("join via button")
		b.answer(cb, "Something went wrong, try again.")
		return
	}
	b.answer(cb, "You're in! ☕️ Check your DMs.")

	// The welcome DM doubles as a reachability probe: a member who never
	// opened a private chat with the bot cannot receive match DMs.
	outcome, _ := b.gateway.Deliver(ctx, cb.From.ID, notify.WelcomeMessage(cb.From.FirstName), nil)
	if outcome == notify.PermanentRejection {
		if err := repo.SetCanReceiveDM(ctx, b.db, cb.From.ID, false); err != nil {
			b.log.Error().Err(err).Int64("member", cb.From.ID).Msg("clear delivery flag")
		}
	}
	b.refreshJoinInfo(ctx)
}

func (b *Bot) cbLeave(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if err := b.roster.Leave(ctx, cb.From.ID); err != nil {
		b.log.Error().Err(err).Int64("member", cb.From.ID).Msg("leave via button")
		b.answer(cb, "Something went wrong, try again.")
		return
	}
	b.answer(cb, "You've left Random Coffee. Come back anytime!")
	b.refreshJoinInfo(ctx)
}

// cbFollowUp records a yes/no answer for the member's match group and
// clears the buttons so the prompt cannot be answered twice by accident
// (a second press would still be harmless; the upsert is last-write-wins).
func (b *Bot) cbFollowUp(ctx context.Context, cb *tgbotapi.CallbackQuery, groupID uint, response string) {
	err := b.followUp.RecordResponse(ctx, groupID, cb.From.ID, response)
	if errors.Is(err, services.ErrGroupNotFound) {
		b.answer(cb, "This match is no longer active.")
		return
	}
	if err != nil {
		b.log.Error().Err(err).Uint("group", groupID).Int64("member", cb.From.ID).
			Msg("record follow-up response")
		b.answer(cb, "Something went wrong, try again.")
		return
	}

	if response == domain.ResponseYes {
		b.answer(cb, "Amazing! Glad you connected ☕️")
	} else {
		b.answer(cb, "No worries — there's always next month!")
	}
	b.clearButtons(cb)
}

// cbRematch forwards a "different match please" request to the organizers.
// Nothing is re-paired automatically; a human decides.
func (b *Bot) cbRematch(ctx context.Context, cb *tgbotapi.CallbackQuery, groupID uint) {
	grp, err := repo.GetGroup(ctx, b.db, groupID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			b.answer(cb, "This match is no longer active.")
			return
		}
		b.log.Error().Err(err).Uint("group", groupID).Msg("load group")
		return
	}

	who := cb.From.FirstName
	if cb.From.UserName != "" {
		who = fmt.Sprintf("%s (@%s)", who, cb.From.UserName)
	}
	text := fmt.Sprintf("🔄 %s requested a different match (group #%d, round #%d).", who, grp.ID, grp.RoundID)

	notified := 0
	for id := range b.adminIDs {
		if outcome, _ := b.gateway.Deliver(ctx, id, text, nil); outcome == notify.Delivered {
			notified++
		}
	}
	b.log.Info().Uint("group", groupID).Int64("member", cb.From.ID).Int("admins_notified", notified).
		Msg("rematch requested")
	b.answer(cb, "Request sent to the organizers — they'll be in touch!")
}

// clearButtons removes the inline keyboard from the message a callback came
// from. Failures are logged only; the answer toast already went out.
func (b *Bot) clearButtons(cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(
		cb.Message.Chat.ID,
		cb.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}},
	)
	if _, err := b.api.Request(edit); err != nil {
		b.log.Debug().Err(err).Msg("clear buttons")
	}
}
