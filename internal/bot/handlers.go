package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-coffee-bot/internal/domain"
	"github.com/tbourn/go-coffee-bot/internal/notify"
	"github.com/tbourn/go-coffee-bot/internal/repo"
)

// handleCommand routes one slash command. Every interaction refreshes the
// sender's member row first, so names and usernames stay current without a
// dedicated profile flow.
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if _, err := b.roster.Touch(ctx, msg.From.ID, msg.From.UserName, msg.From.FirstName, msg.From.LastName); err != nil {
		b.log.Error().Err(err).Int64("member", msg.From.ID).Msg("touch member")
		return
	}

	cmd := msg.Command()
	log := b.log.With().Str("command", cmd).Int64("member", msg.From.ID).Logger()

	switch cmd {
	case "start":
		b.cmdStart(ctx, msg)
	case "join":
		b.cmdJoin(ctx, msg)
	case "leave":
		b.cmdLeave(ctx, msg)
	case "mystatus":
		b.cmdMyStatus(ctx, msg)
	case "status":
		b.requireAdmin(ctx, msg, b.cmdStatus)
	case "setup":
		b.requireAdmin(ctx, msg, b.cmdSetup)
	case "coffee":
		b.requireAdmin(ctx, msg, b.cmdCoffee)
	case "force_match":
		b.requireAdmin(ctx, msg, b.cmdForceMatch)
	case "test_followup":
		b.requireAdmin(ctx, msg, b.cmdTestFollowUp)
	case "subscribers":
		b.requireAdmin(ctx, msg, b.cmdSubscribers)
	default:
		log.Debug().Msg("unknown command ignored")
	}
}

func (b *Bot) requireAdmin(ctx context.Context, msg *tgbotapi.Message, h func(context.Context, *tgbotapi.Message)) {
	if !b.isAdmin(msg.From.ID) {
		b.reply(msg, "Sorry, that command is for organizers only.")
		return
	}
	h(ctx, msg)
}

// cmdStart introduces the bot and offers the join button. Works in private
// chat; in a group it points people at the pinned join message instead.
func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.Chat.IsPrivate() {
		b.reply(msg, "Hi! Find the Random Coffee message in this group to join, or message me directly.")
		return
	}
	count, err := b.roster.SubscriberCount(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("count subscribers")
		return
	}
	m := tgbotapi.NewMessage(msg.Chat.ID, notify.JoinInfoMessage())
	m.ReplyMarkup = keyboard(notify.JoinChoices(count))
	if _, err := b.api.Send(m); err != nil {
		b.log.Error().Err(err).Msg("send start message")
	}
}

func (b *Bot) cmdJoin(ctx context.Context, msg *tgbotapi.Message) {
	if err := b.roster.Join(ctx, msg.From.ID); err != nil {
		b.log.Error().Err(err).Int64("member", msg.From.ID).Msg("join")
		return
	}
	b.reply(msg, notify.WelcomeMessage(msg.From.FirstName))
	b.refreshJoinInfo(ctx)
}

func (b *Bot) cmdLeave(ctx context.Context, msg *tgbotapi.Message) {
	if err := b.roster.Leave(ctx, msg.From.ID); err != nil {
		b.log.Error().Err(err).Int64("member", msg.From.ID).Msg("leave")
		return
	}
	b.reply(msg, notify.LeaveMessage(msg.From.FirstName))
	b.refreshJoinInfo(ctx)
}

// cmdMyStatus reports the member's subscription state and miss streak.
func (b *Bot) cmdMyStatus(ctx context.Context, msg *tgbotapi.Message) {
	m, err := b.roster.Status(ctx, msg.From.ID)
	if err != nil {
		b.log.Error().Err(err).Int64("member", msg.From.ID).Msg("status")
		return
	}

	var sb strings.Builder
	if m.Subscribed {
		sb.WriteString("☕️ You're subscribed to Random Coffee.\n")
		if m.SubscribedAt != nil {
			fmt.Fprintf(&sb, "Member since %s.\n", m.SubscribedAt.Format("2 January 2006"))
		}
	} else {
		sb.WriteString("You're not subscribed right now. Use /join to opt back in!\n")
	}

	streak, err := repo.GetStreak(ctx, b.db, msg.From.ID)
	if err == nil && streak.ConsecutiveMisses > 0 {
		fmt.Fprintf(&sb, "Missed meetings in a row: %d.\n", streak.ConsecutiveMisses)
	}
	b.reply(msg, sb.String())
}

// cmdStatus gives organizers a quick roster and latest-round overview.
func (b *Bot) cmdStatus(ctx context.Context, msg *tgbotapi.Message) {
	count, err := b.roster.SubscriberCount(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("count subscribers")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "☕️ Subscribers: %d\n", count)
	round, err := repo.LatestRound(ctx, b.db)
	switch {
	case err == nil:
		fmt.Fprintf(&sb, "Latest round: %s — %d group(s) from %d subscriber(s).",
			round.PeriodKey, round.TotalGroups, round.TotalSubscribers)
	case errors.Is(err, repo.ErrNotFound):
		sb.WriteString("No matching rounds have run yet.")
	default:
		b.log.Error().Err(err).Msg("latest round")
		return
	}
	b.reply(msg, sb.String())
}

// cmdSetup binds the bot to the group (and optional topic) the command was
// sent in, then posts the join message there. Usage: /setup [topic_id]
func (b *Bot) cmdSetup(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat.IsPrivate() {
		b.reply(msg, "Run /setup inside the community group you want to bind.")
		return
	}

	var topicID *int
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			b.reply(msg, "Usage: /setup [topic_id] — topic_id must be a positive number.")
			return
		}
		topicID = &n
	}

	binding := &domain.GroupBinding{ChatID: msg.Chat.ID, TopicID: topicID, BotUsername: b.username}
	if err := repo.SetBinding(ctx, b.db, binding); err != nil {
		b.log.Error().Err(err).Msg("set binding")
		return
	}
	if err := b.postJoinInfo(ctx, msg.Chat.ID, topicID); err != nil {
		b.log.Error().Err(err).Msg("post join message")
		b.reply(msg, "Bound this chat, but posting the join message failed. Try /coffee.")
		return
	}
	b.log.Info().Int64("chat", msg.Chat.ID).Msg("group binding updated")
}

// cmdCoffee reposts the join message into the bound chat.
func (b *Bot) cmdCoffee(ctx context.Context, msg *tgbotapi.Message) {
	binding, err := repo.GetBinding(ctx, b.db)
	if err != nil {
		b.reply(msg, "No group is bound yet. Run /setup in your community group first.")
		return
	}
	if err := b.postJoinInfo(ctx, binding.ChatID, binding.TopicID); err != nil {
		b.log.Error().Err(err).Msg("post join message")
	}
}

// cmdForceMatch runs a matching round immediately. The round ledger makes
// this safe to race against the scheduled run.
func (b *Bot) cmdForceMatch(ctx context.Context, msg *tgbotapi.Message) {
	sum, err := b.matching.Run(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("force match")
		b.reply(msg, "Matching failed: "+err.Error())
		return
	}
	b.reply(msg, fmt.Sprintf(
		"Matching for %s: %s\nSubscribers: %d, groups: %d, repeats: %d, delivered: %d, failed: %d",
		sum.PeriodKey, sum.Status, sum.TotalSubscribers, sum.TotalGroups,
		sum.RepeatPairs, sum.Delivered, sum.Failed,
	))
}

// cmdTestFollowUp sends this period's follow-up prompts immediately.
func (b *Bot) cmdTestFollowUp(ctx context.Context, msg *tgbotapi.Message) {
	sum, err := b.followUp.SendPrompts(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("test followup")
		b.reply(msg, "Follow-up run failed: "+err.Error())
		return
	}
	b.reply(msg, fmt.Sprintf(
		"Follow-ups for %s: groups %d, sent %d, skipped %d, failed %d",
		sum.PeriodKey, sum.Groups, sum.Sent, sum.Skipped, sum.Failed,
	))
}

func (b *Bot) cmdSubscribers(ctx context.Context, msg *tgbotapi.Message) {
	members, err := b.roster.Subscribers(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("list subscribers")
		return
	}
	if len(members) == 0 {
		b.reply(msg, "Nobody has joined yet.")
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "☕️ %d subscriber(s):\n", len(members))
	for _, m := range members {
		fmt.Fprintf(&sb, "• %s\n", notify.Mention(m))
	}
	b.reply(msg, sb.String())
}
