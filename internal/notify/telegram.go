package notify

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// deliveries counts outbound deliveries by final outcome.
var deliveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coffee_deliveries_total",
		Help: "Total outbound deliveries by final outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(deliveries)
}

// telegramClient is the slice of the Telegram client the gateway needs.
// *tgbotapi.BotAPI satisfies it; tests substitute a fake.
type telegramClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// TelegramGateway implements Gateway over the Telegram Bot API.
//
// All outbound sends share one token-bucket limiter at a conservative
// cadence (Telegram tolerates ~30 msg/s; the default here is 1/s), so a
// matching run for a large roster spreads itself out instead of tripping
// provider limits. Provider "slow down" signals (429 with retry_after) are
// honored by sleeping the indicated duration plus a one-second margin.
// Transient failures retry with exponential backoff up to maxAttempts; a
// 403 is a permanent rejection and is never retried.
type TelegramGateway struct {
	api         telegramClient
	limiter     *rate.Limiter
	maxAttempts int
	log         zerolog.Logger

	// sleep is a seam so tests can observe backoff without waiting.
	sleep func(time.Duration)
}

// NewTelegramGateway constructs the gateway. rps is tokens per second for
// the shared limiter; maxAttempts values below 1 are coerced to 1.
func NewTelegramGateway(api *tgbotapi.BotAPI, rps float64, burst, maxAttempts int, log zerolog.Logger) *TelegramGateway {
	return newTelegramGateway(api, rps, burst, maxAttempts, log)
}

func newTelegramGateway(api telegramClient, rps float64, burst, maxAttempts int, log zerolog.Logger) *TelegramGateway {
	if burst <= 0 {
		burst = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &TelegramGateway{
		api:         api,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		maxAttempts: maxAttempts,
		log:         log,
		sleep:       time.Sleep,
	}
}

// Deliver sends a direct message to one member, with optional button rows.
func (g *TelegramGateway) Deliver(ctx context.Context, recipientID int64, text string, choices [][]Choice) (Outcome, error) {
	msg := tgbotapi.NewMessage(recipientID, text)
	if len(choices) > 0 {
		msg.ReplyMarkup = buildKeyboard(choices)
	}
	return g.attempt(ctx, recipientID, func() error {
		_, err := g.api.Send(msg)
		return err
	})
}

// Announce posts to the group channel, optionally inside a forum topic.
// The raw request path is used because message_thread_id has no typed
// field in the client.
func (g *TelegramGateway) Announce(ctx context.Context, chatID int64, topicID *int, text string) (Outcome, error) {
	params := make(tgbotapi.Params)
	params.AddNonZero64("chat_id", chatID)
	params["text"] = text
	if topicID != nil {
		params.AddNonZero("message_thread_id", *topicID)
	}
	return g.attempt(ctx, chatID, func() error {
		_, err := g.api.MakeRequest("sendMessage", params)
		return err
	})
}

// attempt runs the rate-limited retry loop around one logical delivery.
func (g *TelegramGateway) attempt(ctx context.Context, recipient int64, send func() error) (Outcome, error) {
	var lastErr error
	for n := 0; n < g.maxAttempts; n++ {
		if err := g.limiter.Wait(ctx); err != nil {
			deliveries.WithLabelValues(TransientFailure.String()).Inc()
			return TransientFailure, err
		}

		err := send()
		if err == nil {
			deliveries.WithLabelValues(Delivered.String()).Inc()
			return Delivered, nil
		}
		lastErr = err

		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			switch {
			case tgErr.Code == 403:
				// Recipient blocked the bot or is gone. Not retryable.
				deliveries.WithLabelValues(PermanentRejection.String()).Inc()
				return PermanentRejection, err
			case tgErr.RetryAfter > 0:
				wait := time.Duration(tgErr.RetryAfter)*time.Second + time.Second
				g.log.Warn().
					Int64("recipient", recipient).
					Dur("wait", wait).
					Int("attempt", n+1).
					Msg("provider asked to slow down")
				g.sleep(wait)
				continue
			}
		}

		if n < g.maxAttempts-1 {
			wait := time.Duration(1<<uint(n)) * time.Second
			g.log.Warn().
				Err(err).
				Int64("recipient", recipient).
				Dur("wait", wait).
				Int("attempt", n+1).
				Msg("delivery failed, backing off")
			g.sleep(wait)
		}
	}

	deliveries.WithLabelValues(TransientFailure.String()).Inc()
	return TransientFailure, lastErr
}

// buildKeyboard converts choice rows to a Telegram inline keyboard.
func buildKeyboard(choices [][]Choice) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(choices))
	for _, row := range choices {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, c := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Data))
		}
		rows = append(rows, btns)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
