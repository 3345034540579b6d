package events

import (
	"context"
	"fmt"
	"sync"

	"fixit/internal/config"
	"fixit/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramSender is the part of the bot API the relay needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramRelay forwards the events of linked rooms to Telegram chats.
type TelegramRelay struct {
	bot    TelegramSender
	router *Router
	links  []config.TelegramLink
	logger *zerolog.Logger
}

func NewTelegramRelay(bot TelegramSender, router *Router, links []config.TelegramLink, logger *zerolog.Logger) *TelegramRelay {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramRelay{bot: bot, router: router, links: links, logger: logger}
}

// Run subscribes every link and forwards until ctx is done.
func (r *TelegramRelay) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, link := range r.links {
		sub := r.router.Subscribe(link.Room)
		wg.Add(1)
		go func(link config.TelegramLink, sub *Subscription) {
			defer wg.Done()
			defer sub.Close()
			r.forward(ctx, link.ChatID, sub)
		}(link, sub)
	}
	r.logger.Info().Int("links", len(r.links)).Msg("telegram relay started")
	wg.Wait()
}

func (r *TelegramRelay) forward(ctx context.Context, chatID int64, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			msg := tgbotapi.NewMessage(chatID, FormatMessage(evt))
			if _, err := r.bot.Send(msg); err != nil {
				metrics.IncEventDropped("telegram_send")
				r.logger.Error().Err(err).Int64("chat_id", chatID).Str("event", evt.Type).Msg("telegram send failed")
			}
		}
	}
}

// FormatMessage renders an event as a plain chat message.
func FormatMessage(evt Event) string {
	switch evt.Type {
	case EventNewBookingAvailable:
		var p NewBookingPayload
		if evt.Decode(&p) == nil && p.Booking != nil {
			return fmt.Sprintf("New %s booking #%d (%.2f)", p.ServiceName, p.Booking.ID, p.Booking.Price)
		}
	case EventBookingStatus, EventBookingStatusChange, EventBookingStatusUpdated:
		var p BookingStatusPayload
		if evt.Decode(&p) == nil {
			return fmt.Sprintf("Booking #%d: %s -> %s", p.BookingID, p.OldStatus, p.Status)
		}
	case EventPaymentReceived:
		var p PaymentReceivedPayload
		if evt.Decode(&p) == nil {
			return fmt.Sprintf("Payment of %.2f received for booking #%d", p.Amount, p.BookingID)
		}
	case EventBookingRated:
		var p RatingPayload
		if evt.Decode(&p) == nil {
			return fmt.Sprintf("Booking #%d rated %d/5", p.BookingID, p.Rating)
		}
	}
	return fmt.Sprintf("[%s] %s: %s", evt.Room, evt.Type, string(evt.Payload))
}
