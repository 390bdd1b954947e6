// Package notify sends ledger events to hotel managers over Telegram.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hotelledger/internal/events"
	"hotelledger/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the subset of the bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramNotifier struct {
	sender  Sender
	chatIDs []int64
	logger  *zerolog.Logger
}

// NewBot connects to the Telegram Bot API.
func NewBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func NewTelegramNotifier(sender Sender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &TelegramNotifier{sender: sender, chatIDs: chatIDs, logger: logger}
}

// Subscribe attaches the notifier to the events managers care about.
func (n *TelegramNotifier) Subscribe(bus *events.EventBus) {
	for _, eventType := range []string{
		events.EventBookingCreated,
		events.EventBookingCancelled,
		events.EventBookingCheckedOut,
		events.EventInventoryReceived,
		events.EventInventoryDeleted,
	} {
		bus.Subscribe(eventType, n.Handle)
	}
}

// Handle formats the event and sends it to every manager chat. A failed chat
// does not stop delivery to the others.
func (n *TelegramNotifier) Handle(event *events.Event) error {
	text, err := formatEvent(event)
	if err != nil {
		n.logger.Warn().Err(err).Str("event", event.Type).Msg("Skipping notification")
		return err
	}
	if text == "" {
		return nil
	}

	var errs []error
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.sender.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Str("event", event.Type).Msg("Failed to notify manager")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func formatEvent(event *events.Event) (string, error) {
	switch event.Type {
	case events.EventBookingCreated, events.EventBookingCancelled, events.EventBookingCheckedOut:
		var p events.BookingEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("decode booking payload: %w", err)
		}
		return formatBooking(event.Type, p), nil
	case events.EventInventoryReceived, events.EventInventoryDeleted:
		var p events.InventoryEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("decode inventory payload: %w", err)
		}
		return formatInventory(event.Type, p), nil
	default:
		return "", nil
	}
}

func formatBooking(eventType string, p events.BookingEventPayload) string {
	var sb strings.Builder
	switch eventType {
	case events.EventBookingCreated:
		sb.WriteString("🆕 Новая бронь")
	case events.EventBookingCancelled:
		sb.WriteString("❌ Бронь отменена")
	case events.EventBookingCheckedOut:
		sb.WriteString("✅ Выезд гостя")
	}
	fmt.Fprintf(&sb, " #%d\n", p.BookingID)
	fmt.Fprintf(&sb, "Room: %s\n", p.RoomNumber)
	fmt.Fprintf(&sb, "Guest: %s\n", p.GuestName)
	fmt.Fprintf(&sb, "Dates: %s – %s", p.CheckIn, p.CheckOut)
	if p.AmountDue.Valid {
		fmt.Fprintf(&sb, "\nAmount due: %s", p.AmountDue.Decimal.StringFixed(models.MoneyPlaces))
	}
	return sb.String()
}

func formatInventory(eventType string, p events.InventoryEventPayload) string {
	if eventType == events.EventInventoryDeleted {
		return fmt.Sprintf("🗑 Item removed: %s (#%d)", p.ItemName, p.ItemID)
	}
	return fmt.Sprintf("📦 Order #%d received: %s x%d, total %s",
		p.TransactionID, p.ItemName, p.Quantity, p.TotalCost.StringFixed(models.MoneyPlaces))
}
