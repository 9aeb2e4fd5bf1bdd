// Package notify is the operator-alerting port: auth-kind errors and
// Monitor terminal-state summaries are pushed here, the way this codebase's
// existing notifier wires up a Telegram bot rather than only logging.
package notify

import (
	"fmt"
	"log"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier is the alerting surface the Executor and Monitor depend on. A nil
// *Telegram still satisfies calls (Notify becomes a no-op), so the alerting
// concern never blocks the core loops when no bot token is configured.
type Notifier interface {
	Notify(msg string)
}

// Telegram sends operator alerts to a single configured chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// New initializes the Telegram bot from TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID.
// Returns nil if no token is configured — callers must treat a nil *Telegram
// as a valid no-op Notifier.
func New(token string, chatID int64) *Telegram {
	if token == "" {
		log.Println("⚠️ TELEGRAM_BOT_TOKEN not set. Operator alerts disabled.")
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Printf("⚠️ Failed to init Telegram bot: %v", err)
		return nil
	}
	log.Printf("✅ Authorized on account %s", bot.Self.UserName)

	if chatID == 0 {
		if env := os.Getenv("TELEGRAM_CHAT_ID"); env != "" {
			if v, err := strconv.ParseInt(env, 10, 64); err == nil {
				chatID = v
			}
		}
	}
	return &Telegram{bot: bot, chatID: chatID}
}

// Notify sends msg asynchronously; a nil receiver or unset chat id is a no-op.
func (t *Telegram) Notify(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	go func() {
		cfg := tgbotapi.NewMessage(t.chatID, msg)
		cfg.ParseMode = "Markdown"
		if _, err := t.bot.Send(cfg); err != nil {
			log.Printf("⚠️ Failed to send Telegram alert: %v", err)
		}
	}()
}

// NoOp is a Notifier that discards every message, used in tests and whenever
// no bot token is configured.
type NoOp struct{}

func (NoOp) Notify(string) {}

// AlertAuthFailure formats the operator-alert policy for the auth error kind (§7).
func AlertAuthFailure(n Notifier, botID, symbol string, err error) {
	n.Notify(fmt.Sprintf("🚨 *AUTH FAILURE*\nbot=%s symbol=%s\n%v\nTrading halted for this bot — check credentials.", botID, symbol, err))
}

// AlertTerminal formats the Monitor's one-line terminal-transition summary.
func AlertTerminal(n Notifier, botID, symbol, status, detail string) {
	n.Notify(fmt.Sprintf("ℹ️ *%s* bot=%s %s — %s", status, botID, symbol, detail))
}
