// Package telegram sends poll loop alerts via the Telegram Bot API.
// It formats repeated cycle failures and recoveries into short MarkdownV2
// messages and delivers them with linear-backoff retries.
//
// Alerts are advisory: callers log a failed send and keep polling.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sender is the subset of *tgbotapi.BotAPI used by Client
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	device         string
	maxRetries     int
	retryDelayBase time.Duration
	now            func() time.Time
}

// NewClient creates a new Telegram client for device alerts
func NewClient(botToken, chatID, device string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, device, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID, device string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		device:         device,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		now:            time.Now,
	}, nil
}

// SendError reports that the loop has failed consecutive cycles in a row
func (c *Client) SendError(err error, consecutive int) error {
	return c.send(c.formatError(err, consecutive))
}

// SendRecovery reports that a cycle succeeded after failures
func (c *Client) SendRecovery(failures int) error {
	return c.send(c.formatRecovery(failures))
}

func (c *Client) send(message string) error {
	msg := tgbotapi.NewMessage(c.chatID, message)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) formatError(err error, consecutive int) string {
	var b strings.Builder
	b.WriteString("🚨 *Solarcast cycle failing*\n\n")
	fmt.Fprintf(&b, "📟 Device: %s\n", escapeMarkdownV2(c.device))
	fmt.Fprintf(&b, "🔁 Consecutive failures: %d\n", consecutive)
	fmt.Fprintf(&b, "📅 At: %s\n\n", escapeMarkdownV2(c.now().Format("2006-01-02 15:04:05")))
	if err != nil {
		fmt.Fprintf(&b, "`%s`\n", escapeCode(err.Error()))
	}
	return b.String()
}

func (c *Client) formatRecovery(failures int) string {
	var b strings.Builder
	b.WriteString("✅ *Solarcast recovered*\n\n")
	fmt.Fprintf(&b, "📟 Device: %s\n", escapeMarkdownV2(c.device))
	fmt.Fprintf(&b, "Publishing resumed after %d failed %s\n", failures, plural(failures, "cycle", "cycles"))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// escapeCode escapes text inside a MarkdownV2 code span
func escapeCode(text string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
	return r.Replace(text)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
