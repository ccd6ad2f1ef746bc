// Package chatbot is a thin wrapper around the chat platform transport
// (spec §6 "Chat platform (consumed)"). The command loop itself sits
// outside the scored core; this package exposes only the minimal
// send/edit surface the Notifier and command handlers need.
package chatbot

import (
	"context"
	"fmt"

	goerrors "github.com/go-errors/errors"
	"gopkg.in/telebot.v3"

	"github.com/trypto13/jeet-tracker/log"
)

var botLog = log.NewSubsystemLogger(log.SubsystemBot)

// Sender is the surface the Notifier depends on, so tests can
// substitute a fake without spinning up telebot.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, markdownText string) error
	EditMessageText(ctx context.Context, chatID int64, msgID int, text string) error
}

// Bot wraps a telebot.v3 instance.
type Bot struct {
	tb *telebot.Bot
}

// New constructs a Bot from a bot token. It does not start
// long-polling; the caller invokes Start once handlers are registered.
func New(token string) (*Bot, error) {
	tb, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: pollTimeoutSeconds},
	})
	if err != nil {
		return nil, goerrors.Errorf("chatbot: new bot: %w", err)
	}
	botLog.Infof("bot authenticated as @%s", tb.Me.Username)
	return &Bot{tb: tb}, nil
}

const pollTimeoutSeconds = 10

// Telebot exposes the underlying bot for command-handler registration
// by the (out-of-scope) command surface.
func (b *Bot) Telebot() *telebot.Bot {
	return b.tb
}

// Start begins the long-polling command loop. Blocks until Stop.
func (b *Bot) Start() {
	b.tb.Start()
}

// Stop ends the long-polling loop.
func (b *Bot) Stop() {
	b.tb.Stop()
}

// SendMessage sends markdownText to chatID.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, markdownText string) error {
	_, err := b.tb.Send(&telebot.Chat{ID: chatID}, markdownText, &telebot.SendOptions{
		ParseMode: telebot.ModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("chatbot: send to %d: %w", chatID, err)
	}
	return nil
}

// EditMessageText edits a previously sent message.
func (b *Bot) EditMessageText(ctx context.Context, chatID int64, msgID int, text string) error {
	_, err := b.tb.Edit(&telebot.Message{ID: msgID, Chat: &telebot.Chat{ID: chatID}}, text, &telebot.SendOptions{
		ParseMode: telebot.ModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("chatbot: edit %d/%d: %w", chatID, msgID, err)
	}
	return nil
}

var _ Sender = (*Bot)(nil)
