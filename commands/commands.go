// Package commands is the thin command-surface wrapper the spec keeps
// explicitly out of the scored core (§6 "CLI surface. Not part of the
// core.") — it exists only to exercise the Store, Resolver, Historical
// Scanner, and rate limiter from a real entrypoint, using telebot.v3's
// handler-registration-by-command-name surface directly.
package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/telebot.v3"

	"github.com/trypto13/jeet-tracker/historical"
	"github.com/trypto13/jeet-tracker/identity"
	"github.com/trypto13/jeet-tracker/indexerclient"
	"github.com/trypto13/jeet-tracker/log"
	"github.com/trypto13/jeet-tracker/ratelimit"
	"github.com/trypto13/jeet-tracker/store"
)

var cmdLog = log.NewSubsystemLogger(log.SubsystemBot)

const (
	balanceRateWindow   = 10 * time.Second
	portfolioRateWindow = 30 * time.Second
)

// Config holds the command surface's tunables.
type Config struct {
	BotPassword       string
	MaxWalletsPerUser int
	AdminChatID       int64
}

// Handlers wires the Store and external clients into command
// callbacks.
type Handlers struct {
	cfg      Config
	st       *store.Store
	indexer  indexerclient.Client
	resolver *identity.Resolver
	hist     *historical.Scanner
	limiter  *ratelimit.Limiter
}

// New builds a Handlers.
func New(cfg Config, st *store.Store, indexer indexerclient.Client, resolver *identity.Resolver,
	hist *historical.Scanner, limiter *ratelimit.Limiter) *Handlers {
	return &Handlers{cfg: cfg, st: st, indexer: indexer, resolver: resolver, hist: hist, limiter: limiter}
}

// Register attaches every command handler to tb.
func (h *Handlers) Register(tb *telebot.Bot) {
	tb.Handle("/start", h.handleStart)
	tb.Handle("/track", h.handleTrack)
	tb.Handle("/untrack", h.handleUntrack)
	tb.Handle("/balance", h.handleBalance)
	tb.Handle("/portfolio", h.handlePortfolio)
	tb.Handle("/grant", h.handleGrant)
}

// handleGrant is admin-only: issues a paid subscription directly to a
// chat, bypassing the access-code payment flow (for manual comps and
// support cases). Restricted to cfg.AdminChatID.
func (h *Handlers) handleGrant(c telebot.Context) error {
	if h.cfg.AdminChatID == 0 || c.Chat().ID != h.cfg.AdminChatID {
		return c.Send("Unauthorized.")
	}

	fields := strings.Fields(c.Message().Payload)
	if len(fields) != 2 {
		return c.Send("Usage: /grant <chatId> <days>")
	}
	targetChat, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return c.Send("Invalid chat id.")
	}
	days, err := strconv.Atoi(fields[1])
	if err != nil || days <= 0 {
		return c.Send("Invalid duration in days.")
	}

	code := uuid.NewString()
	if err := h.st.CreateAccessCode(reqCtx(), store.AccessCode{
		Code: code, Redeemed: true, RedeemedBy: targetChat,
		ExpiresAt: time.Now().Add(time.Duration(days) * 24 * time.Hour),
		DurationDays: days,
	}); err != nil {
		return c.Send(fmt.Sprintf("Could not issue code: %v", err))
	}

	if err := h.st.UpsertPaidSubscription(reqCtx(), store.PaidSubscription{
		ChatID: targetChat, Code: code,
		ExpiresAt: time.Now().Add(time.Duration(days) * 24 * time.Hour),
	}); err != nil {
		return c.Send(fmt.Sprintf("Could not grant subscription: %v", err))
	}
	if err := h.st.AuthorizeChat(reqCtx(), targetChat); err != nil {
		return c.Send(fmt.Sprintf("Could not authorize chat: %v", err))
	}

	return c.Send(fmt.Sprintf("Granted %d days to chat %d", days, targetChat))
}

func (h *Handlers) handleStart(c telebot.Context) error {
	chatID := c.Chat().ID
	arg := strings.TrimSpace(c.Message().Payload)

	if arg == "" {
		if h.cfg.BotPassword == "" {
			return h.authorize(c, chatID)
		}
		return c.Send("Send /start <password-or-code> to authorize this chat.")
	}

	if arg == h.cfg.BotPassword && h.cfg.BotPassword != "" {
		return h.authorize(c, chatID)
	}

	if _, ok := h.st.GetAccessCode(arg); !ok {
		return c.Send("Unrecognized code.")
	}
	if _, err := h.st.RedeemAccessCode(reqCtx(), arg, chatID); err != nil {
		return c.Send(fmt.Sprintf("Could not redeem code: %v", err))
	}
	return h.authorize(c, chatID)
}

func reqCtx() context.Context {
	return context.Background()
}

func (h *Handlers) authorize(c telebot.Context, chatID int64) error {
	if err := h.st.AuthorizeChat(reqCtx(), chatID); err != nil {
		return c.Send(fmt.Sprintf("Authorization failed: %v", err))
	}
	return c.Send("Chat authorized. Use /track <address> to watch a wallet.")
}

func (h *Handlers) handleTrack(c telebot.Context) error {
	chatID := c.Chat().ID
	addr := strings.TrimSpace(c.Message().Payload)
	if addr == "" {
		return c.Send("Usage: /track <address>")
	}
	if !h.st.IsAuthorized(chatID) {
		return c.Send("This chat is not authorized. Use /start first.")
	}

	linkage, err := h.resolver.Resolve(reqCtx(), addr)
	if err == nil && linkage != nil && linkage.MLDSAHash != "" {
		if existing, found := h.st.FindSubscriptionByMLDSAHash(linkage.MLDSAHash); found && existing.ChatID == chatID {
			return c.Send(fmt.Sprintf("Already tracking as %s", existing.PrimaryAddress))
		}
	}

	sub := &store.Subscription{
		ID:             uuid.NewString(),
		ChatID:         chatID,
		PrimaryAddress: addr,
		CreatedAt:      time.Now(),
		Linkage:        linkage,
	}

	if err := h.st.CreateSubscription(reqCtx(), sub, h.cfg.MaxWalletsPerUser); err != nil {
		switch err {
		case store.ErrDuplicateSubscription:
			return c.Send("Already tracking this address.")
		case store.ErrLimitExceeded:
			return c.Send(fmt.Sprintf("You can track at most %d wallets.", h.cfg.MaxWalletsPerUser))
		default:
			cmdLog.Errorf("create subscription: %v", err)
			return c.Send("Could not track that address right now.")
		}
	}

	if linkage != nil && linkage.MLDSAHash != "" {
		h.hist.BackfillAsync(linkage.MLDSAHash, addr)
	}

	return c.Send(fmt.Sprintf("Now tracking %s", addr))
}

func (h *Handlers) handleUntrack(c telebot.Context) error {
	chatID := c.Chat().ID
	addr := strings.TrimSpace(c.Message().Payload)
	for _, sub := range h.st.ListSubscriptionsByChat(chatID) {
		if sub.PrimaryAddress == addr {
			if err := h.st.DeleteSubscription(reqCtx(), sub.ID); err != nil {
				return c.Send("Could not untrack that address right now.")
			}
			return c.Send(fmt.Sprintf("Stopped tracking %s", addr))
		}
	}
	return c.Send("That address is not tracked in this chat.")
}

func (h *Handlers) handleBalance(c telebot.Context) error {
	chatID := c.Chat().ID
	if !h.limiter.Allow(chatID, "balance", balanceRateWindow) {
		return c.Send("Please wait before requesting balance again.")
	}
	addr := strings.TrimSpace(c.Message().Payload)
	if addr == "" {
		return c.Send("Usage: /balance <address>")
	}
	balances, err := h.indexer.Balances(reqCtx(), addr)
	if err != nil {
		return c.Send("Could not fetch balances right now.")
	}
	if len(balances) == 0 {
		return c.Send("No token balances found.")
	}
	msg := fmt.Sprintf("Balances for %s:\n", addr)
	for _, b := range balances {
		msg += fmt.Sprintf("%s: %s\n", b.Contract, b.Balance)
	}
	return c.Send(msg)
}

func (h *Handlers) handlePortfolio(c telebot.Context) error {
	chatID := c.Chat().ID
	if !h.limiter.Allow(chatID, "portfolio", portfolioRateWindow) {
		return c.Send("Please wait before requesting portfolio again.")
	}
	subs := h.st.ListSubscriptionsByChat(chatID)
	if len(subs) == 0 {
		return c.Send("No tracked wallets in this chat.")
	}
	msg := "Tracked wallets:\n"
	for _, sub := range subs {
		msg += fmt.Sprintf("%s", sub.PrimaryAddress)
		if sub.Label != "" {
			msg += fmt.Sprintf(" (%s)", sub.Label)
		}
		msg += "\n"
	}
	return c.Send(msg)
}
