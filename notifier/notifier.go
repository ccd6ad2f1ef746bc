// Package notifier implements Component G: groups surviving events by
// (address, txHash), renders each group per spec §4.7's composite
// patterns, and dispatches to every chat tracking the address after a
// paid-subscription liveness check.
package notifier

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/trypto13/jeet-tracker/chatbot"
	"github.com/trypto13/jeet-tracker/log"
	"github.com/trypto13/jeet-tracker/matcher"
	"github.com/trypto13/jeet-tracker/scanner"
	"github.com/trypto13/jeet-tracker/store"
)

var notifyLog = log.NewSubsystemLogger(log.SubsystemNotifier)

// Group is every event attributed to one (address, txHash) pair.
type Group struct {
	Address     string
	TxHash      string
	BlockHeight int64
	BTC         []scanner.Event
	Semantic    []matcher.Event
}

func groupKey(address, txHash string) string { return address + "|" + txHash }

// BuildGroups groups BTC and semantic events by (address, txHash),
// the first step of spec §4.7.
func BuildGroups(btcEvents []scanner.Event, semanticEvents []matcher.Event) []Group {
	idx := make(map[string]*Group)
	var order []string

	for _, e := range btcEvents {
		k := groupKey(e.Address, e.TxHash)
		g, ok := idx[k]
		if !ok {
			g = &Group{Address: e.Address, TxHash: e.TxHash, BlockHeight: e.BlockHeight}
			idx[k] = g
			order = append(order, k)
		}
		g.BTC = append(g.BTC, e)
	}
	for _, e := range semanticEvents {
		k := groupKey(e.Address, e.TxHash)
		g, ok := idx[k]
		if !ok {
			g = &Group{Address: e.Address, TxHash: e.TxHash, BlockHeight: e.BlockHeight}
			idx[k] = g
			order = append(order, k)
		}
		g.Semantic = append(g.Semantic, e)
	}

	sort.Slice(order, func(i, j int) bool {
		return idx[order[i]].BlockHeight < idx[order[j]].BlockHeight
	})

	groups := make([]Group, 0, len(order))
	for _, k := range order {
		groups = append(groups, *idx[k])
	}
	return groups
}

// Notifier renders and dispatches event groups.
type Notifier struct {
	st     *store.Store
	sender chatbot.Sender

	mu          sync.Mutex
	expiryNoted map[int64]bool
}

// New builds a Notifier.
func New(st *store.Store, sender chatbot.Sender) *Notifier {
	return &Notifier{st: st, sender: sender, expiryNoted: make(map[int64]bool)}
}

// Dispatch renders each group and sends it to every chat tracking its
// address, subject to the paid-subscription gate.
func (n *Notifier) Dispatch(ctx context.Context, groups []Group) {
	for _, g := range groups {
		text := Render(g)
		if text == "" {
			continue
		}
		for _, chatID := range n.st.ChatsTrackingAddress(g.Address) {
			n.deliver(ctx, chatID, text)
		}
	}
}

// DispatchPriceAlert renders and sends one price alert to its owning
// chat, subject to the same subscription gate.
func (n *Notifier) DispatchPriceAlert(ctx context.Context, alert matcher.PriceAlert) {
	text := renderPriceAlert(alert)
	n.deliver(ctx, alert.ChatID, text)
}

// deliver enforces the subscription-liveness invariant: every
// outbound message is preceded by a positive hasActiveSubscription
// check, or is itself the one-time expiry notice (spec §8 invariant
// 6).
func (n *Notifier) deliver(ctx context.Context, chatID int64, text string) {
	if n.st.HasActiveSubscription(chatID) {
		if err := n.sender.SendMessage(ctx, chatID, text); err != nil {
			notifyLog.Errorf("dispatch to %d: %v", chatID, err)
		}
		return
	}

	n.mu.Lock()
	alreadyNoted := n.expiryNoted[chatID]
	if !alreadyNoted {
		n.expiryNoted[chatID] = true
	}
	n.mu.Unlock()

	if alreadyNoted {
		return
	}
	notice := "Your subscription has expired. Notifications are paused until you renew."
	if err := n.sender.SendMessage(ctx, chatID, notice); err != nil {
		notifyLog.Errorf("expiry notice to %d: %v", chatID, err)
	}
}

// Render applies the composite-pattern rules from spec §4.7 to one
// group, producing the single message to send.
func Render(g Group) string {
	var swap *matcher.Event
	tokenIn, tokenOut := (*matcher.Event)(nil), (*matcher.Event)(nil)
	for i := range g.Semantic {
		e := &g.Semantic[i]
		switch e.Kind {
		case matcher.KindSwapExecuted:
			swap = e
		case matcher.KindToken, matcher.KindNFTTransfer:
			if e.Direction == matcher.DirectionIn {
				tokenIn = e
			} else {
				tokenOut = e
			}
		}
	}

	var sent, received *scanner.Event
	for i := range g.BTC {
		e := &g.BTC[i]
		switch e.Type {
		case scanner.EventBTCSent:
			sent = e
		case scanner.EventBTCReceived:
			received = e
		}
	}

	switch {
	case swap != nil:
		return renderSwapExecuted(g, swap, received)
	case tokenIn != nil && tokenOut != nil:
		return renderTokenSwap(g, tokenIn, tokenOut)
	case sent != nil && sent.Counterparty == "":
		return renderInternalTransfer(g, sent, received)
	case sent != nil:
		return renderBTCSent(g, sent, received)
	default:
		return renderIndividually(g)
	}
}

func renderSwapExecuted(g Group, swap *matcher.Event, btcReceived *scanner.Event) string {
	msg := fmt.Sprintf("*Swap Executed*\nWallet: `%s`\nBTC Spent: %s sats\nReceived: %s tokens (`%s`)",
		g.Address, swap.BtcSpent, swap.TokenAmount, swap.Contract)
	return msg
}

func renderTokenSwap(g Group, in, out *matcher.Event) string {
	return fmt.Sprintf("*Token Swap*\nWallet: `%s`\nOut: %s (`%s`)\nIn: %s (`%s`)",
		g.Address, out.Value, out.Contract, in.Value, in.Contract)
}

func renderInternalTransfer(g Group, sent, received *scanner.Event) string {
	changeSats := big.NewInt(0)
	if received != nil && received.Satoshis != nil {
		changeSats = received.Satoshis
	}
	fee := new(big.Int).Sub(sent.Satoshis, changeSats)
	return fmt.Sprintf("*Internal Transfer*\nWallet: `%s`\nReceived (change): %s sats\nFee: %s sats",
		g.Address, changeSats.String(), fee.String())
}

func renderBTCSent(g Group, sent *scanner.Event, received *scanner.Event) string {
	changeSats := big.NewInt(0)
	if received != nil && received.Satoshis != nil {
		changeSats = received.Satoshis
	}
	recipientAmount := big.NewInt(0)
	if sent.CounterpartyAmount != nil {
		recipientAmount = sent.CounterpartyAmount
	}
	fee := new(big.Int).Sub(sent.Satoshis, recipientAmount)
	fee.Sub(fee, changeSats)
	msg := fmt.Sprintf("*BTC Sent*\nWallet: `%s`\nTo: `%s`\nAmount: %s sats",
		g.Address, sent.Counterparty, recipientAmount.String())
	if received != nil {
		msg += fmt.Sprintf("\nChange: %s sats\nFee: %s sats", changeSats.String(), fee.String())
	}
	return msg
}

func renderIndividually(g Group) string {
	var lines []string
	for _, e := range g.BTC {
		switch e.Type {
		case scanner.EventBTCSent:
			lines = append(lines, fmt.Sprintf("BTC Sent: %s sats", e.Satoshis.String()))
		case scanner.EventBTCReceived:
			lines = append(lines, fmt.Sprintf("BTC Received: %s sats", e.Satoshis.String()))
		}
	}
	for _, e := range g.Semantic {
		lines = append(lines, renderSemanticLine(e))
	}
	if len(lines) == 0 {
		return ""
	}
	header := fmt.Sprintf("*Wallet Activity*\nWallet: `%s`\n", g.Address)
	out := header
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

func renderSemanticLine(e matcher.Event) string {
	switch e.Kind {
	case matcher.KindToken:
		return fmt.Sprintf("Token %s: %s (`%s`)", e.Direction, e.Value, e.Contract)
	case matcher.KindNFTTransfer:
		return fmt.Sprintf("NFT %s: `%s` (`%s`)", e.Direction, e.Value, e.Contract)
	case matcher.KindLiquidityReserved:
		return fmt.Sprintf("Liquidity Reserved (%s): %s sats / %s tokens", e.Role, e.Satoshis, e.TokenAmount)
	case matcher.KindProviderConsumed:
		return fmt.Sprintf("Provider Reservation Consumed: %s sats / %s tokens", e.Satoshis, e.TokenAmount)
	case matcher.KindLiquidityAdded:
		return fmt.Sprintf("Liquidity Added: %s sats / %s tokens", e.Satoshis, e.TokenAmount)
	case matcher.KindLiquidityRemoved:
		return fmt.Sprintf("Liquidity Removed: %s sats / %s tokens", e.Satoshis, e.TokenAmount)
	case matcher.KindStaked:
		return fmt.Sprintf("Staked: %s tokens", e.TokenAmount)
	case matcher.KindUnstaked:
		return fmt.Sprintf("Unstaked: %s tokens", e.TokenAmount)
	case matcher.KindRewardsClaimed:
		return fmt.Sprintf("Rewards Claimed: %s tokens", e.TokenAmount)
	default:
		return string(e.Kind)
	}
}

func renderPriceAlert(a matcher.PriceAlert) string {
	return fmt.Sprintf("*Price Alert*\nContract: `%s`\nChange: %.2f%%\nNew Price: %s",
		a.Contract, a.PercentDelta, a.NewPrice)
}
