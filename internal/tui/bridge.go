package tui

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coder/quartz"
	"github.com/lox/roulette/internal/broadcast"
	"github.com/lox/roulette/internal/client"
	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/oracle"
	"github.com/lox/roulette/internal/server"
	"github.com/lox/roulette/internal/table"
	"github.com/lox/roulette/internal/wheel"
)

// Client is the part of client.Client the bridge drives.
type Client interface {
	AddEventHandler(handler client.EventHandler)
	Identity() string
	Table(ctx context.Context) (*table.Table, error)
	Vault(ctx context.Context) (*table.Vault, error)
	Round(ctx context.Context, n uint64) (*server.RoundInfo, error)
	Account(ctx context.Context, account ledger.Identity) (*ledger.Account, error)
	Bets(ctx context.Context, filter server.ListBetsData) ([]server.BetInfo, error)
	PlaceBet(ctx context.Context, betType wheel.BetType, amount uint64) (*server.BetInfo, error)
	SpinRound(ctx context.Context, seed oracle.Seed) (*oracle.Request, error)
	ClaimWinnings(ctx context.Context, targets ...table.ClaimTarget) ([]table.Payout, error)
}

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

var errUsage = errors.New("usage")

// Bridge connects a client to the TUI: events flow into the log and
// commands typed into the input flow out as table operations.
type Bridge struct {
	ctx     context.Context
	client  Client
	tui     *TUIModel
	clock   quartz.Clock
	program Sender
}

// NewBridge creates a new bridge between client and TUI
func NewBridge(ctx context.Context, c Client, tui *TUIModel, clock quartz.Clock) *Bridge {
	b := &Bridge{
		ctx:    ctx,
		client: c,
		tui:    tui,
		clock:  clock,
	}
	c.AddEventHandler(b.handleEvent)
	return b
}

// SetProgram registers the program to notify when the view changes.
func (b *Bridge) SetProgram(p Sender) {
	b.program = p
}

// Start loads the initial status and begins the command loop (non-blocking)
func (b *Bridge) Start() {
	go func() {
		b.tui.AddLogEntry(fmt.Sprintf("Connected as %s. Type 'help' for commands.", b.client.Identity()))
		b.refreshStatus()
		b.commandLoop()
	}()
}

func (b *Bridge) commandLoop() {
	for {
		action, args, shouldContinue, err := b.tui.WaitForAction()
		if err != nil {
			continue
		}
		if !shouldContinue || !b.HandleCommand(action, args) {
			return
		}
	}
}

func (b *Bridge) handleEvent(env broadcast.Envelope) {
	line, err := FormatEvent(env)
	if err != nil {
		b.tui.logger.Warn("Undecodable event", "type", env.Type, "error", err)
		return
	}
	b.tui.AddLogEntry(line)
	b.refreshStatus()
}

// HandleCommand runs one command. It returns false once the user quits.
func (b *Bridge) HandleCommand(action string, args []string) bool {
	var err error
	switch action {
	case "quit", "exit":
		b.tui.SendQuitSignal()
		return false
	case "help":
		b.showHelp()
	case "bet":
		err = b.placeBet(args)
	case "spin":
		err = b.spin()
	case "claim":
		err = b.claim(args)
	case "balance":
		err = b.balance()
	case "status":
		b.refreshStatus()
	default:
		b.tui.AddLogEntry(WarningStyle.Render(fmt.Sprintf("Unknown command %q, type 'help'", action)))
	}

	if errors.Is(err, errUsage) {
		b.tui.AddLogEntry(WarningStyle.Render(err.Error()))
	} else if err != nil {
		b.tui.AddErrorEntry(err)
	}
	b.notify()
	return true
}

func (b *Bridge) showHelp() {
	for _, line := range []string{
		"bet <type> <amount>   e.g. bet red 10, bet split:5,6 20, bet straight:00 5",
		"spin                  close the round once its deadline has passed",
		"claim [round]         collect winnings, all unclaimed wins if no round given",
		"balance               show your account balance",
		"status                refresh the sidebar",
		"quit                  leave",
	} {
		b.tui.AddLogEntry(InfoStyle.Render(line))
	}
}

func (b *Bridge) placeBet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: bet <type> <amount>", errUsage)
	}
	betType, err := wheel.ParseBetType(args[0])
	if err != nil {
		return err
	}
	amount, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: amount must be a whole number", errUsage)
	}

	bet, err := b.client.PlaceBet(b.ctx, betType, amount)
	if err != nil {
		return err
	}
	b.tui.AddLogEntry(SuccessStyle.Render(fmt.Sprintf("Bet %d on %s in round %d", bet.Amount, bet.BetType, bet.RoundNumber)))
	return nil
}

func (b *Bridge) spin() error {
	var seed oracle.Seed
	if _, err := rand.Read(seed[:]); err != nil {
		return err
	}
	req, err := b.client.SpinRound(b.ctx, seed)
	if err != nil {
		return err
	}
	b.tui.AddLogEntry(fmt.Sprintf("Requested the outcome of round %d", req.Round))
	return nil
}

func (b *Bridge) claim(args []string) error {
	var targets []table.ClaimTarget
	switch len(args) {
	case 0:
		winning, unclaimed := true, false
		bets, err := b.client.Bets(b.ctx, server.ListBetsData{
			Player:    ledger.Identity(b.client.Identity()),
			IsWinning: &winning,
			IsClaimed: &unclaimed,
		})
		if err != nil {
			return err
		}
		for _, bet := range bets {
			targets = append(targets, table.ClaimTarget{Round: bet.RoundNumber, Bet: bet.Key})
		}
		if len(targets) == 0 {
			b.tui.AddLogEntry("Nothing to claim")
			return nil
		}
	case 1:
		n, err := strconv.ParseUint(strings.TrimPrefix(args[0], "#"), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: claim [round]", errUsage)
		}
		targets = append(targets, table.ClaimTarget{Round: n})
	default:
		return fmt.Errorf("%w: claim [round]", errUsage)
	}

	payouts, err := b.client.ClaimWinnings(b.ctx, targets...)
	if err != nil {
		return err
	}
	var total uint64
	for _, p := range payouts {
		total += p.Amount
	}
	b.tui.AddLogEntry(SuccessStyle.Render(fmt.Sprintf("Claimed %d from %d bet(s)", total, len(payouts))))
	return nil
}

func (b *Bridge) balance() error {
	acct, err := b.client.Account(b.ctx, ledger.Identity(b.client.Identity()))
	if err != nil {
		return err
	}
	b.tui.AddLogEntry(fmt.Sprintf("Balance: %d", acct.Balance))
	return nil
}

// refreshStatus reloads the sidebar. Failures leave the previous status.
func (b *Bridge) refreshStatus() {
	s := Status{Now: b.clock.Now()}

	t, err := b.client.Table(b.ctx)
	switch {
	case errors.Is(err, table.ErrTableNotInitialized):
		b.tui.SetStatus(s)
		b.notify()
		return
	case err != nil:
		b.tui.logger.Debug("Status refresh failed", "error", err)
		return
	}
	s.Table = t

	if info, err := b.client.Round(b.ctx, t.CurrentRoundNumber); err == nil {
		s.Round = info.Round
	}
	if v, err := b.client.Vault(b.ctx); err == nil {
		s.Vault = v
	}
	if acct, err := b.client.Account(b.ctx, ledger.Identity(b.client.Identity())); err == nil {
		balance := acct.Balance
		s.Balance = &balance
	}

	b.tui.SetStatus(s)
	b.notify()
}

func (b *Bridge) notify() {
	if b.program != nil {
		b.program.Send(RefreshMsg{})
	}
}
