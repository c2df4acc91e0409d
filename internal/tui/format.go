package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lox/roulette/internal/broadcast"
	"github.com/lox/roulette/internal/table"
)

// FormatEvent renders one table event as a log line.
func FormatEvent(env broadcast.Envelope) (string, error) {
	stamp := InfoStyle.Render(env.At.Format("15:04:05"))

	var line string
	switch env.Type {
	case table.EventTypeTableInitialized:
		var e table.TableInitializedEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return "", err
		}
		line = fmt.Sprintf("Table opened by %s: minimum bet %d, %s rounds", e.Admin, e.MinimumBetAmount, e.RoundPeriod)
	case table.EventTypeTableUpdated:
		var e table.TableUpdatedEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return "", err
		}
		line = fmt.Sprintf("Table updated: admin %s, minimum bet %d, %s rounds", e.Admin, e.MinimumBetAmount, e.RoundPeriod)
	case table.EventTypeAccountFunded:
		var e table.AccountFundedEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return "", err
		}
		line = fmt.Sprintf("%s funded with %d (balance %d)", e.Account, e.Amount, e.Balance)
	case table.EventTypeBetPlaced:
		var e table.BetPlacedEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return "", err
		}
		line = fmt.Sprintf("Round %d: %s bets %d on %s (pool %d)", e.RoundNumber, e.Player, e.Amount, e.BetType, e.PoolAmount)
	case table.EventTypeRoundSpun:
		var e table.RoundSpunEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return "", err
		}
		line = WarningStyle.Render(fmt.Sprintf("Round %d spinning, no more bets (pool %d)", e.RoundNumber, e.PoolAmount))
	case table.EventTypeRoundAdvanced:
		var e table.RoundAdvancedEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return "", err
		}
		line = fmt.Sprintf("Round %d landed on %s, round %d open", e.RoundNumber, RenderPocket(e.Outcome), e.NextRoundNumber)
	case table.EventTypeWinningsClaimed:
		var e table.WinningsClaimedEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return "", err
		}
		line = SuccessStyle.Render(fmt.Sprintf("%s collects %d from round %d", e.Player, e.Amount, e.RoundNumber))
	case table.EventTypeVaultWithdrawn:
		var e table.VaultWithdrawnEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return "", err
		}
		line = fmt.Sprintf("%s withdrew %d from the vault (balance %d)", e.Admin, e.Amount, e.VaultBalance)
	default:
		line = fmt.Sprintf("%s event", env.Type)
	}
	return stamp + " " + line, nil
}

// Status is everything the status panel shows.
type Status struct {
	Table   *table.Table
	Round   *table.Round
	Vault   *table.Vault
	Balance *uint64
	Now     time.Time
}

// RenderStatus renders a status panel.
func RenderStatus(s Status) string {
	var b strings.Builder
	row := func(label string, value any) {
		fmt.Fprintf(&b, "%s %v\n", LabelStyle.Render(fmt.Sprintf("%-12s", label)), value)
	}

	b.WriteString(HeaderStyle.Render(" Roulette ") + "\n\n")
	if s.Table == nil {
		b.WriteString(WarningStyle.Render("Table not initialized"))
		return b.String()
	}

	row("Admin", s.Table.Admin)
	row("Minimum bet", s.Table.MinimumBetAmount)
	row("Round period", s.Table.RoundPeriod)
	if s.Round != nil {
		row("Round", s.Round.RoundNumber)
		row("Phase", s.Round.Phase())
		row("Pool", s.Round.PoolAmount)
		if p, ok := s.Round.Outcome.Pocket(); ok {
			row("Outcome", RenderPocket(p))
		}
	}
	if s.Round == nil || s.Round.Phase() == table.PhaseOpen {
		remaining := s.Table.NextRoundDeadline.Sub(s.Now).Truncate(time.Second)
		if remaining > 0 {
			row("Closes in", remaining)
		} else {
			row("Closes in", WarningStyle.Render("ready to spin"))
		}
	}
	if s.Vault != nil {
		row("Vault", s.Vault.Balance)
		row("Withdrawable", s.Vault.Withdrawable(s.Table.ReserveFloor))
	}
	if s.Balance != nil {
		row("Balance", *s.Balance)
	}
	return strings.TrimRight(b.String(), "\n")
}
