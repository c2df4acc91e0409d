package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/lox/roulette/internal/broadcast"
	"github.com/lox/roulette/internal/client"
	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/oracle"
	"github.com/lox/roulette/internal/server"
	"github.com/lox/roulette/internal/table"
	"github.com/lox/roulette/internal/tui"
	"github.com/lox/roulette/internal/wheel"
	"github.com/muesli/termenv"
)

// ClientFlags are shared by every command that talks to a server.
type ClientFlags struct {
	Config  string `short:"c" default:"roulette-client.hcl" help:"Path to client HCL configuration file"`
	Server  string `short:"s" help:"Server URL (overrides config)"`
	Token   string `short:"t" env:"ROULETTE_TOKEN" help:"Auth token (overrides config)"`
	NoColor bool   `help:"Disable colored output"`
}

type session struct {
	client  *client.Client
	logger  *log.Logger
	timeout time.Duration
}

// connect loads the client config, dials the server and authenticates.
// Logs go to out.
func (f *ClientFlags) connect(ctx context.Context, out io.Writer) (*session, error) {
	cfg, err := client.LoadClientConfig(f.Config)
	if err != nil {
		return nil, err
	}
	if f.Server != "" {
		cfg.Server.URL = f.Server
	}
	if f.Token != "" {
		cfg.Player.Token = f.Token
	}
	if f.NoColor {
		cfg.UI.NoColor = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}
	if cfg.UI.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	if cfg.Player.Token == "" {
		return nil, fmt.Errorf("a token is required: set --token, ROULETTE_TOKEN or player.token")
	}

	logger := newLogger(out, cfg.UI.LogLevel)
	c := client.NewClient(cfg.Server.URL, cfg.RequestTimeout(), logger)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer cancel()
	if err := server.WaitForHealthy(dialCtx, cfg.Server.URL); err != nil {
		return nil, err
	}
	if err := c.Connect(dialCtx); err != nil {
		return nil, err
	}
	identity, err := c.Auth(ctx, cfg.Player.Token)
	if err != nil {
		c.Disconnect()
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	logger.Debug("Authenticated", "identity", identity)

	return &session{client: c, logger: logger, timeout: cfg.RequestTimeout()}, nil
}

// withSession runs fn against an authenticated connection and disconnects.
func (f *ClientFlags) withSession(fn func(ctx context.Context, s *session) error) error {
	ctx := context.Background()
	s, err := f.connect(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer s.client.Disconnect()
	return fn(ctx, s)
}

func printResult(format string, args ...any) {
	fmt.Println(tui.SuccessStyle.Render(fmt.Sprintf(format, args...)))
}

type InitCmd struct {
	ClientFlags  `embed:""`
	MinimumBet   uint64        `default:"10" help:"Smallest accepted stake"`
	RoundPeriod  time.Duration `default:"30s" help:"How long each round accepts bets"`
	ReserveFloor uint64        `default:"1000" help:"Vault balance the admin can never withdraw"`
}

func (c *InitCmd) Run() error {
	return c.withSession(func(ctx context.Context, s *session) error {
		t, err := s.client.InitializeTable(ctx, c.MinimumBet, c.RoundPeriod, c.ReserveFloor)
		if err != nil {
			return err
		}
		printResult("Table initialized by %s, round %d closes at %s",
			t.Admin, t.CurrentRoundNumber, t.NextRoundDeadline.Local().Format(time.TimeOnly))
		return nil
	})
}

type UpdateTableCmd struct {
	ClientFlags `embed:""`
	MinimumBet  *uint64        `help:"New minimum stake"`
	RoundPeriod *time.Duration `help:"New round period, applied from the next round"`
	NewAdmin    string         `help:"Hand the table to another admin"`
}

func (c *UpdateTableCmd) Run() error {
	var update table.TableUpdate
	if c.MinimumBet != nil {
		update.MinimumBetAmount = table.Some(*c.MinimumBet)
	}
	if c.RoundPeriod != nil {
		update.RoundPeriod = table.Some(*c.RoundPeriod)
	}
	if c.NewAdmin != "" {
		update.NewAdmin = table.Some(ledger.Identity(c.NewAdmin))
	}
	return c.withSession(func(ctx context.Context, s *session) error {
		t, err := s.client.UpdateTable(ctx, update)
		if err != nil {
			return err
		}
		printResult("Table updated: admin %s, minimum bet %d, round period %s", t.Admin, t.MinimumBetAmount, t.RoundPeriod)
		return nil
	})
}

type FundCmd struct {
	ClientFlags `embed:""`
	Account     string `arg:"" help:"Account to credit"`
	Amount      uint64 `arg:"" help:"Amount to credit"`
}

func (c *FundCmd) Run() error {
	return c.withSession(func(ctx context.Context, s *session) error {
		acct, err := s.client.FundAccount(ctx, ledger.Identity(c.Account), c.Amount)
		if err != nil {
			return err
		}
		printResult("%s balance is now %d", acct.Owner, acct.Balance)
		return nil
	})
}

type FundVaultCmd struct {
	ClientFlags `embed:""`
	Amount      uint64 `arg:"" help:"Amount to credit"`
}

func (c *FundVaultCmd) Run() error {
	return c.withSession(func(ctx context.Context, s *session) error {
		v, err := s.client.FundVault(ctx, c.Amount)
		if err != nil {
			return err
		}
		printResult("Vault balance is now %d", v.Balance)
		return nil
	})
}

type WithdrawCmd struct {
	ClientFlags `embed:""`
	Amount      *uint64 `arg:"" optional:"" help:"Amount to withdraw, everything above the floor if omitted"`
}

func (c *WithdrawCmd) Run() error {
	amount := table.None[uint64]()
	if c.Amount != nil {
		amount = table.Some(*c.Amount)
	}
	return c.withSession(func(ctx context.Context, s *session) error {
		withdrawn, err := s.client.WithdrawVault(ctx, amount)
		if err != nil {
			return err
		}
		if withdrawn == 0 {
			fmt.Println(tui.WarningStyle.Render("Nothing above the reserve floor to withdraw"))
			return nil
		}
		printResult("Withdrew %d from the vault", withdrawn)
		return nil
	})
}

type BetCmd struct {
	ClientFlags `embed:""`
	Type        string `arg:"" help:"Bet type, e.g. red, odd, five, dozen:2, column:3, straight:00, split:5,6, street:1,2,3, corner:1,2,4,5, line:1,2,3,4,5,6"`
	Amount      uint64 `arg:"" help:"Stake"`
}

func (c *BetCmd) Run() error {
	betType, err := wheel.ParseBetType(c.Type)
	if err != nil {
		return err
	}
	return c.withSession(func(ctx context.Context, s *session) error {
		bet, err := s.client.PlaceBet(ctx, betType, c.Amount)
		if err != nil {
			return err
		}
		printResult("Bet %d on %s in round %d (%s)", bet.Amount, bet.BetType, bet.RoundNumber, bet.Key)
		return nil
	})
}

type SpinCmd struct {
	ClientFlags `embed:""`
	Seed        string `help:"Hex caller seed, random if omitted"`
	Wait        bool   `help:"Wait for the outcome"`
}

func (c *SpinCmd) Run() error {
	var seed oracle.Seed
	if c.Seed != "" {
		parsed, err := oracle.ParseSeed(c.Seed)
		if err != nil {
			return err
		}
		seed = parsed
	} else if _, err := rand.Read(seed[:]); err != nil {
		return err
	}

	return c.withSession(func(ctx context.Context, s *session) error {
		resolved := make(chan table.RoundAdvancedEvent, 1)
		if c.Wait {
			s.client.AddEventHandler(func(env broadcast.Envelope) {
				if env.Type != table.EventTypeRoundAdvanced {
					return
				}
				var e table.RoundAdvancedEvent
				if err := json.Unmarshal(env.Data, &e); err != nil {
					s.logger.Warn("Undecodable event", "error", err)
					return
				}
				select {
				case resolved <- e:
				default:
				}
			})
			if err := s.client.Subscribe(ctx); err != nil {
				return err
			}
		}

		req, err := s.client.SpinRound(ctx, seed)
		if err != nil {
			return err
		}
		printResult("Round %d spun, request %s", req.Round, req.ID)
		if !c.Wait {
			return nil
		}

		timeout := time.After(s.timeout)
		for {
			select {
			case e := <-resolved:
				if e.RoundNumber != req.Round {
					continue
				}
				fmt.Printf("Round %d landed on %s\n", e.RoundNumber, tui.RenderPocket(e.Outcome))
				return nil
			case <-timeout:
				return fmt.Errorf("timed out waiting for round %d to resolve", req.Round)
			case <-s.client.Done():
				return client.ErrDisconnected
			}
		}
	})
}

type ClaimCmd struct {
	ClientFlags `embed:""`
	Rounds      []uint64 `arg:"" optional:"" help:"Rounds to claim, every unclaimed win if omitted"`
}

func (c *ClaimCmd) Run() error {
	return c.withSession(func(ctx context.Context, s *session) error {
		var targets []table.ClaimTarget
		for _, n := range c.Rounds {
			targets = append(targets, table.ClaimTarget{Round: n})
		}
		if len(targets) == 0 {
			winning, unclaimed := true, false
			bets, err := s.client.Bets(ctx, server.ListBetsData{
				Player:    ledger.Identity(s.client.Identity()),
				IsWinning: &winning,
				IsClaimed: &unclaimed,
			})
			if err != nil {
				return err
			}
			for _, b := range bets {
				targets = append(targets, table.ClaimTarget{Round: b.RoundNumber, Bet: b.Key})
			}
		}
		if len(targets) == 0 {
			fmt.Println(tui.WarningStyle.Render("Nothing to claim"))
			return nil
		}

		payouts, err := s.client.ClaimWinnings(ctx, targets...)
		if err != nil {
			return err
		}
		var total uint64
		for _, p := range payouts {
			fmt.Printf("  round %d: %d\n", p.RoundNumber, p.Amount)
			total += p.Amount
		}
		printResult("Claimed %d", total)
		return nil
	})
}

type StatusCmd struct {
	ClientFlags `embed:""`
	Rounds      int `default:"5" help:"Number of recent resolved rounds to list"`
}

func (c *StatusCmd) Run() error {
	return c.withSession(func(ctx context.Context, s *session) error {
		status := tui.Status{Now: time.Now()}

		t, err := s.client.Table(ctx)
		if err != nil {
			fmt.Println(tui.RenderStatus(status))
			return err
		}
		status.Table = t
		if info, err := s.client.Round(ctx, t.CurrentRoundNumber); err == nil {
			status.Round = info.Round
		}
		if status.Vault, err = s.client.Vault(ctx); err != nil {
			return err
		}
		acct, err := s.client.Account(ctx, ledger.Identity(s.client.Identity()))
		if err != nil {
			return err
		}
		status.Balance = &acct.Balance

		fmt.Println(tui.RenderStatus(status))

		spun := true
		rounds, err := s.client.Rounds(ctx, server.ListRoundsData{IsSpun: &spun})
		if err != nil {
			return err
		}
		var recent []string
		for i := len(rounds) - 1; i >= 0 && len(recent) < c.Rounds; i-- {
			if p, ok := rounds[i].Outcome.Pocket(); ok {
				recent = append(recent, fmt.Sprintf("#%d %s", rounds[i].RoundNumber, tui.RenderPocket(p)))
			}
		}
		if len(recent) > 0 {
			fmt.Println()
			fmt.Println(tui.LabelStyle.Render("Recent") + " " + lipgloss.JoinHorizontal(lipgloss.Top, joinSpaced(recent)...))
		}
		return nil
	})
}

func joinSpaced(parts []string) []string {
	out := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			out = append(out, "  ")
		}
		out = append(out, p)
	}
	return out
}
