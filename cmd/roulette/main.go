package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`

	Serve ServeCmd `cmd:"" help:"Run the roulette table server"`

	Init        InitCmd        `cmd:"" help:"Initialize the table as its admin"`
	UpdateTable UpdateTableCmd `cmd:"update-table" help:"Change table settings as the admin"`
	Fund        FundCmd        `cmd:"" help:"Credit a player account as the admin"`
	FundVault   FundVaultCmd   `cmd:"fund-vault" help:"Credit the vault as the admin"`
	Withdraw    WithdrawCmd    `cmd:"" help:"Withdraw vault surplus as the admin"`
	Bet         BetCmd         `cmd:"" help:"Place a bet on the open round"`
	Spin        SpinCmd        `cmd:"" help:"Close the open round and request its outcome"`
	Claim       ClaimCmd       `cmd:"" help:"Claim winnings"`
	Status      StatusCmd      `cmd:"" help:"Show table, round and vault state"`
	Watch       WatchCmd       `cmd:"" help:"Watch the table and play interactively"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("roulette"),
		kong.Description("Roulette table on a transactional ledger"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
