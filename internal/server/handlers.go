package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/lox/roulette/internal/auth"
	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/table"
)

// handleMessage processes one request from a client. Requests on a single
// connection are handled in the order they arrive.
func (s *Server) handleMessage(ctx context.Context, c *Connection, msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "identity", c.Identity())
	if s.metrics != nil {
		s.metrics.Messages.WithLabelValues(msg.Type.String()).Inc()
	}

	switch msg.Type {
	case MessageTypeAuth:
		s.handleAuth(ctx, c, msg)
	case MessageTypeSubscribe:
		c.SetSubscribed(true)
		c.reply(msg, MessageTypeResult, struct{}{})

	case MessageTypeInitializeTable:
		withSigner(s, c, msg, func(signer ledger.Identity, data InitializeTableData) (any, error) {
			return s.engine.InitializeTable(ctx, signer, data.MinimumBetAmount, data.RoundPeriod, data.ReserveFloor)
		})
	case MessageTypeUpdateTable:
		withSigner(s, c, msg, func(signer ledger.Identity, data table.TableUpdate) (any, error) {
			return s.engine.UpdateTable(ctx, signer, data)
		})
	case MessageTypePlaceBet:
		withSigner(s, c, msg, func(signer ledger.Identity, data PlaceBetData) (any, error) {
			bet, err := s.engine.PlaceBet(ctx, signer, data.BetType, data.Amount)
			if err != nil {
				return nil, err
			}
			return NewBetInfo(bet), nil
		})
	case MessageTypeSpinRound:
		withSigner(s, c, msg, func(signer ledger.Identity, data SpinRoundData) (any, error) {
			return s.engine.SpinRound(ctx, signer, data.Seed)
		})
	case MessageTypeAdvanceRound:
		withSigner(s, c, msg, func(signer ledger.Identity, data AdvanceRoundData) (any, error) {
			if s.localOracle {
				return nil, fmt.Errorf("%w: outcomes come from the in-process oracle", table.ErrUnauthorizedOracle)
			}
			return struct{}{}, s.engine.AdvanceRound(ctx, signer, data.RoundNumber, data.Randomness)
		})
	case MessageTypeClaimWinnings:
		withSigner(s, c, msg, func(signer ledger.Identity, data ClaimWinningsData) (any, error) {
			return s.engine.ClaimWinnings(ctx, signer, data.Targets...)
		})
	case MessageTypeWithdrawVault:
		withSigner(s, c, msg, func(signer ledger.Identity, data WithdrawVaultData) (any, error) {
			amount, err := s.engine.WithdrawVault(ctx, signer, data.Amount)
			return WithdrawnData{Amount: amount}, err
		})
	case MessageTypeFundAccount:
		withSigner(s, c, msg, func(signer ledger.Identity, data FundAccountData) (any, error) {
			return s.engine.FundAccount(ctx, signer, data.Account, data.Amount)
		})
	case MessageTypeFundVault:
		withSigner(s, c, msg, func(signer ledger.Identity, data FundVaultData) (any, error) {
			return s.engine.FundVault(ctx, signer, data.Amount)
		})

	case MessageTypeGetTable:
		query(s, c, msg, func(struct{}) (any, error) { return s.engine.Table(ctx) })
	case MessageTypeGetVault:
		query(s, c, msg, func(struct{}) (any, error) { return s.engine.Vault(ctx) })
	case MessageTypeGetRound:
		query(s, c, msg, func(data GetRoundData) (any, error) {
			round, err := s.engine.Round(ctx, data.RoundNumber)
			if err != nil {
				return nil, err
			}
			return NewRoundInfo(round), nil
		})
	case MessageTypeListRounds:
		query(s, c, msg, func(data ListRoundsData) (any, error) {
			rounds, err := s.engine.Rounds(ctx, table.RoundFilter{IsSpun: data.IsSpun})
			if err != nil {
				return nil, err
			}
			infos := make([]RoundInfo, len(rounds))
			for i, r := range rounds {
				infos[i] = NewRoundInfo(r)
			}
			return infos, nil
		})
	case MessageTypeListBets:
		query(s, c, msg, func(data ListBetsData) (any, error) {
			bets, err := s.engine.Bets(ctx, table.BetFilter{
				Player:    data.Player,
				Round:     data.Round,
				IsClaimed: data.IsClaimed,
				IsWinning: data.IsWinning,
			})
			if err != nil {
				return nil, err
			}
			infos := make([]BetInfo, len(bets))
			for i, b := range bets {
				infos[i] = NewBetInfo(b)
			}
			return infos, nil
		})
	case MessageTypeGetBet:
		query(s, c, msg, func(data GetBetData) (any, error) {
			bet, err := s.engine.Bet(ctx, data.Bet)
			if err != nil {
				return nil, err
			}
			return NewBetInfo(bet), nil
		})
	case MessageTypeGetAccount:
		query(s, c, msg, func(data GetAccountData) (any, error) {
			id := data.Account
			if id == "" {
				id = c.Identity()
			}
			return s.engine.Account(ctx, id)
		})

	default:
		c.replyError(msg, ErrorData{
			Code:    CodeUnknownMessageType,
			Message: "unknown message type: " + msg.Type.String(),
		})
	}
}

func (s *Server) handleAuth(ctx context.Context, c *Connection, msg *Message) {
	data, ok := decode[AuthData](c, msg)
	if !ok {
		return
	}

	identity, err := s.validator.Validate(ctx, data.Token)
	if err != nil {
		code := CodeInvalidToken
		if errors.Is(err, auth.ErrUnavailable) {
			code = CodeAuthUnavailable
		}
		c.logger.Warn("Authentication failed", "error", err)
		c.replyError(msg, ErrorData{Code: code, Message: err.Error()})
		return
	}

	c.SetIdentity(ledger.Identity(identity.ID), identity.Name)
	c.logger.Info("Authenticated", "identity", identity.ID)
	c.reply(msg, MessageTypeAuthResponse, AuthResponseData{
		Success:  true,
		Identity: identity.ID,
		Name:     identity.Name,
	})
}

// withSigner runs a state-changing operation as the connection's identity.
func withSigner[T any](s *Server, c *Connection, msg *Message, op func(ledger.Identity, T) (any, error)) {
	signer := c.Identity()
	if signer == "" {
		c.replyError(msg, ErrorData{Code: CodeNotAuthenticated, Message: "must authenticate first"})
		return
	}
	data, ok := decode[T](c, msg)
	if !ok {
		return
	}
	result, err := op(signer, data)
	s.respond(c, msg, result, err)
}

// query runs a read that needs no identity.
func query[T any](s *Server, c *Connection, msg *Message, op func(T) (any, error)) {
	data, ok := decode[T](c, msg)
	if !ok {
		return
	}
	result, err := op(data)
	s.respond(c, msg, result, err)
}

func (s *Server) respond(c *Connection, msg *Message, result any, err error) {
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveError(err)
		}
		c.replyError(msg, errorData(err))
		return
	}
	c.reply(msg, MessageTypeResult, result)
}

// errorData maps an error to its wire form. Anything that is not an engine
// error is reported as internal without its details.
func errorData(err error) ErrorData {
	if e, ok := table.AsError(err); ok {
		return ErrorData{Code: e.Code, Kind: e.Kind.String(), Message: err.Error()}
	}
	return ErrorData{Code: CodeInternal, Message: "internal error"}
}
