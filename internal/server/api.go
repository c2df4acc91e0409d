package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/table"
)

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	t, err := s.engine.Table(r.Context())
	s.writeResult(w, t, err)
}

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.Vault(r.Context())
	s.writeResult(w, v, err)
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	var filter table.RoundFilter
	var err error
	if filter.IsSpun, err = boolParam(r, "spun"); err != nil {
		s.writeBadRequest(w, err)
		return
	}

	rounds, err := s.engine.Rounds(r.Context(), filter)
	if err != nil {
		s.writeResult(w, nil, err)
		return
	}
	infos := make([]RoundInfo, len(rounds))
	for i, round := range rounds {
		infos[i] = NewRoundInfo(round)
	}
	s.writeResult(w, infos, nil)
}

func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(chi.URLParam(r, "number"), 10, 64)
	if err != nil {
		s.writeBadRequest(w, errors.New("round number must be an unsigned integer"))
		return
	}
	round, err := s.engine.Round(r.Context(), n)
	if err != nil {
		s.writeResult(w, nil, err)
		return
	}
	s.writeResult(w, NewRoundInfo(round), nil)
}

func (s *Server) handleListBets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := table.BetFilter{Player: ledger.Identity(q.Get("player"))}

	var err error
	if v := q.Get("round"); v != "" {
		n, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			s.writeBadRequest(w, errors.New("round must be an unsigned integer"))
			return
		}
		filter.Round = &n
	}
	if filter.IsClaimed, err = boolParam(r, "claimed"); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if filter.IsWinning, err = boolParam(r, "winning"); err != nil {
		s.writeBadRequest(w, err)
		return
	}

	bets, err := s.engine.Bets(r.Context(), filter)
	if err != nil {
		s.writeResult(w, nil, err)
		return
	}
	infos := make([]BetInfo, len(bets))
	for i, b := range bets {
		infos[i] = NewBetInfo(b)
	}
	s.writeResult(w, infos, nil)
}

// handleGetBet serves /api/bets/{key}; bet keys contain a slash, so the
// key is the rest of the path.
func (s *Server) handleGetBet(w http.ResponseWriter, r *http.Request) {
	key, err := ledger.ParseKey(chi.URLParam(r, "*"))
	if err != nil || key.Kind() != ledger.KindBet {
		s.writeBadRequest(w, errors.New("not a bet key"))
		return
	}
	bet, err := s.engine.Bet(r.Context(), key)
	if err != nil {
		s.writeResult(w, nil, err)
		return
	}
	s.writeResult(w, NewBetInfo(bet), nil)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.engine.Account(r.Context(), ledger.Identity(chi.URLParam(r, "id")))
	s.writeResult(w, acct, err)
}

func boolParam(r *http.Request, name string) (*bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, errors.New(name + " must be true or false")
	}
	return &b, nil
}

func (s *Server) writeResult(w http.ResponseWriter, v any, err error) {
	if err != nil {
		s.writeJSON(w, statusFor(err), errorData(err))
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) writeBadRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, ErrorData{Code: CodeInvalidMessage, Message: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, table.ErrTableNotInitialized), errors.Is(err, table.ErrInvalidRound), errors.Is(err, table.ErrInvalidBet):
		return http.StatusNotFound
	}
	e, ok := table.AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case table.Validation:
		return http.StatusBadRequest
	case table.Authorization:
		return http.StatusForbidden
	default:
		return http.StatusConflict
	}
}
