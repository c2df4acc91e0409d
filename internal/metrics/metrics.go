// Package metrics exposes table activity as Prometheus collectors. It
// subscribes to the table event bus, so the engine never touches it directly.
package metrics

import (
	"net/http"

	"github.com/lox/roulette/internal/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the table collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	BetsPlaced       *prometheus.CounterVec
	AmountWagered    prometheus.Counter
	RoundsSpun       prometheus.Counter
	RoundsResolved   prometheus.Counter
	Outcomes         *prometheus.CounterVec
	WinningsPaid     prometheus.Counter
	Claims           prometheus.Counter
	VaultWithdrawals prometheus.Counter
	CurrentRound     prometheus.Gauge
	Connections      prometheus.Gauge
	Messages         *prometheus.CounterVec
	OperationErrors  *prometheus.CounterVec
}

// New creates the collectors on a private registry, alongside the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BetsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roulette_bets_placed_total",
			Help: "Bets placed, by bet kind",
		}, []string{"kind"}),
		AmountWagered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roulette_amount_wagered_total",
			Help: "Sum of all stakes escrowed into the vault",
		}),
		RoundsSpun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roulette_rounds_spun_total",
			Help: "Rounds locked and sent to the oracle",
		}),
		RoundsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roulette_rounds_resolved_total",
			Help: "Rounds resolved by the oracle",
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roulette_outcomes_total",
			Help: "Resolved outcomes by pocket color",
		}, []string{"color"}),
		WinningsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roulette_winnings_paid_total",
			Help: "Sum of all payouts released from the vault",
		}),
		Claims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roulette_claims_total",
			Help: "Winning bets claimed",
		}),
		VaultWithdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roulette_vault_withdrawn_total",
			Help: "Sum withdrawn from the vault by the admin",
		}),
		CurrentRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roulette_current_round",
			Help: "Round number currently accepting bets",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roulette_websocket_connections",
			Help: "Open websocket connections",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roulette_messages_total",
			Help: "Websocket requests handled, by type",
		}, []string{"type"}),
		OperationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roulette_operation_errors_total",
			Help: "Rejected operations, by error code",
		}, []string{"code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BetsPlaced, m.AmountWagered, m.RoundsSpun, m.RoundsResolved, m.Outcomes,
		m.WinningsPaid, m.Claims, m.VaultWithdrawals, m.CurrentRound,
		m.Connections, m.Messages, m.OperationErrors,
	)
	return m
}

// Registry returns the registry the collectors are registered in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// OnEvent implements table.EventSubscriber.
func (m *Metrics) OnEvent(event table.Event) {
	switch e := event.(type) {
	case table.TableInitializedEvent:
		m.CurrentRound.Set(1)
	case table.BetPlacedEvent:
		m.BetsPlaced.WithLabelValues(e.BetType.Kind.String()).Inc()
		m.AmountWagered.Add(float64(e.Amount))
	case table.RoundSpunEvent:
		m.RoundsSpun.Inc()
	case table.RoundAdvancedEvent:
		m.RoundsResolved.Inc()
		m.Outcomes.WithLabelValues(e.Outcome.Color().String()).Inc()
		m.CurrentRound.Set(float64(e.NextRoundNumber))
	case table.WinningsClaimedEvent:
		m.Claims.Inc()
		m.WinningsPaid.Add(float64(e.Amount))
	case table.VaultWithdrawnEvent:
		m.VaultWithdrawals.Add(float64(e.Amount))
	}
}

// ObserveError counts a rejected operation by its engine error code.
func (m *Metrics) ObserveError(err error) {
	if err == nil {
		return
	}
	code := "internal"
	if e, ok := table.AsError(err); ok {
		code = e.Code
	}
	m.OperationErrors.WithLabelValues(code).Inc()
}
