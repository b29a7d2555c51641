// Package metrics exposes ledger and store counters on a private
// Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/shop-ledger/ledger"
)

// Registry implements ledger.Observer and store.Observer.
type Registry struct {
	reg           *prometheus.Registry
	Mutations     *prometheus.CounterVec
	Saves         *prometheus.CounterVec
	LoadFallbacks prometheus.Counter
	MigratedRecs  *prometheus.CounterVec
	LowStockParts prometheus.Gauge
	StaleSessions prometheus.Counter
}

func New() *Registry {
	r := prometheus.NewRegistry()
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_mutations_total",
		Help: "Ledger state transitions by operation and result (ok, noop, error).",
	}, []string{"op", "result"})
	saves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_store_saves_total",
		Help: "Document saves by result.",
	}, []string{"result"})
	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_store_load_fallbacks_total",
		Help: "Loads that fell back to an empty document.",
	})
	migrated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_migrated_records_total",
		Help: "Legacy records seen by migration, by entity and outcome.",
	}, []string{"entity", "outcome"})
	lowStock := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_low_stock_parts",
		Help: "Parts at or below their low-stock threshold.",
	})
	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_stale_session_warnings_total",
		Help: "End-of-day warnings raised for a session left open past its date.",
	})
	r.MustRegister(mutations, saves, fallbacks, migrated, lowStock, stale)
	return &Registry{
		reg:           r,
		Mutations:     mutations,
		Saves:         saves,
		LoadFallbacks: fallbacks,
		MigratedRecs:  migrated,
		LowStockParts: lowStock,
		StaleSessions: stale,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) ObserveMutation(op, result string) { r.Mutations.WithLabelValues(op, result).Inc() }

func (r *Registry) ObserveLowStock(count int) { r.LowStockParts.Set(float64(count)) }

func (r *Registry) ObserveSave(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.Saves.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveLoadFallback() { r.LoadFallbacks.Inc() }

func (r *Registry) ObserveMigration(rep ledger.MigrationReport) {
	for entity, c := range map[string]ledger.EntityCounts{
		"customer":    rep.Customers,
		"part":        rep.Parts,
		"operation":   rep.Operations,
		"transaction": rep.Transactions,
	} {
		r.MigratedRecs.WithLabelValues(entity, "kept").Add(float64(c.Kept))
		r.MigratedRecs.WithLabelValues(entity, "repaired").Add(float64(c.Repaired))
		r.MigratedRecs.WithLabelValues(entity, "dropped").Add(float64(c.Dropped))
	}
}

// ObserveStaleSession counts a rollover warning.
func (r *Registry) ObserveStaleSession() { r.StaleSessions.Inc() }
