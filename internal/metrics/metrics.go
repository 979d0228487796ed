// internal/metrics/metrics.go
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/copytradr/solana-copybot/internal/events"
)

// Metrics holds the Prometheus instrumentation for the bot. Each instance
// carries its own registry so tests never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	signals       *prometheus.CounterVec // bot_signals_total{outcome}
	orders        *prometheus.CounterVec // bot_orders_total{side,result}
	exitReasons   *prometheus.CounterVec // bot_exit_reasons_total{reason}
	openPositions prometheus.Gauge
	relayState    prometheus.Gauge

	logger *zap.Logger
}

// New creates the metric set and registers it on a fresh registry.
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_signals_total",
				Help: "Buy signals seen on the feed, by outcome (copied|duplicate|skipped)",
			},
			[]string{"outcome"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_orders_total",
				Help: "Orders run through the execution pipeline, by side and result",
			},
			[]string{"side", "result"}, // side: buy|sell, result: confirmed|failed
		),
		exitReasons: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_exit_reasons_total",
				Help: "Closed positions split by exit reason",
			},
			[]string{"reason"}, // stop_loss|take_profit|timeout|manual
		),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Positions currently held",
		}),
		relayState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_relay_connected",
			Help: "1 while the signal feed is subscribed, 0 otherwise",
		}),
		logger: logger.Named("metrics"),
	}

	m.registry.MustRegister(m.signals, m.orders, m.exitReasons, m.openPositions, m.relayState)
	return m
}

// Observe wires the metric set to the event bus. The returned subscriptions
// live for the lifetime of the bus, so they are not retained.
func (m *Metrics) Observe(bus *events.Bus) {
	bus.Subscribe(events.RelayConnected, func(context.Context, events.Event) error {
		m.relayState.Set(1)
		return nil
	})
	bus.Subscribe(events.RelayDisconnected, func(context.Context, events.Event) error {
		m.relayState.Set(0)
		return nil
	})
	bus.Subscribe(events.SignalReceived, func(context.Context, events.Event) error {
		m.signals.WithLabelValues("copied").Inc()
		return nil
	})
	bus.Subscribe(events.SignalSkipped, func(_ context.Context, e events.Event) error {
		se, ok := e.(events.SignalEvent)
		if !ok {
			return nil
		}
		outcome := "skipped"
		if se.Reason == "duplicate" {
			outcome = "duplicate"
		}
		m.signals.WithLabelValues(outcome).Inc()
		return nil
	})
	bus.Subscribe(events.PositionOpened, func(context.Context, events.Event) error {
		m.orders.WithLabelValues("buy", "confirmed").Inc()
		m.openPositions.Inc()
		return nil
	})
	bus.Subscribe(events.PositionClosed, func(_ context.Context, e events.Event) error {
		pe, ok := e.(events.PositionEvent)
		if !ok {
			return nil
		}
		m.orders.WithLabelValues("sell", "confirmed").Inc()
		m.openPositions.Dec()
		m.exitReasons.WithLabelValues(reasonLabel(pe.Reason)).Inc()
		return nil
	})
	bus.Subscribe(events.TradeFailed, func(_ context.Context, e events.Event) error {
		te, ok := e.(events.TradeFailedEvent)
		if !ok {
			return nil
		}
		m.orders.WithLabelValues(te.Side, "failed").Inc()
		return nil
	})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	m.logger.Info("Metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// reasonLabel folds the human-readable exit reason into a low-cardinality
// label value.
func reasonLabel(reason string) string {
	switch {
	case strings.HasPrefix(reason, "Stop Loss"):
		return "stop_loss"
	case strings.HasPrefix(reason, "Take Profit"):
		return "take_profit"
	case strings.HasPrefix(reason, "Timeout"):
		return "timeout"
	default:
		return "manual"
	}
}
