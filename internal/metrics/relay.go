package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shugur-labs/relaycore/internal/logger"
)

// Metrics for tracking per-relay client connection state and traffic.
var (
	// RelayStatus reports the current FSM state (see relay.Status) as a
	// gauge value per relay URL: 0=Initialized, 1=Connecting, 2=Connected,
	// 3=Disconnected, 4=Terminated.
	RelayStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relaycore_relay_status",
		Help: "Current RelayStatus FSM value per relay (0=Initialized..4=Terminated)",
	}, []string{"relay_url"})

	RelayReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycore_relay_reconnects_total",
		Help: "Total number of successful dials per relay, the first connection included",
	}, []string{"relay_url"})

	RelayDialFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycore_relay_dial_failures_total",
		Help: "Total number of failed dial attempts per relay",
	}, []string{"relay_url"})

	MessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycore_relay_messages_sent_total",
		Help: "Total number of client messages written to the relay socket",
	}, []string{"relay_url"})

	MessagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycore_relay_messages_received_total",
		Help: "Total number of relay messages successfully decoded and forwarded to the pool",
	}, []string{"relay_url"})

	DecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycore_relay_decode_errors_total",
		Help: "Total number of inbound frames that failed UTF-8 or message decoding",
	}, []string{"relay_url"})

	DuplicateEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycore_relay_duplicate_events_total",
		Help: "Total number of inbound EVENT ids suppressed by the bloom dedup filter",
	}, []string{"relay_url"})

	PingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycore_relay_pings_total",
		Help: "Total number of ping frames enqueued by the ping task",
	}, []string{"relay_url"})
)

// Serve starts the Prometheus scrape endpoint on addr and blocks until
// ctx is canceled or the server fails. The caller is expected to run
// it in its own goroutine.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		_ = srv.Close()
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
			return err
		}
		return nil
	}
}
