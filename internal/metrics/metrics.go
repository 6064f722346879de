// Package metrics serves the Prometheus counters and the plaintext /stat page the
// teacher's run command leaves as a "TODO: metrics server" behind its --metrics-addr
// flag. Grounded on vperson-go-mysql-kafka/sync_manager.Stat, the one example in the pack
// that actually wires promhttp.Handler and a hand-built status page side by side.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	eventsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgsync_documents_indexed_total",
			Help: "Documents upserted or deleted against the search index, by database/index/op.",
		}, []string{"database", "index", "op"},
	)
	bulkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgsync_bulk_failures_total",
			Help: "Bulk action failures, by database/index and whether they were quarantined as fatal.",
		}, []string{"database", "index", "class"},
	)
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgsync_queue_depth",
			Help: "Distinct change events currently queued, by database.",
		}, []string{"database"},
	)
	engineState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgsync_engine_state",
			Help: "Sync Engine state machine position (0=Idle,1=Draining,2=Querying,3=Indexing,4=Checkpointing), by database/index.",
		}, []string{"database", "index"},
	)
	txminCommitted = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgsync_txmin_committed",
			Help: "Last durably persisted checkpoint, by database/index.",
		}, []string{"database", "index"},
	)
)

// RecordIndexed increments the per-op document counter for one Sync.
func RecordIndexed(database, index, op string, n int) {
	eventsIndexed.WithLabelValues(database, index, op).Add(float64(n))
}

// RecordBulkFailure increments the failure counter for one Sync, classified retryable or
// fatal.
func RecordBulkFailure(database, index, class string, n int) {
	bulkFailures.WithLabelValues(database, index, class).Add(float64(n))
}

// SetQueueDepth reports the current capture.Queue length for one database.
func SetQueueDepth(database string, n int) {
	queueDepth.WithLabelValues(database).Set(float64(n))
}

// SetEngineState reports an Engine's state machine position for one Sync.
func SetEngineState(database, index string, state int) {
	engineState.WithLabelValues(database, index).Set(float64(state))
}

// SetTxminCommitted reports an Engine's last persisted checkpoint for one Sync.
func SetTxminCommitted(database, index string, txmin int64) {
	txminCommitted.WithLabelValues(database, index).Set(float64(txmin))
}

// StatusSource answers the /stat page's questions about the syncs currently running in
// this process. Implemented by the engine pool the run command assembles.
type StatusSource interface {
	// Statuses returns one line of free-form status text per running Sync.
	Statuses() []string
}

// Server hosts /metrics (Prometheus exposition) and /stat (a human-readable status page)
// on one address, mirroring the teacher's unwired --metrics-addr flag and the shape of
// vperson-go-mysql-kafka's Stat.Run/ServeHTTP.
type Server struct {
	Addr   string
	Source StatusSource

	listener net.Listener
}

// Run starts the server and blocks until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	var err error
	s.listener, err = net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/stat", s.serveStat)

	srv := &http.Server{
		Addr:         s.Addr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Info().Str("addr", s.Addr).Msg("serving metrics and status")
	err = srv.Serve(s.listener)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) serveStat(w http.ResponseWriter, _ *http.Request) {
	var sb strings.Builder
	if s.Source == nil {
		sb.WriteString("no syncs registered\n")
	} else {
		for _, line := range s.Source.Statuses() {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	_, _ = w.Write([]byte(sb.String()))
}
