package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/van-notify/internal/dedup"
	"github.com/example/van-notify/internal/models"
	"github.com/example/van-notify/internal/retry"
	"github.com/example/van-notify/internal/storage"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_consumed_total",
		Help: "Total changelog messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	logWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_log_writes_total",
		Help: "Total successful persisted-log updates",
	})
	logErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_log_errors_total",
		Help: "Total persisted-log errors",
	})
	logDuplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_duplicates_total",
		Help: "Changelog entries already present in the persisted log",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, logWrites, logErrors, logDuplicates)
}

func main() {
	// allow some flags for local runs
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	if brokersEnv == "" {
		brokersEnv = os.Getenv("KAFKA_BROKER")
	}
	brokers := []string{}
	if brokersEnv != "" {
		for _, b := range strings.Split(brokersEnv, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	} else {
		brokers = []string{"localhost:9092"}
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "notification-changelog"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "van-notify-relay"
	}

	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		log.Fatal("PG_DSN is required: the relay exists to feed the shared persisted log")
	}
	backend, err := storage.NewPostgresLog(dsn)
	if err != nil {
		log.Fatalf("postgres open error: %v", err)
	}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() { _ = r.Close() }()

	log.Printf("relay listening topic=%s brokers=%v group=%s", topic, brokers, group)

	applier := &logApplier{log: backend, dedup: dedup.New(0), limit: storage.DefaultHistoryLimit}
	policy := retry.Policy{Attempts: 3, Delay: 200 * time.Millisecond}

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down relay")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		var n models.Notification
		if err := json.Unmarshal(m.Value, &n); err != nil {
			msgsInvalid.Inc()
			log.Printf("invalid message: %v", err)
			continue
		}
		if n.RecipientID == "" || n.ID == "" {
			msgsInvalid.Inc()
			continue
		}

		if err := policy.Do(ctx, func(ctx context.Context) error { return applier.Apply(n) }); err != nil {
			logErrors.Inc()
			log.Printf("log update failed for notification=%s: %v", n.ID, err)
			continue
		}
	}
}

// LogApplier merges one changelog entry into a recipient's persisted log.
// Split behind an interface-sized struct so tests can run it against the
// in-memory backend.
type logApplier struct {
	log   storage.Log
	dedup *dedup.Deduplicator
	limit int
}

// Apply follows the shared-log discipline: read the full log, merge, write
// it back. Entries already present count as success.
func (a *logApplier) Apply(n models.Notification) error {
	entries, err := a.log.ReadLog(n.RecipientID)
	if err != nil {
		return err
	}
	if a.dedup.IsDuplicate(n, entries) {
		logDuplicates.Inc()
		return nil
	}
	entries = append([]models.Notification{n}, entries...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	if len(entries) > a.limit {
		entries = entries[:a.limit]
	}
	if err := a.log.WriteLog(n.RecipientID, entries); err != nil {
		return err
	}
	logWrites.Inc()
	return nil
}
