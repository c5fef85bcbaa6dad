package httpapi

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/van-notify/internal/alert"
	"github.com/example/van-notify/internal/config"
	"github.com/example/van-notify/internal/dedup"
	"github.com/example/van-notify/internal/eventbus"
	"github.com/example/van-notify/internal/geocode"
	"github.com/example/van-notify/internal/poller"
	"github.com/example/van-notify/internal/router"
	"github.com/example/van-notify/internal/storage"
	"github.com/example/van-notify/internal/trip"
)

// Server wires the notification engine behind the HTTP/WS surface.
type Server struct {
	cfg    config.ServerConfig
	logger *slog.Logger

	backend storage.Log
	store   *storage.NotificationStore
	router  *router.Router
	machine *trip.Machine
	roster  *trip.MemoryRoster
	alerts  *alert.AlertPlayer
	poller  *poller.Poller
	redis   *router.RedisTransport
	bus     eventbus.Bus

	mux *mux.Router
}

// NewServer assembles the engine from a loaded config. Optional backends
// degrade to in-process equivalents when unconfigured, so a single binary
// still works on a laptop with nothing else running.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	var backend storage.Log
	if cfg.PGDSN != "" {
		if pg, err := storage.NewPostgresLog(cfg.PGDSN); err == nil {
			backend = pg
		} else {
			logger.Warn("postgres unavailable, using in-memory log", "error", err)
		}
	}
	if backend == nil {
		backend = storage.NewMemoryLog()
	}

	store := storage.NewNotificationStore(backend, dedup.New(cfg.DedupWindow), cfg.HistoryLimit, logger)

	bus := eventbus.New()
	var transports []router.Transport
	var rt *router.RedisTransport
	if cfg.RedisAddr != "" {
		rt = router.NewRedisTransport(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisChannel)
		transports = append(transports, rt)
	}
	if len(cfg.KafkaBrokers) > 0 {
		transports = append(transports, router.NewChangelogTransport(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	rtr := router.New(store, logger, transports...)
	rtr.OnDelivered(router.NewBusEmitter(bus).Emit)

	roster := trip.NewMemoryRoster()
	var geo trip.Geocoder
	if cfg.GeocodeEndpoint != "" {
		geo = geocode.NewCached(geocode.NewHTTPClient(cfg.GeocodeEndpoint), 24*time.Hour)
	}
	notifier := &trip.Notifier{
		Roster:  roster,
		Routes:  roster,
		Geo:     geo,
		Publish: rtr.Publish,
		Log:     logger,
	}
	machine := trip.NewMachine(notifier.HandleEvent, cfg.TripRetention, logger)

	var primary alert.Player
	if cfg.AlertSoundCmd != "" {
		primary = &alert.CommandPlayer{Command: cfg.AlertSoundCmd}
	} else {
		primary = &alert.TonePlayer{W: os.Stderr}
	}
	alerts := alert.New(primary, &alert.TonePlayer{W: os.Stderr}, backend, logger)

	p := poller.New(backend, rtr.Reconcile, rtr.Recipients, cfg.PollInterval, logger)

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		store:   store,
		router:  rtr,
		machine: machine,
		roster:  roster,
		alerts:  alerts,
		poller:  p,
		redis:   rt,
		bus:     bus,
		mux:     mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

// Start runs the background convergence loops until ctx is done: the
// reconciliation poller and, when configured, the cross-process broadcast
// listener.
func (s *Server) Start(ctx context.Context) {
	go s.poller.Run(ctx)
	if s.redis != nil {
		go s.redis.Listen(ctx, s.router.Deliver, s.logger)
	}
	// The alert player listens on the generic event path, not the direct
	// subscriber callbacks, so either surviving channel rings the bell.
	events, unsub := s.bus.Subscribe(16)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				s.alerts.OnNotification(e.Notification)
			}
		}
	}()
	go func() {
		<-ctx.Done()
		s.poller.Stop()
	}()
}

// Router exposes subscribe for embedding callers (tests, desktop shells)
// that bypass the websocket surface.
func (s *Server) Router() *router.Router { return s.router }
