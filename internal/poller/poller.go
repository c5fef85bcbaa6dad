package poller

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/example/van-notify/internal/models"
	"github.com/example/van-notify/internal/observability"
	"github.com/example/van-notify/internal/storage"
)

// DefaultInterval balances convergence latency against log read load.
const DefaultInterval = 1500 * time.Millisecond

// Poller periodically re-reads the persisted log for every recipient with a
// live subscriber and re-delivers entries newer than that recipient's
// watermark. The direct broadcast channels are best-effort; this loop is
// what guarantees eventual convergence for processes that were asleep, just
// opened, or dropped a message.
type Poller struct {
	log        storage.Log
	deliver    func(models.Notification) bool
	recipients func() []string
	interval   time.Duration
	lg         *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}

	// Watermarks are process-local on purpose: another process having
	// delivered an entry says nothing about what this process's
	// subscribers have seen. A fresh process therefore back-fills its
	// subscribers from the bounded log. Advances are still written
	// through the Log as the externally visible "last seen" state.
	mu         sync.Mutex
	watermarks map[string]time.Time
}

func New(log storage.Log, deliver func(models.Notification) bool, recipients func() []string, interval time.Duration, lg *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		log:        log,
		deliver:    deliver,
		recipients: recipients,
		interval:   interval,
		lg:         lg,
		stopCh:     make(chan struct{}),
		watermarks: make(map[string]time.Time),
	}
}

// Run blocks until ctx is done or Stop is called.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.ScanOnce()
		}
	}
}

// Stop is idempotent and safe from any goroutine, including a subscriber
// callback running inside a scan.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// ScanOnce reconciles every active recipient against the persisted log.
func (p *Poller) ScanOnce() {
	for _, id := range p.recipients() {
		p.scanRecipient(id)
	}
}

func (p *Poller) scanRecipient(recipientID string) {
	entries, err := p.log.ReadLog(recipientID)
	if err != nil {
		// Temporarily unreadable or malformed log means "no new
		// notifications", never a crash.
		p.lg.Debug("poller log read failed", "recipient", recipientID, "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	p.mu.Lock()
	wm := p.watermarks[recipientID]
	p.mu.Unlock()

	fresh := entries[:0:0]
	for _, n := range entries {
		if n.Timestamp.After(wm) {
			fresh = append(fresh, n)
		}
	}
	if len(fresh) == 0 {
		return
	}
	// Re-deliver oldest first so subscribers observe log order.
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Timestamp.Before(fresh[j].Timestamp) })

	newest := wm
	for _, n := range fresh {
		if p.deliver(n) {
			observability.PollerReconciled.Inc()
		}
		if n.Timestamp.After(newest) {
			newest = n.Timestamp
		}
	}
	if newest.After(wm) {
		p.mu.Lock()
		p.watermarks[recipientID] = newest
		p.mu.Unlock()
		if err := p.log.SetWatermark(recipientID, newest); err != nil {
			p.lg.Debug("poller watermark write failed", "recipient", recipientID, "error", err)
		}
	}
}
