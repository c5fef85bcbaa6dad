package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/example/van-notify/internal/models"
	"github.com/example/van-notify/internal/observability"
	"github.com/example/van-notify/internal/retry"
)

// Player makes one playback attempt. Each attempt gets a fresh underlying
// instance; a failed attempt is never reused.
type Player interface {
	Play(ctx context.Context) error
}

// Settings persists the global alerts on/off switch. storage.Log satisfies
// the interface.
type Settings interface {
	AlertsEnabled() (bool, error)
	SetAlertsEnabled(enabled bool) error
}

// CommandPlayer shells out to a sound-player command with a pre-loaded
// asset path, e.g. `paplay /usr/share/sounds/alert.oga`. A new exec.Cmd is
// built per attempt and the context bounds how long a stuck player may run.
type CommandPlayer struct {
	Command string
	Args    []string
}

func (p *CommandPlayer) Play(ctx context.Context) error {
	if p.Command == "" {
		return errors.New("no player command configured")
	}
	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	return cmd.Run()
}

// TonePlayer is the lowest-level fallback: the terminal bell. It only fails
// if the sink does.
type TonePlayer struct {
	W io.Writer
}

func (p *TonePlayer) Play(ctx context.Context) error {
	if p.W == nil {
		return errors.New("no tone sink")
	}
	_, err := p.W.Write([]byte{0x07})
	return err
}

// AlertPlayer turns a delivered notification into an audible alert. Audio
// is a courtesy: every failure path ends in silence, never in an error
// surfaced to the publish pipeline.
type AlertPlayer struct {
	Primary  Player
	Fallback Player
	Policy   retry.Policy
	Settings Settings
	Timeout  time.Duration
	Log      *slog.Logger
}

func New(primary, fallback Player, settings Settings, lg *slog.Logger) *AlertPlayer {
	return &AlertPlayer{
		Primary:  primary,
		Fallback: fallback,
		Policy:   retry.Policy{Attempts: 3, Delay: 200 * time.Millisecond},
		Settings: settings,
		Timeout:  3 * time.Second,
		Log:      lg,
	}
}

// OnNotification is wired as a router subscriber.
func (a *AlertPlayer) OnNotification(n models.Notification) {
	a.PlayAlert()
}

func (a *AlertPlayer) PlayAlert() {
	if !a.enabled() {
		return
	}
	err := a.Policy.Do(context.Background(), func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, a.timeout())
		defer cancel()
		return a.Primary.Play(attemptCtx)
	})
	if err == nil {
		observability.AlertsPlayed.Inc()
		return
	}
	a.Log.Debug("primary alert playback failed", "error", err)

	if a.Fallback != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout())
		defer cancel()
		if err := a.Fallback.Play(ctx); err == nil {
			observability.AlertFallbacks.Inc()
			return
		}
	}
	// Fail silently: the notification is already delivered and stored.
	observability.AlertFailures.Inc()
	a.Log.Debug("alert playback unavailable")
}

// SetEnabled flips and persists the global playback switch.
func (a *AlertPlayer) SetEnabled(enabled bool) {
	if a.Settings == nil {
		return
	}
	if err := a.Settings.SetAlertsEnabled(enabled); err != nil {
		a.Log.Warn("alert setting not persisted", "error", err)
	}
}

func (a *AlertPlayer) enabled() bool {
	if a.Settings == nil {
		return true
	}
	enabled, err := a.Settings.AlertsEnabled()
	if err != nil {
		a.Log.Debug("alert setting read failed", "error", err)
		return true
	}
	return enabled
}

func (a *AlertPlayer) timeout() time.Duration {
	if a.Timeout <= 0 {
		return 3 * time.Second
	}
	return a.Timeout
}
