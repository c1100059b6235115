package playback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"muufin/internal/jellyfin"
	"muufin/internal/logging"
)

// reportSender is the slice of the server client the reporter needs.
type reportSender interface {
	ReportPlaybackStart(ctx context.Context, info jellyfin.PlaybackStartInfo) error
	ReportPlaybackProgress(ctx context.Context, info jellyfin.PlaybackProgressInfo) error
	ReportPlaybackStopped(ctx context.Context, info jellyfin.PlaybackStopInfo) error
}

const progressInterval = 15 * time.Second

// Reporter translates player lifecycle events into start/progress/stop
// telemetry. Sends are fire-and-forget: failures are logged and never
// reach the player.
//
// Session flags enforce start-before-stop ordering per (item, session
// token) pair; wire delivery order is not guaranteed and the server is
// expected to tolerate it.
type Reporter struct {
	mu sync.Mutex

	player   Player
	lookup   func(itemID string) (MediaDescriptor, bool)
	sender   reportSender
	log      logging.Logger
	interval time.Duration

	enabled bool

	currentItemID       string
	playSessionID       string
	started             bool
	stopped             bool
	lastKnownPositionMs int64

	tickerCancel context.CancelFunc

	inflight sync.WaitGroup
}

// NewReporter builds a reporter; feed it player events through HandleEvent.
// lookup resolves an item's current descriptor (for PlayMethod).
func NewReporter(player Player, lookup func(string) (MediaDescriptor, bool), sender reportSender, enabled bool, log logging.Logger) *Reporter {
	return &Reporter{
		player:   player,
		lookup:   lookup,
		sender:   sender,
		log:      log,
		interval: progressInterval,
		enabled:  enabled,
	}
}

// SetProgressInterval overrides the periodic progress cadence. Call before
// playback starts.
func (r *Reporter) SetProgressInterval(d time.Duration) {
	r.mu.Lock()
	if d > 0 {
		r.interval = d
	}
	r.mu.Unlock()
}

// HandleEvent consumes one player event. Safe to call from any single
// goroutine; the controller's Observe callback is the normal feed.
func (r *Reporter) HandleEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case ev.ItemChanged != nil:
		r.onItemChanged(ev.ItemChanged.ItemID)
	case ev.PlayingChanged != nil:
		r.onPlayingChanged(ev.PlayingChanged.Playing)
	case ev.StateChanged != nil && ev.StateChanged.State == StateEnded:
		r.capturePositionLocked()
		r.sendStopLocked(false, "")
		r.stopTickerLocked()
	}
}

// SetEnabled flips the runtime reporting toggle. Disabling mid-session
// synthesizes a stop for the current item; enabling with a track already
// loaded synthesizes a start (playing) or a paused progress report.
func (r *Reporter) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enabled == enabled {
		return
	}
	r.enabled = enabled
	r.log.Info("Playback reporting toggled", "enabled", enabled)

	if !enabled {
		r.capturePositionLocked()
		r.sendStopLocked(false, "")
		r.stopTickerLocked()
		return
	}

	itemID := r.player.CurrentItemID()
	if itemID == "" {
		return
	}
	if r.currentItemID != itemID || r.playSessionID == "" {
		r.resetSessionLocked(itemID)
	}
	if r.player.Playing() {
		r.sendStartLocked()
		r.startTickerLocked()
	} else {
		r.sendProgressLocked(true)
	}
}

// Shutdown sends a best-effort stop for any active session and waits for
// in-flight sends. Used on sign-out and process exit.
func (r *Reporter) Shutdown() {
	r.mu.Lock()
	r.sendStopLocked(false, "")
	r.stopTickerLocked()
	r.mu.Unlock()
	r.inflight.Wait()
}

// Flush blocks until all dispatched sends have completed.
func (r *Reporter) Flush() {
	r.inflight.Wait()
}

func (r *Reporter) onItemChanged(itemID string) {
	// Stop for the old item first, using its last known position rather
	// than the player's, which already reflects the new item. A transition
	// stop advertises that more audio follows in this session.
	r.sendStopLocked(false, "Audio")
	r.stopTickerLocked()

	if itemID == "" {
		r.clearSessionLocked()
		return
	}
	r.resetSessionLocked(itemID)
	if r.player.Playing() {
		r.sendStartLocked()
		r.startTickerLocked()
	}
}

func (r *Reporter) onPlayingChanged(playing bool) {
	itemID := r.player.CurrentItemID()
	if itemID == "" {
		return
	}
	if r.currentItemID != itemID {
		r.resetSessionLocked(itemID)
	}

	if playing {
		if !r.started {
			r.sendStartLocked()
		} else {
			r.sendProgressLocked(false)
		}
		r.startTickerLocked()
	} else {
		r.lastKnownPositionMs = r.player.PositionMs()
		r.sendProgressLocked(true)
		r.stopTickerLocked()
	}
}

// resetSessionLocked arms a fresh session for itemID with a new token.
func (r *Reporter) resetSessionLocked(itemID string) {
	r.currentItemID = itemID
	r.playSessionID = uuid.NewString()
	r.started = false
	r.stopped = false
	r.lastKnownPositionMs = 0
}

// capturePositionLocked refreshes the stop position, but only while the
// player is still on the session's item. On an item transition the player
// already reports the next item's position, which must not leak into the
// old item's stop report.
func (r *Reporter) capturePositionLocked() {
	if r.currentItemID != "" && r.player.CurrentItemID() == r.currentItemID {
		if pos := r.player.PositionMs(); pos > 0 {
			r.lastKnownPositionMs = pos
		}
	}
}

func (r *Reporter) clearSessionLocked() {
	r.currentItemID = ""
	r.playSessionID = ""
	r.started = false
	r.stopped = false
	r.lastKnownPositionMs = 0
}

func (r *Reporter) playMethodLocked(itemID string) string {
	if d, ok := r.lookup(itemID); ok {
		return d.Mode.PlayMethod()
	}
	return "DirectPlay"
}

func (r *Reporter) sendStartLocked() {
	if !r.enabled || r.started || r.currentItemID == "" {
		return
	}
	r.started = true
	r.stopped = false
	r.lastKnownPositionMs = r.player.PositionMs()

	info := jellyfin.PlaybackStartInfo{
		ItemID:        r.currentItemID,
		CanSeek:       r.player.Seekable(),
		IsPaused:      !r.player.Playing(),
		PositionTicks: jellyfin.MsToTicks(r.lastKnownPositionMs),
		PlayMethod:    r.playMethodLocked(r.currentItemID),
		PlaySessionID: r.playSessionID,
	}
	r.dispatch("start", info.ItemID, func(ctx context.Context) error {
		return r.sender.ReportPlaybackStart(ctx, info)
	})

	// The server expects an immediate progress sample after the start.
	r.sendProgressLocked(false)
}

func (r *Reporter) sendProgressLocked(paused bool) {
	if !r.enabled || r.currentItemID == "" {
		return
	}
	pos := r.player.PositionMs()
	if pos > 0 {
		r.lastKnownPositionMs = pos
	}

	info := jellyfin.PlaybackProgressInfo{
		ItemID:        r.currentItemID,
		CanSeek:       r.player.Seekable(),
		IsPaused:      paused,
		PositionTicks: jellyfin.MsToTicks(r.lastKnownPositionMs),
		PlayMethod:    r.playMethodLocked(r.currentItemID),
		PlaySessionID: r.playSessionID,
	}
	r.dispatch("progress", info.ItemID, func(ctx context.Context) error {
		return r.sender.ReportPlaybackProgress(ctx, info)
	})
}

// sendStopLocked fires at most once between a start and the next start.
// nextMediaType is "Audio" on item-transition stops and empty otherwise.
func (r *Reporter) sendStopLocked(failed bool, nextMediaType string) {
	if !r.started || r.stopped || r.currentItemID == "" {
		return
	}
	r.stopped = true
	r.started = false

	info := jellyfin.PlaybackStopInfo{
		ItemID:        r.currentItemID,
		PositionTicks: jellyfin.MsToTicks(r.lastKnownPositionMs),
		Failed:        failed,
		PlaySessionID: r.playSessionID,
	}
	if nextMediaType != "" {
		info.NextMediaType = &nextMediaType
	}
	r.playSessionID = ""
	r.dispatch("stop", info.ItemID, func(ctx context.Context) error {
		return r.sender.ReportPlaybackStopped(ctx, info)
	})
}

func (r *Reporter) startTickerLocked() {
	if !r.enabled {
		return
	}
	r.stopTickerLocked()
	ctx, cancel := context.WithCancel(context.Background())
	r.tickerCancel = cancel

	interval := r.interval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.mu.Lock()
				if r.player.Playing() {
					r.sendProgressLocked(false)
				}
				r.mu.Unlock()
			}
		}
	}()
}

func (r *Reporter) stopTickerLocked() {
	if r.tickerCancel != nil {
		r.tickerCancel()
		r.tickerCancel = nil
	}
}

// dispatch runs a send on a worker goroutine. Failures are logged only.
func (r *Reporter) dispatch(kind, itemID string, send func(context.Context) error) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := send(ctx); err != nil {
			r.log.Warn("Playback report failed", "kind", kind, "item_id", itemID, "err", err)
		}
	}()
}
