package playback

import (
	"fmt"
	"sync"

	"muufin/internal/jellyfin"
	"muufin/internal/logging"
)

// SessionGate is consulted before playback starts. A non-nil error means
// the runtime cannot host a playback session right now; the condition is
// recorded on the controller status instead of failing the request.
type SessionGate func() error

// Controller owns the player, the active queue, and the per-item fallback
// state machine. All player mutations are serialized through its mutex;
// player events arrive on an internal channel and are handled on a
// dedicated goroutine, never on the player's event goroutine.
type Controller struct {
	mu sync.Mutex

	player   Player
	resolver *Resolver
	log      logging.Logger
	gate     SessionGate

	// descriptors is the side-table keyed by track id for the current
	// queue. Fallback replaces entries with superseding instances.
	descriptors map[string]MediaDescriptor
	queue       []QueueItem

	lastError string
	notice    string

	observers []func(Event)

	events chan Event
	done   chan struct{}
}

// Status is a point-in-time view of the playback session.
type Status struct {
	Playing       bool   `json:"playing"`
	CurrentItemID string `json:"current_item_id,omitempty"`
	CurrentIndex  int    `json:"current_index"`
	PositionMs    int64  `json:"position_ms"`
	QueueLen      int    `json:"queue_len"`
	DeliveryMode  string `json:"delivery_mode,omitempty"`
	HasFallenBack bool   `json:"has_fallen_back"`
	ArtworkURL    string `json:"artwork_url,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	Notice        string `json:"notice,omitempty"`
}

func NewController(player Player, resolver *Resolver, gate SessionGate, log logging.Logger) *Controller {
	c := &Controller{
		player:      player,
		resolver:    resolver,
		log:         log,
		gate:        gate,
		descriptors: make(map[string]MediaDescriptor),
		events:      make(chan Event, 64),
		done:        make(chan struct{}),
	}
	player.AddListener(c.enqueueEvent)
	go c.loop()
	return c
}

func (c *Controller) enqueueEvent(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) loop() {
	for {
		select {
		case ev := <-c.events:
			c.handleEvent(ev)
		case <-c.done:
			return
		}
	}
}

// Observe registers fn for every player event, delivered on the
// controller's event goroutine after fallback handling.
func (c *Controller) Observe(fn func(Event)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// PlayQueue resolves descriptors for tracks, loads them into the player,
// and starts playback. startID wins over startIndex when it matches a
// track; an unknown startID falls back to startIndex; out-of-range indexes
// clamp to 0.
func (c *Controller) PlayQueue(tracks []jellyfin.BaseItem, startID string, startIndex int, preferLosslessDirect bool) error {
	if len(tracks) == 0 {
		return fmt.Errorf("play queue: no tracks")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gate != nil {
		if err := c.gate(); err != nil {
			c.notice = err.Error()
			c.log.Warn("Playback session unavailable, request dropped", "reason", err)
			return nil
		}
	}
	c.notice = ""
	c.lastError = ""

	index := startIndex
	items := make([]QueueItem, 0, len(tracks))
	descriptors := make(map[string]MediaDescriptor, len(tracks))
	for i, track := range tracks {
		if startID != "" && track.ID == startID {
			index = i
		}
		desc := c.resolver.Resolve(track, preferLosslessDirect)
		descriptors[track.ID] = desc
		artist := ""
		if len(track.Artists) > 0 {
			artist = track.Artists[0]
		}
		items = append(items, QueueItem{
			ItemID: track.ID,
			URL:    desc.URL(),
			Title:  track.Name,
			Artist: artist,
			Album:  track.Album,
		})
	}
	if index < 0 || index >= len(items) {
		index = 0
	}

	if err := c.player.SetQueue(items, index); err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	c.queue = items
	c.descriptors = descriptors
	c.player.Play()

	c.log.Info("Queue loaded",
		"tracks", len(items),
		"start_index", index,
		"mode", descriptors[items[index].ItemID].Mode.String())
	return nil
}

func (c *Controller) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.player.Play()
}

func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.player.Pause()
}

// Stop halts playback and clears the queue.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.player.Stop()
	c.queue = nil
	c.descriptors = make(map[string]MediaDescriptor)
}

func (c *Controller) SeekTo(positionMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.player.SeekTo(positionMs)
}

// Descriptor returns the current descriptor for a queued track.
func (c *Controller) Descriptor(itemID string) (MediaDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.descriptors[itemID]
	return d, ok
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Playing:       c.player.Playing(),
		CurrentItemID: c.player.CurrentItemID(),
		CurrentIndex:  c.player.CurrentIndex(),
		PositionMs:    c.player.PositionMs(),
		QueueLen:      len(c.queue),
		LastError:     c.lastError,
		Notice:        c.notice,
	}
	if d, ok := c.descriptors[st.CurrentItemID]; ok {
		st.DeliveryMode = d.Mode.String()
		st.HasFallenBack = d.HasFallenBack
		st.ArtworkURL = d.ArtworkURL
	}
	return st
}

// Close tears down the event loop and releases the player.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
	}
	close(c.done)
	c.player.Release()
}

func (c *Controller) handleEvent(ev Event) {
	switch {
	case ev.Error != nil:
		c.onPlayerError(ev.Error.ItemID, ev.Error.Err)
	case ev.StateChanged != nil && ev.StateChanged.State == StateReady:
		c.onReady()
	}

	c.mu.Lock()
	observers := make([]func(Event), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// onPlayerError runs the fallback transition for the active item, once. A
// failure on an item that already fell back (or started adaptive) is
// terminal.
func (c *Controller) onPlayerError(itemID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if itemID == "" {
		itemID = c.player.CurrentItemID()
	}
	desc, ok := c.descriptors[itemID]
	if !ok || itemID != c.player.CurrentItemID() {
		c.log.Warn("Player error off the active item", "item_id", itemID, "err", err)
		return
	}
	if desc.Mode != ModeDirect || desc.HasFallenBack {
		c.lastError = err.Error()
		c.log.Error("Playback failed with no fallback remaining",
			"item_id", itemID, "mode", desc.Mode.String(), "err", err)
		return
	}
	c.fallBackLocked(itemID, desc, "player error: "+err.Error())
}

// onReady checks the silent-failure symptom: a direct stream that came up
// non-seekable has usually failed server-side without raising an error.
func (c *Controller) onReady() {
	c.mu.Lock()
	defer c.mu.Unlock()

	itemID := c.player.CurrentItemID()
	desc, ok := c.descriptors[itemID]
	if !ok || desc.Mode != ModeDirect || desc.HasFallenBack {
		return
	}
	if c.player.Seekable() {
		return
	}
	c.fallBackLocked(itemID, desc, "direct stream not seekable")
}

func (c *Controller) fallBackLocked(itemID string, desc MediaDescriptor, reason string) {
	position := c.player.PositionMs()
	wasPlaying := c.player.Playing()

	next := desc.WithFallback()
	if position > 0 {
		// The segment feed cannot seek; the offset goes into the
		// playlist URL so the transcode starts at the old position.
		next.AdaptivePlaylistURL = c.resolver.AdaptivePlaylistURLAt(itemID, position)
	}
	c.descriptors[itemID] = next
	replacement := QueueItem{ItemID: itemID, URL: next.URL()}
	for i := range c.queue {
		if c.queue[i].ItemID == itemID {
			c.queue[i].URL = next.URL()
			replacement = c.queue[i]
		}
	}
	if err := c.player.ReplaceCurrent(replacement); err != nil {
		c.lastError = err.Error()
		c.log.Error("Fallback reload failed", "item_id", itemID, "err", err)
		return
	}
	if wasPlaying {
		c.player.Play()
	}

	c.log.Warn("Fell back to adaptive delivery",
		"item_id", itemID, "reason", reason, "position_ms", position)
}
