package player

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"

	"muufin/internal/httpx"
	"muufin/internal/logging"
	"muufin/internal/playback"
)

const speakerBuffer = 200 * time.Millisecond

// Engine is a speaker-backed implementation of the playback engine
// abstraction. Direct streams are fetched fully and decoded in memory,
// which makes them seekable; adaptive playlists are decoded as a running
// concatenation of mp3 segments and are not seekable.
type Engine struct {
	// Lock order is mu first, the speaker lock second. Nothing may run
	// under the speaker lock and then take mu; see completionCallback.
	mu sync.Mutex

	http *httpx.Factory
	log  logging.Logger

	items []playback.QueueItem
	index int

	listeners []func(playback.Event)

	// generation invalidates async loads and completion callbacks from a
	// superseded item.
	generation int

	ctrl       *beep.Ctrl
	streamer   beep.Streamer
	closer     io.Closer
	format     beep.Format
	sampleBase int // samples consumed before the last seek reset
	counter    *countingStreamer
	seekable   bool
	playing    bool
	loaded     bool
	loading    bool

	// Intent recorded while a load is in flight, applied when it lands.
	pendingSeekMs int64
	pendingPlay   bool

	speakerRate beep.SampleRate
	speakerOn   bool
	released    bool
}

func NewEngine(factory *httpx.Factory, log logging.Logger) *Engine {
	return &Engine{http: factory, log: log, index: -1}
}

func (e *Engine) AddListener(fn func(playback.Event)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

func (e *Engine) emit(ev playback.Event) {
	e.mu.Lock()
	listeners := make([]func(playback.Event), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (e *Engine) SetQueue(items []playback.QueueItem, startIndex int) error {
	if startIndex < 0 || startIndex >= len(items) {
		return fmt.Errorf("start index %d out of range", startIndex)
	}
	e.mu.Lock()
	e.generation++
	e.unloadLocked()
	e.items = items
	e.index = startIndex
	e.mu.Unlock()
	return nil
}

func (e *Engine) ReplaceCurrent(item playback.QueueItem) error {
	e.mu.Lock()
	if e.index < 0 || e.index >= len(e.items) {
		e.mu.Unlock()
		return errors.New("no active item")
	}
	e.generation++
	e.unloadLocked()
	e.items[e.index] = item
	e.mu.Unlock()
	e.loadCurrent(false)
	return nil
}

func (e *Engine) Play() {
	e.mu.Lock()
	if e.index < 0 || e.index >= len(e.items) {
		e.mu.Unlock()
		return
	}
	if e.loading {
		e.pendingPlay = true
		e.mu.Unlock()
		return
	}
	if !e.loaded {
		e.mu.Unlock()
		e.loadCurrent(true)
		return
	}
	if e.playing {
		e.mu.Unlock()
		return
	}
	e.playing = true
	ctrl := e.ctrl
	e.mu.Unlock()

	speaker.Lock()
	ctrl.Paused = false
	speaker.Unlock()
	e.emit(playback.Event{PlayingChanged: &playback.PlayingChangedEvent{Playing: true}})
}

func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.loaded || !e.playing {
		e.mu.Unlock()
		return
	}
	e.playing = false
	ctrl := e.ctrl
	e.mu.Unlock()

	speaker.Lock()
	ctrl.Paused = true
	speaker.Unlock()
	e.emit(playback.Event{PlayingChanged: &playback.PlayingChangedEvent{Playing: false}})
}

func (e *Engine) Stop() {
	e.mu.Lock()
	e.generation++
	wasPlaying := e.playing
	e.unloadLocked()
	e.items = nil
	e.index = -1
	e.mu.Unlock()

	if wasPlaying {
		e.emit(playback.Event{PlayingChanged: &playback.PlayingChangedEvent{Playing: false}})
	}
	e.emit(playback.Event{ItemChanged: &playback.ItemChangedEvent{ItemID: "", Index: -1}})
}

func (e *Engine) SeekTo(positionMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loading {
		e.pendingSeekMs = positionMs
		return
	}
	if !e.loaded || !e.seekable {
		return
	}
	seeker, ok := e.streamer.(beep.StreamSeeker)
	if !ok {
		return
	}
	n := e.format.SampleRate.N(time.Duration(positionMs) * time.Millisecond)
	speaker.Lock()
	if err := seeker.Seek(n); err == nil {
		e.sampleBase = n
		e.counter.reset()
	}
	speaker.Unlock()
}

func (e *Engine) PositionMs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return 0
	}
	samples := e.sampleBase + e.counter.samples()
	return int64(e.format.SampleRate.D(samples) / time.Millisecond)
}

func (e *Engine) CurrentItemID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index < 0 || e.index >= len(e.items) {
		return ""
	}
	return e.items[e.index].ItemID
}

func (e *Engine) CurrentIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index
}

func (e *Engine) Seekable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded && e.seekable
}

func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

func (e *Engine) Release() {
	e.mu.Lock()
	e.generation++
	e.unloadLocked()
	e.items = nil
	e.index = -1
	e.released = true
	speakerOn := e.speakerOn
	e.mu.Unlock()
	if speakerOn {
		speaker.Close()
	}
}

// unloadLocked clears the speaker and drops the active streamer.
func (e *Engine) unloadLocked() {
	if e.speakerOn {
		speaker.Clear()
	}
	if e.closer != nil {
		_ = e.closer.Close()
		e.closer = nil
	}
	e.streamer = nil
	e.ctrl = nil
	e.counter = nil
	e.sampleBase = 0
	e.loaded = false
	e.loading = false
	e.playing = false
	e.seekable = false
	e.pendingSeekMs = 0
	e.pendingPlay = false
}

// loadCurrent fetches and decodes the active item on a worker goroutine,
// then starts playback when play is set. A generation bump while loading
// abandons the result.
func (e *Engine) loadCurrent(play bool) {
	e.mu.Lock()
	if e.index < 0 || e.index >= len(e.items) {
		e.mu.Unlock()
		return
	}
	item := e.items[e.index]
	index := e.index
	gen := e.generation
	e.loading = true
	e.mu.Unlock()

	e.emit(playback.Event{ItemChanged: &playback.ItemChangedEvent{ItemID: item.ItemID, Index: index}})
	e.emit(playback.Event{StateChanged: &playback.StateChangedEvent{State: playback.StateBuffering}})

	go func() {
		streamer, format, closer, seekable, err := e.open(item.URL)
		if err != nil {
			e.mu.Lock()
			if gen == e.generation {
				e.loading = false
			}
			e.mu.Unlock()
			e.log.Warn("Media open failed", "item_id", item.ItemID, "err", err)
			e.emit(playback.Event{Error: &playback.ErrorEvent{ItemID: item.ItemID, Err: err}})
			return
		}

		e.mu.Lock()
		if gen != e.generation || e.released {
			e.mu.Unlock()
			if closer != nil {
				_ = closer.Close()
			}
			return
		}

		if err := e.ensureSpeakerLocked(format.SampleRate); err != nil {
			e.loading = false
			e.mu.Unlock()
			e.emit(playback.Event{Error: &playback.ErrorEvent{ItemID: item.ItemID, Err: err}})
			return
		}

		counter := &countingStreamer{inner: streamer}
		var out beep.Streamer = counter
		if format.SampleRate != e.speakerRate {
			out = beep.Resample(4, format.SampleRate, e.speakerRate, counter)
		}
		startPlaying := play || e.pendingPlay
		ctrl := &beep.Ctrl{Streamer: out, Paused: !startPlaying}

		e.streamer = streamer
		e.closer = closer
		e.format = format
		e.counter = counter
		e.sampleBase = 0
		e.ctrl = ctrl
		e.seekable = seekable
		e.loaded = true
		e.loading = false
		e.playing = startPlaying

		if e.pendingSeekMs > 0 && seekable {
			if seeker, ok := streamer.(beep.StreamSeeker); ok {
				n := format.SampleRate.N(time.Duration(e.pendingSeekMs) * time.Millisecond)
				if err := seeker.Seek(n); err == nil {
					e.sampleBase = n
				}
			}
		}
		e.pendingSeekMs = 0
		e.pendingPlay = false
		e.mu.Unlock()

		speaker.Play(beep.Seq(ctrl, beep.Callback(e.completionCallback(gen))))

		e.emit(playback.Event{StateChanged: &playback.StateChangedEvent{State: playback.StateReady}})
		if startPlaying {
			e.emit(playback.Event{PlayingChanged: &playback.PlayingChangedEvent{Playing: true}})
		}
	}()
}

func (e *Engine) ensureSpeakerLocked(rate beep.SampleRate) error {
	if e.speakerOn {
		return nil
	}
	if err := speaker.Init(rate, rate.N(speakerBuffer)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	e.speakerRate = rate
	e.speakerOn = true
	return nil
}

// completionCallback wraps onFinished for the speaker. The speaker fires
// the callback from its render loop with the speaker lock held, and
// onFinished needs the engine mutex and speaker.Clear, so the work must
// move to a fresh goroutine or the render loop stalls on its own lock.
func (e *Engine) completionCallback(gen int) func() {
	return func() { go e.onFinished(gen) }
}

// onFinished runs after the active streamer drains. It advances to the
// next queue item or ends the session.
func (e *Engine) onFinished(gen int) {
	e.mu.Lock()
	if gen != e.generation || e.released {
		e.mu.Unlock()
		return
	}
	e.generation++
	e.unloadLocked()

	if e.index+1 < len(e.items) {
		e.index++
		e.mu.Unlock()
		e.loadCurrent(true)
		return
	}
	e.index = -1
	e.items = nil
	e.mu.Unlock()

	e.emit(playback.Event{StateChanged: &playback.StateChangedEvent{State: playback.StateEnded}})
	e.emit(playback.Event{PlayingChanged: &playback.PlayingChangedEvent{Playing: false}})
}

// open fetches the media URL and returns a decoded streamer. Playlist URLs
// are expanded into a sequential segment feed.
func (e *Engine) open(mediaURL string) (beep.Streamer, beep.Format, io.Closer, bool, error) {
	if isPlaylistURL(mediaURL) {
		return e.openAdaptive(mediaURL)
	}
	return e.openDirect(mediaURL)
}

func (e *Engine) openDirect(mediaURL string) (beep.Streamer, beep.Format, io.Closer, bool, error) {
	resp, err := e.http.StreamingClient().Get(mediaURL)
	if err != nil {
		return nil, beep.Format{}, nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, beep.Format{}, nil, false, fmt.Errorf("stream fetch: http %d", resp.StatusCode)
	}

	// Buffer the whole file so the decoder can seek. Music tracks are
	// small enough that this beats spooling to disk.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, beep.Format{}, nil, false, fmt.Errorf("stream fetch: %w", err)
	}

	rc := &readSeekCloser{Reader: bytes.NewReader(data)}
	streamer, format, err := decodeByContent(rc, resp.Header.Get("Content-Type"), mediaURL)
	if err != nil {
		return nil, beep.Format{}, nil, false, err
	}
	return streamer, format, streamer, true, nil
}

// openAdaptive downloads the playlist manifest and decodes its mp3
// segments as one continuous stream.
func (e *Engine) openAdaptive(playlistURL string) (beep.Streamer, beep.Format, io.Closer, bool, error) {
	segments, err := e.fetchPlaylist(playlistURL)
	if err != nil {
		return nil, beep.Format{}, nil, false, err
	}
	if len(segments) == 0 {
		return nil, beep.Format{}, nil, false, errors.New("playlist has no segments")
	}

	feed := newSegmentFeed(e.http, segments)
	streamer, format, err := mp3.Decode(feed)
	if err != nil {
		feed.Close()
		return nil, beep.Format{}, nil, false, fmt.Errorf("decode segment stream: %w", err)
	}
	return streamer, format, feed, false, nil
}

func (e *Engine) fetchPlaylist(playlistURL string) ([]string, error) {
	resp, err := e.http.StreamingClient().Get(playlistURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("playlist fetch: http %d", resp.StatusCode)
	}

	base, err := url.Parse(playlistURL)
	if err != nil {
		return nil, err
	}

	var segments []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ref, err := url.Parse(line)
		if err != nil {
			continue
		}
		segments = append(segments, base.ResolveReference(ref).String())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}
	return segments, nil
}

func isPlaylistURL(mediaURL string) bool {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Path, ".m3u8")
}

func decodeByContent(rc io.ReadCloser, contentType, mediaURL string) (beep.StreamSeekCloser, beep.Format, error) {
	switch {
	case strings.Contains(contentType, "flac") || strings.Contains(mediaURL, ".flac"):
		return flac.Decode(rc)
	case strings.Contains(contentType, "ogg") || strings.Contains(contentType, "vorbis") || strings.Contains(mediaURL, ".ogg"):
		return vorbis.Decode(rc)
	case strings.Contains(contentType, "wav") || strings.Contains(mediaURL, ".wav"):
		return wav.Decode(rc)
	default:
		return mp3.Decode(rc)
	}
}

// countingStreamer tracks samples streamed for position reporting.
type countingStreamer struct {
	inner beep.Streamer

	mu sync.Mutex
	n  int
}

func (c *countingStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := c.inner.Stream(samples)
	c.mu.Lock()
	c.n += n
	c.mu.Unlock()
	return n, ok
}

func (c *countingStreamer) Err() error { return c.inner.Err() }

func (c *countingStreamer) samples() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *countingStreamer) reset() {
	c.mu.Lock()
	c.n = 0
	c.mu.Unlock()
}

// readSeekCloser adapts a bytes.Reader to the decoders' io.ReadCloser
// input while keeping io.Seeker for in-memory seeking.
type readSeekCloser struct {
	*bytes.Reader
}

func (*readSeekCloser) Close() error { return nil }

// segmentFeed reads transcoded segments one after another on demand.
type segmentFeed struct {
	http     *httpx.Factory
	segments []string

	mu      sync.Mutex
	current io.ReadCloser
	next    int
	closed  bool
}

func newSegmentFeed(factory *httpx.Factory, segments []string) *segmentFeed {
	return &segmentFeed{http: factory, segments: segments}
}

func (f *segmentFeed) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.closed {
			return 0, io.EOF
		}
		if f.current == nil {
			if f.next >= len(f.segments) {
				return 0, io.EOF
			}
			resp, err := f.http.StreamingClient().Get(f.segments[f.next])
			if err != nil {
				return 0, err
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return 0, fmt.Errorf("segment fetch: http %d", resp.StatusCode)
			}
			f.next++
			f.current = resp.Body
		}

		n, err := f.current.Read(p)
		if err == io.EOF {
			f.current.Close()
			f.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (f *segmentFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.current != nil {
		err := f.current.Close()
		f.current = nil
		return err
	}
	return nil
}
