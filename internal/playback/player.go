package playback

// Player is the media engine abstraction. Implementations decode and render
// audio; this package only drives them. All mutating calls must come from
// one goroutine (the controller's), matching engines that require
// same-thread control.
type Player interface {
	// SetQueue replaces the player's item list and positions it at
	// startIndex without starting playback.
	SetQueue(items []QueueItem, startIndex int) error
	// ReplaceCurrent swaps the media source of the active item in place,
	// keeping the queue position. Used for delivery-mode fallback.
	ReplaceCurrent(item QueueItem) error

	Play()
	Pause()
	Stop()
	SeekTo(positionMs int64)

	PositionMs() int64
	CurrentItemID() string
	CurrentIndex() int
	Seekable() bool
	Playing() bool
	QueueLen() int

	// AddListener registers for lifecycle events. Listeners must not call
	// back into mutating player operations from the event goroutine.
	AddListener(func(Event))

	Release()
}

// QueueItem is one playable entry handed to the engine.
type QueueItem struct {
	ItemID string
	URL    string
	Title  string
	Artist string
	Album  string
}

// PlayerState is the engine's coarse readiness state.
type PlayerState int

const (
	StateIdle PlayerState = iota
	StateBuffering
	StateReady
	StateEnded
)

func (s PlayerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StateReady:
		return "ready"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Event is a discrete player lifecycle message. Exactly one variant is set.
type Event struct {
	// ItemChanged: the active item transitioned. ItemID may be empty when
	// the queue emptied.
	ItemChanged *ItemChangedEvent
	// PlayingChanged: isPlaying flipped.
	PlayingChanged *PlayingChangedEvent
	// StateChanged: readiness state moved.
	StateChanged *StateChangedEvent
	// Error: the engine failed on the active item.
	Error *ErrorEvent
}

type ItemChangedEvent struct {
	ItemID string
	Index  int
}

type PlayingChangedEvent struct {
	Playing bool
}

type StateChangedEvent struct {
	State PlayerState
}

type ErrorEvent struct {
	ItemID string
	Err    error
}
