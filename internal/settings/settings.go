package settings

import (
	"sync"

	"muufin/internal/logging"
	"muufin/internal/store"
)

// Setting keys. Values are persisted in the store's key/value table.
const (
	keyPreferLossless   = "settings.prefer_lossless_direct_play"
	keyReportingEnabled = "settings.enable_playback_reporting"
)

// Snapshot is the current value of every user setting.
type Snapshot struct {
	PreferLosslessDirectPlay bool `json:"prefer_lossless_direct_play"`
	PlaybackReportingEnabled bool `json:"enable_playback_reporting"`
}

// Service holds user settings in memory, persists changes, and notifies
// subscribers. Reads never hit the database after startup.
type Service struct {
	mu    sync.RWMutex
	snap  Snapshot
	store *store.Store
	log   logging.Logger
	subs  []func(Snapshot)
}

func NewService(st *store.Store, log logging.Logger) (*Service, error) {
	s := &Service{store: st, log: log}

	lossless, err := st.GetBool(keyPreferLossless, false)
	if err != nil {
		return nil, err
	}
	reporting, err := st.GetBool(keyReportingEnabled, true)
	if err != nil {
		return nil, err
	}
	s.snap = Snapshot{
		PreferLosslessDirectPlay: lossless,
		PlaybackReportingEnabled: reporting,
	}
	return s, nil
}

// Subscribe registers fn to run after every settings change. Callbacks run
// synchronously on the mutating goroutine; keep them short.
func (s *Service) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) PreferLosslessDirectPlay() bool {
	return s.Snapshot().PreferLosslessDirectPlay
}

func (s *Service) PlaybackReportingEnabled() bool {
	return s.Snapshot().PlaybackReportingEnabled
}

func (s *Service) SetPreferLosslessDirectPlay(v bool) error {
	return s.update(keyPreferLossless, v, func(snap *Snapshot) { snap.PreferLosslessDirectPlay = v })
}

func (s *Service) SetPlaybackReportingEnabled(v bool) error {
	return s.update(keyReportingEnabled, v, func(snap *Snapshot) { snap.PlaybackReportingEnabled = v })
}

func (s *Service) update(key string, v bool, apply func(*Snapshot)) error {
	if err := s.store.SetBool(key, v); err != nil {
		return err
	}

	s.mu.Lock()
	apply(&s.snap)
	snap := s.snap
	subs := make([]func(Snapshot), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	s.log.Info("Setting changed", "key", key, "value", v)
	for _, fn := range subs {
		fn(snap)
	}
	return nil
}
