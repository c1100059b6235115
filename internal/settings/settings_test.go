package settings

import (
	"path/filepath"
	"testing"

	"muufin/internal/logging"
	"muufin/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	if err := store.MigrateUp(path); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	s, err := NewService(st, logging.NewLogger(nil))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return s, st
}

func TestDefaults(t *testing.T) {
	s, _ := newTestService(t)
	snap := s.Snapshot()

	if snap.PreferLosslessDirectPlay {
		t.Error("Expected lossless preference off by default")
	}
	if !snap.PlaybackReportingEnabled {
		t.Error("Expected reporting on by default")
	}
}

func TestChangesPersistAcrossReload(t *testing.T) {
	s, st := newTestService(t)

	if err := s.SetPreferLosslessDirectPlay(true); err != nil {
		t.Fatalf("SetPreferLosslessDirectPlay failed: %v", err)
	}
	if err := s.SetPlaybackReportingEnabled(false); err != nil {
		t.Fatalf("SetPlaybackReportingEnabled failed: %v", err)
	}

	again, err := NewService(st, logging.NewLogger(nil))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	snap := again.Snapshot()
	if !snap.PreferLosslessDirectPlay {
		t.Error("Expected lossless preference persisted")
	}
	if snap.PlaybackReportingEnabled {
		t.Error("Expected reporting toggle persisted")
	}
}

func TestSubscribersNotifiedOnChange(t *testing.T) {
	s, _ := newTestService(t)

	var got []Snapshot
	s.Subscribe(func(snap Snapshot) { got = append(got, snap) })

	if err := s.SetPlaybackReportingEnabled(false); err != nil {
		t.Fatalf("SetPlaybackReportingEnabled failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(got))
	}
	if got[0].PlaybackReportingEnabled {
		t.Error("Expected notification to carry the new value")
	}
}
