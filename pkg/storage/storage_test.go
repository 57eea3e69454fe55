package storage

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"gpx-track-server/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *BadgerStorage {
	t.Helper()
	s, err := NewBadgerStorage(BadgerOptions{
		InMemory:  true,
		BackupDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTrack(i int, name string) *models.Track {
	return &models.Track{
		ID:         fmt.Sprintf("track-%04d", i),
		Name:       name,
		FileName:   fmt.Sprintf("%s.gpx", name),
		Color:      models.DefaultTrackColor,
		Visible:    true,
		DistanceKm: float64(i),
		Bounds: models.Bounds{
			MinLat: float64(i), MaxLat: float64(i) + 1,
			MinLon: float64(-i), MaxLon: float64(-i) + 1,
			Set: true,
		},
		CreatedAt: time.Now(),
	}
}

func TestAddAndGet(t *testing.T) {
	s := newTestStorage(t)

	track := newTrack(1, "Morning Ride")
	require.NoError(t, s.Add(track, []byte("<gpx/>"), nil))
	assert.Equal(t, 1, s.Count())

	got, err := s.Get(track.ID)
	require.NoError(t, err)
	assert.Equal(t, "Morning Ride", got.Name)
	assert.Equal(t, models.DefaultTrackColor, got.Color)
	assert.True(t, got.Visible)

	raw, err := s.GetGPX(track.ID)
	require.NoError(t, err)
	assert.Equal(t, "<gpx/>", string(raw))

	assert.ErrorIs(t, s.Add(track, nil, nil), ErrTrackExists)
	assert.Equal(t, 1, s.Count())
}

func TestGetMissing(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Get("track-missing")
	assert.ErrorIs(t, err, ErrTrackNotFound)

	_, err = s.GetGPX("track-missing")
	assert.ErrorIs(t, err, ErrTrackNotFound)

	assert.ErrorIs(t, s.Remove("track-missing"), ErrTrackNotFound)

	_, err = s.Toggle("track-missing")
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestAddWithVisibilityPolicy(t *testing.T) {
	s := newTestStorage(t)
	firstTen := func(position int) bool { return position <= 10 }

	for i := 1; i <= 12; i++ {
		require.NoError(t, s.Add(newTrack(i, fmt.Sprintf("t%d", i)), nil, firstTen))
	}

	visible := true
	hidden := false
	assert.Equal(t, 10, s.CountWithFilter(&TrackFilter{Visible: &visible}))
	assert.Equal(t, 2, s.CountWithFilter(&TrackFilter{Visible: &hidden}))

	got, err := s.Get("track-0011")
	require.NoError(t, err)
	assert.False(t, got.Visible)
}

func TestConcurrentAddKeepsPolicyExact(t *testing.T) {
	s := newTestStorage(t)
	firstTen := func(position int) bool { return position <= 10 }

	var wg sync.WaitGroup
	for i := 1; i <= 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Add(newTrack(i, "concurrent"), nil, firstTen))
		}(i)
	}
	wg.Wait()

	visible := true
	assert.Equal(t, 30, s.Count())
	assert.Equal(t, 10, s.CountWithFilter(&TrackFilter{Visible: &visible}))
}

func TestRemove(t *testing.T) {
	s := newTestStorage(t)
	track := newTrack(1, "gone")
	require.NoError(t, s.Add(track, []byte("<gpx/>"), nil))

	require.NoError(t, s.Remove(track.ID))
	assert.Equal(t, 0, s.Count())

	_, err := s.Get(track.ID)
	assert.ErrorIs(t, err, ErrTrackNotFound)
	_, err = s.GetGPX(track.ID)
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestToggleAndSetVisible(t *testing.T) {
	s := newTestStorage(t)
	track := newTrack(1, "toggle")
	require.NoError(t, s.Add(track, nil, nil))

	got, err := s.Toggle(track.ID)
	require.NoError(t, err)
	assert.False(t, got.Visible)

	got, err = s.Toggle(track.ID)
	require.NoError(t, err)
	assert.True(t, got.Visible)

	got, err = s.SetVisible(track.ID, false)
	require.NoError(t, err)
	assert.False(t, got.Visible)

	stored, err := s.Get(track.ID)
	require.NoError(t, err)
	assert.False(t, stored.Visible)
}

func TestList(t *testing.T) {
	s := newTestStorage(t)
	names := []string{"Alpine Loop", "city commute", "ALPINE descent", "Beach run", "alpine sprint"}
	for i, name := range names {
		require.NoError(t, s.Add(newTrack(i+1, name), nil, nil))
	}
	_, err := s.SetVisible("track-0003", false)
	require.NoError(t, err)

	t.Run("insertion order", func(t *testing.T) {
		tracks, err := s.List(10, 0, nil)
		require.NoError(t, err)
		require.Len(t, tracks, 5)
		for i, track := range tracks {
			assert.Equal(t, names[i], track.Name)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		tracks, err := s.List(2, 1, nil)
		require.NoError(t, err)
		require.Len(t, tracks, 2)
		assert.Equal(t, "city commute", tracks[0].Name)
		assert.Equal(t, "ALPINE descent", tracks[1].Name)

		tracks, err = s.List(10, 10, nil)
		require.NoError(t, err)
		assert.Empty(t, tracks)
	})

	t.Run("case-insensitive search", func(t *testing.T) {
		filter := &TrackFilter{Search: "alPine"}
		tracks, err := s.List(10, 0, filter)
		require.NoError(t, err)
		require.Len(t, tracks, 3)
		assert.Equal(t, 3, s.CountWithFilter(filter))
	})

	t.Run("empty search matches everything", func(t *testing.T) {
		assert.Equal(t, 5, s.CountWithFilter(&TrackFilter{Search: ""}))
	})

	t.Run("visibility filter", func(t *testing.T) {
		hidden := false
		tracks, err := s.List(10, 0, &TrackFilter{Visible: &hidden, Search: "alpine"})
		require.NoError(t, err)
		require.Len(t, tracks, 1)
		assert.Equal(t, "ALPINE descent", tracks[0].Name)
	})

	t.Run("invalid pagination", func(t *testing.T) {
		_, err := s.List(0, 0, nil)
		assert.ErrorIs(t, err, ErrInvalidPagination)
		_, err = s.List(1, -1, nil)
		assert.ErrorIs(t, err, ErrInvalidPagination)
	})
}

func TestShowAll(t *testing.T) {
	s := newTestStorage(t)
	hideAfterTwo := func(position int) bool { return position <= 2 }
	for i := 1; i <= 4; i++ {
		require.NoError(t, s.Add(newTrack(i, fmt.Sprintf("t%d", i)), nil, hideAfterTwo))
	}

	bounds, n, err := s.ShowAll()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, bounds.Set)
	assert.Equal(t, 1.0, bounds.MinLat)
	assert.Equal(t, 5.0, bounds.MaxLat)
	assert.Equal(t, -4.0, bounds.MinLon)
	assert.Equal(t, 0.0, bounds.MaxLon)

	visible := true
	assert.Equal(t, 4, s.CountWithFilter(&TrackFilter{Visible: &visible}))
}

func TestShowAllSpansChunks(t *testing.T) {
	s := newTestStorage(t)
	total := showAllChunkSize*2 + 7
	for i := 1; i <= total; i++ {
		track := newTrack(i, fmt.Sprintf("t%d", i))
		track.Visible = false
		require.NoError(t, s.Add(track, []byte("<gpx/>"), nil))
	}

	_, n, err := s.ShowAll()
	require.NoError(t, err)
	assert.Equal(t, total, n)

	visible := true
	assert.Equal(t, total, s.CountWithFilter(&TrackFilter{Visible: &visible}))
}

func TestShowAllConcurrentRemove(t *testing.T) {
	const tracks = 1200
	for round := range 5 {
		s := newTestStorage(t)
		for i := 1; i <= tracks; i++ {
			track := newTrack(i, fmt.Sprintf("t%d", i))
			track.Visible = false
			require.NoError(t, s.Add(track, []byte("<gpx/>"), nil))
		}
		victim := newTrack(tracks/2+round, "").ID

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.ShowAll()
			assert.NoError(t, err)
		}()
		time.Sleep(time.Duration(round*3) * time.Millisecond)
		require.NoError(t, s.Remove(victim))
		wg.Wait()

		_, err := s.Get(victim)
		assert.ErrorIs(t, err, ErrTrackNotFound, "round %d", round)
		stored, err := s.countTracksInDB()
		require.NoError(t, err)
		assert.Equal(t, tracks-1, stored)
		assert.Equal(t, tracks-1, s.Count())
	}
}

func TestShowAllEmpty(t *testing.T) {
	s := newTestStorage(t)
	bounds, n, err := s.ShowAll()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, bounds.Set)
}

func TestCreateBackup(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Add(newTrack(1, "backed up"), []byte("<gpx/>"), nil))

	path, err := s.CreateBackup()
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	backups, err := s.ListBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)
	assert.False(t, s.GetLastBackupTime().IsZero())
}

func TestBackupRetention(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBadgerStorage(BadgerOptions{InMemory: true, BackupDir: dir, MaxBackups: 2})
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 4; i++ {
		_, err := s.CreateBackup()
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	backups, err := s.ListBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

func TestRunGC(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.RunGC())

	stats := s.GetGCStats()
	assert.EqualValues(t, 1, stats["total_runs"])
}

func TestHealth(t *testing.T) {
	s := newTestStorage(t)
	assert.Equal(t, HealthStatusHealthy, s.healthMonitor.CheckDatabaseHealth())
	// Background loops are not running yet.
	assert.Equal(t, HealthStatusDegraded, s.GetOverallHealth())

	s.StartGCLoop(time.Hour)
	require.NoError(t, s.StartBackups())
	assert.Equal(t, HealthStatusHealthy, s.GetOverallHealth())
	assert.True(t, s.IsHealthy())

	summary := s.GetHealthStatus()
	assert.Equal(t, "healthy", summary["overall_status"])
}

func TestClose(t *testing.T) {
	s, err := NewBadgerStorage(BadgerOptions{InMemory: true, BackupDir: t.TempDir()})
	require.NoError(t, err)
	s.StartGCLoop(time.Hour)
	s.StartHealthMonitoring()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	_, err = s.Get("track-0001")
	assert.ErrorIs(t, err, ErrStorageNotReady)
	assert.ErrorIs(t, s.Add(newTrack(1, "late"), nil, nil), ErrStorageNotReady)
	assert.Equal(t, HealthStatusUnhealthy, s.GetOverallHealth())
}

func TestHealthStatusString(t *testing.T) {
	assert.Equal(t, "healthy", HealthStatusHealthy.String())
	assert.Equal(t, "degraded", HealthStatusDegraded.String())
	assert.Equal(t, "unhealthy", HealthStatusUnhealthy.String())
	assert.Equal(t, "unknown", HealthStatus(42).String())
}
