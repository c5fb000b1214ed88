package traffic

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTrackerAccessors tests the read-side track views rule evaluators use.
func TestTrackerAccessors(t *testing.T) {
	t.Parallel()

	det := func(x float64) Detection {
		return Detection{Class: ClassCar, BBox: BBox{X: x, Y: 100, W: 40, H: 30}, Confidence: 0.9}
	}

	t.Run("empty tracker returns empty views", func(t *testing.T) {
		t.Parallel()
		tracker := NewTracker(DefaultTrackerConfig())

		assert.Empty(t, tracker.GetActiveTracks())
		assert.Empty(t, tracker.GetConfirmedTracks())
		assert.Empty(t, tracker.GetAllTracks())
		assert.Zero(t, tracker.GetTrackCount())

		_, ok := tracker.GetTrack("track_1")
		assert.False(t, ok)
	})

	t.Run("tentative tracks are active but not confirmed", func(t *testing.T) {
		t.Parallel()
		tracker := NewTracker(DefaultTrackerConfig())

		tracker.Update(1, []Detection{det(10)})

		active := tracker.GetActiveTracks()
		require.Len(t, active, 1)
		assert.Equal(t, TrackTentative, active[0].State)
		assert.Empty(t, tracker.GetConfirmedTracks())
	})

	t.Run("confirmed view includes only active state", func(t *testing.T) {
		t.Parallel()
		tracker := NewTracker(DefaultTrackerConfig())

		tracker.Update(1, []Detection{det(10)})
		tracker.Update(2, []Detection{det(12)})

		confirmed := tracker.GetConfirmedTracks()
		require.Len(t, confirmed, 1)
		assert.Equal(t, TrackActive, confirmed[0].State)
		assert.Equal(t, int64(1), confirmed[0].FirstFrame)
		assert.Equal(t, int64(2), confirmed[0].LastFrame)
	})

	t.Run("lost tracks stay visible through GetAllTracks", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultTrackerConfig()
		cfg.MaxMisses = 1
		cfg.RetentionFrames = 100
		tracker := NewTracker(cfg)

		tracker.Update(1, []Detection{det(10)})
		tracker.Update(2, nil) // miss, track goes lost

		assert.Empty(t, tracker.GetActiveTracks())
		all := tracker.GetAllTracks()
		require.Len(t, all, 1)
		assert.Equal(t, TrackLost, all[0].State)
		assert.Equal(t, 1, tracker.GetTrackCount())
	})

	t.Run("views preserve creation order", func(t *testing.T) {
		t.Parallel()
		tracker := NewTracker(DefaultTrackerConfig())

		// far enough apart to never associate with each other
		tracker.Update(1, []Detection{det(10)})
		tracker.Update(2, []Detection{det(10), det(800)})
		tracker.Update(3, []Detection{det(10), det(800), det(1600)})

		all := tracker.GetAllTracks()
		require.Len(t, all, 3)
		for i, track := range all {
			assert.Equal(t, fmt.Sprintf("track_%d", i+1), track.ID)
		}
	})

	t.Run("GetTrack fetches by id", func(t *testing.T) {
		t.Parallel()
		tracker := NewTracker(DefaultTrackerConfig())

		tracker.Update(1, []Detection{det(10)})

		track, ok := tracker.GetTrack("track_1")
		require.True(t, ok)
		assert.Equal(t, ClassCar, track.Class)

		_, ok = tracker.GetTrack("track_99")
		assert.False(t, ok)
	})
}
