package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_ExportRestore(t *testing.T) {
	c, el, clk := newTestController(t, tracksN(3))
	startAt(t, c, el, 2, 180)
	require.NoError(t, c.SetVolume(0.4))
	require.NoError(t, c.ToggleShuffle())
	c.HandleTimeUpdate(el, 61)

	saved := c.Export()
	assert.Equal(t, 2, saved.Index)
	assert.Equal(t, 61.0, saved.PositionSeconds)
	assert.True(t, saved.Shuffle)
	assert.Equal(t, clk.Now(), saved.SavedAt)
	require.Len(t, saved.Queue, 3)

	other, el2, _ := newTestController(t, nil)
	require.NoError(t, other.Restore(saved))

	snap := other.Snapshot()
	assert.Equal(t, "C", snap.CurrentTrack.ID)
	assert.False(t, snap.IsPlaying)
	assert.True(t, snap.Shuffle)
	assert.InDelta(t, 0.4, el2.Volume(), 1e-9)
	assert.Equal(t, "/media/c.mp3", el2.Source())

	other.HandleLoadedMetadata(el2, 180)
	assert.Equal(t, 61.0, el2.Position())
	assert.Equal(t, StateReady, other.Snapshot().State)
	assert.Equal(t, 61.0, other.Snapshot().PositionSeconds)
}

func TestController_RestoreWithBadIndex(t *testing.T) {
	c, _, _ := newTestController(t, nil)
	require.NoError(t, c.Restore(SavedState{Queue: tracksN(2), Index: 9, Volume: 1}))

	snap := c.Snapshot()
	assert.Nil(t, snap.CurrentTrack)
	assert.Equal(t, 2, snap.QueueLength)
}
