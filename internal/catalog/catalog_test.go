package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteStation_RemovesAndClearsCurrent(t *testing.T) {
	c := New(10)
	s := &Station{ID: "s1", Name: "Test"}
	c.CreateStation(s)
	c.SetPlaylist([]*Song{{TrackToken: "t1", StationID: "s1"}})

	ok := c.DeleteStation("s1")
	require.True(t, ok)

	_, found := c.FindStation("s1")
	assert.False(t, found)

	// Simulates the caller's cancellation of playback on current-station delete.
	c.ClearPlaylist()
	assert.Empty(t, c.Playlist())
}

func TestRateSong_UpdatesRating(t *testing.T) {
	c := New(10)
	c.SetPlaylist([]*Song{{TrackToken: "t1"}})
	c.UpdateRating("t1", RatingBan)

	song, ok := c.CurrentSong()
	require.True(t, ok)
	assert.Equal(t, RatingBan, song.Rating)
}

func TestHistory_BoundedFIFO_MostRecentFirst(t *testing.T) {
	c := New(2)
	for _, token := range []string{"a", "b", "c"} {
		c.SetPlaylist([]*Song{{TrackToken: token}})
		c.AdvancePastCurrent()
	}
	h := c.History()
	require.Len(t, h, 2)
	assert.Equal(t, "c", h[0].TrackToken)
	assert.Equal(t, "b", h[1].TrackToken)
}

func TestAdvancePastCurrent_RateOnBanSkipsWithoutNewPlaylist(t *testing.T) {
	// spec.md §8 scenario 2.
	c := New(10)
	a := &Song{TrackToken: "A"}
	b := &Song{TrackToken: "B"}
	cSong := &Song{TrackToken: "C"}
	d := &Song{TrackToken: "D"}
	c.SetPlaylist([]*Song{a, b, cSong, d})

	c.UpdateRating("A", RatingBan)
	detached, ok := c.AdvancePastCurrent()
	require.True(t, ok)
	assert.Equal(t, "A", detached.TrackToken)

	head, ok := c.CurrentSong()
	require.True(t, ok)
	assert.Equal(t, "B", head.TrackToken)
}

func TestSetQuickMix_RoundTrip(t *testing.T) {
	// Flipping s2's UseQuickMix back and forth (three flips, ending on)
	// leaves only its final value visible: QuickMixMembers sends it and
	// ApplyQuickMix re-applies the same set.
	c := New(10)
	s1 := &Station{ID: "s1", UseQuickMix: true}
	s2 := &Station{ID: "s2", UseQuickMix: false}
	c.CreateStation(s1)
	c.CreateStation(s2)

	s2.UseQuickMix = true
	s2.UseQuickMix = false
	s2.UseQuickMix = true

	members := c.QuickMixMembers()
	assert.ElementsMatch(t, []string{"s1", "s2"}, members)

	c.ApplyQuickMix(members)
	got1, _ := c.FindStation("s1")
	got2, _ := c.FindStation("s2")
	assert.True(t, got1.UseQuickMix)
	assert.True(t, got2.UseQuickMix)
}

func TestQuickMixReconfigure(t *testing.T) {
	// spec.md §8 scenario 4.
	c := New(10)
	s1 := &Station{ID: "S1", UseQuickMix: true}
	s2 := &Station{ID: "S2", UseQuickMix: true}
	s3 := &Station{ID: "S3", UseQuickMix: false}
	s4 := &Station{ID: "S4", IsQuickMix: true}
	for _, s := range []*Station{s1, s2, s3, s4} {
		c.CreateStation(s)
	}

	s2.UseQuickMix = false
	s3.UseQuickMix = true

	members := c.QuickMixMembers()
	assert.ElementsMatch(t, []string{"S1", "S3"}, members)

	c.ApplyQuickMix(members)
	assert.False(t, s2.UseQuickMix)
	assert.True(t, s3.UseQuickMix)
}

func TestSorted_IsPermutationAndIdempotent(t *testing.T) {
	stations := []*Station{
		{ID: "1", Name: "Zebra"},
		{ID: "2", Name: "apple", IsQuickMix: true},
		{ID: "3", Name: "Mango"},
	}

	for _, order := range []SortOrder{
		SortNameAZ, SortNameZA,
		SortQuickMixFirstNameAZ, SortQuickMixFirstNameZA,
		SortQuickMixLastNameAZ, SortQuickMixLastNameZA,
	} {
		sorted := Sorted(stations, order)
		require.Len(t, sorted, len(stations))
		assert.ElementsMatch(t, stations, sorted)

		again := Sorted(sorted, order)
		assert.Equal(t, sorted, again)
	}
}

func TestSorted_QuickMixFirst(t *testing.T) {
	stations := []*Station{
		{ID: "1", Name: "B"},
		{ID: "2", Name: "A", IsQuickMix: true},
	}
	sorted := Sorted(stations, SortQuickMixFirstNameAZ)
	require.Len(t, sorted, 2)
	assert.True(t, sorted[0].IsQuickMix)
}

func TestDeleteStation_NotFound(t *testing.T) {
	c := New(10)
	assert.False(t, c.DeleteStation("missing"))
}

func TestEmptyPlaylistResponse(t *testing.T) {
	// spec.md §8 boundary behavior: a zero-item GetPlaylist response
	// leaves Playlist empty.
	c := New(10)
	c.SetPlaylist([]*Song{{TrackToken: "x"}})
	c.SetPlaylist(nil)
	assert.Empty(t, c.Playlist())
}
