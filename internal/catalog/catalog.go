// Package catalog maintains the session's station list, playlist queue,
// and history, and the invariants spec.md §3/§4.5/§8 attach to them.
// Catalog owns its station/genre/history lists; the head of Playlist is
// the current song and is detached into History when playback ends.
package catalog

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Catalog holds every server-derived collection for one session.
type Catalog struct {
	mu sync.RWMutex

	stations  *List[*Station]
	playlist  *List[*Song]
	history   *List[*Song]
	historyCap int

	genres []GenreCategory
}

// New builds an empty Catalog. historyCap bounds History's FIFO.
func New(historyCap int) *Catalog {
	if historyCap <= 0 {
		historyCap = 50
	}
	return &Catalog{
		stations:   NewList[*Station](),
		playlist:   NewList[*Song](),
		history:    NewList[*Song](),
		historyCap: historyCap,
	}
}

// SetStations replaces the station list wholesale, preserving server
// order, as GetStations does.
func (c *Catalog) SetStations(stations []*Station) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stations.SetSlice(stations)
}

// Stations returns a snapshot of the station list.
func (c *Catalog) Stations() []*Station {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stations.Slice()
}

// FindStation is O(n), as spec.md §4.5 specifies.
func (c *Catalog) FindStation(id string) (*Station, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var found *Station
	c.stations.Each(func(s *Station) bool {
		if s.ID == id {
			found = s
			return false
		}
		return true
	})
	return found, found != nil
}

// CreateStation appends a new station, first removing any existing
// station sharing its ID (spec.md §4.5).
func (c *Catalog) CreateStation(s *Station) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stations.DeleteWhere(func(existing *Station) bool { return existing.ID == s.ID })
	c.stations.Append(s)
}

// DeleteStation removes the station with the given id, reporting whether
// it was found. It does not touch the playlist or playback; cancelling
// playback when the deleted station was current is left to the caller
// (RpcEngine in turn leaves it to its own caller), per spec.md §4.6/§8.
func (c *Catalog) DeleteStation(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stations.DeleteWhere(func(s *Station) bool { return s.ID == id })
}

// RenameStation updates a station's local name, only ever called after
// server success (spec.md §4.6).
func (c *Catalog) RenameStation(id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stations.Each(func(s *Station) bool {
		if s.ID == id {
			s.Name = name
			return false
		}
		return true
	})
}

// QuickMixMembers collects the ids of every non-quickmix station with
// UseQuickMix set, for SetQuickMix's request body (spec.md §4.5, scenario
// 4 in spec.md §8).
func (c *Catalog) QuickMixMembers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	c.stations.Each(func(s *Station) bool {
		if !s.IsQuickMix && s.UseQuickMix {
			ids = append(ids, s.ID)
		}
		return true
	})
	return ids
}

// ApplyQuickMix sets UseQuickMix on exactly the stations named in ids,
// clearing it on every other non-quickmix station. Called after the
// server confirms SetQuickMix.
func (c *Catalog) ApplyQuickMix(ids []string) {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stations.Each(func(s *Station) bool {
		if !s.IsQuickMix {
			s.UseQuickMix = set[s.ID]
		}
		return true
	})
}

// --- Playlist / History ---

// SetPlaylist replaces the playlist wholesale, as a fresh GetPlaylist
// response does. An empty response (spec.md §8 boundary behavior) leaves
// Playlist empty.
func (c *Catalog) SetPlaylist(songs []*Song) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playlist.SetSlice(songs)
}

// AppendSong adds a song to the tail of the playlist queue.
func (c *Catalog) AppendSong(s *Song) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playlist.Append(s)
}

// CurrentSong returns the head of the playlist, if any.
func (c *Catalog) CurrentSong() (*Song, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playlist.At(0)
}

// Playlist returns a snapshot of the playlist queue.
func (c *Catalog) Playlist() []*Song {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playlist.Slice()
}

// History returns a snapshot of the history list, most recent first.
func (c *Catalog) History() []*Song {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history.Slice()
}

// AdvancePastCurrent detaches the playlist head into history (prepend,
// then truncate to historyCap, evicting the oldest) and returns it.
// The client calls it before starting the next song when the current one
// is skipped, banned, marked tired or moved (spec.md §8 scenario 2); a
// song that plays to its natural end is not advanced past.
func (c *Catalog) AdvancePastCurrent() (*Song, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	head, ok := c.playlist.At(0)
	if !ok {
		return nil, false
	}
	c.playlist.DeleteWhere(func(s *Song) bool { return s == head })
	c.history.Prepend(head)
	c.history.TruncateTo(c.historyCap)
	slog.Debug("catalog: advanced past song", "channel", "rpc", "track", head.Title, "history_len", c.history.Count())
	return head, true
}

// ClearPlaylist empties the playlist queue, used when the current
// station is deleted mid-playback (spec.md §4.6/§8).
func (c *Catalog) ClearPlaylist() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playlist.SetSlice(nil)
}

// UpdateRating sets a song's in-memory rating after a successful
// RateSong/AddFeedback call (spec.md §4.6/§8).
func (c *Catalog) UpdateRating(trackToken string, rating Rating) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playlist.Each(func(s *Song) bool {
		if s.TrackToken == trackToken {
			s.Rating = rating
			return false
		}
		return true
	})
}

// --- Genres ---

// SetGenres replaces the genre category tree wholesale.
func (c *Catalog) SetGenres(genres []GenreCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.genres = genres
}

// Genres returns the genre category tree.
func (c *Catalog) Genres() []GenreCategory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.genres
}

// --- Sorting ---

// SortOrder is one of the six orders spec.md §4.5 names: the two plain
// name orders plus the four quickmix-first/last × name orders.
type SortOrder int

const (
	SortNameAZ SortOrder = iota
	SortNameZA
	SortQuickMixFirstNameAZ
	SortQuickMixFirstNameZA
	SortQuickMixLastNameAZ
	SortQuickMixLastNameZA
)

// Sorted returns a new slice — stations is never mutated — ordered per
// order. Comparison is case-insensitive by name, tie-broken by
// IsQuickMix, and is a pure function: it is a permutation of the input
// and idempotent (spec.md §8).
func Sorted(stations []*Station, order SortOrder) []*Station {
	out := make([]*Station, len(stations))
	copy(out, stations)

	nameAsc := func(a, b *Station) bool {
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return !a.IsQuickMix && b.IsQuickMix // non-quickmix sorts before quickmix on ties
	}

	switch order {
	case SortNameAZ:
		sort.SliceStable(out, func(i, j int) bool { return nameAsc(out[i], out[j]) })
	case SortNameZA:
		sort.SliceStable(out, func(i, j int) bool { return nameAsc(out[j], out[i]) })
	case SortQuickMixFirstNameAZ:
		sort.SliceStable(out, func(i, j int) bool { return quickMixThenName(out[i], out[j], true, true) })
	case SortQuickMixFirstNameZA:
		sort.SliceStable(out, func(i, j int) bool { return quickMixThenName(out[i], out[j], true, false) })
	case SortQuickMixLastNameAZ:
		sort.SliceStable(out, func(i, j int) bool { return quickMixThenName(out[i], out[j], false, true) })
	case SortQuickMixLastNameZA:
		sort.SliceStable(out, func(i, j int) bool { return quickMixThenName(out[i], out[j], false, false) })
	}
	return out
}

func quickMixThenName(a, b *Station, quickMixFirst, ascending bool) bool {
	if a.IsQuickMix != b.IsQuickMix {
		if quickMixFirst {
			return a.IsQuickMix
		}
		return b.IsQuickMix
	}
	an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if ascending {
		return an < bn
	}
	return an > bn
}
