package model

import (
	"fmt"
	"time"
)

// Beatmap is a single difficulty of a beatmapset as reported by the metadata source.
type Beatmap struct {
	BeatmapsetID     int64
	BeatmapID        int64
	Status           MapStatus
	TotalLength      int // seconds
	HitLength        int // drain seconds
	Mode             Mode
	Version          string // difficulty name
	Artist           string
	Title            string
	Creator          string
	CreatorID        int64
	Genre            Genre
	Language         Language
	DifficultyRating float64
	LastUpdate       time.Time
}

// Difficulty returns the tier of this difficulty.
func (b Beatmap) Difficulty() Difficulty {
	return DifficultyFromStars(b.DifficultyRating)
}

// BeatmapSet groups the difficulties of one beatmapset, optionally
// restricted to a subset of modes. Set-level attributes come from the
// first difficulty.
type BeatmapSet struct {
	Beatmaps []Beatmap
}

// NewBeatmapSet builds a set from beatmaps. When modes is non-empty only
// difficulties of those modes are kept.
func NewBeatmapSet(beatmaps []Beatmap, modes ...Mode) BeatmapSet {
	if len(modes) == 0 {
		return BeatmapSet{Beatmaps: append([]Beatmap(nil), beatmaps...)}
	}
	kept := make([]Beatmap, 0, len(beatmaps))
	for _, b := range beatmaps {
		if ContainsMode(modes, b.Mode) {
			kept = append(kept, b)
		}
	}
	return BeatmapSet{Beatmaps: kept}
}

// Empty reports whether the set has no difficulties (deleted upstream, or
// nothing left after mode filtering).
func (s BeatmapSet) Empty() bool { return len(s.Beatmaps) == 0 }

func (s BeatmapSet) TotalDiffs() int { return len(s.Beatmaps) }

func (s BeatmapSet) TotalLength() int {
	total := 0
	for _, b := range s.Beatmaps {
		total += b.TotalLength
	}
	return total
}

func (s BeatmapSet) LongestLength() int {
	longest := 0
	for _, b := range s.Beatmaps {
		if b.TotalLength > longest {
			longest = b.TotalLength
		}
	}
	return longest
}

func (s BeatmapSet) TotalDrain() int {
	total := 0
	for _, b := range s.Beatmaps {
		total += b.HitLength
	}
	return total
}

func (s BeatmapSet) LongestDrain() int {
	longest := 0
	for _, b := range s.Beatmaps {
		if b.HitLength > longest {
			longest = b.HitLength
		}
	}
	return longest
}

// MapLength formats the longest difficulty as m:ss.
func (s BeatmapSet) MapLength() string {
	l := s.LongestLength()
	return fmt.Sprintf("%d:%02d", l/60, l%60)
}

// TopDifficulty returns the difficulty with the highest star rating.
// ok is false for an empty set.
func (s BeatmapSet) TopDifficulty() (Beatmap, bool) {
	if s.Empty() {
		return Beatmap{}, false
	}
	top := s.Beatmaps[0]
	for _, b := range s.Beatmaps[1:] {
		if b.DifficultyRating > top.DifficultyRating {
			top = b
		}
	}
	return top, true
}

// Modes returns the distinct modes present in the set.
func (s BeatmapSet) Modes() []Mode {
	var out []Mode
	for _, b := range s.Beatmaps {
		if !ContainsMode(out, b.Mode) {
			out = append(out, b.Mode)
		}
	}
	return out
}

func (s BeatmapSet) first() Beatmap {
	if s.Empty() {
		return Beatmap{}
	}
	return s.Beatmaps[0]
}

func (s BeatmapSet) ID() int64          { return s.first().BeatmapsetID }
func (s BeatmapSet) Status() MapStatus  { return s.first().Status }
func (s BeatmapSet) CreatorID() int64   { return s.first().CreatorID }
func (s BeatmapSet) Creator() string    { return s.first().Creator }
func (s BeatmapSet) Genre() Genre       { return s.first().Genre }
func (s BeatmapSet) Language() Language { return s.first().Language }

// ArtistTitle renders "Artist - Title" for display.
func (s BeatmapSet) ArtistTitle() string {
	b := s.first()
	return fmt.Sprintf("%s - %s", b.Artist, b.Title)
}
