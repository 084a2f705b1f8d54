// Package favor derives a moderator's preference profile from the sets they
// nominated.
package favor

import (
	"github.com/okian/bnstats/internal/domain/model"
)

// Bucket boundaries.
const (
	shortLength  = 120 // seconds
	mediumLength = 180
	smallSize    = 400 // avg diffs × avg length
	mediumSize   = 630
	topN         = 3
	minShare     = 0.2
)

// Aggregate builds the profile of sets. Empty sets (deleted upstream) are
// ignored. ok is false when nothing is left, in which case the cached
// profile should be kept.
func Aggregate(sets []model.BeatmapSet) (model.Favor, bool) {
	valid := make([]model.BeatmapSet, 0, len(sets))
	for _, s := range sets {
		if !s.Empty() {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return model.Favor{}, false
	}

	genres := make([]string, 0, len(valid))
	langs := make([]string, 0, len(valid))
	diffs := make([]string, 0, len(valid))
	totalLength, totalDiffs := 0, 0
	for _, s := range valid {
		genres = append(genres, s.Genre().String())
		langs = append(langs, s.Language().String())
		if top, ok := s.TopDifficulty(); ok {
			diffs = append(diffs, top.Difficulty().String())
		}
		totalLength += s.TotalLength()
		totalDiffs += s.TotalDiffs()
	}

	avgLength := totalLength / totalDiffs
	avgDiffs := totalDiffs / len(valid)
	return model.Favor{
		GenreFavor:   prominent(genres),
		LangFavor:    prominent(langs),
		TopDiffFavor: prominent(diffs),
		AvgLength:    avgLength,
		AvgDiffs:     avgDiffs,
		LengthFavor:  lengthBucket(avgLength),
		SizeFavor:    sizeBucket(avgDiffs * avgLength),
	}, true
}

type tally struct {
	value string
	count int
}

// prominent returns the up to three most common values holding more than
// a fifth of the entries, least common first. When none qualifies the most
// common value is returned alone.
func prominent(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	counts := countInOrder(values)
	// stable selection: higher count first, earlier appearance wins ties
	top := make([]tally, 0, topN)
	used := make([]bool, len(counts))
	for len(top) < topN && len(top) < len(counts) {
		best := -1
		for i, c := range counts {
			if used[i] {
				continue
			}
			if best < 0 || c.count > counts[best].count {
				best = i
			}
		}
		used[best] = true
		top = append(top, counts[best])
	}

	total := float64(len(values))
	out := make([]string, 0, len(top))
	for i := len(top) - 1; i >= 0; i-- {
		if float64(top[i].count)/total > minShare {
			out = append(out, top[i].value)
		}
	}
	if len(out) == 0 {
		return []string{top[0].value}
	}
	return out
}

func countInOrder(values []string) []tally {
	idx := make(map[string]int, len(values))
	var out []tally
	for _, v := range values {
		if i, ok := idx[v]; ok {
			out[i].count++
			continue
		}
		idx[v] = len(out)
		out = append(out, tally{value: v, count: 1})
	}
	return out
}

func lengthBucket(avgLength int) string {
	switch {
	case avgLength < shortLength:
		return "Short"
	case avgLength < mediumLength:
		return "Medium"
	default:
		return "Long"
	}
}

func sizeBucket(factor int) string {
	switch {
	case factor <= smallSize:
		return "Small"
	case factor <= mediumSize:
		return "Medium"
	default:
		return "Big"
	}
}
