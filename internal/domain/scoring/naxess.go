package scoring

import (
	"math"
	"sort"

	"github.com/okian/bnstats/internal/domain/model"
)

const (
	naxessWeight      = 0.9
	naxessLengthDecay = 0.8
	naxessSelfDecay   = 0.4
	naxessOtherDecay  = 0.9
)

// Naxess weighs drain time with diminishing returns per difficulty and
// punishes repeated nominations of the same mapper hard.
type Naxess struct {
	p params
}

// NewNaxess creates the naxess calculator.
func NewNaxess(opts ...Option) *Naxess {
	return &Naxess{p: newParams(naxessWeight, opts)}
}

// Name returns "naxess".
func (c *Naxess) Name() model.CalculatorName { return model.CalculatorNaxess }

// Weight is the activity decay, 0.9 unless overridden.
func (c *Naxess) Weight() float64 { return c.p.weight }

// CalculateMapset returns log2(1 + Σ drain_i·0.8^i / 300) over drain times sorted longest first.
func (c *Naxess) CalculateMapset(set model.BeatmapSet) float64 {
	drains := make([]int, 0, set.TotalDiffs())
	for _, b := range set.Beatmaps {
		drains = append(drains, b.HitLength)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(drains)))

	multiplier := 0.0
	for i, d := range drains {
		multiplier += float64(d) * math.Pow(naxessLengthDecay, float64(i))
	}
	multiplier /= 300
	return math.Log2(1 + multiplier)
}

// Penalty sums 0.5 + (t-1)·t/2 over resets with a positive rating total t.
func (c *Naxess) Penalty(resets []model.Reset) float64 {
	penalty := 0.0
	for _, r := range resets {
		t := float64(r.Total())
		if t > 0 {
			penalty += 0.5 + (t-1)/2*t
		}
	}
	return penalty
}

// MapperScore discounts mappers the moderator (or others) nominated recently.
func (c *Naxess) MapperScore(self, other int) float64 {
	return math.Pow(naxessSelfDecay, float64(self)) * math.Pow(naxessOtherDecay, float64(other))
}

// ScoreNomination combines the ranked, mapper and mapset factors and
// subtracts the reset penalty.
func (c *Naxess) ScoreNomination(in Input) model.ScoreComponents {
	ranked := math.Pow(rankedFlag(in.Set)+1, 2) / 4
	mapper := c.MapperScore(in.SelfCount, in.OtherCount)
	mapset := c.CalculateMapset(in.Set)
	penalty := c.Penalty(in.Resets)

	total := model.Round2(model.Round2(mapper*mapset*ranked) - penalty)
	return model.ScoreComponents{
		RankedScore: ranked,
		MapperScore: mapper,
		MapsetScore: mapset,
		Penalty:     penalty,
		TotalScore:  total,
	}
}

// ActivityScore sums naxess totals by magnitude with geometric decay.
func (c *Naxess) ActivityScore(noms []model.Nomination) float64 {
	return weightedSum(scoredTotals(c.Name(), noms), c.p.weight)
}
