package scoring

import (
	"math"

	"github.com/okian/bnstats/internal/domain/model"
)

const (
	renWeight     = 0.95
	renSelfDecay  = 0.8
	renOtherDecay = 0.95
	renBaseDrain  = 300.0
	renSRPivot    = 5.5
)

// Ren normalises drain time against set size, rewards hard difficulties and
// multiplies the activity total by mapper uniqueness.
type Ren struct {
	p params
}

// NewRen creates the ren calculator.
func NewRen(opts ...Option) *Ren {
	return &Ren{p: newParams(renWeight, opts)}
}

// Name returns "ren".
func (c *Ren) Name() model.CalculatorName { return model.CalculatorRen }

// Weight is the activity decay, 0.95 unless overridden.
func (c *Ren) Weight() float64 { return c.p.weight }

// CalculateMapset expects 300s of total drain for four difficulties, and
// proportionally more for larger sets.
func (c *Ren) CalculateMapset(set model.BeatmapSet) float64 {
	n := float64(set.TotalDiffs())
	if n == 0 {
		return 0
	}
	base := renBaseDrain + (120*n/4)*(math.Log(n/4)+0.601)

	bonus := 0.0
	for _, b := range set.Beatmaps {
		bonus += float64(b.HitLength) * (b.DifficultyRating - renSRPivot) / renSRPivot
	}
	bonus *= math.Log(n) / math.Log(8)

	return model.Round2((float64(set.TotalDrain()) + bonus) / base)
}

// Penalty sums 2^t/8 over resets with a positive rating total t.
func (c *Ren) Penalty(resets []model.Reset) float64 {
	penalty := 0.0
	for _, r := range resets {
		if t := r.Total(); t > 0 {
			penalty += math.Pow(2, float64(t)) / 8
		}
	}
	return penalty
}

// MapperScore discounts repeated mappers, less steeply than naxess.
func (c *Ren) MapperScore(self, other int) float64 {
	return math.Pow(renSelfDecay, float64(self)) * math.Pow(renOtherDecay, float64(other))
}

// ScoreNomination scales the rounded mapper·mapset product by the ranked
// factor and subtracts the reset penalty.
func (c *Ren) ScoreNomination(in Input) model.ScoreComponents {
	ranked := (rankedFlag(in.Set) + 1) / 2
	mapper := c.MapperScore(in.SelfCount, in.OtherCount)
	mapset := c.CalculateMapset(in.Set)
	penalty := c.Penalty(in.Resets)

	total := model.Round2(model.Round2(mapper*mapset)*ranked - penalty)
	return model.ScoreComponents{
		RankedScore: ranked,
		MapperScore: mapper,
		MapsetScore: mapset,
		Penalty:     penalty,
		TotalScore:  total,
	}
}

// ActivityScore is the decayed sum multiplied by distinct creators per nomination.
func (c *Ren) ActivityScore(noms []model.Nomination) float64 {
	scored := make([]model.Nomination, 0, len(noms))
	for _, n := range noms {
		if _, ok := n.Score(c.Name()); ok && !n.AmbiguousMode {
			scored = append(scored, n)
		}
	}
	if len(scored) == 0 {
		return 0
	}

	creators := make(map[int64]struct{}, len(scored))
	for _, n := range scored {
		creators[n.CreatorID] = struct{}{}
	}
	uniqueness := float64(len(creators)) / float64(len(scored))
	return weightedSum(scoredTotals(c.Name(), scored), c.p.weight) * uniqueness
}
