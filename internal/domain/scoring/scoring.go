// Package scoring computes moderator activity scores from nominations.
//
// A Calculator holds the arithmetic of one scoring strategy and performs no
// I/O. The Engine gathers what a Calculator needs from storage and the
// beatmap metadata source, and persists the results.
package scoring

import (
	"math"
	"sort"

	"github.com/okian/bnstats/internal/domain/model"
)

// Input is everything a Calculator needs to score one nomination.
type Input struct {
	Set        model.BeatmapSet // restricted to the nominated modes
	SelfCount  int              // earlier sets by this creator nominated by the same moderator
	OtherCount int              // earlier sets by this creator nominated by others
	Resets     []model.Reset    // resets on this set that penalise the moderator
}

// Calculator is a scoring strategy.
type Calculator interface {
	Name() model.CalculatorName
	// Weight is the geometric decay applied to ordered nomination totals.
	Weight() float64
	// CalculateMapset scores the workload of a (mode-filtered) beatmapset.
	CalculateMapset(set model.BeatmapSet) float64
	// ScoreNomination combines the inputs into score components.
	ScoreNomination(in Input) model.ScoreComponents
	// ActivityScore aggregates the stored totals of a moderator's nominations.
	ActivityScore(noms []model.Nomination) float64
}

// Option applies a configuration option to a calculator.
type Option func(*params)

type params struct {
	weight float64
}

// WithWeight overrides the decay weight. Values outside (0, 1] are ignored.
func WithWeight(w float64) Option {
	return func(p *params) {
		if w > 0 && w <= 1 {
			p.weight = w
		}
	}
}

func newParams(weight float64, opts []Option) params {
	p := params{weight: weight}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// scoredTotals returns the totals stored for name, skipping nominations
// without a score for it and those flagged ambiguous.
func scoredTotals(name model.CalculatorName, noms []model.Nomination) []float64 {
	totals := make([]float64, 0, len(noms))
	for _, n := range noms {
		if n.AmbiguousMode {
			continue
		}
		if c, ok := n.Score(name); ok {
			totals = append(totals, c.TotalScore)
		}
	}
	return totals
}

// weightedSum sorts totals by magnitude, largest first, and sums them with
// geometric decay.
func weightedSum(totals []float64, weight float64) float64 {
	sort.SliceStable(totals, func(i, j int) bool {
		return math.Abs(totals[i]) > math.Abs(totals[j])
	})
	sum := 0.0
	for i, t := range totals {
		sum += t * math.Pow(weight, float64(i))
	}
	return sum
}

func rankedFlag(set model.BeatmapSet) float64 {
	if set.Status().Validated() {
		return 1
	}
	return 0
}
