package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/bnstats/internal/domain/model"
)

var constructors = map[model.CalculatorName]func(...Option) Calculator{
	model.CalculatorNaxess: func(opts ...Option) Calculator { return NewNaxess(opts...) },
	model.CalculatorRen:    func(opts ...Option) Calculator { return NewRen(opts...) },
}

// Lookup returns a new calculator registered under name.
func Lookup(name string, opts ...Option) (Calculator, error) {
	ctor, ok := constructors[model.CalculatorName(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCalculator, name)
	}
	return ctor(opts...), nil
}

// Names lists registered calculator names in sorted order.
func Names() []string {
	out := make([]string, 0, len(constructors))
	for n := range constructors {
		out = append(out, string(n))
	}
	sort.Strings(out)
	return out
}
