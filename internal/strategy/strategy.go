package strategy

import (
	"fmt"
	"strings"

	"certtrader/internal/indicator"
	"certtrader/internal/model"
)

// Strategy is a named combination of indicator predicate pairs. A signal
// fires only when every component agrees. A strategy with no components
// never fires.
type Strategy struct {
	Name       string
	Components []indicator.Indicator
}

// Buy reports whether every component's buy predicate holds on the bar.
func (s Strategy) Buy(bar model.Bar) bool {
	if len(s.Components) == 0 {
		return false
	}
	for _, c := range s.Components {
		if !c.Buy(bar) {
			return false
		}
	}
	return true
}

// Sell reports whether every component's sell predicate holds on the bar.
func (s Strategy) Sell(bar model.Bar) bool {
	if len(s.Components) == 0 {
		return false
	}
	for _, c := range s.Components {
		if !c.Sell(bar) {
			return false
		}
	}
	return true
}

// Name derives the canonical strategy name from its components,
// e.g. "(Trend) PSAR + (Momentum) RSI". Parse is its exact inverse.
func Name(components []indicator.Indicator) string {
	parts := make([]string, len(components))
	for i, c := range components {
		parts[i] = fmt.Sprintf("(%s) %s", c.Category(), c.Name())
	}
	return strings.Join(parts, " + ")
}

// New builds a strategy from components, deriving its name.
func New(components ...indicator.Indicator) Strategy {
	return Strategy{Name: Name(components), Components: components}
}

// Parse resolves a persisted strategy name back into catalog components.
func Parse(name string, cat *indicator.Catalog) (Strategy, error) {
	var components []indicator.Indicator
	for _, part := range strings.Split(name, " + ") {
		open := strings.IndexByte(part, '(')
		end := strings.IndexByte(part, ')')
		if open != 0 || end < 0 || end+2 > len(part) {
			return Strategy{}, fmt.Errorf("malformed strategy component %q", part)
		}
		category := indicator.Category(part[1:end])
		indName := part[end+2:]
		ind, ok := cat.Lookup(category, indName)
		if !ok {
			return Strategy{}, fmt.Errorf("unknown indicator (%s) %s", category, indName)
		}
		components = append(components, ind)
	}
	return Strategy{Name: name, Components: components}, nil
}

// FromNames resolves a list of persisted names, skipping none: a single
// unknown name is an error because the persisted catalog and the code
// must agree.
func FromNames(names []string, cat *indicator.Catalog) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		s, err := Parse(n, cat)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// GenerateAll enumerates every 2- and 3-indicator combination drawing
// from distinct categories, in the catalog's registration order.
func GenerateAll(cat *indicator.Catalog) []Strategy {
	all := cat.All()
	var out []Strategy
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].Category() == all[i].Category() {
				continue
			}
			out = append(out, New(all[i], all[j]))
			for k := j + 1; k < len(all); k++ {
				if all[k].Category() == all[i].Category() || all[k].Category() == all[j].Category() {
					continue
				}
				out = append(out, New(all[i], all[j], all[k]))
			}
		}
	}
	return out
}
