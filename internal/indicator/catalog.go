package indicator

import (
	"fmt"
	"log/slog"

	"certtrader/internal/model"
)

// Category groups indicators; strategies never combine two indicators
// from the same category.
type Category string

const (
	Cycles     Category = "Cycles"
	Volume     Category = "Volume"
	Volatility Category = "Volatility"
	Trend      Category = "Trend"
	Overlap    Category = "Overlap"
	Momentum   Category = "Momentum"
)

// Categories lists all categories in the fixed catalog order.
var Categories = []Category{Cycles, Volume, Volatility, Trend, Overlap, Momentum}

// Indicator computes its columns over a bar series and exposes a
// buy/sell predicate pair over a single enriched bar.
type Indicator interface {
	Category() Category
	Name() string
	Compute(bars []model.Bar) error
	Buy(bar model.Bar) bool
	Sell(bar model.Bar) bool
}

type key struct {
	cat  Category
	name string
}

// Catalog is the registry of indicators keyed by (category, name).
type Catalog struct {
	logger  *slog.Logger
	byKey   map[key]Indicator
	ordered []Indicator
}

// NewCatalog builds the full fixed indicator library.
func NewCatalog(logger *slog.Logger) *Catalog {
	c := &Catalog{logger: logger, byKey: make(map[key]Indicator)}
	c.register(
		&ebsw{},
		&mfi{},
		&cmf{},
		&keltner{},
		&massIndex{},
		&psar{},
		&adx{},
		&emaCross{},
		&smaCross{},
		&rsiIndicator{},
		&stochastic{},
		&cci{},
	)
	return c
}

func (c *Catalog) register(inds ...Indicator) {
	for _, ind := range inds {
		c.byKey[key{ind.Category(), ind.Name()}] = ind
		c.ordered = append(c.ordered, ind)
	}
}

// Lookup returns the indicator registered under (category, name).
func (c *Catalog) Lookup(cat Category, name string) (Indicator, bool) {
	ind, ok := c.byKey[key{cat, name}]
	return ind, ok
}

// All returns the indicators in registration order.
func (c *Catalog) All() []Indicator {
	return c.ordered
}

// Enrich computes the baseline columns every consumer depends on (ATR,
// RSI, previous close) and then every indicator's own columns. An
// indicator whose computation fails is degraded to an always-false
// predicate pair instead of aborting the catalog build.
func (c *Catalog) Enrich(bars []model.Bar) {
	for i := range bars {
		if bars[i].Columns == nil {
			bars[i].Columns = make(map[string]float64)
		}
	}
	atrs := atr(bars, 14)
	rsis := rsi(closes(bars), 14)
	for i := range bars {
		bars[i].Columns["ATR"] = atrs[i]
		bars[i].Columns["RSI"] = rsis[i]
		if i > 0 {
			bars[i].Columns["CLOSE_PREV"] = bars[i-1].Close
		} else {
			bars[i].Columns["CLOSE_PREV"] = bars[i].Close
		}
	}
	for i, ind := range c.ordered {
		if err := ind.Compute(bars); err != nil {
			c.logger.Warn("indicator computation failed, disabling",
				"category", ind.Category(), "name", ind.Name(), "error", err)
			disabled := &alwaysFalse{ind}
			c.byKey[key{ind.Category(), ind.Name()}] = disabled
			c.ordered[i] = disabled
		}
	}
}

// alwaysFalse wraps a failed indicator so its strategies simply never fire.
type alwaysFalse struct {
	Indicator
}

func (a *alwaysFalse) Buy(model.Bar) bool  { return false }
func (a *alwaysFalse) Sell(model.Bar) bool { return false }

func errTooShort(name string, n, have int) error {
	return fmt.Errorf("%s needs %d bars, have %d", name, n, have)
}
