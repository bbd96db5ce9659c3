package strategy

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certtrader/internal/indicator"
	"certtrader/internal/model"
)

func testCatalog() *indicator.Catalog {
	return indicator.NewCatalog(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

func TestGenerateAll(t *testing.T) {
	cat := testCatalog()
	strategies := GenerateAll(cat)
	require.NotEmpty(t, strategies)

	seen := make(map[string]bool)
	for _, s := range strategies {
		assert.False(t, seen[s.Name], "duplicate strategy %s", s.Name)
		seen[s.Name] = true

		require.GreaterOrEqual(t, len(s.Components), 2)
		require.LessOrEqual(t, len(s.Components), 3)

		categories := make(map[indicator.Category]bool)
		for _, c := range s.Components {
			assert.False(t, categories[c.Category()], "strategy %s repeats category %s", s.Name, c.Category())
			categories[c.Category()] = true
		}
	}
}

func TestNameRoundTrip(t *testing.T) {
	cat := testCatalog()
	for _, s := range GenerateAll(cat) {
		parsed, err := Parse(s.Name, cat)
		require.NoError(t, err, "parsing %s", s.Name)
		require.Equal(t, s.Name, Name(parsed.Components))
		require.Len(t, parsed.Components, len(s.Components))
		for i := range s.Components {
			assert.Equal(t, s.Components[i].Category(), parsed.Components[i].Category())
			assert.Equal(t, s.Components[i].Name(), parsed.Components[i].Name())
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	cat := testCatalog()

	_, err := Parse("(Trend) NOPE", cat)
	assert.Error(t, err)

	_, err = Parse("garbage", cat)
	assert.Error(t, err)

	_, err = FromNames([]string{"(Trend) PSAR + (Momentum) RSI", "(Trend) NOPE"}, cat)
	assert.Error(t, err)
}

func TestFromNames(t *testing.T) {
	cat := testCatalog()
	strategies, err := FromNames([]string{"(Trend) PSAR + (Momentum) RSI"}, cat)
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.Equal(t, "(Trend) PSAR + (Momentum) RSI", strategies[0].Name)
}

func TestEmptyStrategyNeverFires(t *testing.T) {
	s := Strategy{Name: ""}
	bar := model.Bar{Time: time.Now(), Close: 100, Columns: map[string]float64{}}
	assert.False(t, s.Buy(bar))
	assert.False(t, s.Sell(bar))
}
