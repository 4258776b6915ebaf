package filter

import (
	"strategy-desk/internal/models"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCatalog() []models.StrategyRecord {
	return []models.StrategyRecord{
		{ID: "1", Name: "BTC Momentum Strategy", Owner: "james.wilson@example.com", Exchange: "Binance", TradingPair: "BTC/USDT"},
		{ID: "2", Name: "ETH Conservative", Owner: "sarah.brown@example.com", Exchange: "Coinbase", TradingPair: "ETH/USDT"},
		{ID: "3", Name: "SOL Aggressive", Owner: "david.kim@example.com", Exchange: "Binance", TradingPair: "SOL/USDT"},
		{ID: "4", Name: "ADA Conservative", Owner: "lisa.garcia@example.com", Exchange: "Bybit", TradingPair: "ADA/USDT"},
		{ID: "5", Name: "BNB Scalping", Owner: "thomas.wilson@example.com", Exchange: "KuCoin", TradingPair: "BNB/USDT"},
	}
}

func ids(records []models.StrategyRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

// isSubsequence reports whether every element of sub appears in full in the same order.
func isSubsequence(sub, full []models.StrategyRecord) bool {
	i := 0
	for _, r := range full {
		if i < len(sub) && sub[i].ID == r.ID {
			i++
		}
	}
	return i == len(sub)
}

func TestSearchTermIsOrderedSubsequence(t *testing.T) {
	catalog := sampleCatalog()
	terms := []string{"", "conservative", "WILSON", "usdt", "sol", "/", "nothing-matches", "eth/"}

	for _, term := range terms {
		t.Run(term, func(t *testing.T) {
			got := Strategies(catalog, term, nil)
			assert.True(t, isSubsequence(got, catalog))

			lower := strings.ToLower(term)
			for _, r := range got {
				matched := strings.Contains(strings.ToLower(r.Name), lower) ||
					strings.Contains(strings.ToLower(r.Owner), lower) ||
					strings.Contains(strings.ToLower(r.TradingPair), lower)
				assert.True(t, matched, "record %s does not contain %q", r.ID, term)
			}
		})
	}
}

func TestSearchMatchesNameOwnerAndPair(t *testing.T) {
	catalog := sampleCatalog()

	assert.Equal(t, []string{"2", "4"}, ids(Strategies(catalog, "Conservative", nil)))
	assert.Equal(t, []string{"1", "5"}, ids(Strategies(catalog, "wilson", nil)))
	assert.Equal(t, []string{"3"}, ids(Strategies(catalog, "sol/usdt", nil)))
	assert.Empty(t, Strategies(catalog, "dogecoin", nil))
}

func TestExchangeFilterIsExactAndCaseSensitive(t *testing.T) {
	catalog := sampleCatalog()

	binance := "Binance"
	got := Strategies(catalog, "", &binance)
	assert.Equal(t, []string{"1", "3"}, ids(got))
	for _, r := range got {
		assert.Equal(t, binance, r.Exchange)
	}

	lower := "binance"
	assert.Empty(t, Strategies(catalog, "", &lower))
}

func TestSearchAndExchangeCombine(t *testing.T) {
	catalog := sampleCatalog()
	binance := "Binance"

	assert.Equal(t, []string{"3"}, ids(Strategies(catalog, "sol", &binance)))
	assert.Empty(t, Strategies(catalog, "conservative", &binance))
}

func TestEmptyCatalog(t *testing.T) {
	got := Strategies(nil, "btc", nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCatalogIsNotMutated(t *testing.T) {
	catalog := sampleCatalog()
	before := sampleCatalog()
	binance := "Binance"

	got := Strategies(catalog, "s", &binance)
	if len(got) > 0 {
		got[0].Name = "changed"
	}

	assert.Equal(t, before, catalog)
}

func TestExchangeQueryValue(t *testing.T) {
	assert.Nil(t, Exchange(""))
	assert.Nil(t, Exchange("all"))
	require.NotNil(t, Exchange("KuCoin"))
	assert.Equal(t, "KuCoin", *Exchange("KuCoin"))
}
