package filter

import (
	"strategy-desk/internal/models"
	"strings"
)

// Strategies returns the records matching both the search term and the exchange filter,
// in catalog order. An empty term matches everything; a nil exchange means all exchanges.
// The term is matched case-insensitively against name, owner and trading pair, the
// exchange is compared exactly. The catalog is never modified.
func Strategies(catalog []models.StrategyRecord, searchTerm string, exchange *string) []models.StrategyRecord {
	out := make([]models.StrategyRecord, 0, len(catalog))
	term := strings.ToLower(searchTerm)

	for _, r := range catalog {
		if matchesSearch(r, term) && matchesExchange(r, exchange) {
			out = append(out, r)
		}
	}
	return out
}

func matchesSearch(r models.StrategyRecord, lowerTerm string) bool {
	if lowerTerm == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Name), lowerTerm) ||
		strings.Contains(strings.ToLower(r.Owner), lowerTerm) ||
		strings.Contains(strings.ToLower(r.TradingPair), lowerTerm)
}

func matchesExchange(r models.StrategyRecord, exchange *string) bool {
	return exchange == nil || r.Exchange == *exchange
}

// Exchange turns an optional query value into a filter; "" and "all" mean no filter.
func Exchange(value string) *string {
	if value == "" || strings.EqualFold(value, "all") {
		return nil
	}
	return &value
}
