// Package catalog holds the sample data the desk starts with.
package catalog

import (
	"fmt"
	"os"
	"strategy-desk/internal/models"
	"time"

	"gopkg.in/yaml.v3"
)

// StateVersion is the version stamped on freshly built state.
const StateVersion = 1

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// Strategies returns the sample strategy catalog.
func Strategies() []models.StrategyRecord {
	return []models.StrategyRecord{
		{
			ID: "1", Name: "BTC Momentum Strategy", Owner: "james.wilson@example.com",
			Exchange: "Binance", TradingPair: "BTC/USDT", Strategy: "MA Crossover", Timeframe: models.OneHour,
			InitialInvestment: 1000, RiskLevel: 7, TakeProfitPercentage: 5, StopLossPercentage: 3,
			CreatedAt: mustTime("2023-03-15T14:30:00Z"),
		},
		{
			ID: "2", Name: "ETH Conservative", Owner: "sarah.brown@example.com",
			Exchange: "Coinbase", TradingPair: "ETH/USDT", Strategy: "Bollinger Bands", Timeframe: models.FourHours,
			InitialInvestment: 500, RiskLevel: 4, TakeProfitPercentage: 2.5, StopLossPercentage: 2,
			CreatedAt: mustTime("2023-03-10T09:45:00Z"),
		},
		{
			ID: "3", Name: "SOL Aggressive", Owner: "david.kim@example.com",
			Exchange: "Binance", TradingPair: "SOL/USDT", Strategy: "RSI Divergence", Timeframe: models.FifteenMinutes,
			InitialInvestment: 750, RiskLevel: 8, TakeProfitPercentage: 7, StopLossPercentage: 5,
			CreatedAt: mustTime("2023-03-12T11:20:00Z"),
		},
		{
			ID: "4", Name: "ADA Conservative", Owner: "lisa.garcia@example.com",
			Exchange: "Bybit", TradingPair: "ADA/USDT", Strategy: "MACD Signal", Timeframe: models.OneDay,
			InitialInvestment: 300, RiskLevel: 3, TakeProfitPercentage: 2, StopLossPercentage: 1.5,
			CreatedAt: mustTime("2023-03-08T15:10:00Z"),
		},
		{
			ID: "5", Name: "BNB Scalping", Owner: "thomas.wilson@example.com",
			Exchange: "KuCoin", TradingPair: "BNB/USDT", Strategy: "Custom", Timeframe: models.FiveMinutes,
			InitialInvestment: 1200, RiskLevel: 9, TakeProfitPercentage: 1.2, StopLossPercentage: 0.8,
			CreatedAt: mustTime("2023-03-05T08:30:00Z"),
		},
	}
}

// ActiveStates returns the running flags the views start with.
func ActiveStates() map[string]bool {
	return map[string]bool{"1": true, "2": false, "3": true, "4": false, "5": true}
}

// Users returns the users strategies can be assigned to. A user's id is their e-mail.
func Users() []models.User {
	people := []struct{ email, name string }{
		{"james.wilson@example.com", "James Wilson"},
		{"sarah.brown@example.com", "Sarah Brown"},
		{"david.kim@example.com", "David Kim"},
		{"lisa.garcia@example.com", "Lisa Garcia"},
		{"thomas.wilson@example.com", "Thomas Wilson"},
		{"emily.jackson@example.com", "Emily Jackson"},
		{"michael.chen@example.com", "Michael Chen"},
	}
	out := make([]models.User, 0, len(people))
	for _, p := range people {
		out = append(out, models.User{ID: p.email, Name: p.name, Email: p.email})
	}
	return out
}

// Connections returns the sample exchange API connections.
func Connections() []models.APIConnection {
	return []models.APIConnection{
		{ID: "1", Exchange: "Binance", APIKey: "7RsX9wZFK2Lp5KTmnOq7", APISecret: "sample-secret-binance", Status: "active", AddedOn: "April 10, 2023"},
		{ID: "2", Exchange: "Coinbase", APIKey: "LpT7xNmK9QrSv3zOw6X2", APISecret: "sample-secret-coinbase", Status: "active", AddedOn: "March 22, 2023"},
	}
}

// Plans returns the pricing tiers in display order.
func Plans() []models.SubscriptionPlan {
	return []models.SubscriptionPlan{
		{
			ID:            "free",
			Name:          "Free",
			Description:   "Basic features for individual traders",
			Price:         models.PlanPrice{Monthly: "Free", Yearly: "Free"},
			Features:      []string{"1 trading strategy", "1 exchange connection", "Basic indicators", "Email support"},
			Limitations:   []string{"No Telegram notifications", "No historical data", "Limited strategy options"},
			MaxStrategies: 1,
			MaxExchanges:  1,
		},
		{
			ID:          "basic",
			Name:        "Basic",
			Description: "Advanced features for serious traders",
			Price:       models.PlanPrice{Monthly: "$29", Yearly: "$278"},
			Features: []string{
				"3 trading strategies", "2 exchange connections", "Telegram notifications",
				"30 days historical data", "Advanced indicators", "Email & chat support",
			},
			Limitations:   []string{"No custom strategies", "Limited backtesting"},
			MaxStrategies: 3,
			MaxExchanges:  2,
			Popular:       true,
		},
		{
			ID:          "pro",
			Name:        "Pro",
			Description: "All features for professional traders",
			Price:       models.PlanPrice{Monthly: "$79", Yearly: "$758"},
			Features: []string{
				"Unlimited trading strategies", "5 exchange connections", "Telegram notifications",
				"90 days historical data", "Custom strategies", "Advanced backtesting", "Priority support",
			},
			Limitations:   []string{},
			MaxStrategies: -1,
			MaxExchanges:  5,
		},
	}
}

// DefaultPlanID is the plan the sample user is subscribed to.
const DefaultPlanID = "basic"

// CurrentUserID is the signed-in user. There is no session handling, it is fixed.
const CurrentUserID = "james.wilson@example.com"

// InitialState builds the state the store starts with when nothing was persisted.
func InitialState() *models.DeskState {
	return &models.DeskState{
		Version:        StateVersion,
		Strategies:     Strategies(),
		Active:         ActiveStates(),
		Users:          Users(),
		Connections:    Connections(),
		CurrentPlanID:  DefaultPlanID,
		BillingCycle:   models.Monthly,
		LastUpdateTime: time.Now(),
	}
}

// Seed is the YAML document that can replace the sample strategies and users.
type Seed struct {
	Strategies []models.StrategyRecord `yaml:"strategies"`
	Active     map[string]bool         `yaml:"active"`
	Users      []models.User           `yaml:"users"`
}

// LoadSeed reads a seed file and applies it over the initial state. Sections left
// empty in the file keep the sample data.
func LoadSeed(path string) (*models.DeskState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}

	state := InitialState()
	if len(seed.Strategies) > 0 {
		state.Strategies = seed.Strategies
		state.Active = make(map[string]bool, len(seed.Strategies))
		for _, s := range seed.Strategies {
			state.Active[s.ID] = seed.Active[s.ID]
		}
	}
	if len(seed.Users) > 0 {
		state.Users = seed.Users
	}
	return state, nil
}
