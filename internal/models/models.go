package models

import (
	"strings"
	"time"
)

// Config holds every setting of the desk service.
type Config struct {
	LogConfig  LogConfig        `json:"log"`
	Server     ServerConfig     `json:"server"`
	Store      StoreConfig      `json:"store"`
	Simulation SimulationConfig `json:"simulation"`
	Metrics    MetricsConfig    `json:"metrics"`
	SeedPath   string           `json:"seed_path,omitempty"` // optional YAML file replacing the sample catalog
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // console, file, both
	File       string `json:"file"`
	MaxSize    int    `json:"max_size"`    // MB
	MaxBackups int    `json:"max_backups"` // rotated files to keep
	MaxAge     int    `json:"max_age"`     // days
	Compress   bool   `json:"compress"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// StoreConfig points at the local snapshot database and the external backing store.
type StoreConfig struct {
	SnapshotPath string `json:"snapshot_path"` // badger directory, empty disables snapshots
	SchemaPath   string `json:"schema_path"`   // sqlite file for the table schema, empty disables it

	// Connection parameters of the eventual backing store. Read from the environment only.
	URL     string `json:"-"`
	AnonKey string `json:"-"`
}

// SimulationConfig holds the fixed latencies of simulated round trips.
type SimulationConfig struct {
	StrategySubmitMs   int `json:"strategy_submit_ms"`
	ConnectionSubmitMs int `json:"connection_submit_ms"`
	ConnectionTestMs   int `json:"connection_test_ms"`
	PlanChangeMs       int `json:"plan_change_ms"`
	SupportSubmitMs    int `json:"support_submit_ms"`
}

// Duration converts a millisecond setting.
func Duration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// MetricsConfig configures the statsd client. An empty host disables metrics.
type MetricsConfig struct {
	StatsdHost string `json:"statsd_host"`
	StatsdPort int    `json:"statsd_port"`
	Prefix     string `json:"prefix"`
}

// StrategyRecord is one configured trading strategy as shown in the views.
type StrategyRecord struct {
	ID                   string    `json:"id" yaml:"id"`
	Name                 string    `json:"name" yaml:"name"`
	Owner                string    `json:"owner" yaml:"owner"`
	Exchange             string    `json:"exchange" yaml:"exchange"`       // display name, e.g. "Binance"
	TradingPair          string    `json:"tradingPair" yaml:"tradingPair"` // e.g. "BTC/USDT"
	Strategy             string    `json:"strategy" yaml:"strategy"`       // display label, e.g. "MA Crossover"
	Timeframe            Timeframe `json:"timeframe" yaml:"timeframe"`
	InitialInvestment    float64   `json:"initialInvestment" yaml:"initialInvestment"`
	RiskLevel            int       `json:"riskLevel" yaml:"riskLevel"`
	TakeProfitPercentage float64   `json:"takeProfitPercentage" yaml:"takeProfitPercentage"`
	StopLossPercentage   float64   `json:"stopLossPercentage" yaml:"stopLossPercentage"`
	CreatedAt            time.Time `json:"createdAt" yaml:"createdAt"`
}

// StrategyKind is the indicator family of a strategy.
type StrategyKind string

const (
	MACrossover    StrategyKind = "MA_CROSSOVER"
	RSIDivergence  StrategyKind = "RSI_DIVERGENCE"
	MACDSignal     StrategyKind = "MACD_SIGNAL"
	BollingerBands StrategyKind = "BOLLINGER_BANDS"
	CustomStrategy StrategyKind = "CUSTOM"
)

var strategyLabels = map[StrategyKind]string{
	MACrossover:    "MA Crossover",
	RSIDivergence:  "RSI Divergence",
	MACDSignal:     "MACD Signal",
	BollingerBands: "Bollinger Bands",
	CustomStrategy: "Custom",
}

// StrategyKinds lists the selectable kinds in form order.
var StrategyKinds = []StrategyKind{MACrossover, RSIDivergence, MACDSignal, BollingerBands, CustomStrategy}

// Label returns the display label of the kind.
func (k StrategyKind) Label() string {
	if l, ok := strategyLabels[k]; ok {
		return l
	}
	return string(k)
}

// KindFromLabel maps a display label such as "MA Crossover" to its kind.
func KindFromLabel(label string) StrategyKind {
	return StrategyKind(strings.ToUpper(strings.ReplaceAll(label, " ", "_")))
}

// Timeframe is the candle interval a strategy runs on.
type Timeframe string

const (
	OneMinute      Timeframe = "1m"
	FiveMinutes    Timeframe = "5m"
	FifteenMinutes Timeframe = "15m"
	OneHour        Timeframe = "1h"
	FourHours      Timeframe = "4h"
	OneDay         Timeframe = "1d"
)

// Timeframes lists the selectable timeframes.
var Timeframes = []Timeframe{OneMinute, FiveMinutes, FifteenMinutes, OneHour, FourHours, OneDay}

// Exchange form values and their display names.
var exchangeNames = map[string]string{
	"binance":  "Binance",
	"coinbase": "Coinbase",
	"kucoin":   "KuCoin",
	"bybit":    "Bybit",
	"okx":      "OKX",
}

// StrategyExchanges are the exchanges a strategy can run on.
var StrategyExchanges = []string{"binance", "coinbase", "kucoin", "bybit"}

// ConnectionExchanges are the exchanges an API connection can be added for.
var ConnectionExchanges = []string{"binance", "coinbase", "kucoin", "bybit", "okx"}

// ExchangeName returns the display name for a form value, or the value itself when unknown.
func ExchangeName(value string) string {
	if n, ok := exchangeNames[value]; ok {
		return n
	}
	return value
}

// TradingPairs are the selectable base/quote pairs.
var TradingPairs = []string{"BTC/USDT", "ETH/USDT", "SOL/USDT", "ADA/USDT", "BNB/USDT"}

// StrategyDraft holds the typed values of the add/edit strategy form.
type StrategyDraft struct {
	Name                 string  `json:"name" mapstructure:"name"`
	Exchange             string  `json:"exchange" mapstructure:"exchange"`
	TradingPair          string  `json:"tradingPair" mapstructure:"tradingPair"`
	Strategy             string  `json:"strategy" mapstructure:"strategy"`
	Timeframe            string  `json:"timeframe" mapstructure:"timeframe"`
	InitialInvestment    float64 `json:"initialInvestment" mapstructure:"initialInvestment"`
	RiskLevel            float64 `json:"riskLevel" mapstructure:"riskLevel"`
	TakeProfitPercentage float64 `json:"takeProfitPercentage" mapstructure:"takeProfitPercentage"`
	StopLossPercentage   float64 `json:"stopLossPercentage" mapstructure:"stopLossPercentage"`
	Owner                string  `json:"owner" mapstructure:"owner"`
	IsActive             bool    `json:"isActive" mapstructure:"isActive"`
}

// DefaultStrategyDraft returns the values an empty form starts with.
func DefaultStrategyDraft() StrategyDraft {
	return StrategyDraft{
		InitialInvestment:    100,
		RiskLevel:            5,
		TakeProfitPercentage: 3,
		StopLossPercentage:   2,
	}
}

// User is a dashboard user that can own strategies.
type User struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// APIConnection is an exchange credential pair. It is persisted in full;
// views must go through RedactedKey and MaskedSecret.
type APIConnection struct {
	ID             string `json:"id"`
	Exchange       string `json:"exchange"`
	APIKey         string `json:"api_key"`
	APISecret      string `json:"api_secret"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
	Status         string `json:"status"`
	AddedOn        string `json:"added_on"`
}

const maskedSecret = "**********"

// RedactedKey shows the first and last five characters of the key.
func (c APIConnection) RedactedKey() string {
	key := []rune(c.APIKey)
	if len(key) <= 10 {
		return maskedSecret
	}
	return string(key[:5]) + "..." + string(key[len(key)-5:])
}

// MaskedSecret never reveals the secret.
func (c APIConnection) MaskedSecret() string {
	return maskedSecret
}

// APIConnectionDraft holds the values of the add-connection form.
type APIConnectionDraft struct {
	Exchange       string `json:"exchange" mapstructure:"exchange"`
	APIKey         string `json:"apiKey" mapstructure:"apiKey"`
	APISecret      string `json:"apiSecret" mapstructure:"apiSecret"`
	TelegramChatID string `json:"telegramChatId" mapstructure:"telegramChatId"`
}

// BillingCycle selects which plan price applies.
type BillingCycle string

const (
	Monthly BillingCycle = "monthly"
	Yearly  BillingCycle = "yearly"
)

// PlanPrice is a price per billing cycle; the literal "Free" is allowed.
type PlanPrice struct {
	Monthly string `json:"monthly"`
	Yearly  string `json:"yearly"`
}

// SubscriptionPlan describes a pricing tier.
type SubscriptionPlan struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Price         PlanPrice `json:"price"`
	Features      []string  `json:"features"`
	Limitations   []string  `json:"limitations"`
	MaxStrategies int       `json:"maxStrategies"` // -1 means unlimited
	MaxExchanges  int       `json:"maxExchanges"`
	Popular       bool      `json:"popular"`
}

// PriceFor returns the plan price for the cycle.
func (p SubscriptionPlan) PriceFor(cycle BillingCycle) string {
	if cycle == Yearly {
		return p.Price.Yearly
	}
	return p.Price.Monthly
}

// SupportTicketDraft holds the values of the contact form.
type SupportTicketDraft struct {
	Name    string `json:"name" mapstructure:"name"`
	Email   string `json:"email" mapstructure:"email"`
	Subject string `json:"subject" mapstructure:"subject"`
	Message string `json:"message" mapstructure:"message"`
}

// SupportSubjects are the selectable ticket subjects.
var SupportSubjects = []string{"general", "technical", "billing", "feature", "other"}
