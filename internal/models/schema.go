package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// The types below describe the tables an external backing store has to provide.
// Row is what a select returns, Insert leaves server-filled columns optional,
// Update makes every column optional.

// UserRow is a row of the users table.
type UserRow struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	FullName       *string   `json:"full_name"`
	AvatarURL      *string   `json:"avatar_url"`
	TelegramChatID *string   `json:"telegram_chat_id"`
}

// UserInsert is the insert shape of the users table.
type UserInsert struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	FullName       *string    `json:"full_name,omitempty"`
	AvatarURL      *string    `json:"avatar_url,omitempty"`
	TelegramChatID *string    `json:"telegram_chat_id,omitempty"`
}

// UserUpdate is the update shape of the users table.
type UserUpdate struct {
	Email          *string    `json:"email,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	FullName       *string    `json:"full_name,omitempty"`
	AvatarURL      *string    `json:"avatar_url,omitempty"`
	TelegramChatID *string    `json:"telegram_chat_id,omitempty"`
}

// APIKeyRow is a row of the api_keys table.
type APIKeyRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Exchange  string    `json:"exchange"`
	APIKey    string    `json:"api_key"`
	APISecret string    `json:"api_secret"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsActive  bool      `json:"is_active"`
}

// APIKeyInsert is the insert shape of the api_keys table.
type APIKeyInsert struct {
	ID        *string    `json:"id,omitempty"`
	UserID    string     `json:"user_id"`
	Exchange  string     `json:"exchange"`
	APIKey    string     `json:"api_key"`
	APISecret string     `json:"api_secret"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	IsActive  *bool      `json:"is_active,omitempty"`
}

// APIKeyUpdate is the update shape of the api_keys table.
type APIKeyUpdate struct {
	Exchange  *string    `json:"exchange,omitempty"`
	APIKey    *string    `json:"api_key,omitempty"`
	APISecret *string    `json:"api_secret,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	IsActive  *bool      `json:"is_active,omitempty"`
}

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	TradeOpen      TradeStatus = "OPEN"
	TradeClosed    TradeStatus = "CLOSED"
	TradeCancelled TradeStatus = "CANCELLED"
)

// TradeRow is a row of the trades table.
type TradeRow struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	Symbol        string              `json:"symbol"`
	Side          Side                `json:"side"`
	Quantity      decimal.Decimal     `json:"quantity"`
	Price         decimal.Decimal     `json:"price"`
	Status        TradeStatus         `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	ClosedAt      *time.Time          `json:"closed_at"`
	PnL           decimal.NullDecimal `json:"pnl"`
	PnLPercentage decimal.NullDecimal `json:"pnl_percentage"`
}

// TradeInsert is the insert shape of the trades table.
type TradeInsert struct {
	ID            *string             `json:"id,omitempty"`
	UserID        string              `json:"user_id"`
	Symbol        string              `json:"symbol"`
	Side          Side                `json:"side"`
	Quantity      decimal.Decimal     `json:"quantity"`
	Price         decimal.Decimal     `json:"price"`
	Status        *TradeStatus        `json:"status,omitempty"`
	CreatedAt     *time.Time          `json:"created_at,omitempty"`
	UpdatedAt     *time.Time          `json:"updated_at,omitempty"`
	ClosedAt      *time.Time          `json:"closed_at,omitempty"`
	PnL           decimal.NullDecimal `json:"pnl"`
	PnLPercentage decimal.NullDecimal `json:"pnl_percentage"`
}

// TradeUpdate is the update shape of the trades table.
type TradeUpdate struct {
	Status        *TradeStatus     `json:"status,omitempty"`
	UpdatedAt     *time.Time       `json:"updated_at,omitempty"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
	PnL           *decimal.Decimal `json:"pnl,omitempty"`
	PnLPercentage *decimal.Decimal `json:"pnl_percentage,omitempty"`
}

// PlanTier is the subscription tier stored for a user.
type PlanTier string

const (
	PlanFree       PlanTier = "FREE"
	PlanBasic      PlanTier = "BASIC"
	PlanPro        PlanTier = "PRO"
	PlanEnterprise PlanTier = "ENTERPRISE"
)

// SubscriptionStatus is the state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
)

// SubscriptionRow is a row of the subscriptions table.
type SubscriptionRow struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Plan      PlanTier           `json:"plan"`
	Status    SubscriptionStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// SubscriptionInsert is the insert shape of the subscriptions table.
type SubscriptionInsert struct {
	ID        *string             `json:"id,omitempty"`
	UserID    string              `json:"user_id"`
	Plan      PlanTier            `json:"plan"`
	Status    *SubscriptionStatus `json:"status,omitempty"`
	CreatedAt *time.Time          `json:"created_at,omitempty"`
	UpdatedAt *time.Time          `json:"updated_at,omitempty"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// SubscriptionUpdate is the update shape of the subscriptions table.
type SubscriptionUpdate struct {
	Plan      *PlanTier           `json:"plan,omitempty"`
	Status    *SubscriptionStatus `json:"status,omitempty"`
	UpdatedAt *time.Time          `json:"updated_at,omitempty"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
}
