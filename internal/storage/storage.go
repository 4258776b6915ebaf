package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strategy-desk/internal/models"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // Import the sqlite3 driver
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("row not found")

// InitDB initializes the database connection and creates the schema tables.
func InitDB(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// DataSource returns the local sqlite file backing the schema tables. The backing store URL and
// anon key address the remote store and are never opened here.
func DataSource(cfg models.StoreConfig) string {
	return cfg.SchemaPath
}

// createTables creates the users, api_keys, trades and subscriptions tables if they don't exist.
func createTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			full_name TEXT,
			avatar_url TEXT,
			telegram_chat_id TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			exchange TEXT NOT NULL,
			api_key TEXT NOT NULL,
			api_secret TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
			quantity TEXT NOT NULL,
			price TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('OPEN', 'CLOSED', 'CANCELLED')),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			closed_at DATETIME,
			pnl TEXT,
			pnl_percentage TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			plan TEXT NOT NULL CHECK (plan IN ('FREE', 'BASIC', 'PRO', 'ENTERPRISE')),
			status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'CANCELLED', 'EXPIRED')),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_user_status ON trades (user_id, status);`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// setClause collects the columns of a partial update.
type setClause struct {
	cols []string
	args []interface{}
}

func (s *setClause) add(col string, v interface{}) {
	s.cols = append(s.cols, col+" = ?")
	s.args = append(s.args, v)
}

func (s *setClause) exec(db *sql.DB, table, id string) error {
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(s.cols, ", "))
	res, err := db.Exec(query, append(s.args, id)...)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

func stamp(t *time.Time, now time.Time) time.Time {
	if t != nil {
		return *t
	}
	return now
}

func newID(id *string) string {
	if id != nil && *id != "" {
		return *id
	}
	return uuid.NewString()
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", what, id, err)
}

// CreateUser inserts a new user.
func CreateUser(db *sql.DB, in models.UserInsert) (*models.UserRow, error) {
	now := time.Now().UTC()
	row := models.UserRow{
		ID:             newID(&in.ID),
		Email:          in.Email,
		CreatedAt:      stamp(in.CreatedAt, now),
		UpdatedAt:      stamp(in.UpdatedAt, now),
		FullName:       in.FullName,
		AvatarURL:      in.AvatarURL,
		TelegramChatID: in.TelegramChatID,
	}

	_, err := db.Exec(`
	INSERT INTO users (id, email, created_at, updated_at, full_name, avatar_url, telegram_chat_id)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Email, row.CreatedAt, row.UpdatedAt, row.FullName, row.AvatarURL, row.TelegramChatID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user %s: %w", row.ID, err)
	}
	return &row, nil
}

// GetUser loads a user by id.
func GetUser(db *sql.DB, id string) (*models.UserRow, error) {
	var row models.UserRow
	err := db.QueryRow(`
	SELECT id, email, created_at, updated_at, full_name, avatar_url, telegram_chat_id
	FROM users WHERE id = ?`, id).Scan(
		&row.ID, &row.Email, &row.CreatedAt, &row.UpdatedAt, &row.FullName, &row.AvatarURL, &row.TelegramChatID,
	)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &row, nil
}

// UpdateUser applies the non-nil fields of up.
func UpdateUser(db *sql.DB, id string, up models.UserUpdate) error {
	var s setClause
	if up.Email != nil {
		s.add("email", *up.Email)
	}
	if up.FullName != nil {
		s.add("full_name", *up.FullName)
	}
	if up.AvatarURL != nil {
		s.add("avatar_url", *up.AvatarURL)
	}
	if up.TelegramChatID != nil {
		s.add("telegram_chat_id", *up.TelegramChatID)
	}
	s.add("updated_at", stamp(up.UpdatedAt, time.Now().UTC()))
	return s.exec(db, "users", id)
}

// CreateAPIKey inserts a new exchange credential pair.
func CreateAPIKey(db *sql.DB, in models.APIKeyInsert) (*models.APIKeyRow, error) {
	now := time.Now().UTC()
	row := models.APIKeyRow{
		ID:        newID(in.ID),
		UserID:    in.UserID,
		Exchange:  in.Exchange,
		APIKey:    in.APIKey,
		APISecret: in.APISecret,
		CreatedAt: stamp(in.CreatedAt, now),
		UpdatedAt: stamp(in.UpdatedAt, now),
		IsActive:  in.IsActive == nil || *in.IsActive,
	}

	_, err := db.Exec(`
	INSERT INTO api_keys (id, user_id, exchange, api_key, api_secret, created_at, updated_at, is_active)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.UserID, row.Exchange, row.APIKey, row.APISecret, row.CreatedAt, row.UpdatedAt, row.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert api key %s: %w", row.ID, err)
	}
	return &row, nil
}

// GetAPIKeys lists the credentials of a user, oldest first.
func GetAPIKeys(db *sql.DB, userID string) ([]models.APIKeyRow, error) {
	rows, err := db.Query(`
	SELECT id, user_id, exchange, api_key, api_secret, created_at, updated_at, is_active
	FROM api_keys WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	var keys []models.APIKeyRow
	for rows.Next() {
		var k models.APIKeyRow
		if err := rows.Scan(&k.ID, &k.UserID, &k.Exchange, &k.APIKey, &k.APISecret, &k.CreatedAt, &k.UpdatedAt, &k.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan api key row: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// UpdateAPIKey applies the non-nil fields of up.
func UpdateAPIKey(db *sql.DB, id string, up models.APIKeyUpdate) error {
	var s setClause
	if up.Exchange != nil {
		s.add("exchange", *up.Exchange)
	}
	if up.APIKey != nil {
		s.add("api_key", *up.APIKey)
	}
	if up.APISecret != nil {
		s.add("api_secret", *up.APISecret)
	}
	if up.IsActive != nil {
		s.add("is_active", *up.IsActive)
	}
	s.add("updated_at", stamp(up.UpdatedAt, time.Now().UTC()))
	return s.exec(db, "api_keys", id)
}

// CreateTrade inserts a new trade. Status defaults to OPEN.
func CreateTrade(db *sql.DB, in models.TradeInsert) (*models.TradeRow, error) {
	now := time.Now().UTC()
	status := models.TradeOpen
	if in.Status != nil {
		status = *in.Status
	}
	row := models.TradeRow{
		ID:            newID(in.ID),
		UserID:        in.UserID,
		Symbol:        in.Symbol,
		Side:          in.Side,
		Quantity:      in.Quantity,
		Price:         in.Price,
		Status:        status,
		CreatedAt:     stamp(in.CreatedAt, now),
		UpdatedAt:     stamp(in.UpdatedAt, now),
		ClosedAt:      in.ClosedAt,
		PnL:           in.PnL,
		PnLPercentage: in.PnLPercentage,
	}

	_, err := db.Exec(`
	INSERT INTO trades (id, user_id, symbol, side, quantity, price, status, created_at, updated_at, closed_at, pnl, pnl_percentage)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.UserID, row.Symbol, string(row.Side), row.Quantity, row.Price, string(row.Status),
		row.CreatedAt, row.UpdatedAt, row.ClosedAt, row.PnL, row.PnLPercentage,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert trade %s: %w", row.ID, err)
	}
	return &row, nil
}

const tradeColumns = `id, user_id, symbol, side, quantity, price, status, created_at, updated_at, closed_at, pnl, pnl_percentage`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*models.TradeRow, error) {
	var t models.TradeRow
	var closedAt sql.NullTime
	if err := s.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.Status,
		&t.CreatedAt, &t.UpdatedAt, &closedAt, &t.PnL, &t.PnLPercentage); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		ct := closedAt.Time
		t.ClosedAt = &ct
	}
	return &t, nil
}

// GetTrade loads a trade by id.
func GetTrade(db *sql.DB, id string) (*models.TradeRow, error) {
	t, err := scanTrade(db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "trade", id)
	}
	return t, nil
}

// GetOpenTrades retrieves the trades of a user that are not in a final state.
func GetOpenTrades(db *sql.DB, userID string) ([]models.TradeRow, error) {
	rows, err := db.Query(`SELECT `+tradeColumns+` FROM trades WHERE user_id = ? AND status = ? ORDER BY created_at, id`,
		userID, string(models.TradeOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeRow
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// UpdateTrade applies the non-nil fields of up.
func UpdateTrade(db *sql.DB, id string, up models.TradeUpdate) error {
	var s setClause
	if up.Status != nil {
		s.add("status", string(*up.Status))
	}
	if up.ClosedAt != nil {
		s.add("closed_at", *up.ClosedAt)
	}
	if up.PnL != nil {
		s.add("pnl", *up.PnL)
	}
	if up.PnLPercentage != nil {
		s.add("pnl_percentage", *up.PnLPercentage)
	}
	s.add("updated_at", stamp(up.UpdatedAt, time.Now().UTC()))
	return s.exec(db, "trades", id)
}

// CreateSubscription inserts a new subscription. Status defaults to ACTIVE.
func CreateSubscription(db *sql.DB, in models.SubscriptionInsert) (*models.SubscriptionRow, error) {
	now := time.Now().UTC()
	status := models.SubscriptionActive
	if in.Status != nil {
		status = *in.Status
	}
	row := models.SubscriptionRow{
		ID:        newID(in.ID),
		UserID:    in.UserID,
		Plan:      in.Plan,
		Status:    status,
		CreatedAt: stamp(in.CreatedAt, now),
		UpdatedAt: stamp(in.UpdatedAt, now),
		ExpiresAt: in.ExpiresAt,
	}

	_, err := db.Exec(`
	INSERT INTO subscriptions (id, user_id, plan, status, created_at, updated_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.UserID, string(row.Plan), string(row.Status), row.CreatedAt, row.UpdatedAt, row.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert subscription %s: %w", row.ID, err)
	}
	return &row, nil
}

// GetSubscription loads a subscription by id.
func GetSubscription(db *sql.DB, id string) (*models.SubscriptionRow, error) {
	var row models.SubscriptionRow
	err := db.QueryRow(`
	SELECT id, user_id, plan, status, created_at, updated_at, expires_at
	FROM subscriptions WHERE id = ?`, id).Scan(
		&row.ID, &row.UserID, &row.Plan, &row.Status, &row.CreatedAt, &row.UpdatedAt, &row.ExpiresAt,
	)
	if err != nil {
		return nil, notFound(err, "subscription", id)
	}
	return &row, nil
}

// UpdateSubscription applies the non-nil fields of up.
func UpdateSubscription(db *sql.DB, id string, up models.SubscriptionUpdate) error {
	var s setClause
	if up.Plan != nil {
		s.add("plan", string(*up.Plan))
	}
	if up.Status != nil {
		s.add("status", string(*up.Status))
	}
	if up.ExpiresAt != nil {
		s.add("expires_at", *up.ExpiresAt)
	}
	s.add("updated_at", stamp(up.UpdatedAt, time.Now().UTC()))
	return s.exec(db, "subscriptions", id)
}
