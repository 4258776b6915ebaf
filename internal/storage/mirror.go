package storage

import (
	"database/sql"
	"fmt"
	"strategy-desk/internal/models"
	"strings"
	"time"
)

// SyncState mirrors the users, the API connections of userID and the current subscription of a
// desk snapshot into the schema tables. Connections missing from the snapshot are removed.
func SyncState(db *sql.DB, state *models.DeskState, userID string, now time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback is a no-op if the transaction is committed

	for _, u := range state.Users {
		name := u.Name
		_, err := tx.Exec(`
		INSERT INTO users (id, email, created_at, updated_at, full_name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			full_name = excluded.full_name,
			updated_at = excluded.updated_at;`,
			u.ID, u.Email, now, now, &name,
		)
		if err != nil {
			return fmt.Errorf("failed to sync user %s: %w", u.ID, err)
		}
	}

	ids := make([]interface{}, 0, len(state.Connections)+1)
	ids = append(ids, userID)
	for _, c := range state.Connections {
		_, err := tx.Exec(`
		INSERT INTO api_keys (id, user_id, exchange, api_key, api_secret, created_at, updated_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			exchange = excluded.exchange,
			api_key = excluded.api_key,
			api_secret = excluded.api_secret,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at;`,
			c.ID, userID, c.Exchange, c.APIKey, c.APISecret, now, now, c.Status == "active",
		)
		if err != nil {
			return fmt.Errorf("failed to sync api key %s: %w", c.ID, err)
		}
		ids = append(ids, c.ID)
	}

	prune := `DELETE FROM api_keys WHERE user_id = ?`
	if len(ids) > 1 {
		prune += ` AND id NOT IN (?` + strings.Repeat(", ?", len(ids)-2) + `)`
	}
	if _, err := tx.Exec(prune, ids...); err != nil {
		return fmt.Errorf("failed to prune api keys: %w", err)
	}

	if state.CurrentPlanID != "" {
		expires := now.AddDate(0, 1, 0)
		if state.BillingCycle == models.Yearly {
			expires = now.AddDate(1, 0, 0)
		}
		_, err := tx.Exec(`
		INSERT INTO subscriptions (id, user_id, plan, status, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plan = excluded.plan,
			status = excluded.status,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at;`,
			SubscriptionID(userID), userID, strings.ToUpper(state.CurrentPlanID),
			string(models.SubscriptionActive), now, now, expires,
		)
		if err != nil {
			return fmt.Errorf("failed to sync subscription: %w", err)
		}
	}

	return tx.Commit()
}

// SubscriptionID is the id of the subscription row kept for a user.
func SubscriptionID(userID string) string {
	return "sub-" + userID
}
