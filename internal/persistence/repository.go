package persistence

import "strategy-desk/internal/models"

// StateRepository defines the interface for desk state persistence.
// It abstracts the underlying storage mechanism (BadgerDB, in-memory)
// from the rest of the application.
type StateRepository interface {
	// SaveState atomically saves the entire desk state.
	SaveState(state *models.DeskState) error

	// LoadState loads the desk state from storage.
	// If no state is found, it should return (nil, nil).
	LoadState() (*models.DeskState, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
