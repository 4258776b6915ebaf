package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strategy-desk/internal/models"

	"github.com/dgraph-io/badger/v3"
)

const deskStateKey = "desk_state"

// badgerRepository is the BadgerDB implementation of the StateRepository.
type badgerRepository struct {
	db       *badger.DB
	stateKey []byte
}

// NewBadgerRepository opens (or creates) a BadgerDB database at dbPath.
func NewBadgerRepository(dbPath string) (StateRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is disabled; errors still come back from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dbPath, err)
	}

	return &badgerRepository{
		db:       db,
		stateKey: []byte(deskStateKey),
	}, nil
}

// SaveState marshals the state into JSON and saves it under a fixed key.
func (r *badgerRepository) SaveState(state *models.DeskState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal desk state: %w", err)
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.stateKey, data)
	})
}

// LoadState returns (nil, nil) when nothing has been saved yet.
func (r *badgerRepository) LoadState() (*models.DeskState, error) {
	var state models.DeskState

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.stateKey)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("desk state value is empty in database")
			}
			return json.Unmarshal(val, &state)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load desk state: %w", err)
	}

	return &state, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
