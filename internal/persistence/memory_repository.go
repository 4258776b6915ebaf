package persistence

import (
	"strategy-desk/internal/models"
	"sync"
)

// memoryRepository keeps the last saved state in process. It is used when no snapshot path
// is configured.
type memoryRepository struct {
	mu    sync.Mutex
	state *models.DeskState
}

// NewMemoryRepository returns an empty in-memory StateRepository.
func NewMemoryRepository() StateRepository {
	return &memoryRepository{}
}

func (r *memoryRepository) SaveState(state *models.DeskState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state.Clone()
	return nil
}

func (r *memoryRepository) LoadState() (*models.DeskState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone(), nil
}

func (r *memoryRepository) Close() error {
	return nil
}
