package statemanager

import (
	"errors"
	"fmt"
	"strategy-desk/internal/models"
	"strategy-desk/internal/notify"
	"strategy-desk/internal/persistence"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

// EventType defines the type of a store event
type EventType int

const (
	ToggleEvent EventType = iota
	StateResetEvent
	AddStrategyEvent
	UpdateStrategyEvent
	DeleteStrategyEvent
	AddConnectionEvent
	DeleteConnectionEvent
	SetPlanEvent
)

func (t EventType) String() string {
	switch t {
	case ToggleEvent:
		return "toggle"
	case StateResetEvent:
		return "reset"
	case AddStrategyEvent:
		return "strategy_added"
	case UpdateStrategyEvent:
		return "strategy_updated"
	case DeleteStrategyEvent:
		return "strategy_deleted"
	case AddConnectionEvent:
		return "connection_added"
	case DeleteConnectionEvent:
		return "connection_deleted"
	case SetPlanEvent:
		return "plan_changed"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

var (
	ErrNotFound    = errors.New("record not found")
	ErrDuplicateID = errors.New("record id already exists")
	ErrStopped     = errors.New("state manager stopped")
)

const (
	msgStrategyStopped = "Strategy stopped successfully!"
	msgStrategyStarted = "Strategy started successfully!"
	msgStrategyDeleted = "Strategy deleted successfully!"
)

// NormalizedEvent is a command for the event loop.
type NormalizedEvent struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}

	reply chan eventResult
}

type eventResult struct {
	value interface{}
	err   error
}

// AddStrategyEventData carries a new record and its initial running flag.
type AddStrategyEventData struct {
	Record models.StrategyRecord
	Active bool
}

// UpdateStrategyEventData replaces the record with ID. The id and creation time are kept.
type UpdateStrategyEventData struct {
	ID     string
	Record models.StrategyRecord
	Active bool
}

// SetPlanEventData switches the current plan.
type SetPlanEventData struct {
	PlanID string
	Cycle  models.BillingCycle
}

// ToggleResult is the outcome of flipping a strategy's running flag.
type ToggleResult struct {
	ID      string `json:"id"`
	Active  bool   `json:"active"`
	Message string `json:"message"`
}

// Change is published to subscribers after every applied event.
type Change struct {
	Type EventType
	ID   string
	Time time.Time
}

// NewID returns a short random identifier.
func NewID() string {
	id := uuid.New()
	return base62.EncodeToString(id[:])
}

// StateManager owns the desk state. All mutations are processed serially by one event loop.
type StateManager struct {
	mu              sync.RWMutex
	state           *models.DeskState
	repo            persistence.StateRepository
	notifier        notify.Notifier
	eventChannel    chan NormalizedEvent
	persistenceChan chan *models.DeskState
	stopChan        chan struct{}
	stopOnce        sync.Once
	logger          *zap.Logger
	newID           func() string
	now             func() time.Time

	subMu       sync.Mutex
	subscribers map[int]chan Change
	nextSub     int
}

const eventBufferSize = 1024

// NewStateManager creates a new StateManager.
func NewStateManager(initialState *models.DeskState, repo persistence.StateRepository, notifier notify.Notifier, logger *zap.Logger) *StateManager {
	if initialState.Active == nil {
		initialState.Active = make(map[string]bool)
	}
	return &StateManager{
		state:           initialState,
		repo:            repo,
		notifier:        notifier,
		eventChannel:    make(chan NormalizedEvent, eventBufferSize),
		persistenceChan: make(chan *models.DeskState, 128),
		stopChan:        make(chan struct{}),
		logger:          logger,
		newID:           NewID,
		now:             time.Now,
		subscribers:     make(map[int]chan Change),
	}
}

// Start begins the event processing and persistence loops.
func (sm *StateManager) Start() {
	go sm.eventLoop()
	go sm.persistenceLoop()
	sm.logger.Sugar().Info("StateManager started.")
}

// Stop shuts the loops down. Calls to command methods after Stop return ErrStopped.
func (sm *StateManager) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
		sm.logger.Sugar().Info("StateManager stopped.")
	})
}

// Snapshot returns a deep copy of the current state for safe, concurrent reading.
func (sm *StateManager) Snapshot() *models.DeskState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.Clone()
}

// IsActive reports the running flag of id. Unknown ids are inactive.
func (sm *StateManager) IsActive(id string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.Active[id]
}

// FindStrategy returns a copy of the record with id.
func (sm *StateManager) FindStrategy(id string) (models.StrategyRecord, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.FindStrategy(id)
}

// FindConnection returns a copy of the API connection with id.
func (sm *StateManager) FindConnection(id string) (models.APIConnection, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.FindConnection(id)
}

// HasUser reports whether id references a known user.
func (sm *StateManager) HasUser(id string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.HasUser(id)
}

// Subscribe registers a change feed. Slow subscribers miss changes rather than block the loop.
func (sm *StateManager) Subscribe() (<-chan Change, func()) {
	sm.subMu.Lock()
	defer sm.subMu.Unlock()

	id := sm.nextSub
	sm.nextSub++
	ch := make(chan Change, 16)
	sm.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.subMu.Lock()
			delete(sm.subscribers, id)
			sm.subMu.Unlock()
			close(ch)
		})
	}
}

// DispatchEvent sends an event to the loop without waiting for it to be applied. It returns
// ErrStopped once the manager is stopped.
func (sm *StateManager) DispatchEvent(event NormalizedEvent) error {
	select {
	case <-sm.stopChan:
		return ErrStopped
	default:
	}

	event.reply = nil
	select {
	case sm.eventChannel <- event:
		return nil
	case <-sm.stopChan:
		return ErrStopped
	}
}

func (sm *StateManager) dispatch(t EventType, data interface{}) (interface{}, error) {
	select {
	case <-sm.stopChan:
		return nil, ErrStopped
	default:
	}

	reply := make(chan eventResult, 1)
	event := NormalizedEvent{Type: t, Timestamp: sm.now(), Data: data, reply: reply}

	select {
	case sm.eventChannel <- event:
	case <-sm.stopChan:
		return nil, ErrStopped
	}
	select {
	case res := <-reply:
		return res.value, res.err
	case <-sm.stopChan:
		return nil, ErrStopped
	}
}

// Toggle inverts the running flag of id. The message describes the state before the flip.
func (sm *StateManager) Toggle(id string) (ToggleResult, error) {
	v, err := sm.dispatch(ToggleEvent, id)
	if err != nil {
		return ToggleResult{}, err
	}
	return v.(ToggleResult), nil
}

// AddStrategy appends a record to the catalog. Missing ids and creation times are filled in.
func (sm *StateManager) AddStrategy(record models.StrategyRecord, active bool) (models.StrategyRecord, error) {
	v, err := sm.dispatch(AddStrategyEvent, AddStrategyEventData{Record: record, Active: active})
	if err != nil {
		return models.StrategyRecord{}, err
	}
	return v.(models.StrategyRecord), nil
}

// UpdateStrategy rewrites the record with id in place.
func (sm *StateManager) UpdateStrategy(id string, record models.StrategyRecord, active bool) (models.StrategyRecord, error) {
	v, err := sm.dispatch(UpdateStrategyEvent, UpdateStrategyEventData{ID: id, Record: record, Active: active})
	if err != nil {
		return models.StrategyRecord{}, err
	}
	return v.(models.StrategyRecord), nil
}

// DeleteStrategy removes the record and its running flag.
func (sm *StateManager) DeleteStrategy(id string) (models.StrategyRecord, error) {
	v, err := sm.dispatch(DeleteStrategyEvent, id)
	if err != nil {
		return models.StrategyRecord{}, err
	}
	return v.(models.StrategyRecord), nil
}

// AddConnection stores a new API connection.
func (sm *StateManager) AddConnection(conn models.APIConnection) (models.APIConnection, error) {
	v, err := sm.dispatch(AddConnectionEvent, conn)
	if err != nil {
		return models.APIConnection{}, err
	}
	return v.(models.APIConnection), nil
}

// DeleteConnection removes an API connection.
func (sm *StateManager) DeleteConnection(id string) (models.APIConnection, error) {
	v, err := sm.dispatch(DeleteConnectionEvent, id)
	if err != nil {
		return models.APIConnection{}, err
	}
	return v.(models.APIConnection), nil
}

// SetPlan makes planID the one current plan.
func (sm *StateManager) SetPlan(planID string, cycle models.BillingCycle) error {
	_, err := sm.dispatch(SetPlanEvent, SetPlanEventData{PlanID: planID, Cycle: cycle})
	return err
}

// Reset replaces the whole state.
func (sm *StateManager) Reset(state *models.DeskState) error {
	_, err := sm.dispatch(StateResetEvent, state)
	return err
}

// eventLoop is the core processing loop that handles all incoming events serially.
func (sm *StateManager) eventLoop() {
	for {
		select {
		case event := <-sm.eventChannel:
			res, change := sm.processEvent(event)
			if event.reply != nil {
				event.reply <- res
			}
			if change != nil {
				sm.publish(*change)
			}
		case <-sm.stopChan:
			return
		}
	}
}

// persistenceLoop handles the asynchronous saving of state snapshots.
func (sm *StateManager) persistenceLoop() {
	for {
		select {
		case stateToSave := <-sm.persistenceChan:
			if sm.repo != nil {
				if err := sm.repo.SaveState(stateToSave); err != nil {
					sm.logger.Sugar().Errorf("Failed to save desk state: %v", err)
				}
			}
		case <-sm.stopChan:
			return
		}
	}
}

func (sm *StateManager) publish(c Change) {
	sm.subMu.Lock()
	defer sm.subMu.Unlock()
	for _, ch := range sm.subscribers {
		select {
		case ch <- c:
		default:
		}
	}
}

// processEvent applies one event. A nil change means the state was left untouched.
func (sm *StateManager) processEvent(event NormalizedEvent) (eventResult, *Change) {
	sm.mu.Lock()
	res, id := sm.apply(event)
	if res.err != nil {
		sm.mu.Unlock()
		return res, nil
	}
	updated := sm.now()
	sm.state.LastUpdateTime = updated
	stateCopy := sm.state.Clone()
	sm.mu.Unlock()

	// After processing, send a deep copy of the new state to the persistence channel.
	select {
	case sm.persistenceChan <- stateCopy:
	case <-sm.stopChan:
	}

	if event.Type == ToggleEvent {
		tr := res.value.(ToggleResult)
		notify.Send(sm.notifier, notify.Success, tr.Message)
	}
	if event.Type == DeleteStrategyEvent {
		notify.Send(sm.notifier, notify.Success, msgStrategyDeleted)
	}

	return res, &Change{Type: event.Type, ID: id, Time: updated}
}

func (sm *StateManager) apply(event NormalizedEvent) (eventResult, string) {
	switch event.Type {
	case ToggleEvent:
		if id, ok := event.Data.(string); ok {
			return eventResult{value: sm.toggle(id)}, id
		}
	case StateResetEvent:
		if newState, ok := event.Data.(*models.DeskState); ok && newState != nil {
			sm.state = newState.Clone()
			if sm.state.Active == nil {
				sm.state.Active = make(map[string]bool)
			}
			sm.logger.Sugar().Info("Desk state has been reset.")
			return eventResult{}, ""
		}
	case AddStrategyEvent:
		if data, ok := event.Data.(AddStrategyEventData); ok {
			rec, err := sm.addStrategy(data)
			return eventResult{value: rec, err: err}, rec.ID
		}
	case UpdateStrategyEvent:
		if data, ok := event.Data.(UpdateStrategyEventData); ok {
			rec, err := sm.updateStrategy(data)
			return eventResult{value: rec, err: err}, data.ID
		}
	case DeleteStrategyEvent:
		if id, ok := event.Data.(string); ok {
			rec, err := sm.deleteStrategy(id)
			return eventResult{value: rec, err: err}, id
		}
	case AddConnectionEvent:
		if conn, ok := event.Data.(models.APIConnection); ok {
			c := sm.addConnection(conn)
			return eventResult{value: c}, c.ID
		}
	case DeleteConnectionEvent:
		if id, ok := event.Data.(string); ok {
			c, err := sm.deleteConnection(id)
			return eventResult{value: c, err: err}, id
		}
	case SetPlanEvent:
		if data, ok := event.Data.(SetPlanEventData); ok {
			sm.state.CurrentPlanID = data.PlanID
			if data.Cycle != "" {
				sm.state.BillingCycle = data.Cycle
			}
			return eventResult{}, data.PlanID
		}
	}

	sm.logger.Sugar().Warnf("Received %s event with unexpected data type: %T", event.Type, event.Data)
	return eventResult{err: fmt.Errorf("%s: unexpected data type %T", event.Type, event.Data)}, ""
}

func (sm *StateManager) toggle(id string) ToggleResult {
	wasActive := sm.state.Active[id]
	sm.state.Active[id] = !wasActive

	msg := msgStrategyStarted
	if wasActive {
		msg = msgStrategyStopped
	}
	sm.logger.Sugar().Infof("Toggled strategy %s: active=%t", id, !wasActive)
	return ToggleResult{ID: id, Active: !wasActive, Message: msg}
}

func (sm *StateManager) strategyIndex(id string) int {
	for i, r := range sm.state.Strategies {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (sm *StateManager) addStrategy(data AddStrategyEventData) (models.StrategyRecord, error) {
	rec := data.Record
	if rec.ID == "" {
		rec.ID = sm.newID()
	}
	if sm.strategyIndex(rec.ID) >= 0 {
		return models.StrategyRecord{}, fmt.Errorf("add strategy %s: %w", rec.ID, ErrDuplicateID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = sm.now()
	}

	sm.state.Strategies = append(sm.state.Strategies, rec)
	sm.state.Active[rec.ID] = data.Active
	sm.logger.Sugar().Infof("Added strategy %s (%s)", rec.ID, rec.Name)
	return rec, nil
}

func (sm *StateManager) updateStrategy(data UpdateStrategyEventData) (models.StrategyRecord, error) {
	i := sm.strategyIndex(data.ID)
	if i < 0 {
		return models.StrategyRecord{}, fmt.Errorf("update strategy %s: %w", data.ID, ErrNotFound)
	}

	rec := data.Record
	rec.ID = data.ID
	rec.CreatedAt = sm.state.Strategies[i].CreatedAt
	sm.state.Strategies[i] = rec
	sm.state.Active[rec.ID] = data.Active
	sm.logger.Sugar().Infof("Updated strategy %s (%s)", rec.ID, rec.Name)
	return rec, nil
}

func (sm *StateManager) deleteStrategy(id string) (models.StrategyRecord, error) {
	i := sm.strategyIndex(id)
	if i < 0 {
		return models.StrategyRecord{}, fmt.Errorf("delete strategy %s: %w", id, ErrNotFound)
	}

	rec := sm.state.Strategies[i]
	sm.state.Strategies = append(sm.state.Strategies[:i:i], sm.state.Strategies[i+1:]...)
	delete(sm.state.Active, id)
	sm.logger.Sugar().Infof("Deleted strategy %s (%s)", rec.ID, rec.Name)
	return rec, nil
}

func (sm *StateManager) addConnection(conn models.APIConnection) models.APIConnection {
	if conn.ID == "" {
		conn.ID = sm.newID()
	}
	if conn.Status == "" {
		conn.Status = "active"
	}
	if conn.AddedOn == "" {
		conn.AddedOn = sm.now().Format("January 2, 2006")
	}

	sm.state.Connections = append(sm.state.Connections, conn)
	sm.logger.Sugar().Infof("Added %s API connection %s", conn.Exchange, conn.ID)
	return conn
}

func (sm *StateManager) deleteConnection(id string) (models.APIConnection, error) {
	for i, c := range sm.state.Connections {
		if c.ID == id {
			sm.state.Connections = append(sm.state.Connections[:i:i], sm.state.Connections[i+1:]...)
			sm.logger.Sugar().Infof("Removed %s API connection %s", c.Exchange, c.ID)
			return c, nil
		}
	}
	return models.APIConnection{}, fmt.Errorf("delete connection %s: %w", id, ErrNotFound)
}
