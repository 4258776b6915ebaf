package models

import "time"

// DeskState is everything the store owns. It is the unit persisted as a snapshot.
type DeskState struct {
	Version        int              `json:"version"`
	Strategies     []StrategyRecord `json:"strategies"`
	Active         map[string]bool  `json:"active"`
	Users          []User           `json:"users"`
	Connections    []APIConnection  `json:"connections"`
	CurrentPlanID  string           `json:"current_plan_id"`
	BillingCycle   BillingCycle     `json:"billing_cycle"`
	LastUpdateTime time.Time        `json:"last_update_time"`
}

// Clone returns a deep copy of the state.
func (s *DeskState) Clone() *DeskState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Strategies != nil {
		c.Strategies = make([]StrategyRecord, len(s.Strategies))
		copy(c.Strategies, s.Strategies)
	}
	if s.Active != nil {
		c.Active = make(map[string]bool, len(s.Active))
		for k, v := range s.Active {
			c.Active[k] = v
		}
	}
	if s.Users != nil {
		c.Users = make([]User, len(s.Users))
		copy(c.Users, s.Users)
	}
	if s.Connections != nil {
		c.Connections = make([]APIConnection, len(s.Connections))
		copy(c.Connections, s.Connections)
	}
	return &c
}

// FindStrategy returns the record with the id.
func (s *DeskState) FindStrategy(id string) (StrategyRecord, bool) {
	for _, r := range s.Strategies {
		if r.ID == id {
			return r, true
		}
	}
	return StrategyRecord{}, false
}

// FindConnection returns the API connection with the id.
func (s *DeskState) FindConnection(id string) (APIConnection, bool) {
	for _, c := range s.Connections {
		if c.ID == id {
			return c, true
		}
	}
	return APIConnection{}, false
}

// HasUser reports whether id references a known user.
func (s *DeskState) HasUser(id string) bool {
	for _, u := range s.Users {
		if u.ID == id {
			return true
		}
	}
	return false
}
