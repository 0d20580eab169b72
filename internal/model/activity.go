// Package model contains the small value types that flow between the parser,
// the API client, the router and the orchestrator.
package model

import (
	"encoding/json"
)

// ActivityRecord is one element of a rehydration response. When Available is
// true Content carries the activity JSON; otherwise Status explains why the
// activity could not be returned.
type ActivityRecord struct {
	ID        string          `json:"id"`
	Available bool            `json:"available"`
	Content   json.RawMessage `json:"content,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// RunSummary accumulates the ids that could not be rehydrated for a single
// inbox file. A fresh value is created for every file.
type RunSummary struct {
	OldIDs          []string
	NotAvailableIDs []string
}

// AddOld records an id that is outside the retention window.
func (s *RunSummary) AddOld(id string) {
	s.OldIDs = append(s.OldIDs, id)
}

// AddNotAvailable records an id that was not found or rejected.
func (s *RunSummary) AddNotAvailable(id string) {
	s.NotAvailableIDs = append(s.NotAvailableIDs, id)
}
