// Package automations holds the calling automations that the polling
// synchronizer keeps fresh for clients: recurring dial campaigns with
// an active flag, progress counters, and run scheduling.
package automations

import (
	"time"

	"github.com/adamchain/heyway-core/internal/poller"
)

// Automation is one automated dialing campaign. Upstream sources key
// automations by one of two identity fields: `id` (current) or
// `automation_id` (legacy export format). CanonicalID resolves the
// preference.
type Automation struct {
	ID             string     `json:"id,omitempty"`
	AutomationID   string     `json:"automation_id,omitempty"`
	Name           string     `json:"name"`
	Active         bool       `json:"active"`
	Status         string     `json:"status,omitempty"`
	CompletedCalls int        `json:"completed_calls"`
	TotalCalls     int        `json:"total_calls"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at,omitempty"`
}

// CanonicalID returns the stable identifier, preferring the primary
// field and falling back to the legacy one.
func (a Automation) CanonicalID() string {
	if a.ID != "" {
		return a.ID
	}
	return a.AutomationID
}

// Snapshot reduces the automation to the change-detection view used by
// the synchronizer. CreatedAt/UpdatedAt are deliberately excluded:
// they churn without being shown to users.
func (a Automation) Snapshot() poller.Snapshot {
	return poller.Snapshot{
		ID:             a.CanonicalID(),
		Name:           a.Name,
		Active:         a.Active,
		Status:         a.Status,
		CompletedCalls: a.CompletedCalls,
		TotalCalls:     a.TotalCalls,
		LastRunAt:      a.LastRunAt,
		NextRunAt:      a.NextRunAt,
	}
}

// Snapshots maps a collection preserving order.
func Snapshots(list []Automation) []poller.Snapshot {
	out := make([]poller.Snapshot, len(list))
	for i, a := range list {
		out[i] = a.Snapshot()
	}
	return out
}
