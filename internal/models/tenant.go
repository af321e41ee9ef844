package models

import "time"

// Tenant is one Microsoft 365 organization known to the store. It is a
// namespacing boundary only; tenant rows are not versioned by snapshots.
type Tenant struct {
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	ClientID  string    `json:"client_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
