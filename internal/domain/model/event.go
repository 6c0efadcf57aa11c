package model

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Well-known change-feed collections. The user audience watches the first
// three; the admin audience watches the rest.
const (
	CollectionJobs            = "generation_jobs"
	CollectionAccounts        = "accounts"
	CollectionNotifications   = "notifications"
	CollectionAdminTasks      = "admin_tasks"
	CollectionBalanceRequests = "balance_requests"
	CollectionAppeals         = "appeals"
	CollectionMemberships     = "memberships"
)

// ChangeEvent is one row-level notification from the change feed. Ephemeral:
// produced by the feed client, fanned out by the bus, never persisted.
// Before is nil for inserts, After is nil for deletes.
type ChangeEvent struct {
	Collection string                 `json:"collection"`
	Kind       ChangeKind             `json:"kind"`
	Before     map[string]interface{} `json:"before"`
	After      map[string]interface{} `json:"after"`
}
