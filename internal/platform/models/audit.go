package models

type ReconciliationEntry struct {
	ID        string                 `json:"id"`
	OwnerID   string                 `json:"owner_id"`
	Source    string                 `json:"source"` // webhook, fallback, member, resync
	Provider  string                 `json:"provider"`
	Action    string                 `json:"action"`
	Reference string                 `json:"reference,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt int64                  `json:"created_at"`
}
