package model

import "time"

// Entity is an addressable record (e.g., a product) carrying dynamic
// attributes. Created once; its entity type never changes.
type Entity struct {
	ID          string    `json:"id"`
	EntityType  string    `json:"entity_type"`
	ExternalKey string    `json:"external_key"`
	CreatedAt   time.Time `json:"created_at"`
}
