package types

// Event represents a typed event record emitted during ledger state
// transitions. Attributes are rendered as strings so downstream consumers can
// index them without schema knowledge.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
