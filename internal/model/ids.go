package model

import "github.com/google/uuid"

// LeadID, SessionID and TransactionID are opaque 128-bit identifiers
// with a textual canonical form, per spec §3.
type (
	LeadID        = uuid.UUID
	SessionID     = uuid.UUID
	TransactionID = uuid.UUID
	JobID         = uuid.UUID
)

// NewID mints a fresh opaque identifier.
func NewID() uuid.UUID { return uuid.New() }

// ParseID parses the canonical textual form of an identifier.
func ParseID(s string) (uuid.UUID, error) { return uuid.Parse(s) }
