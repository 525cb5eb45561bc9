package model

import "time"

// Credential holds a stored service credential, e.g. the enrichment API key.
// Value is plaintext at the domain boundary; storage encrypts it.
type Credential struct {
	ID        int64
	Service   string
	Value     Secret
	UpdatedAt time.Time
}
