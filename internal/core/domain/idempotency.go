package domain

import (
	"github.com/google/uuid"
)

// BuildIdempotencyKey scopes a caller-supplied key to one account and entry
// type, so the same key reused on a different operation never collides.
func BuildIdempotencyKey(accountID uuid.UUID, entryType EntryType, key string) string {
	return accountID.String() + ":" + string(entryType) + ":" + key
}
