package dispatch

import (
	"fmt"

	"github.com/aurum-solar/core/internal/model"
)

// IdempotencyKey builds the stable per-attempt key (spec §4.5: "lead
// id + platform code + attempt number"). A retried network call for
// the same attempt number reuses this key, so a buyer platform that
// dedupes on it never double-bills.
func IdempotencyKey(leadID model.LeadID, platformCode string, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", leadID.String(), platformCode, attempt)
}
