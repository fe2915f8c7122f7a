// Package dedup partitions candidate contacts into fresh recipients and
// ones a user's earlier campaigns have already addressed.
package dedup

import (
	"strings"

	"github.com/coldfront-labs/coldfront/internal/models"
)

// Result is a complete, disjoint split of the candidates.
type Result struct {
	Fresh     []models.Contact
	Duplicate []models.Contact
}

// Normalize lowers and trims an address for comparison. All history lookups
// go through this, so A@X.COM and a@x.com compare equal.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HistorySet builds a normalized lookup set from prior recipient addresses.
func HistorySet(emails []string) map[string]struct{} {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if n := Normalize(e); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Partition classifies each candidate against the history set, preserving
// candidate order within each side. Stateless: the same inputs always
// produce the same split. Callers that cannot obtain history pass an empty
// set (fail-open) and surface the degraded check separately.
func Partition(candidates []models.Contact, history map[string]struct{}) Result {
	var res Result
	for _, c := range candidates {
		if _, seen := history[c.NormalizedEmail()]; seen {
			res.Duplicate = append(res.Duplicate, c)
		} else {
			res.Fresh = append(res.Fresh, c)
		}
	}
	return res
}
