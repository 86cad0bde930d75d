// Package lookup resolves free-form activity references against candidate
// records from the replicated store.
package lookup

import (
	"regexp"
	"strings"

	"example.com/taskform/internal/store"
)

var (
	// activityTokenPattern captures the token of an `Activity.<token>`
	// segment; `#` terminates the token so version suffixes drop out.
	activityTokenPattern = regexp.MustCompile(`Activity\.([^#]+)`)

	skActivityPattern = regexp.MustCompile(`Activity\.([^#]+)$`)
	skUUIDPattern     = regexp.MustCompile(`(?i)([a-f0-9-]{36})$`)
)

// NormalizeLookupID reduces a reference string to a bare activity id.
//
// A reference may be a bare id, a composite `Activity.<id>#<version>`
// key, or a chain such as `ActivityRef#Arm.1#ActivityGroup.2#Activity.<id>`.
// The trailing `Activity.<token>` segment wins with any version suffix
// stripped. An `ActivityRef`-prefixed string without a terminal Activity
// segment is an incomplete reference and yields "". Anything else is
// taken verbatim. Blank input yields "".
func NormalizeLookupID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	if matches := activityTokenPattern.FindAllStringSubmatch(trimmed, -1); len(matches) > 0 {
		token := strings.TrimSpace(matches[len(matches)-1][1])
		return token
	}

	if strings.HasPrefix(trimmed, "ActivityRef") {
		return ""
	}

	return trimmed
}

// Score rates how well a record satisfies a lookup id. Identity matches
// dominate, structural completeness (hydrated chain reference, real
// layout content) outranks stub records, and recency only separates
// otherwise-equal candidates.
func Score(rec store.ActivityRecord, activityID string) float64 {
	var score float64

	if rec.PK == activityID || rec.ID == activityID {
		score += 1000
	}
	if strings.Contains(rec.SK, "Activity."+activityID) {
		score += 200
	}
	if strings.Contains(rec.SK, "ActivityRef#") {
		score += 100
	}
	if strings.HasPrefix(rec.SK, "SK-") {
		score -= 25
	}
	if nonTrivial(rec.Layouts) {
		score += 50
	}
	if nonTrivial(rec.ActivityGroups) {
		score += 25
	}
	if rec.LastChangedAt > 0 {
		score += float64(rec.LastChangedAt) / 1_000_000
	}

	return score
}

// SelectBestMatch picks the candidate record that should drive rendering.
// The lookup id may be raw or already normalized. Returns nil when no
// candidate matches.
func SelectBestMatch(candidates []store.ActivityRecord, lookupID string) *store.ActivityRecord {
	activityID := NormalizeLookupID(lookupID)
	if activityID == "" {
		return nil
	}

	var best *store.ActivityRecord
	var bestScore float64
	for i := range candidates {
		if !matches(candidates[i], activityID) {
			continue
		}
		score := Score(candidates[i], activityID)
		if best == nil || score > bestScore {
			best = &candidates[i]
			bestScore = score
		}
	}
	return best
}

func matches(rec store.ActivityRecord, activityID string) bool {
	if rec.PK == activityID || rec.ID == activityID {
		return true
	}
	if rec.SK == "" {
		return false
	}
	if strings.Contains(rec.SK, "Activity."+activityID) {
		return true
	}
	if strings.HasSuffix(rec.SK, activityID) {
		return true
	}
	if m := skActivityPattern.FindStringSubmatch(rec.SK); m != nil && m[1] == activityID {
		return true
	}
	if m := skUUIDPattern.FindStringSubmatch(rec.SK); m != nil && strings.EqualFold(m[1], activityID) {
		return true
	}
	return false
}

func nonTrivial(s *string) bool {
	return s != nil && len(strings.TrimSpace(*s)) > 2
}
