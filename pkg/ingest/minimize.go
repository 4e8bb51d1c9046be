package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MinimizePII enforces the storage-side privacy contract on a validated
// event. Unless allowRawPII is granted at the key scope, a raw subject_id is
// replaced by its hash before the event is persisted. The event is mutated in
// place.
func MinimizePII(event map[string]any, allowRawPII bool) {
	if allowRawPII {
		return
	}
	subject, ok := event["subject"].(map[string]any)
	if !ok {
		return
	}
	rawID, hasRaw := subject["subject_id"].(string)
	_, hasHash := subject["subject_id_hash"].(string)
	if hasRaw && !hasHash {
		subject["subject_id_hash"] = HashSubjectID(rawID)
	}
	delete(subject, "subject_id")
}

// HashSubjectID derives the stored pseudonym for a raw subject identifier.
func HashSubjectID(subjectID string) string {
	sum := sha256.Sum256([]byte(subjectID))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ParseEventTime parses the schema-validated event_time into UTC.
func ParseEventTime(event map[string]any) (time.Time, error) {
	raw, _ := event["event_time"].(string)
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable event_time %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// EventID extracts the schema-validated event identifier.
func EventID(event map[string]any) string {
	id, _ := event["event_id"].(string)
	return id
}
