package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"

	"github.com/complia/complia/pkg/model"
)

// EvidenceIndexCSV renders the evidence index as CSV with a stable column
// order, rows sorted by evidence id.
func EvidenceIndexCSV(evidence map[string]*model.EvidenceItem) ([]byte, error) {
	ids := make([]string, 0, len(evidence))
	for id := range evidence {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "title", "type", "classification", "checksum"}); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, id := range ids {
		e := evidence[id]
		row := []string{id, e.Title, string(e.Type), string(e.Classification), UploadChecksum(e)}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
